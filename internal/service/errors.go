package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/nurpe/tms-trips/internal/model"
	"github.com/nurpe/tms-trips/internal/repository"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrInvalidInput      = errors.New("invalid input")
	ErrBlocked           = errors.New("admission blocked")
	ErrConflict          = errors.New("conflict at commit")
	ErrTransient         = errors.New("store temporarily unavailable")
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrCanceled          = errors.New("request canceled")
)

// BlockedError carries every finding of a rejected admission, warnings
// included. AtCommit marks findings raised by the write-time re-check.
type BlockedError struct {
	Findings model.Findings
	AtCommit bool
}

func (e *BlockedError) Error() string {
	blocking := e.Findings.Blocking()
	messages := make([]string, 0, len(blocking))
	for _, finding := range blocking {
		messages = append(messages, finding.Message)
	}
	return fmt.Sprintf("%s: %s", e.Unwrap(), strings.Join(messages, "; "))
}

func (e *BlockedError) Unwrap() error {
	if e.AtCommit {
		return ErrConflict
	}
	return ErrBlocked
}

// classifyStoreError turns repository errors into service errors. Unknown
// errors are returned unchanged and surface as internal failures.
func classifyStoreError(err error, entity string) error {
	if err == nil {
		return nil
	}

	var conflict *repository.ConflictError
	if errors.As(err, &conflict) {
		return &BlockedError{
			AtCommit: true,
			Findings: model.Findings{conflictFinding(conflict)},
		}
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, entity)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrCanceled, err)
	}
	if IsTransient(err) {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return err
}

func conflictFinding(conflict *repository.ConflictError) model.Finding {
	message := conflict.Reason
	if conflict.TripCode != "" {
		message = fmt.Sprintf("%s (trip %s)", conflict.Reason, conflict.TripCode)
	}
	return model.ErrorFinding(conflict.Field, codeConflictAtCommit, message)
}

// IsTransient reports whether retrying the same request may succeed.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "57P01", "57P03", "53300":
			return true
		}
		return false
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
