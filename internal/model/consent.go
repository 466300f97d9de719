package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ConsentStatus string

const (
	ConsentNotRequested ConsentStatus = "not_requested"
	ConsentRequested    ConsentStatus = "requested"
	ConsentGranted      ConsentStatus = "granted"
	ConsentRevoked      ConsentStatus = "revoked"
	ConsentExpired      ConsentStatus = "expired"
)

// ParseConsentStatus accepts the carrier vocabulary (pending, allowed, denied)
// as aliases.
func ParseConsentStatus(raw string) (ConsentStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "not_requested":
		return ConsentNotRequested, nil
	case "requested", "pending":
		return ConsentRequested, nil
	case "granted", "allowed", "approved":
		return ConsentGranted, nil
	case "revoked", "denied", "rejected":
		return ConsentRevoked, nil
	case "expired":
		return ConsentExpired, nil
	default:
		return "", fmt.Errorf("unknown consent status %q", raw)
	}
}

func (s ConsentStatus) CanTransitionTo(next ConsentStatus) bool {
	switch s {
	case ConsentNotRequested:
		return next == ConsentRequested
	case ConsentRequested:
		return next == ConsentRequested || next == ConsentGranted || next == ConsentRevoked || next == ConsentExpired
	case ConsentGranted:
		return next == ConsentRevoked || next == ConsentExpired
	case ConsentRevoked, ConsentExpired:
		return next == ConsentRequested
	default:
		return false
	}
}

type Consent struct {
	ID          uuid.UUID
	DriverID    uuid.UUID
	MSISDN      string
	Status      ConsentStatus
	RequestedAt *time.Time
	GrantedAt   *time.Time
	RevokedAt   *time.Time
	ExpiresAt   *time.Time
	TripID      *uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EffectiveStatus evaluates expiry against now instead of trusting the stored
// status. A nil consent reads as not requested.
func (c *Consent) EffectiveStatus(now time.Time) ConsentStatus {
	if c == nil {
		return ConsentNotRequested
	}
	switch c.Status {
	case ConsentRequested, ConsentGranted:
		if c.ExpiresAt != nil && !now.Before(*c.ExpiresAt) {
			return ConsentExpired
		}
		return c.Status
	case ConsentNotRequested, ConsentRevoked, ConsentExpired:
		return c.Status
	default:
		return ConsentNotRequested
	}
}

func (c *Consent) IsUsable(now time.Time) bool {
	return c.EffectiveStatus(now) == ConsentGranted
}
