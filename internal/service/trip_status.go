package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nurpe/tms-trips/internal/model"
)

type TransitionInput struct {
	Status         model.TripStatus
	ClosureRemarks string
}

// Transition moves a trip along its status machine. Entering ongoing stamps
// the actual start once; completed stamps the actual end; closed needs remarks.
func (s *AdmissionService) Transition(ctx context.Context, principal model.Principal, tripID uuid.UUID, input TransitionInput) (*model.Trip, error) {
	if !principal.CanManageTrips() {
		return nil, ErrPermissionDenied
	}

	existing, err := s.loadTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if !existing.Status.CanTransitionTo(input.Status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, existing.Status, input.Status)
	}

	if input.Status.RequiresAssignment() {
		if findings := assignmentFindings(existing, input.Status); len(findings) > 0 {
			return nil, &BlockedError{Findings: findings}
		}
	}

	now := s.now().UTC()
	trip := *existing
	trip.Status = input.Status
	trip.UpdatedAt = now

	switch input.Status {
	case model.TripStatusOngoing:
		if trip.ActualStartAt == nil {
			trip.ActualStartAt = &now
		}
	case model.TripStatusCompleted:
		trip.ActualEndAt = &now
	case model.TripStatusClosed:
		remarks := strings.TrimSpace(input.ClosureRemarks)
		if remarks == "" {
			return nil, fmt.Errorf("%w: closure_remarks is required to close a trip", ErrInvalidInput)
		}
		userID := principal.UserID
		trip.ClosedAt = &now
		trip.ClosedBy = &userID
		trip.ClosureRemarks = &remarks
	case model.TripStatusCreated, model.TripStatusOnHold, model.TripStatusCancelled:
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	saved, err := s.trips.UpdateTripStatus(ctx, trip, existing.Status)
	if err != nil {
		return nil, classifyStoreError(err, "trip")
	}

	s.log.Info().
		Str("trip_code", saved.Code).
		Str("from", string(existing.Status)).
		Str("to", string(saved.Status)).
		Msg("trip status changed")
	return saved, nil
}

// AssignmentHistory lists the vehicle and driver reassignments of a trip,
// oldest first.
func (s *AdmissionService) AssignmentHistory(ctx context.Context, principal model.Principal, tripID uuid.UUID) ([]model.TripAssignmentAudit, error) {
	if !principal.CanRead() {
		return nil, ErrPermissionDenied
	}
	if _, err := s.loadTrip(ctx, tripID); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	audits, err := s.trips.ListAssignmentAudit(ctx, tripID)
	if err != nil {
		return nil, classifyStoreError(err, "trip")
	}
	return audits, nil
}

func assignmentFindings(trip *model.Trip, target model.TripStatus) model.Findings {
	var findings model.Findings
	required := []struct {
		field string
		value *uuid.UUID
	}{
		{"origin_id", trip.OriginID},
		{"destination_id", trip.DestinationID},
		{"vehicle_id", trip.VehicleID},
		{"driver_id", trip.DriverID},
	}
	for _, r := range required {
		if r.value == nil {
			findings = append(findings, model.ErrorFinding(r.field, codeRequiredField,
				fmt.Sprintf("%s must be set before the trip can be %s", r.field, target)))
		}
	}
	return findings
}
