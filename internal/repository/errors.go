package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// ConflictError reports that a write lost a race against another writer.
// Field names the candidate attribute, TripCode the competing trip when known.
type ConflictError struct {
	Field    string
	TripCode string
	Reason   string
}

func (e *ConflictError) Error() string {
	if e.TripCode != "" {
		return fmt.Sprintf("%s: %s (trip %s)", e.Field, e.Reason, e.TripCode)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// asAssignmentConflict maps unique violations on the active-assignment
// indexes to a ConflictError. Other errors are returned unchanged.
func asAssignmentConflict(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return err
	}
	switch pgErr.ConstraintName {
	case "uq_trips_active_vehicle":
		return &ConflictError{Field: "vehicle_id", Reason: "vehicle is already assigned to an active trip"}
	case "uq_trips_active_driver":
		return &ConflictError{Field: "driver_id", Reason: "driver is already assigned to an active trip"}
	case "uq_trips_code":
		return &ConflictError{Field: "code", Reason: "trip code already exists"}
	case "uq_trip_shipments_shipment_id":
		return &ConflictError{Field: "shipment_ids", Reason: "shipment is already mapped to a trip"}
	default:
		return err
	}
}
