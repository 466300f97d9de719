package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nurpe/tms-trips/internal/model"
)

const tripColumns = `
	id,
	code,
	status,
	origin_id,
	destination_id,
	vehicle_id,
	driver_id,
	customer_id,
	transporter_id,
	lane_id,
	tracking_type,
	tracking_channel_id,
	consent_id,
	planned_start_at,
	planned_end_at,
	actual_start_at,
	actual_end_at,
	total_distance_km,
	closed_at,
	closed_by,
	closure_remarks,
	created_by,
	created_at,
	updated_at`

type TripRepository struct {
	db *gorm.DB
}

func NewTripRepository(db *gorm.DB) *TripRepository {
	return &TripRepository{db: db}
}

// TripCommit stages every write of one admission. CommitTrip applies all of
// them or none.
type TripCommit struct {
	Trip  model.Trip
	IsNew bool
	// LaneCode is used only when no lane exists for the route yet.
	LaneCode         string
	ConsumeConsentID *uuid.UUID
	ReleaseConsentID *uuid.UUID
	ShipmentIDs      []uuid.UUID
	Audit            *model.TripAssignmentAudit
	Now              time.Time
}

func (r *TripRepository) GetTrip(ctx context.Context, id uuid.UUID) (*model.Trip, error) {
	var trip model.Trip
	err := r.db.WithContext(ctx).Raw(`
		SELECT `+tripColumns+`
		FROM trips
		WHERE id = ?
		LIMIT 1
	`, id).Scan(&trip).Error
	if err != nil {
		return nil, err
	}
	if trip.ID == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}
	return &trip, nil
}

// FindActiveTripByVehicle returns the newest active trip holding the vehicle,
// skipping excludeTripID. It returns nil when the vehicle is free.
func (r *TripRepository) FindActiveTripByVehicle(ctx context.Context, vehicleID uuid.UUID, excludeTripID *uuid.UUID) (*model.Trip, error) {
	return r.findActiveTrip(ctx, "vehicle_id", vehicleID, excludeTripID)
}

func (r *TripRepository) FindActiveTripByDriver(ctx context.Context, driverID uuid.UUID, excludeTripID *uuid.UUID) (*model.Trip, error) {
	return r.findActiveTrip(ctx, "driver_id", driverID, excludeTripID)
}

func (r *TripRepository) findActiveTrip(ctx context.Context, column string, ref uuid.UUID, excludeTripID *uuid.UUID) (*model.Trip, error) {
	exclude := uuid.Nil
	if excludeTripID != nil {
		exclude = *excludeTripID
	}

	var trip model.Trip
	err := r.db.WithContext(ctx).Raw(fmt.Sprintf(`
		SELECT `+tripColumns+`
		FROM trips
		WHERE %s = ?
			AND status IN ?
			AND id <> ?
		ORDER BY created_at DESC
		LIMIT 1
	`, column), ref, activeStatuses(), exclude).Scan(&trip).Error
	if err != nil {
		return nil, err
	}
	if trip.ID == uuid.Nil {
		return nil, nil
	}
	return &trip, nil
}

func (r *TripRepository) FindLane(ctx context.Context, originID, destinationID uuid.UUID) (*model.Lane, error) {
	lane, err := findLane(r.db.WithContext(ctx), originID, destinationID)
	if err != nil {
		return nil, err
	}
	if lane.ID == uuid.Nil {
		return nil, nil
	}
	return lane, nil
}

func (r *TripRepository) CommitTrip(ctx context.Context, commit TripCommit) (*model.Trip, error) {
	var saved model.Trip
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		trip := commit.Trip

		if trip.OriginID != nil && trip.DestinationID != nil {
			lane, err := ensureLane(tx, *trip.OriginID, *trip.DestinationID, commit.LaneCode)
			if err != nil {
				return err
			}
			trip.LaneID = &lane.ID
			if trip.TotalDistanceKm == nil {
				trip.TotalDistanceKm = lane.DistanceKm
			}
		}

		if err := recheckAssignment(tx, trip); err != nil {
			return err
		}

		var err error
		if commit.IsNew {
			err = insertTrip(tx, trip, commit.Now, &saved)
		} else {
			err = updateTrip(tx, trip, commit.Now, &saved)
		}
		if err != nil {
			return asAssignmentConflict(err)
		}
		if saved.ID == uuid.Nil {
			return gorm.ErrRecordNotFound
		}

		if commit.ReleaseConsentID != nil {
			if err := tx.Exec(`
				UPDATE consents
				SET trip_id = NULL, updated_at = ?
				WHERE id = ? AND trip_id = ?
			`, commit.Now, *commit.ReleaseConsentID, saved.ID).Error; err != nil {
				return err
			}
		}

		if !commit.IsNew {
			if err := releaseForeignConsents(tx, saved, commit.Now); err != nil {
				return err
			}
		}

		if commit.ConsumeConsentID != nil {
			if err := consumeConsent(tx, *commit.ConsumeConsentID, saved.ID, commit.Now); err != nil {
				return err
			}
		}

		if len(commit.ShipmentIDs) > 0 {
			if err := mapShipments(tx, saved.ID, commit.ShipmentIDs, commit.Now); err != nil {
				return asAssignmentConflict(err)
			}
		}

		if commit.Audit != nil {
			audit := *commit.Audit
			audit.TripID = saved.ID
			if err := insertAudit(tx, audit, commit.Now); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// UpdateTripStatus writes a status transition. The row is only touched while
// it still carries the status the transition was computed from.
func (r *TripRepository) UpdateTripStatus(ctx context.Context, trip model.Trip, from model.TripStatus) (*model.Trip, error) {
	var saved model.Trip
	err := r.db.WithContext(ctx).Raw(`
		UPDATE trips
		SET
			status = ?,
			actual_start_at = ?,
			actual_end_at = ?,
			closed_at = ?,
			closed_by = ?,
			closure_remarks = ?,
			updated_at = ?
		WHERE id = ? AND status = ?
		RETURNING `+tripColumns,
		string(trip.Status),
		trip.ActualStartAt,
		trip.ActualEndAt,
		trip.ClosedAt,
		trip.ClosedBy,
		trip.ClosureRemarks,
		trip.UpdatedAt,
		trip.ID,
		string(from),
	).Scan(&saved).Error
	if err != nil {
		return nil, err
	}
	if saved.ID == uuid.Nil {
		return nil, &ConflictError{Field: "status", TripCode: trip.Code, Reason: "trip status changed concurrently"}
	}
	return &saved, nil
}

func (r *TripRepository) ListAssignmentAudit(ctx context.Context, tripID uuid.UUID) ([]model.TripAssignmentAudit, error) {
	var rows []model.TripAssignmentAudit
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			id,
			trip_id,
			prev_vehicle_id,
			new_vehicle_id,
			prev_driver_id,
			new_driver_id,
			reason,
			changed_by,
			created_at
		FROM trip_assignment_audit
		WHERE trip_id = ?
		ORDER BY created_at ASC
	`, tripID).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func activeStatuses() []string {
	statuses := make([]string, 0, len(model.ActiveTripStatuses))
	for _, status := range model.ActiveTripStatuses {
		statuses = append(statuses, string(status))
	}
	return statuses
}

func findLane(db *gorm.DB, originID, destinationID uuid.UUID) (*model.Lane, error) {
	var lane model.Lane
	err := db.Raw(`
		SELECT
			id,
			code,
			origin_id,
			destination_id,
			distance_km,
			duration_min,
			created_at
		FROM lanes
		WHERE origin_id = ? AND destination_id = ?
		LIMIT 1
	`, originID, destinationID).Scan(&lane).Error
	if err != nil {
		return nil, err
	}
	return &lane, nil
}

func ensureLane(tx *gorm.DB, originID, destinationID uuid.UUID, code string) (*model.Lane, error) {
	if err := tx.Exec(`
		INSERT INTO lanes (code, origin_id, destination_id)
		VALUES (?, ?, ?)
		ON CONFLICT (origin_id, destination_id) DO NOTHING
	`, code, originID, destinationID).Error; err != nil {
		return nil, err
	}

	lane, err := findLane(tx, originID, destinationID)
	if err != nil {
		return nil, err
	}
	if lane.ID == uuid.Nil {
		return nil, fmt.Errorf("lane %s -> %s missing after upsert", originID, destinationID)
	}
	return lane, nil
}

func recheckAssignment(tx *gorm.DB, trip model.Trip) error {
	if trip.VehicleID != nil {
		code, err := lockActiveTrip(tx, "vehicle_id", *trip.VehicleID, trip.ID)
		if err != nil {
			return err
		}
		if code != "" {
			return &ConflictError{Field: "vehicle_id", TripCode: code, Reason: "vehicle is already assigned to an active trip"}
		}
	}
	if trip.DriverID != nil {
		code, err := lockActiveTrip(tx, "driver_id", *trip.DriverID, trip.ID)
		if err != nil {
			return err
		}
		if code != "" {
			return &ConflictError{Field: "driver_id", TripCode: code, Reason: "driver is already assigned to an active trip"}
		}
	}
	return nil
}

func lockActiveTrip(tx *gorm.DB, column string, ref, excludeTripID uuid.UUID) (string, error) {
	var row struct {
		ID   uuid.UUID
		Code string
	}
	err := tx.Raw(fmt.Sprintf(`
		SELECT id, code
		FROM trips
		WHERE %s = ?
			AND status IN ?
			AND id <> ?
		LIMIT 1
		FOR UPDATE
	`, column), ref, activeStatuses(), excludeTripID).Scan(&row).Error
	if err != nil {
		return "", err
	}
	return row.Code, nil
}

// releaseForeignConsents unlinks consents held by the trip that belong to a
// driver other than its current one.
func releaseForeignConsents(tx *gorm.DB, trip model.Trip, now time.Time) error {
	if trip.DriverID == nil {
		return tx.Exec(`
			UPDATE consents
			SET trip_id = NULL, updated_at = ?
			WHERE trip_id = ?
		`, now, trip.ID).Error
	}
	return tx.Exec(`
		UPDATE consents
		SET trip_id = NULL, updated_at = ?
		WHERE trip_id = ? AND driver_id <> ?
	`, now, trip.ID, *trip.DriverID).Error
}

func insertTrip(tx *gorm.DB, trip model.Trip, now time.Time, saved *model.Trip) error {
	return tx.Raw(`
		INSERT INTO trips (
			id,
			code,
			status,
			origin_id,
			destination_id,
			vehicle_id,
			driver_id,
			customer_id,
			transporter_id,
			lane_id,
			tracking_type,
			tracking_channel_id,
			consent_id,
			planned_start_at,
			planned_end_at,
			total_distance_km,
			created_by,
			created_at,
			updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING `+tripColumns,
		trip.ID,
		trip.Code,
		string(trip.Status),
		trip.OriginID,
		trip.DestinationID,
		trip.VehicleID,
		trip.DriverID,
		trip.CustomerID,
		trip.TransporterID,
		trip.LaneID,
		string(trip.TrackingType),
		trip.TrackingChannelID,
		trip.ConsentID,
		trip.PlannedStartAt,
		trip.PlannedEndAt,
		trip.TotalDistanceKm,
		trip.CreatedBy,
		now,
		now,
	).Scan(saved).Error
}

func updateTrip(tx *gorm.DB, trip model.Trip, now time.Time, saved *model.Trip) error {
	return tx.Raw(`
		UPDATE trips
		SET
			origin_id = ?,
			destination_id = ?,
			vehicle_id = ?,
			driver_id = ?,
			customer_id = ?,
			transporter_id = ?,
			lane_id = ?,
			tracking_type = ?,
			tracking_channel_id = ?,
			consent_id = ?,
			planned_start_at = ?,
			planned_end_at = ?,
			total_distance_km = ?,
			updated_at = ?
		WHERE id = ?
		RETURNING `+tripColumns,
		trip.OriginID,
		trip.DestinationID,
		trip.VehicleID,
		trip.DriverID,
		trip.CustomerID,
		trip.TransporterID,
		trip.LaneID,
		string(trip.TrackingType),
		trip.TrackingChannelID,
		trip.ConsentID,
		trip.PlannedStartAt,
		trip.PlannedEndAt,
		trip.TotalDistanceKm,
		now,
		trip.ID,
	).Scan(saved).Error
}

// mapShipments attaches shipments after the trip's current last stop.
func mapShipments(tx *gorm.DB, tripID uuid.UUID, shipmentIDs []uuid.UUID, now time.Time) error {
	var lastSequence int
	if err := tx.Raw(`
		SELECT COALESCE(MAX(sequence_order), 0)
		FROM trip_shipments
		WHERE trip_id = ?
	`, tripID).Scan(&lastSequence).Error; err != nil {
		return err
	}

	for i, shipmentID := range shipmentIDs {
		res := tx.Exec(`
			UPDATE shipments
			SET status = ?, trip_id = ?, mapped_at = ?
			WHERE id = ?
				AND trip_id IS NULL
				AND status IN ?
		`, string(model.ShipmentStatusMapped), tripID, now, shipmentID, mappableStatuses())
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return &ConflictError{
				Field:  "shipment_ids",
				Reason: fmt.Sprintf("shipment %s is no longer available for mapping", shipmentID),
			}
		}

		if err := tx.Exec(`
			INSERT INTO trip_shipments (trip_id, shipment_id, sequence_order)
			VALUES (?, ?, ?)
		`, tripID, shipmentID, lastSequence+i+1).Error; err != nil {
			return err
		}
	}
	return nil
}

func insertAudit(tx *gorm.DB, audit model.TripAssignmentAudit, now time.Time) error {
	return tx.Exec(`
		INSERT INTO trip_assignment_audit (
			trip_id,
			prev_vehicle_id,
			new_vehicle_id,
			prev_driver_id,
			new_driver_id,
			reason,
			changed_by,
			created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		audit.TripID,
		audit.PrevVehicleID,
		audit.NewVehicleID,
		audit.PrevDriverID,
		audit.NewDriverID,
		audit.Reason,
		audit.ChangedBy,
		now,
	).Error
}
