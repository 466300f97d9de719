package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nurpe/tms-trips/internal/model"
)

const shipmentColumns = `
	s.id,
	s.code,
	s.status,
	s.trip_id,
	s.pickup_location_id,
	s.drop_location_id,
	s.customer_id,
	s.mapped_at,
	s.created_at`

type ShipmentRepository struct {
	db *gorm.DB
}

func NewShipmentRepository(db *gorm.DB) *ShipmentRepository {
	return &ShipmentRepository{db: db}
}

func (r *ShipmentRepository) GetShipment(ctx context.Context, id uuid.UUID) (*model.Shipment, error) {
	var shipment model.Shipment
	err := r.db.WithContext(ctx).Raw(`
		SELECT `+shipmentColumns+`
		FROM shipments s
		WHERE s.id = ?
		LIMIT 1
	`, id).Scan(&shipment).Error
	if err != nil {
		return nil, err
	}
	if shipment.ID == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}
	return &shipment, nil
}

func (r *ShipmentRepository) GetShipments(ctx context.Context, ids []uuid.UUID) ([]model.Shipment, error) {
	if len(ids) == 0 {
		return []model.Shipment{}, nil
	}
	var shipments []model.Shipment
	err := r.db.WithContext(ctx).Raw(`
		SELECT `+shipmentColumns+`
		FROM shipments s
		WHERE s.id IN ?
	`, ids).Scan(&shipments).Error
	if err != nil {
		return nil, err
	}
	return shipments, nil
}

// ListCandidates returns unmapped shipments of the customer picked up at the
// origin or inside one of the given geohash cells.
func (r *ShipmentRepository) ListCandidates(
	ctx context.Context,
	customerID uuid.UUID,
	originID uuid.UUID,
	cells []string,
) ([]model.Shipment, error) {
	query := `
		SELECT ` + shipmentColumns + `
		FROM shipments s
		JOIN locations l ON l.id = s.pickup_location_id
		WHERE s.customer_id = ?
			AND s.trip_id IS NULL
			AND s.status IN ?
	`
	args := []interface{}{customerID, mappableStatuses()}
	if len(cells) > 0 {
		query += " AND (s.pickup_location_id = ? OR LEFT(l.geohash, ?) IN ?)"
		args = append(args, originID, len(cells[0]), cells)
	} else {
		query += " AND s.pickup_location_id = ?"
		args = append(args, originID)
	}
	query += " ORDER BY s.created_at ASC"

	var shipments []model.Shipment
	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&shipments).Error; err != nil {
		return nil, err
	}
	return shipments, nil
}

func (r *ShipmentRepository) SetStatus(ctx context.Context, id uuid.UUID, status model.ShipmentStatus) (*model.Shipment, error) {
	var saved model.Shipment
	err := r.db.WithContext(ctx).Raw(`
		UPDATE shipments s
		SET status = ?
		WHERE s.id = ?
		RETURNING `+shipmentColumns,
		string(status), id,
	).Scan(&saved).Error
	if err != nil {
		return nil, err
	}
	if saved.ID == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}
	return &saved, nil
}

// Delete removes an unmapped shipment still in created status. It reports
// false when the row is missing or has moved on.
func (r *ShipmentRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		DELETE FROM shipments
		WHERE id = ? AND status = ? AND trip_id IS NULL
	`, id, string(model.ShipmentStatusCreated))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func mappableStatuses() []string {
	return []string{string(model.ShipmentStatusCreated), string(model.ShipmentStatusConfirmed)}
}
