package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nurpe/tms-trips/internal/model"
)

// FleetRepository reads vehicles, drivers, locations and position history.
// These tables are owned by other services.
type FleetRepository struct {
	db *gorm.DB
}

func NewFleetRepository(db *gorm.DB) *FleetRepository {
	return &FleetRepository{db: db}
}

func (r *FleetRepository) GetVehicle(ctx context.Context, id uuid.UUID) (*model.Vehicle, error) {
	var vehicle model.Vehicle
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			id,
			number,
			tracking_channel_id,
			registration_expiry,
			insurance_expiry,
			permit_expiry,
			fitness_expiry,
			pollution_expiry,
			is_active
		FROM vehicles
		WHERE id = ?
		LIMIT 1
	`, id).Scan(&vehicle).Error
	if err != nil {
		return nil, err
	}
	if vehicle.ID == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}
	return &vehicle, nil
}

func (r *FleetRepository) GetDriver(ctx context.Context, id uuid.UUID) (*model.Driver, error) {
	var driver model.Driver
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			id,
			name,
			mobile,
			license_expiry,
			aadhaar_verified,
			pan_verified,
			is_active
		FROM drivers
		WHERE id = ?
		LIMIT 1
	`, id).Scan(&driver).Error
	if err != nil {
		return nil, err
	}
	if driver.ID == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}
	return &driver, nil
}

func (r *FleetRepository) GetLocation(ctx context.Context, id uuid.UUID) (*model.Location, error) {
	var location model.Location
	err := r.db.WithContext(ctx).Raw(`
		SELECT id, name, latitude, longitude, geohash
		FROM locations
		WHERE id = ?
		LIMIT 1
	`, id).Scan(&location).Error
	if err != nil {
		return nil, err
	}
	if location.ID == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}
	return &location, nil
}

// LatestLocationSample returns nil when the vehicle never reported a position.
func (r *FleetRepository) LatestLocationSample(ctx context.Context, vehicleID uuid.UUID) (*model.LocationSample, error) {
	var sample model.LocationSample
	err := r.db.WithContext(ctx).Raw(`
		SELECT vehicle_id, driver_id, trip_id, latitude, longitude, recorded_at
		FROM location_samples
		WHERE vehicle_id = ?
		ORDER BY recorded_at DESC
		LIMIT 1
	`, vehicleID).Scan(&sample).Error
	if err != nil {
		return nil, err
	}
	if sample.RecordedAt.IsZero() {
		return nil, nil
	}
	return &sample, nil
}
