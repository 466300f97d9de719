package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nurpe/tms-trips/internal/model"
)

const consentColumns = `
	id,
	driver_id,
	msisdn,
	status,
	requested_at,
	granted_at,
	revoked_at,
	expires_at,
	trip_id,
	created_at,
	updated_at`

type ConsentRepository struct {
	db *gorm.DB
}

func NewConsentRepository(db *gorm.DB) *ConsentRepository {
	return &ConsentRepository{db: db}
}

// GetByDriver returns nil when no consent was ever requested for the driver.
func (r *ConsentRepository) GetByDriver(ctx context.Context, driverID uuid.UUID) (*model.Consent, error) {
	var consent model.Consent
	err := r.db.WithContext(ctx).Raw(`
		SELECT `+consentColumns+`
		FROM consents
		WHERE driver_id = ?
		LIMIT 1
	`, driverID).Scan(&consent).Error
	if err != nil {
		return nil, err
	}
	if consent.ID == uuid.Nil {
		return nil, nil
	}
	return &consent, nil
}

func (r *ConsentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Consent, error) {
	var consent model.Consent
	err := r.db.WithContext(ctx).Raw(`
		SELECT `+consentColumns+`
		FROM consents
		WHERE id = ?
		LIMIT 1
	`, id).Scan(&consent).Error
	if err != nil {
		return nil, err
	}
	if consent.ID == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}
	return &consent, nil
}

// Save upserts the driver's consent record.
func (r *ConsentRepository) Save(ctx context.Context, consent model.Consent) (*model.Consent, error) {
	var saved model.Consent
	err := r.db.WithContext(ctx).Raw(`
		INSERT INTO consents (
			driver_id,
			msisdn,
			status,
			requested_at,
			granted_at,
			revoked_at,
			expires_at,
			trip_id,
			updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (driver_id) DO UPDATE SET
			msisdn = EXCLUDED.msisdn,
			status = EXCLUDED.status,
			requested_at = EXCLUDED.requested_at,
			granted_at = EXCLUDED.granted_at,
			revoked_at = EXCLUDED.revoked_at,
			expires_at = EXCLUDED.expires_at,
			trip_id = EXCLUDED.trip_id,
			updated_at = EXCLUDED.updated_at
		RETURNING `+consentColumns,
		consent.DriverID,
		consent.MSISDN,
		string(consent.Status),
		consent.RequestedAt,
		consent.GrantedAt,
		consent.RevokedAt,
		consent.ExpiresAt,
		consent.TripID,
		consent.UpdatedAt,
	).Scan(&saved).Error
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// Consume links the consent to the trip and points the trip at it. A
// manually tracked trip switches to SIM tracking.
func (r *ConsentRepository) Consume(ctx context.Context, consentID, tripID uuid.UUID, now time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := consumeConsent(tx, consentID, tripID, now); err != nil {
			return err
		}
		res := tx.Exec(`
			UPDATE trips t
			SET
				consent_id = c.id,
				tracking_type = CASE WHEN t.tracking_type = ? THEN ? ELSE t.tracking_type END,
				updated_at = ?
			FROM consents c
			WHERE t.id = ? AND c.id = ? AND t.driver_id = c.driver_id
		`, string(model.TrackingManual), string(model.TrackingSIM), now, tripID, consentID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &ConflictError{Field: "trip_id", Reason: "trip is no longer assigned to the consenting driver"}
		}
		return nil
	})
}

// consumeConsent links a consent to a trip. It succeeds only for a granted,
// unexpired consent that is free or held by a trip no longer active.
func consumeConsent(db *gorm.DB, consentID, tripID uuid.UUID, now time.Time) error {
	res := db.Exec(`
		UPDATE consents c
		SET trip_id = ?, updated_at = ?
		WHERE c.id = ?
			AND c.status = ?
			AND (c.expires_at IS NULL OR c.expires_at > ?)
			AND (
				c.trip_id IS NULL
				OR c.trip_id = ?
				OR NOT EXISTS (
					SELECT 1 FROM trips t WHERE t.id = c.trip_id AND t.status IN ?
				)
			)
	`, tripID, now, consentID, string(model.ConsentGranted), now, tripID, activeStatuses())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &ConflictError{Field: "consent_id", Reason: "consent is not granted or is linked to another active trip"}
	}
	return nil
}
