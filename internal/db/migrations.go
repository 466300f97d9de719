package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'trip_status') THEN
			CREATE TYPE trip_status AS ENUM ('created', 'ongoing', 'on_hold', 'completed', 'closed', 'cancelled');
		END IF;
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'tracking_type') THEN
			CREATE TYPE tracking_type AS ENUM ('none', 'gps', 'sim', 'manual');
		END IF;
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'shipment_status') THEN
			CREATE TYPE shipment_status AS ENUM (
				'created', 'confirmed', 'mapped', 'in_pickup', 'in_transit',
				'out_for_delivery', 'delivered', 'success', 'ndr', 'returned'
			);
		END IF;
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'consent_status') THEN
			CREATE TYPE consent_status AS ENUM ('not_requested', 'requested', 'granted', 'revoked', 'expired');
		END IF;
	END
	$$;`,
	`CREATE TABLE IF NOT EXISTS locations (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		name VARCHAR(255) NOT NULL,
		latitude DOUBLE PRECISION,
		longitude DOUBLE PRECISION,
		geohash VARCHAR(12),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_locations_geohash ON locations (geohash text_pattern_ops) WHERE geohash IS NOT NULL;`,
	`CREATE TABLE IF NOT EXISTS vehicles (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		number VARCHAR(32) NOT NULL,
		tracking_channel_id UUID,
		registration_expiry DATE,
		insurance_expiry DATE,
		permit_expiry DATE,
		fitness_expiry DATE,
		pollution_expiry DATE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_vehicles_number ON vehicles (number);`,
	`CREATE TABLE IF NOT EXISTS drivers (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		name VARCHAR(255) NOT NULL,
		mobile VARCHAR(20) NOT NULL,
		license_expiry DATE,
		aadhaar_verified BOOLEAN NOT NULL DEFAULT FALSE,
		pan_verified BOOLEAN NOT NULL DEFAULT FALSE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS location_samples (
		id BIGSERIAL PRIMARY KEY,
		vehicle_id UUID REFERENCES vehicles(id),
		driver_id UUID REFERENCES drivers(id),
		trip_id UUID,
		latitude DOUBLE PRECISION NOT NULL,
		longitude DOUBLE PRECISION NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_location_samples_vehicle_recorded ON location_samples (vehicle_id, recorded_at DESC);`,
	`CREATE TABLE IF NOT EXISTS lanes (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		code VARCHAR(32) NOT NULL,
		origin_id UUID NOT NULL REFERENCES locations(id),
		destination_id UUID NOT NULL REFERENCES locations(id),
		distance_km NUMERIC(10,2),
		duration_min INTEGER,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_lanes_origin_destination ON lanes (origin_id, destination_id);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_lanes_code ON lanes (code);`,
	`CREATE TABLE IF NOT EXISTS consents (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		driver_id UUID NOT NULL REFERENCES drivers(id),
		msisdn VARCHAR(20) NOT NULL,
		status consent_status NOT NULL DEFAULT 'not_requested',
		requested_at TIMESTAMPTZ,
		granted_at TIMESTAMPTZ,
		revoked_at TIMESTAMPTZ,
		expires_at TIMESTAMPTZ,
		trip_id UUID,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_consents_driver ON consents (driver_id);`,
	`CREATE TABLE IF NOT EXISTS trips (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		code VARCHAR(32) NOT NULL,
		status trip_status NOT NULL DEFAULT 'created',
		origin_id UUID REFERENCES locations(id),
		destination_id UUID REFERENCES locations(id),
		vehicle_id UUID REFERENCES vehicles(id),
		driver_id UUID REFERENCES drivers(id),
		customer_id UUID NOT NULL,
		transporter_id UUID NOT NULL,
		lane_id UUID REFERENCES lanes(id),
		tracking_type tracking_type NOT NULL DEFAULT 'none',
		tracking_channel_id UUID,
		consent_id UUID REFERENCES consents(id),
		planned_start_at TIMESTAMPTZ,
		planned_end_at TIMESTAMPTZ,
		actual_start_at TIMESTAMPTZ,
		actual_end_at TIMESTAMPTZ,
		total_distance_km NUMERIC(10,2),
		closed_at TIMESTAMPTZ,
		closed_by UUID,
		closure_remarks TEXT,
		created_by UUID,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT chk_trips_origin_destination CHECK (origin_id IS NULL OR destination_id IS NULL OR origin_id <> destination_id)
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_trips_code ON trips (code);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_trips_active_vehicle ON trips (vehicle_id)
		WHERE vehicle_id IS NOT NULL AND status IN ('created', 'ongoing', 'on_hold');`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_trips_active_driver ON trips (driver_id)
		WHERE driver_id IS NOT NULL AND status IN ('created', 'ongoing', 'on_hold');`,
	`CREATE TABLE IF NOT EXISTS shipments (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		code VARCHAR(32) NOT NULL,
		status shipment_status NOT NULL DEFAULT 'created',
		trip_id UUID REFERENCES trips(id),
		pickup_location_id UUID NOT NULL REFERENCES locations(id),
		drop_location_id UUID NOT NULL REFERENCES locations(id),
		customer_id UUID NOT NULL,
		mapped_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_shipments_customer_status ON shipments (customer_id, status);`,
	`CREATE TABLE IF NOT EXISTS trip_shipments (
		trip_id UUID NOT NULL REFERENCES trips(id) ON DELETE CASCADE,
		shipment_id UUID NOT NULL REFERENCES shipments(id),
		sequence_order INTEGER NOT NULL,
		PRIMARY KEY (trip_id, shipment_id)
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_trip_shipments_shipment_id ON trip_shipments (shipment_id);`,
	`CREATE TABLE IF NOT EXISTS trip_assignment_audit (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		trip_id UUID NOT NULL REFERENCES trips(id) ON DELETE CASCADE,
		prev_vehicle_id UUID,
		new_vehicle_id UUID,
		prev_driver_id UUID,
		new_driver_id UUID,
		reason TEXT NOT NULL,
		changed_by UUID,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_trip_assignment_audit_trip_id ON trip_assignment_audit (trip_id);`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
