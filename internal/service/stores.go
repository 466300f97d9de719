package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nurpe/tms-trips/internal/model"
	"github.com/nurpe/tms-trips/internal/repository"
)

type TripStore interface {
	GetTrip(ctx context.Context, id uuid.UUID) (*model.Trip, error)
	FindActiveTripByVehicle(ctx context.Context, vehicleID uuid.UUID, excludeTripID *uuid.UUID) (*model.Trip, error)
	FindActiveTripByDriver(ctx context.Context, driverID uuid.UUID, excludeTripID *uuid.UUID) (*model.Trip, error)
	FindLane(ctx context.Context, originID, destinationID uuid.UUID) (*model.Lane, error)
	CommitTrip(ctx context.Context, commit repository.TripCommit) (*model.Trip, error)
	UpdateTripStatus(ctx context.Context, trip model.Trip, from model.TripStatus) (*model.Trip, error)
	ListAssignmentAudit(ctx context.Context, tripID uuid.UUID) ([]model.TripAssignmentAudit, error)
}

type FleetStore interface {
	GetVehicle(ctx context.Context, id uuid.UUID) (*model.Vehicle, error)
	GetDriver(ctx context.Context, id uuid.UUID) (*model.Driver, error)
	GetLocation(ctx context.Context, id uuid.UUID) (*model.Location, error)
}

// LocationReader returns nil when the vehicle has no position history.
type LocationReader interface {
	LatestLocationSample(ctx context.Context, vehicleID uuid.UUID) (*model.LocationSample, error)
}

type ConsentStore interface {
	GetByDriver(ctx context.Context, driverID uuid.UUID) (*model.Consent, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Consent, error)
	Save(ctx context.Context, consent model.Consent) (*model.Consent, error)
	Consume(ctx context.Context, consentID, tripID uuid.UUID, now time.Time) error
}

type ShipmentStore interface {
	GetShipment(ctx context.Context, id uuid.UUID) (*model.Shipment, error)
	GetShipments(ctx context.Context, ids []uuid.UUID) ([]model.Shipment, error)
	ListCandidates(ctx context.Context, customerID, originID uuid.UUID, cells []string) ([]model.Shipment, error)
	SetStatus(ctx context.Context, id uuid.UUID, status model.ShipmentStatus) (*model.Shipment, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}
