package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nurpe/tms-trips/internal/geo"
	"github.com/nurpe/tms-trips/internal/model"
)

type ShipmentService struct {
	shipments ShipmentStore
	trips     TripStore
	fleet     FleetStore
	timeout   time.Duration
	log       zerolog.Logger
}

func NewShipmentService(shipments ShipmentStore, trips TripStore, fleet FleetStore, timeout time.Duration, log zerolog.Logger) *ShipmentService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ShipmentService{shipments: shipments, trips: trips, fleet: fleet, timeout: timeout, log: log}
}

// SetStatus writes an operator-driven status. Mapping is reserved to trip
// admission and cannot be set here, and a mapped shipment never returns to a
// mappable status.
func (s *ShipmentService) SetStatus(ctx context.Context, principal model.Principal, id uuid.UUID, status model.ShipmentStatus) (*model.Shipment, error) {
	if !principal.CanManageTrips() {
		return nil, ErrPermissionDenied
	}
	if status == model.ShipmentStatusMapped {
		return nil, fmt.Errorf("%w: shipments become mapped only through trip admission", ErrIllegalTransition)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	current, err := s.shipments.GetShipment(ctx, id)
	if err != nil {
		return nil, classifyStoreError(err, "shipment")
	}
	if current.Status == status {
		return current, nil
	}
	if current.TripID != nil && status.IsMappable() {
		return nil, fmt.Errorf("%w: shipment %s is mapped to a trip and cannot go back to %s", ErrIllegalTransition, current.Code, status)
	}

	saved, err := s.shipments.SetStatus(ctx, id, status)
	if err != nil {
		return nil, classifyStoreError(err, "shipment")
	}

	s.log.Info().
		Str("shipment_code", saved.Code).
		Str("from", string(current.Status)).
		Str("to", string(saved.Status)).
		Msg("shipment status changed")
	return saved, nil
}

func (s *ShipmentService) Delete(ctx context.Context, principal model.Principal, id uuid.UUID) error {
	if !principal.CanManageTrips() {
		return ErrPermissionDenied
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	current, err := s.shipments.GetShipment(ctx, id)
	if err != nil {
		return classifyStoreError(err, "shipment")
	}
	if current.TripID != nil {
		return fmt.Errorf("%w: shipment %s is mapped to a trip", ErrIllegalTransition, current.Code)
	}
	if !current.Status.IsDeletable() {
		return fmt.Errorf("%w: shipment %s is %s, only created shipments can be deleted", ErrIllegalTransition, current.Code, current.Status)
	}

	deleted, err := s.shipments.Delete(ctx, id)
	if err != nil {
		return classifyStoreError(err, "shipment")
	}
	if !deleted {
		return fmt.Errorf("%w: shipment %s changed status before deletion", ErrIllegalTransition, current.Code)
	}

	s.log.Info().Str("shipment_code", current.Code).Msg("shipment deleted")
	return nil
}

// Candidates lists unmapped shipments of the trip's customer whose pickup is
// the trip origin or lies in the origin's geohash neighbourhood.
func (s *ShipmentService) Candidates(ctx context.Context, principal model.Principal, tripID uuid.UUID) ([]model.Shipment, error) {
	if !principal.CanRead() {
		return nil, ErrPermissionDenied
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	trip, err := s.trips.GetTrip(ctx, tripID)
	if err != nil {
		return nil, classifyStoreError(err, "trip")
	}
	if trip.OriginID == nil {
		return []model.Shipment{}, nil
	}

	origin, err := s.fleet.GetLocation(ctx, *trip.OriginID)
	if err != nil {
		return nil, classifyStoreError(err, "origin")
	}

	var cells []string
	if origin.HasCoordinates() {
		cells = geo.Neighbourhood(geo.Point{Lat: *origin.Latitude, Lon: *origin.Longitude}, geo.CandidatePrecision)
	}

	shipments, err := s.shipments.ListCandidates(ctx, trip.CustomerID, origin.ID, cells)
	if err != nil {
		return nil, classifyStoreError(err, "shipment")
	}
	return shipments, nil
}
