package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/nurpe/tms-trips/internal/compliance"
	"github.com/nurpe/tms-trips/internal/config"
	"github.com/nurpe/tms-trips/internal/model"
	"github.com/nurpe/tms-trips/internal/proximity"
	"github.com/nurpe/tms-trips/internal/repository"
	"github.com/nurpe/tms-trips/internal/tracking"
)

const (
	codeConflictAtCommit      = "conflict_at_commit"
	codeRouteConflict         = "route_conflict"
	codeRequiredField         = "required_field_missing"
	codePlannedWindow         = "planned_window_invalid"
	codeUnknownReference      = "unknown_reference"
	codeInactive              = "inactive"
	codeVehicleUnavailable    = "vehicle_unavailable"
	codeDriverUnavailable     = "driver_unavailable"
	codeShipmentUnavailable   = "shipment_unavailable"
	codeShipmentCustomer      = "shipment_customer_mismatch"
	defaultReassignmentReason = "reassignment"
)

type AdmissionConfig struct {
	ProximityRadiusKm      float64
	ExpiryWarningDays      int
	StrictMissingDocuments bool
	StoreTimeout           time.Duration
	LaneCodePrefix         string
	TripCodePrefix         string
}

func AdmissionConfigFrom(cfg *config.Config) AdmissionConfig {
	return AdmissionConfig{
		ProximityRadiusKm:      cfg.Trips.ProximityRadiusKm,
		ExpiryWarningDays:      cfg.Trips.ExpiryWarningDays,
		StrictMissingDocuments: cfg.Trips.StrictMissingDocuments,
		StoreTimeout:           cfg.Trips.StoreTimeout,
		LaneCodePrefix:         cfg.Trips.LaneCodePrefix,
		TripCodePrefix:         cfg.Trips.TripCodePrefix,
	}
}

type AdmissionService struct {
	trips      TripStore
	fleet      FleetStore
	positions  LocationReader
	consents   ConsentStore
	shipments  ShipmentStore
	compliance *compliance.Checker
	proximity  *proximity.Validator
	cfg        AdmissionConfig
	log        zerolog.Logger
	now        func() time.Time
}

func NewAdmissionService(
	trips TripStore,
	fleet FleetStore,
	positions LocationReader,
	consents ConsentStore,
	shipments ShipmentStore,
	cfg AdmissionConfig,
	log zerolog.Logger,
) *AdmissionService {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	if cfg.LaneCodePrefix == "" {
		cfg.LaneCodePrefix = "LN"
	}
	if cfg.TripCodePrefix == "" {
		cfg.TripCodePrefix = "TR"
	}
	return &AdmissionService{
		trips:      trips,
		fleet:      fleet,
		positions:  positions,
		consents:   consents,
		shipments:  shipments,
		compliance: compliance.NewChecker(cfg.ExpiryWarningDays, cfg.StrictMissingDocuments),
		proximity:  proximity.NewValidator(cfg.ProximityRadiusKm),
		cfg:        cfg,
		log:        log,
		now:        time.Now,
	}
}

// TripCandidate is the proposed state of a trip. On update it replaces the
// editable fields wholesale.
type TripCandidate struct {
	Code             string
	OriginID         *uuid.UUID
	DestinationID    *uuid.UUID
	VehicleID        *uuid.UUID
	DriverID         *uuid.UUID
	CustomerID       uuid.UUID
	TransporterID    uuid.UUID
	PlannedStartAt   *time.Time
	PlannedEndAt     *time.Time
	TotalDistanceKm  *float64
	RequiredTracking *model.TrackingType
	ShipmentIDs      []uuid.UUID
	Reason           string
}

type Evaluation struct {
	Verdict           model.Verdict
	Findings          model.Findings
	TrackingType      model.TrackingType
	TrackingChannelID *uuid.UUID
	ConsentID         *uuid.UUID
	// Lane is nil when the route has no lane yet; admission creates one.
	Lane        *model.Lane
	ShipmentIDs []uuid.UUID
}

type AdmissionResult struct {
	Trip     *model.Trip
	Verdict  model.Verdict
	Warnings model.Findings
}

// snapshot holds everything validation reads. Each loader writes its own
// fields, so the concurrent reads need no locking.
type snapshot struct {
	vehicle            *model.Vehicle
	driver             *model.Driver
	origin             *model.Location
	destination        *model.Location
	vehicleTrip        *model.Trip
	driverTrip         *model.Trip
	sample             *model.LocationSample
	consent            *model.Consent
	consentInUse       bool
	lane               *model.Lane
	shipments          []model.Shipment
	vehicleMissing     bool
	driverMissing      bool
	originMissing      bool
	destinationMissing bool
}

// Evaluate runs every admission check without writing.
func (s *AdmissionService) Evaluate(ctx context.Context, principal model.Principal, candidate TripCandidate, tripID *uuid.UUID) (*Evaluation, error) {
	if !principal.CanRead() {
		return nil, ErrPermissionDenied
	}

	var existing *model.Trip
	if tripID != nil {
		trip, err := s.loadTrip(ctx, *tripID)
		if err != nil {
			return nil, err
		}
		existing = trip
	}
	return s.evaluate(ctx, existing, candidate)
}

func (s *AdmissionService) Create(ctx context.Context, principal model.Principal, candidate TripCandidate) (*AdmissionResult, error) {
	if !principal.CanManageTrips() {
		return nil, ErrPermissionDenied
	}

	evaluation, err := s.evaluate(ctx, nil, candidate)
	if err != nil {
		return nil, err
	}
	if evaluation.Verdict == model.VerdictBlocked {
		s.log.Info().
			Int("errors", len(evaluation.Findings.Blocking())).
			Msg("trip admission blocked")
		return nil, &BlockedError{Findings: evaluation.Findings}
	}

	now := s.now().UTC()
	code := strings.TrimSpace(candidate.Code)
	if code == "" {
		code = generateCode(s.cfg.TripCodePrefix, now, 6)
	}

	userID := principal.UserID
	trip := model.Trip{
		ID:                uuid.New(),
		Code:              code,
		Status:            model.TripStatusCreated,
		OriginID:          candidate.OriginID,
		DestinationID:     candidate.DestinationID,
		VehicleID:         candidate.VehicleID,
		DriverID:          candidate.DriverID,
		CustomerID:        candidate.CustomerID,
		TransporterID:     candidate.TransporterID,
		TrackingType:      evaluation.TrackingType,
		TrackingChannelID: evaluation.TrackingChannelID,
		ConsentID:         evaluation.ConsentID,
		PlannedStartAt:    candidate.PlannedStartAt,
		PlannedEndAt:      candidate.PlannedEndAt,
		TotalDistanceKm:   candidate.TotalDistanceKm,
		CreatedBy:         &userID,
	}

	saved, err := s.commit(ctx, repository.TripCommit{
		Trip:             trip,
		IsNew:            true,
		LaneCode:         generateLaneCode(s.cfg.LaneCodePrefix),
		ConsumeConsentID: evaluation.ConsentID,
		ShipmentIDs:      evaluation.ShipmentIDs,
		Now:              now,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("trip_code", saved.Code).
		Str("verdict", string(evaluation.Verdict)).
		Str("tracking_type", string(saved.TrackingType)).
		Int("warnings", len(evaluation.Findings)).
		Int("shipments", len(evaluation.ShipmentIDs)).
		Msg("trip admitted")

	return &AdmissionResult{Trip: saved, Verdict: evaluation.Verdict, Warnings: evaluation.Findings.Warnings()}, nil
}

func (s *AdmissionService) Update(ctx context.Context, principal model.Principal, tripID uuid.UUID, candidate TripCandidate) (*AdmissionResult, error) {
	if !principal.CanManageTrips() {
		return nil, ErrPermissionDenied
	}

	existing, err := s.loadTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if !existing.Status.IsActive() {
		return nil, fmt.Errorf("%w: trip %s is %s and can no longer be edited", ErrIllegalTransition, existing.Code, existing.Status)
	}

	evaluation, err := s.evaluate(ctx, existing, candidate)
	if err != nil {
		return nil, err
	}
	if evaluation.Verdict == model.VerdictBlocked {
		s.log.Info().
			Str("trip_code", existing.Code).
			Int("errors", len(evaluation.Findings.Blocking())).
			Msg("trip edit blocked")
		return nil, &BlockedError{Findings: evaluation.Findings}
	}

	trip := *existing
	trip.OriginID = candidate.OriginID
	trip.DestinationID = candidate.DestinationID
	trip.VehicleID = candidate.VehicleID
	trip.DriverID = candidate.DriverID
	trip.CustomerID = candidate.CustomerID
	trip.TransporterID = candidate.TransporterID
	trip.PlannedStartAt = candidate.PlannedStartAt
	trip.PlannedEndAt = candidate.PlannedEndAt
	trip.TrackingType = evaluation.TrackingType
	trip.TrackingChannelID = evaluation.TrackingChannelID
	trip.ConsentID = evaluation.ConsentID
	if candidate.TotalDistanceKm != nil {
		trip.TotalDistanceKm = candidate.TotalDistanceKm
	}
	if !model.SameID(existing.OriginID, trip.OriginID) || !model.SameID(existing.DestinationID, trip.DestinationID) {
		trip.LaneID = nil
		trip.TotalDistanceKm = candidate.TotalDistanceKm
	}

	commit := repository.TripCommit{
		Trip:             trip,
		LaneCode:         generateLaneCode(s.cfg.LaneCodePrefix),
		ConsumeConsentID: evaluation.ConsentID,
		ShipmentIDs:      evaluation.ShipmentIDs,
		Now:              s.now().UTC(),
	}
	if existing.ConsentID != nil && !model.SameID(existing.ConsentID, evaluation.ConsentID) {
		commit.ReleaseConsentID = existing.ConsentID
	}

	vehicleChanged := !model.SameID(existing.VehicleID, trip.VehicleID)
	driverChanged := !model.SameID(existing.DriverID, trip.DriverID)
	if vehicleChanged || driverChanged {
		reason := strings.TrimSpace(candidate.Reason)
		if reason == "" {
			reason = defaultReassignmentReason
		}
		userID := principal.UserID
		commit.Audit = &model.TripAssignmentAudit{
			PrevVehicleID: existing.VehicleID,
			NewVehicleID:  trip.VehicleID,
			PrevDriverID:  existing.DriverID,
			NewDriverID:   trip.DriverID,
			Reason:        reason,
			ChangedBy:     &userID,
		}
	}

	saved, err := s.commit(ctx, commit)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("trip_code", saved.Code).
		Str("verdict", string(evaluation.Verdict)).
		Bool("vehicle_changed", vehicleChanged).
		Bool("driver_changed", driverChanged).
		Msg("trip updated")

	return &AdmissionResult{Trip: saved, Verdict: evaluation.Verdict, Warnings: evaluation.Findings.Warnings()}, nil
}

func (s *AdmissionService) commit(ctx context.Context, commit repository.TripCommit) (*model.Trip, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	saved, err := s.trips.CommitTrip(ctx, commit)
	if err != nil {
		err = classifyStoreError(err, "trip")
		var blocked *BlockedError
		switch {
		case errors.As(err, &blocked):
			s.log.Warn().Str("trip_code", commit.Trip.Code).Err(err).Msg("trip commit conflict")
		case errors.Is(err, ErrCanceled):
			s.log.Debug().Str("trip_code", commit.Trip.Code).Err(err).Msg("trip commit abandoned")
		default:
			s.log.Error().Str("trip_code", commit.Trip.Code).Err(err).Msg("trip commit failed")
		}
		return nil, err
	}
	return saved, nil
}

func (s *AdmissionService) evaluate(ctx context.Context, existing *model.Trip, candidate TripCandidate) (*Evaluation, error) {
	if candidate.CustomerID == uuid.Nil {
		return nil, fmt.Errorf("%w: customer_id is required", ErrInvalidInput)
	}
	if candidate.TransporterID == uuid.Nil {
		return nil, fmt.Errorf("%w: transporter_id is required", ErrInvalidInput)
	}
	candidate.ShipmentIDs = uniqueIDs(candidate.ShipmentIDs)

	snap, err := s.load(ctx, existing, candidate)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	var findings model.Findings
	findings = append(findings, structuralFindings(existing, candidate)...)
	findings = append(findings, referenceFindings(candidate, snap)...)
	findings = append(findings, s.compliance.Check(snap.vehicle, snap.driver, now)...)
	findings = append(findings, availabilityFindings(snap)...)
	if s.proximity.Applies(snap.vehicle, snap.origin) {
		findings = append(findings, s.proximity.Validate(snap.sample, snap.origin)...)
	}

	decision := tracking.Resolve(tracking.Input{
		VehicleSelected: candidate.VehicleID != nil,
		HasChannel:      snap.vehicle.HasTrackingChannel(),
		DriverSelected:  candidate.DriverID != nil,
		Consent:         snap.consent.EffectiveStatus(now),
		ConsentInUse:    snap.consentInUse,
		Required:        candidate.RequiredTracking,
	})
	findings = append(findings, decision.Findings...)

	shipmentFindings, shipmentIDs := shipmentSelection(existing, candidate, snap)
	findings = append(findings, shipmentFindings...)

	evaluation := &Evaluation{
		Verdict:      model.ClassifyFindings(findings),
		Findings:     findings,
		TrackingType: decision.Type,
		Lane:         snap.lane,
		ShipmentIDs:  shipmentIDs,
	}
	switch decision.Type {
	case model.TrackingGPS:
		evaluation.TrackingChannelID = snap.vehicle.TrackingChannelID
	case model.TrackingSIM:
		evaluation.ConsentID = &snap.consent.ID
	case model.TrackingManual, model.TrackingNone:
	}
	return evaluation, nil
}

func (s *AdmissionService) load(ctx context.Context, existing *model.Trip, candidate TripCandidate) (*snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	var exclude *uuid.UUID
	if existing != nil {
		exclude = &existing.ID
	}

	snap := &snapshot{}
	g, gctx := errgroup.WithContext(ctx)

	if candidate.VehicleID != nil {
		vehicleID := *candidate.VehicleID
		g.Go(func() error {
			return lookup(gctx, &snap.vehicle, &snap.vehicleMissing, func(ctx context.Context) (*model.Vehicle, error) {
				return s.fleet.GetVehicle(ctx, vehicleID)
			})
		})
		g.Go(func() error {
			trip, err := s.trips.FindActiveTripByVehicle(gctx, vehicleID, exclude)
			snap.vehicleTrip = trip
			return err
		})
		if candidate.OriginID != nil {
			g.Go(func() error {
				sample, err := s.positions.LatestLocationSample(gctx, vehicleID)
				snap.sample = sample
				return err
			})
		}
	}

	if candidate.DriverID != nil {
		driverID := *candidate.DriverID
		g.Go(func() error {
			return lookup(gctx, &snap.driver, &snap.driverMissing, func(ctx context.Context) (*model.Driver, error) {
				return s.fleet.GetDriver(ctx, driverID)
			})
		})
		g.Go(func() error {
			trip, err := s.trips.FindActiveTripByDriver(gctx, driverID, exclude)
			snap.driverTrip = trip
			return err
		})
		g.Go(func() error {
			consent, err := s.consents.GetByDriver(gctx, driverID)
			snap.consent = consent
			return err
		})
	}

	if candidate.OriginID != nil {
		originID := *candidate.OriginID
		g.Go(func() error {
			return lookup(gctx, &snap.origin, &snap.originMissing, func(ctx context.Context) (*model.Location, error) {
				return s.fleet.GetLocation(ctx, originID)
			})
		})
	}
	if candidate.DestinationID != nil {
		destinationID := *candidate.DestinationID
		g.Go(func() error {
			return lookup(gctx, &snap.destination, &snap.destinationMissing, func(ctx context.Context) (*model.Location, error) {
				return s.fleet.GetLocation(ctx, destinationID)
			})
		})
	}
	if candidate.OriginID != nil && candidate.DestinationID != nil && *candidate.OriginID != *candidate.DestinationID {
		originID, destinationID := *candidate.OriginID, *candidate.DestinationID
		g.Go(func() error {
			lane, err := s.trips.FindLane(gctx, originID, destinationID)
			snap.lane = lane
			return err
		})
	}

	if len(candidate.ShipmentIDs) > 0 {
		ids := candidate.ShipmentIDs
		g.Go(func() error {
			shipments, err := s.shipments.GetShipments(gctx, ids)
			snap.shipments = shipments
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, s.readFailure(err)
	}

	inUse, err := s.consentHeldElsewhere(ctx, snap.consent, exclude)
	if err != nil {
		return nil, s.readFailure(err)
	}
	snap.consentInUse = inUse
	return snap, nil
}

// consentHeldElsewhere reports whether the consent is linked to an active trip
// other than exclude. Commit refuses to link such a consent.
func (s *AdmissionService) consentHeldElsewhere(ctx context.Context, consent *model.Consent, exclude *uuid.UUID) (bool, error) {
	if consent == nil || consent.TripID == nil || model.SameID(consent.TripID, exclude) {
		return false, nil
	}
	holder, err := s.trips.GetTrip(ctx, *consent.TripID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return holder.Status.IsActive(), nil
}

func (s *AdmissionService) readFailure(err error) error {
	err = classifyStoreError(err, "reference")
	if errors.Is(err, ErrCanceled) {
		s.log.Debug().Err(err).Msg("admission validation reads abandoned")
	} else {
		s.log.Error().Err(err).Msg("admission validation reads failed")
	}
	return err
}

func (s *AdmissionService) loadTrip(ctx context.Context, id uuid.UUID) (*model.Trip, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	trip, err := s.trips.GetTrip(ctx, id)
	if err != nil {
		return nil, classifyStoreError(err, "trip")
	}
	return trip, nil
}

func lookup[T any](ctx context.Context, dst **T, missing *bool, load func(context.Context) (*T, error)) error {
	value, err := load(ctx)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		*missing = true
		return nil
	}
	if err != nil {
		return err
	}
	*dst = value
	return nil
}

func structuralFindings(existing *model.Trip, candidate TripCandidate) model.Findings {
	var findings model.Findings

	if candidate.OriginID == nil {
		findings = append(findings, model.ErrorFinding("origin_id", codeRequiredField, "origin is required"))
	}
	if candidate.DestinationID == nil {
		findings = append(findings, model.ErrorFinding("destination_id", codeRequiredField, "destination is required"))
	}
	if candidate.OriginID != nil && candidate.DestinationID != nil && *candidate.OriginID == *candidate.DestinationID {
		findings = append(findings, model.ErrorFinding("destination_id", codeRouteConflict, "origin and destination must be different"))
	}
	if candidate.PlannedStartAt != nil && candidate.PlannedEndAt != nil && candidate.PlannedEndAt.Before(*candidate.PlannedStartAt) {
		findings = append(findings, model.ErrorFinding("planned_end_at", codePlannedWindow, "planned end is before planned start"))
	}

	if existing != nil && existing.Status.RequiresAssignment() {
		if candidate.VehicleID == nil {
			findings = append(findings, model.ErrorFinding("vehicle_id", codeRequiredField,
				fmt.Sprintf("vehicle cannot be removed from a trip in %s status", existing.Status)))
		}
		if candidate.DriverID == nil {
			findings = append(findings, model.ErrorFinding("driver_id", codeRequiredField,
				fmt.Sprintf("driver cannot be removed from a trip in %s status", existing.Status)))
		}
	}
	return findings
}

func referenceFindings(candidate TripCandidate, snap *snapshot) model.Findings {
	var findings model.Findings
	if snap.vehicleMissing {
		findings = append(findings, model.ErrorFinding("vehicle_id", codeUnknownReference, "vehicle does not exist"))
	}
	if snap.driverMissing {
		findings = append(findings, model.ErrorFinding("driver_id", codeUnknownReference, "driver does not exist"))
	}
	if snap.originMissing {
		findings = append(findings, model.ErrorFinding("origin_id", codeUnknownReference, "origin location does not exist"))
	}
	if snap.destinationMissing {
		findings = append(findings, model.ErrorFinding("destination_id", codeUnknownReference, "destination location does not exist"))
	}
	if snap.vehicle != nil && !snap.vehicle.IsActive {
		findings = append(findings, model.ErrorFinding("vehicle_id", codeInactive,
			fmt.Sprintf("vehicle %s is inactive", snap.vehicle.Number)))
	}
	if snap.driver != nil && !snap.driver.IsActive {
		findings = append(findings, model.ErrorFinding("driver_id", codeInactive,
			fmt.Sprintf("driver %s is inactive", snap.driver.Name)))
	}
	return findings
}

func availabilityFindings(snap *snapshot) model.Findings {
	var findings model.Findings
	if snap.vehicleTrip != nil {
		findings = append(findings, model.ErrorFinding("vehicle_id", codeVehicleUnavailable,
			fmt.Sprintf("vehicle is already assigned to trip %s (%s)", snap.vehicleTrip.Code, snap.vehicleTrip.Status)))
	}
	if snap.driverTrip != nil {
		findings = append(findings, model.ErrorFinding("driver_id", codeDriverUnavailable,
			fmt.Sprintf("driver is already assigned to trip %s (%s)", snap.driverTrip.Code, snap.driverTrip.Status)))
	}
	return findings
}

// shipmentSelection validates the selected shipments and returns the ids
// still to be mapped. Shipments already on the edited trip are skipped.
func shipmentSelection(existing *model.Trip, candidate TripCandidate, snap *snapshot) (model.Findings, []uuid.UUID) {
	if len(candidate.ShipmentIDs) == 0 {
		return nil, nil
	}

	byID := make(map[uuid.UUID]model.Shipment, len(snap.shipments))
	for _, shipment := range snap.shipments {
		byID[shipment.ID] = shipment
	}

	var findings model.Findings
	ids := make([]uuid.UUID, 0, len(candidate.ShipmentIDs))
	for _, id := range candidate.ShipmentIDs {
		shipment, ok := byID[id]
		switch {
		case !ok:
			findings = append(findings, model.ErrorFinding("shipment_ids", codeUnknownReference,
				fmt.Sprintf("shipment %s does not exist", id)))
		case existing != nil && shipment.TripID != nil && *shipment.TripID == existing.ID:
		case shipment.TripID != nil || !shipment.Status.IsMappable():
			findings = append(findings, model.ErrorFinding("shipment_ids", codeShipmentUnavailable,
				fmt.Sprintf("shipment %s is %s and cannot be mapped", shipment.Code, shipment.Status)))
		case shipment.CustomerID != candidate.CustomerID:
			findings = append(findings, model.ErrorFinding("shipment_ids", codeShipmentCustomer,
				fmt.Sprintf("shipment %s belongs to another customer", shipment.Code)))
		default:
			ids = append(ids, id)
		}
	}
	return findings, ids
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[uuid.UUID]struct{}, len(ids))
	result := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == uuid.Nil {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}

func generateCode(prefix string, now time.Time, length int) string {
	return fmt.Sprintf("%s-%s-%s", prefix, now.Format("20060102"), randomSuffix(length))
}

func generateLaneCode(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, randomSuffix(8))
}

func randomSuffix(length int) string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return raw[:length]
}
