package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nurpe/tms-trips/internal/model"
)

var msisdnPattern = regexp.MustCompile(`^\+?[0-9]{10,15}$`)

// ConsentNotifier delivers a consent request to the carrier channel.
type ConsentNotifier interface {
	NotifyConsentRequest(ctx context.Context, consent model.Consent, tripID *uuid.UUID) error
}

type NopNotifier struct{}

func (NopNotifier) NotifyConsentRequest(context.Context, model.Consent, *uuid.UUID) error {
	return nil
}

type ConsentService struct {
	consents ConsentStore
	trips    TripStore
	notifier ConsentNotifier
	ttl      time.Duration
	timeout  time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

func NewConsentService(consents ConsentStore, trips TripStore, notifier ConsentNotifier, ttl, timeout time.Duration, log zerolog.Logger) *ConsentService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ConsentService{
		consents: consents,
		trips:    trips,
		notifier: notifier,
		ttl:      ttl,
		timeout:  timeout,
		log:      log,
		now:      time.Now,
	}
}

type RequestConsentInput struct {
	DriverID uuid.UUID
	MSISDN   string
	TripID   *uuid.UUID
}

type ConsentView struct {
	DriverID  uuid.UUID
	Consent   *model.Consent
	Effective model.ConsentStatus
	Usable    bool
}

// Request records a consent request for the driver and sends it out. A resend
// refreshes the request; a consent that is already usable is returned as is.
func (s *ConsentService) Request(ctx context.Context, principal model.Principal, input RequestConsentInput) (*model.Consent, error) {
	if !principal.CanManageTrips() {
		return nil, ErrPermissionDenied
	}
	if input.DriverID == uuid.Nil {
		return nil, fmt.Errorf("%w: driver_id is required", ErrInvalidInput)
	}
	msisdn := normalizeMSISDN(input.MSISDN)
	if !msisdnPattern.MatchString(msisdn) {
		return nil, fmt.Errorf("%w: msisdn must contain 10 to 15 digits", ErrInvalidInput)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	current, err := s.consents.GetByDriver(ctx, input.DriverID)
	if err != nil {
		return nil, classifyStoreError(err, "consent")
	}

	now := s.now().UTC()
	effective := current.EffectiveStatus(now)
	if effective == model.ConsentGranted {
		return current, nil
	}
	if !effective.CanTransitionTo(model.ConsentRequested) {
		return nil, fmt.Errorf("%w: consent %s -> %s", ErrIllegalTransition, effective, model.ConsentRequested)
	}

	expires := now.Add(s.ttl)
	next := model.Consent{
		DriverID:    input.DriverID,
		MSISDN:      msisdn,
		Status:      model.ConsentRequested,
		RequestedAt: &now,
		ExpiresAt:   &expires,
		UpdatedAt:   now,
	}
	if current != nil {
		next.ID = current.ID
		next.TripID = current.TripID
	}

	saved, err := s.consents.Save(ctx, next)
	if err != nil {
		return nil, classifyStoreError(err, "consent")
	}

	if err := s.notifier.NotifyConsentRequest(ctx, *saved, input.TripID); err != nil {
		s.log.Error().Err(err).Str("driver_id", saved.DriverID.String()).Msg("consent request delivery failed")
	}

	s.log.Info().
		Str("driver_id", saved.DriverID.String()).
		Str("previous", string(effective)).
		Msg("consent requested")
	return saved, nil
}

// Resolve applies the carrier's decision. Repeating the current decision is
// a no-op.
func (s *ConsentService) Resolve(ctx context.Context, principal model.Principal, driverID uuid.UUID, decision string) (*model.Consent, error) {
	if !principal.CanResolveConsent() {
		return nil, ErrPermissionDenied
	}
	target, err := model.ParseConsentStatus(decision)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if target != model.ConsentGranted && target != model.ConsentRevoked {
		return nil, fmt.Errorf("%w: decision must be granted or revoked", ErrInvalidInput)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	current, err := s.consents.GetByDriver(ctx, driverID)
	if err != nil {
		return nil, classifyStoreError(err, "consent")
	}
	if current == nil {
		return nil, fmt.Errorf("%w: no consent requested for driver %s", ErrNotFound, driverID)
	}

	now := s.now().UTC()
	effective := current.EffectiveStatus(now)
	if effective == target {
		return current, nil
	}
	if !effective.CanTransitionTo(target) {
		return nil, fmt.Errorf("%w: consent %s -> %s", ErrIllegalTransition, effective, target)
	}

	next := *current
	next.Status = target
	next.UpdatedAt = now
	switch target {
	case model.ConsentGranted:
		expires := now.Add(s.ttl)
		next.GrantedAt = &now
		next.ExpiresAt = &expires
		next.RevokedAt = nil
	case model.ConsentRevoked:
		next.RevokedAt = &now
	case model.ConsentNotRequested, model.ConsentRequested, model.ConsentExpired:
	}

	saved, err := s.consents.Save(ctx, next)
	if err != nil {
		return nil, classifyStoreError(err, "consent")
	}

	s.log.Info().
		Str("driver_id", driverID.String()).
		Str("status", string(saved.Status)).
		Msg("consent resolved")
	return saved, nil
}

// Status reads the driver's consent with expiry evaluated against now. It
// never writes.
func (s *ConsentService) Status(ctx context.Context, principal model.Principal, driverID uuid.UUID) (*ConsentView, error) {
	if !principal.CanRead() {
		return nil, ErrPermissionDenied
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	current, err := s.consents.GetByDriver(ctx, driverID)
	if err != nil {
		return nil, classifyStoreError(err, "consent")
	}

	now := s.now().UTC()
	return &ConsentView{
		DriverID:  driverID,
		Consent:   current,
		Effective: current.EffectiveStatus(now),
		Usable:    current.IsUsable(now),
	}, nil
}

// Consume links a granted consent to an active trip of the same driver.
func (s *ConsentService) Consume(ctx context.Context, principal model.Principal, consentID, tripID uuid.UUID) (*model.Consent, error) {
	if !principal.CanManageTrips() {
		return nil, ErrPermissionDenied
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	consent, err := s.consents.GetByID(ctx, consentID)
	if err != nil {
		return nil, classifyStoreError(err, "consent")
	}
	now := s.now().UTC()
	if effective := consent.EffectiveStatus(now); effective != model.ConsentGranted {
		return nil, fmt.Errorf("%w: consent is %s, only granted consent can be linked", ErrIllegalTransition, effective)
	}

	trip, err := s.trips.GetTrip(ctx, tripID)
	if err != nil {
		return nil, classifyStoreError(err, "trip")
	}
	if !trip.Status.IsActive() {
		return nil, fmt.Errorf("%w: trip %s is %s", ErrInvalidInput, trip.Code, trip.Status)
	}
	if trip.DriverID == nil || *trip.DriverID != consent.DriverID {
		return nil, fmt.Errorf("%w: consent belongs to a driver not assigned to trip %s", ErrInvalidInput, trip.Code)
	}

	if err := s.consents.Consume(ctx, consentID, tripID, now); err != nil {
		return nil, classifyStoreError(err, "consent")
	}

	linked := *consent
	linked.TripID = &tripID
	linked.UpdatedAt = now

	s.log.Info().
		Str("consent_id", consentID.String()).
		Str("trip_code", trip.Code).
		Msg("consent linked to trip")
	return &linked, nil
}

func normalizeMSISDN(raw string) string {
	replacer := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "")
	return replacer.Replace(strings.TrimSpace(raw))
}
