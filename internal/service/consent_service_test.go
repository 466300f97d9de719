package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nurpe/tms-trips/internal/model"
)

var integration = model.Principal{UserID: uuid.New(), Role: model.RoleIntegration}

func TestConsentRequest_CreatesPendingRecordAndNotifies(t *testing.T) {
	f := newFixture()
	driverID := uuid.New()

	consent, err := f.consents.Request(context.Background(), f.dispatcher, RequestConsentInput{
		DriverID: driverID,
		MSISDN:   "+91 98000-00001",
	})
	require.NoError(t, err)

	assert.Equal(t, model.ConsentRequested, consent.Status)
	assert.Equal(t, "+919800000001", consent.MSISDN)
	require.NotNil(t, consent.ExpiresAt)
	assert.Equal(t, f.now.Add(72*time.Hour), *consent.ExpiresAt)
	require.Len(t, f.notifier.requests, 1)
	assert.Equal(t, driverID, f.notifier.requests[0].DriverID)
}

func TestConsentRequest_RejectsBadMSISDN(t *testing.T) {
	f := newFixture()

	_, err := f.consents.Request(context.Background(), f.dispatcher, RequestConsentInput{DriverID: uuid.New(), MSISDN: "12345"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Zero(t, f.store.consentSaves)
}

func TestConsentRequest_GrantedConsentReturnedUnchanged(t *testing.T) {
	f := newFixture()
	driver := f.compliantDriver()
	granted := f.grantConsent(driver.ID)

	consent, err := f.consents.Request(context.Background(), f.dispatcher, RequestConsentInput{DriverID: driver.ID, MSISDN: granted.MSISDN})
	require.NoError(t, err)

	assert.Equal(t, model.ConsentGranted, consent.Status)
	assert.Zero(t, f.store.consentSaves)
	assert.Empty(t, f.notifier.requests)
}

func TestConsentResolve_GrantThenRevoke(t *testing.T) {
	f := newFixture()
	driverID := uuid.New()
	requested, err := f.consents.Request(context.Background(), f.dispatcher, RequestConsentInput{DriverID: driverID, MSISDN: "9800000001"})
	require.NoError(t, err)

	granted, err := f.consents.Resolve(context.Background(), integration, driverID, "allowed")
	require.NoError(t, err)
	assert.Equal(t, requested.ID, granted.ID)
	assert.Equal(t, model.ConsentGranted, granted.Status)
	require.NotNil(t, granted.GrantedAt)

	again, err := f.consents.Resolve(context.Background(), integration, driverID, "granted")
	require.NoError(t, err)
	assert.Equal(t, granted.GrantedAt, again.GrantedAt)
	saves := f.store.consentSaves

	revoked, err := f.consents.Resolve(context.Background(), integration, driverID, "denied")
	require.NoError(t, err)
	assert.Equal(t, model.ConsentRevoked, revoked.Status)
	require.NotNil(t, revoked.RevokedAt)
	assert.Equal(t, saves+1, f.store.consentSaves)
}

func TestConsentResolve_Errors(t *testing.T) {
	f := newFixture()

	_, err := f.consents.Resolve(context.Background(), f.dispatcher, uuid.New(), "granted")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = f.consents.Resolve(context.Background(), integration, uuid.New(), "granted")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.consents.Resolve(context.Background(), integration, uuid.New(), "pending")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.consents.Resolve(context.Background(), integration, uuid.New(), "maybe")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestConsentResolve_RevokedCannotBeGrantedWithoutNewRequest(t *testing.T) {
	f := newFixture()
	driverID := uuid.New()
	_, err := f.consents.Request(context.Background(), f.dispatcher, RequestConsentInput{DriverID: driverID, MSISDN: "9800000001"})
	require.NoError(t, err)
	_, err = f.consents.Resolve(context.Background(), integration, driverID, "revoked")
	require.NoError(t, err)

	_, err = f.consents.Resolve(context.Background(), integration, driverID, "granted")
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestConsentStatus_ExpiryIsEvaluatedWithoutWriting(t *testing.T) {
	f := newFixture()
	driver := f.compliantDriver()
	consent := f.grantConsent(driver.ID)
	expired := f.now.Add(-time.Minute)
	consent.ExpiresAt = &expired
	f.store.consents[driver.ID] = consent

	view, err := f.consents.Status(context.Background(), f.dispatcher, driver.ID)
	require.NoError(t, err)

	assert.Equal(t, model.ConsentExpired, view.Effective)
	assert.False(t, view.Usable)
	assert.Equal(t, model.ConsentGranted, f.store.consents[driver.ID].Status)
	assert.Zero(t, f.store.consentSaves)
}

func TestConsentStatus_NoRecord(t *testing.T) {
	f := newFixture()

	view, err := f.consents.Status(context.Background(), f.dispatcher, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, view.Consent)
	assert.Equal(t, model.ConsentNotRequested, view.Effective)
}

func TestConsentRequest_ExpiredConsentCanBeRequestedAgain(t *testing.T) {
	f := newFixture()
	driver := f.compliantDriver()
	consent := f.grantConsent(driver.ID)
	expired := f.now.Add(-time.Minute)
	consent.ExpiresAt = &expired
	f.store.consents[driver.ID] = consent

	renewed, err := f.consents.Request(context.Background(), f.dispatcher, RequestConsentInput{DriverID: driver.ID, MSISDN: consent.MSISDN})
	require.NoError(t, err)
	assert.Equal(t, consent.ID, renewed.ID)
	assert.Equal(t, model.ConsentRequested, renewed.Status)
}

func TestConsentConsume(t *testing.T) {
	f := newFixture()
	vehicle := f.compliantVehicle(true)
	driver := f.compliantDriver()
	created, err := f.admission.Create(context.Background(), f.dispatcher, f.candidate(&vehicle, &driver))
	require.NoError(t, err)

	requested, err := f.consents.Request(context.Background(), f.dispatcher, RequestConsentInput{DriverID: driver.ID, MSISDN: driver.Mobile})
	require.NoError(t, err)

	_, err = f.consents.Consume(context.Background(), f.dispatcher, requested.ID, created.Trip.ID)
	assert.ErrorIs(t, err, ErrIllegalTransition)

	_, err = f.consents.Resolve(context.Background(), integration, driver.ID, "granted")
	require.NoError(t, err)

	linked, err := f.consents.Consume(context.Background(), f.dispatcher, requested.ID, created.Trip.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Trip.ID, *linked.TripID)
	assert.Equal(t, created.Trip.ID, *f.store.consents[driver.ID].TripID)
	trip := f.store.trips[created.Trip.ID]
	require.NotNil(t, trip.ConsentID)
	assert.Equal(t, requested.ID, *trip.ConsentID)
	assert.Equal(t, model.TrackingGPS, trip.TrackingType)
}

func TestConsentConsume_WrongDriver(t *testing.T) {
	f := newFixture()
	vehicle := f.compliantVehicle(true)
	driver := f.compliantDriver()
	created, err := f.admission.Create(context.Background(), f.dispatcher, f.candidate(&vehicle, &driver))
	require.NoError(t, err)

	stranger := f.grantConsent(uuid.New())
	_, err = f.consents.Consume(context.Background(), f.dispatcher, stranger.ID, created.Trip.ID)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
