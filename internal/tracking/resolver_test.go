package tracking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nurpe/tms-trips/internal/model"
)

func TestResolve_DecisionTable(t *testing.T) {
	tests := []struct {
		name     string
		in       Input
		expected model.TrackingType
		warned   bool
	}{
		{"no vehicle", Input{DriverSelected: true, Consent: model.ConsentGranted}, model.TrackingNone, false},
		{"vehicle with device", Input{VehicleSelected: true, HasChannel: true, DriverSelected: true}, model.TrackingGPS, false},
		{"vehicle with device no driver", Input{VehicleSelected: true, HasChannel: true}, model.TrackingGPS, false},
		{"no device no driver", Input{VehicleSelected: true}, model.TrackingManual, false},
		{"no device consent granted", Input{VehicleSelected: true, DriverSelected: true, Consent: model.ConsentGranted}, model.TrackingSIM, false},
		{"no device consent pending", Input{VehicleSelected: true, DriverSelected: true, Consent: model.ConsentRequested}, model.TrackingManual, true},
		{"no device consent missing", Input{VehicleSelected: true, DriverSelected: true, Consent: model.ConsentNotRequested}, model.TrackingManual, true},
		{"no device consent expired", Input{VehicleSelected: true, DriverSelected: true, Consent: model.ConsentExpired}, model.TrackingManual, true},
		{"no device consent held elsewhere", Input{VehicleSelected: true, DriverSelected: true, Consent: model.ConsentGranted, ConsentInUse: true}, model.TrackingManual, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := Resolve(tt.in)
			assert.Equal(t, tt.expected, decision.Type)
			assert.False(t, decision.Findings.HasBlocking())
			if tt.warned {
				require.Len(t, decision.Findings, 1)
				assert.Equal(t, CodeConsentRequired, decision.Findings[0].Code)
			} else {
				assert.Empty(t, decision.Findings)
			}
		})
	}
}

func TestResolve_Deterministic(t *testing.T) {
	in := Input{VehicleSelected: true, DriverSelected: true, Consent: model.ConsentRevoked}
	assert.Equal(t, Resolve(in), Resolve(in))
}

func TestResolve_RequiredSIMWithoutConsentBlocks(t *testing.T) {
	sim := model.TrackingSIM
	decision := Resolve(Input{VehicleSelected: true, DriverSelected: true, Consent: model.ConsentRequested, Required: &sim})

	assert.True(t, decision.Findings.HasBlocking())
	assert.Equal(t, CodeSIMConsentMissing, decision.Findings.Blocking()[0].Code)
}

func TestResolve_RequiredSIMWithConsent(t *testing.T) {
	sim := model.TrackingSIM
	decision := Resolve(Input{VehicleSelected: true, HasChannel: true, DriverSelected: true, Consent: model.ConsentGranted, Required: &sim})

	assert.Equal(t, model.TrackingSIM, decision.Type)
	assert.Empty(t, decision.Findings)
}

func TestResolve_RequiredGPSWithoutDevice(t *testing.T) {
	gps := model.TrackingGPS
	decision := Resolve(Input{VehicleSelected: true, Required: &gps})

	assert.True(t, decision.Findings.HasBlocking())
	assert.Equal(t, CodeGPSChannelMissing, decision.Findings.Blocking()[0].Code)
}

func TestResolve_RequiredManualOverrides(t *testing.T) {
	manual := model.TrackingManual
	decision := Resolve(Input{VehicleSelected: true, HasChannel: true, Required: &manual})

	assert.Equal(t, model.TrackingManual, decision.Type)
	assert.Empty(t, decision.Findings)
}

func TestResolve_RequiredSIMWithConsentInUseBlocks(t *testing.T) {
	sim := model.TrackingSIM
	decision := Resolve(Input{VehicleSelected: true, DriverSelected: true, Consent: model.ConsentGranted, ConsentInUse: true, Required: &sim})

	assert.Equal(t, model.TrackingManual, decision.Type)
	require.True(t, decision.Findings.HasBlocking())
	assert.Equal(t, CodeSIMConsentMissing, decision.Findings.Blocking()[0].Code)
	assert.Contains(t, decision.Findings.Blocking()[0].Message, "another active trip")
}

func TestResolve_NoVehicleIsNoneWhateverIsRequired(t *testing.T) {
	for _, required := range []model.TrackingType{model.TrackingSIM, model.TrackingGPS, model.TrackingManual, model.TrackingNone} {
		t.Run(string(required), func(t *testing.T) {
			req := required
			decision := Resolve(Input{DriverSelected: true, Consent: model.ConsentGranted, Required: &req})

			assert.Equal(t, model.TrackingNone, decision.Type)
			blocking := required == model.TrackingSIM || required == model.TrackingGPS
			assert.Equal(t, blocking, decision.Findings.HasBlocking())
			if blocking {
				assert.Equal(t, CodeVehicleMissing, decision.Findings[0].Code)
			}
		})
	}
}
