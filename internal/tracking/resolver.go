// Package tracking decides which telemetry channel governs a trip.
package tracking

import (
	"fmt"
	"strings"

	"github.com/nurpe/tms-trips/internal/model"
)

const (
	CodeConsentRequired   = "consent_required"
	CodeSIMConsentMissing = "sim_consent_missing"
	CodeGPSChannelMissing = "gps_channel_missing"
	CodeVehicleMissing    = "tracking_vehicle_missing"
)

type Input struct {
	VehicleSelected bool
	HasChannel      bool
	DriverSelected  bool
	// Consent is the effective status, expiry already applied.
	Consent model.ConsentStatus
	// ConsentInUse marks a consent linked to another active trip.
	ConsentInUse bool
	// Required is the tracking type the caller insists on, if any.
	Required *model.TrackingType
}

type Decision struct {
	Type     model.TrackingType
	Findings model.Findings
}

// Resolve is a pure function of its input.
func Resolve(in Input) Decision {
	decision := Decision{Type: resolveType(in)}

	if decision.Type == model.TrackingManual && in.VehicleSelected && in.DriverSelected {
		decision.Findings = append(decision.Findings, consentWarning(in))
	}

	if in.Required == nil {
		return decision
	}
	if !in.VehicleSelected {
		if *in.Required == model.TrackingSIM || *in.Required == model.TrackingGPS {
			decision.Findings = append(decision.Findings, model.ErrorFinding("tracking_type", CodeVehicleMissing,
				fmt.Sprintf("%s tracking requires a vehicle", strings.ToUpper(string(*in.Required)))))
		}
		return decision
	}
	switch *in.Required {
	case model.TrackingSIM:
		if in.DriverSelected && in.consentUsable() {
			return Decision{Type: model.TrackingSIM}
		}
		current := string(in.Consent)
		if in.ConsentInUse {
			current = "in use on another active trip"
		}
		decision.Findings = append(decision.Findings, model.ErrorFinding("tracking_type", CodeSIMConsentMissing,
			fmt.Sprintf("SIM tracking requires a granted driver consent (current: %s)", current)))
	case model.TrackingGPS:
		if in.VehicleSelected && in.HasChannel {
			return Decision{Type: model.TrackingGPS}
		}
		decision.Findings = append(decision.Findings, model.ErrorFinding("tracking_type", CodeGPSChannelMissing,
			"GPS tracking requires a vehicle with a tracking device"))
	case model.TrackingManual, model.TrackingNone:
		return Decision{Type: *in.Required}
	}
	return decision
}

func resolveType(in Input) model.TrackingType {
	switch {
	case !in.VehicleSelected:
		return model.TrackingNone
	case in.HasChannel:
		return model.TrackingGPS
	case !in.DriverSelected:
		return model.TrackingManual
	case in.consentUsable():
		return model.TrackingSIM
	default:
		return model.TrackingManual
	}
}

func (in Input) consentUsable() bool {
	return in.Consent == model.ConsentGranted && !in.ConsentInUse
}

func consentWarning(in Input) model.Finding {
	msg := "SIM tracking consent has not been requested for this driver"
	if in.ConsentInUse {
		msg = "driver SIM tracking consent is linked to another active trip"
		return model.WarningFinding("driver_id", CodeConsentRequired, msg)
	}
	switch in.Consent {
	case model.ConsentRequested:
		msg = "SIM tracking consent requested, waiting for the driver to approve"
	case model.ConsentRevoked:
		msg = "driver denied or revoked SIM tracking consent, request it again to enable SIM tracking"
	case model.ConsentExpired:
		msg = "driver SIM tracking consent has expired, request it again to enable SIM tracking"
	}
	return model.WarningFinding("driver_id", CodeConsentRequired, msg)
}
