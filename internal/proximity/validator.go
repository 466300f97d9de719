// Package proximity checks that a vehicle was last seen near the trip origin.
package proximity

import (
	"fmt"

	"github.com/nurpe/tms-trips/internal/geo"
	"github.com/nurpe/tms-trips/internal/model"
)

const DefaultRadiusKm = 50.0

const (
	CodeNoLocationHistory = "no_location_history"
	CodeOutsideRadius     = "vehicle_outside_radius"
)

type Validator struct {
	radiusKm float64
}

func NewValidator(radiusKm float64) *Validator {
	if radiusKm <= 0 {
		radiusKm = DefaultRadiusKm
	}
	return &Validator{radiusKm: radiusKm}
}

func (v *Validator) RadiusKm() float64 {
	return v.radiusKm
}

// Applies reports whether the check runs for this pair. It needs a vehicle
// and an origin with coordinates.
func (v *Validator) Applies(vehicle *model.Vehicle, origin *model.Location) bool {
	return vehicle != nil && origin.HasCoordinates()
}

// Validate compares the latest sample with the origin. sample is nil when the
// vehicle has no location history.
func (v *Validator) Validate(sample *model.LocationSample, origin *model.Location) model.Findings {
	if !origin.HasCoordinates() {
		return nil
	}
	if sample == nil {
		return model.Findings{model.WarningFinding("vehicle_id", CodeNoLocationHistory,
			"no location history for vehicle, proximity to origin unverifiable")}
	}

	distance := geo.HaversineKm(
		geo.Point{Lat: sample.Latitude, Lon: sample.Longitude},
		geo.Point{Lat: *origin.Latitude, Lon: *origin.Longitude},
	)
	if distance > v.radiusKm {
		return model.Findings{model.ErrorFinding("vehicle_id", CodeOutsideRadius,
			fmt.Sprintf("vehicle was last seen %.0f km from origin %s, outside the %.0f km radius",
				distance, origin.Name, v.radiusKm))}
	}
	return nil
}
