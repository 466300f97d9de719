package proximity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nurpe/tms-trips/internal/model"
)

func origin(lat, lon float64) *model.Location {
	return &model.Location{Name: "Delhi DC", Latitude: &lat, Longitude: &lon}
}

func sampleAt(lat, lon float64) *model.LocationSample {
	return &model.LocationSample{Latitude: lat, Longitude: lon, RecordedAt: time.Now()}
}

func TestValidate_OutsideRadius(t *testing.T) {
	v := NewValidator(50)
	// 0.72 degrees of latitude is about 80 km
	findings := v.Validate(sampleAt(28.6139+0.72, 77.2090), origin(28.6139, 77.2090))

	require.Len(t, findings, 1)
	assert.Equal(t, model.SeverityError, findings[0].Severity)
	assert.Equal(t, CodeOutsideRadius, findings[0].Code)
	assert.Contains(t, findings[0].Message, "80 km")
	assert.Contains(t, findings[0].Message, "50 km")
}

func TestValidate_InsideRadius(t *testing.T) {
	v := NewValidator(50)
	findings := v.Validate(sampleAt(28.6139+0.2, 77.2090), origin(28.6139, 77.2090))
	assert.Empty(t, findings)
}

func TestValidate_NoHistoryWarns(t *testing.T) {
	v := NewValidator(50)
	findings := v.Validate(nil, origin(28.6139, 77.2090))

	require.Len(t, findings, 1)
	assert.Equal(t, model.SeverityWarning, findings[0].Severity)
	assert.Equal(t, CodeNoLocationHistory, findings[0].Code)
}

func TestValidate_OriginWithoutCoordinates(t *testing.T) {
	v := NewValidator(50)
	assert.Empty(t, v.Validate(sampleAt(0, 0), &model.Location{Name: "unknown"}))
}

func TestApplies(t *testing.T) {
	v := NewValidator(0)
	assert.Equal(t, DefaultRadiusKm, v.RadiusKm())
	assert.False(t, v.Applies(nil, origin(1, 1)))
	assert.False(t, v.Applies(&model.Vehicle{}, &model.Location{}))
	assert.True(t, v.Applies(&model.Vehicle{}, origin(1, 1)))
}

func TestValidate_ConfigurableRadius(t *testing.T) {
	v := NewValidator(100)
	findings := v.Validate(sampleAt(28.6139+0.72, 77.2090), origin(28.6139, 77.2090))
	assert.Empty(t, findings)
}
