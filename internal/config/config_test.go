package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViper_Defaults(t *testing.T) {
	v := viper.New()
	v.Set("DB_DSN", "postgres://localhost/tms")
	v.Set("JWT_ACCESS_SECRET", "secret")

	cfg, err := fromViper(v)
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 7091, cfg.HTTP.Port)
	assert.Equal(t, []string{"*"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, 50.0, cfg.Trips.ProximityRadiusKm)
	assert.Equal(t, 30, cfg.Trips.ExpiryWarningDays)
	assert.False(t, cfg.Trips.StrictMissingDocuments)
	assert.Equal(t, 5*time.Second, cfg.Trips.StoreTimeout)
	assert.Equal(t, "LN", cfg.Trips.LaneCodePrefix)
	assert.Equal(t, "TR", cfg.Trips.TripCodePrefix)
	assert.Equal(t, 72*time.Hour, cfg.Consent.TTL)
	assert.Equal(t, "consent/decisions/+", cfg.MQTT.DecisionTopic)
}

func TestFromViper_Overrides(t *testing.T) {
	v := viper.New()
	v.Set("DB_DSN", "postgres://localhost/tms")
	v.Set("JWT_ACCESS_SECRET", "secret")
	v.Set("TRIPS_PROXIMITY_RADIUS_KM", "25")
	v.Set("TRIPS_STRICT_MISSING_DOCUMENTS", "true")
	v.Set("CONSENT_TTL", "24h")
	v.Set("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := fromViper(v)
	require.NoError(t, err)

	assert.Equal(t, 25.0, cfg.Trips.ProximityRadiusKm)
	assert.True(t, cfg.Trips.StrictMissingDocuments)
	assert.Equal(t, 24*time.Hour, cfg.Consent.TTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.AllowedOrigins)
}

func TestFromViper_RequiredKeys(t *testing.T) {
	v := viper.New()
	_, err := fromViper(v)
	assert.EqualError(t, err, "DB_DSN is required")

	v.Set("DB_DSN", "postgres://localhost/tms")
	_, err = fromViper(v)
	assert.EqualError(t, err, "JWT_ACCESS_SECRET is required")
}

func TestParseList(t *testing.T) {
	assert.Nil(t, parseList("  "))
	assert.Equal(t, []string{"a", "b"}, parseList("a, ,b,"))
}
