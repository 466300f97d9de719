package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter("production", &buf)

	log.Info().Str("trip_code", "TR-20260520-ABC123").Msg("trip created")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "trip created", entry["message"])
	assert.Equal(t, "TR-20260520-ABC123", entry["trip_code"])
	assert.Equal(t, "trips", entry["service"])
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())
}

func TestNew_ProductionSkipsDebug(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter("production", &buf)

	log.Debug().Msg("noise")
	assert.Zero(t, buf.Len())
}

func TestNew_DevelopmentIsHumanReadable(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter("development", &buf)

	log.Debug().Msg("evaluating candidate")
	assert.Contains(t, buf.String(), "evaluating candidate")
	assert.Equal(t, zerolog.DebugLevel, log.GetLevel())
}
