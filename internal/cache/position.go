package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nurpe/tms-trips/internal/model"
)

const keyPrefix = "trips:position:"

type LocationReader interface {
	LatestLocationSample(ctx context.Context, vehicleID uuid.UUID) (*model.LocationSample, error)
}

// PositionCache serves the latest vehicle sample from Redis and falls back to
// the store on a miss. Redis failures degrade to store reads.
type PositionCache struct {
	client *redis.Client
	next   LocationReader
	ttl    time.Duration
	log    zerolog.Logger
}

func NewPositionCache(client *redis.Client, next LocationReader, ttl time.Duration, log zerolog.Logger) *PositionCache {
	return &PositionCache{client: client, next: next, ttl: ttl, log: log}
}

func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})
}

type cachedSample struct {
	Found      bool      `json:"found"`
	Latitude   float64   `json:"lat,omitempty"`
	Longitude  float64   `json:"lon,omitempty"`
	RecordedAt time.Time `json:"recorded_at,omitempty"`
}

func (c *PositionCache) LatestLocationSample(ctx context.Context, vehicleID uuid.UUID) (*model.LocationSample, error) {
	key := keyPrefix + vehicleID.String()

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached cachedSample
		if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
			if !cached.Found {
				return nil, nil
			}
			return &model.LocationSample{
				VehicleID:  &vehicleID,
				Latitude:   cached.Latitude,
				Longitude:  cached.Longitude,
				RecordedAt: cached.RecordedAt,
			}, nil
		}
		c.log.Warn().Str("key", key).Msg("discarding malformed cached position")
	case errors.Is(err, redis.Nil):
	default:
		c.log.Warn().Err(err).Str("vehicle_id", vehicleID.String()).Msg("position cache read failed")
	}

	sample, err := c.next.LatestLocationSample(ctx, vehicleID)
	if err != nil {
		return nil, err
	}

	cached := cachedSample{Found: sample != nil}
	if sample != nil {
		cached.Latitude = sample.Latitude
		cached.Longitude = sample.Longitude
		cached.RecordedAt = sample.RecordedAt
	}
	if payload, err := json.Marshal(cached); err == nil {
		if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.log.Warn().Err(err).Str("vehicle_id", vehicleID.String()).Msg("position cache write failed")
		}
	}
	return sample, nil
}
