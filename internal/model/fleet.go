package model

import (
	"time"

	"github.com/google/uuid"
)

type Vehicle struct {
	ID                 uuid.UUID
	Number             string
	TrackingChannelID  *uuid.UUID
	RegistrationExpiry *time.Time
	InsuranceExpiry    *time.Time
	PermitExpiry       *time.Time
	FitnessExpiry      *time.Time
	PollutionExpiry    *time.Time
	IsActive           bool
}

func (v *Vehicle) HasTrackingChannel() bool {
	return v != nil && v.TrackingChannelID != nil && *v.TrackingChannelID != uuid.Nil
}

type Driver struct {
	ID              uuid.UUID
	Name            string
	Mobile          string
	LicenseExpiry   *time.Time
	AadhaarVerified bool
	PanVerified     bool
	IsActive        bool
}

type Location struct {
	ID        uuid.UUID
	Name      string
	Latitude  *float64
	Longitude *float64
	Geohash   *string
}

func (l *Location) HasCoordinates() bool {
	return l != nil && l.Latitude != nil && l.Longitude != nil
}

// LocationSample is a recorded position. Only the newest sample per vehicle is read.
type LocationSample struct {
	VehicleID  *uuid.UUID
	DriverID   *uuid.UUID
	TripID     *uuid.UUID
	Latitude   float64
	Longitude  float64
	RecordedAt time.Time
}

type Lane struct {
	ID            uuid.UUID
	Code          string
	OriginID      uuid.UUID
	DestinationID uuid.UUID
	DistanceKm    *float64
	DurationMin   *int
	CreatedAt     time.Time
}
