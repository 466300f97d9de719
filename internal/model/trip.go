package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type TripStatus string

const (
	TripStatusCreated   TripStatus = "created"
	TripStatusOngoing   TripStatus = "ongoing"
	TripStatusOnHold    TripStatus = "on_hold"
	TripStatusCompleted TripStatus = "completed"
	TripStatusClosed    TripStatus = "closed"
	TripStatusCancelled TripStatus = "cancelled"
)

// ActiveTripStatuses are the statuses that hold a vehicle and a driver.
var ActiveTripStatuses = []TripStatus{TripStatusCreated, TripStatusOngoing, TripStatusOnHold}

func ParseTripStatus(raw string) (TripStatus, error) {
	status := TripStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch status {
	case TripStatusCreated, TripStatusOngoing, TripStatusOnHold,
		TripStatusCompleted, TripStatusClosed, TripStatusCancelled:
		return status, nil
	default:
		return "", fmt.Errorf("unknown trip status %q", raw)
	}
}

// IsActive reports whether the trip still holds its vehicle and driver.
func (s TripStatus) IsActive() bool {
	switch s {
	case TripStatusCreated, TripStatusOngoing, TripStatusOnHold:
		return true
	case TripStatusCompleted, TripStatusClosed, TripStatusCancelled:
		return false
	default:
		return false
	}
}

// RequiresAssignment reports whether origin, destination, vehicle and driver
// must stay populated on edit.
func (s TripStatus) RequiresAssignment() bool {
	switch s {
	case TripStatusOngoing, TripStatusOnHold:
		return true
	case TripStatusCreated, TripStatusCompleted, TripStatusClosed, TripStatusCancelled:
		return false
	default:
		return false
	}
}

func (s TripStatus) CanTransitionTo(next TripStatus) bool {
	switch s {
	case TripStatusCreated:
		return next == TripStatusOngoing || next == TripStatusOnHold || next == TripStatusCancelled
	case TripStatusOngoing:
		return next == TripStatusOnHold || next == TripStatusCompleted || next == TripStatusCancelled
	case TripStatusOnHold:
		return next == TripStatusOngoing || next == TripStatusCancelled
	case TripStatusCompleted:
		return next == TripStatusClosed
	case TripStatusClosed, TripStatusCancelled:
		return false
	default:
		return false
	}
}

type TrackingType string

const (
	TrackingNone   TrackingType = "none"
	TrackingGPS    TrackingType = "gps"
	TrackingSIM    TrackingType = "sim"
	TrackingManual TrackingType = "manual"
)

func ParseTrackingType(raw string) (TrackingType, error) {
	tracking := TrackingType(strings.ToLower(strings.TrimSpace(raw)))
	switch tracking {
	case TrackingNone, TrackingGPS, TrackingSIM, TrackingManual:
		return tracking, nil
	default:
		return "", fmt.Errorf("unknown tracking type %q", raw)
	}
}

type Trip struct {
	ID                uuid.UUID
	Code              string
	Status            TripStatus
	OriginID          *uuid.UUID
	DestinationID     *uuid.UUID
	VehicleID         *uuid.UUID
	DriverID          *uuid.UUID
	CustomerID        uuid.UUID
	TransporterID     uuid.UUID
	LaneID            *uuid.UUID
	TrackingType      TrackingType
	TrackingChannelID *uuid.UUID
	ConsentID         *uuid.UUID
	PlannedStartAt    *time.Time
	PlannedEndAt      *time.Time
	ActualStartAt     *time.Time
	ActualEndAt       *time.Time
	TotalDistanceKm   *float64
	ClosedAt          *time.Time
	ClosedBy          *uuid.UUID
	ClosureRemarks    *string
	CreatedBy         *uuid.UUID
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TripShipment links a shipment to a trip in pickup order.
type TripShipment struct {
	TripID        uuid.UUID
	ShipmentID    uuid.UUID
	SequenceOrder int
}

// TripAssignmentAudit records a vehicle or driver reassignment.
type TripAssignmentAudit struct {
	ID            uuid.UUID
	TripID        uuid.UUID
	PrevVehicleID *uuid.UUID
	NewVehicleID  *uuid.UUID
	PrevDriverID  *uuid.UUID
	NewDriverID   *uuid.UUID
	Reason        string
	ChangedBy     *uuid.UUID
	CreatedAt     time.Time
}

// SameID compares two optional references.
func SameID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
