package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ShipmentStatus string

const (
	ShipmentStatusCreated        ShipmentStatus = "created"
	ShipmentStatusConfirmed      ShipmentStatus = "confirmed"
	ShipmentStatusMapped         ShipmentStatus = "mapped"
	ShipmentStatusInPickup       ShipmentStatus = "in_pickup"
	ShipmentStatusInTransit      ShipmentStatus = "in_transit"
	ShipmentStatusOutForDelivery ShipmentStatus = "out_for_delivery"
	ShipmentStatusDelivered      ShipmentStatus = "delivered"
	ShipmentStatusSuccess        ShipmentStatus = "success"
	ShipmentStatusNDR            ShipmentStatus = "ndr"
	ShipmentStatusReturned       ShipmentStatus = "returned"
)

func ParseShipmentStatus(raw string) (ShipmentStatus, error) {
	status := ShipmentStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch status {
	case ShipmentStatusCreated, ShipmentStatusConfirmed, ShipmentStatusMapped,
		ShipmentStatusInPickup, ShipmentStatusInTransit, ShipmentStatusOutForDelivery,
		ShipmentStatusDelivered, ShipmentStatusSuccess, ShipmentStatusNDR, ShipmentStatusReturned:
		return status, nil
	default:
		return "", fmt.Errorf("unknown shipment status %q", raw)
	}
}

// NextStatuses lists the lifecycle edges leaving s. Status changes are direct
// sets; this is what the operator screens offer.
func (s ShipmentStatus) NextStatuses() []ShipmentStatus {
	switch s {
	case ShipmentStatusCreated:
		return []ShipmentStatus{ShipmentStatusConfirmed}
	case ShipmentStatusConfirmed:
		return []ShipmentStatus{ShipmentStatusMapped}
	case ShipmentStatusMapped:
		return []ShipmentStatus{ShipmentStatusInPickup}
	case ShipmentStatusInPickup:
		return []ShipmentStatus{ShipmentStatusInTransit}
	case ShipmentStatusInTransit:
		return []ShipmentStatus{ShipmentStatusOutForDelivery, ShipmentStatusNDR}
	case ShipmentStatusOutForDelivery:
		return []ShipmentStatus{ShipmentStatusDelivered, ShipmentStatusNDR}
	case ShipmentStatusDelivered:
		return []ShipmentStatus{ShipmentStatusSuccess}
	case ShipmentStatusNDR:
		return []ShipmentStatus{ShipmentStatusReturned}
	case ShipmentStatusSuccess, ShipmentStatusReturned:
		return nil
	default:
		return nil
	}
}

// IsMappable reports whether a shipment in this status can be attached to a trip.
func (s ShipmentStatus) IsMappable() bool {
	switch s {
	case ShipmentStatusCreated, ShipmentStatusConfirmed:
		return true
	case ShipmentStatusMapped, ShipmentStatusInPickup, ShipmentStatusInTransit,
		ShipmentStatusOutForDelivery, ShipmentStatusDelivered, ShipmentStatusSuccess,
		ShipmentStatusNDR, ShipmentStatusReturned:
		return false
	default:
		return false
	}
}

func (s ShipmentStatus) IsDeletable() bool {
	return s == ShipmentStatusCreated
}

type Shipment struct {
	ID               uuid.UUID
	Code             string
	Status           ShipmentStatus
	TripID           *uuid.UUID
	PickupLocationID uuid.UUID
	DropLocationID   uuid.UUID
	CustomerID       uuid.UUID
	MappedAt         *time.Time
	CreatedAt        time.Time
}
