package http

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nurpe/tms-trips/internal/model"
	"github.com/nurpe/tms-trips/internal/service"
)

type tripRequest struct {
	Code            string   `json:"code"`
	OriginID        string   `json:"origin_id"`
	DestinationID   string   `json:"destination_id"`
	VehicleID       string   `json:"vehicle_id"`
	DriverID        string   `json:"driver_id"`
	CustomerID      string   `json:"customer_id" binding:"required"`
	TransporterID   string   `json:"transporter_id" binding:"required"`
	PlannedStartAt  string   `json:"planned_start_at"`
	PlannedEndAt    string   `json:"planned_end_at"`
	TotalDistanceKm *float64 `json:"total_distance_km"`
	TrackingType    string   `json:"tracking_type"`
	ShipmentIDs     []string `json:"shipment_ids"`
	Reason          string   `json:"reason"`
}

func (r tripRequest) toCandidate() (service.TripCandidate, error) {
	var (
		candidate = service.TripCandidate{
			Code:            strings.TrimSpace(r.Code),
			TotalDistanceKm: r.TotalDistanceKm,
			Reason:          r.Reason,
		}
		err error
	)

	if candidate.CustomerID, err = parseID("customer_id", r.CustomerID); err != nil {
		return candidate, err
	}
	if candidate.TransporterID, err = parseID("transporter_id", r.TransporterID); err != nil {
		return candidate, err
	}
	refs := []struct {
		field string
		raw   string
		dst   **uuid.UUID
	}{
		{"origin_id", r.OriginID, &candidate.OriginID},
		{"destination_id", r.DestinationID, &candidate.DestinationID},
		{"vehicle_id", r.VehicleID, &candidate.VehicleID},
		{"driver_id", r.DriverID, &candidate.DriverID},
	}
	for _, ref := range refs {
		if *ref.dst, err = parseOptionalID(ref.field, ref.raw); err != nil {
			return candidate, err
		}
	}

	if candidate.PlannedStartAt, err = parseOptionalTime("planned_start_at", r.PlannedStartAt); err != nil {
		return candidate, err
	}
	if candidate.PlannedEndAt, err = parseOptionalTime("planned_end_at", r.PlannedEndAt); err != nil {
		return candidate, err
	}

	if strings.TrimSpace(r.TrackingType) != "" {
		tracking, err := model.ParseTrackingType(r.TrackingType)
		if err != nil {
			return candidate, fmt.Errorf("%w: %v", service.ErrInvalidInput, err)
		}
		candidate.RequiredTracking = &tracking
	}

	for _, raw := range r.ShipmentIDs {
		id, err := parseID("shipment_ids", raw)
		if err != nil {
			return candidate, err
		}
		candidate.ShipmentIDs = append(candidate.ShipmentIDs, id)
	}
	return candidate, nil
}

type statusRequest struct {
	Status         string `json:"status" binding:"required"`
	ClosureRemarks string `json:"closure_remarks"`
}

type consentRequest struct {
	DriverID string `json:"driver_id" binding:"required"`
	MSISDN   string `json:"msisdn" binding:"required"`
	TripID   string `json:"trip_id"`
}

type decisionRequest struct {
	Decision string `json:"decision" binding:"required"`
}

type consumeRequest struct {
	TripID string `json:"trip_id" binding:"required"`
}

type tripResponse struct {
	ID                uuid.UUID          `json:"id"`
	Code              string             `json:"code"`
	Status            model.TripStatus   `json:"status"`
	OriginID          *uuid.UUID         `json:"origin_id"`
	DestinationID     *uuid.UUID         `json:"destination_id"`
	VehicleID         *uuid.UUID         `json:"vehicle_id"`
	DriverID          *uuid.UUID         `json:"driver_id"`
	CustomerID        uuid.UUID          `json:"customer_id"`
	TransporterID     uuid.UUID          `json:"transporter_id"`
	LaneID            *uuid.UUID         `json:"lane_id"`
	TrackingType      model.TrackingType `json:"tracking_type"`
	TrackingChannelID *uuid.UUID         `json:"tracking_channel_id"`
	ConsentID         *uuid.UUID         `json:"consent_id"`
	PlannedStartAt    *time.Time         `json:"planned_start_at"`
	PlannedEndAt      *time.Time         `json:"planned_end_at"`
	ActualStartAt     *time.Time         `json:"actual_start_at"`
	ActualEndAt       *time.Time         `json:"actual_end_at"`
	TotalDistanceKm   *float64           `json:"total_distance_km"`
	ClosedAt          *time.Time         `json:"closed_at,omitempty"`
	ClosedBy          *uuid.UUID         `json:"closed_by,omitempty"`
	ClosureRemarks    *string            `json:"closure_remarks,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

func toTripResponse(t *model.Trip) tripResponse {
	return tripResponse{
		ID:                t.ID,
		Code:              t.Code,
		Status:            t.Status,
		OriginID:          t.OriginID,
		DestinationID:     t.DestinationID,
		VehicleID:         t.VehicleID,
		DriverID:          t.DriverID,
		CustomerID:        t.CustomerID,
		TransporterID:     t.TransporterID,
		LaneID:            t.LaneID,
		TrackingType:      t.TrackingType,
		TrackingChannelID: t.TrackingChannelID,
		ConsentID:         t.ConsentID,
		PlannedStartAt:    t.PlannedStartAt,
		PlannedEndAt:      t.PlannedEndAt,
		ActualStartAt:     t.ActualStartAt,
		ActualEndAt:       t.ActualEndAt,
		TotalDistanceKm:   t.TotalDistanceKm,
		ClosedAt:          t.ClosedAt,
		ClosedBy:          t.ClosedBy,
		ClosureRemarks:    t.ClosureRemarks,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
}

type admissionResponse struct {
	Trip     tripResponse   `json:"trip"`
	Verdict  model.Verdict  `json:"verdict"`
	Warnings model.Findings `json:"warnings"`
}

type evaluationResponse struct {
	Verdict           model.Verdict      `json:"verdict"`
	Findings          model.Findings     `json:"findings"`
	TrackingType      model.TrackingType `json:"tracking_type"`
	TrackingChannelID *uuid.UUID         `json:"tracking_channel_id"`
	ConsentID         *uuid.UUID         `json:"consent_id"`
	LaneID            *uuid.UUID         `json:"lane_id"`
}

func toEvaluationResponse(e *service.Evaluation) evaluationResponse {
	resp := evaluationResponse{
		Verdict:           e.Verdict,
		Findings:          nonNil(e.Findings),
		TrackingType:      e.TrackingType,
		TrackingChannelID: e.TrackingChannelID,
		ConsentID:         e.ConsentID,
	}
	if e.Lane != nil {
		resp.LaneID = &e.Lane.ID
	}
	return resp
}

type auditResponse struct {
	ID            uuid.UUID  `json:"id"`
	PrevVehicleID *uuid.UUID `json:"prev_vehicle_id"`
	NewVehicleID  *uuid.UUID `json:"new_vehicle_id"`
	PrevDriverID  *uuid.UUID `json:"prev_driver_id"`
	NewDriverID   *uuid.UUID `json:"new_driver_id"`
	Reason        string     `json:"reason"`
	ChangedBy     *uuid.UUID `json:"changed_by"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toAuditResponse(a model.TripAssignmentAudit) auditResponse {
	return auditResponse{
		ID:            a.ID,
		PrevVehicleID: a.PrevVehicleID,
		NewVehicleID:  a.NewVehicleID,
		PrevDriverID:  a.PrevDriverID,
		NewDriverID:   a.NewDriverID,
		Reason:        a.Reason,
		ChangedBy:     a.ChangedBy,
		CreatedAt:     a.CreatedAt,
	}
}

type consentResponse struct {
	ID          uuid.UUID           `json:"id"`
	DriverID    uuid.UUID           `json:"driver_id"`
	MSISDN      string              `json:"msisdn"`
	Status      model.ConsentStatus `json:"status"`
	RequestedAt *time.Time          `json:"requested_at"`
	GrantedAt   *time.Time          `json:"granted_at"`
	RevokedAt   *time.Time          `json:"revoked_at"`
	ExpiresAt   *time.Time          `json:"expires_at"`
	TripID      *uuid.UUID          `json:"trip_id"`
}

func toConsentResponse(c *model.Consent) *consentResponse {
	if c == nil {
		return nil
	}
	return &consentResponse{
		ID:          c.ID,
		DriverID:    c.DriverID,
		MSISDN:      c.MSISDN,
		Status:      c.Status,
		RequestedAt: c.RequestedAt,
		GrantedAt:   c.GrantedAt,
		RevokedAt:   c.RevokedAt,
		ExpiresAt:   c.ExpiresAt,
		TripID:      c.TripID,
	}
}

type consentStatusResponse struct {
	DriverID  uuid.UUID           `json:"driver_id"`
	Effective model.ConsentStatus `json:"effective_status"`
	Usable    bool                `json:"usable"`
	Consent   *consentResponse    `json:"consent"`
}

type shipmentResponse struct {
	ID               uuid.UUID              `json:"id"`
	Code             string                 `json:"code"`
	Status           model.ShipmentStatus   `json:"status"`
	NextStatuses     []model.ShipmentStatus `json:"next_statuses"`
	TripID           *uuid.UUID             `json:"trip_id"`
	PickupLocationID uuid.UUID              `json:"pickup_location_id"`
	DropLocationID   uuid.UUID              `json:"drop_location_id"`
	CustomerID       uuid.UUID              `json:"customer_id"`
	MappedAt         *time.Time             `json:"mapped_at"`
}

func toShipmentResponse(s model.Shipment) shipmentResponse {
	next := s.Status.NextStatuses()
	if next == nil {
		next = []model.ShipmentStatus{}
	}
	return shipmentResponse{
		ID:               s.ID,
		Code:             s.Code,
		Status:           s.Status,
		NextStatuses:     next,
		TripID:           s.TripID,
		PickupLocationID: s.PickupLocationID,
		DropLocationID:   s.DropLocationID,
		CustomerID:       s.CustomerID,
		MappedAt:         s.MappedAt,
	}
}

func nonNil(findings model.Findings) model.Findings {
	if findings == nil {
		return model.Findings{}
	}
	return findings
}

func parseID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid %s", service.ErrInvalidInput, field)
	}
	return id, nil
}

func parseOptionalID(field, raw string) (*uuid.UUID, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	id, err := parseID(field, raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func parseOptionalTime(field, raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	parsed, err := parseDate(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid %s", service.ErrInvalidInput, field)
	}
	return &parsed, nil
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, service.ErrInvalidInput
	}
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, service.ErrInvalidInput
}
