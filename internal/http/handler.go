package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nurpe/tms-trips/internal/http/middleware"
	"github.com/nurpe/tms-trips/internal/model"
	"github.com/nurpe/tms-trips/internal/service"
)

type TripService interface {
	Evaluate(ctx context.Context, principal model.Principal, candidate service.TripCandidate, tripID *uuid.UUID) (*service.Evaluation, error)
	Create(ctx context.Context, principal model.Principal, candidate service.TripCandidate) (*service.AdmissionResult, error)
	Update(ctx context.Context, principal model.Principal, tripID uuid.UUID, candidate service.TripCandidate) (*service.AdmissionResult, error)
	Transition(ctx context.Context, principal model.Principal, tripID uuid.UUID, input service.TransitionInput) (*model.Trip, error)
	AssignmentHistory(ctx context.Context, principal model.Principal, tripID uuid.UUID) ([]model.TripAssignmentAudit, error)
}

type ConsentService interface {
	Request(ctx context.Context, principal model.Principal, input service.RequestConsentInput) (*model.Consent, error)
	Resolve(ctx context.Context, principal model.Principal, driverID uuid.UUID, decision string) (*model.Consent, error)
	Status(ctx context.Context, principal model.Principal, driverID uuid.UUID) (*service.ConsentView, error)
	Consume(ctx context.Context, principal model.Principal, consentID, tripID uuid.UUID) (*model.Consent, error)
}

type ShipmentService interface {
	SetStatus(ctx context.Context, principal model.Principal, id uuid.UUID, status model.ShipmentStatus) (*model.Shipment, error)
	Delete(ctx context.Context, principal model.Principal, id uuid.UUID) error
	Candidates(ctx context.Context, principal model.Principal, tripID uuid.UUID) ([]model.Shipment, error)
}

type Handler struct {
	trips     TripService
	consents  ConsentService
	shipments ShipmentService
	log       zerolog.Logger
}

func NewHandler(trips TripService, consents ConsentService, shipments ShipmentService, log zerolog.Logger) *Handler {
	return &Handler{trips: trips, consents: consents, shipments: shipments, log: log}
}

func (h *Handler) Register(router *gin.Engine, authMiddleware gin.HandlerFunc) {
	protected := router.Group("/")
	protected.Use(authMiddleware)

	protected.POST("/trips/evaluate", h.evaluateTrip)
	protected.POST("/trips", h.createTrip)
	protected.PUT("/trips/:id", h.updateTrip)
	protected.POST("/trips/:id/status", h.transitionTrip)
	protected.GET("/trips/:id/shipment-candidates", h.shipmentCandidates)
	protected.GET("/trips/:id/assignments", h.assignmentHistory)

	protected.POST("/consents", h.requestConsent)
	protected.POST("/consents/:id/consume", h.consumeConsent)
	protected.GET("/drivers/:id/consent", h.consentStatus)
	protected.POST("/drivers/:id/consent/decision", h.resolveConsent)

	protected.POST("/shipments/:id/status", h.setShipmentStatus)
	protected.DELETE("/shipments/:id", h.deleteShipment)
}

func (h *Handler) evaluateTrip(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}

	var req tripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	candidate, err := req.toCandidate()
	if err != nil {
		h.handleError(c, err)
		return
	}

	var tripID *uuid.UUID
	if raw := c.Query("trip_id"); raw != "" {
		id, err := parseID("trip_id", raw)
		if err != nil {
			h.handleError(c, err)
			return
		}
		tripID = &id
	}

	evaluation, err := h.trips.Evaluate(c.Request.Context(), principal, candidate, tripID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, toEvaluationResponse(evaluation))
}

func (h *Handler) createTrip(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}

	var req tripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	candidate, err := req.toCandidate()
	if err != nil {
		h.handleError(c, err)
		return
	}

	result, err := h.trips.Create(c.Request.Context(), principal, candidate)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, admissionResponse{
		Trip:     toTripResponse(result.Trip),
		Verdict:  result.Verdict,
		Warnings: nonNil(result.Warnings),
	})
}

func (h *Handler) updateTrip(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	tripID, err := parseID("id", c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	var req tripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	candidate, err := req.toCandidate()
	if err != nil {
		h.handleError(c, err)
		return
	}

	result, err := h.trips.Update(c.Request.Context(), principal, tripID, candidate)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, admissionResponse{
		Trip:     toTripResponse(result.Trip),
		Verdict:  result.Verdict,
		Warnings: nonNil(result.Warnings),
	})
}

func (h *Handler) transitionTrip(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	tripID, err := parseID("id", c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status, err := model.ParseTripStatus(req.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	trip, err := h.trips.Transition(c.Request.Context(), principal, tripID, service.TransitionInput{
		Status:         status,
		ClosureRemarks: req.ClosureRemarks,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTripResponse(trip))
}

func (h *Handler) shipmentCandidates(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	tripID, err := parseID("id", c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	shipments, err := h.shipments.Candidates(c.Request.Context(), principal, tripID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	items := make([]shipmentResponse, 0, len(shipments))
	for _, shipment := range shipments {
		items = append(items, toShipmentResponse(shipment))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) assignmentHistory(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	tripID, err := parseID("id", c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	audits, err := h.trips.AssignmentHistory(c.Request.Context(), principal, tripID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	items := make([]auditResponse, 0, len(audits))
	for _, audit := range audits {
		items = append(items, toAuditResponse(audit))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) requestConsent(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}

	var req consentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	driverID, err := parseID("driver_id", req.DriverID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	tripID, err := parseOptionalID("trip_id", req.TripID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	consent, err := h.consents.Request(c.Request.Context(), principal, service.RequestConsentInput{
		DriverID: driverID,
		MSISDN:   req.MSISDN,
		TripID:   tripID,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, toConsentResponse(consent))
}

func (h *Handler) resolveConsent(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	driverID, err := parseID("id", c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	consent, err := h.consents.Resolve(c.Request.Context(), principal, driverID, req.Decision)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, toConsentResponse(consent))
}

func (h *Handler) consentStatus(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	driverID, err := parseID("id", c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	view, err := h.consents.Status(c.Request.Context(), principal, driverID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, consentStatusResponse{
		DriverID:  view.DriverID,
		Effective: view.Effective,
		Usable:    view.Usable,
		Consent:   toConsentResponse(view.Consent),
	})
}

func (h *Handler) consumeConsent(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	consentID, err := parseID("id", c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	var req consumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tripID, err := parseID("trip_id", req.TripID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	consent, err := h.consents.Consume(c.Request.Context(), principal, consentID, tripID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, toConsentResponse(consent))
}

func (h *Handler) setShipmentStatus(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	shipmentID, err := parseID("id", c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status, err := model.ParseShipmentStatus(req.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	shipment, err := h.shipments.SetStatus(c.Request.Context(), principal, shipmentID, status)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, toShipmentResponse(*shipment))
}

func (h *Handler) deleteShipment(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	shipmentID, err := parseID("id", c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	if err := h.shipments.Delete(c.Request.Context(), principal, shipmentID); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func principalOrAbort(c *gin.Context) (model.Principal, bool) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
	}
	return principal, ok
}

// statusClientClosedRequest is the nginx convention for a request the client
// abandoned before the response.
const statusClientClosedRequest = 499

func (h *Handler) handleError(c *gin.Context, err error) {
	var blocked *service.BlockedError
	switch {
	case errors.As(err, &blocked):
		status := http.StatusUnprocessableEntity
		if blocked.AtCommit {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{
			"error":     err.Error(),
			"verdict":   model.VerdictBlocked,
			"at_commit": blocked.AtCommit,
			"findings":  nonNil(blocked.Findings),
		})
	case errors.Is(err, service.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrIllegalTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrCanceled), errors.Is(err, context.Canceled):
		h.log.Debug().Err(err).Str("path", c.FullPath()).Msg("client went away")
		c.AbortWithStatus(statusClientClosedRequest)
	case errors.Is(err, service.ErrTransient):
		h.log.Warn().Err(err).Str("path", c.FullPath()).Msg("store unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store temporarily unavailable", "retryable": true})
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
