package trip

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/dispatch-core/pkg/middleware"
	"github.com/richxcame/dispatch-core/pkg/models"
	"github.com/richxcame/dispatch-core/pkg/response"
	"github.com/richxcame/dispatch-core/pkg/validation"
)

// Handler exposes the trip-lifecycle HTTP surface: status transitions, trip
// completion, and the SOS audit trail. Trip creation itself lives on
// internal/dispatch.Handler since the dispatch engine owns the candidate-selection path.
type Handler struct {
	svc *Service
}

// NewHandler builds a trip Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes wires the trip lifecycle endpoints.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.PATCH("/trips/:id/status", h.Transition)
	router.POST("/trips/:id/settle", h.Complete)
	router.POST("/trips/:id/payment-collected", h.PaymentCollected)
	router.POST("/trips/:id/sos", h.TriggerSOS)
	router.GET("/trips/:id/sos", middleware.RequireRole(models.RoleAdmin), h.ListSOS)
}

func (h *Handler) actor(c *gin.Context) (Actor, bool) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		response.Error(c, http.StatusUnauthorized, "authentication required")
		return Actor{}, false
	}
	role, _ := middleware.GetUserRole(c)
	return Actor{UserID: userID, Role: role}, true
}

// Transition is `PATCH /trips/{id}/status`.
func (h *Handler) Transition(c *gin.Context) {
	tripID, ok := response.ParseUUIDParam(c, "id", "trip id")
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var body validation.UpdateTripStatusRequest
	if !response.BindAndValidate(c, &body) {
		return
	}

	trip, err := h.svc.Transition(c.Request.Context(), actor, tripID, models.TripStatus(body.Status), body.Reason)
	if response.HandleServiceError(c, err, "failed to transition trip") {
		return
	}
	response.OK(c, trip)
}

// Complete is `POST /trips/{id}/settle`: the driver-facing trip-end
// action that hands off to the atomic settlement.
func (h *Handler) Complete(c *gin.Context) {
	tripID, ok := response.ParseUUIDParam(c, "id", "trip id")
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var body validation.CompleteTripRequest
	if !response.BindAndValidate(c, &body) {
		return
	}

	trip, err := h.svc.CompleteTrip(c.Request.Context(), actor, tripID, body.Fare, body.DistanceKm, body.DurationSec)
	if response.HandleServiceError(c, err, "failed to complete trip") {
		return
	}
	response.OK(c, trip)
}

// PaymentCollected is `POST /trips/{id}/payment-collected`: the
// driver-facing confirmation that cash was received for a CASH trip.
func (h *Handler) PaymentCollected(c *gin.Context) {
	tripID, ok := response.ParseUUIDParam(c, "id", "trip id")
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var body validation.PaymentCollectedRequest
	if c.Request.ContentLength != 0 {
		if !response.BindAndValidate(c, &body) {
			return
		}
	}

	trip, err := h.svc.MarkPaymentCollected(c.Request.Context(), actor, tripID)
	if response.HandleServiceError(c, err, "failed to mark payment collected") {
		return
	}
	response.OK(c, trip)
}

// TriggerSOS is `POST /trips/{id}/sos`. The body is optional — a
// participant may trigger SOS with no location fix at hand — but any
// body that is sent is validated like every other edge payload.
func (h *Handler) TriggerSOS(c *gin.Context) {
	tripID, ok := response.ParseUUIDParam(c, "id", "trip id")
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var body validation.SOSRequest
	if err := c.ShouldBindJSON(&body); err == nil {
		if verr := validation.ValidateStruct(&body); verr != nil {
			response.RenderValidationError(c, verr)
			return
		}
	}

	event, err := h.svc.SOS(c.Request.Context(), actor, tripID, body.Lat, body.Lng, body.Note)
	if response.HandleServiceError(c, err, "failed to record sos event") {
		return
	}
	response.Created(c, event)
}

// ListSOS is `GET /trips/{id}/sos` (admin read-only view).
func (h *Handler) ListSOS(c *gin.Context) {
	tripID, ok := response.ParseUUIDParam(c, "id", "trip id")
	if !ok {
		return
	}
	events, err := h.svc.ListSOS(c.Request.Context(), tripID)
	if response.HandleServiceError(c, err, "failed to list sos events") {
		return
	}
	response.OK(c, events)
}
