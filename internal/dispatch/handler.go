package dispatch

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/dispatch-core/pkg/middleware"
	"github.com/richxcame/dispatch-core/pkg/models"
	"github.com/richxcame/dispatch-core/pkg/response"
	"github.com/richxcame/dispatch-core/pkg/validation"
)

// Handler exposes the dispatch HTTP surface: trip request creation, the
// legacy trip-level accept path, and the offer-level accept/reject
// pair `offer:accept`/`offer:reject` map onto over REST.
type Handler struct {
	svc  *Service
	repo *Repository
}

// NewHandler builds a dispatch Handler.
func NewHandler(svc *Service, repo *Repository) *Handler {
	return &Handler{svc: svc, repo: repo}
}

// RegisterRoutes wires the dispatch endpoints. The config and offer
// listing routes are admin-only and carry middleware.RequireRole here;
// the rest rely on the bearer-token middleware the caller installs.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.POST("/trips", h.RequestTrip)
	router.POST("/trips/:id/accept", h.AcceptTrip)
	router.POST("/offers/:id/accept", h.AcceptOffer)
	router.POST("/offers/:id/reject", h.RejectOffer)
	adminOnly := middleware.RequireRole(models.RoleAdmin)
	router.GET("/dispatch/config", adminOnly, h.GetConfig)
	router.PUT("/dispatch/config", adminOnly, h.UpdateConfig)
	router.GET("/dispatch/offers", adminOnly, h.ListOffers)
}

// RequestTrip is `POST /trips`: the rider-facing entry point into dispatch.
func (h *Handler) RequestTrip(c *gin.Context) {
	riderID, err := middleware.GetUserID(c)
	if err != nil {
		response.Error(c, http.StatusUnauthorized, "authentication required")
		return
	}

	var body validation.CreateTripRequest
	if !response.BindJSON(c, &body) {
		return
	}
	if err := validation.ValidateTripRequest(&body); err != nil {
		response.RenderValidationError(c, err)
		return
	}

	bookingChannel := models.BookingApp
	if body.BookingChannel == string(models.BookingPhone) {
		bookingChannel = models.BookingPhone
	}

	trip, err := h.svc.RequestTrip(c.Request.Context(), TripRequest{
		RiderID:        riderID,
		PickupLat:      body.PickupLat,
		PickupLng:      body.PickupLng,
		DropLat:        body.DropLat,
		DropLng:        body.DropLng,
		ServiceType:    body.ServiceType,
		PaymentMethod:  models.PaymentMethod(body.PaymentMethod),
		BookingChannel: bookingChannel,
		ScheduledFor:   body.ScheduledFor,
	})
	if response.HandleServiceError(c, err, "failed to request trip") {
		return
	}
	response.Created(c, trip)
}

// AcceptTrip is the legacy `POST /trips/{id}/accept` path: it resolves
// the trip's current PENDING offer for this driver and accepts it, so
// older clients that never learned an offerId still work.
func (h *Handler) AcceptTrip(c *gin.Context) {
	tripID, ok := response.ParseUUIDParam(c, "id", "trip id")
	if !ok {
		return
	}
	driverID, err := middleware.GetDriverID(c)
	if err != nil {
		response.Error(c, http.StatusForbidden, "driver account required")
		return
	}

	trip, err := h.svc.AcceptOfferForTrip(c.Request.Context(), tripID, *driverID)
	if response.HandleServiceError(c, err, "failed to accept trip") {
		return
	}
	response.OK(c, trip)
}

// AcceptOffer is the REST counterpart of the `offer:accept` event.
func (h *Handler) AcceptOffer(c *gin.Context) {
	offerID, ok := response.ParseUUIDParam(c, "id", "offer id")
	if !ok {
		return
	}
	driverID, err := middleware.GetDriverID(c)
	if err != nil {
		response.Error(c, http.StatusForbidden, "driver account required")
		return
	}

	trip, err := h.svc.AcceptOffer(c.Request.Context(), offerID, *driverID)
	if response.HandleServiceError(c, err, "failed to accept offer") {
		return
	}
	response.OK(c, trip)
}

// RejectOffer is the REST counterpart of the `offer:reject` event.
func (h *Handler) RejectOffer(c *gin.Context) {
	offerID, ok := response.ParseUUIDParam(c, "id", "offer id")
	if !ok {
		return
	}
	driverID, err := middleware.GetDriverID(c)
	if err != nil {
		response.Error(c, http.StatusForbidden, "driver account required")
		return
	}

	err = h.svc.RejectOffer(c.Request.Context(), offerID, *driverID)
	if response.HandleServiceError(c, err, "failed to reject offer") {
		return
	}
	response.OK(c, gin.H{"rejected": true})
}

// GetConfig is `GET /dispatch/config` (admin).
func (h *Handler) GetConfig(c *gin.Context) {
	cfg, err := h.repo.GetDispatchConfig(c.Request.Context())
	if response.HandleServiceError(c, err, "failed to load dispatch config") {
		return
	}
	response.OK(c, cfg)
}

// ListOffers is `GET /dispatch/offers?trip_id=...` (admin).
func (h *Handler) ListOffers(c *gin.Context) {
	tripID, ok := response.ParseUUIDQuery(c, "trip_id", "trip id", true)
	if !ok {
		return
	}
	offers, err := h.repo.ListOffers(c.Request.Context(), tripID)
	if response.HandleServiceError(c, err, "failed to list offers") {
		return
	}
	response.OK(c, offers)
}

// UpdateConfig is `PUT /dispatch/config` (admin).
func (h *Handler) UpdateConfig(c *gin.Context) {
	var cfg models.DispatchConfig
	if !response.BindAndValidate(c, &cfg) {
		return
	}
	if err := h.repo.SetDispatchConfig(c.Request.Context(), cfg); response.HandleServiceError(c, err, "failed to update dispatch config") {
		return
	}
	response.OK(c, cfg)
}
