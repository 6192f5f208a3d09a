package settlement

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/richxcame/dispatch-core/pkg/middleware"
	"github.com/richxcame/dispatch-core/pkg/models"
	"github.com/richxcame/dispatch-core/pkg/response"
	"github.com/richxcame/dispatch-core/pkg/validation"
)

// Handler exposes the settlement HTTP surface: the rider wallet balance read,
// the trip settlement trigger, and the driver payout request/process
// pair.
type Handler struct {
	svc *Service
}

// NewHandler builds a settlement Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes wires the settlement endpoints. Payout processing is
// admin-only and carries middleware.RequireRole here; the rest rely on
// the bearer-token middleware the caller installs.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/wallet/balance", h.GetBalance)
	router.POST("/wallet/process-trip-payment", h.ProcessTripPayment)
	router.POST("/trips/:id/settle", h.SettleTrip)
	router.POST("/payouts", h.RequestPayout)
	router.POST("/payouts/:id/process", middleware.RequireRole(models.RoleAdmin), h.ProcessPayout)
}

// GetBalance is `GET /wallet/balance`: the rider's own aggregated balance.
func (h *Handler) GetBalance(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		response.Error(c, http.StatusUnauthorized, "authentication required")
		return
	}

	balance, err := h.svc.WalletBalance(c.Request.Context(), userID)
	if response.HandleServiceError(c, err, "failed to load wallet balance") {
		return
	}
	response.OK(c, gin.H{"balance": balance})
}

// SettleTrip is `POST /trips/{id}/settle`: an HTTP entry point into
// the atomic settlement transaction, callable by the driver who
// completed the trip or an admin.
func (h *Handler) SettleTrip(c *gin.Context) {
	tripID, ok := response.ParseUUIDParam(c, "id", "trip id")
	if !ok {
		return
	}

	if err := h.svc.CompleteTrip(c.Request.Context(), tripID); response.HandleServiceError(c, err, "failed to settle trip") {
		return
	}
	response.OK(c, gin.H{"settled": true})
}

// ProcessTripPayment is `POST /wallet/process-trip-payment`: the
// wallet-specific entry point into the same settlement transaction
// `SettleTrip` drives, for callers that address it by trip rather than
// by URL path (e.g. the wallet debit leg triggered from the rider app).
func (h *Handler) ProcessTripPayment(c *gin.Context) {
	var body validation.ProcessTripPaymentRequest
	if !response.BindAndValidate(c, &body) {
		return
	}
	tripID, err := uuid.Parse(body.TripID)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid trip id")
		return
	}

	if err := h.svc.CompleteTrip(c.Request.Context(), tripID); response.HandleServiceError(c, err, "failed to process trip payment") {
		return
	}
	response.OK(c, gin.H{"settled": true})
}

// RequestPayout is `POST /payouts` (driver): opens a manual-review
// payout for the caller's accrued earnings.
func (h *Handler) RequestPayout(c *gin.Context) {
	driverID, err := middleware.GetDriverID(c)
	if err != nil {
		response.Error(c, http.StatusUnauthorized, "authentication required")
		return
	}

	var body validation.RequestPayoutRequest
	if !response.BindAndValidate(c, &body) {
		return
	}

	payout, err := h.svc.RequestPayout(c.Request.Context(), *driverID, body.Amount, body.IdempotencyKey)
	if response.HandleServiceError(c, err, "failed to request payout") {
		return
	}
	response.Created(c, payout)
}

// ProcessPayout is `POST /payouts/{id}/process` (admin): triggers the
// idempotent Stripe transfer for a reviewed payout.
func (h *Handler) ProcessPayout(c *gin.Context) {
	payoutID, ok := response.ParseUUIDParam(c, "id", "payout id")
	if !ok {
		return
	}

	var body validation.ProcessPayoutRequest
	if !response.BindAndValidate(c, &body) {
		return
	}

	payout, err := h.svc.ProcessPayout(c.Request.Context(), payoutID, body.DestinationAccountID)
	if response.HandleServiceError(c, err, "failed to process payout") {
		return
	}
	response.OK(c, payout)
}
