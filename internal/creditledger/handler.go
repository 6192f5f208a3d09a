package creditledger

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/dispatch-core/pkg/middleware"
	"github.com/richxcame/dispatch-core/pkg/models"
	"github.com/richxcame/dispatch-core/pkg/response"
)

// Handler exposes the credit-ledger HTTP surface: the driver-facing purchase
// request submission and the admin-facing review queue.
type Handler struct {
	svc *Service
}

// NewHandler builds a creditledger Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes wires the credit-ledger endpoints onto router. Callers
// are expected to have already applied auth middleware; admin-only
// routes additionally require middleware.RequireRole(models.RoleAdmin).
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.POST("/credits/purchase-requests", h.RequestPurchase)
	router.GET("/credits/purchase-requests/:id", h.GetPurchase)

	admin := router.Group("/admin/credits/purchase-requests")
	admin.Use(middleware.RequireRole(models.RoleAdmin))
	{
		admin.POST("/:id/approve", h.ApprovePurchase)
		admin.POST("/:id/reject", h.RejectPurchase)
	}
}

type requestPurchaseBody struct {
	Credits       int     `json:"credits" binding:"required,gt=0"`
	Months        int     `json:"months" binding:"required,gt=0"`
	AmountCharged float64 `json:"amount_charged" binding:"required,gt=0"`
}

// RequestPurchase is `POST /credits/purchase-requests` (driver): opens a
// PENDING credit package purchase for admin review.
func (h *Handler) RequestPurchase(c *gin.Context) {
	driverID, err := middleware.GetDriverID(c)
	if err != nil || driverID == nil {
		response.Error(c, http.StatusUnauthorized, "driver authentication required")
		return
	}

	var body requestPurchaseBody
	if !response.BindJSON(c, &body) {
		return
	}

	req, err := h.svc.RequestPurchase(c.Request.Context(), *driverID, body.Credits, body.Months, body.AmountCharged)
	if response.HandleServiceError(c, err, "failed to create purchase request") {
		return
	}
	response.Created(c, req)
}

// GetPurchase is `GET /credits/purchase-requests/{id}`.
func (h *Handler) GetPurchase(c *gin.Context) {
	id, ok := response.ParseUUIDParam(c, "id", "purchase request id")
	if !ok {
		return
	}
	req, err := h.svc.GetPurchase(c.Request.Context(), id)
	if response.HandleServiceError(c, err, "failed to load purchase request") {
		return
	}
	response.OK(c, req)
}

// ApprovePurchase is `POST /admin/credits/purchase-requests/{id}/approve`:
// a single ACID transaction that grants the purchased credits.
func (h *Handler) ApprovePurchase(c *gin.Context) {
	id, ok := response.ParseUUIDParam(c, "id", "purchase request id")
	if !ok {
		return
	}
	reviewerID, err := middleware.GetUserID(c)
	if err != nil {
		response.Error(c, http.StatusUnauthorized, "authentication required")
		return
	}
	if err := h.svc.ApprovePurchase(c.Request.Context(), id, reviewerID); response.HandleServiceError(c, err, "failed to approve purchase request") {
		return
	}
	response.OK(c, gin.H{"approved": true})
}

type rejectPurchaseBody struct {
	Reason string `json:"reason" binding:"required"`
}

// RejectPurchase is `POST /admin/credits/purchase-requests/{id}/reject`.
func (h *Handler) RejectPurchase(c *gin.Context) {
	id, ok := response.ParseUUIDParam(c, "id", "purchase request id")
	if !ok {
		return
	}
	reviewerID, err := middleware.GetUserID(c)
	if err != nil {
		response.Error(c, http.StatusUnauthorized, "authentication required")
		return
	}
	var body rejectPurchaseBody
	if !response.BindJSON(c, &body) {
		return
	}
	if err := h.svc.RejectPurchase(c.Request.Context(), id, reviewerID, body.Reason); response.HandleServiceError(c, err, "failed to reject purchase request") {
		return
	}
	response.OK(c, gin.H{"rejected": true})
}
