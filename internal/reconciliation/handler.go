package reconciliation

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/dispatch-core/pkg/middleware"
	"github.com/richxcame/dispatch-core/pkg/models"
	"github.com/richxcame/dispatch-core/pkg/response"
)

// Handler exposes the admin-only read view over reconciliation runs.
type Handler struct {
	repo *Repository
}

// NewHandler builds a reconciliation Handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// RegisterRoutes wires the reconciliation read endpoint behind admin auth.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	admin := router.Group("/admin/reconciliation")
	admin.Use(middleware.RequireRole(models.RoleAdmin))
	admin.GET("/logs", h.ListLogs)
}

// ListLogs is `GET /admin/reconciliation/logs?limit=N`.
func (h *Handler) ListLogs(c *gin.Context) {
	limit := 30
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	logs, err := h.repo.RecentLogs(c.Request.Context(), limit)
	if response.HandleServiceError(c, err, "failed to load reconciliation logs") {
		return
	}
	response.OK(c, logs)
}
