package geozone

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/dispatch-core/pkg/response"
)

// Handler exposes the admin read-only surge/demand views.
type Handler struct {
	svc *Service
}

// NewHandler builds a geozone Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes wires the zone views onto an admin-guarded group.
func (h *Handler) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/surge", h.GetSurge)
	group.GET("/heatmap", h.GetHeatmap)
}

// GetSurge is `GET /admin/zones/surge?lat=&lng=`.
func (h *Handler) GetSurge(c *gin.Context) {
	lat, lng, ok := parsePoint(c)
	if !ok {
		return
	}
	info, err := h.svc.GetSurgeInfo(c.Request.Context(), lat, lng)
	if response.HandleServiceError(c, err, "failed to load surge info") {
		return
	}
	response.OK(c, info)
}

// GetHeatmap is `GET /admin/zones/heatmap?lat=&lng=`.
func (h *Handler) GetHeatmap(c *gin.Context) {
	lat, lng, ok := parsePoint(c)
	if !ok {
		return
	}
	cells, err := h.svc.GetDemandHeatmap(c.Request.Context(), lat, lng)
	if response.HandleServiceError(c, err, "failed to load demand heatmap") {
		return
	}
	response.OK(c, cells)
}

func parsePoint(c *gin.Context) (lat, lng float64, ok bool) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	if errLat != nil || errLng != nil || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		response.Error(c, http.StatusBadRequest, "valid lat and lng query parameters are required")
		return 0, 0, false
	}
	return lat, lng, true
}
