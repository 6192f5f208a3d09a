package spatial

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/richxcame/dispatch-core/internal/geohash"
	"github.com/richxcame/dispatch-core/pkg/logger"
	"github.com/richxcame/dispatch-core/pkg/models"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler exposes the WebSocket upgrade endpoint.
type Handler struct {
	hub *Hub
}

// NewHandler creates a handler bound to a running hub.
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// HandleWebSocket upgrades the connection, registers the client under
// its entity/admin rooms, and joins an initial geo tile when a location
// hint is present on the query string.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	userID, ok := userIDVal.(uuid.UUID)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user id"})
		return
	}

	roleStr := "rider"
	if roleVal, exists := c.Get("user_role"); exists {
		if role, ok := roleVal.(models.UserRole); ok {
			switch role {
			case models.RoleDriver:
				roleStr = "driver"
			case models.RoleAdmin:
				roleStr = "admin"
			default:
				roleStr = "rider"
			}
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("spatial: upgrade failed", zap.Error(err))
		return
	}

	client := newClient(uuid.NewString(), userID, roleStr, conn, h.hub)
	if roleStr == "driver" {
		if driverIDVal, exists := c.Get("driver_id"); exists {
			if driverID, ok := driverIDVal.(uuid.UUID); ok {
				client.DriverID = &driverID
			}
		}
		// The driver room is keyed by the driver row id from the token,
		// not the user id — offers address driver:{driverId}.
		if client.DriverID == nil {
			logger.Warn("spatial: driver token missing driver id", zap.String("user_id", userID.String()))
			conn.Close()
			return
		}
	}
	h.hub.Register <- client

	switch roleStr {
	case "driver":
		h.hub.Join(client, DriverRoom(*client.DriverID))
	case "admin":
		h.hub.Join(client, AdminRoom)
	default:
		h.hub.Join(client, UserRoom(userID))
	}

	if lat, lng, ok := parseLocationHint(c); ok {
		hash := geohash.Encode(lat, lng, geohash.DefaultPrecision)
		h.hub.Join(client, GeoRoom(hash))
		client.setGeoHash(hash)
	}

	go client.WritePump()
	go client.ReadPump()
}

func parseLocationHint(c *gin.Context) (lat, lng float64, ok bool) {
	latStr := c.Query("lat")
	lngStr := c.Query("lng")
	if latStr == "" || lngStr == "" {
		return 0, 0, false
	}
	lat, errLat := strconv.ParseFloat(latStr, 64)
	lng, errLng := strconv.ParseFloat(lngStr, 64)
	if errLat != nil || errLng != nil {
		return 0, 0, false
	}
	return lat, lng, true
}

// Stats summarizes hub occupancy for health/admin endpoints.
type Stats struct {
	ConnectedClients int `json:"connected_clients"`
}

// GetStats returns connection statistics for this instance.
func (h *Handler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, Stats{ConnectedClients: h.hub.ClientCount()})
}
