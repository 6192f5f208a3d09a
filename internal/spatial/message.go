// Package spatial implements the spatial pub/sub layer: geohash-tile
// and entity-scoped rooms over WebSocket, with NATS core fan-out across
// instances. Every outbound message targets exactly one room; there is
// no operation that reaches every connected client.
package spatial

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message is the envelope delivered to a client's Send channel.
type Message struct {
	Room      string      `json:"room"`
	Event     string      `json:"event"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// UserRoom is the per-user direct-message room.
func UserRoom(userID uuid.UUID) string {
	return fmt.Sprintf("user:%s", userID)
}

// DriverRoom is the per-driver direct room.
func DriverRoom(driverID uuid.UUID) string {
	return fmt.Sprintf("driver:%s", driverID)
}

// GeoRoom is the per-tile broadcast room for a geohash.
func GeoRoom(hash string) string {
	return fmt.Sprintf("geo:%s", hash)
}

// AdminRoom is the single room every administrator session joins.
const AdminRoom = "admin"
