// Package dispatch implements the dispatch engine: candidate
// selection, weighted multi-factor scoring, and sequential exclusive
// offers from a new trip request through to an accepted driver or
// exhaustion.
package dispatch

import (
	"context"

	"github.com/google/uuid"
	"github.com/richxcame/dispatch-core/internal/routing"
	"github.com/richxcame/dispatch-core/pkg/models"
)

// CandidateLocator returns nearby driver IDs for a pickup point,
// nearest-first. Implemented by internal/geo.Service; declared here so
// dispatch never imports the location-tracking internals it doesn't need.
type CandidateLocator interface {
	FindNearbyDrivers(ctx context.Context, lat, lng float64, maxDrivers int) ([]uuid.UUID, error)
}

// RouteETA resolves a driving route between two points. Implemented by
// internal/routing.Client. Callers fall back to a straight-line estimate
// themselves when this returns apperr.RoutingUnavailable — that fallback
// is the scoring step's own documented exception, not this interface's.
type RouteETA interface {
	Directions(ctx context.Context, start, end routing.Point) (*routing.Route, error)
}

// Notifier delivers a templated message tied to a trip event.
// Implemented by internal/messaging.Service.
type Notifier interface {
	SendTemplate(ctx context.Context, tripID uuid.UUID, driverID *uuid.UUID, channel models.NotificationChannel, recipient, template string, params map[string]string) (*models.RideNotification, error)
}

// DemandRecorder feeds pickup-point demand into the surge/heatmap zone
// index. Implemented by internal/geozone.Service; fire-and-forget, so
// it has no error to return.
type DemandRecorder interface {
	IncrementDemand(ctx context.Context, lat, lng float64)
}

// Broadcaster pushes a realtime event to every member of a room.
// Implemented by internal/spatial.Hub; mirrors internal/trip's
// collaborator of the same name so both packages push the
// driver-facing and rider-facing halves of the offer protocol over the
// same room-addressed WebSocket path.
type Broadcaster interface {
	EmitToRoom(ctx context.Context, room, event string, payload interface{}) error
}
