// Package trip implements the trip state machine: guarded status
// transitions with ownership and authorization checks, auto-arrival
// detection, and the SOS audit trail.
package trip

import (
	"context"

	"github.com/google/uuid"
	"github.com/richxcame/dispatch-core/pkg/models"
)

// Broadcaster emits an event to a single named room. Implemented by
// internal/spatial.Hub; declared here so this package never imports the
// websocket layer directly.
type Broadcaster interface {
	EmitToRoom(ctx context.Context, room, event string, payload interface{}) error
}

// ActiveTripRegistrar keeps internal/geo's ETA tracker in sync with
// which trips are currently live, and which leg (to pickup or to
// dropoff) a driver is on. Implemented by internal/geo.Service.
type ActiveTripRegistrar interface {
	RegisterActiveTrip(ctx context.Context, info *ActiveTripInfo) error
	UnregisterActiveTrip(ctx context.Context, driverID uuid.UUID)
}

// ActiveTripInfo mirrors internal/geo.ActiveTripInfo's shape without
// importing that package, so trip stays the one doing the registering.
type ActiveTripInfo struct {
	TripID     uuid.UUID
	RiderID    uuid.UUID
	DriverID   uuid.UUID
	PickupLat  float64
	PickupLng  float64
	DropoffLat float64
	DropoffLng float64
	Status     string
}

// Settler finishes a trip's financial side once it reaches COMPLETED.
// Implemented by internal/settlement.Service; kept as its own
// collaborator so the state machine never depends on ledger internals.
type Settler interface {
	CompleteTrip(ctx context.Context, tripID uuid.UUID) error
}

// Actor identifies who is attempting a transition, for the
// authorization rules in authorize.
type Actor struct {
	UserID uuid.UUID
	Role   models.UserRole
}
