package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/dispatch-core/pkg/logger"
	redisClient "github.com/richxcame/dispatch-core/pkg/redis"
	"go.uber.org/zap"
)

const (
	activeTripPrefix     = "trip:active:"
	etaUpdateMinInterval = 5 * time.Second // don't recalculate ETA more often than this
	arrivalRadiusKm      = 0.05            // 50m, within which a driver is considered arrived
)

// ActiveTripInfo tracks an in-progress trip for real-time ETA updates.
type ActiveTripInfo struct {
	TripID        uuid.UUID `json:"trip_id"`
	RiderID       uuid.UUID `json:"rider_id"`
	DriverID      uuid.UUID `json:"driver_id"`
	DropoffLat    float64   `json:"dropoff_lat"`
	DropoffLng    float64   `json:"dropoff_lng"`
	Status        string    `json:"status"` // "ACCEPTED" (to pickup) or "IN_PROGRESS" (to dropoff)
	PickupLat     float64   `json:"pickup_lat"`
	PickupLng     float64   `json:"pickup_lng"`
}

// ETAUpdate is the payload broadcast to the rider's room on recalculation.
type ETAUpdate struct {
	TripID          string  `json:"trip_id"`
	ETAMinutes      int     `json:"eta_minutes"`
	DistanceKm      float64 `json:"distance_km"`
	DriverLatitude  float64 `json:"driver_latitude"`
	DriverLongitude float64 `json:"driver_longitude"`
	DriverBearing   float64 `json:"driver_bearing"`
	UpdatedAt       string  `json:"updated_at"`
}

// Broadcaster emits an event to a single named room. Implemented by the
// spatial hub; kept as an interface here so this package never imports
// the websocket layer directly.
type Broadcaster interface {
	EmitToRoom(ctx context.Context, room, event string, payload interface{}) error
}

// ArrivalNotifier is told when a driver's position lands within 50m of
// the pickup point on a trip still in ACCEPTED. Implemented by
// internal/trip.Service; declared here so this package never imports
// the trip state machine.
type ArrivalNotifier interface {
	MarkArrived(ctx context.Context, tripID uuid.UUID) error
}

// ETATracker recalculates and broadcasts ETA when drivers move during an
// active trip.
type ETATracker struct {
	redis       redisClient.ClientInterface
	broadcaster Broadcaster
	arrivals    ArrivalNotifier
	mu          sync.Mutex
	lastUpdate  map[string]time.Time // driverID -> last ETA broadcast time
	arrived     map[string]bool      // tripID -> MarkArrived already fired, dedupe noisy fixes
}

// NewETATracker creates a new ETA tracker.
func NewETATracker(redis redisClient.ClientInterface, broadcaster Broadcaster) *ETATracker {
	return &ETATracker{
		redis:       redis,
		broadcaster: broadcaster,
		lastUpdate:  make(map[string]time.Time),
		arrived:     make(map[string]bool),
	}
}

// SetArrivalNotifier wires the trip state machine so a driver landing
// within the pickup radius auto-transitions the trip to ARRIVED.
func (t *ETATracker) SetArrivalNotifier(n ArrivalNotifier) {
	t.arrivals = n
}

// RegisterActiveTrip registers a trip for real-time ETA tracking. Call
// this when a trip is accepted or started.
func (t *ETATracker) RegisterActiveTrip(ctx context.Context, info *ActiveTripInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal active trip info: %w", err)
	}
	return t.redis.SetWithExpiration(ctx, activeTripKey(info.DriverID), data, 2*time.Hour)
}

// UnregisterActiveTrip removes a trip from ETA tracking. Call this when a
// trip is completed or cancelled.
func (t *ETATracker) UnregisterActiveTrip(ctx context.Context, driverID uuid.UUID) {
	t.redis.Delete(ctx, activeTripKey(driverID))

	t.mu.Lock()
	delete(t.lastUpdate, driverID.String())
	t.mu.Unlock()
}

// OnDriverLocationUpdate recalculates and broadcasts ETA if the driver has
// an active trip registered. Safe to call on every location update;
// internally rate-limited.
func (t *ETATracker) OnDriverLocationUpdate(ctx context.Context, driverID uuid.UUID, lat, lng, bearing float64) {
	driverIDStr := driverID.String()

	t.mu.Lock()
	if last, ok := t.lastUpdate[driverIDStr]; ok && time.Since(last) < etaUpdateMinInterval {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	data, err := t.redis.GetString(ctx, activeTripKey(driverID))
	if err != nil {
		return // no active trip
	}

	var info ActiveTripInfo
	if err := json.Unmarshal([]byte(data), &info); err != nil {
		return
	}

	destLat, destLng := info.DropoffLat, info.DropoffLng
	if info.Status == "ACCEPTED" {
		destLat, destLng = info.PickupLat, info.PickupLng
	}

	distance := haversineDistance(lat, lng, destLat, destLng)
	etaMinutes := int(math.Ceil((distance / 30.0) * 60))

	if info.Status == "ACCEPTED" && distance <= arrivalRadiusKm {
		t.maybeMarkArrived(ctx, info.TripID)
	}

	t.mu.Lock()
	t.lastUpdate[driverIDStr] = time.Now()
	t.mu.Unlock()

	update := &ETAUpdate{
		TripID:          info.TripID.String(),
		ETAMinutes:      etaMinutes,
		DistanceKm:      math.Round(distance*100) / 100,
		DriverLatitude:  lat,
		DriverLongitude: lng,
		DriverBearing:   bearing,
		UpdatedAt:       time.Now().UTC().Format(time.RFC3339),
	}

	if t.broadcaster == nil {
		return
	}
	room := fmt.Sprintf("user:%s", info.RiderID.String())
	if err := t.broadcaster.EmitToRoom(ctx, room, "trip:eta:update", update); err != nil {
		logger.DebugContext(ctx, "failed to broadcast ETA update", zap.Error(err))
	}
}

// maybeMarkArrived fires ArrivalNotifier.MarkArrived at most once per
// trip. It is only reached while the trip's Status is "ACCEPTED", so once
// RegisterActiveTrip is called again on trip:start the check stops
// running; the dedupe entry itself is not cleared.
func (t *ETATracker) maybeMarkArrived(ctx context.Context, tripID uuid.UUID) {
	if t.arrivals == nil {
		return
	}
	key := tripID.String()

	t.mu.Lock()
	if t.arrived[key] {
		t.mu.Unlock()
		return
	}
	t.arrived[key] = true
	t.mu.Unlock()

	if err := t.arrivals.MarkArrived(ctx, tripID); err != nil {
		logger.WarnContext(ctx, "auto-arrival transition failed", zap.String("trip_id", key), zap.Error(err))
	}
}

func activeTripKey(driverID uuid.UUID) string {
	return activeTripPrefix + driverID.String()
}

func haversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadius = 6371.0
	dLat := (lat2 - lat1) * math.Pi / 180.0
	dLon := (lon2 - lon1) * math.Pi / 180.0
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180.0)*math.Cos(lat2*math.Pi/180.0)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadius * c
}
