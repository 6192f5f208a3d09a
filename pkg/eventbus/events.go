package eventbus

import (
	"time"

	"github.com/google/uuid"
)

// TripRequestedData is emitted when a trip is created in REQUESTED status.
// The dispatch engine consumes this to begin candidate selection.
type TripRequestedData struct {
	TripID            uuid.UUID  `json:"trip_id"`
	RiderID            uuid.UUID  `json:"rider_id"`
	PickupLat          float64    `json:"pickup_lat"`
	PickupLng          float64    `json:"pickup_lng"`
	DropoffLat         float64    `json:"dropoff_lat"`
	DropoffLng         float64    `json:"dropoff_lng"`
	ServiceType         string     `json:"service_type,omitempty"`
	ScheduledFor        *time.Time `json:"scheduled_for,omitempty"`
	RequestedAt         time.Time  `json:"requested_at"`
}

// TripAcceptedData is emitted when a driver accepts an offer and the state machine
// atomically moves the trip to ACCEPTED.
type TripAcceptedData struct {
	TripID     uuid.UUID `json:"trip_id"`
	RiderID    uuid.UUID `json:"rider_id"`
	DriverID   uuid.UUID `json:"driver_id"`
	AcceptedAt time.Time `json:"accepted_at"`
}

// TripArrivedData is emitted when the driver reaches the pickup point.
type TripArrivedData struct {
	TripID     uuid.UUID `json:"trip_id"`
	RiderID    uuid.UUID `json:"rider_id"`
	DriverID   uuid.UUID `json:"driver_id"`
	ArrivedAt  time.Time `json:"arrived_at"`
}

// TripStartedData is emitted when the trip moves to IN_PROGRESS.
type TripStartedData struct {
	TripID    uuid.UUID `json:"trip_id"`
	RiderID   uuid.UUID `json:"rider_id"`
	DriverID  uuid.UUID `json:"driver_id"`
	StartedAt time.Time `json:"started_at"`
}

// TripCompletedData is emitted when settlement finishes settling a trip.
type TripCompletedData struct {
	TripID      uuid.UUID `json:"trip_id"`
	RiderID     uuid.UUID `json:"rider_id"`
	DriverID    uuid.UUID `json:"driver_id"`
	FareAmount  float64   `json:"fare_amount"`
	DistanceKm  float64   `json:"distance_km"`
	DurationMin float64   `json:"duration_min"`
	CompletedAt time.Time `json:"completed_at"`
}

// TripCancelledData is emitted when a trip is cancelled by rider, driver or admin.
type TripCancelledData struct {
	TripID      uuid.UUID `json:"trip_id"`
	RiderID     uuid.UUID `json:"rider_id"`
	DriverID    *uuid.UUID `json:"driver_id,omitempty"`
	CancelledBy string    `json:"cancelled_by"` // "rider", "driver", or "admin"
	Reason      string    `json:"reason"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// OfferCreatedData is emitted when dispatch issues a sequential offer to a candidate driver.
type OfferCreatedData struct {
	OfferID   uuid.UUID `json:"offer_id"`
	TripID    uuid.UUID `json:"trip_id"`
	DriverID  uuid.UUID `json:"driver_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// OfferExpiredData is emitted when an offer times out unaccepted.
type OfferExpiredData struct {
	OfferID   uuid.UUID `json:"offer_id"`
	TripID    uuid.UUID `json:"trip_id"`
	DriverID  uuid.UUID `json:"driver_id"`
	ExpiredAt time.Time `json:"expired_at"`
}

// SettlementCompletedData is emitted after settlement posts the commission split
// and driver earnings for a completed trip.
type SettlementCompletedData struct {
	TripID          uuid.UUID `json:"trip_id"`
	DriverID        uuid.UUID `json:"driver_id"`
	FareAmount      float64   `json:"fare_amount"`
	CommissionAmount float64  `json:"commission_amount"`
	DriverEarnings  float64   `json:"driver_earnings"`
	PaymentMethod   string    `json:"payment_method"`
	SettledAt       time.Time `json:"settled_at"`
}

// SettlementFailedData is emitted when a completeTrip transaction aborts.
type SettlementFailedData struct {
	TripID   uuid.UUID `json:"trip_id"`
	DriverID uuid.UUID `json:"driver_id"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failed_at"`
}

// DriverLocationUpdatedData is emitted on every accepted (non-anomalous)
// location fix. The spatial hub consumes it to fan the position out to geohash
// neighbor rooms across instances.
type DriverLocationUpdatedData struct {
	DriverID  uuid.UUID `json:"driver_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Bearing   float64   `json:"bearing"`
	GeoHash   string    `json:"geo_hash"`
	Timestamp time.Time `json:"timestamp"`
}

// DriverFlaggedData is emitted when a location fix is flagged as anomalous.
type DriverFlaggedData struct {
	DriverID     uuid.UUID `json:"driver_id"`
	Reason       string    `json:"reason"`
	AnomalyCount int       `json:"anomaly_count"`
	FlaggedAt    time.Time `json:"flagged_at"`
}

// SOSTriggeredData is emitted when a rider or driver raises an SOS during
// an active trip. Consumed by the admin safety audit trail.
type SOSTriggeredData struct {
	TripID      uuid.UUID `json:"trip_id"`
	TriggeredBy uuid.UUID `json:"triggered_by"`
	Role        string    `json:"role"` // "rider" or "driver"
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	TriggeredAt time.Time `json:"triggered_at"`
}
