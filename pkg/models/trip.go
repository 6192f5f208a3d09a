package models

import (
	"time"

	"github.com/google/uuid"
)

// TripStatus is the trip state machine. Transitions are
// monotonic; COMPLETED and CANCELLED are terminal.
type TripStatus string

const (
	TripRequested  TripStatus = "REQUESTED"
	TripAccepted   TripStatus = "ACCEPTED"
	TripArrived    TripStatus = "ARRIVED"
	TripInProgress TripStatus = "IN_PROGRESS"
	TripCompleted  TripStatus = "COMPLETED"
	TripCancelled  TripStatus = "CANCELLED"
)

// nextAllowed enumerates the forward edges of the state machine; CANCELLED
// is reachable from every non-terminal state and is listed per-state for
// an explicit, auditable transition table rather than a blanket exception.
var nextAllowed = map[TripStatus][]TripStatus{
	TripRequested:  {TripAccepted, TripCancelled},
	TripAccepted:   {TripArrived, TripCancelled},
	TripArrived:    {TripInProgress, TripCancelled},
	TripInProgress: {TripCompleted, TripCancelled},
	TripCompleted:  {},
	TripCancelled:  {},
}

// CanTransition reports whether from → to is a legal edge in the trip
// state machine, independent of authorization.
func CanTransition(from, to TripStatus) bool {
	for _, allowed := range nextAllowed[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether status has no further transitions.
func IsTerminal(status TripStatus) bool {
	return status == TripCompleted || status == TripCancelled
}

type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "CASH"
	PaymentWallet PaymentMethod = "WALLET"
)

type PaymentStatus string

const (
	TripPaymentPending   PaymentStatus = "PENDING"
	TripPaymentCollected PaymentStatus = "COLLECTED"
	TripPaymentFailed    PaymentStatus = "FAILED"
)

type BookingChannel string

const (
	BookingApp   BookingChannel = "APP"
	BookingPhone BookingChannel = "PHONE"
)

// Trip is mutated only by the dispatch engine and the state
// machine. driverId stays nil until ACCEPTED.
type Trip struct {
	ID              uuid.UUID      `json:"id" db:"id"`
	RiderID         uuid.UUID      `json:"rider_id" db:"rider_id"`
	DriverID        *uuid.UUID     `json:"driver_id,omitempty" db:"driver_id"`
	Status          TripStatus     `json:"status" db:"status"`
	PickupLat       float64        `json:"pickup_lat" db:"pickup_lat"`
	PickupLng       float64        `json:"pickup_lng" db:"pickup_lng"`
	DropLat         float64        `json:"drop_lat" db:"drop_lat"`
	DropLng         float64        `json:"drop_lng" db:"drop_lng"`
	Fare            *float64       `json:"fare,omitempty" db:"fare"`
	Commission      *float64       `json:"commission,omitempty" db:"commission"`
	DriverEarnings  *float64       `json:"driver_earnings,omitempty" db:"driver_earnings"`
	Distance        *float64       `json:"distance,omitempty" db:"distance"`
	Duration        *int           `json:"duration,omitempty" db:"duration"`
	ServiceType     string         `json:"service_type" db:"service_type"`
	PaymentMethod   PaymentMethod  `json:"payment_method" db:"payment_method"`
	PaymentStatus   PaymentStatus  `json:"payment_status" db:"payment_status"`
	ScheduledFor    *time.Time     `json:"scheduled_for,omitempty" db:"scheduled_for"`
	BookingChannel  BookingChannel `json:"booking_channel" db:"booking_channel"`
	CancelReason    *string        `json:"cancel_reason,omitempty" db:"cancel_reason"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at" db:"updated_at"`
}

type OfferStatus string

const (
	OfferPending  OfferStatus = "PENDING"
	OfferAccepted OfferStatus = "ACCEPTED"
	OfferRejected OfferStatus = "REJECTED"
	OfferExpired  OfferStatus = "EXPIRED"
)

// TripOffer is the sequential exclusive invitation dispatch issues to one
// candidate at a time. At most one ACCEPTED offer ever exists per trip.
type TripOffer struct {
	ID          uuid.UUID   `json:"id" db:"id"`
	TripID      uuid.UUID   `json:"trip_id" db:"trip_id"`
	DriverID    uuid.UUID   `json:"driver_id" db:"driver_id"`
	Score       float64     `json:"score" db:"score"`
	ETAMinutes  float64     `json:"eta_minutes" db:"eta_minutes"`
	Status      OfferStatus `json:"status" db:"status"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	ExpiresAt   time.Time   `json:"expires_at" db:"expires_at"`
	RespondedAt *time.Time  `json:"responded_at,omitempty" db:"responded_at"`
}

// DispatchConfig is the singleton tuning row read by dispatch.
type DispatchConfig struct {
	WeightETA              float64 `json:"weight_eta" db:"weight_eta" validate:"gte=0"`
	WeightRating           float64 `json:"weight_rating" db:"weight_rating" validate:"gte=0"`
	WeightAcceptance       float64 `json:"weight_acceptance" db:"weight_acceptance" validate:"gte=0"`
	ServiceMatchBonus      float64 `json:"service_match_bonus" db:"service_match_bonus" validate:"gte=0"`
	OfferTimeoutSec        int     `json:"offer_timeout_sec" db:"offer_timeout_sec" validate:"required,gt=0"`
	MaxOffers              int     `json:"max_offers" db:"max_offers" validate:"required,gt=0"`
	SearchRadiusKm         float64 `json:"search_radius_km" db:"search_radius_km" validate:"required,gt=0"`
	MaxETAMinutes          float64 `json:"max_eta_minutes" db:"max_eta_minutes" validate:"required,gt=0"`
	CommissionRate         float64 `json:"commission_rate" db:"commission_rate" validate:"gte=0,lte=1"`
	CancellationFeeEnabled bool    `json:"cancellation_fee_enabled" db:"cancellation_fee_enabled"`
}

// DefaultDispatchConfig mirrors the defaults enumerated in the external
// interfaces' configuration table.
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		WeightETA:              0.40,
		WeightRating:           0.25,
		WeightAcceptance:       0.20,
		ServiceMatchBonus:      0.15,
		OfferTimeoutSec:        30,
		MaxOffers:              3,
		SearchRadiusKm:         10,
		MaxETAMinutes:          20,
		CommissionRate:         0.20,
		CancellationFeeEnabled: false,
	}
}

// SOSEvent is an append-only audit record; it never mutates trip status.
type SOSEvent struct {
	ID          uuid.UUID `json:"id" db:"id"`
	TripID      uuid.UUID `json:"trip_id" db:"trip_id"`
	TriggeredBy uuid.UUID `json:"triggered_by" db:"triggered_by"`
	Note        *string   `json:"note,omitempty" db:"note"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
