package models

import (
	"time"

	"github.com/google/uuid"
)

// UserRole is immutable once a user is created.
type UserRole string

const (
	RoleRider  UserRole = "RIDER"
	RoleDriver UserRole = "DRIVER"
	RoleAdmin  UserRole = "ADMIN"
)

// User is a platform account; phone is the unique identity OTP issuance
// and lookup key off of.
type User struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Phone     string    `json:"phone" db:"phone"`
	Role      UserRole  `json:"role" db:"role"`
	Name      *string   `json:"name,omitempty" db:"name"`
	Email     *string   `json:"email,omitempty" db:"email"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// DriverStatus tracks availability for dispatch candidacy.
type DriverStatus string

const (
	DriverOffline   DriverStatus = "OFFLINE"
	DriverOnline    DriverStatus = "ONLINE"
	DriverBusy      DriverStatus = "BUSY"
	DriverSuspended DriverStatus = "SUSPENDED"
)

// Driver is 1:1 with a DRIVER-role User.
type Driver struct {
	ID              uuid.UUID    `json:"id" db:"id"`
	UserID          uuid.UUID    `json:"user_id" db:"user_id"`
	Status          DriverStatus `json:"status" db:"status"`
	VehicleType     string       `json:"vehicle_type" db:"vehicle_type"`
	PlateNumber     string       `json:"plate_number" db:"plate_number"`
	Rating          float64      `json:"rating" db:"rating"`
	CreditBalance   int          `json:"credit_balance" db:"credit_balance"`
	CreditExpiresAt *time.Time   `json:"credit_expires_at,omitempty" db:"credit_expires_at"`
	BaseFare        float64      `json:"base_fare" db:"base_fare"`
	PerKmRate       float64      `json:"per_km_rate" db:"per_km_rate"`
	City            string       `json:"city" db:"city"`
	Province        string       `json:"province" db:"province"`
	StripeAccountID *string      `json:"stripe_account_id,omitempty" db:"stripe_account_id"`
	LastAcceptedAt  *time.Time   `json:"last_accepted_at,omitempty" db:"last_accepted_at"`
	SuspendedAt     *time.Time   `json:"suspended_at,omitempty" db:"suspended_at"`
	CreatedAt       time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at" db:"updated_at"`
}

// DriverStats tracks the rolling acceptance-rate window: the last N
// offers' outcomes, as a simple accepted/total counter pair halved once
// the window fills, rather than a full per-offer history table.
type DriverStats struct {
	DriverID        uuid.UUID `json:"driver_id" db:"driver_id"`
	WindowAccepted  int       `json:"window_accepted" db:"window_accepted"`
	WindowTotal     int       `json:"window_total" db:"window_total"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// AcceptanceRate returns the rolling acceptance rate in [0,1], defaulting
// to a neutral 0.5 for drivers with no offer history yet so new drivers
// aren't scored to the bottom of every candidate list.
func (s DriverStats) AcceptanceRate() float64 {
	if s.WindowTotal == 0 {
		return 0.5
	}
	return float64(s.WindowAccepted) / float64(s.WindowTotal)
}
