package models

import "time"

// DeliveryStatus is shared by OTPs and RideNotifications as they move
// through the messaging pipeline.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "PENDING"
	DeliverySent      DeliveryStatus = "SENT"
	DeliveryDelivered DeliveryStatus = "DELIVERED"
	DeliveryRead      DeliveryStatus = "READ"
	DeliveryFailed    DeliveryStatus = "FAILED"
)

// OTP enforces the compound-unique (phone, verified=false) invariant at
// the database layer; at most one unverified row exists per phone.
type OTP struct {
	ID             int64          `json:"id" db:"id"`
	Phone          string         `json:"phone" db:"phone"`
	CodeHash       string         `json:"-" db:"code_hash"`
	ExpiresAt      time.Time      `json:"expires_at" db:"expires_at"`
	Verified       bool           `json:"verified" db:"verified"`
	DeliveryStatus DeliveryStatus `json:"delivery_status" db:"delivery_status"`
	MessageID      *string        `json:"message_id,omitempty" db:"message_id"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}

// OTPRequest is the fixed-window rate-limit counter, one row per
// (phone, windowStart) clock-hour bucket.
type OTPRequest struct {
	Phone       string    `json:"phone" db:"phone"`
	WindowStart time.Time `json:"window_start" db:"window_start"`
	Count       int       `json:"count" db:"count"`
}

// OTPLock tracks failed verification attempts and the resulting lockout.
type OTPLock struct {
	Phone          string     `json:"phone" db:"phone"`
	FailedAttempts int        `json:"failed_attempts" db:"failed_attempts"`
	LockedUntil    *time.Time `json:"locked_until,omitempty" db:"locked_until"`
}
