package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationChannel is the outbound delivery channel for a RideNotification.
type NotificationChannel string

const (
	ChannelSMS   NotificationChannel = "SMS"
	ChannelPush  NotificationChannel = "PUSH"
	ChannelWA    NotificationChannel = "WHATSAPP"
)

// RideNotification tracks one outbound message's delivery lifecycle
// through the messaging retry queue.
type RideNotification struct {
	ID        uuid.UUID           `json:"id" db:"id"`
	TripID    uuid.UUID           `json:"trip_id" db:"trip_id"`
	DriverID  *uuid.UUID          `json:"driver_id,omitempty" db:"driver_id"`
	Channel   NotificationChannel `json:"channel" db:"channel"`
	Recipient string              `json:"recipient" db:"recipient"`
	Template  string              `json:"template" db:"template"`
	Body      string              `json:"body" db:"body"`
	Status    DeliveryStatus      `json:"status" db:"status"`
	MessageID *string             `json:"message_id,omitempty" db:"message_id"`
	Retries   int                 `json:"retries" db:"retries"`
	Error     *string             `json:"error,omitempty" db:"error"`
	UpdatedAt time.Time           `json:"updated_at" db:"updated_at"`
}
