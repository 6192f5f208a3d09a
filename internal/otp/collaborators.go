package otp

import (
	"context"

	"github.com/google/uuid"
	"github.com/richxcame/dispatch-core/pkg/models"
)

// UserLookup resolves the User a verified phone number belongs to,
// creating a RIDER account on first verification. Declared here (rather
// than importing a user package) so otp stays independent of how
// accounts are persisted elsewhere; the concrete implementation lives
// alongside the auth/user package wired in at cmd/server.
type UserLookup interface {
	GetOrCreateRiderByPhone(ctx context.Context, phone string) (*models.User, error)
	// DriverIDForUser resolves the driver row for a DRIVER-role user so
	// the minted token can carry the driver_id claim the real-time
	// protocol keys driver rooms by. Returns (nil, nil) for non-drivers.
	DriverIDForUser(ctx context.Context, userID uuid.UUID) (*uuid.UUID, error)
}

// Notifier hands OTP delivery to the messaging pipeline. RequestOTP calls
// it from a background goroutine, so the request never blocks on the
// network; the messaging implementation makes the provider call
// synchronously and reports the result on the OTP row.
type Notifier interface {
	SendOTP(ctx context.Context, phone, code string) error
}
