// Package users owns the User row lifecycle shared by the OTP login
// flow and the trip/dispatch layers that reference riderId/driverId.
package users

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/richxcame/dispatch-core/pkg/models"
)

// Repository persists users.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a Postgres-backed Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetByPhone returns the user with this phone number, or nil if absent.
func (r *Repository) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	u := &models.User{}
	err := r.db.QueryRow(ctx, `
		SELECT id, phone, role, name, email, created_at, updated_at FROM users WHERE phone = $1
	`, phone).Scan(&u.ID, &u.Phone, &u.Role, &u.Name, &u.Email, &u.CreatedAt, &u.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetOrCreateRiderByPhone implements internal/otp.UserLookup: a phone
// number that verifies an OTP for the first time becomes a RIDER
// account. ON CONFLICT DO NOTHING plus a re-select handles the race
// between concurrent verifications for the same number.
func (r *Repository) GetOrCreateRiderByPhone(ctx context.Context, phone string) (*models.User, error) {
	u := &models.User{}
	err := r.db.QueryRow(ctx, `
		INSERT INTO users (id, phone, role, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (phone) DO NOTHING
		RETURNING id, phone, role, name, email, created_at, updated_at
	`, uuid.New(), phone, models.RoleRider).Scan(&u.ID, &u.Phone, &u.Role, &u.Name, &u.Email, &u.CreatedAt, &u.UpdatedAt)
	if err == nil {
		return u, nil
	}
	if err != pgx.ErrNoRows {
		return nil, err
	}
	return r.GetByPhone(ctx, phone)
}

// DriverIDForUser resolves the driver row owned by a user, or (nil, nil)
// when the user has none.
func (r *Repository) DriverIDForUser(ctx context.Context, userID uuid.UUID) (*uuid.UUID, error) {
	var id uuid.UUID
	err := r.db.QueryRow(ctx, `SELECT id FROM drivers WHERE user_id = $1`, userID).Scan(&id)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}
