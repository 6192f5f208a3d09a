// Package otp implements phone-based one-time-passcode issuance and
// verification: atomic single-active-code enforcement, a fixed hourly
// rate limit, and failed-attempt lockout, all backed by Postgres so the
// invariants hold across concurrent requests for the same phone.
package otp

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/richxcame/dispatch-core/pkg/models"
)

const uniqueViolationCode = "23505"

// Repository persists OTPs, the per-phone rate-limit counter, and the
// failed-attempt lock.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a Postgres-backed Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// ReplaceActiveOTP deletes any existing unverified OTP for phone and
// inserts a fresh one. The compound unique (phone, verified=false) index
// makes this atomic under concurrency: two callers racing on the same
// phone will have one succeed and one hit the unique violation, which is
// retried once per the single-active-code contract.
func (r *Repository) ReplaceActiveOTP(ctx context.Context, phone, codeHash string, expiresAt time.Time) (*models.OTP, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		otp, err := r.tryReplace(ctx, phone, codeHash, expiresAt)
		if err == nil {
			return otp, nil
		}
		if !isUniqueViolation(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (r *Repository) tryReplace(ctx context.Context, phone, codeHash string, expiresAt time.Time) (*models.OTP, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM otps WHERE phone = $1 AND verified = false`, phone); err != nil {
		return nil, err
	}

	otp := &models.OTP{
		Phone:          phone,
		CodeHash:       codeHash,
		ExpiresAt:      expiresAt,
		DeliveryStatus: models.DeliveryPending,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO otps (phone, code_hash, expires_at, verified, delivery_status)
		VALUES ($1, $2, $3, false, $4)
		RETURNING id, created_at
	`, phone, codeHash, expiresAt, models.DeliveryPending).Scan(&otp.ID, &otp.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return otp, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// GetActiveOTP returns the single unverified OTP for phone, or nil if
// absent or expired.
func (r *Repository) GetActiveOTP(ctx context.Context, phone string) (*models.OTP, error) {
	otp := &models.OTP{}
	err := r.db.QueryRow(ctx, `
		SELECT id, phone, code_hash, expires_at, verified, delivery_status, message_id, created_at
		FROM otps
		WHERE phone = $1 AND verified = false AND expires_at > NOW()
		ORDER BY created_at DESC
		LIMIT 1
	`, phone).Scan(&otp.ID, &otp.Phone, &otp.CodeHash, &otp.ExpiresAt, &otp.Verified, &otp.DeliveryStatus, &otp.MessageID, &otp.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return otp, nil
}

// MarkVerified flips the unique slot open again by setting verified=true.
func (r *Repository) MarkVerified(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `UPDATE otps SET verified = true WHERE id = $1`, id)
	return err
}

// SetDeliveryStatus records the delivery pipeline's progress for an OTP.
func (r *Repository) SetDeliveryStatus(ctx context.Context, id int64, status models.DeliveryStatus, messageID *string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE otps SET delivery_status = $1, message_id = COALESCE($2, message_id) WHERE id = $3
	`, status, messageID, id)
	return err
}

// MarkOTPDeliveryStatus updates the active unverified OTP row for phone.
// It satisfies messaging.OTPStatusSink structurally, letting the
// messaging service report delivery progress without otp importing it.
func (r *Repository) MarkOTPDeliveryStatus(ctx context.Context, phone string, status models.DeliveryStatus, messageID *string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE otps SET delivery_status = $1, message_id = COALESCE($2, message_id)
		WHERE phone = $3 AND verified = false
	`, status, messageID, phone)
	return err
}

// IncrementRateLimit bumps the counter for phone's current hour bucket,
// creating the row on first use, and returns the post-increment count.
func (r *Repository) IncrementRateLimit(ctx context.Context, phone string, windowStart time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		INSERT INTO otp_requests (phone, window_start, count)
		VALUES ($1, $2, 1)
		ON CONFLICT (phone, window_start) DO UPDATE SET count = otp_requests.count + 1
		RETURNING count
	`, phone, windowStart).Scan(&count)
	return count, err
}

// GetLock returns the lock row for phone, or nil if none exists.
func (r *Repository) GetLock(ctx context.Context, phone string) (*models.OTPLock, error) {
	lock := &models.OTPLock{}
	err := r.db.QueryRow(ctx, `
		SELECT phone, failed_attempts, locked_until FROM otp_locks WHERE phone = $1
	`, phone).Scan(&lock.Phone, &lock.FailedAttempts, &lock.LockedUntil)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return lock, nil
}

// RegisterFailedAttempt upserts the lock row, incrementing failedAttempts,
// and sets lockedUntil when threshold is reached.
func (r *Repository) RegisterFailedAttempt(ctx context.Context, phone string, threshold int, lockFor time.Duration) (*models.OTPLock, error) {
	lock := &models.OTPLock{Phone: phone}
	err := r.db.QueryRow(ctx, `
		INSERT INTO otp_locks (phone, failed_attempts, locked_until)
		VALUES ($1, 1, NULL)
		ON CONFLICT (phone) DO UPDATE SET failed_attempts = otp_locks.failed_attempts + 1
		RETURNING failed_attempts, locked_until
	`, phone).Scan(&lock.FailedAttempts, &lock.LockedUntil)
	if err != nil {
		return nil, err
	}

	if lock.FailedAttempts >= threshold && lock.LockedUntil == nil {
		lockedUntil := time.Now().Add(lockFor)
		if _, err := r.db.Exec(ctx, `UPDATE otp_locks SET locked_until = $1 WHERE phone = $2`, lockedUntil, phone); err != nil {
			return nil, err
		}
		lock.LockedUntil = &lockedUntil
	}

	return lock, nil
}

// ResetLock clears the lock row on successful verification.
func (r *Repository) ResetLock(ctx context.Context, phone string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM otp_locks WHERE phone = $1`, phone)
	return err
}

// SweepExpired deletes OTP and rate-limit rows older than olderThan,
// returning the total rows removed.
func (r *Repository) SweepExpired(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)

	otpTag, err := r.db.Exec(ctx, `DELETE FROM otps WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}

	requestTag, err := r.db.Exec(ctx, `DELETE FROM otp_requests WHERE window_start < $1`, cutoff)
	if err != nil {
		return 0, err
	}

	return otpTag.RowsAffected() + requestTag.RowsAffected(), nil
}
