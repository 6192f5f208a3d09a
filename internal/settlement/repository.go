package settlement

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/richxcame/dispatch-core/pkg/models"
)

// Repository persists the settlement transaction's effects: the wallet
// ledger (transactions table), the trip's fare/commission/status CAS,
// and driver payouts. Every write that must be atomic with another one
// takes an explicit pgx.Tx so Service.CompleteTrip can compose them
// into a single commit.
type Repository struct {
	db     *pgxpool.Pool
	credit CreditDeductor
}

// NewRepository wires a Postgres-backed Repository. credit may be nil
// in tests that never exercise the per-trip credit deduction.
func NewRepository(db *pgxpool.Pool, credit CreditDeductor) *Repository {
	return &Repository{db: db, credit: credit}
}

// LoadTripForUpdate reads a trip row and locks it for the duration of
// tx, so a concurrent settlement attempt on the same trip blocks
// behind this one rather than racing the balance check.
func (r *Repository) LoadTripForUpdate(ctx context.Context, tx pgx.Tx, tripID uuid.UUID) (*models.Trip, error) {
	t := &models.Trip{}
	err := tx.QueryRow(ctx, `
		SELECT id, rider_id, driver_id, status, pickup_lat, pickup_lng, drop_lat, drop_lng,
		       fare, commission, driver_earnings, distance, duration, service_type,
		       payment_method, payment_status, scheduled_for, booking_channel, cancel_reason,
		       created_at, updated_at
		FROM trips WHERE id = $1 FOR UPDATE
	`, tripID).Scan(&t.ID, &t.RiderID, &t.DriverID, &t.Status, &t.PickupLat, &t.PickupLng, &t.DropLat, &t.DropLng,
		&t.Fare, &t.Commission, &t.DriverEarnings, &t.Distance, &t.Duration, &t.ServiceType,
		&t.PaymentMethod, &t.PaymentStatus, &t.ScheduledFor, &t.BookingChannel, &t.CancelReason,
		&t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

// WalletBalance computes Balance(u) = Σ(CREDIT.COMPLETED) − Σ(DEBIT.COMPLETED)
// directly from the transactions table. There is no denormalized
// balance column anywhere in this schema to drift from this query.
func (r *Repository) WalletBalance(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (float64, error) {
	var balance float64
	q := `
		SELECT COALESCE(SUM(CASE WHEN type = $1 AND status = $2 THEN amount ELSE 0 END), 0)
		     - COALESCE(SUM(CASE WHEN type = $3 AND status = $2 THEN amount ELSE 0 END), 0)
		FROM transactions WHERE user_id = $4
	`
	var err error
	if tx != nil {
		err = tx.QueryRow(ctx, q, models.TxCredit, models.TxCompleted, models.TxDebit, userID).Scan(&balance)
	} else {
		err = r.db.QueryRow(ctx, q, models.TxCredit, models.TxCompleted, models.TxDebit, userID).Scan(&balance)
	}
	return balance, err
}

// InsertTransactionInTx appends a COMPLETED ledger row within tx.
func (r *Repository) InsertTransactionInTx(ctx context.Context, tx pgx.Tx, txn *models.Transaction) error {
	return tx.QueryRow(ctx, `
		INSERT INTO transactions (id, user_id, trip_id, amount, type, status, stripe_payment_id, created_at)
		VALUES (COALESCE($1, gen_random_uuid()), $2, $3, $4, $5, $6, $7, NOW())
		RETURNING id, created_at
	`, nilIfZero(txn.ID), txn.UserID, txn.TripID, txn.Amount, txn.Type, txn.Status, txn.StripePaymentID,
	).Scan(&txn.ID, &txn.CreatedAt)
}

// CompleteTripInTx performs the IN_PROGRESS→COMPLETED CAS together with the
// commission split, in the same transaction as the wallet debit and
// credit deduction. Returns false if the trip was no longer IN_PROGRESS
// — the only way two concurrent completions of the same trip can race.
func (r *Repository) CompleteTripInTx(ctx context.Context, tx pgx.Tx, tripID uuid.UUID, fare, commission, driverEarnings float64) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE trips
		SET status = $1, commission = $2, driver_earnings = $3, payment_status = $4, updated_at = NOW()
		WHERE id = $5 AND status = $6
	`, models.TripCompleted, commission, driverEarnings, models.TripPaymentCollected, tripID, models.TripInProgress)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// BeginTx starts a transaction for Service.CompleteTrip to drive.
func (r *Repository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.db.Begin(ctx)
}

// DeductCreditInTx delegates to the injected CreditDeductor, a no-op
// when none is configured (tests that don't exercise credit deduction).
func (r *Repository) DeductCreditInTx(ctx context.Context, tx pgx.Tx, driverID, tripID uuid.UUID) error {
	if r.credit == nil {
		return nil
	}
	return r.credit.DeductOneInTx(ctx, tx, driverID, tripID)
}

// GetPayout loads a payout by ID, used by ProcessPayout's idempotency
// check: a payout already COMPLETED or PROCESSING is never resubmitted.
func (r *Repository) GetPayout(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	p := &models.Payout{}
	err := r.db.QueryRow(ctx, `
		SELECT id, driver_id, amount, status, stripe_transfer_id, idempotency_key, failure_reason, created_at
		FROM payouts WHERE id = $1
	`, id).Scan(&p.ID, &p.DriverID, &p.Amount, &p.Status, &p.StripeTransferID, &p.IdempotencyKey, &p.FailureReason, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// GetPayoutByIdempotencyKey finds an existing payout for a key, so a
// caller that retries a payout request after a timeout gets the
// original result instead of a second Stripe transfer.
func (r *Repository) GetPayoutByIdempotencyKey(ctx context.Context, key string) (*models.Payout, error) {
	p := &models.Payout{}
	err := r.db.QueryRow(ctx, `
		SELECT id, driver_id, amount, status, stripe_transfer_id, idempotency_key, failure_reason, created_at
		FROM payouts WHERE idempotency_key = $1
	`, key).Scan(&p.ID, &p.DriverID, &p.Amount, &p.Status, &p.StripeTransferID, &p.IdempotencyKey, &p.FailureReason, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// CreatePayout inserts a PENDING_MANUAL_REVIEW payout row.
func (r *Repository) CreatePayout(ctx context.Context, p *models.Payout) (*models.Payout, error) {
	p.Status = models.PayoutPendingReview
	err := r.db.QueryRow(ctx, `
		INSERT INTO payouts (driver_id, amount, status, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, created_at
	`, p.DriverID, p.Amount, p.Status, p.IdempotencyKey).Scan(&p.ID, &p.CreatedAt)
	return p, err
}

// MarkPayoutProcessing CAS-moves a payout to PROCESSING, guarding
// against two callers racing the same payout row.
func (r *Repository) MarkPayoutProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE payouts SET status = $1 WHERE id = $2 AND status = $3
	`, models.PayoutProcessing, id, models.PayoutPendingReview)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkPayoutCompleted stamps the Stripe transfer ID and COMPLETED
// status — the only state in which StripeTransferID is ever set.
func (r *Repository) MarkPayoutCompleted(ctx context.Context, id uuid.UUID, stripeTransferID string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE payouts SET status = $1, stripe_transfer_id = $2 WHERE id = $3
	`, models.PayoutCompleted, stripeTransferID, id)
	return err
}

// MarkPayoutFailed records a failed transfer attempt with its reason.
func (r *Repository) MarkPayoutFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE payouts SET status = $1, failure_reason = $2 WHERE id = $3
	`, models.PayoutFailed, reason, id)
	return err
}

// DriverEarningsTotal sums driver_earnings over the driver's COMPLETED
// trips. Payouts already made are not subtracted.
func (r *Repository) DriverEarningsTotal(ctx context.Context, driverID uuid.UUID) (float64, error) {
	var total float64
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(driver_earnings), 0) FROM trips
		WHERE driver_id = $1 AND status = $2
	`, driverID, models.TripCompleted).Scan(&total)
	return total, err
}

func nilIfZero(id uuid.UUID) interface{} {
	if id == uuid.Nil {
		return nil
	}
	return id
}
