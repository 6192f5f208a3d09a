// Package creditledger implements the driver credit ledger: an
// append-only grant/deduction log whose running sum is the sole source
// of Driver.creditBalance, plus the admin-reviewed package purchase
// workflow that grants it.
package creditledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/richxcame/dispatch-core/pkg/models"
)

// perTripDeduction is the fixed per-completed-trip credit cost; the
// schema carries no per-driver override for it.
const perTripDeduction = 1

// Repository persists ledger rows, purchase requests, and the driver
// credit_balance/credit_expires_at columns the ledger backs.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository wires a Postgres-backed Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// DeductOneInTx deducts one credit from a driver within an
// already-open transaction (the settlement package's tx), writing the
// ledger row in the same commit so credit_balance and the ledger can
// never drift apart. Satisfies settlement.CreditDeductor.
func (r *Repository) DeductOneInTx(ctx context.Context, tx pgx.Tx, driverID, tripID uuid.UUID) error {
	return deductInTx(ctx, tx, driverID, &tripID, -perTripDeduction, "trip completion")
}

// DeductAdmin is the admin-initiated counterpart, used outside any
// settlement transaction (its own tx around the ledger insert and the
// balance update).
func (r *Repository) DeductAdmin(ctx context.Context, driverID uuid.UUID, credits int, reason string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := deductInTx(ctx, tx, driverID, nil, -credits, reason); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func deductInTx(ctx context.Context, tx pgx.Tx, driverID uuid.UUID, tripID *uuid.UUID, delta int, reason string) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO driver_credit_ledger (driver_id, credits_delta, reason, trip_id, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`, driverID, delta, reason, tripID); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `
		UPDATE drivers SET credit_balance = credit_balance + $1, updated_at = NOW() WHERE id = $2
	`, delta, driverID)
	return err
}

// grantInTx appends a positive ledger row and extends credit_expires_at
// within tx, used by the purchase-approval flow's single ACID
// transaction.
func grantInTx(ctx context.Context, tx pgx.Tx, driverID uuid.UUID, credits int, expiresAt time.Time, reason string) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO driver_credit_ledger (driver_id, credits_delta, reason, created_at)
		VALUES ($1, $2, $3, NOW())
	`, driverID, credits, reason); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `
		UPDATE drivers SET credit_balance = credit_balance + $1, credit_expires_at = $2, updated_at = NOW() WHERE id = $3
	`, credits, expiresAt, driverID)
	return err
}

// LedgerSum recomputes a driver's balance purely from the ledger, used
// by reconciliation to check it against drivers.credit_balance.
func (r *Repository) LedgerSum(ctx context.Context, driverID uuid.UUID) (int, error) {
	var sum int
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(credits_delta), 0) FROM driver_credit_ledger WHERE driver_id = $1
	`, driverID).Scan(&sum)
	return sum, err
}

// GetDriver loads a driver row by ID for purchase-request validation.
func (r *Repository) GetDriver(ctx context.Context, id uuid.UUID) (*models.Driver, error) {
	d := &models.Driver{}
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, status, vehicle_type, plate_number, rating, credit_balance,
		       credit_expires_at, base_fare, per_km_rate, city, province, stripe_account_id,
		       last_accepted_at, suspended_at, created_at, updated_at
		FROM drivers WHERE id = $1
	`, id).Scan(&d.ID, &d.UserID, &d.Status, &d.VehicleType, &d.PlateNumber, &d.Rating, &d.CreditBalance,
		&d.CreditExpiresAt, &d.BaseFare, &d.PerKmRate, &d.City, &d.Province, &d.StripeAccountID,
		&d.LastAcceptedAt, &d.SuspendedAt, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

// CreatePurchaseRequest inserts a PENDING credit purchase request.
func (r *Repository) CreatePurchaseRequest(ctx context.Context, req *models.CreditPurchaseRequest) (*models.CreditPurchaseRequest, error) {
	req.Status = models.CreditPurchasePending
	err := r.db.QueryRow(ctx, `
		INSERT INTO credit_purchase_requests (driver_id, credits, months, amount_charged, status, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, created_at
	`, req.DriverID, req.Credits, req.Months, req.AmountCharged, req.Status).Scan(&req.ID, &req.CreatedAt)
	return req, err
}

// GetPurchaseRequest loads a purchase request by ID.
func (r *Repository) GetPurchaseRequest(ctx context.Context, id uuid.UUID) (*models.CreditPurchaseRequest, error) {
	req := &models.CreditPurchaseRequest{}
	err := r.db.QueryRow(ctx, `
		SELECT id, driver_id, credits, months, amount_charged, status, reviewed_by, reject_reason, created_at, reviewed_at
		FROM credit_purchase_requests WHERE id = $1
	`, id).Scan(&req.ID, &req.DriverID, &req.Credits, &req.Months, &req.AmountCharged, &req.Status,
		&req.ReviewedBy, &req.RejectReason, &req.CreatedAt, &req.ReviewedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return req, err
}

// ApprovePurchaseRequest CAS-moves a PENDING request to APPROVED and, in
// the same transaction, grants the credits and extends expiry — the
// single ACID transaction the purchase flow requires. Returns false if
// the request was no longer PENDING (already reviewed by someone else).
func (r *Repository) ApprovePurchaseRequest(ctx context.Context, requestID, reviewerID uuid.UUID) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	var driverID uuid.UUID
	var credits, months int
	err = tx.QueryRow(ctx, `
		UPDATE credit_purchase_requests
		SET status = $1, reviewed_by = $2, reviewed_at = NOW()
		WHERE id = $3 AND status = $4
		RETURNING driver_id, credits, months
	`, models.CreditPurchaseApproved, reviewerID, requestID, models.CreditPurchasePending,
	).Scan(&driverID, &credits, &months)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := grantInTx(ctx, tx, driverID, credits, monthsFromNow(months), "package purchase approved"); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// RejectPurchaseRequest CAS-moves a PENDING request to REJECTED; unlike
// approval this never touches credit_balance.
func (r *Repository) RejectPurchaseRequest(ctx context.Context, requestID, reviewerID uuid.UUID, reason string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE credit_purchase_requests
		SET status = $1, reviewed_by = $2, reviewed_at = NOW(), reject_reason = $3
		WHERE id = $4 AND status = $5
	`, models.CreditPurchaseRejected, reviewerID, reason, requestID, models.CreditPurchasePending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// monthsFromNow computes the credit expiry stamped on a purchase
// approval: months·30d from the moment of approval.
func monthsFromNow(months int) time.Time {
	return time.Now().AddDate(0, 0, months*30)
}
