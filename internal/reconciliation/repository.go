package reconciliation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/richxcame/dispatch-core/pkg/models"
)

// Repository persists reconciliation runs and reads the ledger side of
// the comparison.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository wires a Postgres-backed Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// DBTotal sums COMPLETED transactions (both CREDIT and DEBIT legs,
// which is the platform's total settled money movement for the window,
// not the net rider balance) created within [start, end).
func (r *Repository) DBTotal(ctx context.Context, start, end time.Time) (float64, error) {
	var total float64
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE status = $1 AND created_at >= $2 AND created_at < $3
	`, models.TxCompleted, start, end).Scan(&total)
	return total, err
}

// InsertLog persists one reconciliation run.
func (r *Repository) InsertLog(ctx context.Context, log *models.ReconciliationLog) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO reconciliation_logs (period_start, period_end, db_total, provider_total, mismatch, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, created_at
	`, log.PeriodStart, log.PeriodEnd, log.DBTotal, log.ProviderTotal, log.Mismatch, log.Details,
	).Scan(&log.ID, &log.CreatedAt)
}

// AllDriverIDs lists every driver for the credit-ledger invariant sweep.
func (r *Repository) AllDriverIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM drivers`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RecentLogs returns the most recent reconciliation runs, newest first,
// for the admin read-only view.
func (r *Repository) RecentLogs(ctx context.Context, limit int) ([]*models.ReconciliationLog, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, period_start, period_end, db_total, provider_total, mismatch, details, created_at
		FROM reconciliation_logs ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*models.ReconciliationLog
	for rows.Next() {
		l := &models.ReconciliationLog{}
		if err := rows.Scan(&l.ID, &l.PeriodStart, &l.PeriodEnd, &l.DBTotal, &l.ProviderTotal, &l.Mismatch, &l.Details, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
