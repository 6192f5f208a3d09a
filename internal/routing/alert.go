package routing

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AdminAlerter records an event for the admin audit surface. Implemented
// by Postgres here; the reconciliation job's mismatch and ledger-drift
// alerts use the same table.
type AdminAlerter interface {
	RecordAlert(ctx context.Context, alertType, message string) error
}

// AlertRepository persists admin alerts to Postgres.
type AlertRepository struct {
	db *pgxpool.Pool
}

// NewAlertRepository creates a Postgres-backed AdminAlerter.
func NewAlertRepository(db *pgxpool.Pool) *AlertRepository {
	return &AlertRepository{db: db}
}

func (r *AlertRepository) RecordAlert(ctx context.Context, alertType, message string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO admin_alerts (alert_type, message, created_at) VALUES ($1, $2, $3)`,
		alertType, message, time.Now(),
	)
	return err
}
