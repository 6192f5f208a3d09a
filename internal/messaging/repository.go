package messaging

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/richxcame/dispatch-core/pkg/models"
)

// Repository persists RideNotification rows and the OTP delivery-status
// column shared with the otp package.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a Postgres-backed Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const notificationColumns = `id, trip_id, driver_id, channel, recipient, template, body, status, message_id, retries, error, updated_at`

func scanNotification(row pgx.Row) (*models.RideNotification, error) {
	n := &models.RideNotification{}
	err := row.Scan(&n.ID, &n.TripID, &n.DriverID, &n.Channel, &n.Recipient, &n.Template, &n.Body, &n.Status, &n.MessageID, &n.Retries, &n.Error, &n.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return n, nil
}

// Create inserts a PENDING notification row and returns it with its
// generated ID.
func (r *Repository) Create(ctx context.Context, n *models.RideNotification) (*models.RideNotification, error) {
	n.Status = models.DeliveryPending
	err := r.db.QueryRow(ctx, `
		INSERT INTO ride_notifications (trip_id, driver_id, channel, recipient, template, body, status, retries, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, NOW())
		RETURNING id, updated_at
	`, n.TripID, n.DriverID, n.Channel, n.Recipient, n.Template, n.Body, n.Status).Scan(&n.ID, &n.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return n, nil
}

// Get loads a notification by ID.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.RideNotification, error) {
	n, err := scanNotification(r.db.QueryRow(ctx, `SELECT `+notificationColumns+` FROM ride_notifications WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return n, err
}

// GetByMessageID looks up the notification a webhook callback refers to.
func (r *Repository) GetByMessageID(ctx context.Context, messageID string) (*models.RideNotification, error) {
	n, err := scanNotification(r.db.QueryRow(ctx, `SELECT `+notificationColumns+` FROM ride_notifications WHERE message_id = $1`, messageID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return n, err
}

// MarkSent records the provider message ID and flips status to SENT after
// a successful provider call.
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID, messageID string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE ride_notifications SET status = $1, message_id = $2, updated_at = NOW() WHERE id = $3
	`, models.DeliverySent, messageID, id)
	return err
}

// MarkFailedAttempt increments the retry counter and records the error
// without yet declaring the notification permanently FAILED.
func (r *Repository) MarkFailedAttempt(ctx context.Context, id uuid.UUID, errMsg string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE ride_notifications SET retries = retries + 1, error = $1, updated_at = NOW() WHERE id = $2
	`, errMsg, id)
	return err
}

// MarkTerminalFailed sets status to FAILED once the retry budget is spent.
func (r *Repository) MarkTerminalFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE ride_notifications SET status = $1, error = $2, updated_at = NOW() WHERE id = $3
	`, models.DeliveryFailed, errMsg, id)
	return err
}

// SetStatusByMessageID advances delivery status in response to a webhook
// callback, keyed by the provider's message ID. The status ordering guard
// (PENDING < SENT < DELIVERED < READ < FAILED: a row only moves forward,
// never backward into an earlier state) keeps a duplicated or late
// callback idempotent.
func (r *Repository) SetStatusByMessageID(ctx context.Context, messageID string, status models.DeliveryStatus) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE ride_notifications
		SET status = $1, updated_at = NOW()
		WHERE message_id = $2
		  AND array_position(ARRAY['PENDING','SENT','DELIVERED','READ','FAILED'], status)
		    < array_position(ARRAY['PENDING','SENT','DELIVERED','READ','FAILED'], $1::text)
	`, status, messageID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// PendingRetries returns PENDING notifications below the retry cap whose
// last attempt is at least RetrySchedule[retries] old, for the retry
// queue sweep to re-attempt.
func (r *Repository) PendingRetries(ctx context.Context, maxRetries int, limit int) ([]*models.RideNotification, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM ride_notifications
		WHERE status = $1 AND retries < $2
		ORDER BY retries ASC
		LIMIT $3
	`, models.DeliveryPending, maxRetries, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.RideNotification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
