package trip

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/richxcame/dispatch-core/pkg/models"
)

// Repository persists trip status transitions and the SOS audit trail.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a Postgres-backed Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const tripColumns = `id, rider_id, driver_id, status, pickup_lat, pickup_lng, drop_lat, drop_lng, fare, commission, driver_earnings, distance, duration, service_type, payment_method, payment_status, scheduled_for, booking_channel, cancel_reason, created_at, updated_at`

func scanTrip(row pgx.Row) (*models.Trip, error) {
	t := &models.Trip{}
	err := row.Scan(&t.ID, &t.RiderID, &t.DriverID, &t.Status, &t.PickupLat, &t.PickupLng, &t.DropLat, &t.DropLng,
		&t.Fare, &t.Commission, &t.DriverEarnings, &t.Distance, &t.Duration, &t.ServiceType, &t.PaymentMethod,
		&t.PaymentStatus, &t.ScheduledFor, &t.BookingChannel, &t.CancelReason, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetTrip loads a trip by ID. Returns (nil, nil) when absent.
func (r *Repository) GetTrip(ctx context.Context, id uuid.UUID) (*models.Trip, error) {
	t, err := scanTrip(r.db.QueryRow(ctx, `SELECT `+tripColumns+` FROM trips WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

// Transition CAS-moves a trip from one status to the next, optionally
// stamping cancelReason. Returns false if the trip was no longer in
// fromStatus — the caller surfaces this as InvalidStateTransition.
func (r *Repository) Transition(ctx context.Context, tripID uuid.UUID, from, to models.TripStatus, cancelReason *string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE trips SET status = $1, cancel_reason = COALESCE($2, cancel_reason), updated_at = NOW()
		WHERE id = $3 AND status = $4
	`, to, cancelReason, tripID, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// DriverIDForUser resolves the drivers.id row owned by a DRIVER-role
// user, for authorizing trip transitions against the caller's own
// user_id rather than requiring a separate driver_id claim everywhere.
func (r *Repository) DriverIDForUser(ctx context.Context, userID uuid.UUID) (*uuid.UUID, error) {
	var driverID uuid.UUID
	err := r.db.QueryRow(ctx, `SELECT id FROM drivers WHERE user_id = $1`, userID).Scan(&driverID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &driverID, nil
}

// SetTripMetrics stamps the fare/distance/duration a driver reports at
// trip end, ahead of the settlement transaction that reads fare to
// compute the commission split.
func (r *Repository) SetTripMetrics(ctx context.Context, tripID uuid.UUID, fare, distanceKm float64, durationSec int) error {
	_, err := r.db.Exec(ctx, `
		UPDATE trips SET fare = $1, distance = $2, duration = $3, updated_at = NOW() WHERE id = $4
	`, fare, distanceKm, durationSec, tripID)
	return err
}

// MarkPaymentCollected flips a CASH trip's payment_status from PENDING
// to COLLECTED once the driver confirms cash in hand. It is a CAS on
// payment_status rather than trip status, so it never interferes with
// the status machine. Returns false if the trip's payment was
// already collected or failed.
func (r *Repository) MarkPaymentCollected(ctx context.Context, tripID uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE trips SET payment_status = $1, updated_at = NOW()
		WHERE id = $2 AND payment_status = $3
	`, models.TripPaymentCollected, tripID, models.TripPaymentPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// InsertSOSEvent appends an SOS audit record. This never touches trip
// status — it is purely an append-only side channel.
func (r *Repository) InsertSOSEvent(ctx context.Context, e *models.SOSEvent) (*models.SOSEvent, error) {
	err := r.db.QueryRow(ctx, `
		INSERT INTO sos_events (trip_id, triggered_by, note, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, created_at
	`, e.TripID, e.TriggeredBy, e.Note).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ActiveTripForDriver returns the single IN_PROGRESS trip owned by a
// driver, or (nil, nil) if the driver has none — the common case the deviation filter's
// deviation check hits on every fix from a driver who hasn't picked up
// a rider yet.
func (r *Repository) ActiveTripForDriver(ctx context.Context, driverID uuid.UUID) (*models.Trip, error) {
	t, err := scanTrip(r.db.QueryRow(ctx, `
		SELECT `+tripColumns+` FROM trips WHERE driver_id = $1 AND status = $2 LIMIT 1
	`, driverID, models.TripInProgress))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

// ListSOSEvents returns the SOS audit trail for a trip, most recent
// first, for the admin read-only view.
func (r *Repository) ListSOSEvents(ctx context.Context, tripID uuid.UUID) ([]*models.SOSEvent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, trip_id, triggered_by, note, created_at FROM sos_events
		WHERE trip_id = $1 ORDER BY created_at DESC
	`, tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.SOSEvent
	for rows.Next() {
		e := &models.SOSEvent{}
		if err := rows.Scan(&e.ID, &e.TripID, &e.TriggeredBy, &e.Note, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
