package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/richxcame/dispatch-core/pkg/models"
)

// acceptanceWindow is N in the acceptanceRate(past N=50 offers) contract.
// Exact per-offer history isn't retained; instead window_total/window_accepted
// are halved once the window is full, approximating a sliding window
// without an unbounded offers-history table.
const acceptanceWindow = 50

// Repository persists trips, offers, and the acceptance-rate feedback
// loop the scoring step reads from.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a Postgres-backed Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateTrip inserts a REQUESTED trip row.
func (r *Repository) CreateTrip(ctx context.Context, t *models.Trip) (*models.Trip, error) {
	t.Status = models.TripRequested
	err := r.db.QueryRow(ctx, `
		INSERT INTO trips (rider_id, status, pickup_lat, pickup_lng, drop_lat, drop_lng, service_type, payment_method, payment_status, scheduled_for, booking_channel, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`, t.RiderID, t.Status, t.PickupLat, t.PickupLng, t.DropLat, t.DropLng, t.ServiceType, t.PaymentMethod, t.PaymentStatus, t.ScheduledFor, t.BookingChannel,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
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

// GetTrip loads a trip by ID.
func (r *Repository) GetTrip(ctx context.Context, id uuid.UUID) (*models.Trip, error) {
	t, err := scanTrip(r.db.QueryRow(ctx, `SELECT `+tripColumns+` FROM trips WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

// DueScheduledTrips returns REQUESTED trips whose scheduled_for has
// arrived and which have never had an offer issued, for the scheduler
// sweep to kick off dispatch.
func (r *Repository) DueScheduledTrips(ctx context.Context, limit int) ([]*models.Trip, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+tripColumns+` FROM trips t
		WHERE t.status = $1 AND t.scheduled_for IS NOT NULL AND t.scheduled_for <= NOW()
		  AND NOT EXISTS (SELECT 1 FROM trip_offers o WHERE o.trip_id = t.id)
		ORDER BY t.scheduled_for ASC
		LIMIT $2
	`, models.TripRequested, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CancelTrip CAS-transitions a trip from fromStatus to CANCELLED,
// recording reason. Returns false if the trip was no longer in
// fromStatus (lost race, already handled).
func (r *Repository) CancelTrip(ctx context.Context, tripID uuid.UUID, fromStatus models.TripStatus, reason string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE trips SET status = $1, cancel_reason = $2, updated_at = NOW() WHERE id = $3 AND status = $4
	`, models.TripCancelled, reason, tripID, fromStatus)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// eligibleDriver is a scoring candidate's full data, joined from
// drivers, driver_locations, and driver_stats in one query.
type eligibleDriver struct {
	driver *models.Driver
	lat    float64
	lng    float64
	stats  models.DriverStats
}

// EligibleDrivers loads the subset of driverIDs that currently pass the
// candidacy filters: ONLINE, credit available and unexpired, no open
// anomaly flag, no recent suspension, not already holding a PENDING
// offer on any trip, and never previously offered tripID (so a driver
// who rejected or timed out isn't re-offered the same trip on the next
// round).
func (r *Repository) EligibleDrivers(ctx context.Context, driverIDs []uuid.UUID, tripID uuid.UUID) ([]eligibleDriver, error) {
	if len(driverIDs) == 0 {
		return nil, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT d.id, d.user_id, d.status, d.vehicle_type, d.plate_number, d.rating, d.credit_balance,
		       d.credit_expires_at, d.base_fare, d.per_km_rate, d.city, d.province, d.stripe_account_id,
		       d.last_accepted_at, d.suspended_at, d.created_at, d.updated_at,
		       dl.snapped_lat, dl.snapped_lng,
		       COALESCE(ds.window_accepted, 0), COALESCE(ds.window_total, 0)
		FROM drivers d
		JOIN driver_locations dl ON dl.driver_id = d.id
		LEFT JOIN driver_stats ds ON ds.driver_id = d.id
		WHERE d.id = ANY($1)
		  AND d.status = $2
		  AND d.credit_balance > 0
		  AND (d.credit_expires_at IS NULL OR d.credit_expires_at > NOW())
		  AND dl.anomaly_count = 0
		  AND (d.suspended_at IS NULL OR d.suspended_at < NOW() - INTERVAL '1 hour')
		  AND NOT EXISTS (SELECT 1 FROM trip_offers o WHERE o.driver_id = d.id AND o.status = $3)
		  AND NOT EXISTS (SELECT 1 FROM trip_offers o2 WHERE o2.driver_id = d.id AND o2.trip_id = $4)
	`, driverIDs, models.DriverOnline, models.OfferPending, tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []eligibleDriver
	for rows.Next() {
		d := &models.Driver{}
		var e eligibleDriver
		e.driver = d
		err := rows.Scan(&d.ID, &d.UserID, &d.Status, &d.VehicleType, &d.PlateNumber, &d.Rating, &d.CreditBalance,
			&d.CreditExpiresAt, &d.BaseFare, &d.PerKmRate, &d.City, &d.Province, &d.StripeAccountID,
			&d.LastAcceptedAt, &d.SuspendedAt, &d.CreatedAt, &d.UpdatedAt,
			&e.lat, &e.lng, &e.stats.WindowAccepted, &e.stats.WindowTotal)
		if err != nil {
			return nil, err
		}
		e.stats.DriverID = d.ID
		out = append(out, e)
	}
	return out, rows.Err()
}

// CreateOffer inserts a PENDING offer for driverID on tripID.
func (r *Repository) CreateOffer(ctx context.Context, o *models.TripOffer) (*models.TripOffer, error) {
	o.Status = models.OfferPending
	err := r.db.QueryRow(ctx, `
		INSERT INTO trip_offers (trip_id, driver_id, score, eta_minutes, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), $6)
		RETURNING id, created_at
	`, o.TripID, o.DriverID, o.Score, o.ETAMinutes, o.Status, o.ExpiresAt).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// GetOffer loads an offer by ID.
func (r *Repository) GetOffer(ctx context.Context, id uuid.UUID) (*models.TripOffer, error) {
	o := &models.TripOffer{}
	err := r.db.QueryRow(ctx, `
		SELECT id, trip_id, driver_id, score, eta_minutes, status, created_at, expires_at, responded_at
		FROM trip_offers WHERE id = $1
	`, id).Scan(&o.ID, &o.TripID, &o.DriverID, &o.Score, &o.ETAMinutes, &o.Status, &o.CreatedAt, &o.ExpiresAt, &o.RespondedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

// PendingOfferForDriver returns the PENDING offer for (tripID, driverID)
// if one exists, for the legacy trip-level accept path.
func (r *Repository) PendingOfferForDriver(ctx context.Context, tripID, driverID uuid.UUID) (*models.TripOffer, error) {
	o := &models.TripOffer{}
	err := r.db.QueryRow(ctx, `
		SELECT id, trip_id, driver_id, score, eta_minutes, status, created_at, expires_at, responded_at
		FROM trip_offers WHERE trip_id = $1 AND driver_id = $2 AND status = $3
	`, tripID, driverID, models.OfferPending).Scan(&o.ID, &o.TripID, &o.DriverID, &o.Score, &o.ETAMinutes, &o.Status, &o.CreatedAt, &o.ExpiresAt, &o.RespondedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

// ListOffers returns offers for tripID, most recent first, for the
// admin `GET /dispatch/offers` view.
func (r *Repository) ListOffers(ctx context.Context, tripID uuid.UUID) ([]*models.TripOffer, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, trip_id, driver_id, score, eta_minutes, status, created_at, expires_at, responded_at
		FROM trip_offers WHERE trip_id = $1 ORDER BY created_at DESC
	`, tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.TripOffer
	for rows.Next() {
		o := &models.TripOffer{}
		if err := rows.Scan(&o.ID, &o.TripID, &o.DriverID, &o.Score, &o.ETAMinutes, &o.Status, &o.CreatedAt, &o.ExpiresAt, &o.RespondedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// EnsureDispatchConfig seeds the singleton tuning row from the
// environment defaults on first boot; an existing row is left alone so
// admin edits survive restarts.
func (r *Repository) EnsureDispatchConfig(ctx context.Context, cfg models.DispatchConfig) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO dispatch_config (weight_eta, weight_rating, weight_acceptance, service_match_bonus,
			offer_timeout_sec, max_offers, search_radius_km, max_eta_minutes, commission_rate, cancellation_fee_enabled)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		WHERE NOT EXISTS (SELECT 1 FROM dispatch_config)
	`, cfg.WeightETA, cfg.WeightRating, cfg.WeightAcceptance, cfg.ServiceMatchBonus, cfg.OfferTimeoutSec,
		cfg.MaxOffers, cfg.SearchRadiusKm, cfg.MaxETAMinutes, cfg.CommissionRate, cfg.CancellationFeeEnabled)
	return err
}

// SetDispatchConfig overwrites the singleton tuning row (admin).
func (r *Repository) SetDispatchConfig(ctx context.Context, cfg models.DispatchConfig) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE dispatch_config SET weight_eta = $1, weight_rating = $2, weight_acceptance = $3,
			service_match_bonus = $4, offer_timeout_sec = $5, max_offers = $6, search_radius_km = $7,
			max_eta_minutes = $8, commission_rate = $9, cancellation_fee_enabled = $10
	`, cfg.WeightETA, cfg.WeightRating, cfg.WeightAcceptance, cfg.ServiceMatchBonus, cfg.OfferTimeoutSec,
		cfg.MaxOffers, cfg.SearchRadiusKm, cfg.MaxETAMinutes, cfg.CommissionRate, cfg.CancellationFeeEnabled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		_, err = r.db.Exec(ctx, `
			INSERT INTO dispatch_config (weight_eta, weight_rating, weight_acceptance, service_match_bonus,
				offer_timeout_sec, max_offers, search_radius_km, max_eta_minutes, commission_rate, cancellation_fee_enabled)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, cfg.WeightETA, cfg.WeightRating, cfg.WeightAcceptance, cfg.ServiceMatchBonus, cfg.OfferTimeoutSec,
			cfg.MaxOffers, cfg.SearchRadiusKm, cfg.MaxETAMinutes, cfg.CommissionRate, cfg.CancellationFeeEnabled)
	}
	return err
}

// CountOffers returns how many offers have been issued for tripID so
// far, to enforce maxOffers.
func (r *Repository) CountOffers(ctx context.Context, tripID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM trip_offers WHERE trip_id = $1`, tripID).Scan(&count)
	return count, err
}

// AcceptOffer is the sequential-exclusive-offer accept path: within one
// transaction, CAS the offer PENDING→ACCEPTED and the trip
// REQUESTED→ACCEPTED with driverId set. Either both succeed or neither
// does; a 0-row CAS on either statement means the offer lost a race
// (expired concurrently, or the trip was already claimed) and the whole
// attempt aborts.
func (r *Repository) AcceptOffer(ctx context.Context, offerID, tripID, driverID uuid.UUID) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	offerTag, err := tx.Exec(ctx, `
		UPDATE trip_offers SET status = $1, responded_at = $2 WHERE id = $3 AND status = $4
	`, models.OfferAccepted, now, offerID, models.OfferPending)
	if err != nil {
		return false, err
	}
	if offerTag.RowsAffected() != 1 {
		return false, nil
	}

	tripTag, err := tx.Exec(ctx, `
		UPDATE trips SET status = $1, driver_id = $2, updated_at = $3 WHERE id = $4 AND status = $5
	`, models.TripAccepted, driverID, now, tripID, models.TripRequested)
	if err != nil {
		return false, err
	}
	if tripTag.RowsAffected() != 1 {
		return false, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// SettleOffer CAS-transitions a PENDING offer to a terminal non-accept
// outcome (REJECTED or EXPIRED). Returns false if the offer had already
// moved on (e.g. the driver rejected just as the timeout fired).
func (r *Repository) SettleOffer(ctx context.Context, offerID uuid.UUID, to models.OfferStatus) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE trip_offers SET status = $1, responded_at = NOW() WHERE id = $2 AND status = $3
	`, to, offerID, models.OfferPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// RecordOfferOutcome updates the driver's rolling acceptance-rate
// window. Once window_total reaches acceptanceWindow both counters are
// halved before the new outcome is folded in, approximating a sliding
// window of the most recent N offers.
func (r *Repository) RecordOfferOutcome(ctx context.Context, driverID uuid.UUID, accepted bool) error {
	acceptedDelta := 0
	if accepted {
		acceptedDelta = 1
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO driver_stats (driver_id, window_accepted, window_total, updated_at)
		VALUES ($1, $2, 1, NOW())
		ON CONFLICT (driver_id) DO UPDATE SET
			window_accepted = CASE WHEN driver_stats.window_total >= $3 THEN driver_stats.window_accepted / 2 ELSE driver_stats.window_accepted END + $2,
			window_total     = CASE WHEN driver_stats.window_total >= $3 THEN driver_stats.window_total / 2 ELSE driver_stats.window_total END + 1,
			updated_at       = NOW()
	`, driverID, acceptedDelta, acceptanceWindow)
	return err
}

// SetLastAccepted stamps last_accepted_at after a winning AcceptOffer,
// used by the tie-break rule's "earlier lastAcceptedAt" clause.
func (r *Repository) SetLastAccepted(ctx context.Context, driverID uuid.UUID, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE drivers SET last_accepted_at = $1 WHERE id = $2`, at, driverID)
	return err
}

// GetDispatchConfig loads the singleton tuning row, falling back to
// models.DefaultDispatchConfig when the table hasn't been seeded yet.
func (r *Repository) GetDispatchConfig(ctx context.Context) (models.DispatchConfig, error) {
	cfg := models.DefaultDispatchConfig()
	err := r.db.QueryRow(ctx, `
		SELECT weight_eta, weight_rating, weight_acceptance, service_match_bonus, offer_timeout_sec,
		       max_offers, search_radius_km, max_eta_minutes, commission_rate, cancellation_fee_enabled
		FROM dispatch_config LIMIT 1
	`).Scan(&cfg.WeightETA, &cfg.WeightRating, &cfg.WeightAcceptance, &cfg.ServiceMatchBonus, &cfg.OfferTimeoutSec,
		&cfg.MaxOffers, &cfg.SearchRadiusKm, &cfg.MaxETAMinutes, &cfg.CommissionRate, &cfg.CancellationFeeEnabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	return cfg, nil
}

// UserPhone resolves a user's phone number for notification delivery.
func (r *Repository) UserPhone(ctx context.Context, userID uuid.UUID) (string, error) {
	var phone string
	err := r.db.QueryRow(ctx, `SELECT phone FROM users WHERE id = $1`, userID).Scan(&phone)
	return phone, err
}

// DriverPhone resolves a driver's phone through the owning user row.
func (r *Repository) DriverPhone(ctx context.Context, driverID uuid.UUID) (string, error) {
	var phone string
	err := r.db.QueryRow(ctx, `
		SELECT u.phone FROM users u JOIN drivers d ON d.user_id = u.id WHERE d.id = $1
	`, driverID).Scan(&phone)
	return phone, err
}
