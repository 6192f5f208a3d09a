package geo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/richxcame/dispatch-core/pkg/models"
)

// Repository persists the single DriverLocation row per driver this service owns.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new location repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetByDriverID returns the last stored location for a driver, or nil if
// the driver has never reported one.
func (r *Repository) GetByDriverID(ctx context.Context, driverID uuid.UUID) (*models.DriverLocation, error) {
	query := `
		SELECT driver_id, raw_lat, raw_lng, snapped_lat, snapped_lng,
			   bearing, deviation, anomaly_count, geo_hash, updated_at
		FROM driver_locations
		WHERE driver_id = $1
	`

	loc := &models.DriverLocation{}
	err := r.db.QueryRow(ctx, query, driverID).Scan(
		&loc.DriverID,
		&loc.RawLat,
		&loc.RawLng,
		&loc.SnappedLat,
		&loc.SnappedLng,
		&loc.Bearing,
		&loc.Deviation,
		&loc.AnomalyCount,
		&loc.GeoHash,
		&loc.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get driver location: %w", err)
	}

	return loc, nil
}

// Upsert writes the driver's current snapped position. One row per driver.
func (r *Repository) Upsert(ctx context.Context, loc *models.DriverLocation) error {
	query := `
		INSERT INTO driver_locations (
			driver_id, raw_lat, raw_lng, snapped_lat, snapped_lng,
			bearing, deviation, anomaly_count, geo_hash, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (driver_id) DO UPDATE SET
			raw_lat = EXCLUDED.raw_lat,
			raw_lng = EXCLUDED.raw_lng,
			snapped_lat = EXCLUDED.snapped_lat,
			snapped_lng = EXCLUDED.snapped_lng,
			bearing = EXCLUDED.bearing,
			deviation = EXCLUDED.deviation,
			anomaly_count = EXCLUDED.anomaly_count,
			geo_hash = EXCLUDED.geo_hash,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.Exec(ctx, query,
		loc.DriverID,
		loc.RawLat,
		loc.RawLng,
		loc.SnappedLat,
		loc.SnappedLng,
		loc.Bearing,
		loc.Deviation,
		loc.AnomalyCount,
		loc.GeoHash,
		loc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert driver location: %w", err)
	}
	return nil
}

// IncrementAnomalyCount bumps anomaly_count for a flagged update without
// touching the snapped position, since a flagged fix is never propagated.
func (r *Repository) IncrementAnomalyCount(ctx context.Context, driverID uuid.UUID, rawLat, rawLng float64) error {
	query := `
		INSERT INTO driver_locations (driver_id, raw_lat, raw_lng, snapped_lat, snapped_lng, anomaly_count, updated_at)
		VALUES ($1, $2, $3, $2, $3, 1, NOW())
		ON CONFLICT (driver_id) DO UPDATE SET
			raw_lat = EXCLUDED.raw_lat,
			raw_lng = EXCLUDED.raw_lng,
			anomaly_count = driver_locations.anomaly_count + 1,
			updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, query, driverID, rawLat, rawLng)
	if err != nil {
		return fmt.Errorf("increment anomaly count: %w", err)
	}
	return nil
}
