package models

import (
	"time"

	"github.com/google/uuid"
)

// DriverLocation is mutated only by the location service; one row per driver.
type DriverLocation struct {
	DriverID     uuid.UUID `json:"driver_id" db:"driver_id"`
	RawLat       float64   `json:"raw_lat" db:"raw_lat"`
	RawLng       float64   `json:"raw_lng" db:"raw_lng"`
	SnappedLat   float64   `json:"snapped_lat" db:"snapped_lat"`
	SnappedLng   float64   `json:"snapped_lng" db:"snapped_lng"`
	Bearing      float64   `json:"bearing" db:"bearing"`
	Deviation    float64   `json:"deviation" db:"deviation"`
	AnomalyCount int       `json:"anomaly_count" db:"anomaly_count"`
	GeoHash      string    `json:"geo_hash" db:"geo_hash"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}
