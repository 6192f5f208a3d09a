package geo

import (
	"math"
	"time"

	"github.com/richxcame/dispatch-core/pkg/geo"
)

// AnomalyConfig holds the thresholds applied to each incoming fix.
type AnomalyConfig struct {
	MaxJumpKm      float64
	MaxSpeedKmh    float64
	MaxDeviationM  float64
	DeviationStrikes int // consecutive deviations required to flag
}

// DefaultAnomalyConfig returns the thresholds named in the location service contract.
func DefaultAnomalyConfig() AnomalyConfig {
	return AnomalyConfig{
		MaxJumpKm:        2.0,
		MaxSpeedKmh:      180.0,
		MaxDeviationM:    500.0,
		DeviationStrikes: 3,
	}
}

// RouteLeg is the active trip's planned straight-line leg, used as the
// deviation reference when a driver is en route to pickup or dropoff.
type RouteLeg struct {
	FromLat, FromLng float64
	ToLat, ToLng     float64
}

// anomalyResult is the outcome of evaluating one incoming fix against the
// previously stored position. deviationStreak is the consecutive
// over-threshold deviation count to persist as the new anomalyCount — 0
// resets it, and it is unrelated to whether this particular fix flagged.
type anomalyResult struct {
	flagged         bool
	reason          string
	deviationM      float64
	deviationStreak int
}

// evaluate applies the teleport, speed and deviation rules in order and
// stops at the first one tripped — each is sufficient on its own to flag.
// priorDeviationStreak is the driver's current consecutive-deviation
// count, carried in the stored row's anomalyCount field.
func evaluate(cfg AnomalyConfig, prev *storedFix, rawLat, rawLng float64, now time.Time, route *RouteLeg, priorDeviationStreak int) anomalyResult {
	if prev != nil {
		elapsed := now.Sub(prev.updatedAt)
		distKm := geo.Haversine(prev.lat, prev.lng, rawLat, rawLng)

		if elapsed < 30*time.Second && distKm > cfg.MaxJumpKm {
			return anomalyResult{flagged: true, reason: "teleport", deviationStreak: priorDeviationStreak}
		}

		if elapsed > 0 {
			impliedSpeedKmh := distKm / elapsed.Hours()
			if impliedSpeedKmh > cfg.MaxSpeedKmh {
				return anomalyResult{flagged: true, reason: "speed", deviationStreak: priorDeviationStreak}
			}
		}
	}

	if route != nil {
		deviationM := perpendicularDistanceMeters(rawLat, rawLng, route.FromLat, route.FromLng, route.ToLat, route.ToLng)
		if deviationM > cfg.MaxDeviationM {
			streak := priorDeviationStreak + 1
			if streak >= cfg.DeviationStrikes {
				return anomalyResult{flagged: true, reason: "deviation", deviationM: deviationM, deviationStreak: streak}
			}
			return anomalyResult{flagged: false, deviationM: deviationM, deviationStreak: streak}
		}
	}

	return anomalyResult{flagged: false, deviationStreak: 0}
}

// storedFix is the minimal previous-position state the anomaly rules need.
type storedFix struct {
	lat, lng  float64
	updatedAt time.Time
}

// perpendicularDistanceMeters projects point P onto the great-circle-ish
// segment A-B using an equirectangular approximation, adequate at the
// scale of a single trip leg, and returns the distance from P to the
// projected point in meters.
func perpendicularDistanceMeters(pLat, pLng, aLat, aLng, bLat, bLng float64) float64 {
	const earthRadiusM = 6371000.0
	const degToRad = math.Pi / 180.0

	// Equirectangular projection centered on A, in meters.
	cosLat := math.Cos(aLat * degToRad)
	toXY := func(lat, lng float64) (float64, float64) {
		x := (lng - aLng) * degToRad * cosLat * earthRadiusM
		y := (lat - aLat) * degToRad * earthRadiusM
		return x, y
	}

	ax, ay := 0.0, 0.0
	bx, by := toXY(bLat, bLng)
	px, py := toXY(pLat, pLng)

	dx, dy := bx-ax, by-ay
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return math.Hypot(px-ax, py-ay)
	}

	t := ((px-ax)*dx + (py-ay)*dy) / lenSq
	t = geo.Clamp(t, 0, 1)

	projX := ax + t*dx
	projY := ay + t*dy
	return math.Hypot(px-projX, py-projY)
}
