package geo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEvaluate_NoPriorFix_NeverFlags(t *testing.T) {
	cfg := DefaultAnomalyConfig()
	result := evaluate(cfg, nil, 40.7128, -74.0060, time.Now(), nil, 0)
	assert.False(t, result.flagged)
}

func TestEvaluate_Teleport(t *testing.T) {
	cfg := DefaultAnomalyConfig()
	now := time.Now()
	prev := &storedFix{lat: 40.7128, lng: -74.0060, updatedAt: now.Add(-10 * time.Second)}

	// ~140km away in under 10s: well past MaxJumpKm within 30s.
	result := evaluate(cfg, prev, 41.8781, -87.6298, now, nil, 0)
	assert.True(t, result.flagged)
	assert.Equal(t, "teleport", result.reason)
}

func TestEvaluate_Speed(t *testing.T) {
	cfg := DefaultAnomalyConfig()
	now := time.Now()
	// 5km in 60s implies 300 km/h, over MaxSpeedKmh but the jump itself
	// (5km within >30s) doesn't trip the teleport rule.
	prev := &storedFix{lat: 40.7128, lng: -74.0060, updatedAt: now.Add(-60 * time.Second)}
	result := evaluate(cfg, prev, 40.7578, -74.0060, now, nil, 0)
	assert.True(t, result.flagged)
	assert.Equal(t, "speed", result.reason)
}

func TestEvaluate_WithinThresholds_NotFlagged(t *testing.T) {
	cfg := DefaultAnomalyConfig()
	now := time.Now()
	prev := &storedFix{lat: 40.7128, lng: -74.0060, updatedAt: now.Add(-60 * time.Second)}
	// ~100m move in 60s: well within thresholds.
	result := evaluate(cfg, prev, 40.7137, -74.0060, now, nil, 0)
	assert.False(t, result.flagged)
}

func TestEvaluate_DeviationBelowStrikeCount_NotFlagged(t *testing.T) {
	cfg := DefaultAnomalyConfig()
	route := &RouteLeg{FromLat: 40.0, FromLng: -74.0, ToLat: 40.1, ToLng: -74.0}

	// Point far east of the north-south route leg.
	result := evaluate(cfg, nil, 40.05, -73.5, time.Now(), route, 0)
	assert.False(t, result.flagged)
	assert.Equal(t, 1, result.deviationStreak)
}

func TestEvaluate_DeviationReachesStrikeCount_Flagged(t *testing.T) {
	cfg := DefaultAnomalyConfig()
	route := &RouteLeg{FromLat: 40.0, FromLng: -74.0, ToLat: 40.1, ToLng: -74.0}

	result := evaluate(cfg, nil, 40.05, -73.5, time.Now(), route, 2)
	assert.True(t, result.flagged)
	assert.Equal(t, "deviation", result.reason)
	assert.Equal(t, 3, result.deviationStreak)
}

func TestEvaluate_OnRoute_NoDeviation(t *testing.T) {
	cfg := DefaultAnomalyConfig()
	route := &RouteLeg{FromLat: 40.0, FromLng: -74.0, ToLat: 40.1, ToLng: -74.0}

	result := evaluate(cfg, nil, 40.05, -74.0001, time.Now(), route, 0)
	assert.False(t, result.flagged)
	assert.Equal(t, 0, result.deviationStreak)
}

func TestPerpendicularDistanceMeters_OnSegment(t *testing.T) {
	d := perpendicularDistanceMeters(40.05, -74.0, 40.0, -74.0, 40.1, -74.0)
	assert.InDelta(t, 0, d, 1.0)
}

func TestPerpendicularDistanceMeters_OffSegment(t *testing.T) {
	d := perpendicularDistanceMeters(40.05, -73.99, 40.0, -74.0, 40.1, -74.0)
	assert.Greater(t, d, 500.0)
}
