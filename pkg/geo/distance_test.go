package geo_test

import (
	"testing"

	"github.com/richxcame/dispatch-core/pkg/geo"
	"github.com/stretchr/testify/assert"
)

func TestHaversine_SamePointIsZero(t *testing.T) {
	assert.Equal(t, 0.0, geo.Haversine(40.7128, -74.0060, 40.7128, -74.0060))
}

func TestHaversine_KnownDistance(t *testing.T) {
	// New York to Los Angeles is roughly 3935km great-circle.
	d := geo.Haversine(40.7128, -74.0060, 34.0522, -118.2437)
	assert.InDelta(t, 3935, d, 50)
}

func TestEstimateDuration(t *testing.T) {
	assert.Equal(t, 15, geo.EstimateDuration(10))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, geo.Clamp(-5, 0, 1))
	assert.Equal(t, 1.0, geo.Clamp(5, 0, 1))
	assert.Equal(t, 0.5, geo.Clamp(0.5, 0, 1))
}
