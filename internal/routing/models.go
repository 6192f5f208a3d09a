// Package routing wraps an external directions/matrix provider behind a
// circuit breaker and a small results cache, with one hard rule: never
// fall back to a straight-line distance silently, fail loudly instead.
package routing

import "math"

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64
	Lng float64
}

// roundedKey buckets a point to ~100m precision so nearby requests
// share a cache entry.
func (p Point) roundedKey() Point {
	const precision = 1000.0 // ~100m at mid-latitudes
	return Point{
		Lat: math.Round(p.Lat*precision) / precision,
		Lng: math.Round(p.Lng*precision) / precision,
	}
}

// Route is the result of a directions lookup.
type Route struct {
	Polyline       string
	DistanceMeters int
	DurationSec    int
}

// Matrix is the result of a distance-matrix lookup, rows ordered by
// the origins slice and columns by the destinations slice.
type Matrix struct {
	Distances [][]int // meters
	Durations [][]int // seconds
}
