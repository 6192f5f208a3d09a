// Package geozone indexes demand and surge aggregation zones with H3.
// The rider-facing spatial pub/sub substrate (internal/spatial) uses
// geohash rooms instead; this package is purely the supplementary
// heatmap/surge layer.
package geozone

import (
	"github.com/uber/h3-go/v4"
)

// H3 resolution levels for different use cases.
// See: https://h3geo.org/docs/core-library/restable
const (
	// ResolutionSurge is used for surge pricing zones (~460m edge, ~0.74 km²).
	ResolutionSurge = 8

	// ResolutionDemand is used for demand heat maps (~1.2 km edge, ~5.16 km²).
	ResolutionDemand = 7

	// ResolutionCity is used for city-level aggregation (~3.2 km edge, ~36.13 km²).
	ResolutionCity = 6

	// KRingSurge is the k-ring radius for surge zone neighbours.
	KRingSurge = 2
)

// LatLngToCell converts latitude/longitude to an H3 cell index at the
// given resolution. Returns 0 on invalid input.
func LatLngToCell(lat, lng float64, resolution int) h3.Cell {
	latLng := h3.NewLatLng(lat, lng)
	cell, err := h3.LatLngToCell(latLng, resolution)
	if err != nil {
		return 0
	}
	return cell
}

// CellToLatLng returns the center coordinates of an H3 cell.
func CellToLatLng(cell h3.Cell) (lat, lng float64) {
	latLng, err := cell.LatLng()
	if err != nil {
		return 0, 0
	}
	return latLng.Lat, latLng.Lng
}

// GetKRingCells returns the set of H3 cell indexes within k rings of the origin cell.
func GetKRingCells(lat, lng float64, resolution, k int) []h3.Cell {
	origin := LatLngToCell(lat, lng, resolution)
	cells, err := origin.GridDisk(k)
	if err != nil {
		return []h3.Cell{origin}
	}
	return cells
}

// GetKRingCellStrings returns k-ring cells as hex strings for Redis key usage.
func GetKRingCellStrings(lat, lng float64, resolution, k int) []string {
	cells := GetKRingCells(lat, lng, resolution, k)
	result := make([]string, len(cells))
	for i, cell := range cells {
		result[i] = cell.String()
	}
	return result
}

// GetSurgeZone returns the H3 cell index (as string) for surge pricing at the given location.
func GetSurgeZone(lat, lng float64) string {
	return LatLngToCell(lat, lng, ResolutionSurge).String()
}

// GetDemandZone returns the H3 cell index (as string) for demand analytics at the given location.
func GetDemandZone(lat, lng float64) string {
	return LatLngToCell(lat, lng, ResolutionDemand).String()
}

// CellArea returns the approximate area of an H3 cell in square kilometers.
func CellArea(cell h3.Cell) float64 {
	area, err := h3.CellAreaKm2(cell)
	if err != nil {
		return 0
	}
	return area
}
