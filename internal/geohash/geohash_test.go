package geohash_test

import (
	"strings"
	"testing"

	"github.com/richxcame/dispatch-core/internal/geohash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const base32Alphabet = "0123456789bcdefghjkmnpqrstuvwxyz"

func TestEncode_Precision(t *testing.T) {
	hash := geohash.Encode(40.7128, -74.0060, 6)
	require.Len(t, hash, 6)
	for _, r := range hash {
		assert.Contains(t, base32Alphabet, string(r))
	}
}

func TestEncode_DefaultPrecision(t *testing.T) {
	hash := geohash.Encode(34.5333, 69.1667, 0)
	assert.Len(t, hash, geohash.DefaultPrecision)
}

func TestNeighbors_SelfAndEightSurrounding(t *testing.T) {
	hash := geohash.Encode(40.7128, -74.0060, 6)
	neighbors := geohash.Neighbors(hash)
	require.Len(t, neighbors, 9)
	assert.Equal(t, hash, neighbors[0])

	seen := make(map[string]bool)
	for _, n := range neighbors {
		require.Len(t, n, len(hash))
		for _, r := range n {
			assert.True(t, strings.ContainsRune(base32Alphabet, r))
		}
		seen[n] = true
	}
	// the 8 surrounding tiles should be distinct from each other
	assert.GreaterOrEqual(t, len(seen), 5)
}

func TestContains_CenterPoint(t *testing.T) {
	lat, lng := 40.7128, -74.0060
	hash := geohash.Encode(lat, lng, 6)
	assert.True(t, geohash.Contains(hash, lat, lng))
}

func TestNeighbors_NorthSouthDistinct(t *testing.T) {
	hash := geohash.Encode(0, 0, 5)
	neighbors := geohash.Neighbors(hash)
	north := neighbors[1]
	south := neighbors[2]
	assert.NotEqual(t, north, south)
	assert.NotEqual(t, hash, north)
	assert.NotEqual(t, hash, south)
}

func TestNeighbors_BorderCarry(t *testing.T) {
	// A tile straddling the equator/prime-meridian quadrant boundary
	// exercises the parent-carry recursion in adjacentCardinal.
	hash := geohash.Encode(0.0001, 0.0001, 7)
	neighbors := geohash.Neighbors(hash)
	require.Len(t, neighbors, 9)
	for _, n := range neighbors {
		assert.Len(t, n, 7)
	}
}
