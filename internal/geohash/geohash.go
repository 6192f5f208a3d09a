// Package geohash encodes coordinates into base32 tile identifiers and
// computes the 8 surrounding tiles, for the spatial pub/sub room scheme
// in internal/spatial.
package geohash

import "strings"

const base32Alphabet = "0123456789bcdefghjkmnpqrstuvwxyz"

// DefaultPrecision yields roughly 1.2km x 0.6km tiles at the equator.
const DefaultPrecision = 6

var base32Index = func() map[byte]int {
	idx := make(map[byte]int, len(base32Alphabet))
	for i := 0; i < len(base32Alphabet); i++ {
		idx[base32Alphabet[i]] = i
	}
	return idx
}()

// Encode returns the base32 geohash for (lat, lng) at the given
// precision (number of characters).
func Encode(lat, lng float64, precision int) string {
	if precision <= 0 {
		precision = DefaultPrecision
	}

	latRange := [2]float64{-90.0, 90.0}
	lngRange := [2]float64{-180.0, 180.0}

	var buf strings.Builder
	bit := 0
	ch := 0
	evenBit := true // longitude first

	for buf.Len() < precision {
		if evenBit {
			mid := (lngRange[0] + lngRange[1]) / 2
			if lng >= mid {
				ch |= 1 << uint(4-bit)
				lngRange[0] = mid
			} else {
				lngRange[1] = mid
			}
		} else {
			mid := (latRange[0] + latRange[1]) / 2
			if lat >= mid {
				ch |= 1 << uint(4-bit)
				latRange[0] = mid
			} else {
				latRange[1] = mid
			}
		}
		evenBit = !evenBit

		if bit < 4 {
			bit++
		} else {
			buf.WriteByte(base32Alphabet[ch])
			bit = 0
			ch = 0
		}
	}

	return buf.String()
}

// bounds decodes a geohash into its bounding box: [latMin, latMax, lngMin, lngMax].
func bounds(hash string) (latMin, latMax, lngMin, lngMax float64) {
	latMin, latMax = -90.0, 90.0
	lngMin, lngMax = -180.0, 180.0
	evenBit := true

	for i := 0; i < len(hash); i++ {
		cd, ok := base32Index[hash[i]]
		if !ok {
			continue
		}
		for mask := 16; mask > 0; mask >>= 1 {
			if evenBit {
				mid := (lngMin + lngMax) / 2
				if cd&mask != 0 {
					lngMin = mid
				} else {
					lngMax = mid
				}
			} else {
				mid := (latMin + latMax) / 2
				if cd&mask != 0 {
					latMin = mid
				} else {
					latMax = mid
				}
			}
			evenBit = !evenBit
		}
	}
	return latMin, latMax, lngMin, lngMax
}

// direction identifies one of the 8 compass neighbors.
type direction int

const (
	north direction = iota
	south
	east
	west
	northEast
	northWest
	southEast
	southWest
)

// adjacent returns the geohash of the tile immediately in the given
// direction from hash, using the standard row-carrying border algorithm
// (walks the bit-interleaved representation rather than perturbing the
// decoded center coordinate, so adjacency is exact across tile borders).
func adjacent(hash string, dir direction) string {
	switch dir {
	case north, south:
		return adjacentCardinal(hash, dir)
	case east, west:
		return adjacentCardinal(hash, dir)
	case northEast:
		return adjacentCardinal(adjacentCardinal(hash, north), east)
	case northWest:
		return adjacentCardinal(adjacentCardinal(hash, north), west)
	case southEast:
		return adjacentCardinal(adjacentCardinal(hash, south), east)
	case southWest:
		return adjacentCardinal(adjacentCardinal(hash, south), west)
	}
	return hash
}

// borders/neighbours tables from the canonical geohash algorithm,
// indexed by [direction][0 for even hash length, 1 for odd].
var neighborBorders = map[direction][2]string{
	north: {"prxz", "bcfguvyz"},
	south: {"028b", "0145hjnp"},
	east:  {"bcfguvyz", "prxz"},
	west:  {"0145hjnp", "028b"},
}

var neighborEven = map[direction]string{
	north: "p0r21436x8zb9dcf5h7kjnmqesgutwvy",
	south: "14365h7k9dcfesgujnmqp0r2twvyx8zb",
	east:  "bc01fg45238967deuvhjyznpkmstqrwx",
	west:  "238967debc01fg45kmstqrwxuvhjyznp",
}

var neighborOdd = map[direction]string{
	north: "bc01fg45238967deuvhjyznpkmstqrwx",
	south: "238967debc01fg45kmstqrwxuvhjyznp",
	east:  "p0r21436x8zb9dcf5h7kjnmqesgutwvy",
	west:  "14365h7k9dcfesgujnmqp0r2twvyx8zb",
}

// adjacentCardinal computes one cardinal-direction step via the
// classic lookup-table recursion, carrying into the parent cell when the
// last character sits on a border.
func adjacentCardinal(hash string, dir direction) string {
	if hash == "" {
		return hash
	}
	lastCh := hash[len(hash)-1]
	parent := hash[:len(hash)-1]

	isOdd := len(hash)%2 == 1
	borderSet := neighborBorders[dir]
	var border string
	var table string
	if isOdd {
		border = borderSet[1]
		table = neighborOdd[dir]
	} else {
		border = borderSet[0]
		table = neighborEven[dir]
	}

	if strings.IndexByte(border, lastCh) != -1 && parent != "" {
		parent = adjacentCardinal(parent, dir)
	}

	idx := strings.IndexByte(base32Alphabet, lastCh)
	return parent + string(table[idx])
}

// Neighbors returns the 9-tile fan-out (self plus the 8 surrounding
// tiles: N, S, E, W, NE, NW, SE, SW) for hash.
func Neighbors(hash string) []string {
	return []string{
		hash,
		adjacent(hash, north),
		adjacent(hash, south),
		adjacent(hash, east),
		adjacent(hash, west),
		adjacent(hash, northEast),
		adjacent(hash, northWest),
		adjacent(hash, southEast),
		adjacent(hash, southWest),
	}
}

// Contains reports whether (lat, lng) falls within hash's bounding box.
func Contains(hash string, lat, lng float64) bool {
	latMin, latMax, lngMin, lngMax := bounds(hash)
	return lat >= latMin && lat <= latMax && lng >= lngMin && lng <= lngMax
}
