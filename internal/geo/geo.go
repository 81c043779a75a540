// Package geo provides the bearing derivation and pseudo-random offset helpers
// used by the registry's course-derivation rule and the FPV alert Normalizer.
package geo

import (
	"hash/fnv"
	"math"

	"github.com/martinlindhe/unit"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// FeetToMeters converts an altitude reported in feet to meters.
func FeetToMeters(feet float64) float64 {
	return float64(unit.Length(feet) * unit.Foot)
}

// KnotsToMPS converts a ground speed reported in knots to meters/second.
func KnotsToMPS(knots float64) float64 {
	return float64(unit.Speed(knots) * unit.Knot)
}

// FeetPerMinuteToMPS converts a vertical rate reported in feet/minute to
// meters/second.
func FeetPerMinuteToMPS(fpm float64) float64 {
	return FeetToMeters(fpm) / 60.0
}

// Bearing returns the great-circle initial bearing in degrees, normalized to
// [0, 360), from (lat1, lon1) to (lat2, lon2).
func Bearing(lat1, lon1, lat2, lon2 float64) float64 {
	from := orb.Point{lon1, lat1}
	to := orb.Point{lon2, lat2}
	b := geo.Bearing(from, to)
	if b < 0 {
		b += 360
	}
	return math.Mod(b, 360)
}

// DeterministicOffset returns a position offset from (lat, lon) by up to
// radiusM meters, in a direction and distance derived deterministically from
// key, so repeated calls with the same key and anchor return the same point.
func DeterministicOffset(lat, lon, radiusM float64, key string) (float64, float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	sum := h.Sum64()

	bearingDeg := float64(sum%3600) / 10.0
	distFrac := float64((sum/3600)%1000) / 1000.0
	distM := distFrac * radiusM

	origin := orb.Point{lon, lat}
	dst := geo.PointAtBearingAndDistance(origin, bearingDeg, distM)
	return dst[1], dst[0]
}
