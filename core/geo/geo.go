// Package geo contains pure geographic and angular computation helpers.
package geo

import (
	"math"

	"github.com/fleetwise/fleetcore/core/model"
)

const earthRadiusM = 6371000.0

// HaversineMeters returns the great-circle distance in meters between two
// points specified in decimal degrees.
func HaversineMeters(a, b model.LatLng) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusM * c
}

// DeltaHeading returns the signed shortest angular difference from one
// heading to another, normalized into [-180, 180). Interpolating
// from + delta*t therefore never spins the long way around the 0/360 wrap.
func DeltaHeading(from, to float64) float64 {
	diff := math.Mod(to-from, 360)
	if diff < -180 {
		diff += 360
	}
	if diff >= 180 {
		diff -= 360
	}
	return diff
}

// NormalizeHeading folds an arbitrary angle into [0, 360).
func NormalizeHeading(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
