package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fleetwise/fleetcore/core/model"
)

func TestHaversineMeters(t *testing.T) {
	// One degree of latitude is roughly 111.2 km.
	a := model.LatLng{Lat: 32.0, Lng: 35.0}
	b := model.LatLng{Lat: 33.0, Lng: 35.0}
	d := HaversineMeters(a, b)
	assert.InDelta(t, 111195, d, 300)
}

func TestHaversineSmallStep(t *testing.T) {
	// 0.0001 degrees in both axes at this latitude is about 14 m.
	a := model.LatLng{Lat: 32.9270, Lng: 35.0830}
	b := model.LatLng{Lat: 32.9271, Lng: 35.0831}
	d := HaversineMeters(a, b)
	assert.Greater(t, d, 10.0)
	assert.Less(t, d, 20.0)
}

func TestHaversineZero(t *testing.T) {
	p := model.LatLng{Lat: 10, Lng: 10}
	assert.Equal(t, 0.0, HaversineMeters(p, p))
}

func TestDeltaHeadingShortestPath(t *testing.T) {
	cases := []struct {
		from, to, want float64
	}{
		{350, 10, 20},   // crosses the 0/360 wrap forward
		{10, 350, -20},  // crosses the wrap backward
		{0, 180, -180},  // exactly opposite normalizes to -180
		{90, 100, 10},   // plain forward
		{100, 90, -10},  // plain backward
		{0, 0, 0},
	}
	for _, c := range cases {
		assert.InDelta(t, c.want, DeltaHeading(c.from, c.to), 1e-9, "from %v to %v", c.from, c.to)
	}
}

func TestNormalizeHeading(t *testing.T) {
	assert.InDelta(t, 355, NormalizeHeading(-5), 1e-9)
	assert.InDelta(t, 5, NormalizeHeading(365), 1e-9)
	assert.InDelta(t, 0, NormalizeHeading(720), 1e-9)
}
