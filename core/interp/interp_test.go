package interp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fleetwise/fleetcore/core/model"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// about 50 m north of the base point
func north(base model.LatLng, meters float64) model.LatLng {
	return model.LatLng{Lat: base.Lat + meters/111195.0, Lng: base.Lng}
}

func TestFirstSampleSnaps(t *testing.T) {
	e := NewEngine(Config{})
	p := model.LatLng{Lat: 32.9, Lng: 35.0}
	e.Retarget(p, 90, t0)
	f := e.FrameAt(t0)
	assert.Equal(t, p, f.Pos)
	assert.Equal(t, 90.0, f.Heading)
	assert.False(t, e.Animating(t0))
}

func TestJitterSkipsAnimation(t *testing.T) {
	e := NewEngine(Config{MinDistanceM: 5, MaxDistanceM: 200, Duration: 2 * time.Second})
	base := model.LatLng{Lat: 32.9, Lng: 35.0}
	e.Retarget(base, 0, t0)

	e.Retarget(north(base, 3), 0, t0.Add(time.Second))
	assert.False(t, e.Animating(t0.Add(time.Second)), "sub-threshold moves snap immediately")
	f := e.FrameAt(t0.Add(time.Second))
	assert.Equal(t, north(base, 3), f.Pos)
}

func TestTeleportSnaps(t *testing.T) {
	e := NewEngine(Config{MinDistanceM: 5, MaxDistanceM: 200, Duration: 2 * time.Second})
	base := model.LatLng{Lat: 32.9, Lng: 35.0}
	e.Retarget(base, 0, t0)

	far := north(base, 5000)
	e.Retarget(far, 0, t0.Add(time.Second))
	assert.False(t, e.Animating(t0.Add(time.Second)), "teleports snap instead of animating")
	assert.Equal(t, far, e.FrameAt(t0.Add(time.Second)).Pos)
}

func TestEaseOutCubicProgress(t *testing.T) {
	e := NewEngine(Config{MinDistanceM: 5, MaxDistanceM: 200, Duration: 2 * time.Second})
	base := model.LatLng{Lat: 32.9, Lng: 35.0}
	e.Retarget(base, 0, t0)

	target := north(base, 100)
	e.Retarget(target, 0, t0)

	// At half time, ease-out cubic progress is 1-(1-0.5)^3 = 0.875.
	f := e.FrameAt(t0.Add(time.Second))
	wantLat := base.Lat + (target.Lat-base.Lat)*0.875
	assert.InDelta(t, wantLat, f.Pos.Lat, 1e-9)
	assert.True(t, e.Animating(t0.Add(time.Second)))

	// At and beyond the duration the target is authoritative.
	f = e.FrameAt(t0.Add(3 * time.Second))
	assert.Equal(t, target, f.Pos)
	assert.False(t, e.Animating(t0.Add(3*time.Second)))
}

func TestHeadingShortestPath(t *testing.T) {
	e := NewEngine(Config{MinDistanceM: 5, MaxDistanceM: 200, Duration: 2 * time.Second})
	base := model.LatLng{Lat: 32.9, Lng: 35.0}
	e.Retarget(base, 350, t0)

	e.Retarget(north(base, 100), 10, t0)

	// Interpolating 350 -> 10 must pass through 0/360, never 180.
	for _, frac := range []float64{0.1, 0.3, 0.5, 0.7, 0.9} {
		f := e.FrameAt(t0.Add(time.Duration(float64(2*time.Second) * frac)))
		inWrap := f.Heading >= 350 || f.Heading <= 10
		assert.True(t, inWrap, "heading %v at progress %v left the short arc", f.Heading, frac)
	}
	f := e.FrameAt(t0.Add(3 * time.Second))
	assert.InDelta(t, 10, f.Heading, 1e-9)
}

func TestRetargetMidFlight(t *testing.T) {
	e := NewEngine(Config{MinDistanceM: 5, MaxDistanceM: 200, Duration: 2 * time.Second})
	base := model.LatLng{Lat: 32.9, Lng: 35.0}
	e.Retarget(base, 0, t0)
	e.Retarget(north(base, 100), 0, t0)

	// A new sample arrives mid-animation; the in-flight value becomes the
	// new start point, so the frame right after retargeting matches the
	// frame right before it.
	mid := t0.Add(time.Second)
	before := e.FrameAt(mid)
	e.Retarget(north(base, 150), 0, mid)
	after := e.FrameAt(mid)
	assert.InDelta(t, before.Pos.Lat, after.Pos.Lat, 1e-9)
	assert.InDelta(t, before.Pos.Lng, after.Pos.Lng, 1e-9)
	assert.True(t, e.Animating(mid.Add(time.Millisecond)), "timing resets on retarget")
}
