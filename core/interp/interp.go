// Package interp renders smooth motion between two authoritative position
// samples. It is pure: no network, no persistence, just a function of the
// previous frame, the new sample and elapsed time.
package interp

import (
	"math"
	"time"

	"github.com/fleetwise/fleetcore/core/geo"
	"github.com/fleetwise/fleetcore/core/model"
)

// Frame is a synthetic, rendering-only position/heading sample.
type Frame struct {
	Pos     model.LatLng
	Heading float64
	T       float64 // progress of the current animation in [0,1]
}

// Config tunes the animation thresholds.
type Config struct {
	// MinDistanceM: below this the new sample is adopted immediately,
	// avoiding wasted animation on jitter.
	MinDistanceM float64
	// MaxDistanceM: above this the marker snaps instead of animating, so
	// an app resume or GPS reacquisition does not look supersonic.
	MaxDistanceM float64
	// Duration of one animation.
	Duration time.Duration
}

func (c *Config) setDefaults() {
	if c.MinDistanceM <= 0 {
		c.MinDistanceM = 5
	}
	if c.MaxDistanceM <= 0 {
		c.MaxDistanceM = 200
	}
	if c.Duration <= 0 {
		c.Duration = 2 * time.Second
	}
}

// Engine animates one marker. Not safe for concurrent use; each rendered
// worker owns its own engine.
type Engine struct {
	cfg Config

	startPos      model.LatLng
	startHeading  float64
	targetPos     model.LatLng
	targetHeading float64
	headingDelta  float64
	startedAt     time.Time
	animating     bool
	initialized   bool
}

// NewEngine creates an idle engine.
func NewEngine(cfg Config) *Engine {
	cfg.setDefaults()
	return &Engine{cfg: cfg}
}

// Retarget feeds a newly arrived authoritative sample. If an animation is in
// flight, the current interpolated value becomes the new start point and the
// clock resets, so there is no discontinuous jump.
func (e *Engine) Retarget(pos model.LatLng, heading float64, now time.Time) {
	if !e.initialized {
		e.snap(pos, heading)
		return
	}

	cur := e.FrameAt(now)
	dist := geo.HaversineMeters(cur.Pos, pos)
	if dist < e.cfg.MinDistanceM || dist > e.cfg.MaxDistanceM {
		// Jitter or teleport: adopt the sample as authoritative at once.
		e.snap(pos, heading)
		return
	}

	e.startPos = cur.Pos
	e.startHeading = cur.Heading
	e.targetPos = pos
	e.targetHeading = heading
	e.headingDelta = geo.DeltaHeading(cur.Heading, heading)
	e.startedAt = now
	e.animating = true
}

func (e *Engine) snap(pos model.LatLng, heading float64) {
	e.startPos = pos
	e.startHeading = heading
	e.targetPos = pos
	e.targetHeading = heading
	e.headingDelta = 0
	e.animating = false
	e.initialized = true
}

// FrameAt returns the interpolated frame for the given instant. Progress is
// eased with an ease-out cubic so motion decelerates into the target.
func (e *Engine) FrameAt(now time.Time) Frame {
	if !e.animating {
		return Frame{Pos: e.targetPos, Heading: e.targetHeading, T: 1}
	}
	p := now.Sub(e.startedAt).Seconds() / e.cfg.Duration.Seconds()
	if p >= 1 {
		e.animating = false
		return Frame{Pos: e.targetPos, Heading: e.targetHeading, T: 1}
	}
	if p < 0 {
		p = 0
	}
	eased := 1 - math.Pow(1-p, 3)

	lat := e.startPos.Lat + (e.targetPos.Lat-e.startPos.Lat)*eased
	lng := e.startPos.Lng + (e.targetPos.Lng-e.startPos.Lng)*eased
	heading := geo.NormalizeHeading(e.startHeading + e.headingDelta*eased)

	return Frame{Pos: model.LatLng{Lat: lat, Lng: lng}, Heading: heading, T: p}
}

// Animating reports whether an animation is still in flight at the instant.
func (e *Engine) Animating(now time.Time) bool {
	if !e.animating {
		return false
	}
	return now.Sub(e.startedAt) < e.cfg.Duration
}
