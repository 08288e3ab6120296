package main

import (
	"math"
	"math/rand"
	"time"

	"github.com/fleetwise/fleetcore/core/availability"
	"github.com/fleetwise/fleetcore/core/geo"
	"github.com/fleetwise/fleetcore/core/location"
	"github.com/fleetwise/fleetcore/core/model"
)

// metersPerDegreeLat is close enough for simulation-scale moves.
const metersPerDegreeLat = 111_320.0

// SimWorker is one roaming worker: a random-walk GPS source feeding the
// throttling controller, plus an availability toggle that flips on a coin.
type SimWorker struct {
	ID     string
	ZoneID string

	loc   *location.Controller
	avail *availability.Controller

	pos     model.LatLng
	heading float64
	rng     *rand.Rand
}

// Step advances the walk by one tick and offers the resulting fix to the
// location controller. Heading drifts by up to ±30 degrees per tick.
func (w *SimWorker) Step(dt time.Duration, speedMPS float64) {
	w.heading = geo.NormalizeHeading(w.heading + (w.rng.Float64()-0.5)*60)
	dist := speedMPS * dt.Seconds()

	rad := w.heading * math.Pi / 180
	dLat := dist * math.Cos(rad) / metersPerDegreeLat
	dLng := dist * math.Sin(rad) / (metersPerDegreeLat * math.Cos(w.pos.Lat*math.Pi/180))
	w.pos.Lat += dLat
	w.pos.Lng += dLng

	h := w.heading
	w.loc.Offer(model.GeoSample{
		Position:   w.pos,
		Heading:    &h,
		AccuracyM:  5 + w.rng.Float64()*10,
		CapturedAt: time.Now(),
	})
}

// MaybeToggle flips availability with the given per-tick probability. A busy
// worker refuses to go offline; that rejection is part of what the simulator
// exercises, so it is swallowed here.
func (w *SimWorker) MaybeToggle(rate float64) {
	if rate <= 0 || w.rng.Float64() >= rate {
		return
	}
	online := w.avail.State().Online
	_ = w.avail.Toggle(!online)
}

// Position returns the walk's current coordinate.
func (w *SimWorker) Position() model.LatLng { return w.pos }

// Close tears down the worker's controllers.
func (w *SimWorker) Close() {
	w.loc.Close()
	w.avail.Close()
}

// jitter returns a coordinate within roughly spreadM meters of center.
func jitter(r *rand.Rand, center model.LatLng, spreadM float64) model.LatLng {
	dLat := (r.Float64() - 0.5) * 2 * spreadM / metersPerDegreeLat
	dLng := (r.Float64() - 0.5) * 2 * spreadM / (metersPerDegreeLat * math.Cos(center.Lat*math.Pi/180))
	return model.LatLng{Lat: center.Lat + dLat, Lng: center.Lng + dLng}
}
