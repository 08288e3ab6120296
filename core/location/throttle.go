// Package location converts the raw GPS sample stream of one worker into a
// smooth UI-rate stream and an infrequent, validated stream of durable
// position writes.
package location

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fleetwise/fleetcore/core/geo"
	"github.com/fleetwise/fleetcore/core/logger"
	"github.com/fleetwise/fleetcore/core/model"
	"github.com/fleetwise/fleetcore/core/store"
	"github.com/fleetwise/fleetcore/internal/eventbus"
)

// Geocoder resolves coordinates to a street address. Best-effort: errors are
// logged and never block a location write.
type Geocoder interface {
	Reverse(ctx context.Context, p model.LatLng) (string, error)
}

// WorkerWriter is the slice of the store contract the controller needs.
type WorkerWriter interface {
	UpdateWorker(ctx context.Context, id string, fields store.WorkerFields) (model.WorkerState, error)
}

// Config tunes the throttling gates.
type Config struct {
	// MinWriteDistanceM suppresses writes for moves smaller than this,
	// keeping GPS jitter out of the store.
	MinWriteDistanceM float64
	// WriteInterval is the minimum spacing between two durable writes.
	// Qualifying samples arriving sooner are coalesced; only the most
	// recent one is flushed when the interval elapses.
	WriteInterval time.Duration
	// UIInterval governs how often the UI-facing stream may advance,
	// independent of the write gates.
	UIInterval time.Duration
	// WriteTimeout bounds each durable write.
	WriteTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.MinWriteDistanceM <= 0 {
		c.MinWriteDistanceM = 10
	}
	if c.WriteInterval <= 0 {
		c.WriteInterval = 5 * time.Second
	}
	if c.UIInterval <= 0 {
		c.UIInterval = 500 * time.Millisecond
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
}

// Controller throttles one worker's location stream. Samples are offered in
// capture order; writes may be dropped under throttling but never reordered.
type Controller struct {
	cfg      Config
	workerID string
	writer   WorkerWriter
	geocoder Geocoder
	log      logger.Logger

	ui *eventbus.TypedBus[model.GeoSample]

	mu          sync.Mutex
	lastWritten *model.LatLng
	lastWriteAt time.Time
	lastUIEmit  time.Time
	pending     *model.GeoSample
	flushTimer  *time.Timer
	closed      bool

	now func() time.Time
}

// NewController creates a throttling controller for the given worker.
// geocoder may be nil to disable reverse geocoding.
func NewController(workerID string, writer WorkerWriter, geocoder Geocoder, cfg Config, log logger.Logger) *Controller {
	cfg.setDefaults()
	return &Controller{
		cfg:      cfg,
		workerID: workerID,
		writer:   writer,
		geocoder: geocoder,
		log:      log,
		ui:       eventbus.NewTyped[model.GeoSample](),
		now:      time.Now,
	}
}

// SubscribeUI returns a channel carrying UI-rate samples. The renderer reads
// it; cancel releases the subscription.
func (c *Controller) SubscribeUI() (<-chan model.GeoSample, func()) {
	sub := c.ui.Subscribe()
	return sub, func() { c.ui.Unsubscribe(sub) }
}

// Offer feeds one raw GPS sample through the gates. Invalid samples are
// rejected; everything else is routed to the UI stream, written immediately,
// coalesced for a later flush, or suppressed.
func (c *Controller) Offer(sample model.GeoSample) {
	if !sample.Valid() {
		samplesRejected.Inc()
		c.log.Debugf("worker %s: rejected invalid sample", c.workerID)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	now := c.now()

	emitUI := c.lastUIEmit.IsZero() || now.Sub(c.lastUIEmit) > c.cfg.UIInterval
	if emitUI {
		c.lastUIEmit = now
	}

	writeNow := false
	if c.lastWritten != nil && geo.HaversineMeters(*c.lastWritten, sample.Position) < c.cfg.MinWriteDistanceM {
		samplesSuppressed.WithLabelValues("distance").Inc()
	} else if c.lastWriteAt.IsZero() || now.Sub(c.lastWriteAt) >= c.cfg.WriteInterval {
		c.lastWriteAt = now
		writeNow = true
		// This sample supersedes anything still buffered; an armed flush
		// would otherwise land the older sample after this write.
		if c.flushTimer != nil {
			c.flushTimer.Stop()
			c.flushTimer = nil
		}
		c.pending = nil
	} else {
		// Coalesce: keep only the most recent qualifying sample and make
		// sure exactly one flush fires when the interval elapses.
		samplesSuppressed.WithLabelValues("rate").Inc()
		s := sample
		c.pending = &s
		if c.flushTimer == nil {
			remaining := c.cfg.WriteInterval - now.Sub(c.lastWriteAt)
			c.flushTimer = time.AfterFunc(remaining, c.flush)
		}
	}
	c.mu.Unlock()

	if emitUI {
		uiFramesEmitted.Inc()
		c.ui.Publish(sample)
	}
	if writeNow {
		go c.write(sample)
	}
}

// flush writes the most recently buffered sample, exactly once.
func (c *Controller) flush() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.flushTimer = nil
	p := c.pending
	c.pending = nil
	if p == nil {
		c.mu.Unlock()
		return
	}
	c.lastWriteAt = c.now()
	c.mu.Unlock()
	c.write(*p)
}

// write performs one bounded durable write. At-most-once: on error the
// sample is dropped and a superseding sample repairs the record later.
func (c *Controller) write(sample model.GeoSample) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.WriteTimeout)
	defer cancel()

	fields := store.WorkerFields{Position: &sample.Position}
	if sample.Heading != nil {
		fields.Heading = sample.Heading
	}
	if _, err := c.writer.UpdateWorker(ctx, c.workerID, fields); err != nil {
		c.logWriteError(err)
		return
	}
	locationWrites.Inc()

	c.mu.Lock()
	pos := sample.Position
	c.lastWritten = &pos
	c.mu.Unlock()

	if c.geocoder != nil {
		go c.geocode(sample.Position)
	}
}

func (c *Controller) logWriteError(err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeFailures.WithLabelValues("not_found").Inc()
		c.log.Errorf("worker %s: record missing, location write dropped: %v", c.workerID, err)
	case errors.Is(err, store.ErrDenied):
		writeFailures.WithLabelValues("denied").Inc()
		c.log.Warnf("worker %s: location write denied: %v", c.workerID, err)
	case errors.Is(err, store.ErrConflict):
		writeFailures.WithLabelValues("conflict").Inc()
		c.log.Debugf("worker %s: concurrent location write, ignored", c.workerID)
	case errors.Is(err, context.DeadlineExceeded):
		writeFailures.WithLabelValues("timeout").Inc()
		c.log.Warnf("worker %s: location write timed out, dropped", c.workerID)
	default:
		writeFailures.WithLabelValues("other").Inc()
		c.log.Warnf("worker %s: location write failed, dropped: %v", c.workerID, err)
	}
}

// geocode resolves and stores the written coordinate's address. Failures are
// logged and swallowed.
func (c *Controller) geocode(p model.LatLng) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.WriteTimeout)
	defer cancel()
	addr, err := c.geocoder.Reverse(ctx, p)
	if err != nil {
		geocodeFailures.Inc()
		c.log.Debugf("worker %s: reverse geocode failed: %v", c.workerID, err)
		return
	}
	if addr == "" {
		return
	}
	if _, err := c.writer.UpdateWorker(ctx, c.workerID, store.WorkerFields{Address: &addr}); err != nil {
		c.log.Debugf("worker %s: address write failed: %v", c.workerID, err)
	}
}

// Close cancels any pending flush timer and closes the UI stream. No timers
// survive teardown.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.flushTimer != nil {
		c.flushTimer.Stop()
		c.flushTimer = nil
	}
	c.pending = nil
	c.mu.Unlock()
	c.ui.Close()
}
