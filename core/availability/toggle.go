// Package availability implements the online/offline toggle state machine:
// optimistic local mutation, superseding cancellation, rollback on failure
// and suppression of the worker's own write echoing back through the
// subscription channel.
package availability

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fleetwise/fleetcore/core/logger"
	"github.com/fleetwise/fleetcore/core/model"
	"github.com/fleetwise/fleetcore/core/monitoring"
	"github.com/fleetwise/fleetcore/core/notify"
	"github.com/fleetwise/fleetcore/core/store"
	"github.com/fleetwise/fleetcore/internal/eventbus"
)

// ErrBusyWorker rejects going offline while a trip is in flight. Surfaced
// synchronously with the reason, never silently ignored.
var ErrBusyWorker = errors.New("cannot go offline with an active trip")

// WorkerStore is the slice of the store contract the controller needs.
type WorkerStore interface {
	Worker(ctx context.Context, id string) (model.WorkerState, error)
	UpdateWorker(ctx context.Context, id string, fields store.WorkerFields) (model.WorkerState, error)
}

// Config tunes the toggle timing.
type Config struct {
	// WriteTimeout bounds the durable toggle write.
	WriteTimeout time.Duration
	// SuppressWindow ignores externally observed change notifications for
	// this worker right after a successful write, so the write's own echo
	// cannot overwrite the optimistic state with out-of-order data.
	SuppressWindow time.Duration
	// Watchdog unconditionally clears the in-progress flag even if the
	// write never resolves, so the UI cannot stay stuck loading.
	Watchdog time.Duration
}

func (c *Config) setDefaults() {
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.SuppressWindow <= 0 {
		c.SuppressWindow = 1500 * time.Millisecond
	}
	if c.Watchdog <= 0 {
		c.Watchdog = 10 * time.Second
	}
}

// Result is the settled outcome of one toggle request, published on the
// result stream. Superseded requests never settle.
type Result struct {
	Online     bool
	RolledBack bool
	Err        error
}

// Snapshot is the UI-facing view of the toggle state.
type Snapshot struct {
	Online     bool
	Busy       bool
	InProgress bool
}

// Controller drives one worker's availability toggle.
type Controller struct {
	cfg       Config
	workerID  string
	store     WorkerStore
	registrar notify.Registrar
	log       logger.Logger

	results *eventbus.TypedBus[Result]

	mu            sync.Mutex
	cached        model.WorkerState
	seq           uint64
	cancelPrev    context.CancelFunc
	inProgress    bool
	suppressUntil time.Time
	watchdog      *time.Timer

	now func() time.Time
}

// NewController creates a toggle controller seeded with the worker's current
// record. registrar may be nil to disable push registration.
func NewController(worker model.WorkerState, st WorkerStore, registrar notify.Registrar, cfg Config, log logger.Logger) *Controller {
	cfg.setDefaults()
	return &Controller{
		cfg:       cfg,
		workerID:  worker.ID,
		store:     st,
		registrar: registrar,
		log:       log,
		cached:    worker,
		results:   eventbus.NewTyped[Result](),
		now:       time.Now,
	}
}

// Results returns the stream of settled toggle outcomes.
func (c *Controller) Results() (<-chan Result, func()) {
	sub := c.results.Subscribe()
	return sub, func() { c.results.Unsubscribe(sub) }
}

// State returns the current UI-facing snapshot.
func (c *Controller) State() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{Online: c.cached.Online, Busy: c.cached.Busy, InProgress: c.inProgress}
}

// Toggle requests a transition to the given online state. The local cache is
// mutated immediately; the durable write settles asynchronously on the
// result stream. Any older in-flight toggle is cancelled and invalidated.
// The only synchronous rejection is going offline while busy.
func (c *Controller) Toggle(online bool) error {
	c.mu.Lock()
	if !online && c.cached.Busy {
		c.mu.Unlock()
		return ErrBusyWorker
	}

	prev := c.cached.Online
	c.cached.Online = online

	// A newer toggle always cancels and invalidates the older one.
	if c.cancelPrev != nil {
		c.cancelPrev()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelPrev = cancel
	c.seq++
	seq := c.seq

	c.inProgress = true
	if c.watchdog != nil {
		c.watchdog.Stop()
	}
	c.watchdog = time.AfterFunc(c.cfg.Watchdog, func() { c.clearInProgress(seq) })
	c.mu.Unlock()

	go c.settle(ctx, seq, online, prev)

	if online && c.registrar != nil {
		go func() {
			if err := c.registrar.Register(c.workerID); err != nil {
				c.log.Warnf("worker %s: push registration failed: %v", c.workerID, err)
			}
		}()
	}
	return nil
}

// settle performs the durable write and resolves the optimistic state.
func (c *Controller) settle(ctx context.Context, seq uint64, online, prev bool) {
	err := c.write(ctx, online)

	c.mu.Lock()
	if seq != c.seq {
		// Superseded by a newer toggle; its result no longer matters.
		c.mu.Unlock()
		return
	}
	c.inProgress = false
	if c.watchdog != nil {
		c.watchdog.Stop()
		c.watchdog = nil
	}

	if err != nil {
		c.cached.Online = prev
		c.mu.Unlock()
		c.log.Warnf("worker %s: toggle write failed, rolled back to online=%v: %v", c.workerID, prev, err)
		monitoring.CaptureException(err, map[string]string{"module": "availability", "worker_id": c.workerID})
		c.results.Publish(Result{Online: prev, RolledBack: true, Err: err})
		return
	}

	c.suppressUntil = c.now().Add(c.cfg.SuppressWindow)
	c.mu.Unlock()
	c.results.Publish(Result{Online: online})
}

// write issues the durable toggle. Going offline also clears the zone
// binding; if that richer write is rejected by policy, a fallback with the
// reduced column set is attempted once.
func (c *Controller) write(parent context.Context, online bool) error {
	ctx, cancel := context.WithTimeout(parent, c.cfg.WriteTimeout)
	defer cancel()

	fields := store.WorkerFields{Online: &online}
	if !online {
		empty := ""
		fields.ZoneID = &empty
	}
	_, err := c.store.UpdateWorker(ctx, c.workerID, fields)
	if err != nil && errors.Is(err, store.ErrDenied) && fields.ZoneID != nil {
		c.log.Warnf("worker %s: toggle write denied, retrying with reduced columns", c.workerID)
		_, err = c.store.UpdateWorker(ctx, c.workerID, store.WorkerFields{Online: &online})
	}
	return err
}

// clearInProgress is the watchdog path: the UI must never stay stuck in a
// loading state because a write never resolved.
func (c *Controller) clearInProgress(seq uint64) {
	c.mu.Lock()
	if seq == c.seq && c.inProgress {
		c.inProgress = false
		c.log.Warnf("worker %s: toggle watchdog fired, clearing in-progress", c.workerID)
	}
	c.mu.Unlock()
}

// ApplyRemote folds an externally observed change of the worker's own record
// into the local cache. Changes inside the suppression window are the echo
// of our own write and are ignored.
func (c *Controller) ApplyRemote(w model.WorkerState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.now().Before(c.suppressUntil) {
		return
	}
	if c.inProgress {
		// An in-flight toggle owns the online flag; everything else may
		// still advance.
		online := c.cached.Online
		c.cached = w
		c.cached.Online = online
		return
	}
	c.cached = w
}

// Close cancels any in-flight write and stops the watchdog.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.cancelPrev != nil {
		c.cancelPrev()
		c.cancelPrev = nil
	}
	if c.watchdog != nil {
		c.watchdog.Stop()
		c.watchdog = nil
	}
	c.mu.Unlock()
	c.results.Close()
}
