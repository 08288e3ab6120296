// Package claims resolves the race between multiple workers trying to take
// the same broadcast trip, and keeps every loser's screen honest about it.
package claims

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fleetwise/fleetcore/core/logger"
	"github.com/fleetwise/fleetcore/core/model"
	"github.com/fleetwise/fleetcore/core/store"
	"github.com/fleetwise/fleetcore/internal/eventbus"
)

// Signal tells the worker's UI what happened to a trip it is displaying.
type Signal int

const (
	// SignalTaken: another worker bound the trip first. The card stays
	// visible briefly so the worker understands why it is leaving.
	SignalTaken Signal = iota
	// SignalWithdrawn: the rider cancelled while the card was displayed.
	SignalWithdrawn
	// SignalDismissed: the auto-dismiss delay after taken/withdrawn elapsed;
	// remove the card now.
	SignalDismissed
)

func (s Signal) String() string {
	switch s {
	case SignalTaken:
		return "taken"
	case SignalWithdrawn:
		return "withdrawn"
	case SignalDismissed:
		return "dismissed"
	default:
		return "unknown"
	}
}

// Update is one claim-resolution notification for a displayed trip.
type Update struct {
	TripID   string
	Signal   Signal
	WinnerID string
}

// Store is the slice of the store contract the resolver needs.
type Store interface {
	Trip(ctx context.Context, id string) (model.TripRequest, error)
	UpdateTripIf(ctx context.Context, id string, expect model.TripStatus, fields store.TripFields) (model.TripRequest, error)
	MarkWorkerBusy(ctx context.Context, id string) error
	ClearWorkerBusy(ctx context.Context, id string) error
	SubscribeTrip(id string) (<-chan store.TripChange, func())
}

// Config tunes the resolver.
type Config struct {
	// DismissAfter is how long a taken/withdrawn card stays on screen before
	// the dismissal signal fires.
	DismissAfter time.Duration
}

func (c *Config) setDefaults() {
	if c.DismissAfter <= 0 {
		c.DismissAfter = 2 * time.Second
	}
}

// ErrLost reports that another worker bound the trip first. A lost claim is
// an expected outcome, not a failure.
var ErrLost = errors.New("trip already taken")

type watch struct {
	cancel  func()
	dismiss *time.Timer
	settled bool
}

// Resolver tracks the trips one worker has on screen. Safe for concurrent
// use.
type Resolver struct {
	cfg      Config
	workerID string
	store    Store
	log      logger.Logger

	updates *eventbus.TypedBus[Update]

	mu      sync.Mutex
	watches map[string]*watch
	closed  bool
}

// NewResolver creates a resolver for the given worker.
func NewResolver(workerID string, st Store, cfg Config, log logger.Logger) *Resolver {
	cfg.setDefaults()
	return &Resolver{
		cfg:      cfg,
		workerID: workerID,
		store:    st,
		log:      log,
		updates:  eventbus.NewTyped[Update](),
		watches:  make(map[string]*watch),
	}
}

// Updates returns the stream of claim-resolution signals.
func (r *Resolver) Updates() (<-chan Update, func()) {
	sub := r.updates.Subscribe()
	return sub, func() { r.updates.Unsubscribe(sub) }
}

// Watch starts tracking a trip the worker is now displaying. Tracking a trip
// already watched is a no-op.
func (r *Resolver) Watch(tripID string) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if _, ok := r.watches[tripID]; ok {
		r.mu.Unlock()
		return
	}
	ch, cancel := r.store.SubscribeTrip(tripID)
	w := &watch{cancel: cancel}
	r.watches[tripID] = w
	r.mu.Unlock()

	go r.follow(tripID, ch)
}

// Unwatch stops tracking a trip, typically because the worker dismissed the
// card manually.
func (r *Resolver) Unwatch(tripID string) {
	r.mu.Lock()
	r.drop(tripID)
	r.mu.Unlock()
}

// drop removes the watch. Caller holds r.mu.
func (r *Resolver) drop(tripID string) {
	w, ok := r.watches[tripID]
	if !ok {
		return
	}
	delete(r.watches, tripID)
	w.cancel()
	if w.dismiss != nil {
		w.dismiss.Stop()
	}
}

// Claim attempts to bind the trip to this worker. Exactly one concurrent
// claimant wins; the rest get ErrLost and their screens are resolved through
// the watch stream like any other loser.
func (r *Resolver) Claim(ctx context.Context, tripID string) error {
	if err := r.store.MarkWorkerBusy(ctx, r.workerID); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return ErrLost
		}
		return err
	}

	active := model.TripActive
	me := r.workerID
	_, err := r.store.UpdateTripIf(ctx, tripID, model.TripPending, store.TripFields{Status: &active, AssignedWorkerID: &me})
	if err != nil {
		if clearErr := r.store.ClearWorkerBusy(ctx, r.workerID); clearErr != nil {
			r.logf().Errorf("release worker %s after lost claim: %v", r.workerID, clearErr)
		}
		if errors.Is(err, store.ErrConflict) {
			return ErrLost
		}
		return err
	}
	return nil
}

// follow consumes trip change notifications until the trip settles or the
// watch is cancelled.
func (r *Resolver) follow(tripID string, ch <-chan store.TripChange) {
	for change := range ch {
		if r.apply(tripID, change.Trip) {
			return
		}
	}
}

// apply folds one trip change into the watch state. Returns true when the
// watch settled and the follower should stop.
func (r *Resolver) apply(tripID string, trip model.TripRequest) bool {
	r.mu.Lock()
	w, ok := r.watches[tripID]
	if !ok || w.settled {
		r.mu.Unlock()
		return true
	}

	switch {
	case trip.Status == model.TripActive && trip.AssignedWorkerID == r.workerID:
		// The local worker won; it proceeds straight to the active-trip
		// view, so no signal fires.
		w.settled = true
		r.drop(tripID)
		r.mu.Unlock()
		return true

	case trip.Status == model.TripActive:
		w.settled = true
		w.dismiss = r.scheduleDismiss(tripID)
		r.mu.Unlock()
		r.updates.Publish(Update{TripID: tripID, Signal: SignalTaken, WinnerID: trip.AssignedWorkerID})
		return true

	case trip.Status == model.TripCancelled:
		w.settled = true
		w.dismiss = r.scheduleDismiss(tripID)
		r.mu.Unlock()
		r.updates.Publish(Update{TripID: tripID, Signal: SignalWithdrawn})
		return true
	}

	r.mu.Unlock()
	return false
}

// scheduleDismiss arms the auto-dismiss timer. Caller holds r.mu.
func (r *Resolver) scheduleDismiss(tripID string) *time.Timer {
	return time.AfterFunc(r.cfg.DismissAfter, func() {
		r.mu.Lock()
		r.drop(tripID)
		closed := r.closed
		r.mu.Unlock()
		if !closed {
			r.updates.Publish(Update{TripID: tripID, Signal: SignalDismissed})
		}
	})
}

func (r *Resolver) logf() logger.Logger {
	if r.log != nil {
		return r.log
	}
	return nopLogger{}
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any)         {}
func (nopLogger) Debugw(string, map[string]any) {}
func (nopLogger) Infof(string, ...any)          {}
func (nopLogger) Warnf(string, ...any)          {}
func (nopLogger) Errorf(string, ...any)         {}

// Close cancels every watch and closes the update stream.
func (r *Resolver) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	for id := range r.watches {
		r.drop(id)
	}
	r.mu.Unlock()
	r.updates.Close()
}
