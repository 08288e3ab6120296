// Package dispatch assigns pending trip requests to the nearest eligible
// idle worker and propagates the outcome.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/fleetwise/fleetcore/core/dispatch/logging"
	"github.com/fleetwise/fleetcore/core/events"
	"github.com/fleetwise/fleetcore/core/geo"
	"github.com/fleetwise/fleetcore/core/logger"
	"github.com/fleetwise/fleetcore/core/metrics"
	"github.com/fleetwise/fleetcore/core/model"
	"github.com/fleetwise/fleetcore/core/monitoring"
	"github.com/fleetwise/fleetcore/core/notify"
	"github.com/fleetwise/fleetcore/core/store"
	"github.com/fleetwise/fleetcore/internal/eventbus"
)

// ErrMissingPickup rejects malformed requests before any querying happens.
var ErrMissingPickup = errors.New("trip request has no pickup coordinates")

// Outcome classifies the result of one assignment attempt.
type Outcome string

const (
	OutcomeAssigned        Outcome = "assigned"
	OutcomeNoWorker        Outcome = "no_driver"
	OutcomeAlreadyAssigned Outcome = "already_assigned"
)

// Result is the settled outcome of one assignment attempt. NoWorker and
// AlreadyAssigned are explicit outcomes, never errors: the caller may retry
// later or simply drop the duplicate attempt.
type Result struct {
	TripID    string
	Outcome   Outcome
	WorkerID  string
	DistanceM float64
}

// Store is the slice of the store contract the engine needs.
type Store interface {
	Trip(ctx context.Context, id string) (model.TripRequest, error)
	Workers(ctx context.Context, f store.WorkerFilter) ([]model.WorkerState, error)
	UpdateTripIf(ctx context.Context, id string, expect model.TripStatus, fields store.TripFields) (model.TripRequest, error)
	MarkWorkerBusy(ctx context.Context, id string) error
	ClearWorkerBusy(ctx context.Context, id string) error
	OpenTripForWorker(ctx context.Context, stationID, workerID string) (model.TripRequest, bool, error)
}

// CandidateIndex narrows the candidate set using a geo index before
// eligibility is verified against the store. Optional; the engine works
// without one by ranking the full station fleet.
type CandidateIndex interface {
	Nearby(ctx context.Context, stationID string, origin model.LatLng, limit int) ([]string, error)
}

// Config tunes the engine.
type Config struct {
	// PreferZone restricts candidates to the trip's zone when possible,
	// falling back to the whole station when the zone set is empty.
	PreferZone bool
	// AckTimeout bounds the wait for the winning worker's acknowledgment.
	AckTimeout time.Duration
	// CandidateLimit caps how many workers the geo index returns.
	CandidateLimit int
}

func (c *Config) setDefaults() {
	if c.AckTimeout <= 0 {
		c.AckTimeout = 5 * time.Second
	}
	if c.CandidateLimit <= 0 {
		c.CandidateLimit = 25
	}
}

// Engine binds pending trips to workers. Safe for concurrent use; the store
// CAS primitives linearize each trip's bind and the busy re-check guards the
// per-worker race.
type Engine struct {
	cfg      Config
	store    Store
	notifier notify.Notifier
	index    CandidateIndex
	sink     metrics.Sink
	bus      eventbus.EventBus
	audit    logging.LogStore
	log      logger.Logger
}

// NewEngine creates an assignment engine. notifier, sink, bus and log are
// optional; store is not.
func NewEngine(st Store, notifier notify.Notifier, cfg Config, sink metrics.Sink, bus eventbus.EventBus, log logger.Logger) (*Engine, error) {
	if st == nil {
		return nil, fmt.Errorf("dispatch: nil store provided to NewEngine")
	}
	cfg.setDefaults()
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Engine{cfg: cfg, store: st, notifier: notifier, sink: sink, bus: bus, log: log}, nil
}

// SetCandidateIndex configures the optional geo index accelerator.
func (e *Engine) SetCandidateIndex(idx CandidateIndex) { e.index = idx }

// SetAuditLog configures the store used to persist assignment decisions.
func (e *Engine) SetAuditLog(store logging.LogStore) { e.audit = store }

// Run processes incoming trip requests until the context is cancelled.
func (e *Engine) Run(ctx context.Context, trips <-chan model.TripRequest) {
	for {
		select {
		case t := <-trips:
			if e.bus != nil {
				e.bus.Publish(events.TripRequestedEvent{Trip: t})
			}
			if _, err := e.Assign(ctx, t.ID); err != nil {
				e.logf().Errorf("assign trip %s: %v", t.ID, err)
				monitoring.CaptureException(err, map[string]string{"module": "dispatch", "trip_id": t.ID})
			}
		case <-ctx.Done():
			return
		}
	}
}

// Assign finds the nearest eligible idle worker for the trip and binds it
// atomically. An attempt on a trip that is no longer pending is a safe
// no-op. Exactly one concurrent attempt per trip can win.
func (e *Engine) Assign(ctx context.Context, tripID string) (Result, error) {
	trip, err := e.store.Trip(ctx, tripID)
	if err != nil {
		return Result{TripID: tripID}, fmt.Errorf("read trip %s: %w", tripID, err)
	}
	if !trip.Pickup.Valid() {
		return Result{TripID: tripID}, fmt.Errorf("trip %s: %w", tripID, ErrMissingPickup)
	}
	if trip.Status != model.TripPending {
		return e.settle(trip, Result{TripID: tripID, Outcome: OutcomeAlreadyAssigned}), nil
	}

	candidates, err := e.rank(ctx, trip)
	if err != nil {
		return Result{TripID: tripID}, err
	}
	if fr, ok := e.sink.(metrics.FleetSizeRecorder); ok {
		if err := fr.RecordFleetSize(len(candidates)); err != nil {
			e.logf().Errorf("fleet size metrics error: %v", err)
		}
	}

	for _, c := range candidates {
		res, done, err := e.bind(ctx, trip, c)
		if err != nil {
			return res, err
		}
		if done {
			return res, nil
		}
	}
	return e.settle(trip, Result{TripID: tripID, Outcome: OutcomeNoWorker}), nil
}

type candidate struct {
	worker    model.WorkerState
	distanceM float64
}

// rank returns eligible workers ordered by great-circle distance to the
// pickup point. Station isolation is a hard boundary: the query itself is
// scoped to the trip's station.
func (e *Engine) rank(ctx context.Context, trip model.TripRequest) ([]candidate, error) {
	workers, err := e.store.Workers(ctx, store.WorkerFilter{StationID: trip.StationID, OnlineOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list workers for station %s: %w", trip.StationID, err)
	}

	allowed := e.indexedSet(ctx, trip)
	var eligible []candidate
	for _, w := range workers {
		if !w.Dispatchable() {
			continue
		}
		if allowed != nil && !allowed[w.ID] {
			continue
		}
		eligible = append(eligible, candidate{worker: w, distanceM: geo.HaversineMeters(*w.Position, trip.Pickup)})
	}

	if e.cfg.PreferZone && trip.ZoneID != "" {
		var zoned []candidate
		for _, c := range eligible {
			if c.worker.ZoneID == trip.ZoneID {
				zoned = append(zoned, c)
			}
		}
		if len(zoned) > 0 {
			eligible = zoned
		}
	}

	sort.Slice(eligible, func(i, j int) bool { return eligible[i].distanceM < eligible[j].distanceM })
	return eligible, nil
}

// indexedSet consults the geo index when configured. Index failures only
// cost the narrowing, never the assignment.
func (e *Engine) indexedSet(ctx context.Context, trip model.TripRequest) map[string]bool {
	if e.index == nil {
		return nil
	}
	ids, err := e.index.Nearby(ctx, trip.StationID, trip.Pickup, e.cfg.CandidateLimit)
	if err != nil {
		e.logf().Warnf("geo index lookup failed, ranking full fleet: %v", err)
		return nil
	}
	if len(ids) == 0 {
		return nil
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// bind reserves the worker, then flips the trip pending->active. The order
// matters: losing the worker race moves on to the next candidate, losing the
// trip race releases the reservation and is a no-op.
func (e *Engine) bind(ctx context.Context, trip model.TripRequest, c candidate) (Result, bool, error) {
	id := c.worker.ID
	if _, open, err := e.store.OpenTripForWorker(ctx, trip.StationID, id); err != nil {
		return Result{TripID: trip.ID}, false, fmt.Errorf("busy re-check for worker %s: %w", id, err)
	} else if open {
		return Result{TripID: trip.ID}, false, nil
	}

	if err := e.store.MarkWorkerBusy(ctx, id); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return Result{TripID: trip.ID}, false, nil // worker lost to another trip
		}
		return Result{TripID: trip.ID}, false, fmt.Errorf("reserve worker %s: %w", id, err)
	}

	active := model.TripActive
	if _, err := e.store.UpdateTripIf(ctx, trip.ID, model.TripPending, store.TripFields{Status: &active, AssignedWorkerID: &id}); err != nil {
		if clearErr := e.store.ClearWorkerBusy(ctx, id); clearErr != nil {
			e.logf().Errorf("release worker %s after lost bind: %v", id, clearErr)
		}
		if errors.Is(err, store.ErrConflict) {
			res := e.settle(trip, Result{TripID: trip.ID, Outcome: OutcomeAlreadyAssigned})
			return res, true, nil
		}
		return Result{TripID: trip.ID}, false, fmt.Errorf("bind trip %s: %w", trip.ID, err)
	}

	res := Result{TripID: trip.ID, Outcome: OutcomeAssigned, WorkerID: id, DistanceM: c.distanceM}
	e.notifyWinner(trip, res)
	return e.settle(trip, res), true, nil
}

// notifyWinner pushes the offer to the bound worker. Best-effort: the
// assignment already succeeded and the worker's own subscription will
// surface the trip even if this push fails.
func (e *Engine) notifyWinner(trip model.TripRequest, res Result) {
	if e.notifier == nil {
		return
	}
	start := time.Now()
	offer := notify.Offer{TripID: trip.ID, WorkerID: res.WorkerID, Pickup: trip.Pickup, DistanceM: res.DistanceM}
	cmdID, err := e.notifier.SendOffer(res.WorkerID, offer)
	if err != nil {
		notifyFailure.Inc()
		e.logf().Warnf("offer push to worker %s failed: %v", res.WorkerID, err)
		e.publishAck(res, false, err, time.Since(start))
		return
	}
	notifySuccess.Inc()
	ack, err := e.notifier.WaitForAck(cmdID, e.cfg.AckTimeout)
	latency := time.Since(start)
	offerLatency.WithLabelValues(boolLabel(ack && err == nil)).Observe(latency.Seconds())
	if err != nil {
		e.logf().Warnf("offer ack from worker %s: %v", res.WorkerID, err)
	}
	e.publishAck(res, ack && err == nil, err, latency)
	if lr, ok := e.sink.(metrics.LatencyRecorder); ok {
		rec := metrics.OfferLatency{TripID: res.TripID, WorkerID: res.WorkerID, Acknowledged: ack && err == nil, Latency: latency}
		if err := lr.RecordOfferLatency([]metrics.OfferLatency{rec}); err != nil {
			e.logf().Errorf("latency metrics error: %v", err)
		}
	}
}

func (e *Engine) publishAck(res Result, ack bool, err error, latency time.Duration) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(events.OfferAckEvent{
		WorkerID:     res.WorkerID,
		TripID:       res.TripID,
		Acknowledged: ack,
		Err:          err,
		Latency:      latency,
	})
}

// settle records metrics, audit log and bus events for a finished attempt.
func (e *Engine) settle(trip model.TripRequest, res Result) Result {
	assignmentsTotal.WithLabelValues(string(res.Outcome), trip.StationID).Inc()
	rec := metrics.AssignmentRecord{
		TripID:    res.TripID,
		StationID: trip.StationID,
		WorkerID:  res.WorkerID,
		DistanceM: res.DistanceM,
		Outcome:   string(res.Outcome),
		Time:      time.Now(),
	}
	if err := e.sink.RecordAssignment([]metrics.AssignmentRecord{rec}); err != nil {
		e.logf().Errorf("metrics error: %v", err)
	}
	if e.bus != nil {
		e.bus.Publish(events.AssignmentEvent{
			TripID:    res.TripID,
			StationID: trip.StationID,
			WorkerID:  res.WorkerID,
			DistanceM: res.DistanceM,
			Outcome:   string(res.Outcome),
		})
	}
	if e.audit != nil {
		err := e.audit.Append(context.Background(), logging.Record{
			Timestamp: time.Now(),
			TripID:    res.TripID,
			StationID: trip.StationID,
			ZoneID:    trip.ZoneID,
			Pickup:    trip.Pickup,
			Outcome:   string(res.Outcome),
			WorkerID:  res.WorkerID,
			DistanceM: res.DistanceM,
		})
		if err != nil {
			e.logf().Errorf("audit log append: %v", err)
		}
	}
	return res
}

// Complete transitions an active trip to completed and frees the worker.
func (e *Engine) Complete(ctx context.Context, tripID string) error {
	done := model.TripCompleted
	t, err := e.store.UpdateTripIf(ctx, tripID, model.TripActive, store.TripFields{Status: &done})
	if err != nil {
		return fmt.Errorf("complete trip %s: %w", tripID, err)
	}
	if err := e.store.ClearWorkerBusy(ctx, t.AssignedWorkerID); err != nil {
		return fmt.Errorf("release worker %s: %w", t.AssignedWorkerID, err)
	}
	return nil
}

// Cancel aborts a pending or active trip. Cancelling an active trip clears
// the worker binding so the availability invariant holds.
func (e *Engine) Cancel(ctx context.Context, tripID string) error {
	cancelled := model.TripCancelled
	if _, err := e.store.UpdateTripIf(ctx, tripID, model.TripPending, store.TripFields{Status: &cancelled}); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrConflict) {
		return fmt.Errorf("cancel trip %s: %w", tripID, err)
	}

	t, err := e.store.Trip(ctx, tripID)
	if err != nil {
		return fmt.Errorf("cancel trip %s: %w", tripID, err)
	}
	holder := t.AssignedWorkerID

	nobody := ""
	if _, err := e.store.UpdateTripIf(ctx, tripID, model.TripActive, store.TripFields{Status: &cancelled, AssignedWorkerID: &nobody}); err != nil {
		return fmt.Errorf("cancel trip %s: %w", tripID, err)
	}
	if holder == "" {
		return nil
	}
	return e.store.ClearWorkerBusy(ctx, holder)
}

func (e *Engine) logf() logger.Logger {
	if e.log != nil {
		return e.log
	}
	return nopLogger{}
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any)         {}
func (nopLogger) Debugw(string, map[string]any) {}
func (nopLogger) Infof(string, ...any)          {}
func (nopLogger) Warnf(string, ...any)          {}
func (nopLogger) Errorf(string, ...any)         {}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
