package store

import (
	"context"
	"sync"
	"time"

	"github.com/fleetwise/fleetcore/core/model"
	"github.com/fleetwise/fleetcore/internal/eventbus"
)

// MemoryStore is the in-process Store implementation. It honors the same
// contract a managed realtime backend would provide: narrow idempotent
// updates, server-assigned timestamps and per-filter push notification.
type MemoryStore struct {
	mu        sync.RWMutex
	workers   map[string]model.WorkerState
	trips     map[string]model.TripRequest
	tripBus   map[string]*eventbus.TypedBus[TripChange]
	workerBus *eventbus.TypedBus[WorkerChange]

	now func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workers:   map[string]model.WorkerState{},
		trips:     map[string]model.TripRequest{},
		tripBus:   map[string]*eventbus.TypedBus[TripChange]{},
		workerBus: eventbus.NewTyped[WorkerChange](),
		now:       time.Now,
	}
}

func (s *MemoryStore) Worker(ctx context.Context, id string) (model.WorkerState, error) {
	if err := ctx.Err(); err != nil {
		return model.WorkerState{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workers[id]
	if !ok {
		return model.WorkerState{}, ErrNotFound
	}
	return w, nil
}

func (s *MemoryStore) Workers(ctx context.Context, f WorkerFilter) ([]model.WorkerState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []model.WorkerState
	for _, w := range s.workers {
		if f.Matches(w) {
			res = append(res, w)
		}
	}
	return res, nil
}

func (s *MemoryStore) PutWorker(ctx context.Context, w model.WorkerState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := w.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	_, existed := s.workers[w.ID]
	w.LastUpdatedAt = s.now()
	s.workers[w.ID] = w
	s.mu.Unlock()
	kind := ChangeInsert
	if existed {
		kind = ChangeUpdate
	}
	s.workerBus.Publish(WorkerChange{Kind: kind, Worker: w})
	return nil
}

func (s *MemoryStore) UpdateWorker(ctx context.Context, id string, fields WorkerFields) (model.WorkerState, error) {
	if err := ctx.Err(); err != nil {
		return model.WorkerState{}, err
	}
	s.mu.Lock()
	w, ok := s.workers[id]
	if !ok {
		s.mu.Unlock()
		return model.WorkerState{}, ErrNotFound
	}
	applyWorkerFields(&w, fields)
	w.LastUpdatedAt = s.now()
	s.workers[id] = w
	s.mu.Unlock()
	s.workerBus.Publish(WorkerChange{Kind: ChangeUpdate, Worker: w})
	return w, nil
}

func (s *MemoryStore) MarkWorkerBusy(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	w, ok := s.workers[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if !w.Online || w.Busy {
		s.mu.Unlock()
		return ErrConflict
	}
	w.Busy = true
	w.LastUpdatedAt = s.now()
	s.workers[id] = w
	s.mu.Unlock()
	s.workerBus.Publish(WorkerChange{Kind: ChangeUpdate, Worker: w})
	return nil
}

func (s *MemoryStore) ClearWorkerBusy(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	w, ok := s.workers[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if !w.Busy {
		s.mu.Unlock()
		return nil
	}
	w.Busy = false
	w.LastUpdatedAt = s.now()
	s.workers[id] = w
	s.mu.Unlock()
	s.workerBus.Publish(WorkerChange{Kind: ChangeUpdate, Worker: w})
	return nil
}

func (s *MemoryStore) Trip(ctx context.Context, id string) (model.TripRequest, error) {
	if err := ctx.Err(); err != nil {
		return model.TripRequest{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trips[id]
	if !ok {
		return model.TripRequest{}, ErrNotFound
	}
	return t, nil
}

func (s *MemoryStore) PutTrip(ctx context.Context, t model.TripRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	_, existed := s.trips[t.ID]
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	s.trips[t.ID] = t
	bus := s.tripBus[t.ID]
	s.mu.Unlock()
	kind := ChangeInsert
	if existed {
		kind = ChangeUpdate
	}
	if bus != nil {
		bus.Publish(TripChange{Kind: kind, Trip: t})
	}
	return nil
}

func (s *MemoryStore) UpdateTripIf(ctx context.Context, id string, expect model.TripStatus, fields TripFields) (model.TripRequest, error) {
	if err := ctx.Err(); err != nil {
		return model.TripRequest{}, err
	}
	s.mu.Lock()
	t, ok := s.trips[id]
	if !ok {
		s.mu.Unlock()
		return model.TripRequest{}, ErrNotFound
	}
	if t.Status != expect {
		s.mu.Unlock()
		return t, ErrConflict
	}
	if fields.Status != nil {
		t.Status = *fields.Status
	}
	if fields.AssignedWorkerID != nil {
		t.AssignedWorkerID = *fields.AssignedWorkerID
	}
	s.trips[id] = t
	bus := s.tripBus[id]
	s.mu.Unlock()
	if bus != nil {
		bus.Publish(TripChange{Kind: ChangeUpdate, Trip: t})
	}
	return t, nil
}

func (s *MemoryStore) OpenTripForWorker(ctx context.Context, stationID, workerID string) (model.TripRequest, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.TripRequest{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.trips {
		if t.StationID == stationID && t.AssignedWorkerID == workerID && t.Status.Open() {
			return t, true, nil
		}
	}
	return model.TripRequest{}, false, nil
}

// SubscribeWorkers fans out worker changes matching the filter. A filtering
// goroutine sits between the shared bus and the subscriber so that each
// subscription only observes its own slice of the fleet.
func (s *MemoryStore) SubscribeWorkers(f WorkerFilter) (<-chan WorkerChange, func()) {
	src := s.workerBus.Subscribe()
	out := make(chan WorkerChange, 16)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for {
			select {
			case ev, ok := <-src:
				if !ok {
					return
				}
				if !f.Matches(ev.Worker) {
					continue
				}
				select {
				case out <- ev:
				default:
				}
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			s.workerBus.Unsubscribe(src)
		})
	}
	return out, cancel
}

func (s *MemoryStore) SubscribeTrip(id string) (<-chan TripChange, func()) {
	s.mu.Lock()
	bus, ok := s.tripBus[id]
	if !ok {
		bus = eventbus.NewTyped[TripChange]()
		s.tripBus[id] = bus
	}
	s.mu.Unlock()
	sub := bus.Subscribe()
	var once sync.Once
	cancel := func() {
		once.Do(func() { bus.Unsubscribe(sub) })
	}
	return sub, cancel
}

// Close tears down all subscription channels.
func (s *MemoryStore) Close() {
	s.workerBus.Close()
	s.mu.Lock()
	for _, b := range s.tripBus {
		b.Close()
	}
	s.tripBus = map[string]*eventbus.TypedBus[TripChange]{}
	s.mu.Unlock()
}

func applyWorkerFields(w *model.WorkerState, f WorkerFields) {
	if f.Online != nil {
		w.Online = *f.Online
	}
	if f.Busy != nil {
		w.Busy = *f.Busy
	}
	if f.Approved != nil {
		w.Approved = *f.Approved
	}
	if f.Position != nil {
		p := *f.Position
		w.Position = &p
	}
	if f.Heading != nil {
		h := *f.Heading
		w.Heading = &h
	}
	if f.ZoneID != nil {
		w.ZoneID = *f.ZoneID
	}
	if f.Address != nil {
		w.Address = *f.Address
	}
}
