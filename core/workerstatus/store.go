// Package workerstatus maintains a queryable projection of each worker's
// current state and last assignment, fed from store changes and bus events.
package workerstatus

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fleetwise/fleetcore/core/events"
	"github.com/fleetwise/fleetcore/core/model"
	"github.com/fleetwise/fleetcore/core/store"
	"github.com/fleetwise/fleetcore/internal/eventbus"
)

// LastAssignment mirrors the summary of an assignment decision.
type LastAssignment struct {
	TripID    string    `json:"trip_id"`
	Outcome   string    `json:"outcome"`
	DistanceM float64   `json:"distance_m,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Status captures the current known state of a worker.
type Status struct {
	WorkerID       string         `json:"worker_id"`
	StationID      string         `json:"station_id,omitempty"`
	ZoneID         string         `json:"zone_id,omitempty"`
	Online         bool           `json:"online"`
	Busy           bool           `json:"busy"`
	Position       *model.LatLng  `json:"position,omitempty"`
	LastSeen       time.Time      `json:"last_seen"`
	LastAssignment LastAssignment `json:"last_assignment"`
}

type Filter struct {
	StationID  string
	ZoneID     string
	OnlineOnly bool
}

// Store is the projection's query surface.
type Store interface {
	Set(Status)
	List(Filter) []Status
	RecordAssignment(workerID string, dec LastAssignment)
}

type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Status
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]Status{}}
}

// Set replaces the worker's status. A zero LastAssignment in the incoming
// status keeps the recorded one, so state refreshes cannot erase history.
func (s *MemoryStore) Set(st Status) {
	s.mu.Lock()
	if prev, ok := s.data[st.WorkerID]; ok && st.LastAssignment.TripID == "" {
		st.LastAssignment = prev.LastAssignment
	}
	s.data[st.WorkerID] = st
	s.mu.Unlock()
}

func (s *MemoryStore) RecordAssignment(workerID string, dec LastAssignment) {
	s.mu.Lock()
	st := s.data[workerID]
	if st.WorkerID == "" {
		st.WorkerID = workerID
	}
	st.LastAssignment = dec
	s.data[workerID] = st
	s.mu.Unlock()
}

func (s *MemoryStore) List(f Filter) []Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]Status, 0, len(s.data))
	for _, st := range s.data {
		if f.StationID != "" && st.StationID != f.StationID {
			continue
		}
		if f.ZoneID != "" && st.ZoneID != f.ZoneID {
			continue
		}
		if f.OnlineOnly && !st.Online {
			continue
		}
		res = append(res, st)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].WorkerID < res[j].WorkerID })
	return res
}

// Follow folds worker change notifications and assignment events into the
// projection until the context is cancelled.
func Follow(ctx context.Context, st Store, changes <-chan store.WorkerChange, bus eventbus.EventBus) {
	var busCh <-chan eventbus.Event
	if bus != nil {
		busCh = bus.Subscribe()
		defer bus.Unsubscribe(busCh)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			if c.Kind == store.ChangeDelete {
				continue
			}
			w := c.Worker
			st.Set(Status{
				WorkerID:  w.ID,
				StationID: w.StationID,
				ZoneID:    w.ZoneID,
				Online:    w.Online,
				Busy:      w.Busy,
				Position:  w.Position,
				LastSeen:  w.LastUpdatedAt,
			})
		case e, ok := <-busCh:
			if !ok {
				busCh = nil
				continue
			}
			if a, ok := e.(events.AssignmentEvent); ok && a.WorkerID != "" {
				st.RecordAssignment(a.WorkerID, LastAssignment{
					TripID:    a.TripID,
					Outcome:   a.Outcome,
					DistanceM: a.DistanceM,
					Timestamp: time.Now(),
				})
			}
		}
	}
}
