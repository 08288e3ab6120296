// Package queue computes the fairness ordering of idle workers inside a
// zone: the longer a worker has been waiting, the closer to the front it is.
package queue

import (
	"context"
	"sort"

	"github.com/fleetwise/fleetcore/core/model"
	"github.com/fleetwise/fleetcore/core/store"
)

// Entry is one worker's place in the zone queue. Position is 1-based.
type Entry struct {
	WorkerID string
	Position int
}

// Snapshot is the full queue of one zone at one instant.
type Snapshot struct {
	ZoneID  string
	Entries []Entry
}

// Size returns the number of queued workers.
func (s Snapshot) Size() int { return len(s.Entries) }

// PositionOf returns the worker's 1-based position, or 0 if not queued.
func (s Snapshot) PositionOf(workerID string) int {
	for _, e := range s.Entries {
		if e.WorkerID == workerID {
			return e.Position
		}
	}
	return 0
}

// Store is the slice of the store contract the ranker needs.
type Store interface {
	Workers(ctx context.Context, f store.WorkerFilter) ([]model.WorkerState, error)
	SubscribeWorkers(f store.WorkerFilter) (<-chan store.WorkerChange, func())
}

// Ranker projects zone queues out of the worker records. It holds no state
// of its own; every snapshot is recomputed from the store.
type Ranker struct {
	store Store
}

// NewRanker creates a ranker over the given store.
func NewRanker(st Store) *Ranker {
	return &Ranker{store: st}
}

// Rank computes the current queue for the zone. Workers are ordered by how
// recently their record changed, oldest first: lastUpdatedAt is the proxy for
// how long they have been waiting. Ties break on worker id so the order is
// deterministic.
func (r *Ranker) Rank(ctx context.Context, zoneID string) (Snapshot, error) {
	workers, err := r.store.Workers(ctx, store.WorkerFilter{ZoneID: zoneID, OnlineOnly: true})
	if err != nil {
		return Snapshot{}, err
	}
	sort.Slice(workers, func(i, j int) bool {
		a, b := workers[i], workers[j]
		if !a.LastUpdatedAt.Equal(b.LastUpdatedAt) {
			return a.LastUpdatedAt.Before(b.LastUpdatedAt)
		}
		return a.ID < b.ID
	})

	snap := Snapshot{ZoneID: zoneID}
	for i, w := range workers {
		snap.Entries = append(snap.Entries, Entry{WorkerID: w.ID, Position: i + 1})
	}
	return snap, nil
}

// Watch emits a fresh snapshot whenever any worker change could affect the
// zone's queue. The subscription is unfiltered on purpose: a worker leaving
// the zone no longer matches a zone-scoped filter, yet its departure must
// still shift everyone behind it forward. The returned func cancels the
// watch and closes the channel.
func (r *Ranker) Watch(ctx context.Context, zoneID string) (<-chan Snapshot, func()) {
	changes, cancelSub := r.store.SubscribeWorkers(store.WorkerFilter{})
	out := make(chan Snapshot, 16)

	watchCtx, cancel := context.WithCancel(ctx)
	go func() {
		defer close(out)
		var last *Snapshot
		for {
			select {
			case _, ok := <-changes:
				if !ok {
					return
				}
				snap, err := r.Rank(watchCtx, zoneID)
				if err != nil {
					continue
				}
				if last != nil && equal(*last, snap) {
					continue
				}
				last = &snap
				select {
				case out <- snap:
				default:
					// A slow consumer only needs the newest snapshot;
					// intermediate orderings are disposable.
					select {
					case <-out:
					default:
					}
					select {
					case out <- snap:
					default:
					}
				}
			case <-watchCtx.Done():
				return
			}
		}
	}()

	return out, func() {
		cancel()
		cancelSub()
	}
}

func equal(a, b Snapshot) bool {
	if len(a.Entries) != len(b.Entries) {
		return false
	}
	for i := range a.Entries {
		if a.Entries[i] != b.Entries[i] {
			return false
		}
	}
	return true
}
