// Package store defines the persisted record contract shared by every
// coordination component: field-level partial writes, compare-and-swap trip
// transitions and push-based change notification.
package store

import (
	"context"
	"errors"

	"github.com/fleetwise/fleetcore/core/model"
)

var (
	// ErrNotFound indicates the target record does not exist. For worker
	// location writes this points at a provisioning bug upstream.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a concurrent mutation won the race. Benign for
	// location writes, a safe no-op signal for trip binds.
	ErrConflict = errors.New("write conflict")
	// ErrDenied indicates an access-control rejection. Logged distinctly so
	// operators can tell policy misconfiguration from outages.
	ErrDenied = errors.New("write denied by policy")
)

// ChangeKind discriminates change notifications.
type ChangeKind int

const (
	ChangeInsert ChangeKind = iota
	ChangeUpdate
	ChangeDelete
)

// WorkerChange is one push notification for a worker record.
type WorkerChange struct {
	Kind   ChangeKind
	Worker model.WorkerState
}

// TripChange is one push notification for a trip record.
type TripChange struct {
	Kind ChangeKind
	Trip model.TripRequest
}

// WorkerFields is a field-level partial update. Nil fields are left
// untouched so concurrent writers cannot clobber unrelated columns.
type WorkerFields struct {
	Online   *bool
	Busy     *bool
	Approved *bool
	Position *model.LatLng
	Heading  *float64
	ZoneID   *string
	Address  *string
}

// TripFields is a field-level partial update for trip records.
type TripFields struct {
	Status           *model.TripStatus
	AssignedWorkerID *string
}

// WorkerFilter narrows worker reads and subscriptions.
type WorkerFilter struct {
	StationID  string
	ZoneID     string
	WorkerID   string
	OnlineOnly bool
}

// Matches reports whether the worker satisfies the filter.
func (f WorkerFilter) Matches(w model.WorkerState) bool {
	if f.StationID != "" && w.StationID != f.StationID {
		return false
	}
	if f.ZoneID != "" && w.ZoneID != f.ZoneID {
		return false
	}
	if f.WorkerID != "" && w.ID != f.WorkerID {
		return false
	}
	if f.OnlineOnly && !w.Online {
		return false
	}
	return true
}

// Store is the system of record. Writes are last-write-wins at the field
// level; LastUpdatedAt is assigned by the store, never by client clocks.
type Store interface {
	Worker(ctx context.Context, id string) (model.WorkerState, error)
	Workers(ctx context.Context, f WorkerFilter) ([]model.WorkerState, error)
	PutWorker(ctx context.Context, w model.WorkerState) error
	UpdateWorker(ctx context.Context, id string, fields WorkerFields) (model.WorkerState, error)
	// MarkWorkerBusy sets the busy flag only if the worker is currently
	// online and idle; ErrConflict otherwise. This is the write-time
	// eligibility re-check that guards two trips racing for one worker.
	MarkWorkerBusy(ctx context.Context, id string) error
	ClearWorkerBusy(ctx context.Context, id string) error

	Trip(ctx context.Context, id string) (model.TripRequest, error)
	PutTrip(ctx context.Context, t model.TripRequest) error
	// UpdateTripIf applies fields only when the trip is currently in the
	// expected status; ErrConflict otherwise. This is the compare-and-swap
	// primitive behind "bind worker X only if still pending".
	UpdateTripIf(ctx context.Context, id string, expect model.TripStatus, fields TripFields) (model.TripRequest, error)
	// OpenTripForWorker reports whether the worker holds a pending or
	// active trip within the station.
	OpenTripForWorker(ctx context.Context, stationID, workerID string) (model.TripRequest, bool, error)

	// SubscribeWorkers streams change notifications for workers matching
	// the filter. The returned func cancels the subscription.
	SubscribeWorkers(f WorkerFilter) (<-chan WorkerChange, func())
	// SubscribeTrip streams change notifications for a single trip.
	SubscribeTrip(id string) (<-chan TripChange, func())
}
