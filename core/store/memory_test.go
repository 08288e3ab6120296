package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetwise/fleetcore/core/model"
)

func seedWorker(t *testing.T, s *MemoryStore, id, station string, online bool) {
	t.Helper()
	pos := &model.LatLng{Lat: 32.9, Lng: 35.0}
	err := s.PutWorker(context.Background(), model.WorkerState{
		ID: id, StationID: station, Online: online, Approved: true, Position: pos,
	})
	require.NoError(t, err)
}

func TestUpdateWorkerPartialFields(t *testing.T) {
	s := NewMemoryStore()
	seedWorker(t, s, "w1", "s1", true)

	addr := "1 Main St"
	w, err := s.UpdateWorker(context.Background(), "w1", WorkerFields{Address: &addr})
	require.NoError(t, err)
	assert.Equal(t, "1 Main St", w.Address)
	assert.True(t, w.Online, "untouched fields must survive partial writes")
	assert.NotNil(t, w.Position)
}

func TestUpdateWorkerNotFound(t *testing.T) {
	s := NewMemoryStore()
	on := true
	_, err := s.UpdateWorker(context.Background(), "ghost", WorkerFields{Online: &on})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestServerAssignsTimestamps(t *testing.T) {
	s := NewMemoryStore()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	seedWorker(t, s, "w1", "s1", true)
	w, err := s.Worker(context.Background(), "w1")
	require.NoError(t, err)
	assert.Equal(t, fixed, w.LastUpdatedAt, "client clocks are never the arbiter")
}

func TestUpdateTripIfCAS(t *testing.T) {
	s := NewMemoryStore()
	trip := model.TripRequest{ID: "t1", StationID: "s1", Pickup: model.LatLng{Lat: 32.9, Lng: 35.0}}
	require.NoError(t, s.PutTrip(context.Background(), trip))

	active := model.TripActive
	wid := "w1"
	_, err := s.UpdateTripIf(context.Background(), "t1", model.TripPending, TripFields{Status: &active, AssignedWorkerID: &wid})
	require.NoError(t, err)

	// A second bind attempt must observe a conflict, not apply.
	wid2 := "w2"
	got, err := s.UpdateTripIf(context.Background(), "t1", model.TripPending, TripFields{Status: &active, AssignedWorkerID: &wid2})
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, "w1", got.AssignedWorkerID)
}

func TestUpdateTripIfConcurrent(t *testing.T) {
	s := NewMemoryStore()
	trip := model.TripRequest{ID: "t1", StationID: "s1", Pickup: model.LatLng{Lat: 32.9, Lng: 35.0}}
	require.NoError(t, s.PutTrip(context.Background(), trip))

	const attempts = 16
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			active := model.TripActive
			wid := string(rune('a' + n))
			_, err := s.UpdateTripIf(context.Background(), "t1", model.TripPending, TripFields{Status: &active, AssignedWorkerID: &wid})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
		} else {
			assert.ErrorIs(t, err, ErrConflict)
		}
	}
	assert.Equal(t, 1, success, "exactly one bind may win")
}

func TestMarkWorkerBusyGuard(t *testing.T) {
	s := NewMemoryStore()
	seedWorker(t, s, "w1", "s1", true)

	require.NoError(t, s.MarkWorkerBusy(context.Background(), "w1"))
	assert.ErrorIs(t, s.MarkWorkerBusy(context.Background(), "w1"), ErrConflict)

	require.NoError(t, s.ClearWorkerBusy(context.Background(), "w1"))
	require.NoError(t, s.ClearWorkerBusy(context.Background(), "w1"), "clearing idle is a no-op")

	seedWorker(t, s, "w2", "s1", false)
	assert.ErrorIs(t, s.MarkWorkerBusy(context.Background(), "w2"), ErrConflict, "offline workers cannot be reserved")
}

func TestSubscribeWorkersFilter(t *testing.T) {
	s := NewMemoryStore()
	seedWorker(t, s, "w1", "s1", true)
	seedWorker(t, s, "w2", "s2", true)

	sub, cancel := s.SubscribeWorkers(WorkerFilter{StationID: "s1"})
	defer cancel()

	on := false
	_, err := s.UpdateWorker(context.Background(), "w2", WorkerFields{Online: &on})
	require.NoError(t, err)
	_, err = s.UpdateWorker(context.Background(), "w1", WorkerFields{Online: &on})
	require.NoError(t, err)

	select {
	case ev := <-sub:
		assert.Equal(t, "w1", ev.Worker.ID, "foreign-station changes must be filtered out")
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for change event")
	}
}

func TestSubscribeTrip(t *testing.T) {
	s := NewMemoryStore()
	trip := model.TripRequest{ID: "t1", StationID: "s1", Pickup: model.LatLng{Lat: 32.9, Lng: 35.0}}
	require.NoError(t, s.PutTrip(context.Background(), trip))

	sub, cancel := s.SubscribeTrip("t1")
	defer cancel()

	active := model.TripActive
	wid := "w1"
	_, err := s.UpdateTripIf(context.Background(), "t1", model.TripPending, TripFields{Status: &active, AssignedWorkerID: &wid})
	require.NoError(t, err)

	select {
	case ev := <-sub:
		assert.Equal(t, model.TripActive, ev.Trip.Status)
		assert.Equal(t, "w1", ev.Trip.AssignedWorkerID)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for trip change")
	}
}

func TestContextCancelled(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Worker(ctx, "w1")
	assert.ErrorIs(t, err, context.Canceled)
}
