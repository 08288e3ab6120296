package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetwise/fleetcore/core/model"
	"github.com/fleetwise/fleetcore/core/notify"
	"github.com/fleetwise/fleetcore/core/store"
)

var pickup = model.LatLng{Lat: 32.9, Lng: 35.0}

// northOf returns a point roughly meters north of pickup.
func northOf(meters float64) model.LatLng {
	return model.LatLng{Lat: pickup.Lat + meters/111195.0, Lng: pickup.Lng}
}

func idleWorker(id, station, zone string, pos model.LatLng) model.WorkerState {
	return model.WorkerState{
		ID:        id,
		StationID: station,
		ZoneID:    zone,
		Online:    true,
		Approved:  true,
		Position:  &pos,
	}
}

func pendingTrip(id, station, zone string) model.TripRequest {
	return model.TripRequest{
		ID:        id,
		StationID: station,
		ZoneID:    zone,
		Pickup:    pickup,
		Status:    model.TripPending,
		CreatedAt: time.Now(),
	}
}

func seed(t *testing.T, workers []model.WorkerState, trips []model.TripRequest) *store.MemoryStore {
	t.Helper()
	st := store.NewMemoryStore()
	ctx := context.Background()
	for _, w := range workers {
		require.NoError(t, st.PutWorker(ctx, w))
	}
	for _, tr := range trips {
		require.NoError(t, st.PutTrip(ctx, tr))
	}
	return st
}

func newTestEngine(t *testing.T, st Store, n notify.Notifier, cfg Config) *Engine {
	t.Helper()
	e, err := NewEngine(st, n, cfg, nil, nil, nil)
	require.NoError(t, err)
	return e
}

type fakeNotifier struct {
	mu      sync.Mutex
	offers  []notify.Offer
	sendErr error
	ack     bool
	ackErr  error
}

func (f *fakeNotifier) SendOffer(workerID string, offer notify.Offer) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.offers = append(f.offers, offer)
	return "cmd-" + offer.TripID, nil
}

func (f *fakeNotifier) WaitForAck(commandID string, timeout time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ack, f.ackErr
}

func TestNearestWorkerWins(t *testing.T) {
	st := seed(t,
		[]model.WorkerState{
			idleWorker("far", "s1", "", northOf(200)),
			idleWorker("near", "s1", "", northOf(50)),
		},
		[]model.TripRequest{pendingTrip("t1", "s1", "")},
	)
	e := newTestEngine(t, st, nil, Config{})

	res, err := e.Assign(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAssigned, res.Outcome)
	assert.Equal(t, "near", res.WorkerID)
	assert.InDelta(t, 50, res.DistanceM, 2)

	trip, err := st.Trip(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, model.TripActive, trip.Status)
	assert.Equal(t, "near", trip.AssignedWorkerID)

	w, err := st.Worker(context.Background(), "near")
	require.NoError(t, err)
	assert.True(t, w.Busy)
}

func TestConcurrentAssignSingleBind(t *testing.T) {
	st := seed(t,
		[]model.WorkerState{
			idleWorker("w1", "s1", "", northOf(30)),
			idleWorker("w2", "s1", "", northOf(60)),
			idleWorker("w3", "s1", "", northOf(90)),
		},
		[]model.TripRequest{pendingTrip("t1", "s1", "")},
	)
	e := newTestEngine(t, st, nil, Config{})

	const attempts = 8
	results := make(chan Result, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.Assign(context.Background(), "t1")
			require.NoError(t, err)
			results <- res
		}()
	}
	wg.Wait()
	close(results)

	assigned := 0
	for res := range results {
		switch res.Outcome {
		case OutcomeAssigned:
			assigned++
		case OutcomeAlreadyAssigned:
		default:
			t.Fatalf("unexpected outcome %q", res.Outcome)
		}
	}
	assert.Equal(t, 1, assigned, "exactly one attempt binds the trip")

	// Only the winner's worker may be busy afterwards.
	trip, err := st.Trip(context.Background(), "t1")
	require.NoError(t, err)
	busy := 0
	for _, id := range []string{"w1", "w2", "w3"} {
		w, err := st.Worker(context.Background(), id)
		require.NoError(t, err)
		if w.Busy {
			busy++
			assert.Equal(t, trip.AssignedWorkerID, w.ID)
		}
	}
	assert.Equal(t, 1, busy)
}

func TestStationIsolation(t *testing.T) {
	st := seed(t,
		[]model.WorkerState{idleWorker("other", "s2", "", northOf(10))},
		[]model.TripRequest{pendingTrip("t1", "s1", "")},
	)
	e := newTestEngine(t, st, nil, Config{})

	res, err := e.Assign(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoWorker, res.Outcome, "workers of another station are never candidates")

	w, err := st.Worker(context.Background(), "other")
	require.NoError(t, err)
	assert.False(t, w.Busy)
}

func TestNoWorkerIsAnOutcomeNotAnError(t *testing.T) {
	offline := idleWorker("w1", "s1", "", northOf(20))
	offline.Online = false
	busy := idleWorker("w2", "s1", "", northOf(40))
	busy.Busy = true
	unapproved := idleWorker("w3", "s1", "", northOf(60))
	unapproved.Approved = false
	positionless := idleWorker("w4", "s1", "", northOf(80))
	positionless.Position = nil

	st := seed(t,
		[]model.WorkerState{offline, busy, unapproved, positionless},
		[]model.TripRequest{pendingTrip("t1", "s1", "")},
	)
	e := newTestEngine(t, st, nil, Config{})

	res, err := e.Assign(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoWorker, res.Outcome)

	trip, err := st.Trip(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, model.TripPending, trip.Status, "an unmatched trip stays pending for retry")
}

func TestZonePreferenceBeatsRawDistance(t *testing.T) {
	st := seed(t,
		[]model.WorkerState{
			idleWorker("outzone-near", "s1", "zB", northOf(20)),
			idleWorker("inzone-far", "s1", "zA", northOf(300)),
		},
		[]model.TripRequest{pendingTrip("t1", "s1", "zA")},
	)
	e := newTestEngine(t, st, nil, Config{PreferZone: true})

	res, err := e.Assign(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "inzone-far", res.WorkerID)
}

func TestZoneFallbackWhenZoneEmpty(t *testing.T) {
	st := seed(t,
		[]model.WorkerState{idleWorker("outzone", "s1", "zB", northOf(20))},
		[]model.TripRequest{pendingTrip("t1", "s1", "zA")},
	)
	e := newTestEngine(t, st, nil, Config{PreferZone: true})

	res, err := e.Assign(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAssigned, res.Outcome)
	assert.Equal(t, "outzone", res.WorkerID)
}

func TestMissingPickupRejected(t *testing.T) {
	trip := pendingTrip("t1", "s1", "")
	trip.Pickup = model.LatLng{}
	st := seed(t, []model.WorkerState{idleWorker("w1", "s1", "", northOf(20))}, []model.TripRequest{trip})
	e := newTestEngine(t, st, nil, Config{})

	_, err := e.Assign(context.Background(), "t1")
	assert.ErrorIs(t, err, ErrMissingPickup)

	w, err := st.Worker(context.Background(), "w1")
	require.NoError(t, err)
	assert.False(t, w.Busy, "a rejected request must not touch the fleet")
}

func TestNotifyFailureDoesNotUnwindAssignment(t *testing.T) {
	st := seed(t,
		[]model.WorkerState{idleWorker("w1", "s1", "", northOf(20))},
		[]model.TripRequest{pendingTrip("t1", "s1", "")},
	)
	n := &fakeNotifier{sendErr: errors.New("broker unreachable")}
	e := newTestEngine(t, st, n, Config{AckTimeout: 50 * time.Millisecond})

	res, err := e.Assign(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAssigned, res.Outcome)

	trip, err := st.Trip(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, model.TripActive, trip.Status, "push failure never unwinds a bind")
}

func TestOfferPushedToWinner(t *testing.T) {
	st := seed(t,
		[]model.WorkerState{idleWorker("w1", "s1", "", northOf(20))},
		[]model.TripRequest{pendingTrip("t1", "s1", "")},
	)
	n := &fakeNotifier{ack: true}
	e := newTestEngine(t, st, n, Config{AckTimeout: 50 * time.Millisecond})

	_, err := e.Assign(context.Background(), "t1")
	require.NoError(t, err)

	n.mu.Lock()
	defer n.mu.Unlock()
	require.Len(t, n.offers, 1)
	assert.Equal(t, "t1", n.offers[0].TripID)
	assert.Equal(t, "w1", n.offers[0].WorkerID)
}

func TestBusyWorkerSkipped(t *testing.T) {
	st := seed(t,
		[]model.WorkerState{idleWorker("only", "s1", "", northOf(20))},
		[]model.TripRequest{
			pendingTrip("t1", "s1", ""),
			pendingTrip("t2", "s1", ""),
		},
	)
	e := newTestEngine(t, st, nil, Config{})
	ctx := context.Background()

	res1, err := e.Assign(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, OutcomeAssigned, res1.Outcome)

	res2, err := e.Assign(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoWorker, res2.Outcome, "a worker holds at most one open trip")
}

func TestCompleteFreesWorker(t *testing.T) {
	st := seed(t,
		[]model.WorkerState{idleWorker("w1", "s1", "", northOf(20))},
		[]model.TripRequest{pendingTrip("t1", "s1", "")},
	)
	e := newTestEngine(t, st, nil, Config{})
	ctx := context.Background()

	_, err := e.Assign(ctx, "t1")
	require.NoError(t, err)
	require.NoError(t, e.Complete(ctx, "t1"))

	trip, err := st.Trip(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, model.TripCompleted, trip.Status)
	assert.Equal(t, "w1", trip.AssignedWorkerID, "completed trips keep their binding for history")

	w, err := st.Worker(ctx, "w1")
	require.NoError(t, err)
	assert.False(t, w.Busy)
}

func TestCancelActiveTrip(t *testing.T) {
	st := seed(t,
		[]model.WorkerState{idleWorker("w1", "s1", "", northOf(20))},
		[]model.TripRequest{pendingTrip("t1", "s1", "")},
	)
	e := newTestEngine(t, st, nil, Config{})
	ctx := context.Background()

	_, err := e.Assign(ctx, "t1")
	require.NoError(t, err)
	require.NoError(t, e.Cancel(ctx, "t1"))

	trip, err := st.Trip(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, model.TripCancelled, trip.Status)
	assert.Empty(t, trip.AssignedWorkerID, "cancellation releases the binding")

	w, err := st.Worker(ctx, "w1")
	require.NoError(t, err)
	assert.False(t, w.Busy, "the freed worker is dispatchable again")
}

func TestCancelPendingTrip(t *testing.T) {
	st := seed(t, nil, []model.TripRequest{pendingTrip("t1", "s1", "")})
	e := newTestEngine(t, st, nil, Config{})

	require.NoError(t, e.Cancel(context.Background(), "t1"))
	trip, err := st.Trip(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, model.TripCancelled, trip.Status)
}

type fakeIndex struct {
	ids []string
	err error
}

func (f fakeIndex) Nearby(ctx context.Context, stationID string, origin model.LatLng, limit int) ([]string, error) {
	return f.ids, f.err
}

func TestIndexNarrowsCandidates(t *testing.T) {
	st := seed(t,
		[]model.WorkerState{
			idleWorker("listed", "s1", "", northOf(100)),
			idleWorker("unlisted", "s1", "", northOf(20)),
		},
		[]model.TripRequest{pendingTrip("t1", "s1", "")},
	)
	e := newTestEngine(t, st, nil, Config{})
	e.SetCandidateIndex(fakeIndex{ids: []string{"listed"}})

	res, err := e.Assign(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "listed", res.WorkerID)
}

func TestIndexFailureFallsBackToFullFleet(t *testing.T) {
	st := seed(t,
		[]model.WorkerState{idleWorker("w1", "s1", "", northOf(20))},
		[]model.TripRequest{pendingTrip("t1", "s1", "")},
	)
	e := newTestEngine(t, st, nil, Config{})
	e.SetCandidateIndex(fakeIndex{err: errors.New("redis down")})

	res, err := e.Assign(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAssigned, res.Outcome, "index outages cost narrowing, never assignments")
}
