package scenarios

import (
	"context"
	"testing"
	"time"

	"github.com/fleetwise/fleetcore/core/dispatch"
	"github.com/fleetwise/fleetcore/core/store"
	"github.com/fleetwise/fleetcore/infra/logger"
	"github.com/fleetwise/fleetcore/infra/notify"
	"github.com/fleetwise/fleetcore/internal/eventbus"
)

// RunScenario seeds the described fleet, assigns every trip in order and
// checks the outcome tally against the scenario's expectations.
func RunScenario(t *testing.T, sc *Scenario) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	defer st.Close()
	bus := eventbus.New()
	defer bus.Close()

	notifier := notify.NewMockNotifier()
	for _, id := range sc.FailWorkers {
		notifier.FailIDs[id] = true
	}

	engine, err := dispatch.NewEngine(st, notifier, dispatch.Config{
		PreferZone: sc.PreferZone,
		AckTimeout: 10 * time.Millisecond,
	}, nil, bus, logger.NopLogger{})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	for _, w := range sc.Workers {
		if err := st.PutWorker(ctx, w.ToModel(sc.StationID)); err != nil {
			t.Fatalf("seed worker %s: %v", w.ID, err)
		}
	}

	assigned, noDriver := 0, 0
	for _, td := range sc.Trips {
		trip := td.ToModel(sc.StationID)
		if err := st.PutTrip(ctx, trip); err != nil {
			t.Fatalf("seed trip %s: %v", trip.ID, err)
		}
		res, err := engine.Assign(ctx, trip.ID)
		if err != nil {
			t.Fatalf("assign %s: %v", trip.ID, err)
		}
		switch res.Outcome {
		case dispatch.OutcomeAssigned:
			assigned++
		case dispatch.OutcomeNoWorker:
			noDriver++
		}
		if want, ok := sc.Expected.Winners[trip.ID]; ok && res.WorkerID != want {
			t.Errorf("scenario %s: trip %s expected worker %s, got %q", sc.Name, trip.ID, want, res.WorkerID)
		}
	}

	if assigned != sc.Expected.Assigned {
		t.Errorf("scenario %s expected %d assigned, got %d", sc.Name, sc.Expected.Assigned, assigned)
	}
	if noDriver != sc.Expected.NoDriver {
		t.Errorf("scenario %s expected %d no_driver, got %d", sc.Name, sc.Expected.NoDriver, noDriver)
	}
}
