package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fleetwise/fleetcore/config"
	"github.com/fleetwise/fleetcore/core/dispatch"
	"github.com/fleetwise/fleetcore/core/model"
	"github.com/fleetwise/fleetcore/core/store"
	"github.com/fleetwise/fleetcore/infra/logger"
	"github.com/fleetwise/fleetcore/infra/notify"
	"github.com/fleetwise/fleetcore/internal/eventbus"
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Run a single assignment against a seeded in-memory fleet",
	RunE:  dispatchOnce,
}

func init() {
	rootCmd.AddCommand(dispatchCmd)
}

// dispatchOnce seeds one idle worker and one pending trip, runs the engine
// once and prints the outcome. Useful as a wiring smoke check without a
// broker or a real fleet.
func dispatchOnce(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logg := logger.New("dispatch-command")
	st := store.NewMemoryStore()
	defer st.Close()
	bus := eventbus.New()
	defer bus.Close()

	engine, err := dispatch.NewEngine(st, notify.NewMockNotifier(), dispatch.Config{
		PreferZone:     cfg.Dispatch.PreferZone,
		AckTimeout:     time.Duration(cfg.Dispatch.AckTimeoutMS) * time.Millisecond,
		CandidateLimit: cfg.Dispatch.CandidateLimit,
	}, nil, bus, logg)
	if err != nil {
		return fmt.Errorf("dispatch engine: %w", err)
	}

	pickup := model.LatLng{Lat: 48.8584, Lng: 2.2945}
	worker := model.WorkerState{
		ID:        "demo-worker",
		StationID: "demo-station",
		Online:    true,
		Approved:  true,
		Position:  &model.LatLng{Lat: 48.8600, Lng: 2.2950},
	}
	if err := st.PutWorker(ctx, worker); err != nil {
		return fmt.Errorf("seed worker: %w", err)
	}

	trip := model.TripRequest{
		ID:          uuid.NewString(),
		StationID:   "demo-station",
		Pickup:      pickup,
		Destination: model.LatLng{Lat: 48.8738, Lng: 2.2950},
		CreatedAt:   time.Now(),
	}
	if err := st.PutTrip(ctx, trip); err != nil {
		return fmt.Errorf("seed trip: %w", err)
	}

	res, err := engine.Assign(ctx, trip.ID)
	if err != nil {
		return fmt.Errorf("assign: %w", err)
	}
	logg.Infof("trip %s: outcome=%s worker=%s distance=%.0fm", res.TripID, res.Outcome, res.WorkerID, res.DistanceM)
	return nil
}
