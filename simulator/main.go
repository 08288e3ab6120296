package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fleetwise/fleetcore/core/dispatch"
	"github.com/fleetwise/fleetcore/core/events"
	"github.com/fleetwise/fleetcore/core/model"
	"github.com/fleetwise/fleetcore/core/queue"
	"github.com/fleetwise/fleetcore/core/store"
	"github.com/fleetwise/fleetcore/infra/logger"
	"github.com/fleetwise/fleetcore/internal/eventbus"
)

func main() {
	cfg := parseFlags()
	if err := (&cfg).Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logg := logger.New("simulator")
	st := store.NewMemoryStore()
	defer st.Close()
	bus := eventbus.New()
	defer bus.Close()

	strat := RandomAck{Delay: cfg.AckLatency, DropRate: cfg.DropRate}
	engine, err := dispatch.NewEngine(st, newSimNotifier(strat), dispatch.Config{
		PreferZone: true,
		AckTimeout: cfg.AckLatency + 2*time.Second,
	}, nil, bus, logg)
	if err != nil {
		log.Fatalf("dispatch engine: %v", err)
	}

	workers, err := GenerateFleet(ctx, cfg, st, logg)
	if err != nil {
		log.Fatalf("generate fleet: %v", err)
	}
	defer func() {
		for _, w := range workers {
			w.Close()
		}
	}()

	trips := make(chan model.TripRequest, 16)
	go engine.Run(ctx, trips)
	go runFleet(ctx, cfg, workers)
	go runTrips(ctx, cfg, st, trips, logg)
	if cfg.Verbose {
		go watchOutcomes(ctx, bus, logg)
		for _, zone := range cfg.ZoneList() {
			go watchZone(ctx, st, zone, logg)
		}
	}

	<-ctx.Done()
}

func parseFlags() Config {
	var cfg Config
	flag.IntVar(&cfg.FleetSize, "fleet-size", 10, "number of simulated workers")
	flag.StringVar(&cfg.StationID, "station", "sim-station", "station identifier")
	flag.StringVar(&cfg.Zones, "zones", "north,south", "comma-separated zone identifiers")
	flag.Float64Var(&cfg.CenterLat, "lat", 48.8584, "walk center latitude")
	flag.Float64Var(&cfg.CenterLng, "lng", 2.2945, "walk center longitude")
	flag.Float64Var(&cfg.SpreadM, "spread", 2000, "initial scatter radius in meters")
	flag.Float64Var(&cfg.SpeedMPS, "speed", 8, "worker speed in meters per second")
	flag.DurationVar(&cfg.Tick, "tick", time.Second, "walk tick interval")
	flag.DurationVar(&cfg.TripInterval, "trip-interval", 5*time.Second, "interval between generated trips")
	flag.Float64Var(&cfg.OfflineRate, "offline-rate", 0.01, "per-tick availability flip probability")
	flag.DurationVar(&cfg.AckLatency, "ack-latency", 200*time.Millisecond, "offer ack latency")
	flag.Float64Var(&cfg.DropRate, "drop-rate", 0.1, "offer ack drop rate")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "log assignments and zone queues")
	flag.Parse()
	return cfg
}

// watchOutcomes logs every assignment outcome published on the bus.
func watchOutcomes(ctx context.Context, bus eventbus.EventBus, logg logger.Logger) {
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub:
			if !ok {
				return
			}
			if a, ok := e.(events.AssignmentEvent); ok {
				logg.Infof("trip %s: outcome=%s worker=%s distance=%.0fm", a.TripID, a.Outcome, a.WorkerID, a.DistanceM)
			}
		}
	}
}

// watchZone logs the queue ranking of one zone whenever it changes.
func watchZone(ctx context.Context, st *store.MemoryStore, zone string, logg logger.Logger) {
	snaps, cancel := queue.NewRanker(st).Watch(ctx, zone)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			ids := make([]string, 0, snap.Size())
			for _, e := range snap.Entries {
				ids = append(ids, e.WorkerID)
			}
			logg.Infof("zone %s queue: %v", zone, ids)
		}
	}
}
