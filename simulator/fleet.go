package main

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/fleetwise/fleetcore/core/availability"
	"github.com/fleetwise/fleetcore/core/location"
	"github.com/fleetwise/fleetcore/core/model"
	"github.com/fleetwise/fleetcore/core/store"
	"github.com/fleetwise/fleetcore/infra/logger"
)

var fleetRng = rand.New(rand.NewSource(time.Now().UnixNano()))

// GenerateFleet seeds Size worker records wkr0001..wkrNNNN into the store
// and wires a location and availability controller for each. Zones are
// assigned round-robin from the configured list.
func GenerateFleet(ctx context.Context, cfg Config, st *store.MemoryStore, log logger.Logger) ([]*SimWorker, error) {
	zones := cfg.ZoneList()
	center := model.LatLng{Lat: cfg.CenterLat, Lng: cfg.CenterLng}

	workers := make([]*SimWorker, 0, cfg.FleetSize)
	for i := 0; i < cfg.FleetSize; i++ {
		id := fmt.Sprintf("wkr%04d", i+1)
		zone := ""
		if len(zones) > 0 {
			zone = zones[i%len(zones)]
		}
		r := rand.New(rand.NewSource(fleetRng.Int63()))
		pos := jitter(r, center, cfg.SpreadM)

		rec := model.WorkerState{
			ID:        id,
			StationID: cfg.StationID,
			ZoneID:    zone,
			Online:    true,
			Approved:  true,
			Position:  &pos,
		}
		if err := st.PutWorker(ctx, rec); err != nil {
			return nil, fmt.Errorf("seed %s: %w", id, err)
		}

		w := &SimWorker{
			ID:      id,
			ZoneID:  zone,
			pos:     pos,
			heading: r.Float64() * 360,
			rng:     r,
			loc: location.NewController(id, st, nil, location.Config{
				WriteInterval: cfg.Tick,
				UIInterval:    cfg.Tick / 2,
			}, log),
			avail: availability.NewController(rec, st, nil, availability.Config{}, log),
		}
		workers = append(workers, w)
	}
	return workers, nil
}

// runFleet drives the random walk and availability flips until ctx is done.
func runFleet(ctx context.Context, cfg Config, workers []*SimWorker) {
	ticker := time.NewTicker(cfg.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, w := range workers {
				w.Step(cfg.Tick, cfg.SpeedMPS)
				w.MaybeToggle(cfg.OfflineRate)
			}
		}
	}
}

// runTrips emits pending trip requests at the configured interval and hands
// them to the engine's intake channel.
func runTrips(ctx context.Context, cfg Config, st *store.MemoryStore, trips chan<- model.TripRequest, log logger.Logger) {
	zones := cfg.ZoneList()
	center := model.LatLng{Lat: cfg.CenterLat, Lng: cfg.CenterLng}
	ticker := time.NewTicker(cfg.TripInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			zone := ""
			if len(zones) > 0 {
				zone = zones[fleetRng.Intn(len(zones))]
			}
			t := model.TripRequest{
				ID:          uuid.NewString(),
				StationID:   cfg.StationID,
				ZoneID:      zone,
				Pickup:      jitter(fleetRng, center, cfg.SpreadM),
				Destination: jitter(fleetRng, center, cfg.SpreadM*2),
				CreatedAt:   time.Now(),
			}
			if err := st.PutTrip(ctx, t); err != nil {
				log.Errorf("seed trip %s: %v", t.ID, err)
				continue
			}
			select {
			case trips <- t:
			case <-ctx.Done():
				return
			}
		}
	}
}
