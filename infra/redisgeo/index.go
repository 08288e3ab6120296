// Package redisgeo keeps a Redis GEO set per station as a read accelerator
// for candidate selection. The store stays the system of record; the index
// may lag or be empty and the dispatch engine must survive both.
package redisgeo

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fleetwise/fleetcore/core/model"
	"github.com/fleetwise/fleetcore/core/store"
	"github.com/fleetwise/fleetcore/infra/logger"
)

// Config tunes the index.
type Config struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	// KeyPrefix namespaces the per-station GEO sets.
	KeyPrefix string `json:"key_prefix"`
	// RadiusM bounds Nearby searches.
	RadiusM float64 `json:"radius_m"`
}

func (c *Config) setDefaults() {
	if c.KeyPrefix == "" {
		c.KeyPrefix = "fleet:geo"
	}
	if c.RadiusM <= 0 {
		c.RadiusM = 10000
	}
}

type geoClient interface {
	GeoAdd(ctx context.Context, key string, geoLocation ...*redis.GeoLocation) *redis.IntCmd
	GeoSearch(ctx context.Context, key string, q *redis.GeoSearchQuery) *redis.StringSliceCmd
	ZRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	Close() error
}

// Index mirrors worker positions into per-station GEO sets and answers
// nearest-first candidate queries.
type Index struct {
	cfg    Config
	client geoClient
	log    logger.Logger
}

// NewIndex connects to Redis.
func NewIndex(cfg Config, log logger.Logger) *Index {
	cfg.setDefaults()
	c := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	return &Index{cfg: cfg, client: c, log: log}
}

// newIndexWithClient is the test seam.
func newIndexWithClient(cfg Config, c geoClient, log logger.Logger) *Index {
	cfg.setDefaults()
	return &Index{cfg: cfg, client: c, log: log}
}

func (i *Index) key(stationID string) string {
	return fmt.Sprintf("%s:%s", i.cfg.KeyPrefix, stationID)
}

// Upsert mirrors one worker's position into its station set.
func (i *Index) Upsert(ctx context.Context, stationID, workerID string, pos model.LatLng) error {
	_, err := i.client.GeoAdd(ctx, i.key(stationID), &redis.GeoLocation{
		Longitude: pos.Lng,
		Latitude:  pos.Lat,
		Name:      workerID,
	}).Result()
	return err
}

// Remove drops the worker from its station set.
func (i *Index) Remove(ctx context.Context, stationID, workerID string) error {
	return i.client.ZRem(ctx, i.key(stationID), workerID).Err()
}

// Nearby returns up to limit worker ids ordered nearest-first around the
// origin, within the configured radius.
func (i *Index) Nearby(ctx context.Context, stationID string, origin model.LatLng, limit int) ([]string, error) {
	return i.client.GeoSearch(ctx, i.key(stationID), &redis.GeoSearchQuery{
		Longitude:  origin.Lng,
		Latitude:   origin.Lat,
		Radius:     i.cfg.RadiusM,
		RadiusUnit: "m",
		Sort:       "ASC",
		Count:      limit,
	}).Result()
}

// Follow mirrors worker change notifications into the index until the
// context is cancelled. Offline workers are evicted so the index never
// offers someone the store would reject anyway.
func (i *Index) Follow(ctx context.Context, changes <-chan store.WorkerChange) {
	for {
		select {
		case ch, ok := <-changes:
			if !ok {
				return
			}
			i.applyChange(ctx, ch)
		case <-ctx.Done():
			return
		}
	}
}

func (i *Index) applyChange(ctx context.Context, ch store.WorkerChange) {
	w := ch.Worker
	opCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if ch.Kind == store.ChangeDelete || !w.Online || w.Position == nil {
		if err := i.Remove(opCtx, w.StationID, w.ID); err != nil {
			i.log.Warnf("geo index evict %s: %v", w.ID, err)
		}
		return
	}
	if err := i.Upsert(opCtx, w.StationID, w.ID, *w.Position); err != nil {
		i.log.Warnf("geo index upsert %s: %v", w.ID, err)
	}
}

// Close releases the Redis connection.
func (i *Index) Close() error { return i.client.Close() }
