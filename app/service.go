// Package app assembles the coordination core from configuration: store,
// dispatch engine, notification transport, geo index and metrics sinks.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	apidispatch "github.com/fleetwise/fleetcore/api/dispatch"
	apiworkers "github.com/fleetwise/fleetcore/api/workers"
	"github.com/fleetwise/fleetcore/config"
	"github.com/fleetwise/fleetcore/core/availability"
	"github.com/fleetwise/fleetcore/core/claims"
	"github.com/fleetwise/fleetcore/core/dispatch"
	"github.com/fleetwise/fleetcore/core/dispatch/logging"
	"github.com/fleetwise/fleetcore/core/interp"
	"github.com/fleetwise/fleetcore/core/location"
	coremetrics "github.com/fleetwise/fleetcore/core/metrics"
	"github.com/fleetwise/fleetcore/core/model"
	coremon "github.com/fleetwise/fleetcore/core/monitoring"
	corenotify "github.com/fleetwise/fleetcore/core/notify"
	"github.com/fleetwise/fleetcore/core/store"
	"github.com/fleetwise/fleetcore/core/workerstatus"
	"github.com/fleetwise/fleetcore/infra/geocode"
	"github.com/fleetwise/fleetcore/infra/logger"
	"github.com/fleetwise/fleetcore/infra/metrics"
	"github.com/fleetwise/fleetcore/infra/monitoring"
	"github.com/fleetwise/fleetcore/infra/notify"
	"github.com/fleetwise/fleetcore/infra/redisgeo"
	"github.com/fleetwise/fleetcore/internal/eventbus"
)

// Service orchestrates the dispatch engine and its collaborators.
type Service struct {
	Engine *dispatch.Engine
	Store  *store.MemoryStore
	Status *workerstatus.MemoryStore
	Hub    *notify.WSHub

	trips    chan model.TripRequest
	bus      eventbus.EventBus
	log      logger.Logger
	audit    logging.LogStore
	geoIndex *redisgeo.Index
	notifier interface{ Disconnect() }
	geocoder location.Geocoder
	cfg      *config.Config

	promEnabled bool
	promAddr    string
	wsEnabled   bool
	wsAddr      string
	apiEnabled  bool
	apiAddr     string
	apiToken    string
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	st := store.NewMemoryStore()
	bus := eventbus.New()

	svc := &Service{
		Store:       st,
		Status:      workerstatus.NewMemoryStore(),
		trips:       make(chan model.TripRequest, 64),
		bus:         bus,
		log:         logg,
		cfg:         cfg,
		promEnabled: cfg.Metrics.PrometheusEnabled,
		promAddr:    cfg.Metrics.PrometheusAddr,
		wsEnabled:   cfg.WebSocket.Enabled,
		wsAddr:      cfg.WebSocket.Addr,
		apiEnabled:  cfg.API.Enabled,
		apiAddr:     cfg.API.Addr,
		apiToken:    cfg.API.Token,
	}

	var notifier corenotify.Notifier
	if cfg.WebSocket.Enabled {
		hub := notify.NewWSHub(logg)
		svc.Hub = hub
		notifier = hub
	} else if cfg.MQTT.Broker != "" {
		client, err := notify.NewPahoNotifier(cfg.MQTT)
		if err != nil {
			return nil, fmt.Errorf("mqtt notifier: %w", err)
		}
		svc.notifier = client
		notifier = client
	}

	var sinks []coremetrics.Sink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink()
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sink := metrics.NewInfluxSinkWithFallback(cfg.Metrics.InfluxURL, cfg.Metrics.InfluxToken, cfg.Metrics.InfluxOrg, cfg.Metrics.InfluxBucket)
		sinks = append(sinks, sink)
	}
	var sink coremetrics.Sink
	if len(sinks) == 1 {
		sink = sinks[0]
	} else if len(sinks) > 1 {
		sink = metrics.NewMultiSink(sinks...)
	}

	engine, err := dispatch.NewEngine(st, notifier, dispatch.Config{
		PreferZone:     cfg.Dispatch.PreferZone,
		AckTimeout:     time.Duration(cfg.Dispatch.AckTimeoutMS) * time.Millisecond,
		CandidateLimit: cfg.Dispatch.CandidateLimit,
	}, sink, bus, logg)
	if err != nil {
		return nil, fmt.Errorf("dispatch engine: %w", err)
	}
	svc.Engine = engine

	audit, err := newAuditLog(cfg.AuditLog)
	if err != nil {
		return nil, fmt.Errorf("audit log: %w", err)
	}
	svc.audit = audit
	engine.SetAuditLog(audit)

	if cfg.Geocode.APIKey != "" {
		geocoder, err := geocode.NewGoogleGeocoder(cfg.Geocode.APIKey)
		if err != nil {
			return nil, fmt.Errorf("geocoder: %w", err)
		}
		svc.geocoder = geocoder
	}

	if cfg.RedisGeo.Enabled {
		idx := redisgeo.NewIndex(cfg.RedisGeo.Config, logg)
		svc.geoIndex = idx
		engine.SetCandidateIndex(idx)
	}

	return svc, nil
}

func newAuditLog(cfg config.AuditLogConfig) (logging.LogStore, error) {
	switch cfg.Backend {
	case "jsonl_rotating":
		return logging.NewRotatingJSONLStore(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
	default:
		return logging.NewJSONLStore(cfg.Path)
	}
}

// LocationController builds the throttling controller for one worker's GPS
// stream, wired to the store and the configured geocoder.
func (s *Service) LocationController(workerID string) *location.Controller {
	lc := s.cfg.Location
	return location.NewController(workerID, s.Store, s.geocoder, location.Config{
		MinWriteDistanceM: lc.MinWriteDistanceM,
		WriteInterval:     time.Duration(lc.WriteIntervalMS) * time.Millisecond,
		UIInterval:        time.Duration(lc.UIIntervalMS) * time.Millisecond,
		WriteTimeout:      time.Duration(lc.WriteTimeoutMS) * time.Millisecond,
	}, s.log)
}

// InterpEngine builds the rendering interpolation engine from configuration.
func (s *Service) InterpEngine() *interp.Engine {
	lc := s.cfg.Location
	return interp.NewEngine(interp.Config{
		MinDistanceM: lc.InterpMinDistanceM,
		MaxDistanceM: lc.InterpMaxDistanceM,
		Duration:     time.Duration(lc.InterpDurationMS) * time.Millisecond,
	})
}

// AvailabilityController builds the toggle controller for one worker.
func (s *Service) AvailabilityController(ctx context.Context, workerID string) (*availability.Controller, error) {
	w, err := s.Store.Worker(ctx, workerID)
	if err != nil {
		return nil, err
	}
	var registrar corenotify.Registrar
	if s.Hub != nil {
		registrar = s.Hub
	} else if r, ok := s.notifier.(corenotify.Registrar); ok {
		registrar = r
	}
	ac := s.cfg.Availability
	return availability.NewController(w, s.Store, registrar, availability.Config{
		WriteTimeout:   time.Duration(ac.WriteTimeoutMS) * time.Millisecond,
		SuppressWindow: time.Duration(ac.SuppressWindowMS) * time.Millisecond,
		Watchdog:       time.Duration(ac.WatchdogMS) * time.Millisecond,
	}, s.log), nil
}

// ClaimResolver builds the trip-claim race resolver for one worker.
func (s *Service) ClaimResolver(workerID string) *claims.Resolver {
	return claims.NewResolver(workerID, s.Store, claims.Config{
		DismissAfter: time.Duration(s.cfg.Claims.DismissAfterMS) * time.Millisecond,
	}, s.log)
}

// Submit enqueues a trip request for assignment.
func (s *Service) Submit(ctx context.Context, t model.TripRequest) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if err := s.Store.PutTrip(ctx, t); err != nil {
		return err
	}
	select {
	case s.trips <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts the service and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	go s.Engine.Run(ctx, s.trips)

	if s.geoIndex != nil {
		changes, cancel := s.Store.SubscribeWorkers(store.WorkerFilter{})
		defer cancel()
		go s.geoIndex.Follow(ctx, changes)
	}
	{
		changes, cancel := s.Store.SubscribeWorkers(store.WorkerFilter{})
		defer cancel()
		go workerstatus.Follow(ctx, s.Status, changes, s.bus)
	}
	if s.promEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.promAddr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	if s.apiEnabled {
		mux := http.NewServeMux()
		mux.Handle("/api/dispatch/logs", apidispatch.NewLogHandler(s.audit, s.apiToken))
		mux.Handle("/api/workers/status", apiworkers.NewStatusHandler(s.Status))
		srv := &http.Server{Addr: s.apiAddr, Handler: mux}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				s.log.Errorf("api server: %v", err)
			}
		}()
	}
	if s.wsEnabled && s.Hub != nil {
		srv := &http.Server{Addr: s.wsAddr, Handler: s.Hub}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				s.log.Errorf("ws server: %v", err)
			}
		}()
	}

	<-ctx.Done()
	return nil
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	if s.Hub != nil {
		s.Hub.Close()
	}
	if s.notifier != nil {
		s.notifier.Disconnect()
	}
	if s.geoIndex != nil {
		_ = s.geoIndex.Close()
	}
	if s.audit != nil {
		_ = s.audit.Close()
	}
	s.bus.Close()
	coremon.Flush(2 * time.Second)
	return nil
}
