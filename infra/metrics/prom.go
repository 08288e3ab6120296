// Package metrics provides the concrete observability sinks behind the
// core sink interfaces: Prometheus, InfluxDB and a fan-out combinator.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/fleetwise/fleetcore/core/metrics"
)

// PromSink records assignment events in Prometheus metrics.
type PromSink struct {
	assignments *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	fleet       prometheus.Gauge
}

// NewPromSink registers assignment metrics on the default Prometheus
// registerer. The Prometheus server should be started separately.
func NewPromSink() (coremetrics.Sink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (coremetrics.Sink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	assignments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_assignment_events_total",
		Help: "Total number of assignment events",
	}, []string{"station", "outcome"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fleet_offer_latency_seconds",
		Help:    "Time between offer push and worker acknowledgment",
		Buckets: prometheus.DefBuckets,
	}, []string{"acknowledged"})
	fleet := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_dispatchable_workers",
		Help: "Number of dispatchable workers observed during candidate selection",
	})

	if err := reg.Register(assignments); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			assignments = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(latency); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			latency = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(fleet); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			fleet = are.ExistingCollector.(prometheus.Gauge)
		} else {
			return nil, err
		}
	}

	return &PromSink{assignments: assignments, latency: latency, fleet: fleet}, nil
}

// RecordAssignment increments the counter for each assignment record.
func (s *PromSink) RecordAssignment(recs []coremetrics.AssignmentRecord) error {
	for _, r := range recs {
		s.assignments.WithLabelValues(r.StationID, r.Outcome).Inc()
	}
	return nil
}

// RecordOfferLatency records the offer acknowledgment latency histogram.
func (s *PromSink) RecordOfferLatency(recs []coremetrics.OfferLatency) error {
	for _, r := range recs {
		s.latency.WithLabelValues(strconv.FormatBool(r.Acknowledged)).Observe(r.Latency.Seconds())
	}
	return nil
}

// RecordFleetSize sets the gauge to the number of dispatchable workers.
func (s *PromSink) RecordFleetSize(size int) error {
	if s.fleet != nil {
		s.fleet.Set(float64(size))
	}
	return nil
}
