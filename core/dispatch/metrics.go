package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	assignmentsTotal *prometheus.CounterVec
	offerLatency     *prometheus.HistogramVec
	notifySuccess    prometheus.Counter
	notifyFailure    prometheus.Counter
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, *prometheus.HistogramVec, prometheus.Counter, prometheus.Counter) {
	assignments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_assignments_total",
		Help: "Number of assignment attempts by outcome and station",
	}, []string{"outcome", "station"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dispatch_offer_ack_latency_seconds",
		Help:    "Latency between offer push and worker acknowledgment",
		Buckets: prometheus.DefBuckets,
	}, []string{"acknowledged"})
	sent := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_offer_push_success_total",
		Help: "Number of offers successfully pushed to workers",
	})
	failed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_offer_push_failures_total",
		Help: "Number of offer pushes that failed delivery",
	})
	return assignments, latency, sent, failed
}

func init() {
	assignmentsTotal, offerLatency, notifySuccess, notifyFailure = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(assignmentsTotal, offerLatency, notifySuccess, notifyFailure)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	assignmentsTotal, offerLatency, notifySuccess, notifyFailure = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
