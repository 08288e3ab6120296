package location

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	locationWrites    prometheus.Counter
	writeFailures     *prometheus.CounterVec
	samplesSuppressed *prometheus.CounterVec
	samplesRejected   prometheus.Counter
	uiFramesEmitted   prometheus.Counter
	geocodeFailures   prometheus.Counter
)

// newCollectors creates new metric collectors.
func newCollectors() (prometheus.Counter, *prometheus.CounterVec, *prometheus.CounterVec, prometheus.Counter, prometheus.Counter, prometheus.Counter) {
	writes := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "location_writes_total",
		Help: "Number of successful durable location writes",
	})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "location_write_failures_total",
		Help: "Number of dropped location writes by reason",
	}, []string{"reason"})
	suppressed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "location_samples_suppressed_total",
		Help: "Number of samples suppressed by a throttling gate",
	}, []string{"gate"})
	rejected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "location_samples_rejected_total",
		Help: "Number of invalid GPS samples rejected",
	})
	ui := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "location_ui_frames_total",
		Help: "Number of samples emitted on the UI-rate stream",
	})
	geocode := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "location_geocode_failures_total",
		Help: "Number of failed reverse geocode lookups",
	})
	return writes, failures, suppressed, rejected, ui, geocode
}

func init() {
	locationWrites, writeFailures, samplesSuppressed, samplesRejected, uiFramesEmitted, geocodeFailures = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers location metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(locationWrites, writeFailures, samplesSuppressed, samplesRejected, uiFramesEmitted, geocodeFailures)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	locationWrites, writeFailures, samplesSuppressed, samplesRejected, uiFramesEmitted, geocodeFailures = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
