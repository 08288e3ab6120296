package metrics

import (
	"time"
)

// AssignmentRecord represents one assignment attempt to be recorded.
type AssignmentRecord struct {
	TripID    string
	StationID string
	WorkerID  string
	DistanceM float64
	Outcome   string // assigned, no_driver, already_assigned
	Time      time.Time
}

// Sink records assignment results for observability purposes.
type Sink interface {
	RecordAssignment(recs []AssignmentRecord) error
}

// OfferLatency captures how long a worker took to acknowledge an offer.
type OfferLatency struct {
	TripID       string
	WorkerID     string
	Acknowledged bool
	Latency      time.Duration
}

// LatencyRecorder records offer acknowledgment latencies.
type LatencyRecorder interface {
	RecordOfferLatency(recs []OfferLatency) error
}

// FleetSizeRecorder records the number of dispatchable workers observed
// during candidate selection.
type FleetSizeRecorder interface {
	RecordFleetSize(size int) error
}

// NopSink discards all records.
type NopSink struct{}

func (NopSink) RecordAssignment([]AssignmentRecord) error { return nil }
