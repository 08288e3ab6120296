package metrics

import coremetrics "github.com/fleetwise/fleetcore/core/metrics"

// MultiSink fans assignment records out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordAssignment forwards the records to all sinks, returning the first
// error encountered.
func (m *MultiSink) RecordAssignment(recs []coremetrics.AssignmentRecord) error {
	for _, s := range m.Sinks {
		if err := s.RecordAssignment(recs); err != nil {
			return err
		}
	}
	return nil
}

// RecordOfferLatency forwards latency records when supported by the sink.
func (m *MultiSink) RecordOfferLatency(recs []coremetrics.OfferLatency) error {
	for _, s := range m.Sinks {
		if lr, ok := s.(coremetrics.LatencyRecorder); ok {
			if err := lr.RecordOfferLatency(recs); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordFleetSize forwards fleet size metrics when supported by the sink.
func (m *MultiSink) RecordFleetSize(size int) error {
	for _, s := range m.Sinks {
		if fr, ok := s.(coremetrics.FleetSizeRecorder); ok {
			if err := fr.RecordFleetSize(size); err != nil {
				return err
			}
		}
	}
	return nil
}
