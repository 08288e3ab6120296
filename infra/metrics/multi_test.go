package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/fleetwise/fleetcore/core/metrics"
)

type recordingSink struct {
	assignments []coremetrics.AssignmentRecord
	latencies   []coremetrics.OfferLatency
	fleetSizes  []int
	err         error
}

func (r *recordingSink) RecordAssignment(recs []coremetrics.AssignmentRecord) error {
	r.assignments = append(r.assignments, recs...)
	return r.err
}

func (r *recordingSink) RecordOfferLatency(recs []coremetrics.OfferLatency) error {
	r.latencies = append(r.latencies, recs...)
	return r.err
}

func (r *recordingSink) RecordFleetSize(size int) error {
	r.fleetSizes = append(r.fleetSizes, size)
	return r.err
}

func TestMultiSinkFansOut(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}
	m := NewMultiSink(a, b)

	rec := coremetrics.AssignmentRecord{TripID: "t1", StationID: "s1", Outcome: "assigned", Time: time.Now()}
	require.NoError(t, m.RecordAssignment([]coremetrics.AssignmentRecord{rec}))
	assert.Len(t, a.assignments, 1)
	assert.Len(t, b.assignments, 1)

	require.NoError(t, m.RecordOfferLatency([]coremetrics.OfferLatency{{TripID: "t1", Latency: time.Second}}))
	assert.Len(t, a.latencies, 1)

	require.NoError(t, m.RecordFleetSize(7))
	assert.Equal(t, []int{7}, a.fleetSizes)
	assert.Equal(t, []int{7}, b.fleetSizes)
}

func TestMultiSinkSkipsUnsupportedRecorders(t *testing.T) {
	m := NewMultiSink(coremetrics.NopSink{})
	assert.NoError(t, m.RecordOfferLatency([]coremetrics.OfferLatency{{TripID: "t1"}}))
	assert.NoError(t, m.RecordFleetSize(3))
}

func TestMultiSinkReturnsFirstError(t *testing.T) {
	boom := errors.New("sink down")
	m := NewMultiSink(&recordingSink{err: boom}, &recordingSink{})
	assert.ErrorIs(t, m.RecordAssignment([]coremetrics.AssignmentRecord{{TripID: "t1"}}), boom)
}

func TestPromSinkRegistersOnCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, sink.RecordAssignment([]coremetrics.AssignmentRecord{
		{TripID: "t1", StationID: "s1", Outcome: "assigned", Time: time.Now()},
	}))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "fleet_assignment_events_total")

	// Registering twice on the same registry reuses the collectors.
	_, err = NewPromSinkWithRegistry(reg)
	assert.NoError(t, err)
}
