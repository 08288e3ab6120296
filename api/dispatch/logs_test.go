package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fleetwise/fleetcore/core/dispatch/logging"
	"github.com/fleetwise/fleetcore/core/model"
)

type memStore struct{ recs []logging.Record }

func (m *memStore) Append(ctx context.Context, r logging.Record) error {
	m.recs = append(m.recs, r)
	return nil
}

func (m *memStore) Query(ctx context.Context, q logging.Query) ([]logging.Record, error) {
	var res []logging.Record
	for _, r := range m.recs {
		if q.WorkerID != "" && r.WorkerID != q.WorkerID {
			continue
		}
		if q.Outcome != "" && r.Outcome != q.Outcome {
			continue
		}
		res = append(res, r)
	}
	return res, nil
}

func (m *memStore) Close() error { return nil }

func TestLogHandler_AuthAndFilters(t *testing.T) {
	store := &memStore{}
	if err := store.Append(context.Background(), logging.Record{
		Timestamp: time.Now(),
		TripID:    "t1",
		StationID: "s1",
		Pickup:    model.LatLng{Lat: 48.85, Lng: 2.29},
		Outcome:   "assigned",
		WorkerID:  "w1",
		DistanceM: 120,
	}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Append(context.Background(), logging.Record{
		Timestamp: time.Now(),
		TripID:    "t2",
		StationID: "s1",
		Pickup:    model.LatLng{Lat: 48.86, Lng: 2.30},
		Outcome:   "no_driver",
	}); err != nil {
		t.Fatalf("append: %v", err)
	}
	h := NewLogHandler(store, "tok")

	req := httptest.NewRequest("GET", "/api/dispatch/logs?worker_id=w1", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	var out []logging.Record
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 1 || out[0].TripID != "t1" {
		t.Fatalf("expected only the assigned record, got %v", out)
	}

	// unauthorized
	req = httptest.NewRequest("GET", "/api/dispatch/logs", nil)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}
}

func TestLogHandler_OutcomeFilter(t *testing.T) {
	store := &memStore{recs: []logging.Record{
		{TripID: "t1", Outcome: "assigned", WorkerID: "w1"},
		{TripID: "t2", Outcome: "no_driver"},
	}}
	h := NewLogHandler(store, "")

	req := httptest.NewRequest("GET", "/api/dispatch/logs?outcome=no_driver", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	var out []logging.Record
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 1 || out[0].TripID != "t2" {
		t.Fatalf("expected only the no_driver record, got %v", out)
	}
}
