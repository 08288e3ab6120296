// Package logging persists assignment decisions so dispatch outcomes can be
// audited after the fact.
package logging

import (
	"context"
	"time"

	"github.com/fleetwise/fleetcore/core/model"
)

// Record captures one assignment decision and its outcome.
type Record struct {
	Timestamp time.Time    `json:"timestamp"`
	TripID    string       `json:"trip_id"`
	StationID string       `json:"station_id"`
	ZoneID    string       `json:"zone_id,omitempty"`
	Pickup    model.LatLng `json:"pickup"`
	Outcome   string       `json:"outcome"`
	WorkerID  string       `json:"worker_id,omitempty"`
	DistanceM float64      `json:"distance_m,omitempty"`
}

// Query defines filters for retrieving records.
type Query struct {
	Start     time.Time
	End       time.Time
	StationID string
	WorkerID  string
	Outcome   string
}

func (q Query) matches(r Record) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.StationID != "" && r.StationID != q.StationID {
		return false
	}
	if q.WorkerID != "" && r.WorkerID != q.WorkerID {
		return false
	}
	if q.Outcome != "" && r.Outcome != q.Outcome {
		return false
	}
	return true
}

// LogStore persists Records and supports querying.
type LogStore interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}
