package model

import (
	"fmt"
	"math"
	"time"
)

// LatLng is a WGS84 coordinate pair in decimal degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the coordinate is usable. The zero coordinate is
// rejected because GPS stacks emit (0,0) while reacquiring a fix.
func (p LatLng) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	if p.Lat == 0 && p.Lng == 0 {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// WorkerState is the durable record of a single mobile worker. Position and
// heading are pointers because a freshly registered worker has no fix yet.
type WorkerState struct {
	ID            string    `json:"id"`
	StationID     string    `json:"station_id"`
	ZoneID        string    `json:"zone_id,omitempty"`
	Online        bool      `json:"online"`
	Approved      bool      `json:"approved"`
	Busy          bool      `json:"busy"`
	Position      *LatLng   `json:"position,omitempty"`
	Heading       *float64  `json:"heading,omitempty"`
	Address       string    `json:"address,omitempty"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

// Validate checks the structural invariants of the record.
// A busy worker must be online.
func (w WorkerState) Validate() error {
	if w.ID == "" {
		return fmt.Errorf("worker id is required")
	}
	if w.StationID == "" {
		return fmt.Errorf("worker %s: station id is required", w.ID)
	}
	if w.Busy && !w.Online {
		return fmt.Errorf("worker %s: busy implies online", w.ID)
	}
	return nil
}

// Dispatchable reports whether the worker can be offered a new trip.
func (w WorkerState) Dispatchable() bool {
	return w.Online && w.Approved && !w.Busy && w.Position != nil && w.Position.Valid()
}

// GeoSample is one raw GPS fix. It is transient: the throttling controller
// folds accepted samples into WorkerState and discards the rest.
type GeoSample struct {
	Position   LatLng
	Heading    *float64
	AccuracyM  float64
	CapturedAt time.Time
}

// Valid rejects zeroed, out-of-range and non-finite fixes.
func (s GeoSample) Valid() bool {
	if !s.Position.Valid() {
		return false
	}
	if s.Heading != nil && (math.IsNaN(*s.Heading) || math.IsInf(*s.Heading, 0)) {
		return false
	}
	return true
}
