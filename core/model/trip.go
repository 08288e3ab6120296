package model

import (
	"fmt"
	"time"
)

// TripStatus enumerates the lifecycle states of a trip request.
type TripStatus int

const (
	TripPending TripStatus = iota
	TripActive
	TripCompleted
	TripCancelled
)

// String returns a human-readable representation of the status.
func (s TripStatus) String() string {
	switch s {
	case TripPending:
		return "pending"
	case TripActive:
		return "active"
	case TripCompleted:
		return "completed"
	case TripCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Open reports whether the trip still occupies a worker slot.
func (s TripStatus) Open() bool {
	return s == TripPending || s == TripActive
}

// TripRequest is one unit of work to be matched to exactly one worker.
// AssignedWorkerID is non-empty iff the status is active or completed.
type TripRequest struct {
	ID               string     `json:"id"`
	StationID        string     `json:"station_id"`
	ZoneID           string     `json:"zone_id,omitempty"`
	Pickup           LatLng     `json:"pickup"`
	Destination      LatLng     `json:"destination"`
	Status           TripStatus `json:"status"`
	AssignedWorkerID string     `json:"assigned_worker_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Validate checks the request before it is allowed to enter assignment.
// Missing pickup coordinates are a data-integrity error, never fabricated.
func (t TripRequest) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("trip id is required")
	}
	if t.StationID == "" {
		return fmt.Errorf("trip %s: station id is required", t.ID)
	}
	if !t.Pickup.Valid() {
		return fmt.Errorf("trip %s: pickup coordinates missing or invalid", t.ID)
	}
	if t.Status == TripPending && t.AssignedWorkerID != "" {
		return fmt.Errorf("trip %s: pending trip must not carry a worker binding", t.ID)
	}
	if t.Status == TripActive && t.AssignedWorkerID == "" {
		return fmt.Errorf("trip %s: active trip must carry a worker binding", t.ID)
	}
	return nil
}
