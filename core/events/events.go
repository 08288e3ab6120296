package events

import (
	"time"

	"github.com/fleetwise/fleetcore/core/model"
)

// TripRequestedEvent is published when a new trip request enters assignment.
type TripRequestedEvent struct {
	Trip model.TripRequest
}

// AssignmentEvent reports the outcome of one assignment attempt.
// Outcome is "assigned", "no_driver" or "already_assigned".
type AssignmentEvent struct {
	TripID    string
	StationID string
	WorkerID  string
	DistanceM float64
	Outcome   string
}

// OfferAckEvent is published for each trip offer acknowledgment or error.
type OfferAckEvent struct {
	WorkerID     string
	TripID       string
	Acknowledged bool
	Err          error
	Latency      time.Duration
}

// ToggleEvent reports the settled result of an availability toggle.
type ToggleEvent struct {
	WorkerID string
	Online   bool
	Settled  bool
	Err      error
}
