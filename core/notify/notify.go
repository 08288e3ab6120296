// Package notify defines the best-effort delivery contract used to push trip
// offers to workers. Failures on this path never unwind an assignment; the
// worker's own subscription will surface the trip regardless.
package notify

import (
	"time"

	"github.com/fleetwise/fleetcore/core/model"
)

// Offer is the payload pushed to the winning worker.
type Offer struct {
	TripID    string       `json:"trip_id"`
	WorkerID  string       `json:"worker_id"`
	Pickup    model.LatLng `json:"pickup"`
	DistanceM float64      `json:"distance_m"`
}

// Notifier pushes trip offers and tracks acknowledgments.
type Notifier interface {
	// SendOffer delivers the offer to the given worker and returns the
	// command identifier used to track the acknowledgment.
	SendOffer(workerID string, offer Offer) (commandID string, err error)

	// WaitForAck waits for an acknowledgment of the provided command
	// identifier or until the timeout expires.
	WaitForAck(commandID string, timeout time.Duration) (bool, error)
}

// Registrar registers a worker for push delivery when it goes online.
// Best-effort: a failed registration never fails the toggle.
type Registrar interface {
	Register(workerID string) error
}
