// Package events defines the coordination events emitted on the event bus.
//
// Available event types:
//   - TripRequestedEvent: a new trip entered assignment
//   - AssignmentEvent: outcome of an assignment attempt
//   - OfferAckEvent: worker acknowledgment of a trip offer
//   - ToggleEvent: result of an availability toggle
package events
