package main

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fleetwise/fleetcore/core/notify"
)

// simNotifier is an in-process delivery channel: offers are handed straight
// to the worker's ack strategy instead of crossing a broker.
type simNotifier struct {
	strat AckStrategy

	mu      sync.Mutex
	pending map[string]string
}

func newSimNotifier(strat AckStrategy) *simNotifier {
	return &simNotifier{strat: strat, pending: make(map[string]string)}
}

// SendOffer implements notify.Notifier.
func (n *simNotifier) SendOffer(workerID string, offer notify.Offer) (string, error) {
	cmdID := uuid.NewString()
	n.mu.Lock()
	n.pending[cmdID] = workerID
	n.mu.Unlock()
	return cmdID, nil
}

// WaitForAck implements notify.Notifier by running the worker's ack strategy
// under the engine's timeout.
func (n *simNotifier) WaitForAck(commandID string, timeout time.Duration) (bool, error) {
	n.mu.Lock()
	workerID, ok := n.pending[commandID]
	delete(n.pending, commandID)
	n.mu.Unlock()
	if !ok {
		return false, notify.ErrAckTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	accepted := n.strat.Ack(ctx, workerID, commandID)
	if ctx.Err() != nil {
		return false, notify.ErrAckTimeout
	}
	return accepted, nil
}
