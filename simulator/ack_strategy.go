package main

import (
	"context"
	"math/rand"
	"time"
)

var rng = rand.New(rand.NewSource(time.Now().UnixNano()))

// AckStrategy decides whether and when a simulated worker accepts an offer.
type AckStrategy interface {
	Ack(ctx context.Context, workerID, commandID string) bool
}

// AutoAck accepts every offer after an optional fixed delay.
type AutoAck struct {
	Delay time.Duration
}

// Ack implements AckStrategy.
func (a AutoAck) Ack(ctx context.Context, workerID, commandID string) bool {
	if a.Delay > 0 {
		select {
		case <-time.After(a.Delay):
		case <-ctx.Done():
			return false
		}
	}
	return true
}

// RandomAck ignores offers with the configured probability and waits for
// the specified delay before accepting the rest.
type RandomAck struct {
	Delay    time.Duration
	DropRate float64
}

// Ack implements AckStrategy.
func (r RandomAck) Ack(ctx context.Context, workerID, commandID string) bool {
	if r.DropRate > 0 && rng.Float64() < r.DropRate {
		return false
	}
	if r.Delay > 0 {
		select {
		case <-time.After(r.Delay):
		case <-ctx.Done():
			return false
		}
	}
	return true
}
