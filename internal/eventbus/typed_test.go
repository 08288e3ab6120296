package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTypedBusPublishSubscribe(t *testing.T) {
	b := NewTyped[int]()
	sub := b.Subscribe()
	b.Publish(42)
	select {
	case v := <-sub:
		assert.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
	b.Unsubscribe(sub)
	_, open := <-sub
	assert.False(t, open, "channel must be closed after unsubscribe")
}

func TestTypedBusNonBlocking(t *testing.T) {
	b := NewTyped[int]()
	_ = b.Subscribe()
	// Fill past the buffer; publishers must never block on slow subscribers.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestTypedBusClose(t *testing.T) {
	b := NewTyped[string]()
	sub := b.Subscribe()
	b.Close()
	_, open := <-sub
	assert.False(t, open)
	// Publishing after close is a no-op.
	b.Publish("late")
	// Subscribing after close yields a closed channel.
	sub2 := b.Subscribe()
	_, open = <-sub2
	assert.False(t, open)
}
