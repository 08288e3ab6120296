package notify

import (
	"fmt"
	"sync"
	"time"

	corenotify "github.com/fleetwise/fleetcore/core/notify"
)

// MockNotifier is a simple notifier used in tests.
type MockNotifier struct {
	Offers     map[string]corenotify.Offer
	FailIDs    map[string]bool
	AckResults map[string]bool
	Registered []string
	mu         sync.Mutex
}

// NewMockNotifier creates a new MockNotifier.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{
		Offers:     make(map[string]corenotify.Offer),
		FailIDs:    make(map[string]bool),
		AckResults: make(map[string]bool),
	}
}

// SendOffer records the offer or returns an error if configured to fail.
func (m *MockNotifier) SendOffer(workerID string, offer corenotify.Offer) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailIDs[workerID] {
		return "", fmt.Errorf("publish failed")
	}
	m.Offers[workerID] = offer
	commandID := fmt.Sprintf("cmd-%s", workerID)
	m.AckResults[commandID] = true
	return commandID, nil
}

// WaitForAck simulates an immediate acknowledgment based on the stored result.
func (m *MockNotifier) WaitForAck(commandID string, timeout time.Duration) (bool, error) {
	m.mu.Lock()
	ok, exists := m.AckResults[commandID]
	m.mu.Unlock()
	if !exists {
		return false, fmt.Errorf("unknown command")
	}
	return ok, nil
}

// Register records the registration.
func (m *MockNotifier) Register(workerID string) error {
	m.mu.Lock()
	m.Registered = append(m.Registered, workerID)
	m.mu.Unlock()
	return nil
}
