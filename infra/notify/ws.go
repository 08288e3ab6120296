package notify

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	corenotify "github.com/fleetwise/fleetcore/core/notify"
	"github.com/fleetwise/fleetcore/infra/logger"
)

// wsSession is one worker's live WebSocket connection.
type wsSession struct {
	workerID string
	conn     *websocket.Conn
	send     chan []byte
}

// WSHub delivers trip offers over per-worker WebSocket sessions. A worker
// with no live session gets ErrNoSession; the assignment survives either way.
type WSHub struct {
	upgrader websocket.Upgrader
	log      logger.Logger

	mu       sync.RWMutex
	sessions map[string]*wsSession
	ackChans map[string]chan bool
}

// NewWSHub creates an empty hub.
func NewWSHub(log logger.Logger) *WSHub {
	return &WSHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log:      log,
		sessions: make(map[string]*wsSession),
		ackChans: make(map[string]chan bool),
	}
}

// ServeHTTP upgrades the request to a WebSocket session. The worker id comes
// from the "worker_id" query parameter.
func (h *WSHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	workerID := r.URL.Query().Get("worker_id")
	if workerID == "" {
		http.Error(w, "worker_id required", http.StatusBadRequest)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Errorf("ws upgrade for worker %s: %v", workerID, err)
		return
	}
	h.attach(workerID, conn)
}

// attach replaces any previous session for the worker.
func (h *WSHub) attach(workerID string, conn *websocket.Conn) {
	s := &wsSession{workerID: workerID, conn: conn, send: make(chan []byte, 8)}

	h.mu.Lock()
	if old, ok := h.sessions[workerID]; ok {
		close(old.send)
		_ = old.conn.Close()
	}
	h.sessions[workerID] = s
	h.mu.Unlock()

	go h.writePump(s)
	go h.readPump(s)
}

func (h *WSHub) detach(s *wsSession) {
	h.mu.Lock()
	if h.sessions[s.workerID] == s {
		delete(h.sessions, s.workerID)
		close(s.send)
	}
	h.mu.Unlock()
	_ = s.conn.Close()
}

func (h *WSHub) writePump(s *wsSession) {
	for msg := range s.send {
		if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.log.Warnf("ws write to worker %s: %v", s.workerID, err)
			h.detach(s)
			return
		}
	}
}

// readPump consumes inbound frames; the only message workers send upstream
// here is the offer acknowledgment.
func (h *WSHub) readPump(s *wsSession) {
	defer h.detach(s)
	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var ack struct {
			CommandID string `json:"command_id"`
			Accepted  bool   `json:"accepted"`
		}
		if err := json.Unmarshal(payload, &ack); err != nil || ack.CommandID == "" {
			continue
		}
		h.mu.RLock()
		ch, ok := h.ackChans[ack.CommandID]
		h.mu.RUnlock()
		if ok {
			select {
			case ch <- ack.Accepted:
			default:
			}
		}
	}
}

// SendOffer pushes the offer into the worker's session, if one exists.
func (h *WSHub) SendOffer(workerID string, offer corenotify.Offer) (string, error) {
	cmdID := uuid.NewString()
	payload, err := json.Marshal(struct {
		Type      string           `json:"type"`
		CommandID string           `json:"command_id"`
		Offer     corenotify.Offer `json:"offer"`
		Timestamp int64            `json:"timestamp"`
	}{Type: "trip_offer", CommandID: cmdID, Offer: offer, Timestamp: time.Now().UnixMilli()})
	if err != nil {
		return "", err
	}

	// The send happens under the hub lock so a concurrent detach cannot
	// close the channel between the lookup and the push. The push never
	// blocks; a full buffer fails the offer instead.
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[workerID]
	if !ok {
		return "", corenotify.ErrNoSession
	}

	select {
	case s.send <- payload:
		h.ackChans[cmdID] = make(chan bool, 1)
		return cmdID, nil
	default:
		return "", fmt.Errorf("worker %s session backlogged", workerID)
	}
}

// WaitForAck blocks until the worker acknowledges the command or the timeout
// expires.
func (h *WSHub) WaitForAck(commandID string, timeout time.Duration) (bool, error) {
	h.mu.RLock()
	ch := h.ackChans[commandID]
	h.mu.RUnlock()
	if ch == nil {
		return false, fmt.Errorf("unknown command")
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case accepted := <-ch:
		h.mu.Lock()
		delete(h.ackChans, commandID)
		h.mu.Unlock()
		return accepted, nil
	case <-timer.C:
		h.mu.Lock()
		delete(h.ackChans, commandID)
		h.mu.Unlock()
		return false, fmt.Errorf("%w", corenotify.ErrAckTimeout)
	}
}

// Register is a no-op for the hub: the session the worker opened is the
// registration.
func (h *WSHub) Register(workerID string) error {
	h.mu.RLock()
	_, ok := h.sessions[workerID]
	h.mu.RUnlock()
	if !ok {
		return corenotify.ErrNoSession
	}
	return nil
}

// Connected reports whether the worker has a live session.
func (h *WSHub) Connected(workerID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.sessions[workerID]
	return ok
}

// Close tears down every session.
func (h *WSHub) Close() {
	h.mu.Lock()
	for id, s := range h.sessions {
		close(s.send)
		_ = s.conn.Close()
		delete(h.sessions, id)
	}
	h.mu.Unlock()
}
