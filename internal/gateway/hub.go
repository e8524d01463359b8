package gateway

import (
	"sync"

	"github.com/hmiforge/hmicore/internal/infrastructure/logging"
)

// Hub indexes live sessions and fans messages out to them.
//
// Broadcasts are fire-and-forget: a slow session drops messages rather
// than blocking the sender (the device event loops deliver through
// here and must never stall).
type Hub struct {
	logger *logging.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Register adds a session to the hub.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()
	h.logger.Debug("session connected", "session_id", s.id, "sessions", h.Count())
}

// Unregister removes a session from the hub.
// Only the goroutine that actually removes the session closes its send
// channel, preventing double-close panics during shutdown.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	_, existed := h.sessions[s.id]
	delete(h.sessions, s.id)
	h.mu.Unlock()

	if existed {
		close(s.send)
	}
	h.logger.Debug("session disconnected", "session_id", s.id, "sessions", h.Count())
}

// Broadcast sends a pre-encoded message to every session.
func (h *Hub) Broadcast(data []byte) {
	for _, s := range h.snapshotSessions() {
		s.trySend(data)
	}
}

// SendTo sends a pre-encoded message to one session, if it is still
// connected. Unknown session IDs are silently ignored: the session may
// have disconnected between event emission and delivery.
func (h *Hub) SendTo(sessionID string, data []byte) {
	h.mu.RLock()
	s, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if ok {
		s.trySend(data)
	}
}

// Count returns the number of connected sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// CloseAll disconnects every session so their write pumps exit cleanly.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, s := range h.sessions {
		close(s.send)
		if s.conn != nil {
			s.conn.Close()
		}
		delete(h.sessions, id)
	}
}

func (h *Hub) snapshotSessions() []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}
