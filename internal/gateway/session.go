package gateway

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/hmiforge/hmicore/internal/infrastructure/config"
)

// Session is one connected designer/runtime UI client.
//
// Each session runs three goroutines: a read pump dispatching inbound
// requests, a write pump draining the send buffer, and a heartbeat
// ticker pushing the full device status list at a fixed interval.
type Session struct {
	id   string
	gw   *Gateway
	conn *websocket.Conn
	send chan []byte

	// stopHeartbeat ends the heartbeat goroutine on disconnect.
	stopHeartbeat chan struct{}
}

// ID returns the session's unique identifier. Devices key temporary
// subscriptions on it.
func (s *Session) ID() string { return s.id }

// trySend queues data for delivery without ever blocking.
// A full buffer drops the message (slow session policy); a closed
// channel is absorbed, since the session may disconnect mid-broadcast.
func (s *Session) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case s.send <- data:
	default:
		// Session buffer full, skip
	}
}

// readPump reads inbound messages until the connection drops, then
// triggers the session's full cleanup.
func (s *Session) readPump(cfg config.WebSocketConfig) {
	defer s.gw.dropSession(s)

	s.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	s.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.gw.logger.Warn("session read error", "session_id", s.id, "error", err)
			} else {
				s.gw.logger.Debug("session closed", "session_id", s.id, "error", err)
			}
			return
		}
		// Any client message resets the read deadline.
		//nolint:errcheck // Best-effort deadline reset
		s.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		s.gw.handleMessage(s, message)
	}
}

// writePump drains the send buffer onto the connection and keeps the
// protocol-level ping alive.
func (s *Session) writePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	pongWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-s.send:
			if !ok {
				// Hub closed the channel
				//nolint:errcheck // Best-effort close message
				s.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			s.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			s.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// heartbeat pushes the full device status list at a fixed interval so a
// session that missed an event-driven push still converges within one
// period. Independent per session; stopped on disconnect.
func (s *Session) heartbeat(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.gw.sendStatuses(s)
		case <-s.stopHeartbeat:
			return
		}
	}
}
