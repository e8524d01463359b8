package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hmiforge/hmicore/internal/device"
	"github.com/hmiforge/hmicore/internal/infrastructure/config"
	"github.com/hmiforge/hmicore/internal/infrastructure/logging"
)

// HistoryWriter receives resolved numeric variable samples for trend
// storage. A nil writer disables history.
type HistoryWriter interface {
	WriteVariableSample(deviceID, variable string, value float64)
}

// requestTimeout bounds each session-issued device command.
const requestTimeout = 10 * time.Second

// Gateway multiplexes UI sessions onto the device registry.
//
// It owns the session hub, translates session requests into registry
// and device calls, and fans device events back out: status changes and
// variable updates broadcast to every session, temporary messages go
// only to the sessions holding a matching subscription.
type Gateway struct {
	logger    *logging.Logger
	wsCfg     config.WebSocketConfig
	heartbeat time.Duration

	hub      *Hub
	registry *device.Registry
	history  HistoryWriter
}

// New creates a gateway. AttachRegistry must be called before the first
// session connects; the split exists because the registry is built with
// this gateway's DeviceCallbacks.
func New(wsCfg config.WebSocketConfig, heartbeat time.Duration, history HistoryWriter, logger *logging.Logger) *Gateway {
	return &Gateway{
		logger:    logger,
		wsCfg:     wsCfg,
		heartbeat: heartbeat,
		hub:       NewHub(logger),
		history:   history,
	}
}

// AttachRegistry wires the device registry the gateway operates on.
func (g *Gateway) AttachRegistry(r *device.Registry) {
	g.registry = r
}

// Hub exposes the session hub, mainly for shutdown.
func (g *Gateway) Hub() *Hub { return g.hub }

// DeviceCallbacks returns the event sink devices emit into.
// All three callbacks run on device event loops and only enqueue onto
// per-session buffers, never block.
func (g *Gateway) DeviceCallbacks() device.Callbacks {
	return device.Callbacks{
		OnStatus:         g.onStatus,
		OnVariableUpdate: g.onVariableUpdate,
		OnTempMessage:    g.onTempMessage,
	}
}

func (g *Gateway) onStatus(ev device.StatusEvent) {
	g.broadcast(MsgDeviceStatusUpdate, ev)

	// History sinks that also track connection state get the transition,
	// so trend views can correlate value gaps with broker outages.
	if sw, ok := g.history.(interface{ WriteDeviceStatus(deviceID string, connected bool) }); ok {
		sw.WriteDeviceStatus(ev.DeviceID, ev.Connected)
	}
}

func (g *Gateway) onVariableUpdate(ev device.VariableUpdateEvent) {
	g.broadcast(MsgDeviceVariableUpdate, ev)

	if g.history == nil {
		return
	}
	switch v := ev.Value.(type) {
	case float64:
		g.history.WriteVariableSample(ev.DeviceID, ev.VariableName, v)
	case bool:
		sample := 0.0
		if v {
			sample = 1.0
		}
		g.history.WriteVariableSample(ev.DeviceID, ev.VariableName, sample)
	}
}

func (g *Gateway) onTempMessage(ev device.TempMessageEvent) {
	data, err := encode(MsgServerTempMessage, tempMessage{
		DeviceID: ev.DeviceID,
		Topic:    ev.Topic,
		Payload:  ev.Payload,
	})
	if err != nil {
		g.logger.Error("encoding temp message", "error", err)
		return
	}
	for _, sessionID := range ev.SessionIDs {
		g.hub.SendTo(sessionID, data)
	}
}

// upgrader configures the WebSocket upgrade.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// The gateway binds to the designer's own host; origin policy
		// is enforced at the reverse proxy when exposed further.
		return true
	},
}

// HandleWebSocket upgrades an HTTP request into a gateway session.
func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	s := &Session{
		id:            uuid.NewString(),
		gw:            g,
		conn:          conn,
		send:          make(chan []byte, g.wsCfg.SendBuffer),
		stopHeartbeat: make(chan struct{}),
	}

	g.hub.Register(s)
	g.sendInitialDeviceList(s)

	go s.writePump(g.wsCfg)
	go s.readPump(g.wsCfg)
	go s.heartbeat(g.heartbeat)
}

// dropSession runs the full disconnect cleanup: heartbeat stopped, hub
// entry removed, and every device purged of this session's temporary
// subscriptions (broker unsubscribes follow the reference counting in
// the device).
func (g *Gateway) dropSession(s *Session) {
	close(s.stopHeartbeat)
	g.hub.Unregister(s)
	s.conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	g.registry.PurgeSession(ctx, s.id)
}

// sendInitialDeviceList sends the full config+status join to a newly
// connected session only.
func (g *Gateway) sendInitialDeviceList(s *Session) {
	devices := g.registry.List()
	snapshots := make([]DeviceSnapshot, 0, len(devices))
	for _, d := range devices {
		snapshots = append(snapshots, snapshot(d))
	}
	g.sendTo(s, MsgInitialDeviceList, snapshots)
}

// sendStatuses pushes the current status list to one session.
// Used by the per-session heartbeat.
func (g *Gateway) sendStatuses(s *Session) {
	g.sendTo(s, MsgDeviceStatuses, g.registry.Statuses())
}

// broadcast encodes a message once and fans it out to every session.
func (g *Gateway) broadcast(msgType string, payload any) {
	data, err := encode(msgType, payload)
	if err != nil {
		g.logger.Error("encoding broadcast", "type", msgType, "error", err)
		return
	}
	g.hub.Broadcast(data)
}

// sendTo encodes a message and queues it for one session.
func (g *Gateway) sendTo(s *Session, msgType string, payload any) {
	data, err := encode(msgType, payload)
	if err != nil {
		g.logger.Error("encoding message", "type", msgType, "error", err)
		return
	}
	s.trySend(data)
}

// sendError delivers a structured operation_error to the requesting
// session only.
func (g *Gateway) sendError(s *Session, deviceID, message string, cause error) {
	opErr := OperationError{Message: message, DeviceID: deviceID}
	if cause != nil {
		opErr.Details = cause.Error()
	}
	g.logger.Debug("operation error",
		"session_id", s.id, "device_id", deviceID, "message", message, "error", cause)
	g.sendTo(s, MsgOperationError, opErr)
}
