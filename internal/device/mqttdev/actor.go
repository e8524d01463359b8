package mqttdev

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/hmiforge/hmicore/internal/device"
)

type cmdKind int

const (
	cmdConnect cmdKind = iota
	cmdDisconnect
	cmdApplyConfig
	cmdWrite
	cmdTempSubscribe
	cmdTempUnsubscribe
	cmdPurgeSession
)

type command struct {
	kind      cmdKind
	sessionID string
	topic     string
	name      string
	value     any
	cfg       device.Config
	reply     chan error
}

type evKind int

const (
	evConnected evKind = iota
	evConnectionLost
	evMessage
)

type event struct {
	kind    evKind
	err     error
	topic   string
	payload []byte
}

// envelope is one mailbox entry: either a gateway command or a transport
// event, never both.
type envelope struct {
	cmd *command
	ev  *event
}

// run is the device actor: the single goroutine that owns all subscription
// and connection state. Commands and transport events share one mailbox
// and are processed strictly in arrival order, which is what makes
// "rebuild on reconnect" and "session adds a temp subscription
// mid-reconnect" commute safely.
func (d *Device) run() {
	defer close(d.closed)

	for {
		select {
		case <-d.done:
			return
		case m := <-d.mailbox:
			if m.cmd != nil {
				m.cmd.reply <- d.handleCommand(*m.cmd)
			} else if m.ev != nil {
				d.handleEvent(*m.ev)
			}
		}
	}
}

func (d *Device) handleCommand(c command) error {
	switch c.kind {
	case cmdConnect:
		return d.handleConnect()
	case cmdDisconnect:
		return d.handleDisconnect()
	case cmdApplyConfig:
		return d.handleApplyConfig(c.cfg)
	case cmdWrite:
		return d.handleWrite(c.name, c.value)
	case cmdTempSubscribe:
		return d.handleTempSubscribe(c.sessionID, c.topic)
	case cmdTempUnsubscribe:
		return d.handleTempUnsubscribe(c.sessionID, c.topic)
	case cmdPurgeSession:
		return d.handlePurgeSession(c.sessionID)
	}
	return fmt.Errorf("unknown command %d", c.kind)
}

func (d *Device) handleEvent(e event) {
	switch e.kind {
	case evConnected:
		d.handleConnected()
	case evConnectionLost:
		d.logger.Warn("connection lost", "device_id", d.cfg.ID, "error", e.err)
		d.setConnected(false)
	case evMessage:
		d.handleMessage(e.topic, e.payload)
	}
}

// handleConnect starts the transport connection. The actual state change
// arrives later as an evConnected event; the transport keeps retrying in
// the background on failure, so a connect error is logged, not returned.
func (d *Device) handleConnect() error {
	if d.connected.Load() {
		d.logger.Debug("connect ignored, already connected", "device_id", d.cfg.ID)
		return nil
	}

	transport := d.transport
	id := d.cfg.ID
	go func() {
		if err := transport.Connect(context.Background()); err != nil {
			d.logger.Warn("broker connect attempt failed, transport will retry",
				"device_id", id, "error", err)
		}
	}()
	return nil
}

// handleConnected runs on every (re)connect: rebuild the persistent topic
// map from the current variable list and subscribe it, then re-subscribe
// every temporary topic still claimed by a live session.
func (d *Device) handleConnected() {
	d.subs.byTopic = buildTopicMap(d.cfg.Variables)

	for topic, v := range d.subs.byTopic {
		if err := d.transport.Subscribe(topic, v.QoSSubscribe); err != nil {
			d.logger.Error("subscribing variable topic",
				"device_id", d.cfg.ID, "topic", topic, "variable", v.Name, "error", err)
		}
	}

	for _, topic := range d.subs.tempTopics() {
		if _, bound := d.subs.byTopic[topic]; bound {
			continue // already live via the variable subscription
		}
		if err := d.transport.Subscribe(topic, d.opts.TempQoS); err != nil {
			d.logger.Error("restoring temporary subscription",
				"device_id", d.cfg.ID, "topic", topic, "error", err)
		}
	}

	d.setConnected(true)
}

// handleDisconnect is the teardown path: best-effort unsubscribe of every
// tracked topic, close the transport, clear both maps locally regardless
// of whether the broker acknowledged anything.
func (d *Device) handleDisconnect() error {
	tracked := d.subs.trackedTopics()
	if !d.connected.Load() && len(tracked) == 0 {
		d.logger.Debug("disconnect ignored, already disconnected", "device_id", d.cfg.ID)
		return nil
	}

	if len(tracked) > 0 {
		if err := d.transport.Unsubscribe(tracked...); err != nil {
			d.logger.Warn("best-effort unsubscribe on disconnect",
				"device_id", d.cfg.ID, "topics", len(tracked), "error", err)
		}
	}

	d.transport.Disconnect(d.opts.DisconnectQuiesce)
	d.subs.clear()
	d.setConnected(false)
	return nil
}

// handleApplyConfig diffs the old topic set against the new variable list:
// unsubscribe topics that dropped out and are not otherwise needed,
// subscribe topics that are new and not already live.
func (d *Device) handleApplyConfig(cfg device.Config) error {
	old := d.subs.byTopic
	d.subs.byTopic = buildTopicMap(cfg.Variables)

	if d.connected.Load() {
		for topic := range old {
			if !d.subs.needed(topic) {
				if err := d.transport.Unsubscribe(topic); err != nil {
					d.logger.Warn("unsubscribing removed topic",
						"device_id", d.cfg.ID, "topic", topic, "error", err)
				}
			}
		}
		for topic, v := range d.subs.byTopic {
			_, hadVariable := old[topic]
			if hadVariable || d.subs.tempClaims(topic) {
				continue // already subscribed
			}
			if err := d.transport.Subscribe(topic, v.QoSSubscribe); err != nil {
				d.logger.Error("subscribing added topic",
					"device_id", d.cfg.ID, "topic", topic, "error", err)
			}
		}
	}

	d.cfg = cfg
	d.storeCfgSnapshot(cfg)
	d.values.Prune(func(name string) bool {
		_, ok := cfg.FindVariable(name)
		return ok
	})

	d.logger.Info("variable list applied",
		"device_id", d.cfg.ID, "variables", len(cfg.Variables), "topics", len(d.subs.byTopic))
	return nil
}

// handleWrite publishes a value through a variable. Fails fast while
// disconnected; the device never queues writes.
func (d *Device) handleWrite(name string, value any) error {
	v, ok := d.cfg.FindVariable(name)
	if !ok {
		return fmt.Errorf("%w: %s/%s", device.ErrVariableNotFound, d.cfg.ID, name)
	}
	if !v.Publishes() {
		return fmt.Errorf("%w: %s/%s", device.ErrPublishDisabled, d.cfg.ID, name)
	}
	if !d.connected.Load() {
		return fmt.Errorf("%w: %s", device.ErrNotConnected, d.cfg.ID)
	}

	payload := stringify(value)
	if err := d.transport.Publish(v.PublishTopic, []byte(payload), v.QoSPublish, v.RetainPublish); err != nil {
		return fmt.Errorf("publishing %s/%s: %w", d.cfg.ID, name, err)
	}

	d.logger.Debug("variable written",
		"device_id", d.cfg.ID, "variable", name, "topic", v.PublishTopic)
	return nil
}

func (d *Device) handleTempSubscribe(sessionID, topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: empty topic", device.ErrInvalidDevice)
	}

	wasNeeded := d.subs.needed(topic)
	d.subs.addTemp(sessionID, topic)

	if wasNeeded || !d.connected.Load() {
		// Either the broker subscription is already live, or it will be
		// established by the next reconnect's restore pass.
		return nil
	}

	if err := d.transport.Subscribe(topic, d.opts.TempQoS); err != nil {
		d.subs.removeTemp(sessionID, topic)
		return fmt.Errorf("temporary subscribe %s: %w", topic, err)
	}
	return nil
}

func (d *Device) handleTempUnsubscribe(sessionID, topic string) error {
	if !d.subs.hasTemp(sessionID, topic) {
		return nil // redundant unsubscribe, tolerated silently
	}

	d.subs.removeTemp(sessionID, topic)

	if d.subs.needed(topic) || !d.connected.Load() {
		return nil
	}
	if err := d.transport.Unsubscribe(topic); err != nil {
		d.logger.Warn("unsubscribing released topic",
			"device_id", d.cfg.ID, "topic", topic, "error", err)
	}
	return nil
}

func (d *Device) handlePurgeSession(sessionID string) error {
	released := d.subs.purgeSession(sessionID)
	if len(released) == 0 {
		return nil
	}

	if d.connected.Load() {
		if err := d.transport.Unsubscribe(released...); err != nil {
			d.logger.Warn("unsubscribing purged topics",
				"device_id", d.cfg.ID, "session_id", sessionID, "error", err)
		}
	}

	d.logger.Debug("session purged",
		"device_id", d.cfg.ID, "session_id", sessionID, "released", len(released))
	return nil
}

// handleMessage resolves one inbound broker message.
//
// A topic may be a bound variable, claimed by temporary subscribers, or
// both; both behaviours fire independently. Temporary-only traffic never
// touches the value cache.
func (d *Device) handleMessage(topic string, payload []byte) {
	if sessions := d.subs.claimants(topic); len(sessions) > 0 {
		d.cb.EmitTempMessage(device.TempMessageEvent{
			DeviceID:   d.cfg.ID,
			Topic:      topic,
			Payload:    string(payload),
			SessionIDs: sessions,
		})
	}

	v, bound := d.subs.byTopic[topic]
	if !bound {
		return
	}

	value := d.resolveValue(v, payload)
	d.values.Set(v.Name, value)
	d.cb.EmitVariableUpdate(device.VariableUpdateEvent{
		DeviceID:     d.cfg.ID,
		VariableName: v.Name,
		Value:        value,
	})
}

// resolveValue turns a raw payload into the variable's value.
//
// Non-JSON payloads are stored verbatim as strings. JSON payloads are
// parsed; when the variable declares a path the value at that path is
// extracted, and a missing key falls back to the whole parsed document
// with a warning. A decode problem never drops the message.
func (d *Device) resolveValue(v device.Variable, payload []byte) any {
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return string(payload)
	}

	if v.JSONPathSubscribe == "" {
		return doc
	}

	value, ok := device.ExtractPath(doc, v.JSONPathSubscribe)
	if !ok {
		d.logger.Warn("json path not found in payload, storing whole document",
			"device_id", d.cfg.ID, "variable", v.Name, "path", v.JSONPathSubscribe)
		return doc
	}
	return value
}

// setConnected records a state transition and emits a status event
// exactly once per transition.
func (d *Device) setConnected(connected bool) {
	if d.connected.Load() == connected {
		return
	}
	d.connected.Store(connected)

	d.logger.Info("connection state changed",
		"device_id", d.cfg.ID, "connected", connected)

	d.cb.EmitStatus(device.StatusEvent{
		DeviceID:  d.cfg.ID,
		Name:      d.cfg.Name,
		Type:      d.cfg.Type,
		Connected: connected,
		Timestamp: time.Now().UTC(),
	})
}

// stringify renders a write value the way the wire expects it: strings
// pass through, numbers and booleans use their canonical text form,
// composites are re-encoded as JSON.
func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return "null"
	default:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
		return fmt.Sprint(v)
	}
}
