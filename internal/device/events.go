package device

import "time"

// StatusEvent announces a connection state transition.
// Emitted exactly once per transition, never for repeated identical states.
type StatusEvent struct {
	DeviceID  string    `json:"deviceId"`
	Name      string    `json:"name"`
	Type      Type      `json:"type"`
	Connected bool      `json:"connected"`
	Timestamp time.Time `json:"timestamp"`
}

// VariableUpdateEvent carries a resolved inbound value for a bound variable.
type VariableUpdateEvent struct {
	DeviceID     string `json:"deviceId"`
	VariableName string `json:"variableName"`
	Value        any    `json:"value"`
}

// TempMessageEvent carries a raw payload for sessions holding a temporary
// subscription on the topic. SessionIDs lists exactly the sessions whose
// temporary set contained the topic when the message arrived.
type TempMessageEvent struct {
	DeviceID   string   `json:"deviceId"`
	Topic      string   `json:"topic"`
	Payload    string   `json:"payload"`
	SessionIDs []string `json:"-"`
}

// Callbacks is the event sink a device emits into. All callbacks are
// fire-and-forget and at-most-once; receivers must not block, since
// callbacks run on the device's own event loop.
type Callbacks struct {
	OnStatus         func(StatusEvent)
	OnVariableUpdate func(VariableUpdateEvent)
	OnTempMessage    func(TempMessageEvent)
}

// EmitStatus invokes OnStatus if set.
func (c Callbacks) EmitStatus(ev StatusEvent) {
	if c.OnStatus != nil {
		c.OnStatus(ev)
	}
}

// EmitVariableUpdate invokes OnVariableUpdate if set.
func (c Callbacks) EmitVariableUpdate(ev VariableUpdateEvent) {
	if c.OnVariableUpdate != nil {
		c.OnVariableUpdate(ev)
	}
}

// EmitTempMessage invokes OnTempMessage if set.
func (c Callbacks) EmitTempMessage(ev TempMessageEvent) {
	if c.OnTempMessage != nil {
		c.OnTempMessage(ev)
	}
}
