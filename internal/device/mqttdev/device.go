package mqttdev

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/hmiforge/hmicore/internal/device"
)

// Default actor settings.
const (
	// defaultMailboxSize bounds the command and event queues. Transport
	// callbacks block (briefly) rather than drop when the actor is busy.
	defaultMailboxSize = 64

	// defaultTempQoS is the QoS used for temporary diagnostic subscriptions.
	defaultTempQoS = 0
)

// Transport is the wire-level contract the device drives. Implemented by
// transport/mqtt.Client in production and by a recording fake in tests.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect(quiesce uint)
	IsConnected() bool
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte) error
	Unsubscribe(topics ...string) error
}

// TransportHooks are the callbacks the device wires into its transport.
// They are invoked from transport goroutines and forward into the actor's
// event queue.
type TransportHooks struct {
	OnConnect        func()
	OnConnectionLost func(err error)
	OnMessage        func(topic string, payload []byte)
}

// TransportFactory builds the transport for one device configuration.
type TransportFactory func(cfg device.Config, hooks TransportHooks) Transport

// Options tune actor behaviour. The zero value gets sensible defaults.
type Options struct {
	// DisconnectQuiesce is the transport quiesce period in milliseconds.
	DisconnectQuiesce uint

	// TempQoS is the QoS for temporary subscriptions.
	TempQoS byte
}

// Device is the MQTT protocol client: one broker connection, its
// topic-to-variable map, per-session temporary subscriptions, and the
// last-known-value cache.
//
// All state mutation happens on a single goroutine (the actor) that
// consumes commands from the gateway and events from the transport
// strictly in arrival order. Public methods enqueue and wait; none of
// them block indefinitely.
type Device struct {
	device.Unsupported

	cb     device.Callbacks
	logger device.Logger
	opts   Options

	transport Transport

	// mailbox carries gateway commands and transport events alike, so
	// the actor sees one strict arrival order across both sources.
	mailbox  chan envelope
	done     chan struct{} // closed by Close; stops intake
	closed   chan struct{} // closed when the actor exits
	stopOnce sync.Once

	// Actor-owned state. Never touched outside run().
	cfg  device.Config
	subs *subscriptionSet

	// connected mirrors the actor's view for concurrent readers.
	connected atomic.Bool

	// cfgSnap is the config copy served to concurrent Config() callers;
	// replaced by the actor on every edit.
	cfgMu   sync.RWMutex
	cfgSnap device.Config

	values *device.ValueCache
}

// New creates an MQTT device and starts its actor. The device is
// disconnected until Connect is called.
func New(cfg device.Config, cb device.Callbacks, logger device.Logger, newTransport TransportFactory, opts Options) *Device {
	if opts.DisconnectQuiesce == 0 {
		opts.DisconnectQuiesce = 1000
	}

	d := &Device{
		cb:       cb,
		logger:   logger,
		opts:     opts,
		mailbox:  make(chan envelope, defaultMailboxSize),
		done:     make(chan struct{}),
		closed:   make(chan struct{}),
		cfg:      cfg.Clone(),
		cfgSnap:  cfg.Clone(),
		subs:     newSubscriptionSet(),
		values:   device.NewValueCache(),
	}

	d.transport = newTransport(cfg, TransportHooks{
		OnConnect: func() {
			d.pushEvent(event{kind: evConnected})
		},
		OnConnectionLost: func(err error) {
			d.pushEvent(event{kind: evConnectionLost, err: err})
		},
		OnMessage: func(topic string, payload []byte) {
			d.pushEvent(event{kind: evMessage, topic: topic, payload: payload})
		},
	})

	go d.run()
	return d
}

// ID returns the immutable device identifier.
func (d *Device) ID() string {
	return d.cfgSnapshot().ID
}

// Config returns a copy of the current device configuration.
func (d *Device) Config() device.Config {
	return d.cfgSnapshot().Clone()
}

// Connected reports the last known connection state.
func (d *Device) Connected() bool {
	return d.connected.Load()
}

// VariableValue returns the last known value of a variable.
// Synchronous cache read; safe from any goroutine.
func (d *Device) VariableValue(name string) (any, bool) {
	return d.values.Get(name)
}

// Connect requests a broker connection. Idempotent.
func (d *Device) Connect(ctx context.Context) error {
	return d.do(ctx, command{kind: cmdConnect})
}

// Disconnect tears the connection down: best-effort unsubscribe of every
// tracked topic, transport close, both subscription maps cleared.
// Idempotent.
func (d *Device) Disconnect(ctx context.Context) error {
	return d.do(ctx, command{kind: cmdDisconnect})
}

// ApplyConfig replaces the variable list, diffing old against new topic
// sets on the live connection.
func (d *Device) ApplyConfig(ctx context.Context, cfg device.Config) error {
	return d.do(ctx, command{kind: cmdApplyConfig, cfg: cfg.Clone()})
}

// WriteVariable publishes a value through the named variable.
// Fails fast when the variable is unknown, does not publish, or the
// connection is down; nothing is queued.
func (d *Device) WriteVariable(ctx context.Context, name string, value any) error {
	return d.do(ctx, command{kind: cmdWrite, name: name, value: value})
}

// TempSubscribe adds a session-scoped subscription, subscribing at the
// broker only if the topic was not already needed by anyone.
func (d *Device) TempSubscribe(ctx context.Context, sessionID, topic string) error {
	return d.do(ctx, command{kind: cmdTempSubscribe, sessionID: sessionID, topic: topic})
}

// TempUnsubscribe removes a session's claim, unsubscribing at the broker
// only if nobody needs the topic afterwards. Redundant unsubscribes are
// not an error.
func (d *Device) TempUnsubscribe(ctx context.Context, sessionID, topic string) error {
	return d.do(ctx, command{kind: cmdTempUnsubscribe, sessionID: sessionID, topic: topic})
}

// PurgeSession drops every temporary subscription a session holds.
func (d *Device) PurgeSession(ctx context.Context, sessionID string) error {
	return d.do(ctx, command{kind: cmdPurgeSession, sessionID: sessionID})
}

// Close disconnects and stops the actor. The context bounds the grace
// period granted to in-flight unsubscribes.
func (d *Device) Close(ctx context.Context) error {
	err := d.Disconnect(ctx)

	d.stopOnce.Do(func() {
		close(d.done)
	})

	select {
	case <-d.closed:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

// do enqueues a command and waits for the actor's reply.
func (d *Device) do(ctx context.Context, c command) error {
	c.reply = make(chan error, 1)

	select {
	case d.mailbox <- envelope{cmd: &c}:
	case <-d.done:
		return device.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-c.reply:
		return err
	case <-d.closed:
		return device.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pushEvent forwards a transport event into the actor's mailbox.
// Blocks briefly when the actor is saturated; gives up once the device
// is closed so transport goroutines can never leak.
func (d *Device) pushEvent(e event) {
	select {
	case d.mailbox <- envelope{ev: &e}:
	case <-d.done:
	}
}

func (d *Device) cfgSnapshot() device.Config {
	d.cfgMu.RLock()
	defer d.cfgMu.RUnlock()
	return d.cfgSnap
}

func (d *Device) storeCfgSnapshot(cfg device.Config) {
	d.cfgMu.Lock()
	d.cfgSnap = cfg.Clone()
	d.cfgMu.Unlock()
}
