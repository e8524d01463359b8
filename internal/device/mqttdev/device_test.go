package mqttdev

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/hmiforge/hmicore/internal/device"
)

// fakeTransport implements Transport for testing. It records every call
// and can simulate broker-side events through the captured hooks.
type fakeTransport struct {
	mu    sync.Mutex
	hooks TransportHooks

	connected bool
	active    map[string]byte // current broker-side subscriptions

	subscribeCalls   []string
	unsubscribeCalls []string
	published        []fakePublish

	subscribeErr error
}

type fakePublish struct {
	Topic    string
	Payload  string
	QoS      byte
	Retained bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		active: make(map[string]byte),
	}
}

func (f *fakeTransport) factory() TransportFactory {
	return func(_ device.Config, hooks TransportHooks) Transport {
		f.hooks = hooks
		return f
	}
}

func (f *fakeTransport) Connect(_ context.Context) error {
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	f.hooks.OnConnect()
	return nil
}

func (f *fakeTransport) Disconnect(_ uint) {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Publish(topic string, payload []byte, qos byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, fakePublish{
		Topic:    topic,
		Payload:  string(payload),
		QoS:      qos,
		Retained: retained,
	})
	return nil
}

func (f *fakeTransport) Subscribe(topic string, qos byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.active[topic] = qos
	f.subscribeCalls = append(f.subscribeCalls, topic)
	return nil
}

func (f *fakeTransport) Unsubscribe(topics ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, topic := range topics {
		delete(f.active, topic)
		f.unsubscribeCalls = append(f.unsubscribeCalls, topic)
	}
	return nil
}

// SimulateConnectionLost drives the transport's connection-lost path.
func (f *fakeTransport) SimulateConnectionLost(err error) {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	f.hooks.OnConnectionLost(err)
}

// SimulateReconnect drives a transport-level reconnect; paho re-raises
// OnConnect after a drop.
func (f *fakeTransport) SimulateReconnect() {
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	f.hooks.OnConnect()
}

// SimulateMessage delivers an inbound broker message.
func (f *fakeTransport) SimulateMessage(topic string, payload []byte) {
	f.hooks.OnMessage(topic, payload)
}

func (f *fakeTransport) ActiveTopics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.active))
	for topic := range f.active {
		out = append(out, topic)
	}
	sort.Strings(out)
	return out
}

func (f *fakeTransport) SubscribeCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subscribeCalls...)
}

func (f *fakeTransport) UnsubscribeCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.unsubscribeCalls...)
}

func (f *fakeTransport) Published() []fakePublish {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fakePublish(nil), f.published...)
}

// sinkRecorder captures emitted events for assertions.
type sinkRecorder struct {
	mu       sync.Mutex
	statuses []device.StatusEvent
	updates  []device.VariableUpdateEvent
	temps    []device.TempMessageEvent
}

func (r *sinkRecorder) callbacks() device.Callbacks {
	return device.Callbacks{
		OnStatus: func(ev device.StatusEvent) {
			r.mu.Lock()
			r.statuses = append(r.statuses, ev)
			r.mu.Unlock()
		},
		OnVariableUpdate: func(ev device.VariableUpdateEvent) {
			r.mu.Lock()
			r.updates = append(r.updates, ev)
			r.mu.Unlock()
		},
		OnTempMessage: func(ev device.TempMessageEvent) {
			r.mu.Lock()
			r.temps = append(r.temps, ev)
			r.mu.Unlock()
		},
	}
}

func (r *sinkRecorder) Statuses() []device.StatusEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]device.StatusEvent(nil), r.statuses...)
}

func (r *sinkRecorder) Updates() []device.VariableUpdateEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]device.VariableUpdateEvent(nil), r.updates...)
}

func (r *sinkRecorder) Temps() []device.TempMessageEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]device.TempMessageEvent(nil), r.temps...)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func testConfig(vars ...device.Variable) device.Config {
	return device.Config{
		ID:        "d1",
		Name:      "Test Device",
		Type:      device.TypeMQTT,
		MQTT:      &device.MQTTParams{Host: "broker.local", Port: 1883},
		Variables: vars,
	}
}

func tempVar() device.Variable {
	return device.Variable{
		Name:              "temp",
		SubscribeTopic:    "sensors/temp",
		EnableSubscribe:   true,
		QoSSubscribe:      1,
		JSONPathSubscribe: "value",
	}
}

func setpointVar() device.Variable {
	return device.Variable{
		Name:          "setpoint",
		PublishTopic:  "actuators/setpoint",
		EnablePublish: true,
		QoSPublish:    1,
		RetainPublish: true,
	}
}

// newTestDevice builds a device on a fake transport and connects it.
func newTestDevice(t *testing.T, cfg device.Config) (*Device, *fakeTransport, *sinkRecorder) {
	t.Helper()

	transport := newFakeTransport()
	sink := &sinkRecorder{}
	d := New(cfg, sink.callbacks(), nopLogger{}, transport.factory(), Options{})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		d.Close(ctx)
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	waitConnected(t, d, true)
	barrier(t, d)
	return d, transport, sink
}

// barrier flushes the actor mailbox: a redundant unsubscribe is a no-op
// command, so its reply proves every earlier entry has been processed.
func barrier(t *testing.T, d *Device) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.TempUnsubscribe(ctx, "test-barrier", "test-barrier/none"); err != nil {
		t.Fatalf("barrier command failed: %v", err)
	}
}

func waitConnected(t *testing.T, d *Device, want bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if d.Connected() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("device never reached connected=%v", want)
}

func ctxShort(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestConnectSubscribesVariableTopics(t *testing.T) {
	_, transport, sink := newTestDevice(t, testConfig(tempVar(), setpointVar()))

	got := transport.ActiveTopics()
	if len(got) != 1 || got[0] != "sensors/temp" {
		t.Errorf("active topics = %v, want [sensors/temp]", got)
	}

	statuses := sink.Statuses()
	if len(statuses) != 1 || !statuses[0].Connected {
		t.Fatalf("statuses = %+v, want one connected event", statuses)
	}
	if statuses[0].DeviceID != "d1" || statuses[0].Type != device.TypeMQTT {
		t.Errorf("status event = %+v, missing identity fields", statuses[0])
	}
}

func TestConnectIsIdempotent(t *testing.T) {
	d, _, sink := newTestDevice(t, testConfig(tempVar()))

	if err := d.Connect(ctxShort(t)); err != nil {
		t.Fatalf("second Connect() error = %v", err)
	}
	barrier(t, d)

	if got := len(sink.Statuses()); got != 1 {
		t.Errorf("status events = %d, want 1 (no duplicate emission)", got)
	}
}

func TestDisconnectTeardown(t *testing.T) {
	d, transport, sink := newTestDevice(t, testConfig(tempVar()))

	if err := d.TempSubscribe(ctxShort(t), "s1", "debug/raw"); err != nil {
		t.Fatalf("TempSubscribe() error = %v", err)
	}

	if err := d.Disconnect(ctxShort(t)); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}

	unsubs := transport.UnsubscribeCalls()
	sort.Strings(unsubs)
	want := []string{"debug/raw", "sensors/temp"}
	if len(unsubs) != len(want) || unsubs[0] != want[0] || unsubs[1] != want[1] {
		t.Errorf("unsubscribes = %v, want %v", unsubs, want)
	}

	if d.Connected() {
		t.Error("device should report disconnected")
	}

	// Second disconnect is a logged no-op.
	if err := d.Disconnect(ctxShort(t)); err != nil {
		t.Fatalf("redundant Disconnect() error = %v", err)
	}

	statuses := sink.Statuses()
	if len(statuses) != 2 {
		t.Errorf("status events = %d, want 2 (connect + disconnect)", len(statuses))
	}
}

func TestVariableUpdateWithJSONPath(t *testing.T) {
	d, transport, sink := newTestDevice(t, testConfig(tempVar()))

	transport.SimulateMessage("sensors/temp", []byte(`{"value": 21.5}`))
	barrier(t, d)

	value, ok := d.VariableValue("temp")
	if !ok {
		t.Fatal("VariableValue() found nothing")
	}
	if got, ok := value.(float64); !ok || got != 21.5 {
		t.Errorf("VariableValue() = %v (%T), want 21.5", value, value)
	}

	updates := sink.Updates()
	if len(updates) != 1 {
		t.Fatalf("updates = %d, want 1", len(updates))
	}
	if updates[0].DeviceID != "d1" || updates[0].VariableName != "temp" {
		t.Errorf("update = %+v, wrong identity", updates[0])
	}
	if got, ok := updates[0].Value.(float64); !ok || got != 21.5 {
		t.Errorf("update value = %v, want 21.5", updates[0].Value)
	}
}

func TestMissingJSONPathFallsBackToWholeDocument(t *testing.T) {
	cfg := testConfig(device.Variable{
		Name:              "temp",
		SubscribeTopic:    "sensors/temp",
		EnableSubscribe:   true,
		JSONPathSubscribe: "a.c",
	})
	d, transport, _ := newTestDevice(t, cfg)

	transport.SimulateMessage("sensors/temp", []byte(`{"a":{"b":42}}`))
	barrier(t, d)

	value, ok := d.VariableValue("temp")
	if !ok {
		t.Fatal("VariableValue() found nothing")
	}
	doc, ok := value.(map[string]any)
	if !ok {
		t.Fatalf("value = %T, want whole parsed document", value)
	}
	inner, ok := doc["a"].(map[string]any)
	if !ok || inner["b"] != float64(42) {
		t.Errorf("fallback document = %v, want original payload", doc)
	}
}

func TestNonJSONPayloadStoredVerbatim(t *testing.T) {
	d, transport, _ := newTestDevice(t, testConfig(tempVar()))

	transport.SimulateMessage("sensors/temp", []byte("ON"))
	barrier(t, d)

	value, ok := d.VariableValue("temp")
	if !ok {
		t.Fatal("VariableValue() found nothing")
	}
	if value != "ON" {
		t.Errorf("value = %v (%T), want raw string ON", value, value)
	}
}

func TestWriteVariablePublishes(t *testing.T) {
	d, transport, _ := newTestDevice(t, testConfig(setpointVar()))

	if err := d.WriteVariable(ctxShort(t), "setpoint", 21.5); err != nil {
		t.Fatalf("WriteVariable() error = %v", err)
	}

	published := transport.Published()
	if len(published) != 1 {
		t.Fatalf("published = %d messages, want 1", len(published))
	}
	p := published[0]
	if p.Topic != "actuators/setpoint" || p.Payload != "21.5" || p.QoS != 1 || !p.Retained {
		t.Errorf("publish = %+v, want topic actuators/setpoint payload 21.5 qos 1 retained", p)
	}
}

func TestWriteVariableRejections(t *testing.T) {
	noPublish := device.Variable{
		Name:            "readonly",
		SubscribeTopic:  "sensors/ro",
		EnableSubscribe: true,
	}
	d, transport, _ := newTestDevice(t, testConfig(setpointVar(), noPublish))

	tests := []struct {
		name     string
		variable string
		wantErr  error
	}{
		{"unknown variable", "nope", device.ErrVariableNotFound},
		{"publish disabled", "readonly", device.ErrPublishDisabled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := d.WriteVariable(ctxShort(t), tt.variable, 1)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("WriteVariable() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if got := len(transport.Published()); got != 0 {
		t.Errorf("published = %d messages, want 0", got)
	}
}

func TestWriteFailsFastWhileDisconnected(t *testing.T) {
	d, transport, _ := newTestDevice(t, testConfig(setpointVar()))

	transport.SimulateConnectionLost(errors.New("broker gone"))
	waitConnected(t, d, false)

	err := d.WriteVariable(ctxShort(t), "setpoint", 1)
	if !errors.Is(err, device.ErrNotConnected) {
		t.Errorf("WriteVariable() while disconnected = %v, want ErrNotConnected", err)
	}
	if got := len(transport.Published()); got != 0 {
		t.Errorf("published = %d messages, want 0 (no queueing)", got)
	}
}

func TestStringify(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"on", "on"},
		{21.5, "21.5"},
		{float64(42), "42"},
		{7, "7"},
		{true, "true"},
		{nil, "null"},
		{map[string]any{"a": 1}, `{"a":1}`},
	}
	for _, tt := range tests {
		if got := stringify(tt.in); got != tt.want {
			t.Errorf("stringify(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
