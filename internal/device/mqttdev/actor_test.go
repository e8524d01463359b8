package mqttdev

import (
	"errors"
	"testing"

	"github.com/hmiforge/hmicore/internal/device"
)

func TestTempSubscribeLifecycle(t *testing.T) {
	d, transport, sink := newTestDevice(t, testConfig(tempVar()))

	if err := d.TempSubscribe(ctxShort(t), "s1", "debug/raw"); err != nil {
		t.Fatalf("TempSubscribe() error = %v", err)
	}

	got := transport.ActiveTopics()
	want := []string{"debug/raw", "sensors/temp"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("active topics = %v, want %v", got, want)
	}

	transport.SimulateMessage("debug/raw", []byte("payload-1"))
	barrier(t, d)

	temps := sink.Temps()
	if len(temps) != 1 {
		t.Fatalf("temp messages = %d, want 1", len(temps))
	}
	ev := temps[0]
	if ev.Topic != "debug/raw" || ev.Payload != "payload-1" {
		t.Errorf("temp message = %+v, wrong content", ev)
	}
	if len(ev.SessionIDs) != 1 || ev.SessionIDs[0] != "s1" {
		t.Errorf("temp message sessions = %v, want [s1]", ev.SessionIDs)
	}

	// Temporary-only traffic never lands in the value cache.
	if _, ok := d.VariableValue("temp"); ok {
		t.Error("temp traffic must not populate the variable cache")
	}

	if err := d.TempUnsubscribe(ctxShort(t), "s1", "debug/raw"); err != nil {
		t.Fatalf("TempUnsubscribe() error = %v", err)
	}
	got = transport.ActiveTopics()
	if len(got) != 1 || got[0] != "sensors/temp" {
		t.Errorf("active topics after release = %v, want [sensors/temp]", got)
	}
}

func TestTempSubscribeSharedAcrossSessions(t *testing.T) {
	d, transport, sink := newTestDevice(t, testConfig())

	for _, session := range []string{"s1", "s2"} {
		if err := d.TempSubscribe(ctxShort(t), session, "debug/raw"); err != nil {
			t.Fatalf("TempSubscribe(%s) error = %v", session, err)
		}
	}
	if got := transport.SubscribeCalls(); len(got) != 1 {
		t.Fatalf("broker subscribes = %v, want exactly one for the shared topic", got)
	}

	transport.SimulateMessage("debug/raw", []byte("x"))
	barrier(t, d)
	temps := sink.Temps()
	if len(temps) != 1 || len(temps[0].SessionIDs) != 2 {
		t.Fatalf("temp message sessions = %+v, want both s1 and s2", temps)
	}

	// First session drops out: the other still claims the topic.
	if err := d.PurgeSession(ctxShort(t), "s1"); err != nil {
		t.Fatalf("PurgeSession(s1) error = %v", err)
	}
	if got := transport.UnsubscribeCalls(); len(got) != 0 {
		t.Fatalf("unsubscribes after first purge = %v, want none", got)
	}

	if err := d.TempUnsubscribe(ctxShort(t), "s2", "debug/raw"); err != nil {
		t.Fatalf("TempUnsubscribe(s2) error = %v", err)
	}
	got := transport.UnsubscribeCalls()
	if len(got) != 1 || got[0] != "debug/raw" {
		t.Errorf("unsubscribes after last claim released = %v, want [debug/raw]", got)
	}
}

func TestTempSubscribeBoundTopicNoExtraSubscribe(t *testing.T) {
	d, transport, sink := newTestDevice(t, testConfig(tempVar()))

	// The topic is already live through the bound variable.
	if err := d.TempSubscribe(ctxShort(t), "s1", "sensors/temp"); err != nil {
		t.Fatalf("TempSubscribe() error = %v", err)
	}
	if got := transport.SubscribeCalls(); len(got) != 1 {
		t.Fatalf("broker subscribes = %v, want just the variable's own", got)
	}

	// One message drives both deliveries.
	transport.SimulateMessage("sensors/temp", []byte(`{"value": 3}`))
	barrier(t, d)
	if got := len(sink.Temps()); got != 1 {
		t.Errorf("temp messages = %d, want 1", got)
	}
	if got := len(sink.Updates()); got != 1 {
		t.Errorf("variable updates = %d, want 1", got)
	}

	// Releasing the claim must not tear down the variable subscription.
	if err := d.TempUnsubscribe(ctxShort(t), "s1", "sensors/temp"); err != nil {
		t.Fatalf("TempUnsubscribe() error = %v", err)
	}
	if got := transport.UnsubscribeCalls(); len(got) != 0 {
		t.Errorf("unsubscribes = %v, want none while variable binds topic", got)
	}
}

func TestReconnectRestoresSubscriptions(t *testing.T) {
	d, transport, _ := newTestDevice(t, testConfig(tempVar()))

	if err := d.TempSubscribe(ctxShort(t), "s1", "debug/raw"); err != nil {
		t.Fatalf("TempSubscribe() error = %v", err)
	}

	transport.SimulateConnectionLost(errors.New("broker restart"))
	waitConnected(t, d, false)

	transport.SimulateReconnect()
	waitConnected(t, d, true)
	barrier(t, d)

	got := transport.ActiveTopics()
	want := []string{"debug/raw", "sensors/temp"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("active topics after reconnect = %v, want %v", got, want)
	}
}

func TestTempSubscribeWhileDisconnectedDefersToReconnect(t *testing.T) {
	d, transport, _ := newTestDevice(t, testConfig())

	transport.SimulateConnectionLost(errors.New("drop"))
	waitConnected(t, d, false)

	if err := d.TempSubscribe(ctxShort(t), "s1", "debug/raw"); err != nil {
		t.Fatalf("TempSubscribe() while disconnected error = %v", err)
	}
	if got := transport.SubscribeCalls(); len(got) != 0 {
		t.Fatalf("broker subscribes while disconnected = %v, want none", got)
	}

	transport.SimulateReconnect()
	waitConnected(t, d, true)
	barrier(t, d)

	got := transport.ActiveTopics()
	if len(got) != 1 || got[0] != "debug/raw" {
		t.Errorf("active topics after reconnect = %v, want [debug/raw]", got)
	}
}

func TestApplyConfigDiffsTopics(t *testing.T) {
	d, transport, _ := newTestDevice(t, testConfig(tempVar()))

	cfg := testConfig(
		setpointVar(),
		device.Variable{
			Name:            "humidity",
			SubscribeTopic:  "sensors/humidity",
			EnableSubscribe: true,
			QoSSubscribe:    1,
		},
	)
	if err := d.ApplyConfig(ctxShort(t), cfg); err != nil {
		t.Fatalf("ApplyConfig() error = %v", err)
	}

	got := transport.ActiveTopics()
	if len(got) != 1 || got[0] != "sensors/humidity" {
		t.Errorf("active topics = %v, want [sensors/humidity]", got)
	}
	unsubs := transport.UnsubscribeCalls()
	if len(unsubs) != 1 || unsubs[0] != "sensors/temp" {
		t.Errorf("unsubscribes = %v, want [sensors/temp]", unsubs)
	}
	if d.Config().Name != cfg.Name || len(d.Config().Variables) != 2 {
		t.Errorf("Config() = %+v, snapshot not updated", d.Config())
	}
}

func TestApplyConfigKeepsTopicClaimedByTempSession(t *testing.T) {
	d, transport, _ := newTestDevice(t, testConfig(tempVar()))

	if err := d.TempSubscribe(ctxShort(t), "s1", "sensors/temp"); err != nil {
		t.Fatalf("TempSubscribe() error = %v", err)
	}

	// Removing the only variable must not kill the topic: a session
	// still claims it.
	if err := d.ApplyConfig(ctxShort(t), testConfig()); err != nil {
		t.Fatalf("ApplyConfig() error = %v", err)
	}
	if got := transport.UnsubscribeCalls(); len(got) != 0 {
		t.Errorf("unsubscribes = %v, want none", got)
	}
	got := transport.ActiveTopics()
	if len(got) != 1 || got[0] != "sensors/temp" {
		t.Errorf("active topics = %v, want [sensors/temp]", got)
	}
}

func TestApplyConfigPrunesStaleValues(t *testing.T) {
	d, transport, _ := newTestDevice(t, testConfig(tempVar()))

	transport.SimulateMessage("sensors/temp", []byte(`{"value": 9}`))
	barrier(t, d)
	if _, ok := d.VariableValue("temp"); !ok {
		t.Fatal("expected cached value before edit")
	}

	if err := d.ApplyConfig(ctxShort(t), testConfig(setpointVar())); err != nil {
		t.Fatalf("ApplyConfig() error = %v", err)
	}
	if _, ok := d.VariableValue("temp"); ok {
		t.Error("removed variable's cached value must be pruned")
	}
}

func TestTempSubscribeRollsBackOnBrokerError(t *testing.T) {
	d, transport, _ := newTestDevice(t, testConfig())

	transport.mu.Lock()
	transport.subscribeErr = errors.New("broker refused")
	transport.mu.Unlock()

	if err := d.TempSubscribe(ctxShort(t), "s1", "debug/raw"); err == nil {
		t.Fatal("TempSubscribe() error = nil, want broker error")
	}

	// The failed claim must not linger: a later purge has nothing to
	// release.
	transport.mu.Lock()
	transport.subscribeErr = nil
	transport.mu.Unlock()
	if err := d.PurgeSession(ctxShort(t), "s1"); err != nil {
		t.Fatalf("PurgeSession() error = %v", err)
	}
	if got := transport.UnsubscribeCalls(); len(got) != 0 {
		t.Errorf("unsubscribes = %v, want none after rolled-back claim", got)
	}
}

func TestCloseRejectsFurtherCommands(t *testing.T) {
	transport := newFakeTransport()
	d := New(testConfig(tempVar()), device.Callbacks{}, nopLogger{}, transport.factory(), Options{})

	if err := d.Connect(ctxShort(t)); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	waitConnected(t, d, true)

	if err := d.Close(ctxShort(t)); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if transport.IsConnected() {
		t.Error("transport should be disconnected after Close")
	}

	err := d.WriteVariable(ctxShort(t), "temp", 1)
	if !errors.Is(err, device.ErrClosed) {
		t.Errorf("WriteVariable() after Close = %v, want ErrClosed", err)
	}
}

func TestConnectionLossEmitsStatus(t *testing.T) {
	d, transport, sink := newTestDevice(t, testConfig())

	transport.SimulateConnectionLost(errors.New("gone"))
	waitConnected(t, d, false)
	barrier(t, d)

	statuses := sink.Statuses()
	if len(statuses) != 2 {
		t.Fatalf("status events = %d, want connect then disconnect", len(statuses))
	}
	if !statuses[0].Connected || statuses[1].Connected {
		t.Errorf("statuses = %+v, want [connected, disconnected]", statuses)
	}
	if statuses[1].Timestamp.IsZero() {
		t.Error("status event missing timestamp")
	}
}
