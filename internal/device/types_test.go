package device

import "testing"

func TestTypeValid(t *testing.T) {
	for _, typ := range []Type{TypeMQTT, TypeModbusRTU, TypeModbusTCP} {
		if !typ.Valid() {
			t.Errorf("Type(%q).Valid() = false, want true", typ)
		}
	}
	if Type("zigbee").Valid() {
		t.Error(`Type("zigbee").Valid() = true, want false`)
	}
}

func TestConnectionEqual(t *testing.T) {
	base := Config{
		Type: TypeMQTT,
		MQTT: &MQTTParams{Host: "broker.local", Port: 1883, Username: "u"},
	}

	same := base
	same.MQTT = &MQTTParams{Host: "broker.local", Port: 1883, Username: "u"}
	// Variable and name changes never count as connection changes.
	same.Name = "Renamed"
	same.Variables = []Variable{{Name: "v"}}
	if !ConnectionEqual(base, same) {
		t.Error("ConnectionEqual() = false for identical connection params")
	}

	hostChanged := base
	hostChanged.MQTT = &MQTTParams{Host: "other.local", Port: 1883, Username: "u"}
	if ConnectionEqual(base, hostChanged) {
		t.Error("ConnectionEqual() = true after host change")
	}

	typeChanged := Config{
		Type:   TypeModbusTCP,
		Modbus: &ModbusParams{Host: "broker.local", Port: 1883},
	}
	if ConnectionEqual(base, typeChanged) {
		t.Error("ConnectionEqual() = true across device types")
	}
}

func TestConfigCloneIsDeep(t *testing.T) {
	cfg := Config{
		ID:   "d1",
		Type: TypeMQTT,
		MQTT: &MQTTParams{Host: "broker.local", Port: 1883},
		Variables: []Variable{
			{Name: "temp", SubscribeTopic: "sensors/temp", EnableSubscribe: true},
		},
	}

	clone := cfg.Clone()
	clone.MQTT.Host = "mutated"
	clone.Variables[0].Name = "mutated"

	if cfg.MQTT.Host != "broker.local" {
		t.Error("Clone() shares the MQTT params pointer")
	}
	if cfg.Variables[0].Name != "temp" {
		t.Error("Clone() shares the variables slice")
	}
}

func TestVariablePredicates(t *testing.T) {
	v := Variable{Name: "v", SubscribeTopic: "t", EnableSubscribe: true}
	if !v.Subscribes() {
		t.Error("Subscribes() = false, want true")
	}
	if v.Publishes() {
		t.Error("Publishes() = true, want false")
	}

	v = Variable{Name: "v", EnableSubscribe: true} // enabled but no topic
	if v.Subscribes() {
		t.Error("Subscribes() = true without a topic")
	}

	v = Variable{Name: "v", PublishTopic: "t", EnablePublish: true}
	if !v.Publishes() {
		t.Error("Publishes() = false, want true")
	}
}

func TestFindVariable(t *testing.T) {
	cfg := Config{
		Variables: []Variable{{Name: "a"}, {Name: "b"}},
	}
	if v, ok := cfg.FindVariable("b"); !ok || v.Name != "b" {
		t.Errorf("FindVariable(b) = %+v, %v", v, ok)
	}
	if _, ok := cfg.FindVariable("c"); ok {
		t.Error("FindVariable(c) = found, want missing")
	}
}
