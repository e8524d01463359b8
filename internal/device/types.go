package device

// Type identifies the protocol a device speaks.
type Type string

// Supported device types.
const (
	TypeMQTT      Type = "mqtt"
	TypeModbusRTU Type = "modbus-rtu"
	TypeModbusTCP Type = "modbus-tcp"
)

// Valid reports whether t is a known device type.
func (t Type) Valid() bool {
	switch t {
	case TypeMQTT, TypeModbusRTU, TypeModbusTCP:
		return true
	}
	return false
}

// Config is the full definition of one device as authored in the designer.
// It travels over the gateway protocol as JSON and is held in memory only;
// persisting projects across restarts is the designer's job, not ours.
type Config struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type Type   `json:"type"`

	MQTT   *MQTTParams   `json:"mqtt,omitempty"`
	Modbus *ModbusParams `json:"modbus,omitempty"`

	Variables []Variable `json:"variables,omitempty"`
}

// MQTTParams are the broker connection parameters for an MQTT device.
type MQTTParams struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	TLS      bool   `json:"tls,omitempty"`
	ClientID string `json:"clientId,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// ModbusParams are the connection parameters for a Modbus device.
// TCP variants use Host/Port; RTU variants use the serial settings.
type ModbusParams struct {
	Host       string `json:"host,omitempty"`
	Port       int    `json:"port,omitempty"`
	SerialPort string `json:"serialPort,omitempty"`
	BaudRate   int    `json:"baudRate,omitempty"`
	DataBits   int    `json:"dataBits,omitempty"`
	StopBits   int    `json:"stopBits,omitempty"`
	Parity     string `json:"parity,omitempty"`
	SlaveID    uint8  `json:"slaveId,omitempty"`
}

// Variable is a named, persistent subscribe/publish binding on a device.
// UI components bind to variables; the device keeps the broker subscription
// alive for every variable with subscribing enabled.
type Variable struct {
	Name string `json:"name"`

	SubscribeTopic    string `json:"subscribeTopic,omitempty"`
	EnableSubscribe   bool   `json:"enableSubscribe,omitempty"`
	QoSSubscribe      byte   `json:"qosSubscribe,omitempty"`
	JSONPathSubscribe string `json:"jsonPathSubscribe,omitempty"`

	PublishTopic  string `json:"publishTopic,omitempty"`
	EnablePublish bool   `json:"enablePublish,omitempty"`
	QoSPublish    byte   `json:"qosPublish,omitempty"`
	RetainPublish bool   `json:"retainPublish,omitempty"`
}

// Subscribes reports whether this variable needs a live broker subscription.
func (v Variable) Subscribes() bool {
	return v.EnableSubscribe && v.SubscribeTopic != ""
}

// Publishes reports whether this variable accepts writes.
func (v Variable) Publishes() bool {
	return v.EnablePublish && v.PublishTopic != ""
}

// Clone returns a copy whose mutable fields are independent of the
// original. Devices hand clones to callers so the actor-owned config is
// never aliased outside the event loop.
func (c Config) Clone() Config {
	out := c
	if c.MQTT != nil {
		mqtt := *c.MQTT
		out.MQTT = &mqtt
	}
	if c.Modbus != nil {
		modbus := *c.Modbus
		out.Modbus = &modbus
	}
	if c.Variables != nil {
		out.Variables = make([]Variable, len(c.Variables))
		copy(out.Variables, c.Variables)
	}
	return out
}

// FindVariable returns the named variable from the config.
func (c Config) FindVariable(name string) (Variable, bool) {
	for _, v := range c.Variables {
		if v.Name == name {
			return v, true
		}
	}
	return Variable{}, false
}

// ConnectionEqual reports whether two configs describe the same physical
// connection. When true, an edit can be applied in place as a variable-list
// diff; when false, the device instance must be torn down and rebuilt.
func ConnectionEqual(a, b Config) bool {
	if a.Type != b.Type {
		return false
	}
	switch {
	case a.MQTT != nil && b.MQTT != nil:
		return *a.MQTT == *b.MQTT
	case a.Modbus != nil && b.Modbus != nil:
		return *a.Modbus == *b.Modbus
	}
	return a.MQTT == nil && b.MQTT == nil && a.Modbus == nil && b.Modbus == nil
}

// Status is the externally visible connection summary for one device.
type Status struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      Type   `json:"type"`
	Connected bool   `json:"connected"`
}
