// Package device defines the device contract, configuration model, and
// registry for the HMI device integration layer.
//
// A Device owns one long-lived transport connection to a field device
// (an MQTT broker, or a Modbus endpoint) and reconciles three demands on
// it: persistent variable bindings, session-scoped temporary topic
// subscriptions, and the connection's own lifecycle. Concrete types live
// in the mqttdev and modbusdev subpackages and are selected once at
// construction by a Factory.
//
// The Registry indexes live devices by ID and is injected into the
// gateway; it also exposes the two collaborator-facing operations the
// excluded UI layers use: VariableValue (cache read) and WriteVariable.
package device
