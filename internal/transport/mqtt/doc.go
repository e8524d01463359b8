// Package mqtt wraps paho.mqtt.golang for a single device connection.
//
// Each MQTT device owns exactly one Client. The client handles the wire
// concerns: connection options, TLS, timeouts, automatic reconnection
// with backoff, and token waits on every operation. It deliberately does
// NOT track subscriptions; the set of topics that must be live is derived
// from device variables and session requests and is owned by the device
// actor, which replays Subscribe calls whenever OnConnect fires.
//
// All callbacks run on paho goroutines. Owners must not mutate their own
// state directly from them; the device actor forwards each event into its
// mailbox instead.
package mqtt
