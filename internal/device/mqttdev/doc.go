// Package mqttdev implements the MQTT device type.
//
// Each device runs a single-goroutine actor that owns the connection
// state, the topic-to-variable map, the per-session temporary
// subscription sets, and the value cache. Gateway calls and transport
// callbacks are both messages into the actor's mailbox, processed
// strictly in arrival order, so no lock guards the subscription maps.
//
// The reconciliation rule is a single predicate: a topic is subscribed at
// the broker iff a subscribing variable maps to it or at least one
// session temporarily claims it. Subscribe is issued when the predicate
// turns true, unsubscribe when it turns false, and a reconnect replays
// the full needed set.
package mqttdev
