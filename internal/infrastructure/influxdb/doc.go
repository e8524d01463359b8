// Package influxdb is the optional variable-history sink.
//
// When enabled, every numeric or boolean variable update resolved by a
// device is batched to InfluxDB so HMI trend components can chart history.
// When disabled (the default) the rest of the system runs unchanged; the
// gateway simply holds a nil sink.
//
// Writes use the non-blocking WriteAPI: batching, async flushing, and errors
// surfaced through SetOnError. Device event loops are never blocked by
// telemetry.
package influxdb
