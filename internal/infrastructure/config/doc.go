// Package config loads and validates the HMI device core configuration.
//
// Configuration comes from a YAML file with hardcoded defaults underneath
// and HMICORE_* environment variable overrides on top. A missing file is
// not fatal; Default() provides a runnable local configuration.
//
// Per-device connection parameters (broker host, credentials, variables)
// are NOT part of this package: they arrive at runtime through the gateway
// protocol and live only as long as the process. Only process-wide settings
// (listen address, timeouts, reconnect backoff, history sink) belong here.
package config
