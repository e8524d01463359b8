// Package logging provides structured logging for the HMI device core.
//
// It wraps Go's standard log/slog package so every component logs in a
// consistent shape: JSON in production, text during development, always
// tagged with service and version.
//
// Components do not import this package directly; they accept a narrow
// Logger interface (Debug/Info/Warn/Error with key-value args) that
// *logging.Logger satisfies. This keeps device and gateway packages free
// of infrastructure imports and trivially mockable in tests.
//
// Never log broker credentials or full device configs at info level.
package logging
