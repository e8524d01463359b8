package device

import "context"

// Logger is the narrow logging interface device implementations accept.
// Satisfied by *logging.Logger and by slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Device is the contract every device type implements.
//
// Lifecycle: a Device is constructed by a Factory, connected, commanded
// for its lifetime, and finally Closed exactly once by the registry.
// Connect and Disconnect are idempotent; calling either in the target
// state logs and returns without side effects.
//
// Implementations serialize all mutations against their transport's
// asynchronous callbacks (the MQTT type runs a single-goroutine actor),
// so every method here is safe for concurrent use.
type Device interface {
	// ID returns the immutable device identifier.
	ID() string

	// Config returns the current device configuration.
	Config() Config

	// Connected reports the last known connection state.
	Connected() bool

	// Connect establishes the transport connection. The returned error is
	// informational for transports that keep retrying in the background.
	Connect(ctx context.Context) error

	// Disconnect tears the connection down: best-effort unsubscribes,
	// transport close, local bookkeeping cleared.
	Disconnect(ctx context.Context) error

	// ApplyConfig replaces the variable list on a live device, diffing
	// old against new topic sets. Only valid when the connection
	// parameters are unchanged; the registry rebuilds otherwise.
	ApplyConfig(ctx context.Context, cfg Config) error

	// Close releases all resources. The device accepts no commands after
	// Close returns; pending unsubscribes get a bounded grace period.
	Close(ctx context.Context) error

	// ReadData polls the device for current values. Only meaningful for
	// poll-based types; others return ErrUnsupported.
	ReadData(ctx context.Context) (map[string]any, error)

	// WriteData writes a raw value to a protocol address. Legacy path;
	// no current device type supports it.
	WriteData(ctx context.Context, address string, value any) error

	// WriteVariable publishes a value through the named variable.
	WriteVariable(ctx context.Context, name string, value any) error

	// TempSubscribe adds a session-scoped ad-hoc topic subscription.
	TempSubscribe(ctx context.Context, sessionID, topic string) error

	// TempUnsubscribe removes a session's ad-hoc subscription.
	// Unknown topics are tolerated silently.
	TempUnsubscribe(ctx context.Context, sessionID, topic string) error

	// PurgeSession drops every temporary subscription held by a session.
	// Called by the gateway when the session disconnects.
	PurgeSession(ctx context.Context, sessionID string) error

	// VariableValue returns the last known value of a variable, if any.
	VariableValue(name string) (any, bool)
}

// Factory constructs a Device for a validated config. Implementations
// dispatch on cfg.Type exactly once, at construction.
type Factory func(cfg Config, cb Callbacks, logger Logger) (Device, error)

// Unsupported provides loud defaults for the optional Device operations.
// Device types embed it and override what their protocol actually offers;
// a forgotten override fails with ErrUnsupported instead of silently
// succeeding.
type Unsupported struct{}

// ReadData reports that polling is not supported.
func (Unsupported) ReadData(context.Context) (map[string]any, error) {
	return nil, ErrUnsupported
}

// WriteData reports that address-based writes are not supported.
func (Unsupported) WriteData(context.Context, string, any) error {
	return ErrUnsupported
}

// WriteVariable reports that variable writes are not supported.
func (Unsupported) WriteVariable(context.Context, string, any) error {
	return ErrUnsupported
}

// TempSubscribe reports that ad-hoc subscriptions are not supported.
func (Unsupported) TempSubscribe(context.Context, string, string) error {
	return ErrUnsupported
}

// TempUnsubscribe is a no-op: redundant unsubscribes are never an error.
func (Unsupported) TempUnsubscribe(context.Context, string, string) error {
	return nil
}

// PurgeSession is a no-op for types without session state.
func (Unsupported) PurgeSession(context.Context, string) error {
	return nil
}

// VariableValue reports that no values are cached.
func (Unsupported) VariableValue(string) (any, bool) {
	return nil, false
}
