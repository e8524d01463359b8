package device

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry creates, indexes, and tears down device instances by ID.
// It is the only component that knows the full set of live connections.
//
// The registry is an explicit object injected into the gateway; its
// lifetime is tied to the server's own start/stop.
//
// All public methods are thread-safe. The registry lock only guards the
// index; Add, Edit, and Remove additionally serialize per device ID so a
// teardown-and-replace is atomic with respect to other mutations of the
// same ID.
type Registry struct {
	factory Factory
	cb      Callbacks
	logger  Logger

	mu      sync.RWMutex
	devices map[string]Device

	// ops holds one mutex per device ID, held across the full
	// close/construct/reindex sequence of a mutation. Entries are kept
	// for the registry's lifetime.
	opMu sync.Mutex
	ops  map[string]*sync.Mutex
}

// NewRegistry creates an empty registry. Devices are constructed through
// the factory with the given event callbacks.
func NewRegistry(factory Factory, cb Callbacks) *Registry {
	return &Registry{
		factory: factory,
		cb:      cb,
		logger:  noopLogger{},
		devices: make(map[string]Device),
		ops:     make(map[string]*sync.Mutex),
	}
}

// opLock returns the mutation mutex for id, creating it on first use.
func (r *Registry) opLock(id string) *sync.Mutex {
	r.opMu.Lock()
	defer r.opMu.Unlock()
	m, ok := r.ops[id]
	if !ok {
		m = &sync.Mutex{}
		r.ops[id] = m
	}
	return m
}

// SetLogger sets the logger for the registry and new devices.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Add creates, indexes, and connects a new device.
//
// If the ID is already registered the existing instance is returned
// unchanged: configuration changes must go through Edit, never through an
// implicit overwrite. The second return reports whether a device was
// actually created.
func (r *Registry) Add(ctx context.Context, cfg Config) (Device, bool, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, false, err
	}

	op := r.opLock(cfg.ID)
	op.Lock()
	defer op.Unlock()

	r.mu.Lock()
	if existing, ok := r.devices[cfg.ID]; ok {
		r.mu.Unlock()
		r.logger.Debug("add ignored, device exists", "device_id", cfg.ID)
		return existing, false, nil
	}

	dev, err := r.factory(cfg, r.cb, r.logger)
	if err != nil {
		r.mu.Unlock()
		return nil, false, fmt.Errorf("creating device %q: %w", cfg.ID, err)
	}
	r.devices[cfg.ID] = dev
	r.mu.Unlock()

	r.logger.Info("device added", "device_id", cfg.ID, "type", cfg.Type)

	// Connect failures are informational: the transport keeps retrying and
	// the device stays registered with connected=false.
	if err := dev.Connect(ctx); err != nil {
		r.logger.Warn("initial connect failed", "device_id", cfg.ID, "error", err)
	}

	return dev, true, nil
}

// Edit reconfigures a registered device.
//
// When only the variable list changed, the edit is applied in place as a
// topic-set diff on the live connection. When connection parameters
// changed, the old instance is fully torn down first, cancelling any
// in-progress reconnect loop, and a replacement is created under the
// same ID, so two live connections can never share an ID.
func (r *Registry) Edit(ctx context.Context, cfg Config) (Device, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	// Held across the close/construct/reindex sequence: a concurrent edit
	// of the same ID waits here and then sees the replacement, never the
	// instance being torn down.
	op := r.opLock(cfg.ID)
	op.Lock()
	defer op.Unlock()

	r.mu.RLock()
	old, ok := r.devices[cfg.ID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, cfg.ID)
	}

	if ConnectionEqual(old.Config(), cfg) {
		if err := old.ApplyConfig(ctx, cfg); err != nil {
			return nil, fmt.Errorf("applying config to %q: %w", cfg.ID, err)
		}
		r.logger.Info("device updated in place", "device_id", cfg.ID)
		return old, nil
	}

	// Teardown before replacement.
	if err := old.Close(ctx); err != nil {
		r.logger.Warn("closing old device instance", "device_id", cfg.ID, "error", err)
	}

	r.mu.Lock()
	dev, err := r.factory(cfg, r.cb, r.logger)
	if err != nil {
		delete(r.devices, cfg.ID)
		r.mu.Unlock()
		return nil, fmt.Errorf("recreating device %q: %w", cfg.ID, err)
	}
	r.devices[cfg.ID] = dev
	r.mu.Unlock()

	r.logger.Info("device rebuilt", "device_id", cfg.ID, "type", cfg.Type)

	if err := dev.Connect(ctx); err != nil {
		r.logger.Warn("reconnect after edit failed", "device_id", cfg.ID, "error", err)
	}

	return dev, nil
}

// Remove disconnects and deletes a device.
//
// The device's teardown runs synchronously (with the caller's deadline as
// the grace period) before the index entry disappears, guaranteeing no
// further events are emitted for a removed ID and no broker subscriptions
// are left outstanding.
func (r *Registry) Remove(ctx context.Context, id string) error {
	op := r.opLock(id)
	op.Lock()
	defer op.Unlock()

	r.mu.RLock()
	dev, ok := r.devices[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}

	if err := dev.Close(ctx); err != nil {
		r.logger.Warn("device teardown", "device_id", id, "error", err)
	}

	r.mu.Lock()
	delete(r.devices, id)
	r.mu.Unlock()

	r.logger.Info("device removed", "device_id", id)
	return nil
}

// Get returns the device registered under id.
func (r *Registry) Get(id string) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dev, ok := r.devices[id]
	return dev, ok
}

// List returns all registered devices, ordered by ID.
func (r *Registry) List() []Device {
	r.mu.RLock()
	devices := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		devices = append(devices, d)
	}
	r.mu.RUnlock()

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].ID() < devices[j].ID()
	})
	return devices
}

// Statuses returns the connection summary for every device, ordered by ID.
func (r *Registry) Statuses() []Status {
	devices := r.List()
	statuses := make([]Status, 0, len(devices))
	for _, d := range devices {
		cfg := d.Config()
		statuses = append(statuses, Status{
			ID:        cfg.ID,
			Name:      cfg.Name,
			Type:      cfg.Type,
			Connected: d.Connected(),
		})
	}
	return statuses
}

// Count returns the number of registered devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// PurgeSession drops a session's temporary subscriptions on every device.
func (r *Registry) PurgeSession(ctx context.Context, sessionID string) {
	for _, dev := range r.List() {
		if err := dev.PurgeSession(ctx, sessionID); err != nil {
			r.logger.Warn("purging session subscriptions",
				"device_id", dev.ID(), "session_id", sessionID, "error", err)
		}
	}
}

// VariableValue returns the last known value of a variable on a device.
// This is the synchronous read path for collaborators outside the gateway
// (a component binding to a variable reads its initial value here).
func (r *Registry) VariableValue(deviceID, name string) (any, bool) {
	dev, ok := r.Get(deviceID)
	if !ok {
		return nil, false
	}
	return dev.VariableValue(name)
}

// WriteVariable publishes a value through a device variable.
// Collaborator-facing write path, equivalent to the gateway's
// write_to_device operation.
func (r *Registry) WriteVariable(ctx context.Context, deviceID, name string, value any) error {
	dev, ok := r.Get(deviceID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	return dev.WriteVariable(ctx, name, value)
}

// CloseAll tears down every device. Called on server shutdown.
func (r *Registry) CloseAll(ctx context.Context) {
	for _, dev := range r.List() {
		if err := dev.Close(ctx); err != nil {
			r.logger.Warn("closing device", "device_id", dev.ID(), "error", err)
		}
	}

	r.mu.Lock()
	r.devices = make(map[string]Device)
	r.mu.Unlock()
}
