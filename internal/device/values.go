package device

import "sync"

// ValueCache holds the last known value of each variable on one device.
//
// Written only by the owning device's event loop; read synchronously by
// any collaborator (a component binding to a variable reads its initial
// render value here).
type ValueCache struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewValueCache creates an empty cache.
func NewValueCache() *ValueCache {
	return &ValueCache{
		values: make(map[string]any),
	}
}

// Get returns the last known value for a variable.
func (c *ValueCache) Get(name string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[name]
	return v, ok
}

// Set overwrites the value for a variable.
func (c *ValueCache) Set(name string, value any) {
	c.mu.Lock()
	c.values[name] = value
	c.mu.Unlock()
}

// Snapshot returns a copy of all cached values.
func (c *ValueCache) Snapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Prune drops cached values for variables no longer configured.
// Called after a variable-list edit so stale names do not linger.
func (c *ValueCache) Prune(keep func(name string) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for name := range c.values {
		if !keep(name) {
			delete(c.values, name)
		}
	}
}
