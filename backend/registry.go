package backend

import (
	"slices"
	"sync"

	"github.com/gogpu/vkdecode"
)

// BackendFactory creates a backend advertising caps.
type BackendFactory func(caps vkdecode.Capabilities) (DeviceBackend, error)

// Well-known backend names.
const (
	BackendSim    = "sim"
	BackendSimHAL = "sim-hal"
)

// registry holds registered backends.
var (
	registryMu sync.RWMutex
	backends   = make(map[string]BackendFactory)
	// Priority order for backend selection (first available wins).
	backendPriority = []string{BackendSimHAL, BackendSim}
)

// Register registers a backend factory with the given name.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it will be replaced.
func Register(name string, factory BackendFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	backends[name] = factory
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(backends, name)
}

// Available returns the registered backend names, sorted.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := backends[name]
	return ok
}

// Get opens the backend registered as name.
func Get(name string, caps vkdecode.Capabilities) (DeviceBackend, error) {
	registryMu.RLock()
	factory, ok := backends[name]
	registryMu.RUnlock()

	if !ok {
		return nil, ErrBackendNotAvailable
	}
	return factory(caps)
}

// Default opens the best available backend based on priority, falling
// back to any registered one. Factories that fail are skipped.
func Default(caps vkdecode.Capabilities) (DeviceBackend, error) {
	registryMu.RLock()
	factories := make([]BackendFactory, 0, len(backends))
	for _, name := range backendPriority {
		if factory, ok := backends[name]; ok {
			factories = append(factories, factory)
		}
	}
	for name, factory := range backends {
		if !slices.Contains(backendPriority, name) {
			factories = append(factories, factory)
		}
	}
	registryMu.RUnlock()

	for _, factory := range factories {
		b, err := factory(caps)
		if err != nil {
			vkdecode.Logger().Debug("backend: factory failed", "err", err)
			continue
		}
		if b != nil {
			return b, nil
		}
	}
	return nil, ErrBackendNotAvailable
}
