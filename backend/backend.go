package backend

import (
	"errors"

	"github.com/gogpu/vkdecode"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNoCapabilities is returned by factories that cannot derive a
	// device from the capabilities they were given.
	ErrNoCapabilities = errors.New("backend: capabilities describe no decode mode")
)

// DeviceBackend is a source of decode devices.
//
// Backends must be registered via Register() and are selected via
// Get() or Default().
type DeviceBackend interface {
	// Name returns the backend identifier (e.g., "sim", "sim-hal").
	Name() string

	// Device returns the driver, allocator and queue to decode with.
	Device() vkdecode.Device

	// Close releases all backend resources.
	// The backend should not be used after Close is called.
	Close()
}
