// Package backend maintains the registry of graphics device
// implementations. Device packages register a factory from their init
// function; hosts pick one by name or take the best available default.
package backend

import (
	"errors"
	"sync"

	"github.com/gogpu/frameq"
)

// Well-known backend names.
const (
	// BackendWgpu drives a real GPU through the wgpu hardware
	// abstraction layer.
	BackendWgpu = "wgpu"

	// BackendHeadless executes frames without a GPU. Used for tests
	// and server-side validation runs.
	BackendHeadless = "headless"
)

// ErrNotAvailable is returned when no usable backend is registered.
var ErrNotAvailable = errors.New("backend: not available")

// Factory creates a new device instance.
type Factory func() frameq.Device

var (
	registryMu sync.RWMutex
	devices    = make(map[string]Factory)
	// Selection order for Default (first available wins).
	priority = []string{BackendWgpu, BackendHeadless}
)

// Register registers a device factory under name. Typically called from
// init() functions in device packages. Registering an existing name
// replaces the factory.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	devices[name] = factory
}

// Unregister removes a device from the registry. Useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(devices, name)
}

// Available returns the registered device names.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(devices))
	for name := range devices {
		names = append(names, name)
	}
	return names
}

// IsRegistered checks whether a device with the given name is
// registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := devices[name]
	return ok
}

// Get returns a new device by name, or nil if the name is not
// registered.
func Get(name string) frameq.Device {
	registryMu.RLock()
	defer registryMu.RUnlock()

	factory, ok := devices[name]
	if !ok {
		return nil
	}
	return factory()
}

// Default returns the best available device: wgpu when present,
// headless otherwise, any other registration as a last resort. Returns
// nil when nothing is registered.
func Default() frameq.Device {
	registryMu.RLock()
	defer registryMu.RUnlock()

	for _, name := range priority {
		if factory, ok := devices[name]; ok {
			if d := factory(); d != nil {
				return d
			}
		}
	}
	for _, factory := range devices {
		if d := factory(); d != nil {
			return d
		}
	}
	return nil
}

// MustDefault returns the default device or panics.
func MustDefault() frameq.Device {
	d := Default()
	if d == nil {
		panic("backend: no device available")
	}
	return d
}

// OpenDefault returns the default device, initialized. Convenience for
// hosts that do not manage device selection themselves.
func OpenDefault() (frameq.Device, error) {
	d := Default()
	if d == nil {
		return nil, ErrNotAvailable
	}
	if err := d.Init(); err != nil {
		return nil, err
	}
	return d, nil
}
