package frameq

import "errors"

// Error taxonomy. Callers distinguish failure classes with errors.Is;
// specific failures wrap one of these sentinels with detail.
var (
	// ErrNotFound is returned when an operation references a stale or
	// unknown handle. Recoverable at the call site, never fatal.
	ErrNotFound = errors.New("frameq: resource not found")

	// ErrValidation is returned when resource parameters are rejected
	// before any state is created.
	ErrValidation = errors.New("frameq: invalid parameters")

	// ErrLoadFailed is returned when an asynchronous content fetch or
	// decode failed. All de-duplicated waiters observe it; retry is a
	// caller decision made by issuing a fresh request.
	ErrLoadFailed = errors.New("frameq: asset load failed")

	// ErrContextLost is returned when the native graphics context has
	// been invalidated. Dispatches fail fast until the host rebuilds
	// the device.
	ErrContextLost = errors.New("frameq: graphics context lost")

	// ErrCapabilityUnmet is returned at device initialization when the
	// native implementation does not meet a minimum capability floor.
	ErrCapabilityUnmet = errors.New("frameq: minimum device capability unmet")

	// ErrNotInitialized is returned when dispatch is requested before
	// the device entered the active state.
	ErrNotInitialized = errors.New("frameq: device not initialized")
)
