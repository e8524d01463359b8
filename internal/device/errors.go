package device

import "errors"

// Domain errors for the device package.
//
// These are checked with errors.Is():
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // reply with operation_error
//	}
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device with an ID that already exists.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidType is returned when a device type is not recognised.
	ErrInvalidType = errors.New("device: invalid type")

	// ErrUnsupported is returned by operations a device type does not implement.
	// Subtypes inherit it loudly from Unsupported rather than silently no-opping.
	ErrUnsupported = errors.New("device: operation not supported")

	// ErrVariableNotFound is returned when a variable name is not configured.
	ErrVariableNotFound = errors.New("device: variable not found")

	// ErrPublishDisabled is returned when writing a variable that has
	// publishing disabled or no publish topic.
	ErrPublishDisabled = errors.New("device: variable does not publish")

	// ErrNotConnected is returned when an operation requires a live connection.
	ErrNotConnected = errors.New("device: not connected")

	// ErrClosed is returned when commanding a device after teardown.
	ErrClosed = errors.New("device: closed")
)
