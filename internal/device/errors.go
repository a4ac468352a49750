package device

import "errors"

// Sentinel errors for the device package. Callers distinguish cases with
// errors.Is; repositories wrap these with context via fmt.Errorf and %w.
var (
	// ErrNotFound is returned when a lookup targets a device, model,
	// brand or location that does not exist.
	ErrNotFound = errors.New("device: not found")

	// ErrDuplicateSerial is returned when creating a device whose serial
	// number is already registered.
	ErrDuplicateSerial = errors.New("device: duplicate serial number")

	// ErrProtocolNotConfigured is returned when an operation needs a live
	// adapter but the device's model carries no protocol configuration.
	ErrProtocolNotConfigured = errors.New("device: protocol not configured")

	// ErrInvalidDevice is returned when a device fails validation.
	ErrInvalidDevice = errors.New("device: invalid device")

	// ErrInvalidModel is returned when a model fails validation.
	ErrInvalidModel = errors.New("device: invalid model")

	// ErrStorage wraps database failures so callers can report a storage
	// fault without leaking driver details.
	ErrStorage = errors.New("device: storage failure")
)
