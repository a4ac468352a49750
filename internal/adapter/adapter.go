package adapter

import (
	"context"

	"github.com/climalink/climalink-core/internal/command"
	"github.com/climalink/climalink-core/internal/device"
)

// Adapter is the protocol-facing session for one device. Implementations
// own a single transport connection and translate between commands,
// status snapshots and the device's wire format.
//
// Implementations must be safe for concurrent use: the command manager
// and the reconciliation loop call into the same adapter.
type Adapter interface {
	// Connect establishes the transport session.
	// Returns ErrConnectionFailed if the device cannot be reached.
	Connect(ctx context.Context) error

	// Disconnect tears the session down. Idempotent: disconnecting an
	// already closed adapter returns nil.
	Disconnect() error

	// ExecuteCommand sends one command to the device.
	// Returns ErrNotConnected if the session is down and
	// ErrUnknownCommand for command types the device cannot accept.
	ExecuteCommand(ctx context.Context, cmd *command.Command) error

	// Status returns the most recent state reported by the device as a
	// partial snapshot. Returns ErrNoStatus until the device has
	// reported at least once.
	Status(ctx context.Context) (device.StatusPatch, error)

	// Connected reports whether the transport session is up.
	Connected() bool

	// DeviceID returns the device this adapter serves.
	DeviceID() string
}

// Logger defines the logging interface used by adapters and the registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
