package adapter

import (
	"errors"
	"fmt"
)

// Sentinel errors for the adapter package.
var (
	// ErrUnsupportedProtocol is returned by the factory for protocol
	// types outside the declared set.
	ErrUnsupportedProtocol = errors.New("adapter: unsupported protocol")

	// ErrNotImplemented is returned by stub adapters for protocols that
	// are declared but have no working implementation yet. It wraps
	// ErrUnsupportedProtocol, so callers that only care whether a
	// protocol can be driven match both with a single errors.Is check.
	ErrNotImplemented = fmt.Errorf("%w: not implemented", ErrUnsupportedProtocol)

	// ErrConnectionFailed is returned when the transport session cannot
	// be established.
	ErrConnectionFailed = errors.New("adapter: connection failed")

	// ErrNotConnected is returned when an operation needs a live
	// session but the adapter is disconnected.
	ErrNotConnected = errors.New("adapter: not connected")

	// ErrUnknownCommand is returned for command types the device's
	// configuration cannot express.
	ErrUnknownCommand = errors.New("adapter: unknown command")

	// ErrNoStatus is returned by Status before the device has reported
	// any state on this session.
	ErrNoStatus = errors.New("adapter: no status received yet")

	// ErrRegistryClosed is returned by the registry after ShutdownAll.
	ErrRegistryClosed = errors.New("adapter: registry closed")
)
