package command

import "errors"

// Sentinel errors for the command package.
var (
	// ErrNotFound is returned when a lookup targets a command that
	// does not exist.
	ErrNotFound = errors.New("command: not found")

	// ErrUnknownCommand is returned for command types outside the
	// supported set.
	ErrUnknownCommand = errors.New("command: unknown command type")

	// ErrInvalidParameters is returned when parameters do not match
	// the command type or fall outside the model's limits.
	ErrInvalidParameters = errors.New("command: invalid parameters")

	// ErrInvalidTransition is returned when a status update would move
	// a command backwards or out of a terminal state.
	ErrInvalidTransition = errors.New("command: invalid status transition")

	// ErrStorage wraps database failures.
	ErrStorage = errors.New("command: storage failure")
)
