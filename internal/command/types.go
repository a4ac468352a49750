package command

import (
	"fmt"
	"time"

	"github.com/climalink/climalink-core/internal/device"
)

// Command is one control instruction issued to a device. Rows are
// append-only history: a command is never deleted, only advanced through
// its status lifecycle.
type Command struct {
	ID        string     `json:"id"`
	DeviceID  string     `json:"device_id"`
	UserID    *string    `json:"user_id,omitempty"`
	Type      Type       `json:"command_type"`
	Params    Parameters `json:"parameters"`
	Status    Status     `json:"status"`
	Error     *string    `json:"error_message,omitempty"`
	Executed  *time.Time `json:"executed_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Type identifies what a command changes on the device.
type Type string

const (
	TypeSetPower       Type = "setPower"
	TypeSetTemperature Type = "setTemperature"
	TypeSetMode        Type = "setMode"
	TypeSetFanSpeed    Type = "setFanSpeed"
)

// Valid reports whether the command type is a known value.
func (t Type) Valid() bool {
	switch t {
	case TypeSetPower, TypeSetTemperature, TypeSetMode, TypeSetFanSpeed:
		return true
	}
	return false
}

// Status is the command lifecycle state. Transitions are strictly
// forward: pending to executing, executing to completed or failed.
// A pending command may also fail directly (rejected before dispatch,
// or swept as abandoned after a restart).
type Status string

const (
	StatusPending   Status = "pending"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Valid reports whether the status is a known value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusExecuting, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether moving from s to next is a legal
// lifecycle step.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusExecuting || next == StatusFailed
	case StatusExecuting:
		return next == StatusCompleted || next == StatusFailed
	}
	return false
}

// Parameters is the payload of a command. Exactly one field is set,
// selected by the command type; Validate enforces the pairing so a
// stored command can always be replayed unambiguously.
type Parameters struct {
	Power       *bool            `json:"power,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
	Mode        *device.Mode     `json:"mode,omitempty"`
	FanSpeed    *device.FanSpeed `json:"fan_speed,omitempty"`
}

// Validate checks that the parameters carry exactly the field the
// command type requires and that its value is in range. The temperature
// bounds come from the device's model.
func (p Parameters) Validate(t Type, minTemp, maxTemp float64) error {
	set := 0
	if p.Power != nil {
		set++
	}
	if p.Temperature != nil {
		set++
	}
	if p.Mode != nil {
		set++
	}
	if p.FanSpeed != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("%w: expected exactly one parameter field, got %d", ErrInvalidParameters, set)
	}

	switch t {
	case TypeSetPower:
		if p.Power == nil {
			return fmt.Errorf("%w: %s requires the power field", ErrInvalidParameters, t)
		}
	case TypeSetTemperature:
		if p.Temperature == nil {
			return fmt.Errorf("%w: %s requires the temperature field", ErrInvalidParameters, t)
		}
		if *p.Temperature < minTemp || *p.Temperature > maxTemp {
			return fmt.Errorf("%w: temperature %.1f outside model range %.1f..%.1f",
				ErrInvalidParameters, *p.Temperature, minTemp, maxTemp)
		}
	case TypeSetMode:
		if p.Mode == nil {
			return fmt.Errorf("%w: %s requires the mode field", ErrInvalidParameters, t)
		}
		if !p.Mode.Valid() {
			return fmt.Errorf("%w: unknown mode %q", ErrInvalidParameters, *p.Mode)
		}
	case TypeSetFanSpeed:
		if p.FanSpeed == nil {
			return fmt.Errorf("%w: %s requires the fan_speed field", ErrInvalidParameters, t)
		}
		if !p.FanSpeed.Valid() {
			return fmt.Errorf("%w: unknown fan speed %q", ErrInvalidParameters, *p.FanSpeed)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, t)
	}

	return nil
}

// Value returns the single set parameter as the value an adapter
// serializes onto the wire.
func (p Parameters) Value(t Type) (any, error) {
	switch t {
	case TypeSetPower:
		if p.Power == nil {
			return nil, fmt.Errorf("%w: power not set", ErrInvalidParameters)
		}
		return *p.Power, nil
	case TypeSetTemperature:
		if p.Temperature == nil {
			return nil, fmt.Errorf("%w: temperature not set", ErrInvalidParameters)
		}
		return *p.Temperature, nil
	case TypeSetMode:
		if p.Mode == nil {
			return nil, fmt.Errorf("%w: mode not set", ErrInvalidParameters)
		}
		return string(*p.Mode), nil
	case TypeSetFanSpeed:
		if p.FanSpeed == nil {
			return nil, fmt.Errorf("%w: fan speed not set", ErrInvalidParameters)
		}
		return string(*p.FanSpeed), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, t)
}

// StatusPatch converts the parameters into the optimistic device status
// update applied for simulated devices: the snapshot simply reflects
// what the command asked for.
func (p Parameters) StatusPatch(t Type) (device.StatusPatch, error) {
	var patch device.StatusPatch
	switch t {
	case TypeSetPower:
		if p.Power == nil {
			return patch, fmt.Errorf("%w: power not set", ErrInvalidParameters)
		}
		patch.PowerState = p.Power
	case TypeSetTemperature:
		if p.Temperature == nil {
			return patch, fmt.Errorf("%w: temperature not set", ErrInvalidParameters)
		}
		patch.TargetTemperature = p.Temperature
	case TypeSetMode:
		if p.Mode == nil {
			return patch, fmt.Errorf("%w: mode not set", ErrInvalidParameters)
		}
		patch.Mode = p.Mode
	case TypeSetFanSpeed:
		if p.FanSpeed == nil {
			return patch, fmt.Errorf("%w: fan speed not set", ErrInvalidParameters)
		}
		patch.FanSpeed = p.FanSpeed
	default:
		return patch, fmt.Errorf("%w: %q", ErrUnknownCommand, t)
	}
	return patch, nil
}
