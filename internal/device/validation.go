package device

import (
	"fmt"
	"net"
	"strings"

	"github.com/google/uuid"
)

const (
	maxNameLength   = 100
	maxSerialLength = 64
)

// ValidateDevice performs validation on a device.
// Returns an error describing the first validation failure found.
func ValidateDevice(d *Device) error {
	if d == nil {
		return ErrInvalidDevice
	}

	if err := ValidateName(d.Name); err != nil {
		return err
	}

	if d.SerialNumber == "" {
		return fmt.Errorf("%w: serial number is required", ErrInvalidDevice)
	}
	if len(d.SerialNumber) > maxSerialLength {
		return fmt.Errorf("%w: serial number exceeds %d characters", ErrInvalidDevice, maxSerialLength)
	}

	if d.ModelID == "" {
		return fmt.Errorf("%w: model id is required", ErrInvalidDevice)
	}

	if !d.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidDevice, d.Status)
	}

	if d.IPAddress != nil && net.ParseIP(*d.IPAddress) == nil {
		return fmt.Errorf("%w: invalid ip address %q", ErrInvalidDevice, *d.IPAddress)
	}

	return nil
}

// ValidateName checks a device or model name.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDevice)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidDevice, maxNameLength)
	}
	return nil
}

// ValidateModel performs validation on a model.
func ValidateModel(m *Model) error {
	if m == nil {
		return ErrInvalidModel
	}

	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidModel)
	}
	if m.BrandID == "" {
		return fmt.Errorf("%w: brand id is required", ErrInvalidModel)
	}
	if !m.ProtocolType.Valid() {
		return fmt.Errorf("%w: unknown protocol type %q", ErrInvalidModel, m.ProtocolType)
	}
	if m.MinTemperature >= m.MaxTemperature {
		return fmt.Errorf("%w: temperature range %.1f..%.1f is empty", ErrInvalidModel, m.MinTemperature, m.MaxTemperature)
	}

	if m.ConnectionConfig != nil {
		if err := validateConnectionConfig(m.ProtocolType, m.ConnectionConfig); err != nil {
			return err
		}
	}

	return nil
}

// validateConnectionConfig checks protocol-specific fields.
func validateConnectionConfig(p ProtocolType, cfg *ConnectionConfig) error {
	switch p {
	case ProtocolMQTT:
		if cfg.Broker == "" {
			return fmt.Errorf("%w: mqtt config requires a broker url", ErrInvalidModel)
		}
	case ProtocolHTTP:
		if cfg.Endpoint == "" {
			return fmt.Errorf("%w: http config requires an endpoint", ErrInvalidModel)
		}
	case ProtocolModbus, ProtocolBACnet:
		// Declared but unimplemented protocols carry opaque config.
	}
	return nil
}

// GenerateID creates a new UUID for a device, model, brand or location.
func GenerateID() string {
	return uuid.New().String()
}
