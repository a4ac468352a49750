package alert

import (
	"encoding/json"
	"errors"
	"time"
)

// Alert is a persisted operational event raised against a device, such
// as a unit going unreachable during reconciliation.
type Alert struct {
	ID             string          `json:"id"`
	DeviceID       string          `json:"device_id"`
	Type           Type            `json:"alert_type"`
	Severity       Severity        `json:"severity"`
	Message        string          `json:"message"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	Acknowledged   bool            `json:"acknowledged"`
	AcknowledgedBy *string         `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time      `json:"acknowledged_at,omitempty"`
	Resolved       bool            `json:"resolved"`
	ResolvedAt     *time.Time      `json:"resolved_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Type classifies what went wrong.
type Type string

const (
	TypeDeviceUnreachable Type = "device_unreachable"
	TypeCommandFailed     Type = "command_failed"
	TypeSensorFault       Type = "sensor_fault"
)

// Severity grades an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Sentinel errors for the alert package.
var (
	// ErrNotFound is returned when a lookup targets an alert that does
	// not exist.
	ErrNotFound = errors.New("alert: not found")

	// ErrStorage wraps database failures.
	ErrStorage = errors.New("alert: storage failure")
)
