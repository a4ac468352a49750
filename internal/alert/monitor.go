package alert

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/climalink/climalink-core/internal/device"
)

// Logger defines the logging interface used by the Monitor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Published receives alerts the monitor raises, for fan-out to clients.
type Published func(a *Alert)

// Monitor turns reconciliation events into persisted alerts. It raises
// one open unreachable alert per device (repeat failures do not pile
// up) and resolves it the moment the device reports again.
type Monitor struct {
	repo    Repository
	logger  Logger
	publish Published
}

// NewMonitor creates an alert monitor. The publish callback may be nil.
func NewMonitor(repo Repository, logger Logger, publish Published) *Monitor {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Monitor{repo: repo, logger: logger, publish: publish}
}

// DeviceUnreachable raises an unreachable alert unless one is open.
func (m *Monitor) DeviceUnreachable(ctx context.Context, deviceID string, cause error) {
	open, err := m.repo.HasOpen(ctx, deviceID, TypeDeviceUnreachable)
	if err != nil {
		m.logger.Error("checking open alerts failed", "device_id", deviceID, "error", err)
		return
	}
	if open {
		return
	}

	a := &Alert{
		ID:       uuid.New().String(),
		DeviceID: deviceID,
		Type:     TypeDeviceUnreachable,
		Severity: SeverityWarning,
		Message:  fmt.Sprintf("device unreachable: %v", cause),
	}
	if err := m.repo.Create(ctx, a); err != nil {
		m.logger.Error("creating alert failed", "device_id", deviceID, "error", err)
		return
	}
	m.logger.Warn("alert raised", "device_id", deviceID, "type", a.Type)
	if m.publish != nil {
		m.publish(a)
	}
}

// DeviceRecovered resolves any open unreachable alert for the device.
func (m *Monitor) DeviceRecovered(ctx context.Context, status *device.Status) {
	if status == nil || !status.IsOnline {
		return
	}
	if err := m.repo.Resolve(ctx, status.DeviceID, TypeDeviceUnreachable); err != nil {
		m.logger.Error("resolving alerts failed",
			"device_id", status.DeviceID, "error", err)
	}
}
