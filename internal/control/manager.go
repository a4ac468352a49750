package control

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/climalink/climalink-core/internal/adapter"
	"github.com/climalink/climalink-core/internal/command"
	"github.com/climalink/climalink-core/internal/device"
	"github.com/climalink/climalink-core/internal/infrastructure/config"
)

// DeviceRegistry is the slice of the device catalogue the control loop
// needs.
type DeviceRegistry interface {
	GetDeviceModel(ctx context.Context, id string) (*device.Device, *device.Model, error)
	ListOnlineDevices(ctx context.Context) ([]device.Device, error)
	MarkConnectionStatus(ctx context.Context, id string, status device.ConnectionStatus, seen time.Time) error
	MergeStatus(ctx context.Context, deviceID string, patch device.StatusPatch) (*device.Status, error)
}

// CommandStore is the slice of the command history the control loop needs.
type CommandStore interface {
	Create(ctx context.Context, c *command.Command) error
	Transition(ctx context.Context, id string, next command.Status, errorMessage string) (*command.Command, error)
	SweepAbandoned(ctx context.Context, message string) (int64, error)
}

// AdapterProvider hands out live protocol adapters.
type AdapterProvider interface {
	GetOrCreate(ctx context.Context, dev *device.Device, model *device.Model) (adapter.Adapter, error)
	Remove(deviceID string) error
}

// Notifier receives lifecycle events for fan-out to interested parties
// (WebSocket clients, alerting). Implementations must not block; the
// control loop calls them inline.
type Notifier interface {
	CommandUpdated(cmd *command.Command)
	StatusUpdated(deviceID string, status *device.Status)
	DeviceUnreachable(deviceID string, err error)
}

// Telemetry receives status samples worth keeping as time series.
type Telemetry interface {
	RecordClimate(deviceID string, status *device.Status)
}

// Logger defines the logging interface used by the control loop.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NoopNotifier discards all events.
type NoopNotifier struct{}

func (NoopNotifier) CommandUpdated(*command.Command)      {}
func (NoopNotifier) StatusUpdated(string, *device.Status) {}
func (NoopNotifier) DeviceUnreachable(string, error)      {}

// NoopTelemetry discards all samples.
type NoopTelemetry struct{}

func (NoopTelemetry) RecordClimate(string, *device.Status) {}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// abandonedMessage is recorded on commands swept at startup.
const abandonedMessage = "abandoned at shutdown"

// Manager drives the command lifecycle and the device status
// reconciliation loop. All collaborators are injected; the manager owns
// no transport or storage of its own.
type Manager struct {
	devices   DeviceRegistry
	commands  CommandStore
	adapters  AdapterProvider
	notifier  Notifier
	telemetry Telemetry
	cfg       config.ControlConfig
	logger    Logger

	// sleep is swapped out in tests so the simulated delay does not
	// slow the suite down.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewManager wires a control manager. Notifier, telemetry and logger may
// be nil; no-op implementations are substituted.
func NewManager(devices DeviceRegistry, commands CommandStore, adapters AdapterProvider, cfg config.ControlConfig, opts ...Option) *Manager {
	m := &Manager{
		devices:   devices,
		commands:  commands,
		adapters:  adapters,
		notifier:  NoopNotifier{},
		telemetry: NoopTelemetry{},
		cfg:       cfg,
		logger:    noopLogger{},
		sleep:     sleepCtx,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Option configures optional Manager collaborators.
type Option func(*Manager)

// WithNotifier sets the event fan-out target.
func WithNotifier(n Notifier) Option {
	return func(m *Manager) {
		if n != nil {
			m.notifier = n
		}
	}
}

// WithTelemetry sets the time-series sink.
func WithTelemetry(t Telemetry) Option {
	return func(m *Manager) {
		if t != nil {
			m.telemetry = t
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// SendCommand runs one command through its full lifecycle and returns
// the command in its final state. The returned error reports execution
// failure; the same failure is also recorded on the command row, so
// callers see it once synchronously and again in history.
func (m *Manager) SendCommand(ctx context.Context, deviceID string, userID *string, typ command.Type, params command.Parameters) (*command.Command, error) {
	dev, model, err := m.devices.GetDeviceModel(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	if err := params.Validate(typ, model.MinTemperature, model.MaxTemperature); err != nil {
		return nil, err
	}

	// Unconfigured models reject every command, simulated devices
	// included, before any row is created.
	if !model.HasProtocol() {
		return nil, fmt.Errorf("%w: device %s model %s", device.ErrProtocolNotConfigured, dev.ID, model.ID)
	}

	simulated := m.isSimulated(dev)

	cmd := &command.Command{
		ID:       device.GenerateID(),
		DeviceID: dev.ID,
		UserID:   userID,
		Type:     typ,
		Params:   params,
		Status:   command.StatusPending,
	}
	if err := m.commands.Create(ctx, cmd); err != nil {
		return nil, err
	}
	m.notifier.CommandUpdated(cmd)

	cmd, err = m.commands.Transition(ctx, cmd.ID, command.StatusExecuting, "")
	if err != nil {
		return nil, err
	}
	m.notifier.CommandUpdated(cmd)

	if simulated {
		return m.executeSimulated(ctx, dev, cmd)
	}
	return m.executeReal(ctx, dev, model, cmd)
}

// isSimulated decides whether a device takes the optimistic path. The
// explicit flag is authoritative; the legacy heuristic is consulted only
// when enabled in configuration.
func (m *Manager) isSimulated(dev *device.Device) bool {
	if dev.Simulated {
		return true
	}
	return m.cfg.LegacyDemoHeuristic && dev.LegacyDemoDevice()
}

// executeSimulated applies the command optimistically: wait the fixed
// demo delay, then write the requested state straight into the status
// snapshot as if the device had confirmed it.
func (m *Manager) executeSimulated(ctx context.Context, dev *device.Device, cmd *command.Command) (*command.Command, error) {
	if err := m.sleep(ctx, m.cfg.SimulatedDelay()); err != nil {
		return m.fail(ctx, cmd, err)
	}

	patch, err := cmd.Params.StatusPatch(cmd.Type)
	if err != nil {
		return m.fail(ctx, cmd, err)
	}
	online := true
	patch.IsOnline = &online

	status, err := m.devices.MergeStatus(ctx, dev.ID, patch)
	if err != nil {
		return m.fail(ctx, cmd, err)
	}
	m.notifier.StatusUpdated(dev.ID, status)

	if err := m.devices.MarkConnectionStatus(ctx, dev.ID, device.StatusOnline, m.now()); err != nil {
		m.logger.Warn("marking simulated device online failed",
			"device_id", dev.ID, "error", err)
	}

	done, err := m.commands.Transition(ctx, cmd.ID, command.StatusCompleted, "")
	if err != nil {
		return nil, err
	}
	m.notifier.CommandUpdated(done)
	m.logger.Info("simulated command completed",
		"device_id", dev.ID, "command_id", done.ID, "type", done.Type)
	return done, nil
}

// executeReal dispatches the command through the device's adapter.
func (m *Manager) executeReal(ctx context.Context, dev *device.Device, model *device.Model, cmd *command.Command) (*command.Command, error) {
	a, err := m.adapters.GetOrCreate(ctx, dev, model)
	if err != nil {
		return m.fail(ctx, cmd, err)
	}

	if err := a.ExecuteCommand(ctx, cmd); err != nil {
		return m.fail(ctx, cmd, err)
	}

	done, err := m.commands.Transition(ctx, cmd.ID, command.StatusCompleted, "")
	if err != nil {
		return nil, err
	}
	m.notifier.CommandUpdated(done)
	m.logger.Info("command completed",
		"device_id", dev.ID, "command_id", done.ID, "type", done.Type)
	return done, nil
}

// fail records the failure on the command and returns it to the caller.
// Both sides of the dual report carry the same message.
func (m *Manager) fail(ctx context.Context, cmd *command.Command, cause error) (*command.Command, error) {
	failed, terr := m.commands.Transition(ctx, cmd.ID, command.StatusFailed, cause.Error())
	if terr != nil {
		m.logger.Error("recording command failure failed",
			"command_id", cmd.ID, "cause", cause, "error", terr)
		return nil, errors.Join(cause, terr)
	}
	m.notifier.CommandUpdated(failed)
	m.logger.Warn("command failed",
		"device_id", cmd.DeviceID, "command_id", cmd.ID, "type", cmd.Type, "error", cause)
	return failed, cause
}

// SweepAbandoned fails commands left non-terminal by a previous run.
// Called once during startup, before the API starts accepting work.
func (m *Manager) SweepAbandoned(ctx context.Context) error {
	if !m.cfg.SweepAbandonedOnStart {
		return nil
	}
	n, err := m.commands.SweepAbandoned(ctx, abandonedMessage)
	if err != nil {
		return err
	}
	if n > 0 {
		m.logger.Info("swept abandoned commands", "count", n)
	}
	return nil
}

// ReleaseAdapter disconnects and discards the live adapter for a
// device. Called when a device leaves the fleet so its broker session
// does not linger until shutdown.
func (m *Manager) ReleaseAdapter(deviceID string) error {
	if err := m.adapters.Remove(deviceID); err != nil {
		return fmt.Errorf("releasing adapter for %s: %w", deviceID, err)
	}
	return nil
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
