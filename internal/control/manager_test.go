package control

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/climalink/climalink-core/internal/adapter"
	"github.com/climalink/climalink-core/internal/command"
	"github.com/climalink/climalink-core/internal/device"
	"github.com/climalink/climalink-core/internal/infrastructure/config"
)

// fakeDevices implements DeviceRegistry in memory.
type fakeDevices struct {
	mu       sync.Mutex
	devices  map[string]*device.Device
	models   map[string]*device.Model
	statuses map[string]*device.Status
	mergeErr error
}

func newFakeDevices() *fakeDevices {
	return &fakeDevices{
		devices:  make(map[string]*device.Device),
		models:   make(map[string]*device.Model),
		statuses: make(map[string]*device.Status),
	}
}

func (f *fakeDevices) add(dev *device.Device, model *device.Model) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices[dev.ID] = dev
	f.models[model.ID] = model
	f.statuses[dev.ID] = &device.Status{DeviceID: dev.ID, Timestamp: time.Now()}
}

func (f *fakeDevices) GetDeviceModel(_ context.Context, id string) (*device.Device, *device.Model, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	dev, ok := f.devices[id]
	if !ok {
		return nil, nil, device.ErrNotFound
	}
	model, ok := f.models[dev.ModelID]
	if !ok {
		return nil, nil, device.ErrNotFound
	}
	d, m := *dev, *model
	return &d, &m, nil
}

func (f *fakeDevices) ListOnlineDevices(context.Context) ([]device.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []device.Device
	for _, d := range f.devices {
		if d.Status == device.StatusOnline {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeDevices) MarkConnectionStatus(_ context.Context, id string, status device.ConnectionStatus, seen time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.devices[id]
	if !ok {
		return device.ErrNotFound
	}
	d.Status = status
	s := seen
	d.LastSeen = &s
	return nil
}

func (f *fakeDevices) MergeStatus(_ context.Context, deviceID string, patch device.StatusPatch) (*device.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mergeErr != nil {
		return nil, f.mergeErr
	}
	s, ok := f.statuses[deviceID]
	if !ok {
		return nil, device.ErrNotFound
	}
	merged := *s
	if patch.Temperature != nil {
		merged.Temperature = patch.Temperature
	}
	if patch.TargetTemperature != nil {
		merged.TargetTemperature = patch.TargetTemperature
	}
	if patch.Mode != nil {
		merged.Mode = patch.Mode
	}
	if patch.FanSpeed != nil {
		merged.FanSpeed = patch.FanSpeed
	}
	if patch.PowerState != nil {
		merged.PowerState = *patch.PowerState
	}
	if patch.IsOnline != nil {
		merged.IsOnline = *patch.IsOnline
	}
	merged.Timestamp = time.Now()
	f.statuses[deviceID] = &merged
	cp := merged
	return &cp, nil
}

// fakeCommands implements CommandStore and records the status sequence
// each command passed through.
type fakeCommands struct {
	mu        sync.Mutex
	commands  map[string]*command.Command
	sequences map[string][]command.Status
	createErr error
}

func newFakeCommands() *fakeCommands {
	return &fakeCommands{
		commands:  make(map[string]*command.Command),
		sequences: make(map[string][]command.Status),
	}
}

func (f *fakeCommands) Create(_ context.Context, c *command.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	c.CreatedAt = time.Now()
	cp := *c
	f.commands[c.ID] = &cp
	f.sequences[c.ID] = []command.Status{c.Status}
	return nil
}

func (f *fakeCommands) Transition(_ context.Context, id string, next command.Status, errorMessage string) (*command.Command, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.commands[id]
	if !ok {
		return nil, command.ErrNotFound
	}
	if !c.Status.CanTransition(next) {
		return nil, fmt.Errorf("%w: %s to %s", command.ErrInvalidTransition, c.Status, next)
	}
	c.Status = next
	if errorMessage != "" {
		c.Error = &errorMessage
	}
	if next.Terminal() {
		t := time.Now()
		c.Executed = &t
	}
	f.sequences[id] = append(f.sequences[id], next)
	cp := *c
	return &cp, nil
}

func (f *fakeCommands) SweepAbandoned(_ context.Context, message string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, c := range f.commands {
		if c.Status.Terminal() {
			continue
		}
		c.Status = command.StatusFailed
		msg := message
		c.Error = &msg
		f.sequences[id] = append(f.sequences[id], command.StatusFailed)
		n++
	}
	return n, nil
}

func (f *fakeCommands) sequence(id string) []command.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]command.Status(nil), f.sequences[id]...)
}

// scriptedAdapter implements adapter.Adapter with scripted results.
type scriptedAdapter struct {
	deviceID    string
	executeErr  error
	statusErr   error
	statusDelay time.Duration
	patch       device.StatusPatch
	mu          sync.Mutex
	executed    []*command.Command
}

func (s *scriptedAdapter) Connect(context.Context) error { return nil }
func (s *scriptedAdapter) Disconnect() error             { return nil }
func (s *scriptedAdapter) Connected() bool               { return true }
func (s *scriptedAdapter) DeviceID() string              { return s.deviceID }

func (s *scriptedAdapter) ExecuteCommand(_ context.Context, cmd *command.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.executeErr != nil {
		return s.executeErr
	}
	s.executed = append(s.executed, cmd)
	return nil
}

func (s *scriptedAdapter) Status(context.Context) (device.StatusPatch, error) {
	if s.statusDelay > 0 {
		time.Sleep(s.statusDelay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statusErr != nil {
		return device.StatusPatch{}, s.statusErr
	}
	return s.patch, nil
}

// fakeAdapters implements AdapterProvider over a fixed adapter map.
type fakeAdapters struct {
	mu       sync.Mutex
	adapters map[string]adapter.Adapter
	errs     map[string]error
}

func newFakeAdapters() *fakeAdapters {
	return &fakeAdapters{
		adapters: make(map[string]adapter.Adapter),
		errs:     make(map[string]error),
	}
}

func (f *fakeAdapters) GetOrCreate(_ context.Context, dev *device.Device, _ *device.Model) (adapter.Adapter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[dev.ID]; ok {
		return nil, err
	}
	a, ok := f.adapters[dev.ID]
	if !ok {
		return nil, adapter.ErrConnectionFailed
	}
	return a, nil
}

func (f *fakeAdapters) Remove(deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.adapters, deviceID)
	return nil
}

// recordingNotifier captures fan-out events.
type recordingNotifier struct {
	mu          sync.Mutex
	commands    []*command.Command
	statuses    []string
	unreachable []string
}

func (r *recordingNotifier) CommandUpdated(cmd *command.Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *cmd
	r.commands = append(r.commands, &cp)
}

func (r *recordingNotifier) StatusUpdated(deviceID string, _ *device.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, deviceID)
}

func (r *recordingNotifier) DeviceUnreachable(deviceID string, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unreachable = append(r.unreachable, deviceID)
}

func testControlConfig() config.ControlConfig {
	return config.ControlConfig{
		RefreshInterval:       30,
		RefreshTimeout:        10,
		SimulatedDelayMS:      1,
		LegacyDemoHeuristic:   true,
		SweepAbandonedOnStart: true,
	}
}

type harness struct {
	devices  *fakeDevices
	commands *fakeCommands
	adapters *fakeAdapters
	notifier *recordingNotifier
	manager  *Manager
}

func newHarness(t *testing.T, cfg config.ControlConfig) *harness {
	t.Helper()
	h := &harness{
		devices:  newFakeDevices(),
		commands: newFakeCommands(),
		adapters: newFakeAdapters(),
		notifier: &recordingNotifier{},
	}
	h.manager = NewManager(h.devices, h.commands, h.adapters, cfg,
		WithNotifier(h.notifier))
	// No real sleeping in tests.
	h.manager.sleep = func(context.Context, time.Duration) error { return nil }
	return h
}

func mqttModel() *device.Model {
	return &device.Model{
		ID:             "model-1",
		BrandID:        "brand-1",
		Name:           "CoolFlow 3000",
		ProtocolType:   device.ProtocolMQTT,
		MinTemperature: 16,
		MaxTemperature: 30,
		ConnectionConfig: &device.ConnectionConfig{
			Broker: "mqtt://broker.local:1883",
		},
	}
}

func realDevice(id string) *device.Device {
	return &device.Device{
		ID:           id,
		ModelID:      "model-1",
		Name:         "Unit " + id,
		SerialNumber: "SN-" + id,
		Status:       device.StatusOnline,
	}
}

func TestSendCommandSimulatedOptimisticPath(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testControlConfig())

	dev := realDevice("dev-1")
	dev.Simulated = true
	h.devices.add(dev, mqttModel())

	temp := 24.0
	cmd, err := h.manager.SendCommand(ctx, "dev-1", nil,
		command.TypeSetTemperature, command.Parameters{Temperature: &temp})
	if err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if cmd.Status != command.StatusCompleted {
		t.Errorf("status = %s, want completed", cmd.Status)
	}

	wantSeq := []command.Status{
		command.StatusPending, command.StatusExecuting, command.StatusCompleted,
	}
	gotSeq := h.commands.sequence(cmd.ID)
	if len(gotSeq) != len(wantSeq) {
		t.Fatalf("sequence = %v, want %v", gotSeq, wantSeq)
	}
	for i := range wantSeq {
		if gotSeq[i] != wantSeq[i] {
			t.Fatalf("sequence = %v, want %v", gotSeq, wantSeq)
		}
	}

	// The optimistic write landed in the snapshot.
	status := h.devices.statuses["dev-1"]
	if status.TargetTemperature == nil || *status.TargetTemperature != 24.0 {
		t.Errorf("snapshot target temperature = %v", status.TargetTemperature)
	}
	if !status.IsOnline {
		t.Error("simulated device should be marked online")
	}

	// No adapter was ever involved.
	if len(h.adapters.adapters) != 0 {
		t.Error("simulated command must not touch adapters")
	}
}

func TestSendCommandLegacyHeuristic(t *testing.T) {
	ctx := context.Background()

	// Heuristic on: a serial containing 2024 takes the simulated path.
	h := newHarness(t, testControlConfig())
	dev := realDevice("dev-1")
	dev.SerialNumber = "AC-2024-7"
	h.devices.add(dev, mqttModel())

	on := true
	cmd, err := h.manager.SendCommand(ctx, "dev-1", nil,
		command.TypeSetPower, command.Parameters{Power: &on})
	if err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if cmd.Status != command.StatusCompleted {
		t.Errorf("status = %s, want completed", cmd.Status)
	}

	// Heuristic off: the same device goes through its adapter.
	cfg := testControlConfig()
	cfg.LegacyDemoHeuristic = false
	h2 := newHarness(t, cfg)
	dev2 := realDevice("dev-1")
	dev2.SerialNumber = "AC-2024-7"
	h2.devices.add(dev2, mqttModel())
	scripted := &scriptedAdapter{deviceID: "dev-1"}
	h2.adapters.adapters["dev-1"] = scripted

	if _, err := h2.manager.SendCommand(ctx, "dev-1", nil,
		command.TypeSetPower, command.Parameters{Power: &on}); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if len(scripted.executed) != 1 {
		t.Errorf("adapter executed %d commands, want 1", len(scripted.executed))
	}
}

func TestSendCommandRealPath(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testControlConfig())
	h.devices.add(realDevice("dev-1"), mqttModel())
	scripted := &scriptedAdapter{deviceID: "dev-1"}
	h.adapters.adapters["dev-1"] = scripted

	mode := device.ModeCool
	user := "user-7"
	cmd, err := h.manager.SendCommand(ctx, "dev-1", &user,
		command.TypeSetMode, command.Parameters{Mode: &mode})
	if err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if cmd.Status != command.StatusCompleted {
		t.Errorf("status = %s, want completed", cmd.Status)
	}
	if cmd.UserID == nil || *cmd.UserID != "user-7" {
		t.Errorf("user id = %v", cmd.UserID)
	}
	if len(scripted.executed) != 1 {
		t.Fatalf("adapter executed %d commands", len(scripted.executed))
	}
}

func TestSendCommandFailureDualReport(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testControlConfig())
	h.devices.add(realDevice("dev-1"), mqttModel())
	boom := errors.New("device rejected command")
	h.adapters.adapters["dev-1"] = &scriptedAdapter{deviceID: "dev-1", executeErr: boom}

	on := true
	cmd, err := h.manager.SendCommand(ctx, "dev-1", nil,
		command.TypeSetPower, command.Parameters{Power: &on})

	// The caller gets the failure synchronously.
	if !errors.Is(err, boom) {
		t.Fatalf("expected execution error, got %v", err)
	}
	// And the command record carries the same failure.
	if cmd == nil || cmd.Status != command.StatusFailed {
		t.Fatalf("command = %+v, want failed", cmd)
	}
	if cmd.Error == nil || *cmd.Error != boom.Error() {
		t.Errorf("recorded error = %v, want %q", cmd.Error, boom.Error())
	}

	wantSeq := []command.Status{
		command.StatusPending, command.StatusExecuting, command.StatusFailed,
	}
	gotSeq := h.commands.sequence(cmd.ID)
	for i := range wantSeq {
		if gotSeq[i] != wantSeq[i] {
			t.Fatalf("sequence = %v, want %v", gotSeq, wantSeq)
		}
	}
}

func TestSendCommandDeviceNotFound(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testControlConfig())

	on := true
	_, err := h.manager.SendCommand(ctx, "ghost", nil,
		command.TypeSetPower, command.Parameters{Power: &on})
	if !errors.Is(err, device.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if len(h.commands.commands) != 0 {
		t.Error("no command row should exist for an unknown device")
	}
}

func TestSendCommandProtocolNotConfigured(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testControlConfig())

	model := mqttModel()
	model.ConnectionConfig = nil
	h.devices.add(realDevice("dev-1"), model)

	on := true
	_, err := h.manager.SendCommand(ctx, "dev-1", nil,
		command.TypeSetPower, command.Parameters{Power: &on})
	if !errors.Is(err, device.ErrProtocolNotConfigured) {
		t.Errorf("expected ErrProtocolNotConfigured, got %v", err)
	}
	if len(h.commands.commands) != 0 {
		t.Error("rejected command must not be recorded")
	}
}

func TestSendCommandProtocolNotConfiguredSimulated(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testControlConfig())

	// The optimistic path gets no exemption from the protocol check.
	model := mqttModel()
	model.ProtocolType = ""
	model.ConnectionConfig = nil
	dev := realDevice("dev-1")
	dev.Simulated = true
	h.devices.add(dev, model)

	temp := 22.0
	cmd, err := h.manager.SendCommand(ctx, "dev-1", nil,
		command.TypeSetTemperature, command.Parameters{Temperature: &temp})
	if !errors.Is(err, device.ErrProtocolNotConfigured) {
		t.Errorf("expected ErrProtocolNotConfigured, got %v", err)
	}
	if cmd != nil {
		t.Errorf("command = %+v, want nil", cmd)
	}
	if len(h.commands.commands) != 0 {
		t.Error("rejected command must not be recorded")
	}
}

func TestReleaseAdapter(t *testing.T) {
	h := newHarness(t, testControlConfig())
	h.adapters.adapters["dev-1"] = &scriptedAdapter{deviceID: "dev-1"}

	if err := h.manager.ReleaseAdapter("dev-1"); err != nil {
		t.Fatalf("ReleaseAdapter: %v", err)
	}
	if _, ok := h.adapters.adapters["dev-1"]; ok {
		t.Error("adapter still registered after release")
	}

	// Releasing a device with no live adapter is a no-op.
	if err := h.manager.ReleaseAdapter("ghost"); err != nil {
		t.Errorf("ReleaseAdapter for unknown device: %v", err)
	}
}

func TestSendCommandInvalidParameters(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testControlConfig())
	h.devices.add(realDevice("dev-1"), mqttModel())

	// Out of the model's 16..30 range.
	temp := 45.0
	_, err := h.manager.SendCommand(ctx, "dev-1", nil,
		command.TypeSetTemperature, command.Parameters{Temperature: &temp})
	if !errors.Is(err, command.ErrInvalidParameters) {
		t.Errorf("expected ErrInvalidParameters, got %v", err)
	}
}

func TestSweepAbandoned(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testControlConfig())

	stuck := &command.Command{
		ID: "cmd-stuck", DeviceID: "dev-1",
		Type: command.TypeSetPower, Status: command.StatusExecuting,
	}
	done := &command.Command{
		ID: "cmd-done", DeviceID: "dev-1",
		Type: command.TypeSetPower, Status: command.StatusCompleted,
	}
	h.commands.commands[stuck.ID] = stuck
	h.commands.commands[done.ID] = done

	if err := h.manager.SweepAbandoned(ctx); err != nil {
		t.Fatalf("SweepAbandoned: %v", err)
	}
	if stuck.Status != command.StatusFailed {
		t.Errorf("stuck command = %s, want failed", stuck.Status)
	}
	if stuck.Error == nil || *stuck.Error != abandonedMessage {
		t.Errorf("stuck error = %v", stuck.Error)
	}
	if done.Status != command.StatusCompleted {
		t.Error("terminal command must not be touched by the sweep")
	}

	// Sweep disabled leaves everything alone.
	cfg := testControlConfig()
	cfg.SweepAbandonedOnStart = false
	h2 := newHarness(t, cfg)
	h2.commands.commands["c"] = &command.Command{ID: "c", Status: command.StatusPending}
	if err := h2.manager.SweepAbandoned(ctx); err != nil {
		t.Fatalf("SweepAbandoned: %v", err)
	}
	if h2.commands.commands["c"].Status != command.StatusPending {
		t.Error("disabled sweep must not modify commands")
	}
}
