package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// MockRepository is a test implementation of Repository.
type MockRepository struct {
	mu       sync.Mutex
	devices  map[string]*Device
	statuses map[string]*Status
	// For testing error paths
	createErr error
	updateErr error
	deleteErr error
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		devices:  make(map[string]*Device),
		statuses: make(map[string]*Status),
	}
}

func (m *MockRepository) GetByID(_ context.Context, id string) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d, ok := m.devices[id]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (m *MockRepository) GetBySerial(_ context.Context, serial string) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, d := range m.devices {
		if d.SerialNumber == serial {
			cp := *d
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MockRepository) List(_ context.Context) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	devices := make([]Device, 0, len(m.devices))
	for _, d := range m.devices {
		devices = append(devices, *d)
	}
	return devices, nil
}

func (m *MockRepository) ListByStatus(_ context.Context, status ConnectionStatus) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var devices []Device
	for _, d := range m.devices {
		if d.Status == status {
			devices = append(devices, *d)
		}
	}
	return devices, nil
}

func (m *MockRepository) ListByLocation(_ context.Context, locationID string) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var devices []Device
	for _, d := range m.devices {
		if d.LocationID != nil && *d.LocationID == locationID {
			devices = append(devices, *d)
		}
	}
	return devices, nil
}

func (m *MockRepository) Create(_ context.Context, d *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return m.createErr
	}
	for _, existing := range m.devices {
		if existing.SerialNumber == d.SerialNumber {
			return ErrDuplicateSerial
		}
	}
	cp := *d
	m.devices[d.ID] = &cp
	m.statuses[d.ID] = &Status{DeviceID: d.ID, Timestamp: time.Now()}
	return nil
}

func (m *MockRepository) Update(_ context.Context, d *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.devices[d.ID]; !ok {
		return ErrNotFound
	}
	cp := *d
	m.devices[d.ID] = &cp
	return nil
}

func (m *MockRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.devices[id]; !ok {
		return ErrNotFound
	}
	delete(m.devices, id)
	delete(m.statuses, id)
	return nil
}

func (m *MockRepository) UpdateConnectionStatus(_ context.Context, id string, status ConnectionStatus, seen time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.devices[id]
	if !ok {
		return ErrNotFound
	}
	d.Status = status
	s := seen
	d.LastSeen = &s
	return nil
}

func (m *MockRepository) GetStatus(_ context.Context, deviceID string) (*Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.statuses[deviceID]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (m *MockRepository) MergeStatus(_ context.Context, deviceID string, patch StatusPatch) (*Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.statuses[deviceID]
	if !ok {
		return nil, ErrNotFound
	}
	merged := applyPatch(*s, patch)
	now := time.Now()
	if now.After(merged.Timestamp) {
		merged.Timestamp = now
	}
	m.statuses[deviceID] = &merged
	cp := merged
	return &cp, nil
}

// MockModelRepository is a test implementation of ModelRepository.
type MockModelRepository struct {
	mu     sync.Mutex
	models map[string]*Model
	brands map[string]*Brand
}

func NewMockModelRepository() *MockModelRepository {
	return &MockModelRepository{
		models: make(map[string]*Model),
		brands: make(map[string]*Brand),
	}
}

func (m *MockModelRepository) GetModel(_ context.Context, id string) (*Model, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if mdl, ok := m.models[id]; ok {
		cp := *mdl
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (m *MockModelRepository) ListModels(_ context.Context) ([]Model, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	models := make([]Model, 0, len(m.models))
	for _, mdl := range m.models {
		models = append(models, *mdl)
	}
	return models, nil
}

func (m *MockModelRepository) ListModelsByBrand(_ context.Context, brandID string) ([]Model, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var models []Model
	for _, mdl := range m.models {
		if mdl.BrandID == brandID {
			models = append(models, *mdl)
		}
	}
	return models, nil
}

func (m *MockModelRepository) CreateModel(_ context.Context, mdl *Model) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *mdl
	m.models[mdl.ID] = &cp
	return nil
}

func (m *MockModelRepository) UpdateModel(_ context.Context, mdl *Model) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.models[mdl.ID]; !ok {
		return ErrNotFound
	}
	cp := *mdl
	m.models[mdl.ID] = &cp
	return nil
}

func (m *MockModelRepository) DeleteModel(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.models[id]; !ok {
		return ErrNotFound
	}
	delete(m.models, id)
	return nil
}

func (m *MockModelRepository) GetBrand(_ context.Context, id string) (*Brand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.brands[id]; ok {
		cp := *b
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (m *MockModelRepository) ListBrands(_ context.Context) ([]Brand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	brands := make([]Brand, 0, len(m.brands))
	for _, b := range m.brands {
		brands = append(brands, *b)
	}
	return brands, nil
}

func (m *MockModelRepository) CreateBrand(_ context.Context, b *Brand) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *b
	m.brands[b.ID] = &cp
	return nil
}

// newTestRegistry builds a registry with one mqtt model already present.
func newTestRegistry(t *testing.T) (*Registry, *MockRepository, *MockModelRepository) {
	t.Helper()
	repo := NewMockRepository()
	models := NewMockModelRepository()
	models.models["model-1"] = &Model{
		ID:             "model-1",
		BrandID:        "brand-1",
		Name:           "CoolFlow 3000",
		ProtocolType:   ProtocolMQTT,
		MinTemperature: 16,
		MaxTemperature: 30,
		ConnectionConfig: &ConnectionConfig{
			Broker: "mqtt://broker.local:1883",
		},
	}
	return NewRegistry(repo, models), repo, models
}

func testDevice(id, serial string) *Device {
	return &Device{
		ID:           id,
		ModelID:      "model-1",
		Name:         "Office Unit",
		SerialNumber: serial,
		Status:       StatusOffline,
	}
}

func TestRegistryCreateAndGet(t *testing.T) {
	ctx := context.Background()
	registry, _, _ := newTestRegistry(t)

	dev := testDevice("dev-1", "SN-0001")
	if err := registry.CreateDevice(ctx, dev); err != nil {
		t.Fatalf("CreateDevice: %v", err)
	}

	got, err := registry.GetDevice(ctx, "dev-1")
	if err != nil {
		t.Fatalf("GetDevice: %v", err)
	}
	if got.SerialNumber != "SN-0001" {
		t.Errorf("serial = %q, want SN-0001", got.SerialNumber)
	}

	// Mutating the returned copy must not leak into the cache.
	got.Name = "mutated"
	again, err := registry.GetDevice(ctx, "dev-1")
	if err != nil {
		t.Fatalf("GetDevice: %v", err)
	}
	if again.Name != "Office Unit" {
		t.Errorf("cache mutated through returned copy: name = %q", again.Name)
	}
}

func TestRegistryCreateGeneratesID(t *testing.T) {
	ctx := context.Background()
	registry, _, _ := newTestRegistry(t)

	dev := testDevice("", "SN-0002")
	if err := registry.CreateDevice(ctx, dev); err != nil {
		t.Fatalf("CreateDevice: %v", err)
	}
	if dev.ID == "" {
		t.Error("expected generated ID")
	}
}

func TestRegistryCreateUnknownModel(t *testing.T) {
	ctx := context.Background()
	registry, _, _ := newTestRegistry(t)

	dev := testDevice("dev-1", "SN-0003")
	dev.ModelID = "missing-model"
	err := registry.CreateDevice(ctx, dev)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRegistryCreateDuplicateSerial(t *testing.T) {
	ctx := context.Background()
	registry, _, _ := newTestRegistry(t)

	if err := registry.CreateDevice(ctx, testDevice("dev-1", "SN-0004")); err != nil {
		t.Fatalf("CreateDevice: %v", err)
	}
	err := registry.CreateDevice(ctx, testDevice("dev-2", "SN-0004"))
	if !errors.Is(err, ErrDuplicateSerial) {
		t.Errorf("expected ErrDuplicateSerial, got %v", err)
	}
}

func TestRegistryGetDeviceModel(t *testing.T) {
	ctx := context.Background()
	registry, _, _ := newTestRegistry(t)

	if err := registry.CreateDevice(ctx, testDevice("dev-1", "SN-0005")); err != nil {
		t.Fatalf("CreateDevice: %v", err)
	}

	dev, model, err := registry.GetDeviceModel(ctx, "dev-1")
	if err != nil {
		t.Fatalf("GetDeviceModel: %v", err)
	}
	if dev.ID != "dev-1" || model.ID != "model-1" {
		t.Errorf("got device %q model %q", dev.ID, model.ID)
	}
	if !model.HasProtocol() {
		t.Error("expected model to report protocol configured")
	}
}

func TestRegistryListOnlineDevices(t *testing.T) {
	ctx := context.Background()
	registry, _, _ := newTestRegistry(t)

	online := testDevice("dev-1", "SN-0006")
	online.Status = StatusOnline
	offline := testDevice("dev-2", "SN-0007")

	if err := registry.CreateDevice(ctx, online); err != nil {
		t.Fatalf("CreateDevice: %v", err)
	}
	if err := registry.CreateDevice(ctx, offline); err != nil {
		t.Fatalf("CreateDevice: %v", err)
	}

	devices, err := registry.ListOnlineDevices(ctx)
	if err != nil {
		t.Fatalf("ListOnlineDevices: %v", err)
	}
	if len(devices) != 1 || devices[0].ID != "dev-1" {
		t.Errorf("expected only dev-1 online, got %v", devices)
	}
}

func TestRegistryMarkConnectionStatus(t *testing.T) {
	ctx := context.Background()
	registry, _, _ := newTestRegistry(t)

	if err := registry.CreateDevice(ctx, testDevice("dev-1", "SN-0008")); err != nil {
		t.Fatalf("CreateDevice: %v", err)
	}

	seen := time.Now()
	if err := registry.MarkConnectionStatus(ctx, "dev-1", StatusOnline, seen); err != nil {
		t.Fatalf("MarkConnectionStatus: %v", err)
	}

	got, err := registry.GetDevice(ctx, "dev-1")
	if err != nil {
		t.Fatalf("GetDevice: %v", err)
	}
	if got.Status != StatusOnline {
		t.Errorf("status = %q, want online", got.Status)
	}
	if got.LastSeen == nil {
		t.Error("expected last seen to be set")
	}

	if err := registry.MarkConnectionStatus(ctx, "dev-1", ConnectionStatus("bogus"), seen); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestRegistryDeleteDevice(t *testing.T) {
	ctx := context.Background()
	registry, _, _ := newTestRegistry(t)

	if err := registry.CreateDevice(ctx, testDevice("dev-1", "SN-0009")); err != nil {
		t.Fatalf("CreateDevice: %v", err)
	}
	if err := registry.DeleteDevice(ctx, "dev-1"); err != nil {
		t.Fatalf("DeleteDevice: %v", err)
	}
	if _, err := registry.GetDevice(ctx, "dev-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestRegistryMergeStatus(t *testing.T) {
	ctx := context.Background()
	registry, _, _ := newTestRegistry(t)

	if err := registry.CreateDevice(ctx, testDevice("dev-1", "SN-0010")); err != nil {
		t.Fatalf("CreateDevice: %v", err)
	}

	temp := 22.5
	power := true
	status, err := registry.MergeStatus(ctx, "dev-1", StatusPatch{
		Temperature: &temp,
		PowerState:  &power,
	})
	if err != nil {
		t.Fatalf("MergeStatus: %v", err)
	}
	if status.Temperature == nil || *status.Temperature != 22.5 {
		t.Errorf("temperature not merged: %v", status.Temperature)
	}
	if !status.PowerState {
		t.Error("power state not merged")
	}

	// A second patch leaves untouched fields alone.
	mode := ModeCool
	status, err = registry.MergeStatus(ctx, "dev-1", StatusPatch{Mode: &mode})
	if err != nil {
		t.Fatalf("MergeStatus: %v", err)
	}
	if status.Temperature == nil || *status.Temperature != 22.5 {
		t.Error("temperature lost by unrelated patch")
	}
	if status.Mode == nil || *status.Mode != ModeCool {
		t.Errorf("mode not merged: %v", status.Mode)
	}
}
