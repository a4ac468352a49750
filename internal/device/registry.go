package device

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
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

// Registry provides device management with caching and thread safety.
// It wraps the device and model repositories and adds an in-memory cache
// for the hot read path (every command and every reconciliation pass
// resolves a device and its model).
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by cache-invalidating CRUD operations.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	models  ModelRepository
	cache   map[string]*Device // Cached devices by ID
	cacheMu sync.RWMutex       // Protects cache
	logger  Logger
}

// NewRegistry creates a new device registry.
func NewRegistry(repo Repository, models ModelRepository) *Registry {
	return &Registry{
		repo:   repo,
		models: models,
		cache:  make(map[string]*Device),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all devices from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*Device, len(devices))
	for i := range devices {
		d := devices[i]
		r.cache[d.ID] = d.DeepCopy()
	}

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// GetDevice retrieves a device by ID.
// Returns ErrNotFound if the device does not exist.
// The returned device is a deep copy; callers can safely modify it.
func (r *Registry) GetDevice(ctx context.Context, id string) (*Device, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()

	if ok {
		return cached.DeepCopy(), nil
	}

	// Fall back to repository (might be a new device not yet cached)
	d, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[d.ID] = d.DeepCopy()
	r.cacheMu.Unlock()

	return d, nil
}

// GetDeviceModel resolves a device together with its model. This is the
// lookup every command dispatch performs, so the device side is served
// from cache where possible.
func (r *Registry) GetDeviceModel(ctx context.Context, id string) (*Device, *Model, error) {
	d, err := r.GetDevice(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	m, err := r.models.GetModel(ctx, d.ModelID)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving model %s for device %s: %w", d.ModelID, d.ID, err)
	}
	return d, m, nil
}

// ListDevices retrieves all devices.
// The returned devices are deep copies; callers can safely modify them.
func (r *Registry) ListDevices(ctx context.Context) ([]Device, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	if len(r.cache) > 0 {
		devices := make([]Device, 0, len(r.cache))
		for _, d := range r.cache {
			devices = append(devices, *d.DeepCopy())
		}
		return devices, nil
	}

	return r.repo.List(ctx)
}

// ListOnlineDevices retrieves all devices currently marked online. The
// reconciliation loop calls this every pass.
func (r *Registry) ListOnlineDevices(ctx context.Context) ([]Device, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	if len(r.cache) > 0 {
		var devices []Device
		for _, d := range r.cache {
			if d.Status == StatusOnline {
				devices = append(devices, *d.DeepCopy())
			}
		}
		return devices, nil
	}

	return r.repo.ListByStatus(ctx, StatusOnline)
}

// ListDevicesByLocation retrieves all devices assigned to a location.
func (r *Registry) ListDevicesByLocation(ctx context.Context, locationID string) ([]Device, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	if len(r.cache) > 0 {
		var devices []Device
		for _, d := range r.cache {
			if d.LocationID != nil && *d.LocationID == locationID {
				devices = append(devices, *d.DeepCopy())
			}
		}
		return devices, nil
	}

	return r.repo.ListByLocation(ctx, locationID)
}

// CreateDevice creates a new device.
// It validates the device, generates an ID if needed, verifies the model
// exists, and persists it.
func (r *Registry) CreateDevice(ctx context.Context, d *Device) error {
	if d.ID == "" {
		d.ID = GenerateID()
	}
	if d.Status == "" {
		d.Status = StatusOffline
	}

	if err := ValidateDevice(d); err != nil {
		return err
	}
	if _, err := r.models.GetModel(ctx, d.ModelID); err != nil {
		return fmt.Errorf("resolving model %s: %w", d.ModelID, err)
	}

	if err := r.repo.Create(ctx, d); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[d.ID] = d.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("device created", "id", d.ID, "name", d.Name, "serial", d.SerialNumber)
	return nil
}

// UpdateDevice updates an existing device.
func (r *Registry) UpdateDevice(ctx context.Context, d *Device) error {
	if err := ValidateDevice(d); err != nil {
		return err
	}

	if err := r.repo.Update(ctx, d); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[d.ID] = d.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("device updated", "id", d.ID, "name", d.Name)
	return nil
}

// DeleteDevice removes a device.
func (r *Registry) DeleteDevice(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, id)
	r.cacheMu.Unlock()

	r.logger.Info("device deleted", "id", id)
	return nil
}

// MarkConnectionStatus records a liveness transition observed by the
// adapter layer or the reconciliation loop.
func (r *Registry) MarkConnectionStatus(ctx context.Context, id string, status ConnectionStatus, seen time.Time) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown connection status %q", ErrInvalidDevice, status)
	}
	if err := r.repo.UpdateConnectionStatus(ctx, id, status, seen); err != nil {
		return err
	}

	r.cacheMu.Lock()
	if cached, ok := r.cache[id]; ok {
		cached.Status = status
		s := seen
		cached.LastSeen = &s
	}
	r.cacheMu.Unlock()

	return nil
}

// GetStatus retrieves the current status snapshot for a device. Status
// rows are not cached; they change on every reconciliation pass.
func (r *Registry) GetStatus(ctx context.Context, deviceID string) (*Status, error) {
	return r.repo.GetStatus(ctx, deviceID)
}

// MergeStatus applies a partial status update for a device.
func (r *Registry) MergeStatus(ctx context.Context, deviceID string, patch StatusPatch) (*Status, error) {
	return r.repo.MergeStatus(ctx, deviceID, patch)
}

// DeepCopy returns a copy of the device with no shared pointers.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	out := *d
	out.LocationID = copyStringPtr(d.LocationID)
	out.IPAddress = copyStringPtr(d.IPAddress)
	if d.LastSeen != nil {
		t := *d.LastSeen
		out.LastSeen = &t
	}
	return &out
}

func copyStringPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
