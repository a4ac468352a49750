package adapter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/climalink/climalink-core/internal/device"
)

// Registry holds at most one live adapter per device. Creation is
// serialized per device id: concurrent callers asking for the same
// device share one build-and-connect attempt, and a device can never
// end up with two competing transport sessions.
//
// An adapter enters the map only after its Connect succeeds, so a
// cached adapter is always one that was live at creation time.
type Registry struct {
	factory FactoryFunc
	logger  Logger

	group singleflight.Group

	mu       sync.RWMutex
	adapters map[string]Adapter
	closed   bool
}

// NewRegistry creates an adapter registry.
func NewRegistry(factory FactoryFunc, logger Logger) *Registry {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Registry{
		factory:  factory,
		logger:   logger,
		adapters: make(map[string]Adapter),
	}
}

// GetOrCreate returns the live adapter for a device, building and
// connecting one if none exists. Concurrent calls for the same device
// id collapse into a single attempt; a failed attempt caches nothing,
// so the next call retries.
func (r *Registry) GetOrCreate(ctx context.Context, dev *device.Device, model *device.Model) (Adapter, error) {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, ErrRegistryClosed
	}
	if a, ok := r.adapters[dev.ID]; ok {
		r.mu.RUnlock()
		return a, nil
	}
	r.mu.RUnlock()

	v, err, _ := r.group.Do(dev.ID, func() (any, error) {
		// A concurrent caller may have won the race before this
		// flight started.
		r.mu.RLock()
		if r.closed {
			r.mu.RUnlock()
			return nil, ErrRegistryClosed
		}
		if a, ok := r.adapters[dev.ID]; ok {
			r.mu.RUnlock()
			return a, nil
		}
		r.mu.RUnlock()

		a, err := r.factory(dev, model)
		if err != nil {
			return nil, err
		}
		if err := a.Connect(ctx); err != nil {
			return nil, err
		}

		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			a.Disconnect() //nolint:errcheck // best effort during shutdown race
			return nil, ErrRegistryClosed
		}
		r.adapters[dev.ID] = a
		r.mu.Unlock()

		r.logger.Info("adapter registered",
			"device_id", dev.ID, "protocol", model.ProtocolType)
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Adapter), nil
}

// Get returns the cached adapter for a device, if any.
func (r *Registry) Get(deviceID string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[deviceID]
	return a, ok
}

// Remove disconnects and drops the adapter for a device. Removing a
// device with no adapter is a no-op.
func (r *Registry) Remove(deviceID string) error {
	r.mu.Lock()
	a, ok := r.adapters[deviceID]
	delete(r.adapters, deviceID)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	if err := a.Disconnect(); err != nil {
		return fmt.Errorf("disconnecting adapter for %s: %w", deviceID, err)
	}
	r.logger.Info("adapter removed", "device_id", deviceID)
	return nil
}

// Len returns the number of live adapters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}

// ShutdownAll disconnects every adapter concurrently and closes the
// registry to further creation. Individual disconnect failures are
// collected rather than aborting the sweep; every adapter gets its
// disconnect attempt.
func (r *Registry) ShutdownAll(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	adapters := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		adapters = append(adapters, a)
	}
	r.adapters = make(map[string]Adapter)
	r.mu.Unlock()

	errCh := make(chan error, len(adapters))
	var wg sync.WaitGroup
	for _, a := range adapters {
		wg.Add(1)
		go func(a Adapter) {
			defer wg.Done()
			if err := a.Disconnect(); err != nil {
				errCh <- fmt.Errorf("device %s: %w", a.DeviceID(), err)
			}
		}(a)
	}
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	r.logger.Info("adapter registry shut down",
		"adapters", len(adapters), "errors", len(errs))
	return errors.Join(errs...)
}
