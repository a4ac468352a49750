// Package device provides the device catalogue for ClimaLink Core.
//
// The catalogue covers the full hardware taxonomy: brands, the models
// they sell, the physical units installed in the field, and the location
// tree units are assigned to. Each device also carries a 1:1 status
// snapshot holding the last known readings and settings.
//
// # Key Types
//
//   - Device: a physical air-conditioning unit under management
//   - Model: a product line defining protocol and connection configuration
//   - Brand: a manufacturer
//   - Location: a node in the building hierarchy
//   - Status / StatusPatch: the current snapshot and partial updates to it
//   - ConnectionConfig: protocol settings handed to the adapter layer
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db)
//	models := device.NewSQLiteModelRepository(db)
//	registry := device.NewRegistry(repo, models)
//	registry.SetLogger(log)
//
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	dev, model, err := registry.GetDeviceModel(ctx, deviceID)
//
// # Thread Safety
//
// The Registry is safe for concurrent use. All cache operations are
// protected by a read-write mutex. The SQLite repositories rely on
// database/sql connection pooling and are safe for concurrent use.
package device
