package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines persistence operations for devices and their status
// snapshots. The abstraction allows different implementations (SQLite,
// mock, etc.) and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a device by its unique identifier.
	// Returns ErrNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// GetBySerial retrieves a device by its serial number.
	GetBySerial(ctx context.Context, serial string) (*Device, error)

	// List retrieves all devices ordered by name.
	List(ctx context.Context) ([]Device, error)

	// ListByStatus retrieves all devices with the given connection status.
	ListByStatus(ctx context.Context, status ConnectionStatus) ([]Device, error)

	// ListByLocation retrieves all devices assigned to a location.
	ListByLocation(ctx context.Context, locationID string) ([]Device, error)

	// Create inserts a new device and its initial empty status snapshot
	// in a single transaction.
	// Returns ErrDuplicateSerial if the serial number is taken.
	Create(ctx context.Context, d *Device) error

	// Update modifies an existing device.
	// Returns ErrNotFound if the device does not exist.
	Update(ctx context.Context, d *Device) error

	// Delete removes a device by ID. The status snapshot is removed by
	// the ON DELETE CASCADE constraint.
	Delete(ctx context.Context, id string) error

	// UpdateConnectionStatus updates the coarse liveness state and the
	// last-seen timestamp.
	UpdateConnectionStatus(ctx context.Context, id string, status ConnectionStatus, seen time.Time) error

	// GetStatus retrieves the current status snapshot for a device.
	GetStatus(ctx context.Context, deviceID string) (*Status, error)

	// MergeStatus applies a partial status update. Nil patch fields keep
	// their stored values; the snapshot timestamp is advanced to now but
	// never rolled backwards.
	MergeStatus(ctx context.Context, deviceID string, patch StatusPatch) (*Status, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a new SQLite-backed device repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

const deviceColumns = `id, model_id, location_id, name, serial_number, ip_address,
		simulated, status, last_seen, created_at, updated_at`

// GetByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	d, err := scanDeviceRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", errors.Join(ErrStorage, err))
	}
	return d, nil
}

// GetBySerial retrieves a device by its serial number.
func (r *SQLiteRepository) GetBySerial(ctx context.Context, serial string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE serial_number = ?`

	row := r.db.QueryRowContext(ctx, query, serial)
	d, err := scanDeviceRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying device by serial: %w", errors.Join(ErrStorage, err))
	}
	return d, nil
}

// List retrieves all devices ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices ORDER BY name`
	return r.queryDevices(ctx, query)
}

// ListByStatus retrieves all devices with the given connection status.
func (r *SQLiteRepository) ListByStatus(ctx context.Context, status ConnectionStatus) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE status = ? ORDER BY name`
	return r.queryDevices(ctx, query, string(status))
}

// ListByLocation retrieves all devices assigned to a location.
func (r *SQLiteRepository) ListByLocation(ctx context.Context, locationID string) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE location_id = ? ORDER BY name`
	return r.queryDevices(ctx, query, locationID)
}

// Create inserts a new device and its initial empty status snapshot in a
// single transaction so a device can never exist without a snapshot row.
func (r *SQLiteRepository) Create(ctx context.Context, d *Device) error {
	now := r.now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
	if d.Status == "" {
		d.Status = StatusOffline
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning device create: %w", errors.Join(ErrStorage, err))
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	_, err = tx.ExecContext(ctx, `
		INSERT INTO devices (id, model_id, location_id, name, serial_number,
			ip_address, simulated, status, last_seen, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID,
		d.ModelID,
		nullableString(d.LocationID),
		d.Name,
		d.SerialNumber,
		nullableString(d.IPAddress),
		boolToInt(d.Simulated),
		string(d.Status),
		nullableTime(d.LastSeen),
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateSerial
		}
		return fmt.Errorf("inserting device: %w", errors.Join(ErrStorage, err))
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO device_status (device_id, power_state, is_online, timestamp)
		VALUES (?, 0, 0, ?)`,
		d.ID,
		now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting device status: %w", errors.Join(ErrStorage, err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing device create: %w", errors.Join(ErrStorage, err))
	}
	return nil
}

// Update modifies an existing device.
func (r *SQLiteRepository) Update(ctx context.Context, d *Device) error {
	d.UpdatedAt = r.now().UTC()

	result, err := r.db.ExecContext(ctx, `
		UPDATE devices
		SET model_id = ?, location_id = ?, name = ?, serial_number = ?,
			ip_address = ?, simulated = ?, status = ?, last_seen = ?, updated_at = ?
		WHERE id = ?`,
		d.ModelID,
		nullableString(d.LocationID),
		d.Name,
		d.SerialNumber,
		nullableString(d.IPAddress),
		boolToInt(d.Simulated),
		string(d.Status),
		nullableTime(d.LastSeen),
		d.UpdatedAt.Format(time.RFC3339),
		d.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateSerial
		}
		return fmt.Errorf("updating device: %w", errors.Join(ErrStorage, err))
	}
	return requireRowAffected(result)
}

// Delete removes a device by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", errors.Join(ErrStorage, err))
	}
	return requireRowAffected(result)
}

// UpdateConnectionStatus updates liveness state and last-seen timestamp.
func (r *SQLiteRepository) UpdateConnectionStatus(ctx context.Context, id string, status ConnectionStatus, seen time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE devices
		SET status = ?, last_seen = ?, updated_at = ?
		WHERE id = ?`,
		string(status),
		seen.UTC().Format(time.RFC3339),
		r.now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating device connection status: %w", errors.Join(ErrStorage, err))
	}
	return requireRowAffected(result)
}

// GetStatus retrieves the current status snapshot for a device.
func (r *SQLiteRepository) GetStatus(ctx context.Context, deviceID string) (*Status, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT device_id, temperature, target_temperature, humidity, mode,
			fan_speed, power_state, is_online, error_code, timestamp
		FROM device_status
		WHERE device_id = ?`,
		deviceID,
	)
	s, err := scanStatusRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying device status: %w", errors.Join(ErrStorage, err))
	}
	return s, nil
}

// MergeStatus applies a partial status update inside a transaction.
// Concurrent writers win by arrival order (last write wins per field), but
// the snapshot timestamp only ever moves forwards.
func (r *SQLiteRepository) MergeStatus(ctx context.Context, deviceID string, patch StatusPatch) (*Status, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning status merge: %w", errors.Join(ErrStorage, err))
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	row := tx.QueryRowContext(ctx, `
		SELECT device_id, temperature, target_temperature, humidity, mode,
			fan_speed, power_state, is_online, error_code, timestamp
		FROM device_status
		WHERE device_id = ?`,
		deviceID,
	)
	current, err := scanStatusRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading status for merge: %w", errors.Join(ErrStorage, err))
	}

	merged := applyPatch(*current, patch)
	now := r.now().UTC()
	if now.After(merged.Timestamp) {
		merged.Timestamp = now
	}

	var modeStr, fanStr *string
	if merged.Mode != nil {
		s := string(*merged.Mode)
		modeStr = &s
	}
	if merged.FanSpeed != nil {
		s := string(*merged.FanSpeed)
		fanStr = &s
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE device_status
		SET temperature = ?, target_temperature = ?, humidity = ?, mode = ?,
			fan_speed = ?, power_state = ?, is_online = ?, error_code = ?,
			timestamp = ?
		WHERE device_id = ?`,
		nullableFloat(merged.Temperature),
		nullableFloat(merged.TargetTemperature),
		nullableFloat(merged.Humidity),
		nullableString(modeStr),
		nullableString(fanStr),
		boolToInt(merged.PowerState),
		boolToInt(merged.IsOnline),
		nullableString(merged.ErrorCode),
		merged.Timestamp.Format(time.RFC3339),
		deviceID,
	)
	if err != nil {
		return nil, fmt.Errorf("writing merged status: %w", errors.Join(ErrStorage, err))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing status merge: %w", errors.Join(ErrStorage, err))
	}
	return &merged, nil
}

// applyPatch overlays set patch fields onto a status snapshot.
func applyPatch(s Status, p StatusPatch) Status {
	if p.Temperature != nil {
		s.Temperature = p.Temperature
	}
	if p.TargetTemperature != nil {
		s.TargetTemperature = p.TargetTemperature
	}
	if p.Humidity != nil {
		s.Humidity = p.Humidity
	}
	if p.Mode != nil {
		s.Mode = p.Mode
	}
	if p.FanSpeed != nil {
		s.FanSpeed = p.FanSpeed
	}
	if p.PowerState != nil {
		s.PowerState = *p.PowerState
	}
	if p.IsOnline != nil {
		s.IsOnline = *p.IsOnline
	}
	if p.ErrorCode != nil {
		if *p.ErrorCode == "" {
			s.ErrorCode = nil
		} else {
			s.ErrorCode = p.ErrorCode
		}
	}
	return s
}

// queryDevices runs a multi-row device query.
func (r *SQLiteRepository) queryDevices(ctx context.Context, query string, args ...any) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", errors.Join(ErrStorage, err))
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDeviceRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", errors.Join(ErrStorage, err))
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", errors.Join(ErrStorage, err))
	}
	return devices, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanDeviceRow scans a row or rows result into a Device.
func scanDeviceRow(scanner rowScanner) (*Device, error) {
	var d Device
	var locationID, ipAddress sql.NullString
	var lastSeen sql.NullString
	var simulated int
	var status string
	var createdAt, updatedAt string

	err := scanner.Scan(
		&d.ID,
		&d.ModelID,
		&locationID,
		&d.Name,
		&d.SerialNumber,
		&ipAddress,
		&simulated,
		&status,
		&lastSeen,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Status = ConnectionStatus(status)
	d.Simulated = simulated != 0

	if locationID.Valid {
		d.LocationID = &locationID.String
	}
	if ipAddress.Valid {
		d.IPAddress = &ipAddress.String
	}
	if lastSeen.Valid {
		t, err := time.Parse(time.RFC3339, lastSeen.String)
		if err == nil {
			d.LastSeen = &t
		}
	}

	var parseErr error
	d.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	d.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	return &d, nil
}

// scanStatusRow scans a row or rows result into a Status.
func scanStatusRow(scanner rowScanner) (*Status, error) {
	var s Status
	var temperature, targetTemp, humidity sql.NullFloat64
	var mode, fanSpeed, errorCode sql.NullString
	var powerState, isOnline int
	var timestamp string

	err := scanner.Scan(
		&s.DeviceID,
		&temperature,
		&targetTemp,
		&humidity,
		&mode,
		&fanSpeed,
		&powerState,
		&isOnline,
		&errorCode,
		&timestamp,
	)
	if err != nil {
		return nil, err
	}

	s.PowerState = powerState != 0
	s.IsOnline = isOnline != 0

	if temperature.Valid {
		s.Temperature = &temperature.Float64
	}
	if targetTemp.Valid {
		s.TargetTemperature = &targetTemp.Float64
	}
	if humidity.Valid {
		s.Humidity = &humidity.Float64
	}
	if mode.Valid {
		m := Mode(mode.String)
		s.Mode = &m
	}
	if fanSpeed.Valid {
		f := FanSpeed(fanSpeed.String)
		s.FanSpeed = &f
	}
	if errorCode.Valid {
		s.ErrorCode = &errorCode.String
	}

	var parseErr error
	s.Timestamp, parseErr = time.Parse(time.RFC3339, timestamp)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing timestamp: %w", parseErr)
	}

	return &s, nil
}

// requireRowAffected maps a zero-row UPDATE or DELETE to ErrNotFound.
func requireRowAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", errors.Join(ErrStorage, err))
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// nullableString returns a sql.NullString for optional string pointers.
func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullableTime returns a sql.NullString for optional time pointers (as RFC3339 strings).
func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

// nullableFloat returns a sql.NullFloat64 for optional float pointers.
func nullableFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

// nullableBytes returns a sql.NullString for optional byte slices.
func nullableBytes(b []byte) sql.NullString {
	if b == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

// boolToInt converts a boolean to 0/1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
