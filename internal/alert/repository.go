package alert

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository defines persistence operations for alerts.
type Repository interface {
	// GetByID retrieves an alert by its unique identifier.
	GetByID(ctx context.Context, id string) (*Alert, error)

	// ListOpen retrieves all unresolved alerts, newest first.
	ListOpen(ctx context.Context) ([]Alert, error)

	// ListByDevice retrieves all alerts for a device, newest first.
	ListByDevice(ctx context.Context, deviceID string) ([]Alert, error)

	// HasOpen reports whether the device already has an unresolved
	// alert of the given type.
	HasOpen(ctx context.Context, deviceID string, typ Type) (bool, error)

	// Create inserts a new alert.
	Create(ctx context.Context, a *Alert) error

	// Acknowledge marks an alert acknowledged by a user.
	Acknowledge(ctx context.Context, id, userID string) error

	// Resolve marks an alert resolved. Resolving also covers every
	// older open alert of the same device and type.
	Resolve(ctx context.Context, deviceID string, typ Type) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a new SQLite-backed alert repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

const alertColumns = `id, device_id, alert_type, severity, message, metadata,
		acknowledged, acknowledged_by, acknowledged_at, resolved, resolved_at, created_at`

// GetByID retrieves an alert by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Alert, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id)
	a, err := scanAlertRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying alert: %w", errors.Join(ErrStorage, err))
	}
	return a, nil
}

// ListOpen retrieves all unresolved alerts, newest first.
func (r *SQLiteRepository) ListOpen(ctx context.Context) ([]Alert, error) {
	return r.queryAlerts(ctx, `
		SELECT `+alertColumns+` FROM alerts
		WHERE resolved = 0
		ORDER BY created_at DESC`)
}

// ListByDevice retrieves all alerts for a device, newest first.
func (r *SQLiteRepository) ListByDevice(ctx context.Context, deviceID string) ([]Alert, error) {
	return r.queryAlerts(ctx, `
		SELECT `+alertColumns+` FROM alerts
		WHERE device_id = ?
		ORDER BY created_at DESC`, deviceID)
}

// HasOpen reports whether an unresolved alert of the type exists.
func (r *SQLiteRepository) HasOpen(ctx context.Context, deviceID string, typ Type) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM alerts
		WHERE device_id = ? AND alert_type = ? AND resolved = 0`,
		deviceID, string(typ)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking open alerts: %w", errors.Join(ErrStorage, err))
	}
	return count > 0, nil
}

// Create inserts a new alert.
func (r *SQLiteRepository) Create(ctx context.Context, a *Alert) error {
	a.CreatedAt = r.now().UTC()
	if a.Severity == "" {
		a.Severity = SeverityWarning
	}

	var metadata sql.NullString
	if len(a.Metadata) > 0 {
		metadata = sql.NullString{String: string(a.Metadata), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO alerts (id, device_id, alert_type, severity, message,
			metadata, acknowledged, acknowledged_by, acknowledged_at,
			resolved, resolved_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, NULL, NULL, 0, NULL, ?)`,
		a.ID,
		a.DeviceID,
		string(a.Type),
		string(a.Severity),
		a.Message,
		metadata,
		a.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting alert: %w", errors.Join(ErrStorage, err))
	}
	return nil
}

// Acknowledge marks an alert acknowledged by a user.
func (r *SQLiteRepository) Acknowledge(ctx context.Context, id, userID string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE alerts
		SET acknowledged = 1, acknowledged_by = ?, acknowledged_at = ?
		WHERE id = ? AND acknowledged = 0`,
		userID,
		r.now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("acknowledging alert: %w", errors.Join(ErrStorage, err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", errors.Join(ErrStorage, err))
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Resolve closes every open alert of the type for a device.
func (r *SQLiteRepository) Resolve(ctx context.Context, deviceID string, typ Type) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE alerts
		SET resolved = 1, resolved_at = ?
		WHERE device_id = ? AND alert_type = ? AND resolved = 0`,
		r.now().UTC().Format(time.RFC3339),
		deviceID,
		string(typ),
	)
	if err != nil {
		return fmt.Errorf("resolving alerts: %w", errors.Join(ErrStorage, err))
	}
	return nil
}

func (r *SQLiteRepository) queryAlerts(ctx context.Context, query string, args ...any) ([]Alert, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying alerts: %w", errors.Join(ErrStorage, err))
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		a, err := scanAlertRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning alert: %w", errors.Join(ErrStorage, err))
		}
		alerts = append(alerts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating alerts: %w", errors.Join(ErrStorage, err))
	}
	return alerts, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanAlertRow scans a row or rows result into an Alert.
func scanAlertRow(scanner rowScanner) (*Alert, error) {
	var a Alert
	var typ, severity, createdAt string
	var metadata, acknowledgedBy, acknowledgedAt, resolvedAt sql.NullString
	var acknowledged, resolved int

	err := scanner.Scan(
		&a.ID,
		&a.DeviceID,
		&typ,
		&severity,
		&a.Message,
		&metadata,
		&acknowledged,
		&acknowledgedBy,
		&acknowledgedAt,
		&resolved,
		&resolvedAt,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	a.Type = Type(typ)
	a.Severity = Severity(severity)
	a.Acknowledged = acknowledged != 0
	a.Resolved = resolved != 0

	if metadata.Valid {
		a.Metadata = []byte(metadata.String)
	}
	if acknowledgedBy.Valid {
		a.AcknowledgedBy = &acknowledgedBy.String
	}
	if acknowledgedAt.Valid {
		t, err := time.Parse(time.RFC3339, acknowledgedAt.String)
		if err == nil {
			a.AcknowledgedAt = &t
		}
	}
	if resolvedAt.Valid {
		t, err := time.Parse(time.RFC3339, resolvedAt.String)
		if err == nil {
			a.ResolvedAt = &t
		}
	}

	var parseErr error
	a.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}

	return &a, nil
}
