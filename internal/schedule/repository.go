package schedule

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/climalink/climalink-core/internal/command"
)

// Repository defines persistence operations for schedules.
type Repository interface {
	// GetByID retrieves a schedule by its unique identifier.
	GetByID(ctx context.Context, id string) (*Schedule, error)

	// ListByDevice retrieves all schedules for a device.
	ListByDevice(ctx context.Context, deviceID string) ([]Schedule, error)

	// ListDue retrieves enabled schedules whose next execution is at or
	// before now.
	ListDue(ctx context.Context, now time.Time) ([]Schedule, error)

	// Create inserts a new schedule.
	Create(ctx context.Context, s *Schedule) error

	// Update modifies an existing schedule.
	Update(ctx context.Context, s *Schedule) error

	// Delete removes a schedule by ID.
	Delete(ctx context.Context, id string) error

	// MarkExecuted records one execution and the next due time.
	MarkExecuted(ctx context.Context, id string, executed, next time.Time) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a new SQLite-backed schedule repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

const scheduleColumns = `id, device_id, name, enabled, cron_expr, command_type,
		parameters, last_executed, next_execution, created_at, updated_at`

// GetByID retrieves a schedule by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Schedule, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)
	s, err := scanScheduleRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying schedule: %w", errors.Join(ErrStorage, err))
	}
	return s, nil
}

// ListByDevice retrieves all schedules for a device.
func (r *SQLiteRepository) ListByDevice(ctx context.Context, deviceID string) ([]Schedule, error) {
	return r.querySchedules(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE device_id = ? ORDER BY name`,
		deviceID)
}

// ListDue retrieves enabled schedules due at or before now.
func (r *SQLiteRepository) ListDue(ctx context.Context, now time.Time) ([]Schedule, error) {
	return r.querySchedules(ctx, `
		SELECT `+scheduleColumns+`
		FROM schedules
		WHERE enabled = 1 AND next_execution IS NOT NULL AND next_execution <= ?
		ORDER BY next_execution`,
		now.UTC().Format(time.RFC3339))
}

// Create inserts a new schedule.
func (r *SQLiteRepository) Create(ctx context.Context, s *Schedule) error {
	now := r.now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now

	paramsJSON, err := json.Marshal(s.Params)
	if err != nil {
		return fmt.Errorf("encoding parameters: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO schedules (id, device_id, name, enabled, cron_expr,
			command_type, parameters, last_executed, next_execution,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID,
		s.DeviceID,
		s.Name,
		boolToInt(s.Enabled),
		s.CronExpr,
		string(s.CommandType),
		string(paramsJSON),
		nullableTime(s.LastExecuted),
		nullableTime(s.NextExecution),
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting schedule: %w", errors.Join(ErrStorage, err))
	}
	return nil
}

// Update modifies an existing schedule.
func (r *SQLiteRepository) Update(ctx context.Context, s *Schedule) error {
	s.UpdatedAt = r.now().UTC()

	paramsJSON, err := json.Marshal(s.Params)
	if err != nil {
		return fmt.Errorf("encoding parameters: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE schedules
		SET device_id = ?, name = ?, enabled = ?, cron_expr = ?,
			command_type = ?, parameters = ?, last_executed = ?,
			next_execution = ?, updated_at = ?
		WHERE id = ?`,
		s.DeviceID,
		s.Name,
		boolToInt(s.Enabled),
		s.CronExpr,
		string(s.CommandType),
		string(paramsJSON),
		nullableTime(s.LastExecuted),
		nullableTime(s.NextExecution),
		s.UpdatedAt.Format(time.RFC3339),
		s.ID,
	)
	if err != nil {
		return fmt.Errorf("updating schedule: %w", errors.Join(ErrStorage, err))
	}
	return requireRowAffected(result)
}

// Delete removes a schedule by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM schedules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting schedule: %w", errors.Join(ErrStorage, err))
	}
	return requireRowAffected(result)
}

// MarkExecuted records one execution and the next due time.
func (r *SQLiteRepository) MarkExecuted(ctx context.Context, id string, executed, next time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE schedules
		SET last_executed = ?, next_execution = ?, updated_at = ?
		WHERE id = ?`,
		executed.UTC().Format(time.RFC3339),
		next.UTC().Format(time.RFC3339),
		r.now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("marking schedule executed: %w", errors.Join(ErrStorage, err))
	}
	return requireRowAffected(result)
}

func (r *SQLiteRepository) querySchedules(ctx context.Context, query string, args ...any) ([]Schedule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying schedules: %w", errors.Join(ErrStorage, err))
	}
	defer rows.Close()

	var schedules []Schedule
	for rows.Next() {
		s, err := scanScheduleRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning schedule: %w", errors.Join(ErrStorage, err))
		}
		schedules = append(schedules, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating schedules: %w", errors.Join(ErrStorage, err))
	}
	return schedules, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanScheduleRow scans a row or rows result into a Schedule.
func scanScheduleRow(scanner rowScanner) (*Schedule, error) {
	var s Schedule
	var enabled int
	var cmdType, paramsJSON, createdAt, updatedAt string
	var lastExecuted, nextExecution sql.NullString

	err := scanner.Scan(
		&s.ID,
		&s.DeviceID,
		&s.Name,
		&enabled,
		&s.CronExpr,
		&cmdType,
		&paramsJSON,
		&lastExecuted,
		&nextExecution,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Enabled = enabled != 0
	s.CommandType = command.Type(cmdType)

	if lastExecuted.Valid {
		t, err := time.Parse(time.RFC3339, lastExecuted.String)
		if err == nil {
			s.LastExecuted = &t
		}
	}
	if nextExecution.Valid {
		t, err := time.Parse(time.RFC3339, nextExecution.String)
		if err == nil {
			s.NextExecution = &t
		}
	}

	if err := json.Unmarshal([]byte(paramsJSON), &s.Params); err != nil {
		return nil, fmt.Errorf("unmarshalling parameters: %w", err)
	}

	var parseErr error
	s.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	s.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
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

// nullableTime returns a sql.NullString for optional time pointers (as RFC3339 strings).
func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

// boolToInt converts a boolean to 0/1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
