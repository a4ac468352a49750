package command

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Repository defines persistence operations for the command history.
type Repository interface {
	// GetByID retrieves a command by its unique identifier.
	GetByID(ctx context.Context, id string) (*Command, error)

	// ListByDevice retrieves the most recent commands for a device,
	// newest first, capped at limit (0 means no cap).
	ListByDevice(ctx context.Context, deviceID string, limit int) ([]Command, error)

	// ListActive retrieves all commands still in a non-terminal state.
	ListActive(ctx context.Context) ([]Command, error)

	// Create inserts a new command in pending state.
	Create(ctx context.Context, c *Command) error

	// Transition advances a command's status. The terminal failed state
	// records an error message; completed and failed both stamp
	// executed_at. Returns ErrInvalidTransition for any move the
	// lifecycle does not allow.
	Transition(ctx context.Context, id string, next Status, errorMessage string) (*Command, error)

	// SweepAbandoned fails every non-terminal command in a single
	// statement, recording the given message. Returns the number of
	// commands swept. Called once at startup before the control loop
	// accepts new work.
	SweepAbandoned(ctx context.Context, message string) (int64, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a new SQLite-backed command repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

const commandColumns = `id, device_id, user_id, command_type, parameters,
		status, error_message, executed_at, created_at`

// GetByID retrieves a command by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Command, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+commandColumns+` FROM device_commands WHERE id = ?`, id)
	c, err := scanCommandRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying command: %w", errors.Join(ErrStorage, err))
	}
	return c, nil
}

// ListByDevice retrieves the most recent commands for a device.
func (r *SQLiteRepository) ListByDevice(ctx context.Context, deviceID string, limit int) ([]Command, error) {
	query := `SELECT ` + commandColumns + `
		FROM device_commands
		WHERE device_id = ?
		ORDER BY created_at DESC, id DESC`
	args := []any{deviceID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return r.queryCommands(ctx, query, args...)
}

// ListActive retrieves all commands still in a non-terminal state.
func (r *SQLiteRepository) ListActive(ctx context.Context) ([]Command, error) {
	return r.queryCommands(ctx, `SELECT `+commandColumns+`
		FROM device_commands
		WHERE status IN (?, ?)
		ORDER BY created_at`,
		string(StatusPending), string(StatusExecuting))
}

// Create inserts a new command in pending state.
func (r *SQLiteRepository) Create(ctx context.Context, c *Command) error {
	c.CreatedAt = r.now().UTC()
	if c.Status == "" {
		c.Status = StatusPending
	}

	paramsJSON, err := json.Marshal(c.Params)
	if err != nil {
		return fmt.Errorf("encoding parameters: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO device_commands (id, device_id, user_id, command_type,
			parameters, status, error_message, executed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID,
		c.DeviceID,
		nullableString(c.UserID),
		string(c.Type),
		string(paramsJSON),
		string(c.Status),
		nullableString(c.Error),
		nullableTime(c.Executed),
		c.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting command: %w", errors.Join(ErrStorage, err))
	}
	return nil
}

// Transition advances a command's status inside a transaction so the
// check-then-update is atomic against concurrent writers.
func (r *SQLiteRepository) Transition(ctx context.Context, id string, next Status, errorMessage string) (*Command, error) {
	if !next.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, next)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transition: %w", errors.Join(ErrStorage, err))
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	row := tx.QueryRowContext(ctx,
		`SELECT `+commandColumns+` FROM device_commands WHERE id = ?`, id)
	c, err := scanCommandRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading command for transition: %w", errors.Join(ErrStorage, err))
	}

	if !c.Status.CanTransition(next) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, c.Status, next)
	}

	c.Status = next
	if errorMessage != "" {
		c.Error = &errorMessage
	}
	if next.Terminal() {
		t := r.now().UTC()
		c.Executed = &t
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE device_commands
		SET status = ?, error_message = ?, executed_at = ?
		WHERE id = ?`,
		string(c.Status),
		nullableString(c.Error),
		nullableTime(c.Executed),
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("updating command status: %w", errors.Join(ErrStorage, err))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transition: %w", errors.Join(ErrStorage, err))
	}
	return c, nil
}

// SweepAbandoned fails every non-terminal command in one statement.
func (r *SQLiteRepository) SweepAbandoned(ctx context.Context, message string) (int64, error) {
	now := r.now().UTC().Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx, `
		UPDATE device_commands
		SET status = ?, error_message = ?, executed_at = ?
		WHERE status IN (?, ?)`,
		string(StatusFailed),
		message,
		now,
		string(StatusPending),
		string(StatusExecuting),
	)
	if err != nil {
		return 0, fmt.Errorf("sweeping abandoned commands: %w", errors.Join(ErrStorage, err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting swept commands: %w", errors.Join(ErrStorage, err))
	}
	return n, nil
}

func (r *SQLiteRepository) queryCommands(ctx context.Context, query string, args ...any) ([]Command, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying commands: %w", errors.Join(ErrStorage, err))
	}
	defer rows.Close()

	var commands []Command
	for rows.Next() {
		c, err := scanCommandRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning command: %w", errors.Join(ErrStorage, err))
		}
		commands = append(commands, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating commands: %w", errors.Join(ErrStorage, err))
	}
	return commands, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanCommandRow scans a row or rows result into a Command.
func scanCommandRow(scanner rowScanner) (*Command, error) {
	var c Command
	var userID, errorMessage, executedAt sql.NullString
	var cmdType, status, paramsJSON, createdAt string

	err := scanner.Scan(
		&c.ID,
		&c.DeviceID,
		&userID,
		&cmdType,
		&paramsJSON,
		&status,
		&errorMessage,
		&executedAt,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	c.Type = Type(cmdType)
	c.Status = Status(status)

	if userID.Valid {
		c.UserID = &userID.String
	}
	if errorMessage.Valid {
		c.Error = &errorMessage.String
	}
	if executedAt.Valid {
		t, err := time.Parse(time.RFC3339, executedAt.String)
		if err == nil {
			c.Executed = &t
		}
	}

	if err := json.Unmarshal([]byte(paramsJSON), &c.Params); err != nil {
		return nil, fmt.Errorf("unmarshalling parameters: %w", err)
	}

	var parseErr error
	c.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}

	return &c, nil
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
