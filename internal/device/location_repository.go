package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// LocationRepository defines persistence operations for the location tree.
type LocationRepository interface {
	// GetLocation retrieves a location by ID.
	GetLocation(ctx context.Context, id string) (*Location, error)

	// ListLocations retrieves all locations ordered by name.
	ListLocations(ctx context.Context) ([]Location, error)

	// ListChildren retrieves the direct children of a location.
	ListChildren(ctx context.Context, parentID string) ([]Location, error)

	// CreateLocation inserts a new location.
	CreateLocation(ctx context.Context, l *Location) error

	// DeleteLocation removes a location by ID. Devices assigned to it
	// keep a dangling reference cleared by the schema's ON DELETE SET NULL.
	DeleteLocation(ctx context.Context, id string) error
}

// SQLiteLocationRepository implements LocationRepository using SQLite.
type SQLiteLocationRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteLocationRepository creates a new SQLite-backed location repository.
func NewSQLiteLocationRepository(db *sql.DB) *SQLiteLocationRepository {
	return &SQLiteLocationRepository{db: db, now: time.Now}
}

const locationColumns = `id, name, parent_id, type, description, created_at, updated_at`

// GetLocation retrieves a location by ID.
func (r *SQLiteLocationRepository) GetLocation(ctx context.Context, id string) (*Location, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+locationColumns+` FROM locations WHERE id = ?`, id)
	l, err := scanLocationRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying location: %w", errors.Join(ErrStorage, err))
	}
	return l, nil
}

// ListLocations retrieves all locations ordered by name.
func (r *SQLiteLocationRepository) ListLocations(ctx context.Context) ([]Location, error) {
	return r.queryLocations(ctx,
		`SELECT `+locationColumns+` FROM locations ORDER BY name`)
}

// ListChildren retrieves the direct children of a location.
func (r *SQLiteLocationRepository) ListChildren(ctx context.Context, parentID string) ([]Location, error) {
	return r.queryLocations(ctx,
		`SELECT `+locationColumns+` FROM locations WHERE parent_id = ? ORDER BY name`, parentID)
}

// CreateLocation inserts a new location.
func (r *SQLiteLocationRepository) CreateLocation(ctx context.Context, l *Location) error {
	now := r.now().UTC()
	l.CreatedAt = now
	l.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO locations (id, name, parent_id, type, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.ID,
		l.Name,
		nullableString(l.ParentID),
		l.Type,
		nullableString(l.Description),
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting location: %w", errors.Join(ErrStorage, err))
	}
	return nil
}

// DeleteLocation removes a location by ID.
func (r *SQLiteLocationRepository) DeleteLocation(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM locations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting location: %w", errors.Join(ErrStorage, err))
	}
	return requireRowAffected(result)
}

func (r *SQLiteLocationRepository) queryLocations(ctx context.Context, query string, args ...any) ([]Location, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying locations: %w", errors.Join(ErrStorage, err))
	}
	defer rows.Close()

	var locations []Location
	for rows.Next() {
		l, err := scanLocationRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning location: %w", errors.Join(ErrStorage, err))
		}
		locations = append(locations, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating locations: %w", errors.Join(ErrStorage, err))
	}
	return locations, nil
}

// scanLocationRow scans a row or rows result into a Location.
func scanLocationRow(scanner rowScanner) (*Location, error) {
	var l Location
	var parentID, description sql.NullString
	var createdAt, updatedAt string

	err := scanner.Scan(&l.ID, &l.Name, &parentID, &l.Type, &description, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if parentID.Valid {
		l.ParentID = &parentID.String
	}
	if description.Valid {
		l.Description = &description.String
	}

	var parseErr error
	l.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	l.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	return &l, nil
}
