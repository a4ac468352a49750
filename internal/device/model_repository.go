package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ModelRepository defines persistence operations for brands and models.
type ModelRepository interface {
	// GetModel retrieves a model by ID. Returns ErrNotFound if missing.
	GetModel(ctx context.Context, id string) (*Model, error)

	// ListModels retrieves all models ordered by name.
	ListModels(ctx context.Context) ([]Model, error)

	// ListModelsByBrand retrieves all models for one brand.
	ListModelsByBrand(ctx context.Context, brandID string) ([]Model, error)

	// CreateModel inserts a new model.
	CreateModel(ctx context.Context, m *Model) error

	// UpdateModel modifies an existing model.
	UpdateModel(ctx context.Context, m *Model) error

	// DeleteModel removes a model by ID. Fails with a constraint error
	// while devices still reference it.
	DeleteModel(ctx context.Context, id string) error

	// GetBrand retrieves a brand by ID.
	GetBrand(ctx context.Context, id string) (*Brand, error)

	// ListBrands retrieves all brands ordered by name.
	ListBrands(ctx context.Context) ([]Brand, error)

	// CreateBrand inserts a new brand.
	CreateBrand(ctx context.Context, b *Brand) error
}

// SQLiteModelRepository implements ModelRepository using SQLite.
type SQLiteModelRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteModelRepository creates a new SQLite-backed model repository.
func NewSQLiteModelRepository(db *sql.DB) *SQLiteModelRepository {
	return &SQLiteModelRepository{db: db, now: time.Now}
}

const modelColumns = `id, brand_id, name, protocol_type, connection_config,
		capabilities, min_temperature, max_temperature, created_at, updated_at`

// GetModel retrieves a model by ID.
func (r *SQLiteModelRepository) GetModel(ctx context.Context, id string) (*Model, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+modelColumns+` FROM models WHERE id = ?`, id)
	m, err := scanModelRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying model: %w", errors.Join(ErrStorage, err))
	}
	return m, nil
}

// ListModels retrieves all models ordered by name.
func (r *SQLiteModelRepository) ListModels(ctx context.Context) ([]Model, error) {
	return r.queryModels(ctx, `SELECT `+modelColumns+` FROM models ORDER BY name`)
}

// ListModelsByBrand retrieves all models for one brand.
func (r *SQLiteModelRepository) ListModelsByBrand(ctx context.Context, brandID string) ([]Model, error) {
	return r.queryModels(ctx,
		`SELECT `+modelColumns+` FROM models WHERE brand_id = ? ORDER BY name`, brandID)
}

// CreateModel inserts a new model.
func (r *SQLiteModelRepository) CreateModel(ctx context.Context, m *Model) error {
	now := r.now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	configJSON, err := m.ConnectionConfig.Encode()
	if err != nil {
		return err
	}
	capsJSON, err := encodeCapabilities(m.Capabilities)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO models (id, brand_id, name, protocol_type, connection_config,
			capabilities, min_temperature, max_temperature, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID,
		m.BrandID,
		m.Name,
		string(m.ProtocolType),
		nullableBytes(configJSON),
		nullableBytes(capsJSON),
		m.MinTemperature,
		m.MaxTemperature,
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting model: %w", errors.Join(ErrStorage, err))
	}
	return nil
}

// UpdateModel modifies an existing model.
func (r *SQLiteModelRepository) UpdateModel(ctx context.Context, m *Model) error {
	m.UpdatedAt = r.now().UTC()

	configJSON, err := m.ConnectionConfig.Encode()
	if err != nil {
		return err
	}
	capsJSON, err := encodeCapabilities(m.Capabilities)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE models
		SET brand_id = ?, name = ?, protocol_type = ?, connection_config = ?,
			capabilities = ?, min_temperature = ?, max_temperature = ?, updated_at = ?
		WHERE id = ?`,
		m.BrandID,
		m.Name,
		string(m.ProtocolType),
		nullableBytes(configJSON),
		nullableBytes(capsJSON),
		m.MinTemperature,
		m.MaxTemperature,
		m.UpdatedAt.Format(time.RFC3339),
		m.ID,
	)
	if err != nil {
		return fmt.Errorf("updating model: %w", errors.Join(ErrStorage, err))
	}
	return requireRowAffected(result)
}

// DeleteModel removes a model by ID.
func (r *SQLiteModelRepository) DeleteModel(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM models WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting model: %w", errors.Join(ErrStorage, err))
	}
	return requireRowAffected(result)
}

// GetBrand retrieves a brand by ID.
func (r *SQLiteModelRepository) GetBrand(ctx context.Context, id string) (*Brand, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, logo_url, website, created_at, updated_at
		FROM brands WHERE id = ?`, id)
	b, err := scanBrandRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying brand: %w", errors.Join(ErrStorage, err))
	}
	return b, nil
}

// ListBrands retrieves all brands ordered by name.
func (r *SQLiteModelRepository) ListBrands(ctx context.Context) ([]Brand, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, logo_url, website, created_at, updated_at
		FROM brands ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying brands: %w", errors.Join(ErrStorage, err))
	}
	defer rows.Close()

	var brands []Brand
	for rows.Next() {
		b, err := scanBrandRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning brand: %w", errors.Join(ErrStorage, err))
		}
		brands = append(brands, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating brands: %w", errors.Join(ErrStorage, err))
	}
	return brands, nil
}

// CreateBrand inserts a new brand.
func (r *SQLiteModelRepository) CreateBrand(ctx context.Context, b *Brand) error {
	now := r.now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO brands (id, name, logo_url, website, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID,
		b.Name,
		nullableString(b.LogoURL),
		nullableString(b.Website),
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting brand: %w", errors.Join(ErrStorage, err))
	}
	return nil
}

func (r *SQLiteModelRepository) queryModels(ctx context.Context, query string, args ...any) ([]Model, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying models: %w", errors.Join(ErrStorage, err))
	}
	defer rows.Close()

	var models []Model
	for rows.Next() {
		m, err := scanModelRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning model: %w", errors.Join(ErrStorage, err))
		}
		models = append(models, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating models: %w", errors.Join(ErrStorage, err))
	}
	return models, nil
}

// scanModelRow scans a row or rows result into a Model.
func scanModelRow(scanner rowScanner) (*Model, error) {
	var m Model
	var protocol string
	var configJSON, capsJSON sql.NullString
	var createdAt, updatedAt string

	err := scanner.Scan(
		&m.ID,
		&m.BrandID,
		&m.Name,
		&protocol,
		&configJSON,
		&capsJSON,
		&m.MinTemperature,
		&m.MaxTemperature,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.ProtocolType = ProtocolType(protocol)

	if configJSON.Valid && configJSON.String != "" {
		cfg, err := ParseConnectionConfig([]byte(configJSON.String))
		if err != nil {
			return nil, err
		}
		m.ConnectionConfig = cfg
	}
	if capsJSON.Valid && capsJSON.String != "" {
		var caps Capabilities
		if err := json.Unmarshal([]byte(capsJSON.String), &caps); err != nil {
			return nil, fmt.Errorf("unmarshalling capabilities: %w", err)
		}
		m.Capabilities = &caps
	}

	var parseErr error
	m.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	m.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	return &m, nil
}

// scanBrandRow scans a row or rows result into a Brand.
func scanBrandRow(scanner rowScanner) (*Brand, error) {
	var b Brand
	var logoURL, website sql.NullString
	var createdAt, updatedAt string

	err := scanner.Scan(&b.ID, &b.Name, &logoURL, &website, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if logoURL.Valid {
		b.LogoURL = &logoURL.String
	}
	if website.Valid {
		b.Website = &website.String
	}

	var parseErr error
	b.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	b.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	return &b, nil
}

func encodeCapabilities(c *Capabilities) ([]byte, error) {
	if c == nil {
		return nil, nil
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("device: encode capabilities: %w", err)
	}
	return raw, nil
}
