package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TokenRepository defines refresh token persistence. Tokens are stored as
// SHA-256 hashes; the plaintext value never touches the database.
type TokenRepository interface {
	Store(ctx context.Context, userID, token string, expiresAt time.Time) (*RefreshToken, error)
	Lookup(ctx context.Context, token string) (*RefreshToken, error)
	Revoke(ctx context.Context, token string) error
	RevokeAllForUser(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// SQLiteTokenRepository implements TokenRepository on SQLite.
type SQLiteTokenRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewTokenRepository creates a SQLite-backed refresh token repository.
func NewTokenRepository(db *sql.DB) *SQLiteTokenRepository {
	return &SQLiteTokenRepository{db: db, now: time.Now}
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (r *SQLiteTokenRepository) Store(ctx context.Context, userID, token string, expiresAt time.Time) (*RefreshToken, error) {
	rt := &RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: hashToken(token),
		ExpiresAt: expiresAt.UTC().Truncate(time.Second),
		CreatedAt: r.now().UTC().Truncate(time.Second),
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, revoked, created_at)
		 VALUES (?, ?, ?, ?, 0, ?)`,
		rt.ID, rt.UserID, rt.TokenHash,
		rt.ExpiresAt.Format(time.RFC3339), rt.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("storing refresh token: %w", errors.Join(ErrStorage, err))
	}
	return rt, nil
}

// Lookup resolves a plaintext token to its stored record. Revoked and
// expired tokens return ErrInvalidToken.
func (r *SQLiteTokenRepository) Lookup(ctx context.Context, token string) (*RefreshToken, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, token_hash, expires_at, revoked, created_at
		 FROM refresh_tokens WHERE token_hash = ?`, hashToken(token))

	var (
		rt        RefreshToken
		revoked   int
		expiresAt string
		createdAt string
	)
	err := row.Scan(&rt.ID, &rt.UserID, &rt.TokenHash, &expiresAt, &revoked, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("looking up refresh token: %w", errors.Join(ErrStorage, err))
	}

	rt.Revoked = revoked != 0
	if rt.ExpiresAt, err = time.Parse(time.RFC3339, expiresAt); err != nil {
		return nil, fmt.Errorf("parsing expires_at: %w", errors.Join(ErrStorage, err))
	}
	if rt.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", errors.Join(ErrStorage, err))
	}

	if rt.Revoked || r.now().After(rt.ExpiresAt) {
		return nil, ErrInvalidToken
	}
	return &rt, nil
}

func (r *SQLiteTokenRepository) Revoke(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = 1 WHERE token_hash = ?`, hashToken(token))
	if err != nil {
		return fmt.Errorf("revoking refresh token: %w", errors.Join(ErrStorage, err))
	}
	return nil
}

func (r *SQLiteTokenRepository) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = 1 WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("revoking user tokens: %w", errors.Join(ErrStorage, err))
	}
	return nil
}

// DeleteExpired prunes tokens that expired before the given time and
// returns how many rows were removed.
func (r *SQLiteTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at < ?`,
		before.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("pruning refresh tokens: %w", errors.Join(ErrStorage, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", errors.Join(ErrStorage, err))
	}
	return n, nil
}
