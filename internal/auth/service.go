package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// defaultRefreshTTL applies when no refresh TTL is configured.
const defaultRefreshTTL = 30 * 24 * time.Hour

// Session is the result of a successful login or refresh.
type Session struct {
	User         *User  `json:"user"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Service implements the login, refresh, and logout flows over the user and
// token repositories.
type Service struct {
	users      UserRepository
	tokens     TokenRepository
	secret     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewService creates an auth service. Zero TTLs fall back to the package
// defaults (15 minutes access, 30 days refresh).
func NewService(users UserRepository, tokens TokenRepository, secret string, accessTTL, refreshTTL time.Duration) *Service {
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTTL
	}
	return &Service{
		users:      users,
		tokens:     tokens,
		secret:     secret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// Login verifies credentials and issues a new session. Unknown emails and
// wrong passwords both return ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}

	now := s.now()
	if err := s.users.RecordLogin(ctx, user.ID, now); err != nil {
		return nil, err
	}
	user.LastLogin = &now

	return s.issueSession(ctx, user)
}

// Refresh exchanges a valid refresh token for a new session. The presented
// token is revoked so each refresh value is single-use.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	stored, err := s.tokens.Lookup(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}

	if err := s.tokens.Revoke(ctx, refreshToken); err != nil {
		return nil, err
	}

	return s.issueSession(ctx, user)
}

// Logout revokes a refresh token. Already-revoked and unknown tokens are
// treated as success.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	return s.tokens.Revoke(ctx, refreshToken)
}

// VerifyAccess validates an access token and returns its claims.
func (s *Service) VerifyAccess(tokenString string) (*Claims, error) {
	return ParseToken(tokenString, s.secret)
}

func (s *Service) issueSession(ctx context.Context, user *User) (*Session, error) {
	access, err := GenerateAccessToken(user, s.secret, s.accessTTL)
	if err != nil {
		return nil, err
	}

	refresh, err := GenerateRefreshToken()
	if err != nil {
		return nil, err
	}
	if _, err := s.tokens.Store(ctx, user.ID, refresh, s.now().Add(s.refreshTTL)); err != nil {
		return nil, err
	}

	return &Session{User: user, AccessToken: access, RefreshToken: refresh}, nil
}
