package auth

import (
	"fmt"
	"regexp"
	"time"
)

// emailPattern is a pragmatic address check. Deliverability is not verified;
// this only rejects strings that cannot possibly be an address.
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

const maxEmailLength = 254

// Role represents an authorisation tier.
type Role string

const (
	// RoleViewer can read devices, status, schedules, and alerts.
	RoleViewer Role = "viewer"

	// RoleOperator can additionally send commands, manage schedules,
	// and acknowledge alerts.
	RoleOperator Role = "operator"

	// RoleAdmin has full control, including device registration,
	// model catalogue management, and user administration.
	RoleAdmin Role = "admin"
)

// ValidRoles is the set of assignable user roles.
var ValidRoles = []Role{RoleViewer, RoleOperator, RoleAdmin}

// Valid reports whether r is an assignable role.
func (r Role) Valid() bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// User represents an authenticated account.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	FullName     string     `json:"full_name"`
	PasswordHash string     `json:"-"`
	Role         Role       `json:"role"`
	IsActive     bool       `json:"is_active"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// RefreshToken is a stored refresh token. Only the SHA-256 hash of the
// token value is persisted.
type RefreshToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TokenHash string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
	CreatedAt time.Time `json:"created_at"`
}

// ValidateUser checks the invariants a user record must satisfy before it
// can be persisted.
func ValidateUser(u *User) error {
	if u.Email == "" || len(u.Email) > maxEmailLength || !emailPattern.MatchString(u.Email) {
		return fmt.Errorf("%w: invalid email %q", ErrInvalidUser, u.Email)
	}
	if u.FullName == "" {
		return fmt.Errorf("%w: full name is required", ErrInvalidUser)
	}
	if !u.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidUser, u.Role)
	}
	return nil
}
