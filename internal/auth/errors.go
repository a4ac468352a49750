package auth

import "errors"

var (
	// ErrUserNotFound indicates no user exists with the given ID or email.
	ErrUserNotFound = errors.New("auth: user not found")

	// ErrDuplicateEmail indicates the email address is already registered.
	ErrDuplicateEmail = errors.New("auth: email already registered")

	// ErrInvalidCredentials indicates a failed login attempt. The same error
	// is returned for unknown email and wrong password so callers cannot
	// probe for registered addresses.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrInactiveUser indicates the account exists but has been deactivated.
	ErrInactiveUser = errors.New("auth: user account is inactive")

	// ErrInvalidToken indicates a token that is malformed, expired, revoked,
	// or signed with the wrong key.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrInvalidUser indicates a user record that fails validation.
	ErrInvalidUser = errors.New("auth: invalid user")

	// ErrStorage wraps database-level failures.
	ErrStorage = errors.New("auth: storage error")
)
