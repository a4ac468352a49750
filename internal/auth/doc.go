// Package auth provides user accounts, password hashing, and JWT session
// tokens for the ClimaLink API.
//
// Passwords are stored as Argon2id PHC strings. Access tokens are short-lived
// HS256 JWTs validated by signature alone; refresh tokens are opaque random
// values stored hashed and exchanged for new access tokens via the Service.
package auth
