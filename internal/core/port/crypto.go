package port

import (
	"time"

	"github.com/arklim/labsys-access/internal/core/domain"
)

// PasswordPolicyValidator enforces password strength requirements.
type PasswordPolicyValidator interface {
	Validate(password string, userInputs ...string) error
}

// PasswordHasher hashes and verifies secrets using the configured algorithm.
// Verify must compare in constant time.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password string, encoded string) (bool, error)
}

// TokenClaims are the identity claims embedded in a bearer token.
type TokenClaims struct {
	UserID    string
	Email     string
	Role      domain.Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenCodec issues and verifies self-contained bearer tokens. Verify performs no I/O.
type TokenCodec interface {
	Issue(claims TokenClaims) (string, TokenClaims, error)
	Verify(token string) (TokenClaims, error)
}
