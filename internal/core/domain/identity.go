package domain

import (
	"strings"
	"time"
)

// UserStatus enumerates possible account states.
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusInactive UserStatus = "inactive"
)

// Valid reports whether s is a known status.
func (s UserStatus) Valid() bool {
	return s == UserStatusActive || s == UserStatusInactive
}

// User mirrors the persisted representation in the users table.
type User struct {
	ID             string
	Email          string
	PasswordHash   string
	Name           string
	Role           Role
	Status         UserStatus
	FailedAttempts int
	LockUntil      *time.Time
	LastLogin      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsActive reports whether the account may authenticate.
func (u User) IsActive() bool {
	return u.Status == UserStatusActive
}

// LockState projects the lockout counters stored on the user row.
func (u User) LockState() LockState {
	return LockState{Attempts: u.FailedAttempts, LockedUntil: u.LockUntil}
}

// Identity returns the view attached to authenticated requests.
func (u User) Identity() Identity {
	return Identity{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role}
}

// Sanitized returns a copy without the password hash.
func (u User) Sanitized() User {
	u.PasswordHash = ""
	return u
}

// LoginState is the subset of user columns touched by a login attempt.
type LoginState struct {
	FailedAttempts int
	LockUntil      *time.Time
	LastLogin      *time.Time
}

// Identity is the authenticated principal resolved for a request.
type Identity struct {
	ID    string
	Email string
	Name  string
	Role  Role
}

// NormalizeEmail lower-cases and trims an address before lookup or storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
