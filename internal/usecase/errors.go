package usecase

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnauthenticated indicates no bearer credential was presented.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrInvalidToken indicates the token is malformed, expired or carries a bad signature.
	ErrInvalidToken = errors.New("invalid token")
	// ErrSubjectNotFound indicates the token is valid but its user was removed or deactivated.
	ErrSubjectNotFound = errors.New("token subject not found")
	// ErrInvalidCredentials covers both unknown email and wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked indicates a temporary lock from repeated failures.
	ErrAccountLocked = errors.New("account temporarily locked")
	// ErrInactiveAccount indicates the account was deactivated by an administrator.
	ErrInactiveAccount = errors.New("account is not active")
	// ErrForbidden indicates the caller's role is not allowed.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidInput indicates a request failed validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrWeakPassword indicates the password policy rejected a new password.
	ErrWeakPassword = errors.New("password does not satisfy policy")
	// ErrCurrentPasswordInvalid indicates the current password supplied for a change is wrong.
	ErrCurrentPasswordInvalid = errors.New("current password is incorrect")
	// ErrUserNotFound indicates an administrator addressed a user that does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailTaken indicates another user already owns the email.
	ErrEmailTaken = errors.New("email already registered")
)

// AccountLockedError carries the instant the lock lapses. It matches ErrAccountLocked.
type AccountLockedError struct {
	Until time.Time
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("%s until %s", ErrAccountLocked.Error(), e.Until.UTC().Format(time.RFC3339))
}

// Is lets errors.Is(err, ErrAccountLocked) match.
func (e *AccountLockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
