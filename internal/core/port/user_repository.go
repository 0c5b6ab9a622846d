package port

import (
	"context"
	"time"

	"github.com/arklim/labsys-access/internal/core/domain"
)

// UserFilter narrows user listings.
type UserFilter struct {
	Role   domain.Role
	Status domain.UserStatus
	Limit  int
	Offset int
}

// UserRepository exposes persistence behavior for users.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	List(ctx context.Context, filter UserFilter) ([]domain.User, error)
	// Update persists name, role and status.
	Update(ctx context.Context, user domain.User) error
	UpdatePassword(ctx context.Context, id string, passwordHash string, changedAt time.Time) error
	// UpdateLoginState writes failed_attempts, lock_until and last_login in one statement.
	UpdateLoginState(ctx context.Context, id string, state domain.LoginState) error
	// RegisterFailedLogin atomically increments the failure counter and applies
	// the lock when the threshold is reached, returning the resulting state.
	RegisterFailedLogin(ctx context.Context, id string, policy domain.LockoutPolicy, now time.Time) (domain.LockState, error)
}
