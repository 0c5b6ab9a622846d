package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/labsys-access/internal/core/domain"
	"github.com/arklim/labsys-access/internal/core/port"
	"github.com/arklim/labsys-access/internal/infra/logger"
	"github.com/arklim/labsys-access/internal/repository"
)

// CreateUserInput captures an administrator's request to add a user.
type CreateUserInput struct {
	Email    string
	Name     string
	Role     domain.Role
	Password string
}

// UpdateUserInput carries the fields an administrator may edit. Nil leaves a field unchanged.
type UpdateUserInput struct {
	Name   *string
	Role   *domain.Role
	Status *domain.UserStatus
}

// UserService handles administrator user management. Every successful
// mutation appends exactly one audit entry.
type UserService struct {
	users  port.UserRepository
	hasher port.PasswordHasher
	pwd    port.PasswordPolicyValidator
	audit  *AuditService
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// NewUserService constructs UserService.
func NewUserService(users port.UserRepository, hasher port.PasswordHasher, pwd port.PasswordPolicyValidator, audit *AuditService) *UserService {
	return &UserService{
		users:  users,
		hasher: hasher,
		pwd:    pwd,
		audit:  audit,
		logger: zap.NewNop(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// WithLogger attaches a structured logger.
func (s *UserService) WithLogger(logger *zap.Logger) *UserService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithNow overrides the clock.
func (s *UserService) WithNow(now func() time.Time) *UserService {
	if now != nil {
		s.now = now
	}
	return s
}

// Create adds an active user.
func (s *UserService) Create(ctx context.Context, in CreateUserInput, origin domain.Origin) (domain.User, error) {
	email := domain.NormalizeEmail(in.Email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return domain.User{}, invalidInput("email %q is not valid", in.Email)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.User{}, invalidInput("name is required")
	}
	if !in.Role.Valid() {
		return domain.User{}, invalidInput("unknown role %q", in.Role)
	}
	if err := s.checkPassword(in.Password, email, name); err != nil {
		return domain.User{}, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	user := domain.User{
		ID:           s.newID(),
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		Role:         in.Role,
		Status:       domain.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return domain.User{}, ErrEmailTaken
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}

	s.audit.RecordBestEffort(ctx, AuditRecord{
		Action:   domain.AuditActionCreate,
		Table:    domain.TableUsers,
		RecordID: user.ID,
		After:    user.Snapshot(),
		Origin:   origin,
	})

	logger.WithContext(ctx, s.logger).Info("user created",
		zap.String("user_id", user.ID),
		zap.String("role", string(user.Role)),
	)
	return user.Sanitized(), nil
}

// Get returns a user without its password hash.
func (s *UserService) Get(ctx context.Context, id string) (domain.User, error) {
	user, err := s.load(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	return user.Sanitized(), nil
}

// List returns users matching filter.
func (s *UserService) List(ctx context.Context, filter port.UserFilter) ([]domain.User, error) {
	if filter.Role != "" && !filter.Role.Valid() {
		return nil, invalidInput("unknown role %q", filter.Role)
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, invalidInput("unknown status %q", filter.Status)
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	users, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	for i := range users {
		users[i] = users[i].Sanitized()
	}
	return users, nil
}

// Update edits name, role or status and records before/after snapshots.
func (s *UserService) Update(ctx context.Context, id string, in UpdateUserInput, origin domain.Origin) (domain.User, error) {
	user, err := s.load(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	before := user.Snapshot()

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return domain.User{}, invalidInput("name cannot be empty")
		}
		user.Name = name
	}
	if in.Role != nil {
		if !in.Role.Valid() {
			return domain.User{}, invalidInput("unknown role %q", *in.Role)
		}
		user.Role = *in.Role
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return domain.User{}, invalidInput("unknown status %q", *in.Status)
		}
		if *in.Status == domain.UserStatusInactive && user.ID == origin.ActorID {
			return domain.User{}, invalidInput("administrators cannot deactivate themselves")
		}
		user.Status = *in.Status
	}

	after := user.Snapshot()
	if after == before {
		return user.Sanitized(), nil
	}

	user.UpdatedAt = s.now().UTC()
	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("update user: %w", err)
	}

	s.audit.RecordBestEffort(ctx, AuditRecord{
		Action:   domain.AuditActionUpdate,
		Table:    domain.TableUsers,
		RecordID: user.ID,
		Before:   before,
		After:    after,
		Origin:   origin,
	})
	return user.Sanitized(), nil
}

// Deactivate soft-deletes a user. Outstanding tokens stop working on their next use.
func (s *UserService) Deactivate(ctx context.Context, id string, origin domain.Origin) (domain.User, error) {
	user, err := s.load(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	if user.ID == origin.ActorID {
		return domain.User{}, invalidInput("administrators cannot deactivate themselves")
	}
	if !user.IsActive() {
		return user.Sanitized(), nil
	}

	before := user.Snapshot()
	user.Status = domain.UserStatusInactive
	user.UpdatedAt = s.now().UTC()
	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("deactivate user: %w", err)
	}

	s.audit.RecordBestEffort(ctx, AuditRecord{
		Action:   domain.AuditActionDelete,
		Table:    domain.TableUsers,
		RecordID: user.ID,
		Before:   before,
		After:    user.Snapshot(),
		Origin:   origin,
	})
	return user.Sanitized(), nil
}

// ResetPassword sets a new password on behalf of a user and clears any lock.
func (s *UserService) ResetPassword(ctx context.Context, id, password string, origin domain.Origin) error {
	user, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.checkPassword(password, user.Email, user.Name); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash, s.now().UTC()); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if err := s.users.UpdateLoginState(ctx, user.ID, domain.LoginState{}); err != nil {
		logger.WithContext(ctx, s.logger).Warn("clear lock after password reset failed",
			zap.String("user_id", user.ID), zap.Error(err))
	}

	s.audit.RecordBestEffort(ctx, AuditRecord{
		Action:   domain.AuditActionPasswordReset,
		Table:    domain.TableUsers,
		RecordID: user.ID,
		Origin:   origin,
	})
	return nil
}

func (s *UserService) load(ctx context.Context, id string) (domain.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.User{}, invalidInput("user id is required")
	}
	// Ids are UUIDs; anything else cannot name a stored user.
	if _, err := uuid.Parse(id); err != nil {
		return domain.User{}, ErrUserNotFound
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	}
	return *user, nil
}

func (s *UserService) checkPassword(password string, inputs ...string) error {
	if password == "" {
		return invalidInput("password is required")
	}
	if s.pwd == nil {
		return nil
	}
	if err := s.pwd.Validate(password, inputs...); err != nil {
		return fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}
	return nil
}
