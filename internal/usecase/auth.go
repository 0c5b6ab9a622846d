package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/arklim/labsys-access/internal/core/domain"
	"github.com/arklim/labsys-access/internal/core/port"
	"github.com/arklim/labsys-access/internal/infra/logger"
	"github.com/arklim/labsys-access/internal/repository"
)

// LoginInput carries the credentials and request origin of a login attempt.
type LoginInput struct {
	Email    string
	Password string
	Origin   domain.Origin
}

// LoginResult is returned on a successful login.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Identity  domain.Identity
}

// AuthService coordinates login, per-request authentication and self-service
// credential changes. It holds no session state.
type AuthService struct {
	users   port.UserRepository
	codec   port.TokenCodec
	hasher  port.PasswordHasher
	audit   *AuditService
	events  port.EventPublisher
	policy  domain.LockoutPolicy
	pwd     port.PasswordPolicyValidator
	logger  *zap.Logger
	now     func() time.Time
	metrics AccessMetrics
}

// NewAuthService constructs an AuthService. events may be nil.
func NewAuthService(
	users port.UserRepository,
	codec port.TokenCodec,
	hasher port.PasswordHasher,
	audit *AuditService,
	events port.EventPublisher,
	policy domain.LockoutPolicy,
) *AuthService {
	return &AuthService{
		users:   users,
		codec:   codec,
		hasher:  hasher,
		audit:   audit,
		events:  publisherOrNil(events),
		policy:  policy.Normalize(),
		logger:  zap.NewNop(),
		now:     time.Now,
		metrics: noopMetrics{},
	}
}

// WithLogger attaches a structured logger.
func (s *AuthService) WithLogger(logger *zap.Logger) *AuthService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithNow overrides the clock used for lock decisions and last-login stamps.
func (s *AuthService) WithNow(now func() time.Time) *AuthService {
	if now != nil {
		s.now = now
	}
	return s
}

// WithMetrics wires login and token telemetry.
func (s *AuthService) WithMetrics(metrics AccessMetrics) *AuthService {
	if metrics != nil {
		s.metrics = metrics
	}
	return s
}

// WithPasswordPolicy sets the validator applied to new passwords.
func (s *AuthService) WithPasswordPolicy(policy port.PasswordPolicyValidator) *AuthService {
	if policy != nil {
		s.pwd = policy
	}
	return s
}

// Login verifies credentials and issues a bearer token.
//
// The lock check precedes password comparison so a locked account never
// reveals whether the password was right. Status is checked only after a
// password match.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	ctx, span := tracer.Start(ctx, "AuthService.Login")
	result, err := s.login(ctx, in)
	if err == nil {
		span.SetAttributes(attribute.String("user.id", result.Identity.ID))
	}
	endSpan(span, err)
	return result, err
}

func (s *AuthService) login(ctx context.Context, in LoginInput) (LoginResult, error) {
	log := logger.WithContext(ctx, s.logger)

	email := domain.NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		s.metrics.LoginAttempt(LoginOutcomeInvalidCredentials)
		return LoginResult{}, ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.LoginAttempt(LoginOutcomeInvalidCredentials)
			return LoginResult{}, ErrInvalidCredentials
		}
		s.metrics.LoginAttempt(LoginOutcomeError)
		return LoginResult{}, fmt.Errorf("lookup user: %w", err)
	}

	now := s.now().UTC()
	state := user.LockState()
	if state.IsLocked(now) {
		s.metrics.LoginAttempt(LoginOutcomeLocked)
		return LoginResult{}, &AccountLockedError{Until: *state.LockedUntil}
	}

	ok, err := s.hasher.Verify(in.Password, user.PasswordHash)
	if err != nil {
		s.metrics.LoginAttempt(LoginOutcomeError)
		return LoginResult{}, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		next, err := s.users.RegisterFailedLogin(ctx, user.ID, s.policy, now)
		if err != nil {
			s.metrics.LoginAttempt(LoginOutcomeError)
			return LoginResult{}, fmt.Errorf("record failed login: %w", err)
		}
		if domain.Engaged(state, next, now) {
			s.onLockEngaged(ctx, *user, next, in.Origin, now)
		}
		log.Info("login rejected",
			zap.String("email", logger.MaskEmail(email)),
			zap.Int("failed_attempts", next.Attempts),
		)
		s.metrics.LoginAttempt(LoginOutcomeInvalidCredentials)
		return LoginResult{}, ErrInvalidCredentials
	}

	if !user.IsActive() {
		s.metrics.LoginAttempt(LoginOutcomeInactive)
		return LoginResult{}, ErrInactiveAccount
	}

	reset := s.policy.Reset()
	if err := s.users.UpdateLoginState(ctx, user.ID, domain.LoginState{
		FailedAttempts: reset.Attempts,
		LockUntil:      reset.LockedUntil,
		LastLogin:      &now,
	}); err != nil {
		s.metrics.LoginAttempt(LoginOutcomeError)
		return LoginResult{}, fmt.Errorf("reset login state: %w", err)
	}
	s.upgradeHash(ctx, *user, in.Password, now)

	token, claims, err := s.codec.Issue(port.TokenClaims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	})
	if err != nil {
		s.metrics.LoginAttempt(LoginOutcomeError)
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}

	origin := in.Origin
	origin.ActorID = user.ID
	s.audit.RecordBestEffort(ctx, AuditRecord{
		Action:   domain.AuditActionLogin,
		Table:    domain.TableUsers,
		RecordID: user.ID,
		Origin:   origin,
	})

	s.metrics.LoginAttempt(LoginOutcomeSuccess)
	return LoginResult{Token: token, ExpiresAt: claims.ExpiresAt, Identity: user.Identity()}, nil
}

func (s *AuthService) onLockEngaged(ctx context.Context, user domain.User, next domain.LockState, origin domain.Origin, now time.Time) {
	s.metrics.LockEngaged()
	logger.WithContext(ctx, s.logger).Warn("account locked",
		zap.String("user_id", user.ID),
		zap.Int("failed_attempts", next.Attempts),
		zap.Time("locked_until", *next.LockedUntil),
		zap.String("ip", logger.MaskIP(origin.IP)),
	)

	if s.events == nil {
		return
	}
	event := domain.AccountLockedEvent{
		EventID:     uuid.NewString(),
		UserID:      user.ID,
		Email:       user.Email,
		Attempts:    next.Attempts,
		LockedUntil: *next.LockedUntil,
		IP:          origin.IP,
		LockedAt:    now,
	}
	if err := s.events.PublishAccountLocked(ctx, event); err != nil {
		logger.WithContext(ctx, s.logger).Warn("publish account locked event failed",
			zap.String("user_id", user.ID), zap.Error(err))
	}
}

// rehasher is implemented by hashers that can tell when a stored hash uses a
// legacy algorithm or weaker parameters.
type rehasher interface {
	NeedsRehash(encoded string) bool
}

// upgradeHash replaces an outdated hash after a verified login. Failures only log.
func (s *AuthService) upgradeHash(ctx context.Context, user domain.User, password string, now time.Time) {
	up, ok := s.hasher.(rehasher)
	if !ok || !up.NeedsRehash(user.PasswordHash) {
		return
	}
	hash, err := s.hasher.Hash(password)
	if err == nil {
		err = s.users.UpdatePassword(ctx, user.ID, hash, now)
	}
	if err != nil {
		logger.WithContext(ctx, s.logger).Warn("password rehash failed", zap.String("user_id", user.ID), zap.Error(err))
	}
}

// Authenticate resolves a bearer token to the identity of a live user.
// Every call re-reads the user so deactivation takes effect immediately.
func (s *AuthService) Authenticate(ctx context.Context, rawToken string) (domain.Identity, error) {
	ctx, span := tracer.Start(ctx, "AuthService.Authenticate")
	identity, err := s.authenticate(ctx, rawToken)
	endSpan(span, err)
	return identity, err
}

func (s *AuthService) authenticate(ctx context.Context, rawToken string) (domain.Identity, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		s.metrics.TokenRejected(RejectMissing)
		return domain.Identity{}, ErrUnauthenticated
	}

	claims, err := s.codec.Verify(rawToken)
	if err != nil {
		s.metrics.TokenRejected(RejectInvalid)
		return domain.Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.TokenRejected(RejectSubject)
			return domain.Identity{}, ErrSubjectNotFound
		}
		return domain.Identity{}, fmt.Errorf("lookup token subject: %w", err)
	}
	if !user.IsActive() {
		s.metrics.TokenRejected(RejectSubject)
		return domain.Identity{}, ErrSubjectNotFound
	}

	return user.Identity(), nil
}

// Logout records the end of a client session. Tokens are stateless, so the
// client discarding its token is what actually ends access.
func (s *AuthService) Logout(ctx context.Context, identity domain.Identity, origin domain.Origin) {
	origin.ActorID = identity.ID
	s.audit.RecordBestEffort(ctx, AuditRecord{
		Action:   domain.AuditActionLogout,
		Table:    domain.TableUsers,
		RecordID: identity.ID,
		Origin:   origin,
	})
}

// ChangePassword replaces the caller's own password after checking the current one.
func (s *AuthService) ChangePassword(ctx context.Context, identity domain.Identity, current, next string, origin domain.Origin) error {
	if current == "" || next == "" {
		return invalidInput("current and new password are required")
	}

	user, err := s.users.GetByID(ctx, identity.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSubjectNotFound
		}
		return fmt.Errorf("lookup user: %w", err)
	}
	if !user.IsActive() {
		return ErrSubjectNotFound
	}

	ok, err := s.hasher.Verify(current, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return ErrCurrentPasswordInvalid
	}
	if current == next {
		return fmt.Errorf("%w: new password must differ from the current one", ErrWeakPassword)
	}
	if s.pwd != nil {
		if err := s.pwd.Validate(next, user.Email, user.Name); err != nil {
			return fmt.Errorf("%w: %v", ErrWeakPassword, err)
		}
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash, s.now().UTC()); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	origin.ActorID = identity.ID
	s.audit.RecordBestEffort(ctx, AuditRecord{
		Action:   domain.AuditActionPasswordChange,
		Table:    domain.TableUsers,
		RecordID: user.ID,
		Origin:   origin,
	})
	return nil
}

// Authorize applies the role check for identity against allowed.
func Authorize(identity domain.Identity, allowed domain.RoleSet) error {
	if domain.Authorize(identity, allowed) != domain.Allowed {
		return ErrForbidden
	}
	return nil
}
