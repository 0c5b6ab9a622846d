package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/labsys-access/internal/core/domain"
	"github.com/arklim/labsys-access/internal/core/port"
	"github.com/arklim/labsys-access/internal/repository"
)

const usersTable = "lab.users"

var userColumns = []string{
	"id",
	"email",
	"password_hash",
	"name",
	"role",
	"status",
	"failed_attempts",
	"lock_until",
	"last_login",
	"created_at",
	"updated_at",
}

// UserRepository implements port.UserRepository using PostgreSQL.
type UserRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewUserRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewUserRepository(exec pgExecutor) *UserRepository {
	return &UserRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a new user row.
func (r *UserRepository) Create(ctx context.Context, user domain.User) error {
	stmt, args, err := r.builder.Insert(usersTable).
		Columns(userColumns...).
		Values(
			user.ID,
			user.Email,
			user.PasswordHash,
			user.Name,
			string(user.Role),
			string(user.Status),
			user.FailedAttempts,
			optionalTime(user.LockUntil),
			optionalTime(user.LastLogin),
			user.CreatedAt,
			user.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert user sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert user: %w", mapWriteError(err))
	}
	return nil
}

// GetByID retrieves a user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	stmt, args, err := r.builder.Select(userColumns...).
		From(usersTable).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	user, err := scanUser(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return user, nil
}

// GetByEmail retrieves a user by its unique (normalized) email address.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	stmt, args, err := r.builder.Select(userColumns...).
		From(usersTable).
		Where(squirrel.Eq{"email": domain.NormalizeEmail(email)}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user by email sql: %w", err)
	}

	user, err := scanUser(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user by email: %w", err)
	}
	return user, nil
}

// List returns users with optional filtering and pagination.
func (r *UserRepository) List(ctx context.Context, filter port.UserFilter) ([]domain.User, error) {
	query := r.builder.Select(userColumns...).
		From(usersTable).
		OrderBy("created_at DESC", "id")

	if filter.Role != "" {
		query = query.Where(squirrel.Eq{"role": string(filter.Role)})
	}
	if filter.Status != "" {
		query = query.Where(squirrel.Eq{"status": string(filter.Status)})
	}
	if filter.Limit > 0 {
		query = query.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		query = query.Offset(uint64(filter.Offset))
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list users sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// Update persists administrator-editable fields.
func (r *UserRepository) Update(ctx context.Context, user domain.User) error {
	stmt, args, err := r.builder.Update(usersTable).
		Set("name", user.Name).
		Set("role", string(user.Role)).
		Set("status", string(user.Status)).
		Set("updated_at", user.UpdatedAt).
		Where(squirrel.Eq{"id": user.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update user sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpdatePassword stores a new password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id string, passwordHash string, changedAt time.Time) error {
	stmt, args, err := r.builder.Update(usersTable).
		Set("password_hash", passwordHash).
		Set("updated_at", changedAt).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update password sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpdateLoginState writes the lockout counters and, when set, the last login stamp.
func (r *UserRepository) UpdateLoginState(ctx context.Context, id string, state domain.LoginState) error {
	query := r.builder.Update(usersTable).
		Set("failed_attempts", state.FailedAttempts).
		Set("lock_until", optionalTime(state.LockUntil))
	if state.LastLogin != nil {
		query = query.Set("last_login", state.LastLogin.UTC())
	}

	stmt, args, err := query.Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build update login state sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update login state: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// RegisterFailedLogin increments failed_attempts and sets lock_until in a single
// statement so concurrent failures cannot lose an increment.
func (r *UserRepository) RegisterFailedLogin(ctx context.Context, id string, policy domain.LockoutPolicy, now time.Time) (domain.LockState, error) {
	policy = policy.Normalize()
	lockUntil := now.UTC().Add(policy.Duration)

	stmt, args, err := r.builder.Update(usersTable).
		Set("failed_attempts", squirrel.Expr("failed_attempts + 1")).
		Set("lock_until", squirrel.Expr("CASE WHEN failed_attempts + 1 >= ? THEN ?::timestamptz ELSE NULL END", policy.Threshold, lockUntil)).
		Where(squirrel.Eq{"id": id}).
		Suffix("RETURNING failed_attempts, lock_until").
		ToSql()
	if err != nil {
		return domain.LockState{}, fmt.Errorf("build register failed login sql: %w", err)
	}

	var (
		state  domain.LockState
		locked sql.NullTime
	)
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&state.Attempts, &locked); err != nil {
		if isNoRows(err) {
			return domain.LockState{}, repository.ErrNotFound
		}
		return domain.LockState{}, fmt.Errorf("register failed login: %w", err)
	}
	state.LockedUntil = nullableTimePtr(locked)
	return state, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user      domain.User
		role      string
		status    string
		lockUntil sql.NullTime
		lastLogin sql.NullTime
	)

	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Name,
		&role,
		&status,
		&user.FailedAttempts,
		&lockUntil,
		&lastLogin,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}

	user.Role = domain.Role(role)
	user.Status = domain.UserStatus(status)
	user.LockUntil = nullableTimePtr(lockUntil)
	user.LastLogin = nullableTimePtr(lastLogin)
	return &user, nil
}

var _ port.UserRepository = (*UserRepository)(nil)
