package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/arklim/labsys-access/internal/core/domain"
	"github.com/arklim/labsys-access/internal/core/port"
	"github.com/arklim/labsys-access/internal/repository"
)

var userRowColumns = []string{
	"id", "email", "password_hash", "name", "role", "status", "failed_attempts", "lock_until", "last_login", "created_at", "updated_at",
}

func TestUserRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)
	now := time.Now().UTC()
	user := domain.User{
		ID:           "user-1",
		Email:        "tech@lab.example",
		PasswordHash: "argon2id$...",
		Name:         "Tech",
		Role:         domain.RoleTechnician,
		Status:       domain.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	mock.ExpectExec(`INSERT INTO lab\.users`).
		WithArgs("user-1", "tech@lab.example", "argon2id$...", "Tech", "technician", "active", 0, nil, nil, now, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_CreateDuplicateEmail(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)
	mock.ExpectExec(`INSERT INTO lab\.users`).
		WithArgs(
			"user-1", "dup@lab.example", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})

	err = repo.Create(context.Background(), domain.User{ID: "user-1", Email: "dup@lab.example"})
	if !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_GetByEmailNormalizes(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)
	created := time.Now().UTC().Add(-time.Hour)
	lockUntil := time.Now().UTC().Add(10 * time.Minute)

	rows := pgxmock.NewRows(userRowColumns).AddRow(
		"user-1", "a@x.com", "hash", "Ana", "customer", "active", 3, lockUntil, nil, created, created,
	)
	mock.ExpectQuery(`SELECT .*FROM lab\.users WHERE email = \$1`).
		WithArgs("a@x.com").
		WillReturnRows(rows)

	user, err := repo.GetByEmail(context.Background(), "  A@X.com ")
	if err != nil {
		t.Fatalf("GetByEmail returned error: %v", err)
	}
	if user.Role != domain.RoleCustomer || user.Status != domain.UserStatusActive {
		t.Fatalf("unexpected role/status: %s/%s", user.Role, user.Status)
	}
	if user.FailedAttempts != 3 || user.LockUntil == nil || !user.LockUntil.Equal(lockUntil) {
		t.Fatalf("unexpected lock state: %d %v", user.FailedAttempts, user.LockUntil)
	}
	if user.LastLogin != nil {
		t.Fatalf("expected nil last login, got %v", user.LastLogin)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_GetByIDNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)
	mock.ExpectQuery(`SELECT .*FROM lab\.users WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUserRepository_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)
	now := time.Now().UTC()
	rows := pgxmock.NewRows(userRowColumns).
		AddRow("user-2", "b@lab.example", "h", "Bea", "technician", "active", 0, nil, now, now, now).
		AddRow("user-1", "a@lab.example", "h", "Ana", "technician", "inactive", 0, nil, nil, now, now)

	mock.ExpectQuery(`SELECT .*FROM lab\.users WHERE role = \$1 ORDER BY created_at DESC, id LIMIT 10`).
		WithArgs("technician").
		WillReturnRows(rows)

	users, err := repo.List(context.Background(), port.UserFilter{Role: domain.RoleTechnician, Limit: 10})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(users) != 2 || users[0].ID != "user-2" || users[1].Status != domain.UserStatusInactive {
		t.Fatalf("unexpected users: %+v", users)
	}
	if users[0].LastLogin == nil {
		t.Fatal("expected last login to be populated")
	}
}

func TestUserRepository_UpdateNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)
	now := time.Now().UTC()
	mock.ExpectExec(`UPDATE lab\.users SET name = \$1, role = \$2, status = \$3, updated_at = \$4 WHERE id = \$5`).
		WithArgs("Ana", "administrator", "inactive", now, "user-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = repo.Update(context.Background(), domain.User{ID: "user-1", Name: "Ana", Role: domain.RoleAdministrator, Status: domain.UserStatusInactive, UpdatedAt: now})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUserRepository_UpdateLoginStateSuccess(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)
	now := time.Now().UTC()

	mock.ExpectExec(`UPDATE lab\.users SET failed_attempts = \$1, lock_until = \$2, last_login = \$3 WHERE id = \$4`).
		WithArgs(0, nil, now, "user-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.UpdateLoginState(context.Background(), "user-1", domain.LoginState{LastLogin: &now}); err != nil {
		t.Fatalf("UpdateLoginState returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_UpdateLoginStateFailureKeepsLastLogin(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)
	until := time.Now().UTC().Add(15 * time.Minute)

	mock.ExpectExec(`UPDATE lab\.users SET failed_attempts = \$1, lock_until = \$2 WHERE id = \$3`).
		WithArgs(3, until, "user-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.UpdateLoginState(context.Background(), "user-1", domain.LoginState{FailedAttempts: 3, LockUntil: &until}); err != nil {
		t.Fatalf("UpdateLoginState returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_RegisterFailedLoginAtomic(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	until := now.Add(15 * time.Minute)

	mock.ExpectQuery(`UPDATE lab\.users SET failed_attempts = failed_attempts \+ 1, lock_until = CASE WHEN failed_attempts \+ 1 >= \$1 THEN \$2::timestamptz ELSE NULL END WHERE id = \$3 RETURNING failed_attempts, lock_until`).
		WithArgs(3, until, "user-1").
		WillReturnRows(pgxmock.NewRows([]string{"failed_attempts", "lock_until"}).AddRow(3, until))

	state, err := repo.RegisterFailedLogin(context.Background(), "user-1", domain.DefaultLockoutPolicy(), now)
	if err != nil {
		t.Fatalf("RegisterFailedLogin returned error: %v", err)
	}
	if state.Attempts != 3 || state.LockedUntil == nil || !state.LockedUntil.Equal(until) {
		t.Fatalf("unexpected state: %+v", state)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_UpdatePassword(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)
	now := time.Now().UTC()
	mock.ExpectExec(`UPDATE lab\.users SET password_hash = \$1, updated_at = \$2 WHERE id = \$3`).
		WithArgs("new-hash", now, "user-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.UpdatePassword(context.Background(), "user-1", "new-hash", now); err != nil {
		t.Fatalf("UpdatePassword returned error: %v", err)
	}
}
