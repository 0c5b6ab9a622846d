package domain

import (
	"testing"
	"time"
)

func TestUserProjections(t *testing.T) {
	until := time.Now().Add(time.Minute)
	u := User{
		ID:             "u1",
		Email:          "a@x.com",
		PasswordHash:   "hash",
		Name:           "Ana",
		Role:           RoleTechnician,
		Status:         UserStatusActive,
		FailedAttempts: 2,
		LockUntil:      &until,
	}

	if id := u.Identity(); id.ID != "u1" || id.Email != "a@x.com" || id.Name != "Ana" || id.Role != RoleTechnician {
		t.Fatalf("unexpected identity: %+v", id)
	}
	if st := u.LockState(); st.Attempts != 2 || st.LockedUntil != &until {
		t.Fatalf("unexpected lock state: %+v", st)
	}
	if u.Sanitized().PasswordHash != "" {
		t.Fatal("sanitized user still carries hash")
	}
	if u.PasswordHash != "hash" {
		t.Fatal("Sanitized must not mutate the receiver")
	}
	if !u.IsActive() {
		t.Fatal("expected active user")
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Lab.Admin@Example.COM "); got != "lab.admin@example.com" {
		t.Fatalf("unexpected normalized email %q", got)
	}
}
