package security

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func newTestHasher(t *testing.T) *PasswordHasher {
	t.Helper()
	cfg := DefaultArgon2Config()
	cfg.Memory = 8 * 1024
	cfg.Iterations = 1
	h, err := NewPasswordHasher(cfg)
	if err != nil {
		t.Fatalf("NewPasswordHasher returned error: %v", err)
	}
	return h
}

func TestHashAndVerifySuccess(t *testing.T) {
	h := newTestHasher(t)
	password := "correct horse battery staple"

	encoded, err := h.Hash(password)
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}

	parts := strings.Split(encoded, "$")
	if len(parts) != 5 {
		t.Fatalf("unexpected hash format: %q", encoded)
	}
	if parts[0] != argon2Variant || parts[1] != argon2Version {
		t.Fatalf("unexpected header: %s$%s", parts[0], parts[1])
	}
	if !strings.Contains(parts[2], "m=8192") || !strings.Contains(parts[2], "t=1") {
		t.Fatalf("encoded hash does not reflect configured parameters: %s", parts[2])
	}

	ok, err := h.Verify(password, encoded)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if !ok {
		t.Fatal("Verify returned false for correct password")
	}
}

func TestVerifyIncorrectPassword(t *testing.T) {
	h := newTestHasher(t)
	encoded, err := h.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}

	ok, err := h.Verify("Tr0ub4dor&3", encoded)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if ok {
		t.Fatal("Verify returned true for incorrect password")
	}
}

func TestVerifyInvalidFormat(t *testing.T) {
	h := newTestHasher(t)
	if _, err := h.Verify("password", "invalid-format"); err == nil {
		t.Fatal("expected error for invalid format")
	}
}

func TestVerifyEmptyInputs(t *testing.T) {
	h := newTestHasher(t)
	ok, err := h.Verify("", "")
	if err != nil || ok {
		t.Fatalf("expected false/nil for empty inputs, got %v/%v", ok, err)
	}
}

func TestVerifyLegacyBcrypt(t *testing.T) {
	h := newTestHasher(t)
	legacy, err := bcrypt.GenerateFromPassword([]byte("legacy-secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	ok, err := h.Verify("legacy-secret", string(legacy))
	if err != nil || !ok {
		t.Fatalf("expected legacy hash to verify, got %v/%v", ok, err)
	}
	ok, err = h.Verify("wrong", string(legacy))
	if err != nil || ok {
		t.Fatalf("expected mismatch without error, got %v/%v", ok, err)
	}
	if !h.NeedsRehash(string(legacy)) {
		t.Fatal("bcrypt hashes should be flagged for rehash")
	}
}

func TestNewPasswordHasherRejectsWeakConfig(t *testing.T) {
	if _, err := NewPasswordHasher(Argon2Config{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}); err == nil {
		t.Fatal("expected error for low memory")
	}
}
