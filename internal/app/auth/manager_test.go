package auth

import (
	"errors"
	"testing"
	"time"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager("unit-secret", time.Hour, []User{{
		ID:           "user-1",
		Handle:       "Ops",
		PasswordHash: HashPassword("hunter2"),
		Role:         "admin",
	}})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestLoginAndVerify(t *testing.T) {
	m := newTestManager(t)

	token, err := m.Login("ops", "hunter2")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	identity, err := m.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if identity.UserID != "user-1" || identity.Role != "admin" {
		t.Fatalf("unexpected identity: %+v", identity)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	m := newTestManager(t)

	if _, err := m.Login("ops", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := m.Login("nobody", "hunter2"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestVerifyRejectsForeignToken(t *testing.T) {
	m := newTestManager(t)

	other, err := NewManager("different-secret", time.Hour, []User{{
		ID:           "user-1",
		Handle:       "ops",
		PasswordHash: HashPassword("hunter2"),
		Role:         "admin",
	}})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	token, err := other.Login("ops", "hunter2")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, err := m.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}

	if _, err := m.Verify("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for garbage, got %v", err)
	}
}

func TestNewManagerValidation(t *testing.T) {
	if _, err := NewManager("", time.Hour, nil); err == nil {
		t.Fatal("expected error for empty secret")
	}
	if _, err := NewManager("secret", time.Hour, []User{{Handle: "ops"}}); err == nil {
		t.Fatal("expected error for user without password hash")
	}
}
