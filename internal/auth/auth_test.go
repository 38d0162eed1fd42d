package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/Dan9191/portfolio-analytics/internal/config"
)

func newTestAuthenticator(t *testing.T) *Authenticator {
	t.Helper()
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	return NewAuthenticator(&config.Config{
		OperatorUsername:     "analyst",
		OperatorPasswordHash: hash,
		JWTSecret:            "test-secret",
	})
}

func TestLoginAndVerify(t *testing.T) {
	t.Parallel()
	a := newTestAuthenticator(t)

	token, err := a.Login("analyst", "s3cret")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	subject, err := a.Verify(token)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if subject != "analyst" {
		t.Errorf("Expected subject analyst, got %s", subject)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	t.Parallel()
	a := newTestAuthenticator(t)

	if _, err := a.Login("analyst", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, err := a.Login("someone", "s3cret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials for unknown user, got %v", err)
	}

	disabled := NewAuthenticator(&config.Config{OperatorUsername: "analyst", JWTSecret: "x"})
	if _, err := disabled.Login("analyst", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected login disabled without a password hash, got %v", err)
	}
}

func TestVerifyRejectsExpiredAndForeignTokens(t *testing.T) {
	t.Parallel()
	a := newTestAuthenticator(t)

	token, err := a.Login("analyst", "s3cret")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	a.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	if _, err := a.Verify(token); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected expired token to be rejected, got %v", err)
	}

	other := NewAuthenticator(&config.Config{JWTSecret: "other-secret"})
	a.now = time.Now
	if _, err := other.Verify(token); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected token signed with another secret to be rejected, got %v", err)
	}
	if _, err := a.Verify("not-a-token"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected garbage to be rejected, got %v", err)
	}
}
