package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/seat-booking-client/internal/testfixtures"
)

func TestSessionManager_Preflight(t *testing.T) {
	t.Parallel()

	t.Run("validates inputs before calling the backend", func(t *testing.T) {
		t.Parallel()
		clock := testfixtures.NewClock(time.Time{})
		manager := NewSessionManager(newAuthAPIStub(clock.Now), testfixtures.NewMemoryStore(nil), clock.Now, 0)

		_, err := manager.Preflight(context.Background(), "booking.example.com", "@x")
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		for _, field := range []string{"backend_url", "email"} {
			if _, ok := vErr.FieldErrors[field]; !ok {
				t.Fatalf("expected %s error, got %+v", field, vErr.FieldErrors)
			}
		}
	})

	t.Run("returns the available login flows", func(t *testing.T) {
		t.Parallel()
		clock := testfixtures.NewClock(time.Time{})
		api := newAuthAPIStub(clock.Now)
		api.preflight = PreflightResult{
			Organization:    Organization{ID: "org-1", Name: "Example"},
			AuthProviders:   []AuthProvider{{ID: "idp-1", Name: "SSO"}},
			RequirePassword: false,
		}
		manager := NewSessionManager(api, testfixtures.NewMemoryStore(nil), clock.Now, 0)

		result, err := manager.Preflight(context.Background(), " https://booking.example.com/ ", " Alice@Example.com ")
		if err != nil {
			t.Fatalf("Preflight returned error: %v", err)
		}
		if result.Organization.ID != "org-1" || len(result.AuthProviders) != 1 {
			t.Fatalf("unexpected result %+v", result)
		}
	})

	t.Run("unknown organization maps to invalid credentials", func(t *testing.T) {
		t.Parallel()
		clock := testfixtures.NewClock(time.Time{})
		api := newAuthAPIStub(clock.Now)
		api.preflightErr = ErrNotFound
		manager := NewSessionManager(api, testfixtures.NewMemoryStore(nil), clock.Now, 0)

		if _, err := manager.Preflight(context.Background(), testBackendURL, "alice@example.com"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	})
}

func TestSessionManager_LoginWithPassword(t *testing.T) {
	t.Parallel()

	t.Run("rejects short passwords locally", func(t *testing.T) {
		t.Parallel()
		clock := testfixtures.NewClock(time.Time{})
		manager := NewSessionManager(newAuthAPIStub(clock.Now), testfixtures.NewMemoryStore(nil), clock.Now, 0)

		_, err := manager.LoginWithPassword(context.Background(), testBackendURL, "alice@example.com", "short")
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if _, ok := vErr.FieldErrors["password"]; !ok {
			t.Fatalf("expected password error, got %+v", vErr.FieldErrors)
		}
	})

	t.Run("adopts issued credentials", func(t *testing.T) {
		t.Parallel()
		clock := testfixtures.NewClock(time.Time{})
		api := newAuthAPIStub(clock.Now)
		api.login = CredentialResponse{AccessToken: "access-1", RefreshToken: "refresh-1", AccessTokenExpiry: clock.Now().Add(time.Hour)}
		store := testfixtures.NewMemoryStore(nil)
		manager := NewSessionManager(api, store, clock.Now, 0)

		session, err := manager.LoginWithPassword(context.Background(), testBackendURL+"/", "alice@example.com", "correct-horse")
		if err != nil {
			t.Fatalf("LoginWithPassword returned error: %v", err)
		}
		if !session.Authenticated() || session.BackendURL != testBackendURL {
			t.Fatalf("unexpected session %+v", session)
		}
		if value, _ := store.Value(KeyBackendURL); value != testBackendURL {
			t.Fatalf("expected normalized url to be stored, got %q", value)
		}
	})

	t.Run("rejected password maps to invalid credentials", func(t *testing.T) {
		t.Parallel()
		clock := testfixtures.NewClock(time.Time{})
		api := newAuthAPIStub(clock.Now)
		api.loginErr = ErrUnauthorized
		manager := NewSessionManager(api, testfixtures.NewMemoryStore(nil), clock.Now, 0)

		if _, err := manager.LoginWithPassword(context.Background(), testBackendURL, "alice@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("transient failure is reported as is", func(t *testing.T) {
		t.Parallel()
		clock := testfixtures.NewClock(time.Time{})
		api := newAuthAPIStub(clock.Now)
		api.loginErr = ErrUnavailable
		manager := NewSessionManager(api, testfixtures.NewMemoryStore(nil), clock.Now, 0)

		if _, err := manager.LoginWithPassword(context.Background(), testBackendURL, "alice@example.com", "correct-horse"); !errors.Is(err, ErrUnavailable) {
			t.Fatalf("expected ErrUnavailable, got %v", err)
		}
	})
}

func TestSessionManager_LoginWithProvider(t *testing.T) {
	t.Parallel()

	t.Run("requires a verification id", func(t *testing.T) {
		t.Parallel()
		clock := testfixtures.NewClock(time.Time{})
		manager := NewSessionManager(newAuthAPIStub(clock.Now), testfixtures.NewMemoryStore(nil), clock.Now, 0)

		_, err := manager.LoginWithProvider(context.Background(), testBackendURL, "  ")
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})

	t.Run("adopts legacy credentials from the callback", func(t *testing.T) {
		t.Parallel()
		clock := testfixtures.NewClock(time.Time{})
		api := newAuthAPIStub(clock.Now)
		api.verify = CredentialResponse{JWT: "legacy-jwt"}
		manager := NewSessionManager(api, testfixtures.NewMemoryStore(nil), clock.Now, 0)

		session, err := manager.LoginWithProvider(context.Background(), testBackendURL, "callback-1")
		if err != nil {
			t.Fatalf("LoginWithProvider returned error: %v", err)
		}
		if !session.Authenticated() {
			t.Fatalf("expected authenticated, got %s", session.State)
		}
	})
}
