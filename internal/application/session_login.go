package application

import (
	"context"
	"fmt"
	"strings"
)

const (
	minEmailLength    = 6
	minPasswordLength = 8
)

// Preflight resolves the login flows available for email at backendURL.
func (m *SessionManager) Preflight(ctx context.Context, backendURL, email string) (result PreflightResult, err error) {
	if m == nil {
		err = fmt.Errorf("SessionManager is nil")
		return
	}

	email = normalizeEmail(email)
	backendURL = strings.TrimRight(strings.TrimSpace(backendURL), "/")
	logger := m.loggerWith(ctx, "Preflight", "backend_url", backendURL)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "preflight failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With(
			"organization", result.Organization.Name,
			"providers", len(result.AuthProviders),
			"require_password", result.RequirePassword,
		).InfoContext(ctx, "preflight succeeded")
	}()

	vErr := &ValidationError{}
	validateBackendURL(vErr, backendURL)
	validateEmail(vErr, email)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	result, err = m.api.Preflight(ctx, backendURL, email)
	if err != nil && isRejection(err) {
		err = ErrInvalidCredentials
	}
	return
}

// LoginWithPassword authenticates with email and password and adopts the
// issued credentials.
func (m *SessionManager) LoginWithPassword(ctx context.Context, backendURL, email, password string) (Session, error) {
	if m == nil {
		return Session{}, fmt.Errorf("SessionManager is nil")
	}

	email = normalizeEmail(email)
	backendURL = strings.TrimRight(strings.TrimSpace(backendURL), "/")

	vErr := &ValidationError{}
	validateBackendURL(vErr, backendURL)
	validateEmail(vErr, email)
	if len(password) < minPasswordLength {
		vErr.add("password", fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if vErr.HasErrors() {
		return m.Session(), vErr
	}

	resp, err := m.api.PasswordLogin(ctx, backendURL, email, password)
	if err != nil {
		if isRejection(err) {
			err = ErrInvalidCredentials
		}
		m.loggerWith(ctx, "LoginWithPassword").ErrorContext(ctx, "password login failed", "error", err, "error_kind", ErrorKind(err))
		return m.Session(), err
	}
	return m.Login(ctx, backendURL, resp)
}

// LoginWithProvider completes an identity provider login identified by verifyID.
func (m *SessionManager) LoginWithProvider(ctx context.Context, backendURL, verifyID string) (Session, error) {
	if m == nil {
		return Session{}, fmt.Errorf("SessionManager is nil")
	}

	backendURL = strings.TrimRight(strings.TrimSpace(backendURL), "/")
	verifyID = strings.TrimSpace(verifyID)

	vErr := &ValidationError{}
	validateBackendURL(vErr, backendURL)
	if verifyID == "" {
		vErr.add("verify_id", "verification id is required")
	}
	if vErr.HasErrors() {
		return m.Session(), vErr
	}

	resp, err := m.api.VerifyLogin(ctx, backendURL, verifyID)
	if err != nil {
		if isRejection(err) {
			err = ErrInvalidCredentials
		}
		m.loggerWith(ctx, "LoginWithProvider").ErrorContext(ctx, "provider login failed", "error", err, "error_kind", ErrorKind(err))
		return m.Session(), err
	}
	return m.Login(ctx, backendURL, resp)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(vErr *ValidationError, email string) {
	switch {
	case email == "":
		vErr.add("email", "email is required")
	case len(email) < minEmailLength || strings.Count(email, "@") != 1 || strings.HasPrefix(email, "@"):
		vErr.add("email", "email is invalid")
	}
}

func validateBackendURL(vErr *ValidationError, backendURL string) {
	trimmed := strings.TrimSpace(backendURL)
	if trimmed == "" {
		vErr.add("backend_url", "backend url is required")
		return
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		vErr.add("backend_url", "backend url must start with http:// or https://")
	}
}
