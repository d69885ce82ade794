package application

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized is returned when the backend rejects the presented credentials.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrForbidden is returned when the backend refuses an authenticated request.
	ErrForbidden = errors.New("application: forbidden")
	// ErrNotFound is returned when the requested backend resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrInvalidCredentials is returned when a login attempt is rejected.
	ErrInvalidCredentials = errors.New("application: invalid credentials")
	// ErrNotAuthenticated is returned when an operation requires a session but none is held.
	ErrNotAuthenticated = errors.New("application: not authenticated")
	// ErrSessionExpired is returned when a retried operation is rejected after a refresh.
	ErrSessionExpired = errors.New("application: session expired")
	// ErrUnavailable is returned for transient transport or server failures.
	ErrUnavailable = errors.New("application: backend unavailable")
	// ErrNotEligible is returned when a submission is attempted against a failing verdict.
	ErrNotEligible = errors.New("application: booking window not eligible")
)

// BackendError carries an application error code returned by the backend.
type BackendError struct {
	Status int
	Code   int
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != 0 {
		return fmt.Sprintf("backend rejected request: status %d, code %d", e.Status, e.Code)
	}
	return fmt.Sprintf("backend rejected request: status %d", e.Status)
}

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// isRejection reports whether err means the backend refused the credentials or
// the request itself, as opposed to a transient failure. Timeouts and rate
// limiting are transient.
func isRejection(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidCredentials) {
		return true
	}
	var backendErr *BackendError
	if !errors.As(err, &backendErr) {
		return false
	}
	switch backendErr.Status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return backendErr.Status >= 400 && backendErr.Status < 500
}
