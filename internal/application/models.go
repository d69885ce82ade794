package application

import (
	"time"

	"github.com/example/seat-booking-client/internal/eligibility"
)

// Credentials is the access/refresh pair held by a session. A zero
// AccessTokenExpiry is the sentinel for an unknown expiry and is only valid
// for legacy sessions without a refresh token.
type Credentials struct {
	AccessToken       string
	RefreshToken      string
	AccessTokenExpiry time.Time
}

// HasAccessToken reports whether an access token is held.
func (c Credentials) HasAccessToken() bool {
	return c.AccessToken != ""
}

// CanRefresh reports whether the credentials carry refresh capability.
func (c Credentials) CanRefresh() bool {
	return c.RefreshToken != ""
}

// Stale reports whether the access token must be refreshed before use.
// Legacy tokens without refresh capability are trusted until the backend
// rejects them.
func (c Credentials) Stale(now time.Time) bool {
	if !c.CanRefresh() {
		return false
	}
	if c.AccessToken == "" || c.AccessTokenExpiry.IsZero() {
		return true
	}
	return !now.Before(c.AccessTokenExpiry)
}

// CredentialResponse is the credential payload issued by login, verify and
// refresh endpoints. Legacy backends only populate JWT.
type CredentialResponse struct {
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	JWT          string `json:"jwt,omitempty"`
	// AccessTokenExpiry is resolved by the transport from the token claims.
	AccessTokenExpiry time.Time `json:"-"`
}

// Credentials converts the response into the held credential shape.
func (r CredentialResponse) Credentials() Credentials {
	if r.AccessToken == "" && r.JWT != "" {
		return Credentials{AccessToken: r.JWT}
	}
	return Credentials{
		AccessToken:       r.AccessToken,
		RefreshToken:      r.RefreshToken,
		AccessTokenExpiry: r.AccessTokenExpiry,
	}
}

// SessionState enumerates the lifecycle of a session.
type SessionState int

const (
	StateUnknown SessionState = iota
	StateRestoring
	StateAuthenticated
	StateAnonymous
)

func (s SessionState) String() string {
	switch s {
	case StateRestoring:
		return "restoring"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// Identity is the confirmed principal behind a session.
type Identity struct {
	Username string
}

// Session is a snapshot of the session manager's state.
type Session struct {
	State      SessionState
	BackendURL string
	Identity   Identity
	Policy     eligibility.Policy
}

// Authenticated reports whether the session has a confirmed identity.
func (s Session) Authenticated() bool {
	return s.State == StateAuthenticated
}

// Target addresses an authorized backend call.
type Target struct {
	BaseURL     string
	AccessToken string
}

// Organization identifies the tenant resolved by preflight.
type Organization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AuthProvider is an external identity provider offered for an email address.
type AuthProvider struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PreflightResult describes which login flows apply to an email address.
type PreflightResult struct {
	Organization    Organization   `json:"organization"`
	AuthProviders   []AuthProvider `json:"authProviders"`
	RequirePassword bool           `json:"requirePassword"`
	BackendVersion  string         `json:"backendVersion,omitempty"`
}

// Location is a bookable area.
type Location struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	Description           string `json:"description,omitempty"`
	MaxConcurrentBookings int    `json:"maxConcurrentBookings,omitempty"`
}

// Space is a single seat inside a location.
type Space struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	LocationID string    `json:"locationId,omitempty"`
	Available  bool      `json:"available"`
	Location   *Location `json:"location,omitempty"`
}

// Booking is an existing reservation of the signed-in user.
type Booking struct {
	ID    string    `json:"id"`
	Enter time.Time `json:"enter"`
	Leave time.Time `json:"leave"`
	Space Space     `json:"space"`
}

// PrecheckRequest asks the backend whether a window could be booked.
type PrecheckRequest struct {
	LocationID string    `json:"locationId"`
	Enter      time.Time `json:"enter"`
	Leave      time.Time `json:"leave"`
}

// BookingRequest creates a reservation for a space.
type BookingRequest struct {
	SpaceID string    `json:"spaceId"`
	Enter   time.Time `json:"enter"`
	Leave   time.Time `json:"leave"`
}
