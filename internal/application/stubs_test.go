package application

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/example/seat-booking-client/internal/eligibility"
	"github.com/example/seat-booking-client/internal/testfixtures"
)

const testBackendURL = "https://booking.example.com"

func standardSettings() []eligibility.Setting {
	return []eligibility.Setting{
		{Name: eligibility.SettingMaxBookingsPerUser, Value: "3"},
		{Name: eligibility.SettingMaxDaysInAdvance, Value: "14"},
		{Name: eligibility.SettingMaxBookingDurationHours, Value: "8"},
	}
}

// authAPIStub records calls and lets tests override individual endpoints.
type authAPIStub struct {
	mu  sync.Mutex
	now func() time.Time

	preflight    PreflightResult
	preflightErr error
	login        CredentialResponse
	loginErr     error
	verify       CredentialResponse
	verifyErr    error
	refresh      func(ctx context.Context, refreshToken string) (CredentialResponse, error)
	self         func(target Target) (Identity, error)
	settings     []eligibility.Setting
	settingsErr  error
	logoutErr    error

	refreshCalls  int
	refreshTokens []string
	selfCalls     int
	selfTokens    []string
	logouts       []Target
	issued        int
}

func newAuthAPIStub(now func() time.Time) *authAPIStub {
	return &authAPIStub{
		now:      now,
		settings: standardSettings(),
	}
}

func (s *authAPIStub) Preflight(_ context.Context, _, _ string) (PreflightResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preflight, s.preflightErr
}

func (s *authAPIStub) PasswordLogin(_ context.Context, _, _, _ string) (CredentialResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.login, s.loginErr
}

func (s *authAPIStub) VerifyLogin(_ context.Context, _, _ string) (CredentialResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verify, s.verifyErr
}

func (s *authAPIStub) RefreshCredentials(ctx context.Context, _ string, refreshToken string) (CredentialResponse, error) {
	s.mu.Lock()
	s.refreshCalls++
	s.refreshTokens = append(s.refreshTokens, refreshToken)
	hook := s.refresh
	s.mu.Unlock()
	if hook != nil {
		return hook(ctx, refreshToken)
	}
	return s.issue(), nil
}

// issue returns a fresh refresh-capable pair valid for fifteen minutes.
func (s *authAPIStub) issue() CredentialResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	return CredentialResponse{
		AccessToken:       fmt.Sprintf("access-%d", s.issued+1),
		RefreshToken:      fmt.Sprintf("refresh-%d", s.issued+1),
		AccessTokenExpiry: s.now().Add(15 * time.Minute),
	}
}

func (s *authAPIStub) Logout(_ context.Context, target Target, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logouts = append(s.logouts, target)
	return s.logoutErr
}

func (s *authAPIStub) GetSelf(_ context.Context, target Target) (Identity, error) {
	s.mu.Lock()
	s.selfCalls++
	s.selfTokens = append(s.selfTokens, target.AccessToken)
	hook := s.self
	s.mu.Unlock()
	if hook != nil {
		return hook(target)
	}
	return Identity{Username: "alice@example.com"}, nil
}

func (s *authAPIStub) ListSettings(_ context.Context, _ Target) ([]eligibility.Setting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]eligibility.Setting(nil), s.settings...), s.settingsErr
}

func (s *authAPIStub) counts() (refresh, self int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCalls, s.selfCalls
}

// bookingAPIStub serves a fixed set of locations and spaces.
type bookingAPIStub struct {
	mu sync.Mutex

	preferences    []eligibility.Setting
	preferencesErr error
	bookings       []Booking
	bookingsErr    error
	precheckErr    error
	createErr      error
	deleteErr      error
	locations      map[string]Location
	listBookings   func(ctx context.Context) ([]Booking, error)
	availability   func(ctx context.Context, locationID string, interval eligibility.Interval) ([]Space, error)

	listBookingCalls int
	locationCalls    int
	prechecks        []PrecheckRequest
	creates          []BookingRequest
	deletes          []string
}

func newBookingAPIStub(locations ...Location) *bookingAPIStub {
	stub := &bookingAPIStub{locations: make(map[string]Location)}
	for _, loc := range locations {
		stub.locations[loc.ID] = loc
	}
	return stub
}

func (s *bookingAPIStub) ListPreferences(_ context.Context, _ Target) ([]eligibility.Setting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]eligibility.Setting(nil), s.preferences...), s.preferencesErr
}

func (s *bookingAPIStub) ListBookings(ctx context.Context, _ Target) ([]Booking, error) {
	s.mu.Lock()
	s.listBookingCalls++
	hook := s.listBookings
	bookings := append([]Booking(nil), s.bookings...)
	err := s.bookingsErr
	s.mu.Unlock()
	if hook != nil {
		return hook(ctx)
	}
	return bookings, err
}

func (s *bookingAPIStub) Precheck(_ context.Context, _ Target, req PrecheckRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prechecks = append(s.prechecks, req)
	return s.precheckErr
}

func (s *bookingAPIStub) CreateBooking(_ context.Context, _ Target, req BookingRequest) (Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates = append(s.creates, req)
	if s.createErr != nil {
		return Booking{}, s.createErr
	}
	booking := Booking{
		ID:    fmt.Sprintf("booking-%d", len(s.creates)),
		Enter: req.Enter,
		Leave: req.Leave,
		Space: Space{ID: req.SpaceID},
	}
	s.bookings = append(s.bookings, booking)
	return booking, nil
}

func (s *bookingAPIStub) DeleteBooking(_ context.Context, _ Target, bookingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, bookingID)
	if s.deleteErr != nil {
		return s.deleteErr
	}
	for i, b := range s.bookings {
		if b.ID == bookingID {
			s.bookings = append(s.bookings[:i], s.bookings[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *bookingAPIStub) ListLocations(_ context.Context, _ Target) ([]Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locationCalls++
	out := make([]Location, 0, len(s.locations))
	for _, loc := range s.locations {
		out = append(out, loc)
	}
	return out, nil
}

func (s *bookingAPIStub) GetLocation(_ context.Context, _ Target, locationID string) (Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locationCalls++
	loc, ok := s.locations[locationID]
	if !ok {
		return Location{}, ErrNotFound
	}
	return loc, nil
}

func (s *bookingAPIStub) ListSpaceAvailability(ctx context.Context, _ Target, locationID string, interval eligibility.Interval) ([]Space, error) {
	s.mu.Lock()
	hook := s.availability
	s.mu.Unlock()
	if hook != nil {
		return hook(ctx, locationID, interval)
	}
	return []Space{{ID: locationID + "-desk", LocationID: locationID, Available: true}}, nil
}

func (s *bookingAPIStub) bookingCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listBookingCalls
}

// signedIn returns a manager authenticated with a pair valid for fifteen
// minutes on clock.
func signedIn(t *testing.T, api *authAPIStub, store *testfixtures.MemoryStore, clock *testfixtures.Clock) *SessionManager {
	t.Helper()
	manager := NewSessionManager(api, store, clock.Now, 0)
	t.Cleanup(manager.Close)
	session, err := manager.Login(context.Background(), testBackendURL, CredentialResponse{
		AccessToken:       "access-1",
		RefreshToken:      "refresh-1",
		AccessTokenExpiry: clock.Now().Add(15 * time.Minute),
	})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if !session.Authenticated() {
		t.Fatalf("expected authenticated session, got %s", session.State)
	}
	return manager
}
