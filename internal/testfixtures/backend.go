package testfixtures

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/example/seat-booking-client/internal/eligibility"
)

// FakeLocation is a location served by FakeBackend.
type FakeLocation struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FakeSpace is a space served by FakeBackend.
type FakeSpace struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	LocationID string `json:"locationId"`
	Available  bool   `json:"available"`
}

// FakeBooking is a booking held by FakeBackend.
type FakeBooking struct {
	ID    string    `json:"id"`
	Enter time.Time `json:"enter"`
	Leave time.Time `json:"leave"`
	Space FakeSpace `json:"space"`
	owner string
}

type fakeFailure struct {
	status int
	code   int
}

type accessGrant struct {
	email     string
	expiresAt time.Time
}

// FakeBackend is an in-process booking backend routed with chi. Access tokens
// are HS256 JWTs carrying an exp claim; refresh tokens are single use.
type FakeBackend struct {
	URL string

	server    *httptest.Server
	clock     func() time.Time
	secret    []byte
	accessTTL time.Duration
	refreshes *IDGenerator
	ids       *IDGenerator

	mu          sync.Mutex
	users       map[string]string
	verifyIDs   map[string]string
	access      map[string]accessGrant
	refresh     map[string]string
	settings    []eligibility.Setting
	preferences []eligibility.Setting
	locations   []FakeLocation
	spaces      map[string][]FakeSpace
	bookings    []FakeBooking
	calls       map[string]int
	failures    map[string]fakeFailure
	legacy      bool
}

// NewFakeBackend starts a backend that stops when tb finishes. clock drives
// token expiry; nil means the wall clock.
func NewFakeBackend(tb testing.TB, clock func() time.Time) *FakeBackend {
	tb.Helper()
	if clock == nil {
		clock = time.Now
	}
	b := &FakeBackend{
		clock:     clock,
		secret:    []byte("fake-backend-secret"),
		accessTTL: 15 * time.Minute,
		refreshes: NewIDGenerator("refresh"),
		ids:       NewIDGenerator("booking"),
		users:     make(map[string]string),
		verifyIDs: make(map[string]string),
		access:    make(map[string]accessGrant),
		refresh:   make(map[string]string),
		spaces:    make(map[string][]FakeSpace),
		calls:     make(map[string]int),
		failures:  make(map[string]fakeFailure),
		settings: []eligibility.Setting{
			{Name: eligibility.SettingMaxBookingsPerUser, Value: "3"},
			{Name: eligibility.SettingMaxDaysInAdvance, Value: "14"},
			{Name: eligibility.SettingMaxBookingDurationHours, Value: "8"},
			{Name: eligibility.SettingDailyBasisBooking, Value: "0"},
			{Name: eligibility.SettingShowNames, Value: "0"},
		},
	}
	b.server = httptest.NewServer(b.routes())
	b.URL = b.server.URL
	tb.Cleanup(b.server.Close)
	return b
}

func (b *FakeBackend) routes() http.Handler {
	r := chi.NewRouter()
	b.route(r, http.MethodPost, "/auth/preflight", b.preflight)
	b.route(r, http.MethodPost, "/auth/login", b.login)
	b.route(r, http.MethodGet, "/auth/verify/{id}", b.verify)
	b.route(r, http.MethodPost, "/auth/refresh", b.refreshToken)

	r.Group(func(r chi.Router) {
		r.Use(b.requireAccess)
		b.route(r, http.MethodPost, "/auth/logout", b.logout)
		b.route(r, http.MethodGet, "/users/self", b.self)
		b.route(r, http.MethodGet, "/settings", b.listSettings)
		b.route(r, http.MethodGet, "/preferences", b.listPreferences)
		b.route(r, http.MethodGet, "/bookings", b.listBookings)
		b.route(r, http.MethodPost, "/booking/precheck/", b.precheck)
		b.route(r, http.MethodPost, "/booking", b.createBooking)
		b.route(r, http.MethodDelete, "/booking/{id}", b.deleteBooking)
		b.route(r, http.MethodGet, "/locations", b.listLocations)
		b.route(r, http.MethodGet, "/locations/{id}", b.getLocation)
		b.route(r, http.MethodPost, "/locations/{id}/spaces/availability", b.availability)
	})
	return r
}

// route registers h under "METHOD pattern", counting calls and applying
// injected failures.
func (b *FakeBackend) route(r chi.Router, method, pattern string, h http.HandlerFunc) {
	key := method + " " + pattern
	r.Method(method, pattern, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		b.mu.Lock()
		b.calls[key]++
		failure, failing := b.failures[key]
		b.mu.Unlock()
		if failing {
			if failure.code != 0 {
				w.Header().Set("X-Error-Code", strconv.Itoa(failure.code))
			}
			w.WriteHeader(failure.status)
			return
		}
		h(w, req)
	}))
}

func (b *FakeBackend) requireAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		b.mu.Lock()
		grant, ok := b.access[token]
		b.mu.Unlock()
		if !ok || !b.clock().Before(grant.expiresAt) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(withEmail(r.Context(), grant.email)))
	})
}

// AddUser registers a password account.
func (b *FakeBackend) AddUser(email, password string) {
	b.mu.Lock()
	b.users[strings.ToLower(email)] = password
	b.mu.Unlock()
}

// AddVerification registers an identity provider callback id for email.
func (b *FakeBackend) AddVerification(verifyID, email string) {
	b.mu.Lock()
	b.verifyIDs[verifyID] = strings.ToLower(email)
	b.mu.Unlock()
}

// SetSettings replaces the organization settings.
func (b *FakeBackend) SetSettings(settings ...eligibility.Setting) {
	b.mu.Lock()
	b.settings = append([]eligibility.Setting(nil), settings...)
	b.mu.Unlock()
}

// SetPreferences replaces the user preferences.
func (b *FakeBackend) SetPreferences(prefs ...eligibility.Setting) {
	b.mu.Lock()
	b.preferences = append([]eligibility.Setting(nil), prefs...)
	b.mu.Unlock()
}

// AddLocation registers a location with its spaces.
func (b *FakeBackend) AddLocation(loc FakeLocation, spaces ...FakeSpace) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.locations = append(b.locations, loc)
	for _, s := range spaces {
		s.LocationID = loc.ID
		b.spaces[loc.ID] = append(b.spaces[loc.ID], s)
	}
}

// SetLegacy makes login return only a legacy jwt field.
func (b *FakeBackend) SetLegacy(legacy bool) {
	b.mu.Lock()
	b.legacy = legacy
	b.mu.Unlock()
}

// SetAccessTTL changes the lifetime of newly issued access tokens.
func (b *FakeBackend) SetAccessTTL(ttl time.Duration) {
	b.mu.Lock()
	b.accessTTL = ttl
	b.mu.Unlock()
}

// Fail makes the route answer with status and an optional X-Error-Code until
// cleared with Succeed.
func (b *FakeBackend) Fail(route string, status, code int) {
	b.mu.Lock()
	b.failures[route] = fakeFailure{status: status, code: code}
	b.mu.Unlock()
}

// Succeed clears an injected failure.
func (b *FakeBackend) Succeed(route string) {
	b.mu.Lock()
	delete(b.failures, route)
	b.mu.Unlock()
}

// RevokeAccessTokens invalidates every issued access token.
func (b *FakeBackend) RevokeAccessTokens() {
	b.mu.Lock()
	b.access = make(map[string]accessGrant)
	b.mu.Unlock()
}

// Calls reports how often route was requested.
func (b *FakeBackend) Calls(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[route]
}

// Bookings returns the stored bookings.
func (b *FakeBackend) Bookings() []FakeBooking {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]FakeBooking(nil), b.bookings...)
}

// SeedBooking stores a booking for email.
func (b *FakeBackend) SeedBooking(email string, booking FakeBooking) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if booking.ID == "" {
		booking.ID = b.ids.Next()
	}
	booking.owner = strings.ToLower(email)
	b.bookings = append(b.bookings, booking)
}

func (b *FakeBackend) preflight(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	domain := req.Email[strings.Index(req.Email, "@")+1:]
	writeFakeJSON(w, http.StatusOK, map[string]any{
		"organization":    map[string]string{"id": "org-1", "name": domain},
		"authProviders":   []map[string]string{},
		"requirePassword": true,
		"backendVersion":  "1.0.0",
	})
}

func (b *FakeBackend) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	email := strings.ToLower(req.Email)

	b.mu.Lock()
	password, ok := b.users[email]
	b.mu.Unlock()
	if !ok || password != req.Password {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	b.issue(w, email)
}

func (b *FakeBackend) verify(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	email, ok := b.verifyIDs[chi.URLParam(r, "id")]
	delete(b.verifyIDs, chi.URLParam(r, "id"))
	b.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	b.issue(w, email)
}

func (b *FakeBackend) refreshToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	email, ok := b.refresh[req.RefreshToken]
	delete(b.refresh, req.RefreshToken)
	b.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	b.issue(w, email)
}

func (b *FakeBackend) issue(w http.ResponseWriter, email string) {
	b.mu.Lock()
	ttl := b.accessTTL
	legacy := b.legacy
	b.mu.Unlock()

	now := b.clock()
	expiresAt := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub": email,
		"iat": now.Unix(),
		"exp": expiresAt.Unix(),
		"jti": b.refreshes.Next(),
	}
	if legacy {
		delete(claims, "exp")
		expiresAt = now.AddDate(100, 0, 0)
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.secret)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	b.mu.Lock()
	b.access[access] = accessGrant{email: email, expiresAt: expiresAt}
	var refresh string
	if !legacy {
		refresh = b.refreshes.Next()
		b.refresh[refresh] = email
	}
	b.mu.Unlock()

	if legacy {
		writeFakeJSON(w, http.StatusOK, map[string]string{"jwt": access})
		return
	}
	writeFakeJSON(w, http.StatusOK, map[string]string{"accessToken": access, "refreshToken": refresh})
}

func (b *FakeBackend) logout(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	b.mu.Lock()
	delete(b.access, token)
	b.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (b *FakeBackend) self(w http.ResponseWriter, r *http.Request) {
	writeFakeJSON(w, http.StatusOK, map[string]string{"email": emailFrom(r.Context())})
}

func (b *FakeBackend) listSettings(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	settings := append([]eligibility.Setting(nil), b.settings...)
	b.mu.Unlock()
	writeFakeJSON(w, http.StatusOK, settings)
}

func (b *FakeBackend) listPreferences(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	prefs := append([]eligibility.Setting{}, b.preferences...)
	b.mu.Unlock()
	writeFakeJSON(w, http.StatusOK, prefs)
}

func (b *FakeBackend) listBookings(w http.ResponseWriter, r *http.Request) {
	email := emailFrom(r.Context())
	b.mu.Lock()
	out := []FakeBooking{}
	for _, booking := range b.bookings {
		if booking.owner == email {
			out = append(out, booking)
		}
	}
	b.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Enter.Before(out[j].Enter) })
	writeFakeJSON(w, http.StatusOK, out)
}

func (b *FakeBackend) precheck(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LocationID string    `json:"locationId"`
		Enter      time.Time `json:"enter"`
		Leave      time.Time `json:"leave"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.LocationID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (b *FakeBackend) createBooking(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SpaceID string    `json:"spaceId"`
		Enter   time.Time `json:"enter"`
		Leave   time.Time `json:"leave"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	space, ok := b.findSpaceLocked(req.SpaceID)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	for _, existing := range b.bookings {
		if existing.Space.ID == space.ID && existing.Enter.Before(req.Leave) && req.Enter.Before(existing.Leave) {
			w.Header().Set("X-Error-Code", strconv.Itoa(eligibility.CodeSlotConflict))
			w.WriteHeader(http.StatusConflict)
			return
		}
	}
	booking := FakeBooking{ID: b.ids.Next(), Enter: req.Enter, Leave: req.Leave, Space: space, owner: emailFrom(r.Context())}
	b.bookings = append(b.bookings, booking)
	writeFakeJSON(w, http.StatusCreated, booking)
}

func (b *FakeBackend) deleteBooking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	email := emailFrom(r.Context())
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, booking := range b.bookings {
		if booking.ID == id && booking.owner == email {
			b.bookings = append(b.bookings[:i], b.bookings[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	w.WriteHeader(http.StatusNotFound)
}

func (b *FakeBackend) listLocations(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	locations := append([]FakeLocation{}, b.locations...)
	b.mu.Unlock()
	writeFakeJSON(w, http.StatusOK, locations)
}

func (b *FakeBackend) getLocation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, loc := range b.locations {
		if loc.ID == id {
			writeFakeJSON(w, http.StatusOK, loc)
			return
		}
	}
	w.WriteHeader(http.StatusNotFound)
}

func (b *FakeBackend) availability(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enter time.Time `json:"enter"`
		Leave time.Time `json:"leave"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "id")

	b.mu.Lock()
	defer b.mu.Unlock()
	spaces, ok := b.spaces[id]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	out := make([]FakeSpace, 0, len(spaces))
	for _, s := range spaces {
		s.Available = true
		for _, booking := range b.bookings {
			if booking.Space.ID == s.ID && booking.Enter.Before(req.Leave) && req.Enter.Before(booking.Leave) {
				s.Available = false
			}
		}
		out = append(out, s)
	}
	writeFakeJSON(w, http.StatusOK, out)
}

func (b *FakeBackend) findSpaceLocked(id string) (FakeSpace, bool) {
	for _, spaces := range b.spaces {
		for _, s := range spaces {
			if s.ID == id {
				return s, true
			}
		}
	}
	return FakeSpace{}, false
}

func writeFakeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
