package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/example/seat-booking-client/internal/eligibility"
)

// AuthAPI is the backend surface the session manager drives.
type AuthAPI interface {
	Preflight(ctx context.Context, baseURL, email string) (PreflightResult, error)
	PasswordLogin(ctx context.Context, baseURL, email, password string) (CredentialResponse, error)
	VerifyLogin(ctx context.Context, baseURL, verifyID string) (CredentialResponse, error)
	RefreshCredentials(ctx context.Context, baseURL, refreshToken string) (CredentialResponse, error)
	Logout(ctx context.Context, target Target, refreshToken string) error
	GetSelf(ctx context.Context, target Target) (Identity, error)
	ListSettings(ctx context.Context, target Target) ([]eligibility.Setting, error)
}

const (
	defaultTokenTTL       = 15 * time.Minute
	defaultRefreshTimeout = 30 * time.Second
	refreshFlightKey      = "refresh"
)

// SessionManager owns the credential lifecycle and the authentication state.
// All credential persistence goes through it.
type SessionManager struct {
	api            AuthAPI
	store          *credentialStore
	events         *sessionEvents
	now            func() time.Time
	tokenTTL       time.Duration
	refreshTimeout time.Duration
	logger         *slog.Logger

	mu      sync.Mutex
	session Session
	creds   Credentials

	refreshes      singleflight.Group
	refreshWaiters atomic.Int32
	background     sync.WaitGroup
}

// NewSessionManager constructs a SessionManager with the provided dependencies.
func NewSessionManager(api AuthAPI, store KeyValueStore, now func() time.Time, tokenTTL time.Duration) *SessionManager {
	return NewSessionManagerWithLogger(api, store, now, tokenTTL, nil)
}

// NewSessionManagerWithLogger constructs a SessionManager with a specified logger.
func NewSessionManagerWithLogger(api AuthAPI, store KeyValueStore, now func() time.Time, tokenTTL time.Duration, logger *slog.Logger) *SessionManager {
	if now == nil {
		now = time.Now
	}
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}
	return &SessionManager{
		api:            api,
		store:          newCredentialStore(store),
		events:         newSessionEvents(),
		now:            now,
		tokenTTL:       tokenTTL,
		refreshTimeout: defaultRefreshTimeout,
		logger:         defaultLogger(logger),
	}
}

func (m *SessionManager) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, m.logger, "SessionManager", operation, attrs...)
}

// Events exposes session notifications.
func (m *SessionManager) Events() SessionEvents {
	return m.events
}

// Session returns a snapshot of the current session.
func (m *SessionManager) Session() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Restore resolves the session from persisted state. The returned session is
// always Authenticated or Anonymous; err reports only persistence failures.
func (m *SessionManager) Restore(ctx context.Context) (session Session, err error) {
	if m == nil {
		err = fmt.Errorf("SessionManager is nil")
		return
	}

	logger := m.loggerWith(ctx, "Restore")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "session restore failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "session restored", "state", session.State.String())
	}()

	m.transition(func(s *Session) { s.State = StateRestoring })

	var url string
	if url, err = m.store.backendURL(ctx); err != nil {
		session = m.resolveAnonymous(ctx, false)
		return
	}
	var creds Credentials
	if creds, err = m.store.load(ctx); err != nil {
		session = m.resolveAnonymous(ctx, false)
		return
	}

	m.mu.Lock()
	m.session.BackendURL = url
	m.creds = creds
	m.mu.Unlock()

	if url == "" || (!creds.HasAccessToken() && !creds.CanRefresh()) {
		session = m.resolveAnonymous(ctx, creds != Credentials{})
		return
	}

	if creds.CanRefresh() && (!creds.HasAccessToken() || creds.Stale(m.now())) {
		if creds, err = m.refreshFrom(ctx, creds.AccessToken); err != nil {
			logger.WarnContext(ctx, "refresh during restore failed", "error", err, "error_kind", ErrorKind(err))
			err = nil
			session = m.resolveAnonymous(ctx, true)
			return
		}
	}

	if confirmErr := m.confirm(ctx, url, creds); confirmErr != nil {
		logger.WarnContext(ctx, "identity confirmation failed", "error", confirmErr, "error_kind", ErrorKind(confirmErr))
		session = m.resolveAnonymous(ctx, true)
		return
	}
	session = m.Session()
	return
}

// Login adopts a freshly issued credential response for backendURL, persists
// it and confirms the identity behind it.
func (m *SessionManager) Login(ctx context.Context, backendURL string, resp CredentialResponse) (session Session, err error) {
	if m == nil {
		err = fmt.Errorf("SessionManager is nil")
		return
	}

	logger := m.loggerWith(ctx, "Login", "backend_url", backendURL)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "login failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("username", session.Identity.Username).InfoContext(ctx, "login succeeded")
	}()

	creds := m.credentialsFrom(resp)
	if backendURL == "" || !creds.HasAccessToken() {
		err = ErrInvalidCredentials
		session = m.resolveAnonymous(ctx, false)
		return
	}

	if err = m.store.saveBackendURL(ctx, backendURL); err != nil {
		session = m.resolveAnonymous(ctx, false)
		return
	}
	if err = m.store.save(ctx, creds); err != nil {
		session = m.resolveAnonymous(ctx, false)
		return
	}

	m.mu.Lock()
	m.session.BackendURL = backendURL
	m.creds = creds
	m.mu.Unlock()

	if err = m.confirm(ctx, backendURL, creds); err != nil {
		if isRejection(err) {
			err = ErrInvalidCredentials
		}
		session = m.resolveAnonymous(ctx, true)
		return
	}
	session = m.Session()
	return
}

// Refresh exchanges the held refresh token for a new pair. Concurrent callers
// share one network exchange and observe the same outcome.
func (m *SessionManager) Refresh(ctx context.Context) (Credentials, error) {
	if m == nil {
		return Credentials{}, fmt.Errorf("SessionManager is nil")
	}
	m.mu.Lock()
	creds := m.creds
	m.mu.Unlock()

	if !creds.CanRefresh() {
		return Credentials{}, ErrNotAuthenticated
	}
	return m.refreshFrom(ctx, creds.AccessToken)
}

// refreshFrom refreshes credentials that were observed with the stale access
// token. A flight started after another caller already replaced that token
// returns the replacement without a network call.
func (m *SessionManager) refreshFrom(ctx context.Context, stale string) (Credentials, error) {
	m.refreshWaiters.Add(1)
	defer m.refreshWaiters.Add(-1)

	flightCtx := context.WithoutCancel(ctx)
	ch := m.refreshes.DoChan(refreshFlightKey, func() (any, error) {
		return m.exchange(flightCtx, stale)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Credentials{}, res.Err
		}
		return res.Val.(Credentials), nil
	case <-ctx.Done():
		return Credentials{}, ctx.Err()
	}
}

func (m *SessionManager) exchange(ctx context.Context, stale string) (creds Credentials, err error) {
	m.mu.Lock()
	current := m.creds
	url := m.session.BackendURL
	m.mu.Unlock()

	if current.AccessToken != stale && current.HasAccessToken() && !current.Stale(m.now()) {
		return current, nil
	}
	if !current.CanRefresh() {
		return Credentials{}, ErrNotAuthenticated
	}

	logger := m.loggerWith(ctx, "Refresh", "token_present", current.HasAccessToken())
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "credential refresh failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "credentials refreshed", "expires_at", creds.AccessTokenExpiry)
	}()

	callCtx, cancel := context.WithTimeout(ctx, m.refreshTimeout)
	defer cancel()

	resp, err := m.api.RefreshCredentials(callCtx, url, current.RefreshToken)
	if err != nil {
		if isRejection(err) {
			m.resolveAnonymous(ctx, true)
			err = fmt.Errorf("refresh rejected: %w", errors.Join(ErrSessionExpired, err))
		}
		return Credentials{}, err
	}

	creds = m.credentialsFrom(resp)
	if !creds.HasAccessToken() {
		m.resolveAnonymous(ctx, true)
		return Credentials{}, fmt.Errorf("refresh returned no access token: %w", ErrSessionExpired)
	}
	// The old refresh token is spent; keep the new pair even if persisting fails.
	m.mu.Lock()
	m.creds = creds
	m.mu.Unlock()

	if err = m.store.save(ctx, creds); err != nil {
		return Credentials{}, fmt.Errorf("persist refreshed credentials: %w", err)
	}

	m.events.credentialsRefreshed()
	return creds, nil
}

// Do runs fn with an authorized target. A stale token is refreshed first and
// an unauthorized response triggers one refresh and one retry; at most one
// refresh happens per call. A second rejection ends the session.
func (m *SessionManager) Do(ctx context.Context, fn func(ctx context.Context, target Target) error) error {
	if m == nil {
		return fmt.Errorf("SessionManager is nil")
	}

	m.mu.Lock()
	creds := m.creds
	url := m.session.BackendURL
	m.mu.Unlock()

	if url == "" || (!creds.HasAccessToken() && !creds.CanRefresh()) {
		return ErrNotAuthenticated
	}

	refreshed := false
	if creds.Stale(m.now()) {
		var err error
		if creds, err = m.refreshFrom(ctx, creds.AccessToken); err != nil {
			return err
		}
		refreshed = true
	}

	err := fn(ctx, Target{BaseURL: url, AccessToken: creds.AccessToken})
	if !errors.Is(err, ErrUnauthorized) {
		return err
	}
	if refreshed || !creds.CanRefresh() {
		m.expire(ctx, err)
		return fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}

	if creds, err = m.refreshFrom(ctx, creds.AccessToken); err != nil {
		return err
	}
	err = fn(ctx, Target{BaseURL: url, AccessToken: creds.AccessToken})
	if errors.Is(err, ErrUnauthorized) {
		m.expire(ctx, err)
		return fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}
	return err
}

func (m *SessionManager) expire(ctx context.Context, cause error) {
	m.loggerWith(ctx, "Do").WarnContext(ctx, "session rejected after refresh", "error", cause, "error_kind", ErrorKind(cause))
	m.resolveAnonymous(ctx, true)
}

// SignOut clears local credentials unconditionally and notifies the backend
// in the background. Close waits for that notification.
func (m *SessionManager) SignOut(ctx context.Context) error {
	if m == nil {
		return fmt.Errorf("SessionManager is nil")
	}

	m.mu.Lock()
	creds := m.creds
	url := m.session.BackendURL
	m.mu.Unlock()

	logger := m.loggerWith(ctx, "SignOut", "token_present", creds.HasAccessToken())

	var clearErr error
	m.mu.Lock()
	m.creds = Credentials{}
	m.mu.Unlock()
	if err := m.store.clear(ctx); err != nil {
		clearErr = err
		logger.ErrorContext(ctx, "failed to clear persisted credentials", "error", err, "error_kind", ErrorKind(err))
	}
	m.resolveAnonymous(ctx, false)

	if creds.HasAccessToken() && url != "" && m.api != nil {
		m.background.Add(1)
		go func() {
			defer m.background.Done()
			notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.refreshTimeout)
			defer cancel()
			if err := m.api.Logout(notifyCtx, Target{BaseURL: url, AccessToken: creds.AccessToken}, creds.RefreshToken); err != nil {
				logger.WarnContext(ctx, "server logout failed", "error", err, "error_kind", ErrorKind(err))
				return
			}
			logger.InfoContext(ctx, "server logout acknowledged")
		}()
	}

	logger.InfoContext(ctx, "signed out")
	return clearErr
}

// Close waits for background work started by SignOut.
func (m *SessionManager) Close() {
	if m == nil {
		return
	}
	m.background.Wait()
}

// confirm resolves the identity behind creds, then loads the policy. A policy
// failure keeps the session with the zero policy.
func (m *SessionManager) confirm(ctx context.Context, url string, creds Credentials) error {
	target := Target{BaseURL: url, AccessToken: creds.AccessToken}
	identity, err := m.api.GetSelf(ctx, target)
	if err != nil {
		return fmt.Errorf("identity lookup: %w", err)
	}

	var policy eligibility.Policy
	settings, err := m.api.ListSettings(ctx, target)
	if err != nil {
		m.loggerWith(ctx, "LoadPolicy").WarnContext(ctx, "policy unavailable, limits treated as zero", "error", err, "error_kind", ErrorKind(err))
	} else {
		policy = eligibility.PolicyFromSettings(settings)
	}

	m.transition(func(s *Session) {
		s.State = StateAuthenticated
		s.BackendURL = url
		s.Identity = identity
		s.Policy = policy
	})
	return nil
}

// resolveAnonymous ends the session, clearing persisted credentials when
// clearStored is set. The backend URL survives.
func (m *SessionManager) resolveAnonymous(ctx context.Context, clearStored bool) Session {
	if clearStored {
		m.mu.Lock()
		m.creds = Credentials{}
		m.mu.Unlock()
		if err := m.store.clear(ctx); err != nil {
			m.loggerWith(ctx, "ClearCredentials").ErrorContext(ctx, "failed to clear persisted credentials", "error", err, "error_kind", ErrorKind(err))
		}
	}
	return m.transition(func(s *Session) {
		s.State = StateAnonymous
		s.Identity = Identity{}
		s.Policy = eligibility.Policy{}
	})
}

// transition applies a state change and publishes the result outside the lock.
func (m *SessionManager) transition(apply func(s *Session)) Session {
	m.mu.Lock()
	apply(&m.session)
	snapshot := m.session
	m.mu.Unlock()

	m.events.sessionChanged(snapshot)
	return snapshot
}

// credentialsFrom converts a response, defaulting a missing expiry of a
// refresh-capable pair so the epoch sentinel stays reserved for legacy tokens.
// An expiry that is already due under the local clock gets the default
// lifetime too, otherwise every use of the pair would refresh again.
func (m *SessionManager) credentialsFrom(resp CredentialResponse) Credentials {
	creds := resp.Credentials()
	if !creds.CanRefresh() {
		return creds
	}
	if now := m.now(); !creds.AccessTokenExpiry.After(now) {
		creds.AccessTokenExpiry = now.Add(m.tokenTTL)
	}
	return creds
}

func (m *SessionManager) pendingRefreshes() int {
	return int(m.refreshWaiters.Load())
}
