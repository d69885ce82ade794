package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/text/language"
	"golang.org/x/time/rate"

	"github.com/example/seat-booking-client/internal/application"
	"github.com/example/seat-booking-client/internal/config"
	"github.com/example/seat-booking-client/internal/eligibility"
	httpclient "github.com/example/seat-booking-client/internal/http"
	"github.com/example/seat-booking-client/internal/logging"
	"github.com/example/seat-booking-client/internal/observability"
	"github.com/example/seat-booking-client/internal/persistence"
	"github.com/example/seat-booking-client/internal/persistence/redisstore"
	"github.com/example/seat-booking-client/internal/persistence/sqlite"
)

// app owns one session manager and one booking window for a single command.
type app struct {
	cfg      config.Config
	env      environment
	logger   *slog.Logger
	reporter *observability.Reporter
	lang     language.Tag

	session *application.SessionManager
	window  *application.BookingWindow

	closers []func() error
}

func newApp(ctx context.Context, cfg config.Config, env environment) (*app, error) {
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, env.stderr)
	if err != nil {
		return nil, err
	}
	reporter, err := observability.Init(cfg.SentryDSN, cfg.Environment, version,
		application.ErrNotEligible,
		application.ErrNotAuthenticated,
		application.ErrInvalidCredentials,
		application.ErrSessionExpired,
		application.ErrForbidden,
		context.Canceled,
	)
	if err != nil {
		logger.WarnContext(ctx, "error reporting disabled", "error", err)
		reporter = &observability.Reporter{}
	}

	a := &app{
		cfg:      cfg,
		env:      env,
		logger:   logger,
		reporter: reporter,
		lang:     eligibility.MatchLanguage(language.Make(cfg.Language)),
	}

	store, err := a.openStore(ctx)
	if err != nil {
		_ = a.close()
		return nil, err
	}

	var limiter *rate.Limiter
	if cfg.RequestRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestRate), cfg.RequestBurst)
	}
	client := httpclient.NewClientWithLogger(&http.Client{Timeout: cfg.HTTPTimeout}, limiter, logger)

	a.session = application.NewSessionManagerWithLogger(client, store, env.now, cfg.DefaultTokenTTL, logger)
	a.window = application.NewBookingWindowWithLogger(a.session, client, store, env.now, logger)
	a.closers = append(a.closers, func() error {
		a.window.Close()
		a.session.Close()
		return nil
	})
	return a, nil
}

// openStore builds the configured state backend, sealed when a secret is set.
func (a *app) openStore(ctx context.Context) (persistence.KeyValueStore, error) {
	var store persistence.KeyValueStore
	switch a.cfg.StateBackend {
	case config.StateBackendRedis:
		rs, err := redisstore.Open(ctx, a.cfg.RedisURL, "")
		if err != nil {
			return nil, fmt.Errorf("open redis state: %w", err)
		}
		a.closers = append(a.closers, rs.Close)
		store = rs
	default:
		ss, err := sqlite.OpenWithLogger(ctx, a.cfg.SQLiteDSN, a.logger)
		if err != nil {
			return nil, fmt.Errorf("open state database: %w", err)
		}
		a.closers = append(a.closers, ss.Close)
		store = ss
	}

	if !a.cfg.Sealed() {
		return store, nil
	}
	sealed, err := persistence.NewSealedStore(store, a.cfg.StateSecret, persistence.DefaultKeyParams)
	if err != nil {
		return nil, err
	}
	return sealed, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	a.reporter.Flush()
	return errors.Join(errs...)
}

// restore resolves the persisted session and fails unless it is authenticated.
func (a *app) restore(ctx context.Context) (application.Session, error) {
	session, err := a.session.Restore(ctx)
	if err != nil {
		return session, err
	}
	if !session.Authenticated() {
		return session, application.ErrNotAuthenticated
	}
	return session, nil
}

func (a *app) message(v eligibility.Verdict, p eligibility.Policy) string {
	return eligibility.Message(a.lang, v, p)
}
