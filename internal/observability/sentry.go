// Package observability reports unexpected client failures to Sentry.
package observability

import (
	"errors"
	"time"

	"github.com/getsentry/sentry-go"
)

const flushTimeout = 2 * time.Second

// Reporter sends errors to Sentry. A Reporter built from an empty DSN is a
// no-op.
type Reporter struct {
	hub    *sentry.Hub
	ignore []error
}

// Init creates a Reporter. Errors matching any of ignore (errors.Is) are
// expected outcomes and never reported.
func Init(dsn, environment, release string, ignore ...error) (*Reporter, error) {
	if dsn == "" {
		return &Reporter{}, nil
	}
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		Release:          release,
		AttachStacktrace: true,
	})
	if err != nil {
		return nil, err
	}
	return newReporter(client, ignore), nil
}

func newReporter(client *sentry.Client, ignore []error) *Reporter {
	return &Reporter{hub: sentry.NewHub(client, sentry.NewScope()), ignore: ignore}
}

// Enabled reports whether events are sent anywhere.
func (r *Reporter) Enabled() bool {
	return r != nil && r.hub != nil
}

// Capture reports err tagged with the command and error kind.
func (r *Reporter) Capture(err error, command, kind string) {
	if !r.Enabled() || err == nil {
		return
	}
	for _, expected := range r.ignore {
		if errors.Is(err, expected) {
			return
		}
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("command", command)
		scope.SetTag("error_kind", kind)
		r.hub.CaptureException(err)
	})
}

// Flush waits for queued events to be delivered.
func (r *Reporter) Flush() bool {
	if !r.Enabled() {
		return true
	}
	return r.hub.Flush(flushTimeout)
}
