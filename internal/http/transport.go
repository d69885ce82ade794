package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// RequestIDHeader correlates a client call with backend logs.
const RequestIDHeader = "X-Request-ID"

// loggingTransport tags every outgoing request with a request id and logs its
// outcome. Headers and bodies are never logged.
type loggingTransport struct {
	next   http.RoundTripper
	logger *slog.Logger
	newID  func() string
}

func newLoggingTransport(next http.RoundTripper, logger *slog.Logger) *loggingTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &loggingTransport{
		next:   next,
		logger: defaultLogger(logger),
		newID:  uuid.NewString,
	}
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	id := t.newID()

	clone := req.Clone(ctx)
	clone.Header.Set(RequestIDHeader, id)

	logger := clientLogger(ctx, t.logger, "",
		"request_id", id,
		"method", req.Method,
		"path", req.URL.Path,
	)
	start := time.Now()
	logger.DebugContext(ctx, "request started")

	resp, err := t.next.RoundTrip(clone)
	if err != nil {
		logger.WarnContext(ctx, "request failed", "error", err, "duration", time.Since(start))
		return nil, err
	}
	logger.InfoContext(ctx, "request completed", "status", resp.StatusCode, "duration", time.Since(start))
	return resp, nil
}
