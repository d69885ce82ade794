package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/example/seat-booking-client/internal/application"
)

// ErrorCodeHeader carries the backend application error code.
const ErrorCodeHeader = "X-Error-Code"

const defaultTimeout = 30 * time.Second

// maxErrorBody bounds how much of an error response is read for a code.
const maxErrorBody = 64 << 10

// Client calls the booking backend. It implements application.AuthAPI and
// application.BookingAPI.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

var (
	_ application.AuthAPI    = (*Client)(nil)
	_ application.BookingAPI = (*Client)(nil)
)

// NewClient constructs a Client. A nil httpClient uses a client with a default
// timeout; a nil limiter disables throttling.
func NewClient(httpClient *http.Client, limiter *rate.Limiter) *Client {
	return NewClientWithLogger(httpClient, limiter, nil)
}

// NewClientWithLogger constructs a Client with a specified logger.
func NewClientWithLogger(httpClient *http.Client, limiter *rate.Limiter, logger *slog.Logger) *Client {
	logger = defaultLogger(logger)
	var configured http.Client
	if httpClient != nil {
		configured = *httpClient
	} else {
		configured.Timeout = defaultTimeout
	}
	configured.Transport = newLoggingTransport(configured.Transport, logger)
	return &Client{
		httpClient: &configured,
		limiter:    limiter,
		logger:     logger,
	}
}

type request struct {
	method  string
	baseURL string
	path    string
	token   string
	body    any
}

// do sends req and decodes a successful JSON response into out when out is
// non-nil.
func (c *Client) do(ctx context.Context, req request, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("%w: %v", application.ErrUnavailable, err)
		}
	}

	var body io.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", req.method, req.path, err)
		}
		body = bytes.NewReader(payload)
	}

	endpoint := strings.TrimRight(req.baseURL, "/") + req.path
	httpReq, err := http.NewRequestWithContext(ctx, req.method, endpoint, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", req.method, req.path, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %s %s: %v", application.ErrUnavailable, req.method, req.path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s %s: %v", application.ErrUnavailable, req.method, req.path, err)
	}
	return nil
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// statusError maps a non-success response onto the application error taxonomy.
func statusError(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: status %d", application.ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", application.ErrForbidden, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: status %d", application.ErrNotFound, resp.StatusCode)
	case resp.StatusCode >= 500, resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", application.ErrUnavailable, resp.StatusCode)
	}

	backendErr := &application.BackendError{Status: resp.StatusCode}
	if code, err := strconv.Atoi(strings.TrimSpace(resp.Header.Get(ErrorCodeHeader))); err == nil {
		backendErr.Code = code
		return backendErr
	}

	var payload errorResponse
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err == nil && len(bytes.TrimSpace(raw)) > 0 {
		if jsonErr := json.Unmarshal(raw, &payload); jsonErr == nil {
			backendErr.Code = payload.Code
		}
	}
	return backendErr
}
