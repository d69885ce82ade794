package http

import (
	"context"
	"log/slog"

	"github.com/example/seat-booking-client/internal/logging"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func clientLogger(ctx context.Context, fallback *slog.Logger, endpoint string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = fallback
	}
	if logger == nil {
		logger = slog.Default()
	}

	pairs := []any{"client", "backend"}
	if endpoint != "" {
		pairs = append(pairs, "endpoint", endpoint)
	}
	if len(attrs) > 0 {
		pairs = append(pairs, attrs...)
	}
	return logger.With(pairs...)
}
