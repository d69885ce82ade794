package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("json handler honours level", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		logger, err := New("warn", "json", &buf)
		if err != nil {
			t.Fatalf("New returned error: %v", err)
		}
		logger.Info("dropped")
		logger.Warn("kept", "component", "session_manager")

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		if len(lines) != 1 {
			t.Fatalf("expected one record, got %d: %q", len(lines), buf.String())
		}
		var record map[string]any
		if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
			t.Fatalf("expected JSON record: %v", err)
		}
		if record["msg"] != "kept" || record["component"] != "session_manager" {
			t.Fatalf("unexpected record: %v", record)
		}
	})

	t.Run("text handler", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		logger, err := New("DEBUG", "text", &buf)
		if err != nil {
			t.Fatalf("New returned error: %v", err)
		}
		logger.Debug("visible")
		if !strings.Contains(buf.String(), "msg=visible") {
			t.Fatalf("expected text record, got %q", buf.String())
		}
	})

	t.Run("rejects unknown values", func(t *testing.T) {
		t.Parallel()
		if _, err := New("loud", "text", &bytes.Buffer{}); err == nil {
			t.Fatalf("expected error for unknown level")
		}
		if _, err := New("info", "xml", &bytes.Buffer{}); err == nil {
			t.Fatalf("expected error for unknown format")
		}
	})
}

func TestContextLogger(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ctx := ContextWithLogger(context.Background(), logger)
	if FromContext(ctx) != logger {
		t.Fatalf("expected logger from context")
	}
	if FromContext(context.Background()) != nil {
		t.Fatalf("expected nil logger for bare context")
	}
	if ContextWithLogger(ctx, nil) != ctx {
		t.Fatalf("expected nil logger to leave context unchanged")
	}
}
