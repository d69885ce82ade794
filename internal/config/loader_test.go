package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func envMap(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoader_Sources(t *testing.T) {
	t.Parallel()

	t.Run("applies defaults when nothing is set", func(t *testing.T) {
		t.Parallel()
		cfg, err := LoadFrom("", "", envMap(nil))
		if err != nil {
			t.Fatalf("LoadFrom returned error: %v", err)
		}
		if cfg.StateBackend != StateBackendSQLite || cfg.SQLiteDSN == "" {
			t.Fatalf("unexpected state defaults: %+v", cfg)
		}
		if cfg.HTTPTimeout != 30*time.Second || cfg.DefaultTokenTTL != 5*time.Minute {
			t.Fatalf("unexpected duration defaults: %+v", cfg)
		}
		if cfg.Language != "en" || cfg.LogFormat != "text" || cfg.Sealed() {
			t.Fatalf("unexpected defaults: %+v", cfg)
		}
	})

	t.Run("environment overrides yaml and dotenv", func(t *testing.T) {
		t.Parallel()
		file := writeFile(t, "config.yaml", strings.Join([]string{
			"backend_url: https://yaml.example.com/",
			"language: de",
			"http_timeout: 10s",
			"request_rate: 2.5",
			"log_format: json",
		}, "\n"))
		dotenv := writeFile(t, ".env", strings.Join([]string{
			"SEATCLIENT_LANGUAGE=en",
			"SEATCLIENT_STATE_SECRET=from-dotenv",
			"SEATCLIENT_LOG_LEVEL=debug",
		}, "\n"))

		cfg, err := LoadFrom(file, dotenv, envMap(map[string]string{
			"SEATCLIENT_LOG_LEVEL":         "ERROR",
			"SEATCLIENT_DEFAULT_TOKEN_TTL": "2m",
		}))
		if err != nil {
			t.Fatalf("LoadFrom returned error: %v", err)
		}
		if cfg.BackendURL != "https://yaml.example.com" {
			t.Fatalf("expected trimmed yaml backend url, got %q", cfg.BackendURL)
		}
		if cfg.HTTPTimeout != 10*time.Second || cfg.RequestRate != 2.5 || cfg.LogFormat != "json" {
			t.Fatalf("expected yaml values, got %+v", cfg)
		}
		if cfg.Language != "en" || !cfg.Sealed() {
			t.Fatalf("expected dotenv to override yaml, got %+v", cfg)
		}
		if cfg.LogLevel != "error" || cfg.DefaultTokenTTL != 2*time.Minute {
			t.Fatalf("expected environment to win, got %+v", cfg)
		}
	})

	t.Run("empty yaml file keeps defaults", func(t *testing.T) {
		t.Parallel()
		cfg, err := LoadFrom(writeFile(t, "empty.yaml", ""), "", envMap(nil))
		if err != nil {
			t.Fatalf("LoadFrom returned error: %v", err)
		}
		if cfg.RequestBurst != 10 {
			t.Fatalf("expected default burst, got %d", cfg.RequestBurst)
		}
	})

	t.Run("missing dotenv is skipped", func(t *testing.T) {
		t.Parallel()
		if _, err := LoadFrom("", filepath.Join(t.TempDir(), ".env"), envMap(nil)); err != nil {
			t.Fatalf("expected missing env file to be ignored, got %v", err)
		}
	})

	t.Run("missing config file is an error", func(t *testing.T) {
		t.Parallel()
		if _, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"), "", envMap(nil)); err == nil {
			t.Fatalf("expected error for explicit missing file")
		}
	})

	t.Run("unknown yaml field is an error", func(t *testing.T) {
		t.Parallel()
		if _, err := LoadFrom(writeFile(t, "typo.yaml", "backend_ulr: https://x\n"), "", envMap(nil)); err == nil {
			t.Fatalf("expected error for unknown field")
		}
	})
}

func TestLoader_Validation(t *testing.T) {
	t.Parallel()

	t.Run("redis backend requires url", func(t *testing.T) {
		t.Parallel()
		_, err := LoadFrom("", "", envMap(map[string]string{"SEATCLIENT_STATE_BACKEND": "redis"}))
		if err == nil {
			t.Fatalf("expected error when redis url is missing")
		}
		expected := "required configuration is missing: SEATCLIENT_REDIS_URL"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})

	t.Run("aggregates invalid values", func(t *testing.T) {
		t.Parallel()
		_, err := LoadFrom("", "", envMap(map[string]string{
			"SEATCLIENT_HTTP_TIMEOUT":  "soon",
			"SEATCLIENT_REQUEST_BURST": "0",
			"SEATCLIENT_LANGUAGE":      "fr",
			"SEATCLIENT_BACKEND_URL":   "ftp://seats.example.com",
		}))
		if err == nil {
			t.Fatalf("expected validation error")
		}
		for _, name := range []string{"SEATCLIENT_HTTP_TIMEOUT", "SEATCLIENT_REQUEST_BURST", "SEATCLIENT_LANGUAGE", "SEATCLIENT_BACKEND_URL"} {
			if !strings.Contains(err.Error(), name) {
				t.Fatalf("expected %s in %q", name, err.Error())
			}
		}
		if strings.Count(err.Error(), "SEATCLIENT_HTTP_TIMEOUT") != 1 {
			t.Fatalf("expected each variable reported once: %q", err.Error())
		}
	})

	t.Run("zero rate disables throttling without burst", func(t *testing.T) {
		t.Parallel()
		cfg, err := LoadFrom("", "", envMap(map[string]string{
			"SEATCLIENT_REQUEST_RATE":  "0",
			"SEATCLIENT_REQUEST_BURST": "0",
		}))
		if err != nil {
			t.Fatalf("LoadFrom returned error: %v", err)
		}
		if cfg.RequestRate != 0 {
			t.Fatalf("expected zero rate, got %v", cfg.RequestRate)
		}
	})
}
