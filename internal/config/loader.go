package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "SEATCLIENT_"

// State backends.
const (
	StateBackendSQLite = "sqlite"
	StateBackendRedis  = "redis"
)

// Config captures the client configuration.
type Config struct {
	BackendURL      string        `yaml:"backend_url"`
	StateBackend    string        `yaml:"state_backend"`
	SQLiteDSN       string        `yaml:"sqlite_dsn"`
	RedisURL        string        `yaml:"redis_url"`
	StateSecret     string        `yaml:"state_secret"`
	HTTPTimeout     time.Duration `yaml:"http_timeout"`
	RequestRate     float64       `yaml:"request_rate"`
	RequestBurst    int           `yaml:"request_burst"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
	Language        string        `yaml:"language"`
	SentryDSN       string        `yaml:"sentry_dsn"`
	Environment     string        `yaml:"environment"`
	DefaultTokenTTL time.Duration `yaml:"default_token_ttl"`
}

// Sealed reports whether persisted state is encrypted.
func (c Config) Sealed() bool {
	return c.StateSecret != ""
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		StateBackend:    StateBackendSQLite,
		SQLiteDSN:       defaultSQLitePath(),
		HTTPTimeout:     30 * time.Second,
		RequestRate:     5,
		RequestBurst:    10,
		LogLevel:        "warn",
		LogFormat:       "text",
		Language:        "en",
		Environment:     "production",
		DefaultTokenTTL: 5 * time.Minute,
	}
}

func defaultSQLitePath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return "seatclient-state.db"
	}
	return filepath.Join(dir, "seatclient", "state.db")
}

// Load builds the configuration from defaults, the optional YAML file at path,
// a .env file in the working directory when present, and the process
// environment. Later sources win.
func Load(path string) (Config, error) {
	return LoadFrom(path, ".env", os.LookupEnv)
}

// LoadFrom is Load with an explicit .env location and environment lookup.
// An empty envFile or a missing one is skipped. Values from lookup take
// precedence over the .env file.
func LoadFrom(path, envFile string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		decoder := yaml.NewDecoder(bytes.NewReader(raw))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	dotenv := map[string]string{}
	if envFile != "" {
		values, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			dotenv = values
		case !errors.Is(err, os.ErrNotExist):
			return Config{}, fmt.Errorf("read env file %s: %w", envFile, err)
		}
	}
	env := func(name string) string {
		key := EnvPrefix + name
		if value, ok := lookup(key); ok {
			return strings.TrimSpace(value)
		}
		return strings.TrimSpace(dotenv[key])
	}

	invalid := make([]string, 0, 2)
	missing := make([]string, 0, 1)

	setString := func(name string, target *string) {
		if value := env(name); value != "" {
			*target = value
		}
	}
	setString("BACKEND_URL", &cfg.BackendURL)
	setString("STATE_BACKEND", &cfg.StateBackend)
	setString("SQLITE_DSN", &cfg.SQLiteDSN)
	setString("REDIS_URL", &cfg.RedisURL)
	setString("STATE_SECRET", &cfg.StateSecret)
	setString("LOG_LEVEL", &cfg.LogLevel)
	setString("LOG_FORMAT", &cfg.LogFormat)
	setString("LANGUAGE", &cfg.Language)
	setString("SENTRY_DSN", &cfg.SentryDSN)
	setString("ENVIRONMENT", &cfg.Environment)

	setDuration := func(name string, target *time.Duration) {
		if value := env(name); value != "" {
			d, err := time.ParseDuration(value)
			if err != nil {
				invalid = append(invalid, EnvPrefix+name)
				return
			}
			*target = d
		}
	}
	setDuration("HTTP_TIMEOUT", &cfg.HTTPTimeout)
	setDuration("DEFAULT_TOKEN_TTL", &cfg.DefaultTokenTTL)

	if value := env("REQUEST_RATE"); value != "" {
		rate, err := strconv.ParseFloat(value, 64)
		if err != nil {
			invalid = append(invalid, EnvPrefix+"REQUEST_RATE")
		} else {
			cfg.RequestRate = rate
		}
	}
	if value := env("REQUEST_BURST"); value != "" {
		burst, err := strconv.Atoi(value)
		if err != nil {
			invalid = append(invalid, EnvPrefix+"REQUEST_BURST")
		} else {
			cfg.RequestBurst = burst
		}
	}

	cfg.StateBackend = strings.ToLower(cfg.StateBackend)
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	cfg.Language = strings.ToLower(cfg.Language)
	cfg.BackendURL = strings.TrimRight(cfg.BackendURL, "/")

	invalid = append(invalid, cfg.invalidFields()...)
	missing = append(missing, cfg.missingFields()...)

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required configuration is missing: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("configuration values are invalid: %s", strings.Join(dedupe(invalid), ", "))
	}
	return cfg, nil
}

func (c Config) missingFields() []string {
	var missing []string
	switch c.StateBackend {
	case StateBackendSQLite:
		if c.SQLiteDSN == "" {
			missing = append(missing, EnvPrefix+"SQLITE_DSN")
		}
	case StateBackendRedis:
		if c.RedisURL == "" {
			missing = append(missing, EnvPrefix+"REDIS_URL")
		}
	}
	return missing
}

func (c Config) invalidFields() []string {
	var invalid []string
	if c.BackendURL != "" {
		if u, err := url.Parse(c.BackendURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			invalid = append(invalid, EnvPrefix+"BACKEND_URL")
		}
	}
	if c.StateBackend != StateBackendSQLite && c.StateBackend != StateBackendRedis {
		invalid = append(invalid, EnvPrefix+"STATE_BACKEND")
	}
	if c.HTTPTimeout <= 0 {
		invalid = append(invalid, EnvPrefix+"HTTP_TIMEOUT")
	}
	if c.RequestRate < 0 {
		invalid = append(invalid, EnvPrefix+"REQUEST_RATE")
	}
	if c.RequestRate > 0 && c.RequestBurst < 1 {
		invalid = append(invalid, EnvPrefix+"REQUEST_BURST")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		invalid = append(invalid, EnvPrefix+"LOG_LEVEL")
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		invalid = append(invalid, EnvPrefix+"LOG_FORMAT")
	}
	if c.Language != "en" && c.Language != "de" {
		invalid = append(invalid, EnvPrefix+"LANGUAGE")
	}
	if c.DefaultTokenTTL <= 0 {
		invalid = append(invalid, EnvPrefix+"DEFAULT_TOKEN_TTL")
	}
	return invalid
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := values[:0]
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
