// Package sqlite provides the default durable key/value store for client
// session state, backed by a migrated SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/seat-booking-client/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MemoryDSN opens a private in-memory database.
const MemoryDSN = ":memory:"

// Store is a key/value store over the kv table. Each operation is a single
// statement, so keys are independent.
type Store struct {
	db     *sql.DB
	retry  RetryConfig
	now    func() time.Time
	logger *slog.Logger
}

// Open opens or creates the database at path and applies pending migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	return OpenWithLogger(ctx, path, nil)
}

// OpenWithLogger is Open with a specified logger.
func OpenWithLogger(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "sqlite_store")

	config := migration.DefaultSQLiteConfig(path)
	if path == MemoryDSN {
		config = migration.InMemorySQLiteConfig()
	}
	db, err := migration.Open(config)
	if err != nil {
		return nil, err
	}

	manager := migration.NewManager(migration.NewScanner(migrationFiles, "migrations"), migration.NewExecutor(db), logger)
	if _, err := manager.Run(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}

	logger.DebugContext(ctx, "state database opened", "path", path)
	return &Store{
		db:     db,
		retry:  DefaultRetryConfig(),
		now:    time.Now,
		logger: logger,
	}, nil
}

// Get returns the value stored under key and whether it exists.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := withRetry(ctx, s.retry, func() error {
		return s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("sqlite: get %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	const upsertSQL = `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

	updatedAt := s.now().UTC().Format(time.RFC3339Nano)
	err := withRetry(ctx, s.retry, func() error {
		_, err := s.db.ExecContext(ctx, upsertSQL, key, value, updatedAt)
		return err
	})
	if err != nil {
		return fmt.Errorf("sqlite: set %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := withRetry(ctx, s.retry, func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
		return err
	})
	if err != nil {
		return fmt.Errorf("sqlite: delete %s: %w", key, err)
	}
	return nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
