package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/seat-booking-client/internal/persistence/sqlite"
)

// NewSQLiteStore opens a migrated state database in a temporary directory.
// The store is closed when the test finishes.
func NewSQLiteStore(tb testing.TB) *sqlite.Store {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "state.db")
	store, err := sqlite.Open(context.Background(), path)
	if err != nil {
		tb.Fatalf("failed to open state store: %v", err)
	}
	tb.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
