package testutil

import (
	"testing"

	"docchat/internal/database"
	"docchat/internal/docchat"
)

// NewTestStore creates an in-memory SQLite store with migrations applied.
// The store is closed when the test completes.
func NewTestStore(t *testing.T) docchat.Store {
	t.Helper()

	store, err := database.NewSQLiteStore(":memory:", nil)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	t.Cleanup(func() {
		store.Close()
	})

	return store
}
