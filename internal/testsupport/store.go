package testsupport

import (
	"testing"

	"artstudio/internal/config"
	"artstudio/internal/session"
)

// MustOpenStore opens a SQLite session store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *session.SQLiteStore {
	t.Helper()
	store, err := session.OpenSQLite(cfg)
	if err != nil {
		t.Fatalf("open session store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}
