package testsupport

import (
	"testing"

	"filterms/internal/config"
	"filterms/internal/record"
)

// MustOpenRecord opens the signal history for tests and registers cleanup.
// The config must have a record path, see WithHistory.
func MustOpenRecord(t testing.TB, cfg *config.Config) *record.Store {
	t.Helper()

	store, err := record.Open(cfg)
	if err != nil {
		t.Fatalf("record.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
