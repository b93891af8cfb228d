package testsupport

import (
	"context"
	"testing"
	"time"

	"shellac/internal/catalog"
	"shellac/internal/config"
)

// MustOpenStore opens a catalog.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *catalog.Store {
	t.Helper()

	store, err := catalog.Open(cfg)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// SeedFile records a discovered file for tests using the provided store.
func SeedFile(t testing.TB, store *catalog.Store, path string, size int64) *catalog.FileRecord {
	t.Helper()

	record, err := store.UpsertDiscovered(context.Background(), path, size, time.Now())
	if err != nil {
		t.Fatalf("store.UpsertDiscovered: %v", err)
	}
	return record
}
