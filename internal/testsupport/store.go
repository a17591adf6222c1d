package testsupport

import (
	"context"
	"testing"

	"tagflow/internal/config"
	"tagflow/internal/store"
)

// MustOpenStore opens a store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	db, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

// NewTrack inserts a pending track for tests using the provided store.
func NewTrack(t testing.TB, db *store.Store, batchID, sourcePath string) *store.Track {
	t.Helper()

	track := &store.Track{
		BatchID:    batchID,
		SourcePath: sourcePath,
		Status:     store.StatusPending,
	}
	if err := db.UpsertTrack(context.Background(), track); err != nil {
		t.Fatalf("store.UpsertTrack: %v", err)
	}
	return track
}
