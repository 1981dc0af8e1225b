package testsupport

import (
	"context"
	"testing"

	"constellation/internal/artifacts"
	"constellation/internal/config"
	"constellation/internal/fingerprint"
)

// MustOpenStore opens an artifacts.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config, opts ...artifacts.Option) *artifacts.Store {
	t.Helper()

	store, err := artifacts.Open(cfg, opts...)
	if err != nil {
		t.Fatalf("artifacts.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// PutArtifact stores payload under fp for tests.
func PutArtifact(t testing.TB, store *artifacts.Store, fp fingerprint.Fingerprint, stage fingerprint.Stage, payload string) *artifacts.Entry {
	t.Helper()

	entry, err := store.Put(context.Background(), fp, []byte(payload), artifacts.Metadata{Stage: stage})
	if err != nil {
		t.Fatalf("store.Put: %v", err)
	}
	return entry
}
