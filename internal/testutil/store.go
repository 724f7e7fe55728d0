package testutil

import (
	"path/filepath"
	"testing"

	"github.com/lumipallolabs/indexd/internal/store"
	"github.com/lumipallolabs/indexd/internal/writer"
)

// OpenStore opens a fresh Store under a temp directory, closed
// automatically via t.Cleanup.
func OpenStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.db")
	s, err := store.Open(path, nil)
	if err != nil {
		t.Fatalf("testutil.OpenStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// WriterHandle starts a Writer over a fresh Store and returns its
// send-only Handle alongside the Store for direct read assertions. The
// Writer is shut down automatically via t.Cleanup.
func WriterHandle(t *testing.T) (*writer.Handle, *store.Store) {
	t.Helper()
	s := OpenStore(t)
	w := writer.New(s, nil)
	h := w.Handle()
	t.Cleanup(h.Shutdown)
	return h, s
}
