package writer

import (
	"path/filepath"
	"testing"

	"github.com/lumipallolabs/indexd/internal/model"
	"github.com/lumipallolabs/indexd/internal/store"
)

func openTestWriter(t *testing.T) (*Handle, *store.Store) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.db")
	s, err := store.Open(path, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	w := New(s, nil)
	h := w.Handle()
	t.Cleanup(h.Shutdown)
	return h, s
}

func size(n int64) *int64 { return &n }

func TestInsertEntriesThenFlush(t *testing.T) {
	h, s := openTestWriter(t)

	h.InsertEntries([]model.Entry{
		{Path: "/a.txt", ParentPath: "/", Name: "a.txt", Size: size(10)},
	})
	h.Flush()

	got, err := s.GetEntry("/a.txt")
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if got.Name != "a.txt" {
		t.Errorf("unexpected entry: %+v", got)
	}
}

// TestDeleteEntryAutoPropagates covers scenario S3: deleting a file with
// a known size propagates the negative delta to its parent.
func TestDeleteEntryAutoPropagates(t *testing.T) {
	h, s := openTestWriter(t)

	h.InsertEntries([]model.Entry{
		{Path: "/r", ParentPath: "/", Name: "r", IsDir: true},
		{Path: "/r/a.txt", ParentPath: "/r", Name: "a.txt", Size: size(100)},
	})
	h.UpdateDirStats([]model.DirStats{{Path: "/r", RecursiveSize: 350, RecursiveFileCount: 3, RecursiveDirCount: 1}})
	h.Flush()

	h.DeleteEntry("/r/a.txt")
	h.Flush()

	r, err := s.GetDirStats("/r")
	if err != nil {
		t.Fatalf("GetDirStats failed: %v", err)
	}
	if r.RecursiveSize != 250 || r.RecursiveFileCount != 2 || r.RecursiveDirCount != 1 {
		t.Errorf("DirStats(/r) = %+v, want (250,2,1)", r)
	}
}

func TestGetEntryCount(t *testing.T) {
	h, _ := openTestWriter(t)

	h.InsertEntries([]model.Entry{
		{Path: "/a.txt", ParentPath: "/", Name: "a.txt", Size: size(1)},
		{Path: "/b.txt", ParentPath: "/", Name: "b.txt", Size: size(2)},
	})
	h.Flush()

	count, err := h.GetEntryCount()
	if err != nil {
		t.Fatalf("GetEntryCount failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected count 2, got %d", count)
	}
}

func TestSendAfterShutdownIsDropped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	s, err := store.Open(path, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	w := New(s, nil)
	h := w.Handle()
	h.Shutdown()

	// Must not panic or block: the message is dropped with a warning.
	h.UpsertEntry(model.Entry{Path: "/late.txt", ParentPath: "/", Name: "late.txt"})
}

func TestTransactionBracket(t *testing.T) {
	h, s := openTestWriter(t)

	h.BeginTransaction()
	h.InsertEntries([]model.Entry{{Path: "/x.txt", ParentPath: "/", Name: "x.txt", Size: size(5)}})
	h.CommitTransaction()
	h.Flush()

	if _, err := s.GetEntry("/x.txt"); err != nil {
		t.Fatalf("expected entry committed, got %v", err)
	}
}
