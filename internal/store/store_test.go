package store

import (
	"path/filepath"
	"testing"

	"github.com/lumipallolabs/indexd/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.db")
	s, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUpsertAndGetEntry(t *testing.T) {
	s := openTestStore(t)

	size := int64(100)
	e := model.Entry{Path: "/r/a.txt", ParentPath: "/r", Name: "a.txt", Size: &size}
	if err := s.UpsertEntry(e); err != nil {
		t.Fatalf("UpsertEntry failed: %v", err)
	}

	got, err := s.GetEntry("/r/a.txt")
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if got.Name != "a.txt" || got.Size == nil || *got.Size != 100 {
		t.Errorf("unexpected entry: %+v", got)
	}
}

func TestGetEntryNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetEntry("/nope")
	if !IsNotFound(err) {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestDeleteSubtreeIdempotent(t *testing.T) {
	s := openTestStore(t)

	size := int64(50)
	entries := []model.Entry{
		{Path: "/r", ParentPath: "/", Name: "r", IsDir: true},
		{Path: "/r/sub", ParentPath: "/r", Name: "sub", IsDir: true},
		{Path: "/r/sub/c.txt", ParentPath: "/r/sub", Name: "c.txt", Size: &size},
	}
	if err := s.InsertEntriesBatch(entries); err != nil {
		t.Fatalf("InsertEntriesBatch failed: %v", err)
	}

	if err := s.DeleteSubtree("/r"); err != nil {
		t.Fatalf("first DeleteSubtree failed: %v", err)
	}
	if err := s.DeleteSubtree("/r"); err != nil {
		t.Fatalf("second DeleteSubtree failed: %v", err)
	}

	if _, err := s.GetEntry("/r/sub/c.txt"); !IsNotFound(err) {
		t.Errorf("expected entries removed, got %v", err)
	}
}

func TestGetDirStatsBatchPreservesOrder(t *testing.T) {
	s := openTestStore(t)

	stats := []model.DirStats{
		{Path: "/a", RecursiveSize: 1},
		{Path: "/c", RecursiveSize: 3},
	}
	if err := s.UpsertDirStats(stats); err != nil {
		t.Fatalf("UpsertDirStats failed: %v", err)
	}

	got, err := s.GetDirStatsBatch([]string{"/a", "/b", "/c"})
	if err != nil {
		t.Fatalf("GetDirStatsBatch failed: %v", err)
	}
	if len(got) != 3 || got[0] == nil || got[1] != nil || got[2] == nil {
		t.Fatalf("unexpected batch result: %+v", got)
	}
	if got[0].RecursiveSize != 1 || got[2].RecursiveSize != 3 {
		t.Errorf("unexpected values: %+v %+v", got[0], got[2])
	}
}

func TestSchemaMismatchRecreates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	s, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.UpdateMeta("schema_version", "bogus"); err != nil {
		t.Fatalf("UpdateMeta failed: %v", err)
	}
	_ = s.Close()

	s2, err := Open(path, nil)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()

	v, err := s2.GetMeta("schema_version")
	if err != nil || v != schemaVersion {
		t.Errorf("expected schema_version %q after recreate, got %q (err=%v)", schemaVersion, v, err)
	}
}
