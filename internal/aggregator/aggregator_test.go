package aggregator

import (
	"path/filepath"
	"testing"

	"github.com/lumipallolabs/indexd/internal/model"
	"github.com/lumipallolabs/indexd/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.db")
	s, err := store.Open(path, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func size(n int64) *int64 { return &n }

// seedTree plants the S1 scenario tree:
// /r, /r/a.txt (100), /r/b.txt (200), /r/sub, /r/sub/c.txt (50)
func seedTree(t *testing.T, s *store.Store) {
	t.Helper()
	entries := []model.Entry{
		{Path: "/r", ParentPath: "/", Name: "r", IsDir: true},
		{Path: "/r/a.txt", ParentPath: "/r", Name: "a.txt", Size: size(100)},
		{Path: "/r/b.txt", ParentPath: "/r", Name: "b.txt", Size: size(200)},
		{Path: "/r/sub", ParentPath: "/r", Name: "sub", IsDir: true},
		{Path: "/r/sub/c.txt", ParentPath: "/r/sub", Name: "c.txt", Size: size(50)},
	}
	if err := s.InsertEntriesBatch(entries); err != nil {
		t.Fatalf("InsertEntriesBatch failed: %v", err)
	}
}

func TestComputeAllScenarioS1(t *testing.T) {
	s := openTestStore(t)
	seedTree(t, s)

	if _, err := ComputeAll(s); err != nil {
		t.Fatalf("ComputeAll failed: %v", err)
	}

	cases := []struct {
		path               string
		size, files, dirs uint64
	}{
		{"/r/sub", 50, 1, 0},
		{"/r", 350, 3, 1},
		{"/", 350, 3, 2},
	}
	for _, c := range cases {
		got, err := s.GetDirStats(c.path)
		if err != nil {
			t.Fatalf("GetDirStats(%s) failed: %v", c.path, err)
		}
		if got.RecursiveSize != c.size || got.RecursiveFileCount != c.files || got.RecursiveDirCount != c.dirs {
			t.Errorf("DirStats(%s) = (%d,%d,%d), want (%d,%d,%d)",
				c.path, got.RecursiveSize, got.RecursiveFileCount, got.RecursiveDirCount,
				c.size, c.files, c.dirs)
		}
	}
}

// TestPropagateScenarioS2 covers spec scenario S2: propagate_delta after
// full aggregation updates every ancestor up to root.
func TestPropagateScenarioS2(t *testing.T) {
	s := openTestStore(t)
	seedTree(t, s)
	if _, err := ComputeAll(s); err != nil {
		t.Fatalf("ComputeAll failed: %v", err)
	}

	if _, err := Propagate(s, "/r/new.txt", 500, 1, 0); err != nil {
		t.Fatalf("Propagate failed: %v", err)
	}

	r, err := s.GetDirStats("/r")
	if err != nil {
		t.Fatalf("GetDirStats(/r) failed: %v", err)
	}
	if r.RecursiveSize != 850 || r.RecursiveFileCount != 4 || r.RecursiveDirCount != 1 {
		t.Errorf("DirStats(/r) = %+v, want (850,4,1)", r)
	}

	root, err := s.GetDirStats("/")
	if err != nil {
		t.Fatalf("GetDirStats(/) failed: %v", err)
	}
	if root.RecursiveSize != 850 || root.RecursiveFileCount != 4 || root.RecursiveDirCount != 2 {
		t.Errorf("DirStats(/) = %+v, want (850,4,2)", root)
	}
}

// TestPropagateClampsAtZero covers property P4: propagation never drives
// a stored count negative.
func TestPropagateClampsAtZero(t *testing.T) {
	s := openTestStore(t)
	if err := s.UpsertDirStats([]model.DirStats{{Path: "/r", RecursiveSize: 10, RecursiveFileCount: 1}}); err != nil {
		t.Fatalf("UpsertDirStats failed: %v", err)
	}

	clamped, err := Propagate(s, "/r/x.txt", -1000, -5, 0)
	if err != nil {
		t.Fatalf("Propagate failed: %v", err)
	}
	if clamped == 0 {
		t.Error("expected clamping to be reported")
	}

	got, err := s.GetDirStats("/r")
	if err != nil {
		t.Fatalf("GetDirStats failed: %v", err)
	}
	if got.RecursiveSize != 0 || got.RecursiveFileCount != 0 {
		t.Errorf("expected clamped zero stats, got %+v", got)
	}
}

func TestComputeSubtreeDoesNotTouchRoot(t *testing.T) {
	s := openTestStore(t)
	seedTree(t, s)
	if err := s.UpsertDirStats([]model.DirStats{{Path: "/", RecursiveSize: 999}}); err != nil {
		t.Fatalf("UpsertDirStats failed: %v", err)
	}

	if _, err := ComputeSubtree(s, "/r/sub"); err != nil {
		t.Fatalf("ComputeSubtree failed: %v", err)
	}

	sub, err := s.GetDirStats("/r/sub")
	if err != nil {
		t.Fatalf("GetDirStats(/r/sub) failed: %v", err)
	}
	if sub.RecursiveSize != 50 || sub.RecursiveFileCount != 1 {
		t.Errorf("DirStats(/r/sub) = %+v, want (50,1,0)", sub)
	}

	root, err := s.GetDirStats("/")
	if err != nil {
		t.Fatalf("GetDirStats(/) failed: %v", err)
	}
	if root.RecursiveSize != 999 {
		t.Errorf("ComputeSubtree must not touch root, got %+v", root)
	}
}
