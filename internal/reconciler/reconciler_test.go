package reconciler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lumipallolabs/indexd/internal/microscan"
	"github.com/lumipallolabs/indexd/internal/model"
	"github.com/lumipallolabs/indexd/internal/store"
	"github.com/lumipallolabs/indexd/internal/watcher"
	"github.com/lumipallolabs/indexd/internal/writer"
)

type recordingNotifier struct {
	paths [][]string
}

func (n *recordingNotifier) DirUpdated(paths []string) {
	n.paths = append(n.paths, paths)
}
func (n *recordingNotifier) ReplayProgress(uint64, uint64) {}

func newTestReconciler(t *testing.T) (*Reconciler, *writer.Handle, *store.Store, *recordingNotifier) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.db")
	s, err := store.Open(path, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	w := writer.New(s, nil)
	h := w.Handle()
	t.Cleanup(h.Shutdown)

	ms := microscan.New(h, nil)
	notify := &recordingNotifier{}
	log := logrus.NewEntry(logrus.New())
	r := New(h, ms, s, notify, log)
	return r, h, s, notify
}

func size(n int64) *int64 { return &n }

// TestLiveEventSequenceScenarioS5 covers spec scenario S5: tree
// /a/b.txt(10) with correct stats, then "created /a/c.txt(20)" followed
// by "removed /a/b.txt" fired through the live event path, ending with
// DirStats(/a) = (20,1,0).
func TestLiveEventSequenceScenarioS5(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "a"), 0755); err != nil {
		t.Fatal(err)
	}
	bPath := filepath.Join(root, "a", "b.txt")
	if err := os.WriteFile(bPath, make([]byte, 10), 0644); err != nil {
		t.Fatal(err)
	}
	cPath := filepath.Join(root, "a", "c.txt")
	if err := os.WriteFile(cPath, make([]byte, 20), 0644); err != nil {
		t.Fatal(err)
	}
	r, h, s, _ := newTestReconciler(t)
	aPath := filepath.Join(root, "a")

	h.InsertEntries([]model.Entry{
		{Path: aPath, ParentPath: root, Name: "a", IsDir: true},
		{Path: bPath, ParentPath: aPath, Name: "b.txt", Size: size(10)},
	})
	h.UpdateDirStats([]model.DirStats{{Path: aPath, RecursiveSize: 10, RecursiveFileCount: 1}})
	h.Flush()

	pending := make(map[string]bool)
	r.processLiveEvent(watcher.Event{EventID: 1, Path: cPath, ItemCreated: true}, pending)
	r.processLiveEvent(watcher.Event{EventID: 2, Path: bPath, ItemRemoved: true}, pending)
	h.Flush()

	got, err := s.GetDirStats(aPath)
	if err != nil {
		t.Fatalf("GetDirStats failed: %v", err)
	}
	if got.RecursiveSize != 20 || got.RecursiveFileCount != 1 || got.RecursiveDirCount != 0 {
		t.Errorf("DirStats(%s) = %+v, want (20,1,0)", aPath, got)
	}

	if _, err := s.GetEntry(bPath); err == nil {
		t.Errorf("expected b.txt removed from entries")
	}
}

// TestProcessFsEventExcludesHardBlockedPath covers property P6: an event
// under a hard-blocked prefix must never produce a write, matching the
// Scanner's own exclusion predicate.
func TestProcessFsEventExcludesHardBlockedPath(t *testing.T) {
	r, h, s, _ := newTestReconciler(t)

	affected := r.processFsEvent(watcher.Event{
		EventID:     1,
		Path:        "/proc/self/status",
		ItemCreated: true,
	})
	if affected != nil {
		t.Errorf("expected no affected paths for excluded event, got %v", affected)
	}

	h.Flush()
	if _, err := s.GetEntry("/proc/self/status"); err == nil {
		t.Error("excluded path must never be written to the store")
	}
}

// TestProcessFsEventStatRaceFallsThroughToDelete covers the "event says
// created but the file is already gone" race (spec.md §4.7, §9): the
// reconciler must treat it as a removal rather than erroring.
func TestProcessFsEventStatRaceFallsThroughToDelete(t *testing.T) {
	r, h, s, _ := newTestReconciler(t)

	root := t.TempDir()
	gone := filepath.Join(root, "gone.txt")
	// Seed the entry as if it were previously known, then never create
	// the file on disk: the stat in processFsEvent must fail.
	h.InsertEntries([]model.Entry{{Path: gone, ParentPath: root, Name: "gone.txt", Size: size(5)}})
	h.Flush()

	affected := r.processFsEvent(watcher.Event{EventID: 1, Path: gone, ItemCreated: true})
	if len(affected) != 1 || affected[0] != root {
		t.Errorf("expected affected=[%s], got %v", root, affected)
	}
	h.Flush()

	if _, err := s.GetEntry(gone); err == nil {
		t.Error("expected entry removed after stat-race fallthrough")
	}
}

// TestRunLiveCoalescesNotifications checks that multiple live events
// arriving within one flush window produce a single DirUpdated call
// (spec.md §4.7 "UI notifications are coalesced").
func TestRunLiveCoalescesNotifications(t *testing.T) {
	r, h, _, notify := newTestReconciler(t)
	r.NotifyFlushInterval = 20 * time.Millisecond

	root := t.TempDir()
	f1 := filepath.Join(root, "f1.txt")
	f2 := filepath.Join(root, "f2.txt")
	if err := os.WriteFile(f1, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(f2, []byte("y"), 0644); err != nil {
		t.Fatal(err)
	}

	events := make(chan watcher.Event, 2)
	events <- watcher.Event{EventID: 1, Path: f1, ItemCreated: true}
	events <- watcher.Event{EventID: 2, Path: f2, ItemCreated: true}
	close(events)

	done := make(chan struct{})
	go func() {
		r.RunLive(context.Background(), events)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunLive did not return after channel close")
	}
	h.Flush()

	if len(notify.paths) != 1 {
		t.Fatalf("expected exactly one coalesced notification, got %d", len(notify.paths))
	}
	if len(notify.paths[0]) != 1 || notify.paths[0][0] != root {
		t.Errorf("expected notification for %s, got %v", root, notify.paths[0])
	}
}
