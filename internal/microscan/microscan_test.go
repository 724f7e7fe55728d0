package microscan

import (
	"path/filepath"
	"testing"

	"github.com/lumipallolabs/indexd/internal/store"
	"github.com/lumipallolabs/indexd/internal/writer"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.db")
	s, err := store.Open(path, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	w := writer.New(s, nil)
	h := w.Handle()
	t.Cleanup(h.Shutdown)
	return New(h, nil)
}

// TestRequestScanQueuesInPriorityOrder exercises the queueing half of
// spec scenario S6: with no free slots, requests accumulate in
// priority order, FIFO within a band.
func TestRequestScanQueuesInPriorityOrder(t *testing.T) {
	m := newTestManager(t)
	m.mu.Lock()
	m.maxConcurrent = 0 // force every request to queue, nothing starts
	m.mu.Unlock()

	m.RequestScan("/a", CurrentDir)
	m.RequestScan("/b", CurrentDir)
	m.RequestScan("/c", UserSelected)

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) != 3 {
		t.Fatalf("expected 3 queued, got %d: %+v", len(m.queue), m.queue)
	}
	// UserSelected (higher priority) must come first; CurrentDir entries
	// keep their FIFO order relative to each other.
	if m.queue[0].path != "/c" || m.queue[0].priority != UserSelected {
		t.Errorf("expected /c first, got %+v", m.queue[0])
	}
	if m.queue[1].path != "/a" || m.queue[2].path != "/b" {
		t.Errorf("expected FIFO order a,b after c, got %+v, %+v", m.queue[1], m.queue[2])
	}
}

// TestRequestScanDedupesCompleted covers property P7: requesting a path
// already in the completed set is a no-op.
func TestRequestScanDedupesCompleted(t *testing.T) {
	m := newTestManager(t)
	m.mu.Lock()
	m.completed["/done"] = true
	m.mu.Unlock()

	m.RequestScan("/done", UserSelected)

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.activeScans) != 0 || len(m.queue) != 0 {
		t.Errorf("expected no-op for completed path, got active=%v queue=%v", m.activeScans, m.queue)
	}
}

// TestRequestScanUpgradesActiveLowerPriority covers spec scenario S6:
// requesting UserSelected while a CurrentDir scan is active for the same
// path cancels the lower-priority scan and starts a new one at the
// higher priority exactly once.
func TestRequestScanUpgradesActiveLowerPriority(t *testing.T) {
	m := newTestManager(t)

	cancelled := false
	cancel := func() { cancelled = true }
	m.mu.Lock()
	m.activeScans["/x"] = &active{priority: CurrentDir, cancel: cancel}
	// replayActive forces the upgraded request to queue instead of
	// starting a real scan goroutine, so the assertions below aren't
	// racing against scanner.ScanSubtree's completion.
	m.replayActive = true
	m.mu.Unlock()

	m.RequestScan("/x", UserSelected)

	if !cancelled {
		t.Error("expected the lower-priority active scan to be cancelled")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, stillActive := m.activeScans["/x"]; stillActive {
		t.Error("the lower-priority active entry should have been removed")
	}
	if len(m.queue) != 1 || m.queue[0].path != "/x" || m.queue[0].priority != UserSelected {
		t.Errorf("expected /x queued at UserSelected, got %+v", m.queue)
	}
}

// TestCancelCurrentDirScansLeavesUserSelected covers the second half of
// scenario S6: cancel_current_dir_scans never touches UserSelected
// scans.
func TestCancelCurrentDirScansLeavesUserSelected(t *testing.T) {
	m := newTestManager(t)

	var curCancelled, userCancelled bool
	curCancel := func() { curCancelled = true }
	userCancel := func() { userCancelled = true }

	m.mu.Lock()
	m.activeScans["/x/cur"] = &active{priority: CurrentDir, cancel: curCancel}
	m.activeScans["/x/sel"] = &active{priority: UserSelected, cancel: userCancel}
	m.mu.Unlock()

	m.CancelCurrentDirScans("/x")

	if !curCancelled {
		t.Error("expected CurrentDir scan under /x to be cancelled")
	}
	if userCancelled {
		t.Error("expected UserSelected scan to survive cancel_current_dir_scans")
	}
	m.mu.Lock()
	_, stillActive := m.activeScans["/x/sel"]
	m.mu.Unlock()
	if !stillActive {
		t.Error("UserSelected active entry should remain in the active map")
	}
}

// TestMarkFullScanCompleteIsTerminal checks that once the full scan's
// aggregation pass has produced authoritative stats everywhere, further
// requests are no-ops and nothing stays pending.
func TestMarkFullScanCompleteIsTerminal(t *testing.T) {
	m := newTestManager(t)
	m.mu.Lock()
	m.maxConcurrent = 0
	m.mu.Unlock()
	m.RequestScan("/pending", CurrentDir)

	m.MarkFullScanComplete()
	m.RequestScan("/after", UserSelected)

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) != 0 || len(m.activeScans) != 0 {
		t.Errorf("expected everything cleared after MarkFullScanComplete, queue=%v active=%v", m.queue, m.activeScans)
	}
}
