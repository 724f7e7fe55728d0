// Package microscan implements the bounded-concurrency, priority-queued
// on-demand subtree scanner (spec.md §4.5). It schedules scanner.ScanSubtree
// jobs triggered by UI navigation and explicit user "compute size"
// requests, keeping at most maxConcurrent of them running at once.
package microscan

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/lumipallolabs/indexd/internal/model"
	"github.com/lumipallolabs/indexd/internal/scanner"
	"github.com/lumipallolabs/indexd/internal/writer"
)

// Priority orders scan requests; higher numeric value wins (spec.md
// §4.5).
type Priority int

const (
	// CurrentDir marks the directory the user is currently looking at;
	// cancelled when the user navigates away.
	CurrentDir Priority = iota
	// UserSelected marks an explicit "compute size" request; never
	// auto-cancelled until it completes.
	UserSelected
)

// defaultMaxConcurrent matches the "typically 2-4" guidance in spec.md
// §4.5.
const defaultMaxConcurrent = 3

type active struct {
	priority Priority
	cancel   context.CancelFunc
}

type queued struct {
	path     string
	priority Priority
}

// Manager schedules scan_subtree jobs against the priority rules in
// spec.md §4.5. All state is protected by one mutex, held only around
// short map/queue updates, never across a scan (spec.md §5 locking
// discipline).
type Manager struct {
	mu            sync.Mutex
	writer        *writer.Handle
	log           *logrus.Entry
	maxConcurrent int

	activeScans map[string]*active
	queue       []queued
	completed   map[string]bool

	fullScanComplete bool
	replayActive     bool
}

// New constructs a Manager bound to w, posting ComputeSubtreeAggregates
// requests through it as scans complete.
func New(w *writer.Handle, log *logrus.Entry) *Manager {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Manager{
		writer:        w,
		log:           log.WithField("component", "microscan"),
		maxConcurrent: defaultMaxConcurrent,
		activeScans:   make(map[string]*active),
		completed:     make(map[string]bool),
	}
}

// RequestScan enqueues or immediately starts a subtree scan for path at
// the given priority (spec.md §4.5 request_scan).
func (m *Manager) RequestScan(path string, priority Priority) {
	path = model.Normalize(path)

	m.mu.Lock()
	if m.fullScanComplete {
		m.mu.Unlock()
		return
	}
	if m.completed[path] {
		m.mu.Unlock()
		return
	}
	if a, ok := m.activeScans[path]; ok {
		if priority > a.priority {
			a.cancel()
			delete(m.activeScans, path)
		} else {
			m.mu.Unlock()
			return
		}
	}
	m.dequeuePath(path)

	if m.replayActive || len(m.activeScans) >= m.maxConcurrent {
		m.enqueueLocked(path, priority)
		m.mu.Unlock()
		return
	}
	m.startLocked(path, priority)
	m.mu.Unlock()
}

// CancelCurrentDirScans cancels any active or queued CurrentDir scan
// under pathPrefix and starts replacements from the queue if slots free
// up (spec.md §4.5 cancel_current_dir_scans). UserSelected scans are
// never touched by this call.
func (m *Manager) CancelCurrentDirScans(pathPrefix string) {
	pathPrefix = model.Normalize(pathPrefix)

	m.mu.Lock()
	for path, a := range m.activeScans {
		if a.priority == CurrentDir && model.IsUnderOrEqual(path, pathPrefix) {
			a.cancel()
			delete(m.activeScans, path)
		}
	}
	kept := m.queue[:0]
	for _, q := range m.queue {
		if q.priority == CurrentDir && model.IsUnderOrEqual(q.path, pathPrefix) {
			continue
		}
		kept = append(kept, q)
	}
	m.queue = kept
	m.fillSlotsLocked()
	m.mu.Unlock()
}

// MarkFullScanComplete marks every future RequestScan a no-op and cancels
// everything pending or active: the full scan's aggregation pass has
// already produced authoritative stats everywhere (spec.md §4.5).
func (m *Manager) MarkFullScanComplete() {
	m.mu.Lock()
	m.fullScanComplete = true
	for _, a := range m.activeScans {
		a.cancel()
	}
	m.activeScans = make(map[string]*active)
	m.queue = nil
	m.mu.Unlock()
}

// CancelAll cancels every active scan, for shutdown.
func (m *Manager) CancelAll() {
	m.mu.Lock()
	for _, a := range m.activeScans {
		a.cancel()
	}
	m.activeScans = make(map[string]*active)
	m.queue = nil
	m.mu.Unlock()
}

// SetMaxConcurrent overrides how many subtree scans may run at once
// (spec.md §4.5's "typically 2-4"; exposed so callers can drive it from
// a Config value instead of defaultMaxConcurrent). n <= 0 is ignored.
// Existing active scans are left running even above a lowered limit;
// queued scans start immediately if the new limit leaves free slots.
func (m *Manager) SetMaxConcurrent(n int) {
	if n <= 0 {
		return
	}
	m.mu.Lock()
	m.maxConcurrent = n
	m.fillSlotsLocked()
	m.mu.Unlock()
}

// SetReplayActive suppresses starting new scans while the cold-start
// replay holds its explicit transaction open; requests continue to
// queue and are drained once replay ends (spec.md §4.5).
func (m *Manager) SetReplayActive(replaying bool) {
	m.mu.Lock()
	m.replayActive = replaying
	if !replaying {
		m.fillSlotsLocked()
	}
	m.mu.Unlock()
}

func (m *Manager) dequeuePath(path string) {
	kept := m.queue[:0]
	for _, q := range m.queue {
		if q.path != path {
			kept = append(kept, q)
		}
	}
	m.queue = kept
}

func (m *Manager) enqueueLocked(path string, priority Priority) {
	// Insertion point: after every entry of >= priority, before the
	// first of lower priority -- priority-ordered, FIFO within a band.
	idx := len(m.queue)
	for i, q := range m.queue {
		if q.priority < priority {
			idx = i
			break
		}
	}
	m.queue = append(m.queue, queued{})
	copy(m.queue[idx+1:], m.queue[idx:])
	m.queue[idx] = queued{path: path, priority: priority}
}

func (m *Manager) fillSlotsLocked() {
	if m.replayActive {
		return
	}
	for len(m.queue) > 0 && len(m.activeScans) < m.maxConcurrent {
		next := m.queue[0]
		m.queue = m.queue[1:]
		m.startLocked(next.path, next.priority)
	}
}

func (m *Manager) startLocked(path string, priority Priority) {
	ctx, cancel := context.WithCancel(context.Background())
	m.activeScans[path] = &active{priority: priority, cancel: cancel}
	go m.run(ctx, path)
}

func (m *Manager) run(ctx context.Context, path string) {
	_, err := scanner.ScanSubtree(ctx, path, m.writer, m.log)
	if err != nil {
		m.log.WithError(err).WithField("path", path).Debug("micro-scan failed")
	}

	m.mu.Lock()
	delete(m.activeScans, path)
	m.completed[path] = true
	m.fillSlotsLocked()
	m.mu.Unlock()
}
