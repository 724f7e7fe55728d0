//go:build !darwin && !windows && !linux

package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// pollInterval is the readdir-diff cadence used on POSIX platforms with
// no recursive kernel event source wired (spec.md §4.6 describes the
// contract abstractly; this is the degraded-but-conformant
// implementation for those platforms).
const pollInterval = 2 * time.Second

// Watcher polls the tree periodically and synthesizes the same Event
// shape the darwin/linux backends produce. It never sets MustScanSubDirs
// (it has no concept of lost resolution) and always starts fresh: a
// nonzero sinceWhen synthesizes a single far-ahead HistoryDone event so
// the Reconciler takes the full-rescan path, matching the Linux backend's
// no-durable-journal behavior.
type Watcher struct {
	root    string
	eventCh chan Event
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
	nextID  uint64
	log     *logrus.Entry
}

func New(log *logrus.Entry) (*Watcher, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Watcher{
		eventCh: make(chan Event, eventChanCapacity),
		done:    make(chan struct{}),
		log:     log.WithField("component", "watcher"),
	}, nil
}

func (w *Watcher) Events() <-chan Event {
	return w.eventCh
}

func (w *Watcher) Start(root string, sinceWhen uint64) error {
	w.root = root
	w.nextID = sinceWhen + 1
	w.wg.Add(1)
	go w.run(sinceWhen)
	return nil
}

func (w *Watcher) run(sinceWhen uint64) {
	defer w.wg.Done()
	defer close(w.eventCh)

	if sinceWhen != 0 {
		select {
		case w.eventCh <- Event{EventID: sinceWhen + gapThresholdPoll + 1, HistoryDone: true}:
		case <-w.done:
			return
		}
	}

	prev := w.snapshot()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			next := w.snapshot()
			w.diff(prev, next)
			prev = next
		}
	}
}

const gapThresholdPoll = 1_000_000

func (w *Watcher) snapshot() map[string]bool {
	out := make(map[string]bool)
	_ = filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		out[path] = d.IsDir()
		return nil
	})
	return out
}

func (w *Watcher) diff(prev, next map[string]bool) {
	for path, isDir := range next {
		if _, existed := prev[path]; !existed {
			w.emit(Event{Path: path, ItemCreated: true, ItemIsDir: isDir, ItemIsFile: !isDir})
		}
	}
	for path, isDir := range prev {
		if _, still := next[path]; !still {
			w.emit(Event{Path: path, ItemRemoved: true, ItemIsDir: isDir, ItemIsFile: !isDir})
		}
	}
}

func (w *Watcher) emit(ev Event) {
	ev.EventID = w.nextID
	w.nextID++
	select {
	case w.eventCh <- ev:
	case <-w.done:
	}
}

func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()
	close(w.done)
	w.wg.Wait()
	return nil
}
