//go:build darwin

package watcher

import (
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsevents"
	"github.com/sirupsen/logrus"
)

// Watcher wraps a macOS FSEvents stream, the platform's recursive kernel
// event source, matching the abstract contract in spec.md §4.6 almost
// exactly: FSEvents already carries a monotonic EventID, a HistoryDone
// flag, and a MustScanSubDirs flag.
type Watcher struct {
	stream  *fsevents.EventStream
	eventCh chan Event
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
	log     *logrus.Entry
}

// New constructs a Watcher; call Start to begin consuming events.
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

// Events returns the stream other components consume.
func (w *Watcher) Events() <-chan Event {
	return w.eventCh
}

// Start begins streaming events for root. sinceWhen == 0 means "start
// from now"; otherwise FSEvents replays its on-disk journal from that
// cursor, terminated by a HistoryDone event, or -- if the journal has
// rolled past it -- resumes from whatever its earliest retained ID is,
// which the Reconciler detects as a gap by comparing event IDs (spec.md
// §4.6, §4.7).
func (w *Watcher) Start(root string, sinceWhen uint64) error {
	dev, err := fsevents.DeviceForPath(root)
	if err != nil {
		return fmt.Errorf("watcher: device for path: %w", err)
	}

	since := fsevents.EventID(sinceWhen)
	if sinceWhen == 0 {
		since = fsevents.LatestEventID()
	}

	w.stream = &fsevents.EventStream{
		Paths:   []string{root},
		Since:   since,
		Latency: 300 * time.Millisecond,
		Device:  dev,
		Flags:   fsevents.FileEvents | fsevents.WatchRoot,
		Resume:  sinceWhen != 0,
	}
	w.stream.Start()
	w.wg.Add(1)
	go w.run()
	return nil
}

func (w *Watcher) run() {
	defer w.wg.Done()
	defer close(w.eventCh)

	for {
		select {
		case <-w.done:
			return
		case batch, ok := <-w.stream.Events:
			if !ok {
				return
			}
			for _, raw := range batch {
				select {
				case w.eventCh <- convert(raw):
				case <-w.done:
					return
				}
			}
		}
	}
}

// convert maps one FSEvents record onto the abstract Event contract.
func convert(e fsevents.Event) Event {
	path := e.Path
	if len(path) > 0 && path[0] != '/' {
		path = "/" + path
	}
	return Event{
		EventID:         uint64(e.ID),
		Path:            path,
		ItemCreated:     e.Flags&fsevents.ItemCreated != 0,
		ItemRemoved:     e.Flags&fsevents.ItemRemoved != 0,
		ItemModified:    e.Flags&fsevents.ItemModified != 0,
		ItemRenamed:     e.Flags&fsevents.ItemRenamed != 0,
		ItemIsFile:      e.Flags&fsevents.ItemIsFile != 0,
		ItemIsDir:       e.Flags&fsevents.ItemIsDir != 0,
		MustScanSubDirs: e.Flags&fsevents.MustScanSubDirs != 0,
		HistoryDone:     e.Flags&fsevents.HistoryDone != 0,
	}
}

// Stop halts the stream and closes the event channel once the run
// goroutine has drained it.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	close(w.done)
	if w.stream != nil {
		w.stream.Stop()
	}
	w.wg.Wait()
	return nil
}
