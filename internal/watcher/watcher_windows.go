//go:build windows

package watcher

import (
	"path/filepath"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/sirupsen/logrus"
)

const notifyFilter = windows.FILE_NOTIFY_CHANGE_FILE_NAME | windows.FILE_NOTIFY_CHANGE_DIR_NAME |
	windows.FILE_NOTIFY_CHANGE_ATTRIBUTES | windows.FILE_NOTIFY_CHANGE_LAST_WRITE

const (
	fileActionAdded          = 1
	fileActionRemoved        = 2
	fileActionModified       = 3
	fileActionRenamedOldName = 4
	fileActionRenamedNewName = 5
)

// gapThresholdWin mirrors spec.md §4.7's journal-gap magic number. Like
// the inotify and polling backends, ReadDirectoryChangesW has no durable
// cross-restart journal, so a nonzero sinceWhen always synthesizes a
// far-ahead event to force the Reconciler's full-rescan path.
const gapThresholdWin = 1_000_000

// Watcher wraps Windows' ReadDirectoryChangesW, adapted to the abstract
// event contract of spec.md §4.6.
type Watcher struct {
	handle  windows.Handle
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

	pathPtr, err := windows.UTF16PtrFromString(root)
	if err != nil {
		return err
	}
	handle, err := windows.CreateFile(
		pathPtr,
		windows.FILE_LIST_DIRECTORY,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_FLAG_BACKUP_SEMANTICS,
		0,
	)
	if err != nil {
		return err
	}
	w.handle = handle

	w.wg.Add(1)
	go w.run(sinceWhen)
	return nil
}

func (w *Watcher) run(sinceWhen uint64) {
	defer w.wg.Done()
	defer close(w.eventCh)

	if sinceWhen != 0 {
		select {
		case w.eventCh <- Event{EventID: sinceWhen + gapThresholdWin + 1, HistoryDone: true}:
		case <-w.done:
			return
		}
	}

	buf := make([]byte, 64*1024)
	for {
		select {
		case <-w.done:
			return
		default:
		}

		var bytesReturned uint32
		err := windows.ReadDirectoryChanges(w.handle, &buf[0], uint32(len(buf)), true, notifyFilter, &bytesReturned, nil, 0)
		if err != nil {
			return
		}
		if bytesReturned > 0 {
			w.processEvents(buf[:bytesReturned])
		}
	}
}

func (w *Watcher) processEvents(buf []byte) {
	for len(buf) >= 12 {
		nextOffset := *(*uint32)(unsafe.Pointer(&buf[0]))
		action := *(*uint32)(unsafe.Pointer(&buf[4]))
		nameLen := *(*uint32)(unsafe.Pointer(&buf[8]))

		if len(buf) >= 12+int(nameLen) {
			name := windows.UTF16ToString((*[1 << 15]uint16)(unsafe.Pointer(&buf[12]))[:nameLen/2])
			path := filepath.Join(w.root, name)

			ev := Event{
				EventID:      w.nextID,
				Path:         path,
				ItemCreated:  action == fileActionAdded || action == fileActionRenamedNewName,
				ItemRemoved:  action == fileActionRemoved || action == fileActionRenamedOldName,
				ItemModified: action == fileActionModified,
				ItemRenamed:  action == fileActionRenamedOldName || action == fileActionRenamedNewName,
				ItemIsFile:   true,
			}
			w.nextID++
			select {
			case w.eventCh <- ev:
			case <-w.done:
				return
			}
		}

		if nextOffset == 0 {
			break
		}
		buf = buf[nextOffset:]
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
	if w.handle != 0 {
		windows.CloseHandle(w.handle)
	}
	w.wg.Wait()
	return nil
}
