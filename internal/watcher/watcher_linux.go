//go:build linux

package watcher

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/sirupsen/logrus"
)

// gapThreshold mirrors spec.md §4.7's ~1,000,000 journal-gap magic
// number. It is a separate copy of the Reconciler's default: the
// synthesized event lands one past it, so it reads as a gap while the
// Reconciler uses that default, not under a larger configured threshold.
const gapThreshold = 1_000_000

const inotifyMask = unix.IN_CREATE | unix.IN_DELETE | unix.IN_DELETE_SELF |
	unix.IN_MODIFY | unix.IN_MOVED_FROM | unix.IN_MOVED_TO | unix.IN_ATTRIB

// Watcher adapts Linux inotify, added recursively to every directory
// under root, into the abstract event contract of spec.md §4.6. inotify
// has no durable cross-restart journal the way FSEvents does: Start
// with a nonzero sinceWhen always synthesizes a single far-ahead event
// first, so the Reconciler's gap detection (spec.md §4.7 step 4) takes
// the full-rescan path rather than silently trusting stale state.
type Watcher struct {
	fd       int
	eventCh  chan Event
	done     chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	closed   bool
	wdToPath map[int32]string
	pathToWd map[string]int32
	nextID   uint64
	log      *logrus.Entry
}

// New constructs a Watcher; call Start to begin consuming events.
func New(log *logrus.Entry) (*Watcher, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &Watcher{
		fd:       fd,
		eventCh:  make(chan Event, eventChanCapacity),
		done:     make(chan struct{}),
		wdToPath: make(map[int32]string),
		pathToWd: make(map[string]int32),
		log:      log.WithField("component", "watcher"),
	}, nil
}

// Events returns the stream other components consume.
func (w *Watcher) Events() <-chan Event {
	return w.eventCh
}

// Start recursively watches root and begins reading inotify events.
// sinceWhen != 0 synthesizes one far-ahead event before anything else,
// forcing the cold-start-after-gap path (see type doc).
func (w *Watcher) Start(root string, sinceWhen uint64) error {
	if err := w.addRecursive(root); err != nil {
		return err
	}
	w.nextID = sinceWhen + 1

	w.wg.Add(1)
	go w.run(sinceWhen)
	return nil
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		wd, werr := unix.InotifyAddWatch(w.fd, path, inotifyMask)
		if werr != nil {
			w.log.WithError(werr).WithField("path", path).Debug("watcher: add_watch failed")
			return nil
		}
		w.mu.Lock()
		w.wdToPath[int32(wd)] = path
		w.pathToWd[path] = int32(wd)
		w.mu.Unlock()
		return nil
	})
}

func (w *Watcher) run(sinceWhen uint64) {
	defer w.wg.Done()
	defer close(w.eventCh)

	if sinceWhen != 0 {
		gap := Event{EventID: sinceWhen + gapThreshold + 1, HistoryDone: true}
		select {
		case w.eventCh <- gap:
		case <-w.done:
			return
		}
	}

	buf := make([]byte, 64*(unix.SizeofInotifyEvent+unix.PathMax+1))
	for {
		n, err := unix.Read(w.fd, buf)
		if err != nil {
			select {
			case <-w.done:
				return
			default:
				w.log.WithError(err).Debug("watcher: read failed")
				return
			}
		}
		if n <= 0 {
			return
		}
		w.handleBuf(buf[:n])
	}
}

func (w *Watcher) handleBuf(buf []byte) {
	offset := 0
	for offset+unix.SizeofInotifyEvent <= len(buf) {
		raw := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
		nameLen := int(raw.Len)
		name := ""
		if nameLen > 0 {
			nameBytes := (*[unix.PathMax]byte)(unsafe.Pointer(&buf[offset+unix.SizeofInotifyEvent]))[:nameLen:nameLen]
			if idx := bytes.IndexByte(nameBytes, 0); idx >= 0 {
				name = string(nameBytes[:idx])
			} else {
				name = string(nameBytes)
			}
		}
		offset += unix.SizeofInotifyEvent + nameLen

		w.mu.Lock()
		dir, ok := w.wdToPath[raw.Wd]
		w.mu.Unlock()
		if !ok {
			continue
		}
		path := dir
		if name != "" {
			path = filepath.Join(dir, name)
		}
		isDir := raw.Mask&unix.IN_ISDIR != 0

		if isDir && raw.Mask&(unix.IN_CREATE|unix.IN_MOVED_TO) != 0 {
			_ = w.addRecursive(path)
		}
		if raw.Mask&unix.IN_DELETE_SELF != 0 {
			w.mu.Lock()
			if wd, ok := w.pathToWd[dir]; ok {
				delete(w.wdToPath, wd)
				delete(w.pathToWd, dir)
			}
			w.mu.Unlock()
		}

		ev := Event{
			EventID:      w.nextID,
			Path:         path,
			ItemCreated:  raw.Mask&(unix.IN_CREATE|unix.IN_MOVED_TO) != 0,
			ItemRemoved:  raw.Mask&(unix.IN_DELETE|unix.IN_DELETE_SELF|unix.IN_MOVED_FROM) != 0,
			ItemModified: raw.Mask&(unix.IN_MODIFY|unix.IN_ATTRIB) != 0,
			ItemRenamed:  raw.Mask&(unix.IN_MOVED_FROM|unix.IN_MOVED_TO) != 0,
			ItemIsDir:    isDir,
			ItemIsFile:   !isDir,
		}
		w.nextID++

		select {
		case w.eventCh <- ev:
		case <-w.done:
			return
		}
	}
}

// Stop closes the inotify fd and waits for the reader goroutine to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	close(w.done)
	err := unix.Close(w.fd)
	w.wg.Wait()
	return err
}
