// Package scanner implements the parallel directory walker that produces
// entry batches for the Writer (spec.md §4.4). Two entry points share one
// walk implementation: ScanVolume runs a full-volume walk on a dedicated
// goroutine, ScanSubtree runs synchronously in the caller's goroutine for
// a targeted rescan.
package scanner

import (
	"context"
	"io/fs"
	"runtime"
	"sync/atomic"

	"github.com/charlievieth/fastwalk"
	"github.com/sirupsen/logrus"

	"github.com/lumipallolabs/indexd/internal/model"
	"github.com/lumipallolabs/indexd/internal/writer"
)

// batchSize is the send-buffer threshold spec.md §4.4 calls for (~2,000
// entries per InsertEntries message).
const batchSize = 2000

// Handle tracks an in-flight or completed scan: shared atomic counters for
// progress reporting and a cooperative cancellation flag (spec.md §4.4).
type Handle struct {
	EntriesProcessed atomic.Int64
	DirsProcessed    atomic.Int64
	cancelled        atomic.Bool
	done             chan struct{}
	err              atomic.Value
}

// Cancel requests cooperative cancellation; already-sent batches remain
// in the Store (spec.md §5 cancellation semantics).
func (h *Handle) Cancel() { h.cancelled.Store(true) }

// Cancelled reports whether Cancel was called.
func (h *Handle) Cancelled() bool { return h.cancelled.Load() }

// Done returns a channel closed when the scan finishes (successfully,
// with an error, or cancelled).
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the scan's terminal error, if any, valid after Done closes.
func (h *Handle) Err() error {
	if e, ok := h.err.Load().(error); ok {
		return e
	}
	return nil
}

// ScanVolume spawns a full-volume scan on its own goroutine. On
// completion (not cancelled), it posts ComputeAllAggregates.
func ScanVolume(ctx context.Context, root string, w *writer.Handle, log *logrus.Entry) *Handle {
	h := &Handle{done: make(chan struct{})}
	go func() {
		defer close(h.done)
		if err := walk(ctx, root, w, h, log); err != nil {
			h.err.Store(err)
			return
		}
		if !h.Cancelled() {
			w.ComputeAllAggregates()
		}
	}()
	return h
}

// ScanSubtree runs a targeted rescan synchronously in the caller's
// goroutine, sharing the same batching and exclusion logic. On
// completion it posts ComputeSubtreeAggregates{root}.
func ScanSubtree(ctx context.Context, root string, w *writer.Handle, log *logrus.Entry) (*Handle, error) {
	h := &Handle{done: make(chan struct{})}
	defer close(h.done)
	if err := walk(ctx, root, w, h, log); err != nil {
		h.err.Store(err)
		return h, err
	}
	if !h.Cancelled() {
		w.ComputeSubtreeAggregates(model.Normalize(root))
	}
	return h, nil
}

// walk runs the shared fastwalk-based traversal, batching discovered
// entries and posting InsertEntries messages. The entry corresponding to
// root itself is never emitted (spec.md §4.4 root depth); exclusion is
// applied at enumeration time so excluded subtrees are never descended
// (spec.md §4.4).
func walk(ctx context.Context, root string, w *writer.Handle, h *Handle, log *logrus.Entry) error {
	root = model.NormalizeFirmlink(root)
	batch := make([]model.Entry, 0, batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.InsertEntries(append([]model.Entry(nil), batch...))
		batch = batch[:0]
	}

	conf := &fastwalk.Config{
		Follow:     false,
		NumWorkers: runtime.GOMAXPROCS(0),
	}

	walkErr := fastwalk.Walk(conf, root, func(path string, d fs.DirEntry, err error) error {
		if h.Cancelled() {
			return fastwalk.SkipDir
		}
		select {
		case <-ctx.Done():
			h.Cancel()
			return fastwalk.SkipDir
		default:
		}
		if err != nil {
			log.WithError(err).WithField("path", path).Debug("scan: readdir error, skipping")
			return nil
		}

		normalized := model.NormalizeFirmlink(path)
		if normalized == root {
			return nil
		}
		if model.ExcludedPath(normalized) {
			if d.IsDir() {
				return fastwalk.SkipDir
			}
			return nil
		}

		entry, ok := buildEntry(normalized, d, log)
		if !ok {
			return nil
		}
		if entry.IsDir {
			h.DirsProcessed.Add(1)
		}
		h.EntriesProcessed.Add(1)

		batch = append(batch, entry)
		if len(batch) >= batchSize {
			flush()
		}
		return nil
	})

	flush()
	return walkErr
}

// buildEntry stats path (without following symlinks) and converts it to
// a model.Entry. Per-entry read errors are logged and skipped; the scan
// continues (spec.md §4.4 failure semantics).
func buildEntry(path string, d fs.DirEntry, log *logrus.Entry) (model.Entry, bool) {
	isSymlink := d.Type()&fs.ModeSymlink != 0
	isDir := d.IsDir()

	e := model.Entry{
		Path:       path,
		ParentPath: model.ParentPath(path),
		Name:       d.Name(),
		IsDir:      isDir,
		IsSymlink:  isSymlink,
	}
	if e.ParentPath == "" {
		e.ParentPath = "/"
	}

	if isDir || isSymlink {
		return e, true
	}

	info, err := d.Info()
	if err != nil {
		log.WithError(err).WithField("path", path).Debug("scan: stat failed, skipping")
		return model.Entry{}, false
	}
	size := physicalSize(info)
	e.Size = &size
	modAt := info.ModTime().Unix()
	e.ModifiedAt = &modAt
	return e, true
}
