// Package writer implements the single dedicated goroutine that owns the
// Store's write handle (spec.md §4.2). Every mutation in the system --
// scan batches, live filesystem events, aggregate writes -- flows through
// its message channel; nothing else ever calls a Store write primitive
// directly.
package writer

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lumipallolabs/indexd/internal/aggregator"
	"github.com/lumipallolabs/indexd/internal/model"
	"github.com/lumipallolabs/indexd/internal/store"
)

// channelCapacity approximates the "unbounded in-process channel" spec.md
// §4.2 calls for; Go channels are necessarily bounded, so a generous
// buffer is used instead of block-on-send backpressure, and the Writer is
// never the slow side of any producer in practice (the Scanner and
// Reconciler both throttle on their own batching).
const channelCapacity = 1 << 16

// diagnosticInterval is how often the Writer logs a per-class message
// count summary while busy (spec.md §4.2 diagnostic pacing).
const diagnosticInterval = 5 * time.Second

// Handle is the send-only view of the Writer every other component
// holds; it cannot read the Store directly (spec.md §9 ownership).
type Handle struct {
	priorityCh chan message
	bulkCh     chan message
	closed     *atomic.Bool
	log        *logrus.Entry
}

// Writer owns the sole write connection to a Store and processes its
// message queue on a dedicated goroutine.
type Writer struct {
	store *store.Store
	log   *logrus.Entry

	priorityCh chan message
	bulkCh     chan message
	closed     atomic.Bool

	clampedTotal int64

	counts   map[kind]int
	lastDiag time.Time
}

// New constructs a Writer over s and starts its processing goroutine.
func New(s *store.Store, log *logrus.Entry) *Writer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	w := &Writer{
		store:      s,
		log:        log.WithField("component", "writer"),
		priorityCh: make(chan message, channelCapacity),
		bulkCh:     make(chan message, channelCapacity),
		counts:     make(map[kind]int),
		lastDiag:   time.Now(),
	}
	if v, err := s.GetMeta("clamped_propagations"); err == nil {
		if n, perr := strconv.ParseInt(v, 10, 64); perr == nil {
			w.clampedTotal = n
		}
	}
	go w.run()
	return w
}

// Handle returns the send-only handle other components hold.
func (w *Writer) Handle() *Handle {
	return &Handle{priorityCh: w.priorityCh, bulkCh: w.bulkCh, closed: &w.closed, log: w.log}
}

// run is the Writer's processing loop: drain the priority class
// non-blocking, then block on either class, then repeat (spec.md §4.2).
func (w *Writer) run() {
	for {
		for {
			select {
			case m := <-w.priorityCh:
				if w.handle(m) {
					return
				}
				continue
			default:
			}
			break
		}

		select {
		case m := <-w.priorityCh:
			if w.handle(m) {
				return
			}
		case m := <-w.bulkCh:
			if w.handle(m) {
				return
			}
		}
	}
}

// handle processes one message and returns true if the Writer should
// stop (Shutdown was processed).
func (w *Writer) handle(m message) bool {
	w.counts[m.kind]++
	defer w.maybeLogDiagnostics()

	switch m.kind {
	case kindInsertEntries:
		if err := w.store.InsertEntriesBatch(m.entries); err != nil {
			w.log.WithError(err).Warn("insert_entries failed")
		}

	case kindUpsertEntry:
		if err := w.store.UpsertEntry(m.entry); err != nil {
			w.log.WithError(err).Warn("upsert_entry failed")
		}

	case kindDeleteEntry:
		w.deleteEntry(m.path)

	case kindDeleteSubtree:
		w.deleteSubtree(m.prefix)

	case kindUpdateDirStats:
		if err := w.store.UpsertDirStats(m.dirStats); err != nil {
			w.log.WithError(err).Warn("update_dir_stats failed")
		}

	case kindComputeAllAggregates:
		if n, err := aggregator.ComputeAll(w.store); err != nil {
			w.log.WithError(err).Warn("compute_all_aggregates failed")
		} else {
			w.log.WithField("dirs", n).Debug("compute_all_aggregates complete")
		}

	case kindComputeSubtreeAggregates:
		if n, err := aggregator.ComputeSubtree(w.store, m.path); err != nil {
			w.log.WithError(err).Warn("compute_subtree_aggregates failed")
		} else {
			w.log.WithFields(logrus.Fields{"root": m.path, "dirs": n}).Debug("compute_subtree_aggregates complete")
		}

	case kindPropagateDelta:
		w.propagate(m.path, m.sizeDelta, m.fileDelta, m.dirDelta)

	case kindUpdateLastEventID:
		if err := w.store.UpdateMeta("last_event_id", strconv.FormatUint(m.eventID, 10)); err != nil {
			w.log.WithError(err).Warn("update_last_event_id failed")
		}

	case kindUpdateMeta:
		if err := w.store.UpdateMeta(m.metaKey, m.metaVal); err != nil {
			w.log.WithError(err).Warn("update_meta failed")
		}

	case kindGetEntryCount:
		count, err := w.store.GetEntryCount()
		m.reply <- reply{count: count, err: err}

	case kindFlush:
		m.reply <- reply{}

	case kindBeginTransaction:
		if err := w.store.BeginExplicit(); err != nil {
			w.log.WithError(err).Warn("begin_transaction failed")
		}

	case kindCommitTransaction:
		if err := w.store.CommitExplicit(); err != nil {
			w.log.WithError(err).Warn("commit_transaction failed")
		}

	case kindClearAll:
		err := w.store.ClearAll()
		if err != nil {
			w.log.WithError(err).Warn("clear_all failed")
		}
		w.clampedTotal = 0
		m.reply <- reply{err: err}

	case kindShutdown:
		_ = w.store.Close()
		m.reply <- reply{}
		return true
	}
	return false
}

// deleteEntry implements auto-propagation on delete (spec.md §4.2): read
// the old entry first so the negative delta reflects its last-known
// size, delete, then propagate.
func (w *Writer) deleteEntry(path string) {
	old, getErr := w.store.GetEntry(path)
	if getErr != nil && !store.IsNotFound(getErr) {
		w.log.WithError(getErr).Warn("delete_entry: lookup failed")
	}
	if err := w.store.DeleteEntry(path); err != nil {
		w.log.WithError(err).Warn("delete_entry failed")
		return
	}
	if getErr != nil {
		return
	}
	if old.IsDir {
		w.propagate(path, 0, 0, -1)
	} else {
		size := int64(0)
		if old.Size != nil {
			size = *old.Size
		}
		w.propagate(path, -size, -1, 0)
	}
}

// deleteSubtree mirrors deleteEntry for a whole subtree: compute its
// totals before removal, delete, then propagate the negated totals
// (spec.md §4.2).
func (w *Writer) deleteSubtree(prefix string) {
	size, files, dirs, totalsErr := w.store.GetSubtreeTotals(prefix)
	if totalsErr != nil {
		w.log.WithError(totalsErr).Warn("delete_subtree: totals failed")
	}
	if err := w.store.DeleteSubtree(prefix); err != nil {
		w.log.WithError(err).Warn("delete_subtree failed")
		return
	}
	if totalsErr != nil {
		return
	}
	w.propagate(prefix, -int64(size), -int32(files), -int32(dirs))
}

func (w *Writer) propagate(path string, sizeDelta int64, fileDelta, dirDelta int32) {
	clamped, err := aggregator.Propagate(w.store, path, sizeDelta, fileDelta, dirDelta)
	if err != nil {
		w.log.WithError(err).Warn("propagate_delta failed")
		return
	}
	if clamped == 0 {
		return
	}
	w.clampedTotal += int64(clamped)
	w.log.WithFields(logrus.Fields{"path": path, "clamped": clamped, "clamped_total": w.clampedTotal}).
		Warn("propagate_delta clamped at zero")
	if err := w.store.UpdateMeta("clamped_propagations", strconv.FormatInt(w.clampedTotal, 10)); err != nil {
		w.log.WithError(err).Warn("clamped_propagations meta write failed")
	}
}

func (w *Writer) maybeLogDiagnostics() {
	if time.Since(w.lastDiag) < diagnosticInterval {
		return
	}
	fields := logrus.Fields{}
	total := 0
	for k, n := range w.counts {
		total += n
		fields[fmt.Sprintf("kind_%d", k)] = n
	}
	if total > 0 {
		w.log.WithFields(fields).Info("writer throughput")
	}
	w.counts = make(map[kind]int)
	w.lastDiag = time.Now()
}

// send routes m to the channel matching its priority class, dropping it
// with a warning if the Writer has already processed Shutdown (spec.md
// §7 WriterShutdown policy).
func (h *Handle) send(m message) {
	if h.closed.Load() {
		h.log.Warn("message sent after shutdown, dropping")
		return
	}
	if m.isPriority() {
		h.priorityCh <- m
	} else {
		h.bulkCh <- m
	}
}

// InsertEntries posts the product of one Scanner batch.
func (h *Handle) InsertEntries(entries []model.Entry) {
	h.send(message{kind: kindInsertEntries, entries: entries})
}

// UpsertEntry posts a single live-event entry write.
func (h *Handle) UpsertEntry(e model.Entry) {
	h.send(message{kind: kindUpsertEntry, entry: e})
}

// DeleteEntry posts a single-row delete; the Writer auto-propagates.
func (h *Handle) DeleteEntry(path string) {
	h.send(message{kind: kindDeleteEntry, path: path})
}

// DeleteSubtree posts a subtree delete; the Writer auto-propagates.
func (h *Handle) DeleteSubtree(prefix string) {
	h.send(message{kind: kindDeleteSubtree, prefix: prefix})
}

// UpdateDirStats posts a priority aggregate write.
func (h *Handle) UpdateDirStats(stats []model.DirStats) {
	h.send(message{kind: kindUpdateDirStats, dirStats: stats})
}

// ComputeAllAggregates posts a full recomputation request.
func (h *Handle) ComputeAllAggregates() {
	h.send(message{kind: kindComputeAllAggregates})
}

// ComputeSubtreeAggregates posts a subtree recomputation request.
func (h *Handle) ComputeSubtreeAggregates(root string) {
	h.send(message{kind: kindComputeSubtreeAggregates, path: root})
}

// PropagateDelta posts an ancestor-walk delta application.
func (h *Handle) PropagateDelta(path string, sizeDelta int64, fileDelta, dirDelta int32) {
	h.send(message{kind: kindPropagateDelta, path: path, sizeDelta: sizeDelta, fileDelta: fileDelta, dirDelta: dirDelta})
}

// UpdateLastEventID posts the watcher's replay cursor.
func (h *Handle) UpdateLastEventID(id uint64) {
	h.send(message{kind: kindUpdateLastEventID, eventID: id})
}

// UpdateMeta posts a meta key/value write.
func (h *Handle) UpdateMeta(key, value string) {
	h.send(message{kind: kindUpdateMeta, metaKey: key, metaVal: value})
}

// GetEntryCount synchronously returns the current row count of entries.
func (h *Handle) GetEntryCount() (int64, error) {
	r := make(chan reply, 1)
	h.send(message{kind: kindGetEntryCount, reply: r})
	result := <-r
	return result.count, result.err
}

// Flush blocks until every message sent before it has committed
// (spec.md §4.2, §5 ordering guarantees) -- a one-shot rendezvous, never
// implemented by polling.
func (h *Handle) Flush() {
	r := make(chan reply, 1)
	h.send(message{kind: kindFlush, reply: r})
	<-r
}

// BeginTransaction opens the Writer's explicit transaction bracket, used
// by the Reconciler to batch replay writes under one disk sync.
func (h *Handle) BeginTransaction() {
	h.send(message{kind: kindBeginTransaction})
}

// CommitTransaction closes the bracket opened by BeginTransaction.
func (h *Handle) CommitTransaction() {
	h.send(message{kind: kindCommitTransaction})
}

// ClearAll posts Store.ClearAll and blocks until it completes, for
// clear_index (spec.md §6, SPEC_FULL.md §12): drops and recreates every
// table as though the volume had never been indexed.
func (h *Handle) ClearAll() error {
	r := make(chan reply, 1)
	h.send(message{kind: kindClearAll, reply: r})
	result := <-r
	return result.err
}

// Shutdown drains the queue, closes the Store connection, and blocks
// until the Writer goroutine has exited.
func (h *Handle) Shutdown() {
	if h.closed.Swap(true) {
		return
	}
	r := make(chan reply, 1)
	h.bulkCh <- message{kind: kindShutdown, reply: r}
	<-r
}
