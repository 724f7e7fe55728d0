package writer

import "github.com/lumipallolabs/indexd/internal/model"

// kind tags a message with its variant, the explicit-tagged-variant shape
// spec.md §9 asks for in place of a polymorphic callable queue.
type kind int

const (
	kindInsertEntries kind = iota
	kindUpsertEntry
	kindDeleteEntry
	kindDeleteSubtree
	kindUpdateDirStats
	kindComputeAllAggregates
	kindComputeSubtreeAggregates
	kindPropagateDelta
	kindUpdateLastEventID
	kindUpdateMeta
	kindGetEntryCount
	kindFlush
	kindBeginTransaction
	kindCommitTransaction
	kindClearAll
	kindShutdown
)

// message is the single envelope type carried on both the Writer's
// priority and bulk channels; only the fields relevant to kind are set.
type message struct {
	kind kind

	entries  []model.Entry
	entry    model.Entry
	path     string
	prefix   string
	dirStats []model.DirStats

	sizeDelta int64
	fileDelta int32
	dirDelta  int32

	eventID uint64
	metaKey string
	metaVal string

	reply chan reply
}

// reply carries the result back across a synchronous rendezvous
// (GetEntryCount, Flush, Shutdown).
type reply struct {
	count int64
	err   error
}

// isPriority reports whether m belongs to the latency-sensitive class the
// Writer drains ahead of everything else (spec.md §4.2 processing
// discipline).
func (m message) isPriority() bool {
	return m.kind == kindUpdateDirStats
}
