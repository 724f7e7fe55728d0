package core

// EventSink receives the UI-facing payloads spec.md §6 names. The
// surrounding file browser (out of scope here) implements this; a CLI
// build can implement it with log lines or a progress bar instead.
type EventSink interface {
	// ScanStarted corresponds to index-scan-started {volumeId}.
	ScanStarted(volumeID string)
	// ScanProgress corresponds to index-scan-progress
	// {volumeId, entriesScanned, dirsFound}, emitted every
	// Config.ScanProgressInterval during a scan.
	ScanProgress(volumeID string, entriesScanned, dirsFound int64)
	// ScanComplete corresponds to index-scan-complete
	// {volumeId, totalEntries, totalDirs, durationMs}.
	ScanComplete(volumeID string, totalEntries, totalDirs, durationMs int64)
	// ReplayProgress corresponds to index-replay-progress
	// {volumeId, eventsProcessed, estimatedTotal?}.
	ReplayProgress(volumeID string, eventsProcessed, estimatedTotal uint64)
	// DirUpdated corresponds to index-dir-updated {paths:[...]}.
	DirUpdated(paths []string)
}

// NopSink discards every event; useful for tests and callers that only
// care about the query surface.
type NopSink struct{}

func (NopSink) ScanStarted(string)                      {}
func (NopSink) ScanProgress(string, int64, int64)       {}
func (NopSink) ScanComplete(string, int64, int64, int64) {}
func (NopSink) ReplayProgress(string, uint64, uint64)   {}
func (NopSink) DirUpdated([]string)                     {}

// notifierAdapter implements reconciler.Notifier by tagging every event
// with the owning IndexManager's volume ID before forwarding to the
// caller's EventSink (reconciler.Notifier itself is volume-agnostic, see
// internal/reconciler).
type notifierAdapter struct {
	sink     EventSink
	volumeID string
}

func (n *notifierAdapter) DirUpdated(paths []string) {
	n.sink.DirUpdated(paths)
}

func (n *notifierAdapter) ReplayProgress(processed, estimatedTotal uint64) {
	n.sink.ReplayProgress(n.volumeID, processed, estimatedTotal)
}
