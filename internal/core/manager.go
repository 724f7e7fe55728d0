// Package core implements the IndexManager (spec.md §4.8), the
// top-level orchestrator that owns the Store, Writer, MicroScanManager,
// Watcher and Reconciler for one volume, decides resume-vs-scan on
// startup, and exposes the public query surface the file browser
// collaborator consults.
package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lumipallolabs/indexd/internal/microscan"
	"github.com/lumipallolabs/indexd/internal/model"
	"github.com/lumipallolabs/indexd/internal/reconciler"
	"github.com/lumipallolabs/indexd/internal/scanner"
	"github.com/lumipallolabs/indexd/internal/store"
	"github.com/lumipallolabs/indexd/internal/watcher"
	"github.com/lumipallolabs/indexd/internal/writer"
)

// errJournalGap signals ResumeOrScan's replay attempt found the
// journal no longer covers the persisted cursor (spec.md §4.7 step 4);
// the caller falls back to a full scan.
var errJournalGap = errors.New("core: journal gap, falling back to full scan")

// globalReadStore is the "process-wide global index store slot" spec.md
// §4.8 describes: write-once at IndexManager construction, read-many by
// the out-of-scope directory-listing pipeline, cleared on Shutdown.
var globalReadStore atomic.Pointer[store.Store]

// GlobalReadStore returns the currently published read-side Store handle
// for the volume's directory-listing enrichment, or nil if no
// IndexManager is active.
func GlobalReadStore() *store.Store {
	return globalReadStore.Load()
}

// IndexManager ties the indexing pipeline together for one volume
// (spec.md §4.8).
type IndexManager struct {
	cfg  Config
	log  *logrus.Entry
	sink EventSink

	store     *store.Store
	readStore *store.Store
	w         *writer.Writer
	wh        *writer.Handle
	ms        *microscan.Manager
	wt        *watcher.Watcher
	rec       *reconciler.Reconciler

	mu         sync.Mutex
	state      State
	scanHandle *scanner.Handle
	liveCancel context.CancelFunc
	shutdown   bool
}

// New opens cfg's Store, spawns the Writer, and wires the
// MicroScanManager, Watcher and Reconciler around it. It does not start
// scanning or watching: call ResumeOrScan or StartScan next.
func New(cfg Config, sink EventSink, log *logrus.Entry) (*IndexManager, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if sink == nil {
		sink = NopSink{}
	}
	log = log.WithField("volume_id", cfg.VolumeID)

	path := store.DBPath(cfg.DataDir, cfg.VolumeID)

	s, err := store.Open(path, log)
	if err != nil {
		return nil, fmt.Errorf("core: open store: %w", err)
	}

	readStore, err := store.Open(path, log)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("core: open read store: %w", err)
	}

	w := writer.New(s, log)
	wh := w.Handle()

	ms := microscan.New(wh, log)
	if cfg.MaxConcurrentScans > 0 {
		ms.SetMaxConcurrent(cfg.MaxConcurrentScans)
	}

	wt, err := watcher.New(log)
	if err != nil {
		wh.Shutdown()
		_ = readStore.Close()
		return nil, fmt.Errorf("core: construct watcher: %w", err)
	}

	notify := &notifierAdapter{sink: sink, volumeID: cfg.VolumeID}
	rec := reconciler.New(wh, ms, readStore, notify, log)
	rec.GapThreshold = cfg.JournalGapThreshold
	rec.NotifyFlushInterval = cfg.FlushInterval

	im := &IndexManager{
		cfg:       cfg,
		log:       log,
		sink:      sink,
		store:     s,
		readStore: readStore,
		w:         w,
		wh:        wh,
		ms:        ms,
		wt:        wt,
		rec:       rec,
		state:     StateNotInitialized,
	}
	globalReadStore.Store(readStore)
	return im, nil
}

func (im *IndexManager) setState(s State) {
	im.mu.Lock()
	im.state = s
	im.mu.Unlock()
}

// ResumeOrScan implements spec.md §4.7's cold-start decision: resume
// from the persisted journal cursor if the store already completed a
// scan, otherwise run a fresh full scan.
func (im *IndexManager) ResumeOrScan(ctx context.Context) error {
	scanCompletedAt, scErr := im.store.GetMeta("scan_completed_at")
	lastEventIDStr, evErr := im.store.GetMeta("last_event_id")

	if scErr == nil && evErr == nil && scanCompletedAt != "" {
		lastEventID, perr := strconv.ParseUint(lastEventIDStr, 10, 64)
		if perr == nil {
			err := im.resume(ctx, lastEventID)
			if err == nil {
				return nil
			}
			if !errors.Is(err, errJournalGap) {
				return err
			}
			im.log.Warn("resume aborted, falling back to full scan")
		}
	}
	return im.StartScan(ctx)
}

// resume drives the Reconciler's replay path (spec.md §4.7 "cold start
// with existing index").
func (im *IndexManager) resume(ctx context.Context, lastEventID uint64) error {
	im.setState(StateScanning)

	if err := im.wt.Start(im.cfg.VolumeRoot, lastEventID); err != nil {
		im.setState(StateNotInitialized)
		return fmt.Errorf("core: start watcher for resume: %w", err)
	}

	gap, err := im.rec.Resume(ctx, im.wt.Events(), lastEventID)
	if err != nil {
		im.setState(StateNotInitialized)
		return err
	}
	if gap {
		_ = im.wt.Stop()
		im.setState(StateNotInitialized)
		return errJournalGap
	}

	im.setState(StateQuiescent)
	return nil
}

// StartScan runs a fresh full scan concurrently with a freshly started
// Watcher, buffering live events until the scan completes, then replays
// them and switches to live mode (spec.md §4.7 "cold start with no
// existing index", §4.8 start_scan).
func (im *IndexManager) StartScan(ctx context.Context) error {
	im.mu.Lock()
	if im.state == StateScanning {
		im.mu.Unlock()
		return fmt.Errorf("core: scan already running")
	}
	im.state = StateScanning
	im.mu.Unlock()

	im.sink.ScanStarted(im.cfg.VolumeID)

	if err := im.wt.Start(im.cfg.VolumeRoot, 0); err != nil {
		im.setState(StateNotInitialized)
		return fmt.Errorf("core: start watcher for scan: %w", err)
	}
	events := im.wt.Events()

	// scanStartEventID is 0 here rather than a captured watermark:
	// unlike §4.7's description (which assumes the Watcher may already
	// be running), this IndexManager always starts the Watcher and the
	// Scanner together, so every buffered event necessarily occurred
	// during or after the scan and none needs dropping.
	stopBuffer := im.rec.BufferDuringScan(events)

	scanCtx, cancel := context.WithCancel(ctx)
	im.mu.Lock()
	im.liveCancel = cancel
	im.mu.Unlock()

	started := time.Now()
	handle := scanner.ScanVolume(scanCtx, im.cfg.VolumeRoot, im.wh, im.log)
	im.mu.Lock()
	im.scanHandle = handle
	im.mu.Unlock()

	go im.reportScanProgress(handle)
	go im.finishScan(handle, stopBuffer, events, started)

	return nil
}

func (im *IndexManager) reportScanProgress(handle *scanner.Handle) {
	interval := im.cfg.ScanProgressInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-handle.Done():
			return
		case <-ticker.C:
			im.sink.ScanProgress(im.cfg.VolumeID, handle.EntriesProcessed.Load(), handle.DirsProcessed.Load())
		}
	}
}

func (im *IndexManager) finishScan(handle *scanner.Handle, stopBuffer func() []watcher.Event, events <-chan watcher.Event, started time.Time) {
	<-handle.Done()
	buffered := stopBuffer()

	if err := handle.Err(); err != nil {
		im.log.WithError(err).Warn("scan failed")
		im.setState(StateNotInitialized)
		return
	}
	if handle.Cancelled() {
		im.setState(StateNotInitialized)
		return
	}

	lastSeen := im.rec.ReplayBuffered(buffered, 0)
	im.wh.UpdateLastEventID(lastSeen)

	durationMs := time.Since(started).Milliseconds()
	im.wh.UpdateMeta("volume_path", im.cfg.VolumeRoot)
	im.wh.UpdateMeta("scan_completed_at", strconv.FormatInt(time.Now().Unix(), 10))
	im.wh.UpdateMeta("scan_duration_ms", strconv.FormatInt(durationMs, 10))

	count, err := im.wh.GetEntryCount()
	if err != nil {
		im.log.WithError(err).Warn("get_entry_count failed after scan")
	} else {
		im.wh.UpdateMeta("total_entries", strconv.FormatInt(count, 10))
	}
	im.wh.Flush()

	im.ms.MarkFullScanComplete()
	im.setState(StateQuiescent)
	im.sink.ScanComplete(im.cfg.VolumeID, count, handle.DirsProcessed.Load(), durationMs)

	go im.rec.RunLive(context.Background(), events)
}

// StopScan cancels any in-flight scan, stops the Watcher, aborts the
// live Reconciler task, and cancels every micro-scan, without closing
// the Store (spec.md §4.8; SPEC_FULL.md §12 set_indexing_enabled(false)
// reuses exactly this half so start_drive_index can cheaply resume).
func (im *IndexManager) StopScan() {
	im.mu.Lock()
	handle := im.scanHandle
	cancel := im.liveCancel
	im.scanHandle = nil
	im.liveCancel = nil
	im.mu.Unlock()

	if handle != nil {
		handle.Cancel()
	}
	if cancel != nil {
		cancel()
	}
	_ = im.wt.Stop()
	im.ms.CancelAll()
}

// Shutdown implements spec.md §4.8 shutdown(): StopScan's half, plus
// telling the Writer to shut down (joining it) and clearing the global
// read handle.
func (im *IndexManager) Shutdown() error {
	im.mu.Lock()
	if im.shutdown {
		im.mu.Unlock()
		return nil
	}
	im.shutdown = true
	im.mu.Unlock()

	im.StopScan()
	im.wh.Shutdown()
	err := im.readStore.Close()
	globalReadStore.CompareAndSwap(im.readStore, nil)
	return err
}

// ClearIndex implements the supplemented clear_index operation
// (SPEC_FULL.md §12): stops any active scan, drops and recreates every
// table, cancels active and queued micro-scans, and returns the state to
// not-initialized. The MicroScanManager's completed set and full-scan
// flag, and the Reconciler's pending rescans, are kept as they were.
func (im *IndexManager) ClearIndex() error {
	im.StopScan()
	if err := im.wh.ClearAll(); err != nil {
		return fmt.Errorf("core: clear_index: %w", err)
	}
	im.ms.CancelAll()
	im.setState(StateNotInitialized)
	return nil
}

// SetIndexingEnabled implements the running-state half of
// set_indexing_enabled(bool) (SPEC_FULL.md §12): disabling it stops the
// scan/watch tasks without closing the Store, so StartScan/ResumeOrScan
// can cheaply resume later. Persisting the setting itself is the
// caller's responsibility (internal/config.Manager); IndexManager
// intentionally doesn't depend on that package.
func (im *IndexManager) SetIndexingEnabled(enabled bool) {
	if !enabled {
		im.StopScan()
	}
}

// GetStatus implements spec.md §4.8/§6 get_index_status, including the
// supplemented db_file_size field (SPEC_FULL.md §12).
func (im *IndexManager) GetStatus() (Status, error) {
	st, err := im.store.GetIndexStatus()
	if err != nil {
		return Status{}, err
	}
	result := statusFromStore(im.cfg.VolumeID, st)

	im.mu.Lock()
	result.State = im.state
	if im.scanHandle != nil {
		result.EntriesScanned = im.scanHandle.EntriesProcessed.Load()
		result.DirsFound = im.scanHandle.DirsProcessed.Load()
	}
	im.mu.Unlock()
	return result, nil
}

// GetDirStats implements spec.md §6 get_dir_stats(path).
func (im *IndexManager) GetDirStats(path string) (*model.DirStats, error) {
	d, err := im.readStore.GetDirStats(path)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

// GetDirStatsBatch implements spec.md §6 get_dir_stats_batch(paths).
func (im *IndexManager) GetDirStatsBatch(paths []string) ([]*model.DirStats, error) {
	return im.readStore.GetDirStatsBatch(paths)
}

// PrioritizeDir implements spec.md §6 prioritize_dir(path, priority).
func (im *IndexManager) PrioritizeDir(path string, priority microscan.Priority) {
	im.ms.RequestScan(path, priority)
}

// CancelNavPriority implements spec.md §6 cancel_nav_priority(path).
func (im *IndexManager) CancelNavPriority(path string) {
	im.ms.CancelCurrentDirScans(path)
}
