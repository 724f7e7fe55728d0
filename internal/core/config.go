package core

import "time"

// Config parameterizes one volume's IndexManager (spec.md §4.8
// `new(volume_id, volume_root, ...)`, expanded per SPEC_FULL.md §10 into
// an explicit struct the way diskdive's core.NewController takes a
// customPath and fills in internal defaults).
type Config struct {
	// VolumeID names the DB file: index-<VolumeID>.db under DataDir.
	VolumeID string
	// VolumeRoot is the filesystem root the Scanner walks and the
	// Watcher subscribes to.
	VolumeRoot string
	// DataDir is the application data directory housing the index DB
	// and settings.json.
	DataDir string

	// MaxConcurrentScans bounds how many micro-scans run at once
	// (spec.md §4.5 "typically 2-4"). Zero uses the MicroScanManager's
	// built-in default.
	MaxConcurrentScans int
	// JournalGapThreshold overrides the Reconciler's gap-detection
	// magic number (spec.md §4.7 step 4, §9 open question). Zero uses
	// the Reconciler's built-in default.
	JournalGapThreshold uint64
	// FlushInterval overrides how often live-mode notifications are
	// coalesced (spec.md §4.7 "300 ms"). Zero uses the Reconciler's
	// built-in default.
	FlushInterval time.Duration
	// ScanProgressInterval is how often start_scan's progress reporter
	// emits index-scan-progress (spec.md §4.8: "every 500 ms").
	ScanProgressInterval time.Duration
}

// DefaultConfig fills in every field spec.md leaves as "typically" or
// implementation-defined guidance, centralized the way SPEC_FULL.md §10
// calls for.
func DefaultConfig(volumeID, volumeRoot, dataDir string) Config {
	return Config{
		VolumeID:             volumeID,
		VolumeRoot:           volumeRoot,
		DataDir:              dataDir,
		MaxConcurrentScans:   3,
		JournalGapThreshold:  1_000_000,
		FlushInterval:        300 * time.Millisecond,
		ScanProgressInterval: 500 * time.Millisecond,
	}
}
