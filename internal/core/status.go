package core

import "github.com/lumipallolabs/indexd/internal/store"

// State is the coarse lifecycle get_index_status reports to the UI
// (spec.md §7 "the UI distinguishes three states via get_status: not
// initialized, scanning (with progress), initialized-and-quiescent").
type State int

const (
	// StateNotInitialized means no completed scan exists yet and none
	// is running.
	StateNotInitialized State = iota
	// StateScanning means a full scan or cold-start replay is in
	// flight.
	StateScanning
	// StateQuiescent means the index is populated and up to date,
	// consuming live events.
	StateQuiescent
)

func (s State) String() string {
	switch s {
	case StateNotInitialized:
		return "not_initialized"
	case StateScanning:
		return "scanning"
	case StateQuiescent:
		return "quiescent"
	default:
		return "unknown"
	}
}

// Status is the IndexStatusResponse of spec.md §6 get_index_status,
// carrying db_file_size per the supplemented feature in SPEC_FULL.md
// §12.
type Status struct {
	State               State
	VolumeID             string
	VolumePath           string
	ScanCompletedAt      string
	ScanDurationMs       string
	TotalEntries         string
	LastEventID          string
	DBFileSizeBytes      int64
	ClampedPropagations  string

	// EntriesScanned/DirsFound are only meaningful while State ==
	// StateScanning; they mirror the Scanner's live counters.
	EntriesScanned int64
	DirsFound      int64
}

func statusFromStore(volumeID string, st store.IndexStatus) Status {
	return Status{
		VolumeID:            volumeID,
		VolumePath:          st.VolumePath,
		ScanCompletedAt:     st.ScanCompletedAt,
		ScanDurationMs:      st.ScanDurationMs,
		TotalEntries:        st.TotalEntries,
		LastEventID:         st.LastEventID,
		DBFileSizeBytes:     st.DBFileSizeBytes,
		ClampedPropagations: st.ClampedPropagations,
	}
}
