package aggregator

import (
	"github.com/lumipallolabs/indexd/internal/model"
	"github.com/lumipallolabs/indexd/internal/store"
)

// Propagate walks from the parent of path up to the volume root, adding
// the given deltas to each ancestor's DirStats and clamping at zero
// (spec.md §4.3 propagate_delta, properties P2/P4). Missing ancestor rows
// are created with a zero base. A path with no parent (the root itself)
// is never propagated from; full/subtree aggregation covers it instead.
//
// clamped is incremented once per ancestor where a delta would have
// driven a field negative — the "drift counter" SPEC_FULL.md §12 adds on
// top of the clamping spec.md §9 flags as masking real drift.
func Propagate(s *store.Store, path string, sizeDelta int64, fileDelta, dirDelta int32) (clamped int, err error) {
	err = s.WithTx(func() error {
		parent := model.ParentPath(path)
		for parent != "" {
			existing, gerr := s.GetDirStats(parent)
			if gerr != nil && !store.IsNotFound(gerr) {
				return gerr
			}
			if store.IsNotFound(gerr) {
				existing = model.DirStats{Path: parent}
			}

			newSize, sizeClamped := clampAdd(int64(existing.RecursiveSize), sizeDelta)
			newFiles, filesClamped := clampAdd(int64(existing.RecursiveFileCount), int64(fileDelta))
			newDirs, dirsClamped := clampAdd(int64(existing.RecursiveDirCount), int64(dirDelta))
			if sizeClamped || filesClamped || dirsClamped {
				clamped++
			}

			updated := model.DirStats{
				Path:               parent,
				RecursiveSize:      uint64(newSize),
				RecursiveFileCount: uint64(newFiles),
				RecursiveDirCount:  uint64(newDirs),
			}
			if err := s.UpsertDirStats([]model.DirStats{updated}); err != nil {
				return err
			}

			if parent == "/" {
				break
			}
			parent = model.ParentPath(parent)
		}
		return nil
	})
	return clamped, err
}

// clampAdd adds delta to base, clamping the result at zero and reporting
// whether clamping occurred.
func clampAdd(base, delta int64) (int64, bool) {
	result := base + delta
	if result < 0 {
		return 0, true
	}
	return result, false
}
