// Package aggregator implements the three pure bottom-up aggregate
// operations described in spec.md §4.3. Every function here is invoked
// only by the Writer, against the Store it already owns; nothing in this
// package talks to a channel or a goroutine.
package aggregator

import (
	"sort"

	"github.com/lumipallolabs/indexd/internal/model"
	"github.com/lumipallolabs/indexd/internal/store"
)

// dirStatsWriteChunk is the batch size compute_all_aggregates flushes at,
// per spec.md §4.3.
const dirStatsWriteChunk = 1000

// ComputeAll recomputes DirStats for every directory in the store,
// deepest-first, then separately computes the synthetic root "/" by
// summing every top-level entry (spec.md §4.3 compute_all_aggregates).
// It returns the number of directories whose stats were written.
func ComputeAll(s *store.Store) (int, error) {
	paths, err := s.GetAllDirectoryPaths()
	if err != nil {
		return 0, err
	}

	sort.Slice(paths, func(i, j int) bool {
		return model.Depth(paths[i]) > model.Depth(paths[j])
	})

	computed := make(map[string]model.DirStats, len(paths))
	batch := make([]model.DirStats, 0, dirStatsWriteChunk)
	count := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.UpsertDirStats(batch); err != nil {
			return err
		}
		count += len(batch)
		batch = batch[:0]
		return nil
	}

	// childrenByParent groups directory paths by parent so each
	// directory's own recursive stats can be composed in O(#children)
	// from its already-computed child directories, per spec.md §4.3.
	childrenByParent := make(map[string][]string, len(paths))
	for _, p := range paths {
		parent := model.ParentPath(p)
		childrenByParent[parent] = append(childrenByParent[parent], p)
	}

	for _, path := range paths {
		size, files, dirs, err := s.GetChildrenStats(path)
		if err != nil {
			return 0, err
		}
		for _, child := range childrenByParent[path] {
			childStats := computed[child]
			size += childStats.RecursiveSize
			files += childStats.RecursiveFileCount
			dirs += childStats.RecursiveDirCount
		}
		d := model.DirStats{Path: path, RecursiveSize: size, RecursiveFileCount: files, RecursiveDirCount: dirs}
		computed[path] = d
		batch = append(batch, d)
		if len(batch) >= dirStatsWriteChunk {
			if err := flush(); err != nil {
				return 0, err
			}
		}
	}
	if err := flush(); err != nil {
		return 0, err
	}

	if err := computeRoot(s, childrenByParent, computed); err != nil {
		return 0, err
	}
	count++

	return count, nil
}

// computeRoot sums the stats of every top-level entry to produce the
// synthetic "/" row, which is never stored as an Entry but must be
// queryable (spec.md §4.3).
func computeRoot(s *store.Store, childrenByParent map[string][]string, computed map[string]model.DirStats) error {
	size, files, dirs, err := s.GetChildrenStats("/")
	if err != nil {
		return err
	}
	for _, child := range childrenByParent["/"] {
		childStats := computed[child]
		size += childStats.RecursiveSize
		files += childStats.RecursiveFileCount
		dirs += childStats.RecursiveDirCount
	}
	return s.UpsertDirStats([]model.DirStats{{
		Path: "/", RecursiveSize: size, RecursiveFileCount: files, RecursiveDirCount: dirs,
	}})
}

// ComputeSubtree runs the same algorithm restricted to root and its
// descendants; it never touches "/" (spec.md §4.3
// compute_subtree_aggregates).
func ComputeSubtree(s *store.Store, root string) (int, error) {
	root = model.Normalize(root)
	paths, err := s.GetDirectoryPathsUnder(root)
	if err != nil {
		return 0, err
	}

	sort.Slice(paths, func(i, j int) bool {
		return model.Depth(paths[i]) > model.Depth(paths[j])
	})

	inScope := make(map[string]bool, len(paths))
	for _, p := range paths {
		inScope[p] = true
	}

	childrenByParent := make(map[string][]string, len(paths))
	for _, p := range paths {
		parent := model.ParentPath(p)
		if inScope[parent] {
			childrenByParent[parent] = append(childrenByParent[parent], p)
		}
	}

	computed := make(map[string]model.DirStats, len(paths))
	batch := make([]model.DirStats, 0, dirStatsWriteChunk)
	count := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.UpsertDirStats(batch); err != nil {
			return err
		}
		count += len(batch)
		batch = batch[:0]
		return nil
	}

	for _, path := range paths {
		size, files, dirs, err := s.GetChildrenStats(path)
		if err != nil {
			return 0, err
		}
		for _, child := range childrenByParent[path] {
			childStats := computed[child]
			size += childStats.RecursiveSize
			files += childStats.RecursiveFileCount
			dirs += childStats.RecursiveDirCount
		}
		d := model.DirStats{Path: path, RecursiveSize: size, RecursiveFileCount: files, RecursiveDirCount: dirs}
		computed[path] = d
		batch = append(batch, d)
		if len(batch) >= dirStatsWriteChunk {
			if err := flush(); err != nil {
				return 0, err
			}
		}
	}
	if err := flush(); err != nil {
		return 0, err
	}
	return count, nil
}
