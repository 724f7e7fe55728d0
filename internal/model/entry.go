package model

// Entry is one row of the entries table: a file, directory, or symlink on
// the indexed volume. Path is the primary key; ParentPath must resolve to
// another Entry with IsDir true, except for top-level entries whose
// parent is the synthetic root "/" (spec.md §3).
type Entry struct {
	Path       string
	ParentPath string
	Name       string
	IsDir      bool
	IsSymlink  bool
	// Size is nil for directories and symlinks; for regular files it
	// holds the physical allocation (512-byte block count * 512) when
	// available, falling back to the logical size.
	Size       *int64
	ModifiedAt *int64
}

// DirStats is the recursive aggregate for a directory, or for the
// synthetic volume root "/" (spec.md §3).
type DirStats struct {
	Path               string
	RecursiveSize      uint64
	RecursiveFileCount uint64
	RecursiveDirCount  uint64
}

// IsZero reports whether every aggregate field is zero, the state a
// directory with no children must have (spec.md §3 invariant d).
func (d DirStats) IsZero() bool {
	return d.RecursiveSize == 0 && d.RecursiveFileCount == 0 && d.RecursiveDirCount == 0
}
