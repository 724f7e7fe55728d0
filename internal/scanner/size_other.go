//go:build !unix

package scanner

import "io/fs"

// physicalSize falls back to the logical size on platforms without a
// block-count stat field; the indexing core targets POSIX volumes
// (spec.md §1), so this path is only reachable in cross-compiled builds.
func physicalSize(info fs.FileInfo) int64 {
	return info.Size()
}
