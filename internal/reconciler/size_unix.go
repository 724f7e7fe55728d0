//go:build unix

package reconciler

import (
	"io/fs"
	"syscall"
)

// physicalSize mirrors internal/scanner's block-count-based size
// computation (spec.md §3) for the entries the verifier builds directly
// from a live stat rather than a Scanner batch.
func physicalSize(info fs.FileInfo) int64 {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return info.Size()
	}
	return stat.Blocks * 512
}
