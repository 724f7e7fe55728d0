//go:build unix

package scanner

import (
	"io/fs"
	"syscall"
)

// physicalSize returns the file's actual disk allocation (512-byte block
// count * 512) when the platform exposes it, falling back to the logical
// size otherwise -- physical size is preferred per spec.md §3 so sparse
// files are sized accurately.
func physicalSize(info fs.FileInfo) int64 {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return info.Size()
	}
	return stat.Blocks * 512
}
