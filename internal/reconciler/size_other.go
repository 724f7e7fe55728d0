//go:build !unix

package reconciler

import "io/fs"

func physicalSize(info fs.FileInfo) int64 {
	return info.Size()
}
