//go:build darwin

package model

import (
	"os"
	"path/filepath"
	"syscall"
)

// getDiskSpace reports total/available bytes for a mount via statfs.
func getDiskSpace(path string) (total, free int64) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, 0
	}
	total = int64(stat.Blocks) * int64(stat.Bsize)
	free = int64(stat.Bavail) * int64(stat.Bsize)
	return total, free
}

// listPlatformVolumes enumerates the boot volume plus any mounted
// volumes under /Volumes, filtering out network and pseudo filesystems
// so only real, locally-indexable volumes are offered (spec.md §6
// exclusion list mentions removable-media mount parents generally; here
// we go further and drop non-physical mounts entirely since they are
// never valid indexing roots).
func listPlatformVolumes() ([]Volume, error) {
	var volumes []Volume

	total, free := getDiskSpace("/")
	volumes = append(volumes, Volume{ID: "root", Path: "/", Label: "Macintosh HD", TotalBytes: total, FreeBytes: free})

	entries, err := os.ReadDir("/Volumes")
	if err != nil {
		return volumes, nil
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		volumePath := filepath.Join("/Volumes", entry.Name())

		var stat syscall.Statfs_t
		if err := syscall.Statfs(volumePath, &stat); err != nil {
			continue
		}
		if isFilteredFilesystem(int8ArrayToString(stat.Fstypename[:])) {
			continue
		}

		t, f := getDiskSpace(volumePath)
		if t == 0 {
			continue
		}
		volumes = append(volumes, Volume{ID: entry.Name(), Path: volumePath, Label: entry.Name(), TotalBytes: t, FreeBytes: f})
	}

	return volumes, nil
}

func int8ArrayToString(arr []int8) string {
	b := make([]byte, 0, len(arr))
	for _, v := range arr {
		if v == 0 {
			break
		}
		b = append(b, byte(v))
	}
	return string(b)
}

func isFilteredFilesystem(fsType string) bool {
	for _, nfs := range []string{"smbfs", "nfs", "afpfs", "webdav", "cifs"} {
		if fsType == nfs {
			return true
		}
	}
	for _, pfs := range []string{"devfs", "autofs", "mtmfs", "nullfs"} {
		if fsType == pfs {
			return true
		}
	}
	return false
}
