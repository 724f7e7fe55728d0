//go:build !windows && !darwin

package model

import (
	"bufio"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// ignoredFsTypes lists pseudo and network filesystems that are never
// valid indexing roots, read from /proc/mounts' fs_vfstype field.
var ignoredFsTypes = map[string]bool{
	"proc": true, "sysfs": true, "devtmpfs": true, "devpts": true,
	"tmpfs": true, "cgroup": true, "cgroup2": true, "overlay": true,
	"squashfs": true, "nfs": true, "nfs4": true, "cifs": true,
	"autofs": true, "mqueue": true, "debugfs": true, "tracefs": true,
	"securityfs": true, "pstore": true, "bpf": true, "configfs": true,
}

func getDiskSpace(path string) (total, free int64) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0
	}
	total = int64(stat.Blocks) * int64(stat.Bsize)
	free = int64(stat.Bavail) * int64(stat.Bsize)
	return total, free
}

// listPlatformVolumes parses /proc/mounts for real, locally-mounted
// filesystems. Falls back to "/" alone if /proc is unavailable (e.g. a
// minimal container).
func listPlatformVolumes() ([]Volume, error) {
	f, err := os.Open("/proc/mounts")
	if err != nil {
		total, free := getDiskSpace("/")
		return []Volume{{ID: "root", Path: "/", Label: "/", TotalBytes: total, FreeBytes: free}}, nil
	}
	defer f.Close()

	var volumes []Volume
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		mountPoint, fsType := fields[1], fields[2]
		if ignoredFsTypes[fsType] || seen[mountPoint] {
			continue
		}
		if strings.HasPrefix(mountPoint, "/boot") || strings.HasPrefix(mountPoint, "/snap") {
			continue
		}
		total, free := getDiskSpace(mountPoint)
		if total == 0 {
			continue
		}
		seen[mountPoint] = true
		volumes = append(volumes, Volume{ID: SanitizeID(mountPoint), Path: mountPoint, Label: mountPoint, TotalBytes: total, FreeBytes: free})
	}

	if len(volumes) == 0 {
		total, free := getDiskSpace("/")
		volumes = append(volumes, Volume{ID: "root", Path: "/", Label: "/", TotalBytes: total, FreeBytes: free})
	}
	return volumes, nil
}

