package model

import (
	"fmt"
	"runtime"
	"strings"
)

// Volume is a mounted filesystem volume the IndexManager can index
// (spec.md §4.8 new(volume_id, volume_root, ...)). ID is a stable,
// filesystem-path-derived identifier used to name the volume's DB file
// ("index-<volume_id>.db", spec.md §6); Path is the root the Scanner
// walks and the Watcher subscribes to.
type Volume struct {
	ID         string
	Path       string
	Label      string
	TotalBytes int64
	FreeBytes  int64
}

// UsedBytes returns bytes used on this volume.
func (v Volume) UsedBytes() int64 {
	return v.TotalBytes - v.FreeBytes
}

// UsedPercent returns the percentage of the volume currently used.
func (v Volume) UsedPercent() float64 {
	if v.TotalBytes == 0 {
		return 0
	}
	return float64(v.UsedBytes()) / float64(v.TotalBytes) * 100
}

// ListVolumes enumerates the volumes available for indexing on this
// machine, platform disk-space syscalls included so the CLI can show
// free space alongside each candidate (spec.md §6 query surface is
// per-volume; this is the platform-abstract discovery step that picks
// which volume_id/volume_root to pass to IndexManager).
func ListVolumes() ([]Volume, error) {
	return listPlatformVolumes()
}

// SanitizeID turns an arbitrary mount point or volume root into a
// filesystem-safe volume ID suitable for the "index-<volume_id>.db" file
// name (spec.md §6). Used both by the platform volume-listing backends
// and directly by callers (e.g. the CLI) indexing an arbitrary path.
func SanitizeID(path string) string {
	if path == "/" || path == "" {
		return "root"
	}
	id := strings.ReplaceAll(strings.Trim(path, `/\`), "/", "-")
	id = strings.ReplaceAll(id, `\`, "-")
	id = strings.ReplaceAll(id, ":", "")
	if id == "" {
		return "root"
	}
	return id
}

func getWindowsVolumes() ([]Volume, error) {
	var volumes []Volume

	for letter := 'A'; letter <= 'Z'; letter++ {
		path := fmt.Sprintf("%c:\\", letter)
		total, free := getDiskSpace(path)
		if total == 0 {
			continue
		}
		volumes = append(volumes, Volume{
			ID:         string(letter),
			Path:       path,
			Label:      string(letter) + ":",
			TotalBytes: total,
			FreeBytes:  free,
		})
	}
	return volumes, nil
}

func getRootVolume() ([]Volume, error) {
	total, free := getDiskSpace("/")
	return []Volume{{ID: "root", Path: "/", Label: runtime.GOOS, TotalBytes: total, FreeBytes: free}}, nil
}
