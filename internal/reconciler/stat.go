package reconciler

import (
	"os"
	"path/filepath"

	"github.com/lumipallolabs/indexd/internal/model"
)

// statEntry stats path without following symlinks and builds the Entry
// a live event or verification pass would insert. ok is false if the
// stat failed (the event-then-stat race, spec.md §4.7/§9).
func statEntry(path string) (model.Entry, bool) {
	info, err := os.Lstat(path)
	if err != nil {
		return model.Entry{}, false
	}

	isSymlink := info.Mode()&os.ModeSymlink != 0
	isDir := info.IsDir()

	parent := model.ParentPath(path)
	if parent == "" {
		parent = "/"
	}

	e := model.Entry{
		Path:       path,
		ParentPath: parent,
		Name:       filepath.Base(path),
		IsDir:      isDir,
		IsSymlink:  isSymlink,
	}
	if isDir || isSymlink {
		return e, true
	}

	size := physicalSize(info)
	e.Size = &size
	modAt := info.ModTime().Unix()
	e.ModifiedAt = &modAt
	return e, true
}

// readDirNames lists the current basenames of a directory's children, or
// ok=false if the directory can no longer be read (it was removed out
// from under the verifier, or the stat race again).
func readDirNames(dir string) (map[string]bool, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, false
	}
	out := make(map[string]bool, len(entries))
	for _, e := range entries {
		name := e.Name()
		if model.ExcludedPath(model.NormalizeFirmlink(joinPath(dir, name))) {
			continue
		}
		out[name] = true
	}
	return out, true
}

func joinPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}
