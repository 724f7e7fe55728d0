package main

import (
	"os"
	"path/filepath"
)

// defaultDataDir mirrors the teacher's stats.defaultPath layout
// (~/.diskdive/stats.json): index DB files and settings.json live under
// ~/.indexd.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".indexd"
	}
	return filepath.Join(home, ".indexd")
}
