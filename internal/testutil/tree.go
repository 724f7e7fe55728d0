// Package testutil provides a temp-directory tree builder and store
// helpers for package tests, generalizing the inline os.MkdirAll/os.WriteFile
// sequences the teacher's walker_test.go (and this repo's own
// scanner_test.go) repeat per test.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// Tree builds a directory tree under a fresh t.TempDir() from a
// declarative description and returns its root path. Keys are
// slash-separated paths relative to the root; a nil value creates a
// directory, any other []byte value creates a file with that content.
//
//	root := testutil.Tree(t, map[string][]byte{
//		"a.txt":        []byte("hello"),
//		"sub":          nil,
//		"sub/b.txt":    []byte("world"),
//	})
func Tree(t *testing.T, files map[string][]byte) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if content == nil {
			if err := os.MkdirAll(path, 0755); err != nil {
				t.Fatalf("testutil.Tree: mkdir %s: %v", rel, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("testutil.Tree: mkdir parent of %s: %v", rel, err)
		}
		if err := os.WriteFile(path, content, 0644); err != nil {
			t.Fatalf("testutil.Tree: write %s: %v", rel, err)
		}
	}
	return root
}

// File is a convenience constructor for a fixed-size file's content,
// matching the make([]byte, n) pattern the teacher's and this repo's
// scanner tests use to build files of a known size without caring about
// their bytes.
func File(size int) []byte {
	return make([]byte, size)
}
