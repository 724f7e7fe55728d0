// Package model holds the persistent record types shared by every
// component of the indexing core: entries, directory aggregates, and the
// pure path helpers the Scanner, Reconciler, and Aggregator all call.
package model

import "strings"

// Normalize trims a trailing slash (except for the volume root itself) so
// that every store key is canonical. It does not resolve firmlinks; see
// NormalizeFirmlink for that.
func Normalize(path string) string {
	if path == "" {
		return path
	}
	if path == "/" {
		return path
	}
	return strings.TrimSuffix(path, "/")
}

// ParentPath returns the parent of a normalized path, or "" if path has no
// parent (the volume root, or an already-empty path). It is a pure string
// function: callers never need a loaded Entry to walk an ancestor chain.
func ParentPath(path string) string {
	path = Normalize(path)
	if path == "" || path == "/" {
		return ""
	}
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return "/"
	}
	return path[:idx]
}

// IsUnderOrEqual reports whether path equals prefix or is nested under it,
// matching the SQL `path = prefix OR path LIKE prefix/%` predicate the
// Store uses for subtree deletes and aggregation scoping.
func IsUnderOrEqual(path, prefix string) bool {
	path, prefix = Normalize(path), Normalize(prefix)
	if path == prefix {
		return true
	}
	if prefix == "/" {
		return path != ""
	}
	return strings.HasPrefix(path, prefix+"/")
}

// Depth counts path separators, used to sort directories deepest-first for
// bottom-up aggregation.
func Depth(path string) int {
	path = Normalize(path)
	if path == "" || path == "/" {
		return 0
	}
	return strings.Count(path, "/")
}
