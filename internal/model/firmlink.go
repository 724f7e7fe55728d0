package model

import "strings"

// firmlinkAllowlist holds the subpaths of a firmlinked system volume that
// are allowed to resolve to themselves instead of being collapsed onto
// their "Data" twin. It is centrally defined here so the Scanner and the
// Reconciler share exactly one predicate, per spec.md §4.4/§9.
var firmlinkAllowlist = []string{
	"/System/Volumes/Data",
}

// firmlinkPrefixes maps a physically distinct mount prefix onto the
// canonical prefix it is a twin of. Platform-specific; POSIX systems
// without firmlinks leave this empty and NormalizeFirmlink is a no-op.
var firmlinkPrefixes = [][2]string{
	{"/System/Volumes/Data/Users", "/Users"},
	{"/System/Volumes/Data/Applications", "/Applications"},
	{"/System/Volumes/Data/opt", "/opt"},
	{"/System/Volumes/Data/private/var", "/private/var"},
}

// NormalizeFirmlink resolves a path read from the filesystem or the event
// stream to its canonical form, collapsing a firmlinked twin onto the
// path an ordinary `/`-rooted walk would have produced. Call this at
// exactly one edge: right after a path is read from the walker or the
// watcher, before it touches the Store. Every other normalization
// (Normalize, ParentPath, exclusion) operates on the result.
func NormalizeFirmlink(path string) string {
	path = Normalize(path)
	for _, allowed := range firmlinkAllowlist {
		if path == allowed || strings.HasPrefix(path, allowed+"/") {
			return path
		}
	}
	for _, pair := range firmlinkPrefixes {
		twin, canonical := pair[0], pair[1]
		if path == twin {
			return canonical
		}
		if strings.HasPrefix(path, twin+"/") {
			return canonical + path[len(twin):]
		}
	}
	return path
}
