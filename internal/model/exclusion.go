package model

import "strings"

// excludedPrefixes lists the platform's volatile/virtual mount points,
// per-user caches, temp spools, and event-journal/content-index metadata
// directories that must never be descended or indexed, per spec.md §4.4
// and §6. The Scanner and the Reconciler both call ExcludedPath so that
// no excluded entry can leak in through either the scan or the live event
// stream (spec.md property P6).
var excludedPrefixes = []string{
	"/dev",
	"/proc",
	"/sys",
	"/private/var/vm",
	"/private/var/db/Spotlight-V100",
	"/private/var/folders",
	"/private/tmp",
	"/private/var/tmp",
	"/.fseventsd",
	"/.Spotlight-V100",
	"/.DocumentRevisions-V100",
	"/.Trashes",
	"/Volumes",
	"/System/Volumes/VM",
	"/System/Volumes/Preboot",
	"/System/Volumes/Update",
	"/System/Volumes/xarts",
	"/System/Volumes/iSCPreboot",
	"/System/Volumes/Hardware",
}

// ExcludedPath reports whether path falls under a hard-blocked prefix, or
// is a "System" path outside the firmlink allow-list. Call NormalizeFirmlink
// first; ExcludedPath assumes its input is already canonical.
func ExcludedPath(path string) bool {
	path = Normalize(path)
	if path == "" {
		return true
	}
	for _, prefix := range excludedPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	if path == "/System" || strings.HasPrefix(path, "/System/") {
		for _, allowed := range firmlinkAllowlist {
			if path == allowed || strings.HasPrefix(path, allowed+"/") {
				return false
			}
		}
		return true
	}
	return false
}
