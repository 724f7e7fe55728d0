package store

// schemaVersion is bumped whenever the table shape changes. Open compares
// it against the meta row and drops/recreates the file on mismatch
// (spec.md §4.1, §6).
const schemaVersion = "3"

const schemaDDL = `
CREATE TABLE IF NOT EXISTS entries (
	path TEXT PRIMARY KEY,
	parent_path TEXT NOT NULL,
	name TEXT NOT NULL,
	is_directory INTEGER NOT NULL,
	is_symlink INTEGER NOT NULL,
	size INTEGER,
	modified_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_entries_parent ON entries(parent_path);

CREATE TABLE IF NOT EXISTS dir_stats (
	path TEXT PRIMARY KEY,
	recursive_size INTEGER NOT NULL,
	recursive_file_count INTEGER NOT NULL,
	recursive_dir_count INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`
