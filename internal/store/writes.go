package store

import (
	"database/sql"

	"github.com/lumipallolabs/indexd/internal/model"
)

// These are static write primitives: every one of them is called only
// from the Writer's single goroutine (spec.md §4.1, §9 ownership note).
// Each opens its own transaction for atomicity UNLESS the Writer already
// has an explicit transaction open via BeginExplicit, in which case the
// write just joins it — that's what lets the Reconciler batch tens of
// thousands of replay mutations under one disk sync.

// withTx runs fn against a transaction: the Writer's already-open one if
// present, otherwise a fresh one that is committed (or rolled back) here.
func (s *Store) withTx(op string, fn func(execer) error) error {
	if s.activeTx != nil {
		if err := fn(s.activeTx); err != nil {
			return newErr(op, KindEngine, err)
		}
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return newErr(op, KindEngine, err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return newErr(op, KindEngine, err)
	}
	if err := tx.Commit(); err != nil {
		return newErr(op, KindEngine, err)
	}
	return nil
}

const upsertEntrySQL = `
INSERT INTO entries(path, parent_path, name, is_directory, is_symlink, size, modified_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(path) DO UPDATE SET
	parent_path=excluded.parent_path,
	name=excluded.name,
	is_directory=excluded.is_directory,
	is_symlink=excluded.is_symlink,
	size=excluded.size,
	modified_at=excluded.modified_at
`

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func entryArgs(e model.Entry) []any {
	return []any{
		model.Normalize(e.Path), model.Normalize(e.ParentPath), e.Name,
		boolToInt(e.IsDir), boolToInt(e.IsSymlink), e.Size, e.ModifiedAt,
	}
}

// InsertEntriesBatch transactionally upserts a batch of entries, the
// product of one Scanner send (spec.md §4.1).
func (s *Store) InsertEntriesBatch(entries []model.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	return s.withTx("insert_entries_batch", func(ex execer) error {
		for _, e := range entries {
			if _, err := ex.Exec(upsertEntrySQL, entryArgs(e)...); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpsertEntry writes a single entry, from a live filesystem event
// (spec.md §4.2).
func (s *Store) UpsertEntry(e model.Entry) error {
	if _, err := s.ex().Exec(upsertEntrySQL, entryArgs(e)...); err != nil {
		return newErr("upsert_entry", KindEngine, err)
	}
	return nil
}

// DeleteEntry removes a single row from both tables.
func (s *Store) DeleteEntry(path string) error {
	path = model.Normalize(path)
	return s.withTx("delete_entry", func(ex execer) error {
		if _, err := ex.Exec(`DELETE FROM entries WHERE path = ?`, path); err != nil {
			return err
		}
		if _, err := ex.Exec(`DELETE FROM dir_stats WHERE path = ?`, path); err != nil {
			return err
		}
		return nil
	})
}

// DeleteSubtree transactionally removes prefix and everything nested
// under it from both entries and dir_stats (spec.md §3 invariant c,
// §4.1). Applying it twice is idempotent (spec.md property P3): the
// second call simply matches zero rows.
func (s *Store) DeleteSubtree(prefix string) error {
	prefix = model.Normalize(prefix)
	like := escapeLike(prefix) + `/%`
	return s.withTx("delete_subtree", func(ex execer) error {
		if _, err := ex.Exec(`DELETE FROM entries WHERE path = ? OR path LIKE ? ESCAPE '\'`, prefix, like); err != nil {
			return err
		}
		if _, err := ex.Exec(`DELETE FROM dir_stats WHERE path = ? OR path LIKE ? ESCAPE '\'`, prefix, like); err != nil {
			return err
		}
		return nil
	})
}

const upsertDirStatsSQL = `
INSERT INTO dir_stats(path, recursive_size, recursive_file_count, recursive_dir_count)
VALUES (?, ?, ?, ?)
ON CONFLICT(path) DO UPDATE SET
	recursive_size=excluded.recursive_size,
	recursive_file_count=excluded.recursive_file_count,
	recursive_dir_count=excluded.recursive_dir_count
`

// UpsertDirStats transactionally batch-writes aggregates, the output of
// an Aggregator pass (spec.md §4.1).
func (s *Store) UpsertDirStats(stats []model.DirStats) error {
	if len(stats) == 0 {
		return nil
	}
	return s.withTx("upsert_dir_stats", func(ex execer) error {
		for _, d := range stats {
			if _, err := ex.Exec(upsertDirStatsSQL, model.Normalize(d.Path), d.RecursiveSize, d.RecursiveFileCount, d.RecursiveDirCount); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateMeta writes one meta key/value pair (spec.md §3, only ever
// written by the Writer).
func (s *Store) UpdateMeta(key, value string) error {
	_, err := s.ex().Exec(
		`INSERT INTO meta(key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`, key, value)
	if err != nil {
		return newErr("update_meta", KindEngine, err)
	}
	return nil
}

// GetMeta reads one meta value, or KindNotFound if absent.
func (s *Store) GetMeta(key string) (string, error) {
	var value string
	err := s.ex().QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", newErr("get_meta", KindNotFound, err)
	}
	if err != nil {
		return "", newErr("get_meta", KindEngine, err)
	}
	return value, nil
}
