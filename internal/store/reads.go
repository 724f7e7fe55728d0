package store

import (
	"database/sql"
	"errors"

	"github.com/lumipallolabs/indexd/internal/model"
)

// batchLookupThreshold is the point past which GetDirStatsBatch switches
// from one query per path to a single `IN (...)` query (spec.md §4.1).
const batchLookupThreshold = 20

// GetDirStats returns the recursive aggregate for path, or a KindNotFound
// error if no DirStats row exists yet.
func (s *Store) GetDirStats(path string) (model.DirStats, error) {
	path = model.Normalize(path)
	row := s.ex().QueryRow(
		`SELECT path, recursive_size, recursive_file_count, recursive_dir_count
		 FROM dir_stats WHERE path = ?`, path)

	var d model.DirStats
	err := row.Scan(&d.Path, &d.RecursiveSize, &d.RecursiveFileCount, &d.RecursiveDirCount)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DirStats{}, newErr("get_dir_stats", KindNotFound, err)
	}
	if err != nil {
		return model.DirStats{}, newErr("get_dir_stats", KindEngine, err)
	}
	return d, nil
}

// GetDirStatsBatch returns the aggregate for each path in order,
// preserving the input order with nil entries for paths that have no
// DirStats row. Uses a single query for large batches (spec.md §4.1).
func (s *Store) GetDirStatsBatch(paths []string) ([]*model.DirStats, error) {
	result := make([]*model.DirStats, len(paths))
	if len(paths) == 0 {
		return result, nil
	}

	if len(paths) < batchLookupThreshold {
		for i, p := range paths {
			d, err := s.GetDirStats(p)
			if err != nil {
				if IsNotFound(err) {
					continue
				}
				return nil, err
			}
			cp := d
			result[i] = &cp
		}
		return result, nil
	}

	index := make(map[string]int, len(paths))
	args := make([]any, len(paths))
	placeholders := make([]byte, 0, len(paths)*2)
	for i, p := range paths {
		p = model.Normalize(p)
		index[p] = i
		args[i] = p
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}

	query := `SELECT path, recursive_size, recursive_file_count, recursive_dir_count
		 FROM dir_stats WHERE path IN (` + string(placeholders) + `)`
	rows, err := s.ex().Query(query, args...)
	if err != nil {
		return nil, newErr("get_dir_stats_batch", KindEngine, err)
	}
	defer rows.Close()

	for rows.Next() {
		var d model.DirStats
		if err := rows.Scan(&d.Path, &d.RecursiveSize, &d.RecursiveFileCount, &d.RecursiveDirCount); err != nil {
			return nil, newErr("get_dir_stats_batch", KindEngine, err)
		}
		if i, ok := index[d.Path]; ok {
			cp := d
			result[i] = &cp
		}
	}
	if err := rows.Err(); err != nil {
		return nil, newErr("get_dir_stats_batch", KindEngine, err)
	}
	return result, nil
}

// IndexStatus is the snapshot returned by GetIndexStatus (spec.md §3, §6).
type IndexStatus struct {
	SchemaVersion       string
	VolumePath          string
	ScanCompletedAt     string
	ScanDurationMs      string
	TotalEntries        string
	LastEventID         string
	DBFileSizeBytes     int64
	ClampedPropagations string
}

// GetIndexStatus reads every meta key plus the live DB file size (spec.md
// §4.1, and the supplemented db_file_size-on-status feature in
// SPEC_FULL.md §12).
func (s *Store) GetIndexStatus() (IndexStatus, error) {
	var st IndexStatus
	var err error
	if st.SchemaVersion, err = s.GetMeta("schema_version"); err != nil && !IsNotFound(err) {
		return st, err
	}
	if st.VolumePath, err = s.GetMeta("volume_path"); err != nil && !IsNotFound(err) {
		return st, err
	}
	if st.ScanCompletedAt, err = s.GetMeta("scan_completed_at"); err != nil && !IsNotFound(err) {
		return st, err
	}
	if st.ScanDurationMs, err = s.GetMeta("scan_duration_ms"); err != nil && !IsNotFound(err) {
		return st, err
	}
	if st.TotalEntries, err = s.GetMeta("total_entries"); err != nil && !IsNotFound(err) {
		return st, err
	}
	if st.LastEventID, err = s.GetMeta("last_event_id"); err != nil && !IsNotFound(err) {
		return st, err
	}
	if st.ClampedPropagations, err = s.GetMeta("clamped_propagations"); err != nil && !IsNotFound(err) {
		return st, err
	}
	if st.DBFileSizeBytes, err = s.DBFileSize(); err != nil {
		return st, err
	}
	return st, nil
}

// ListEntriesByParent returns every direct child of a directory.
func (s *Store) ListEntriesByParent(parent string) ([]model.Entry, error) {
	parent = model.Normalize(parent)
	rows, err := s.ex().Query(
		`SELECT path, parent_path, name, is_directory, is_symlink, size, modified_at
		 FROM entries WHERE parent_path = ?`, parent)
	if err != nil {
		return nil, newErr("list_entries_by_parent", KindEngine, err)
	}
	defer rows.Close()

	var out []model.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, newErr("list_entries_by_parent", KindEngine, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetEntry returns a single entry, or KindNotFound if it doesn't exist.
// The Writer calls this before deleting so that the negative propagation
// delta reflects the entry's actual last-known size (spec.md §4.2).
func (s *Store) GetEntry(path string) (model.Entry, error) {
	path = model.Normalize(path)
	row := s.ex().QueryRow(
		`SELECT path, parent_path, name, is_directory, is_symlink, size, modified_at
		 FROM entries WHERE path = ?`, path)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Entry{}, newErr("get_entry", KindNotFound, err)
	}
	if err != nil {
		return model.Entry{}, newErr("get_entry", KindEngine, err)
	}
	return e, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (model.Entry, error) {
	var e model.Entry
	var isDir, isSymlink int
	if err := row.Scan(&e.Path, &e.ParentPath, &e.Name, &isDir, &isSymlink, &e.Size, &e.ModifiedAt); err != nil {
		return model.Entry{}, err
	}
	e.IsDir = isDir != 0
	e.IsSymlink = isSymlink != 0
	return e, nil
}

// GetChildrenStats sums direct (non-recursive) children of parent: total
// file size, file count, and directory count (spec.md §4.1).
func (s *Store) GetChildrenStats(parent string) (size uint64, files uint64, dirs uint64, err error) {
	parent = model.Normalize(parent)
	row := s.ex().QueryRow(
		`SELECT
			COALESCE(SUM(CASE WHEN is_directory = 0 AND is_symlink = 0 THEN size ELSE 0 END), 0),
			COUNT(CASE WHEN is_directory = 0 AND is_symlink = 0 THEN 1 END),
			COUNT(CASE WHEN is_directory = 1 THEN 1 END)
		 FROM entries WHERE parent_path = ?`, parent)
	if scanErr := row.Scan(&size, &files, &dirs); scanErr != nil {
		return 0, 0, 0, newErr("get_children_stats", KindEngine, scanErr)
	}
	return size, files, dirs, nil
}

// GetSubtreeTotals sums every file under prefix (inclusive), used by
// DeleteSubtree to compute the negative propagation delta before removal
// (spec.md §4.1).
func (s *Store) GetSubtreeTotals(prefix string) (size uint64, files uint64, dirs uint64, err error) {
	prefix = model.Normalize(prefix)
	row := s.ex().QueryRow(
		`SELECT
			COALESCE(SUM(CASE WHEN is_directory = 0 AND is_symlink = 0 THEN size ELSE 0 END), 0),
			COUNT(CASE WHEN is_directory = 0 AND is_symlink = 0 THEN 1 END),
			COUNT(CASE WHEN is_directory = 1 THEN 1 END)
		 FROM entries WHERE path = ? OR path LIKE ? ESCAPE '\'`,
		prefix, escapeLike(prefix)+`/%`)
	if scanErr := row.Scan(&size, &files, &dirs); scanErr != nil {
		return 0, 0, 0, newErr("get_subtree_totals", KindEngine, scanErr)
	}
	return size, files, dirs, nil
}

// GetEntryCount returns the total number of rows in entries, used by the
// Writer's synchronous GetEntryCount message (spec.md §4.2).
func (s *Store) GetEntryCount() (int64, error) {
	var count int64
	if err := s.ex().QueryRow(`SELECT COUNT(*) FROM entries`).Scan(&count); err != nil {
		return 0, newErr("get_entry_count", KindEngine, err)
	}
	return count, nil
}

// GetAllDirectoryPaths returns every directory path in the store.
func (s *Store) GetAllDirectoryPaths() ([]string, error) {
	rows, err := s.ex().Query(`SELECT path FROM entries WHERE is_directory = 1`)
	if err != nil {
		return nil, newErr("get_all_directory_paths", KindEngine, err)
	}
	defer rows.Close()
	return scanPaths(rows)
}

// GetDirectoryPathsUnder returns every directory path equal to or nested
// under root, used to scope subtree aggregation (spec.md §4.3).
func (s *Store) GetDirectoryPathsUnder(root string) ([]string, error) {
	root = model.Normalize(root)
	rows, err := s.ex().Query(
		`SELECT path FROM entries WHERE is_directory = 1 AND (path = ? OR path LIKE ? ESCAPE '\')`,
		root, escapeLike(root)+`/%`)
	if err != nil {
		return nil, newErr("get_directory_paths_under", KindEngine, err)
	}
	defer rows.Close()
	return scanPaths(rows)
}

func scanPaths(rows *sql.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, newErr("scan_paths", KindEngine, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// escapeLike escapes the SQL LIKE metacharacters in a path prefix so a
// literal "%" or "_" in a filename can't widen the subtree match.
func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\', '%', '_':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
