// Package store implements the per-volume on-disk representation: the
// entries table, the dir_stats table, and the meta key/value table,
// backed by an embedded SQLite engine (spec.md §3-4.1). The Store owns
// the on-disk bytes exclusively; every other component either reads it
// through its own connection or speaks to the single Writer that holds
// the sole write handle (spec.md §4.2, §9).
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// execer is satisfied by both *sql.DB and *sql.Tx, letting every read/
// write method run either directly or inside the Writer's explicit
// transaction bracket without duplicating the query.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Store wraps a single SQLite connection. Read-only callers (the UI's
// directory-listing enrichment, ad-hoc lookups) open their own Store over
// the same file; only the Writer is given a Store used for mutation.
type Store struct {
	db       *sql.DB
	activeTx *sql.Tx
	path     string
	log      *logrus.Entry
}

// ex returns the connection writes should run against: the Writer's
// explicit transaction if one is open (BeginTransaction/CommitTransaction),
// otherwise the plain connection.
func (s *Store) ex() execer {
	if s.activeTx != nil {
		return s.activeTx
	}
	return s.db
}

// BeginExplicit opens the explicit transaction bracket the Writer uses to
// batch tens of thousands of journal-replay mutations under one disk sync
// (spec.md §4.2 BeginTransaction). Every subsequent write runs inside it
// until CommitExplicit.
func (s *Store) BeginExplicit() error {
	if s.activeTx != nil {
		return newErr("begin_transaction", KindEngine, fmt.Errorf("transaction already open"))
	}
	tx, err := s.db.Begin()
	if err != nil {
		return newErr("begin_transaction", KindEngine, err)
	}
	s.activeTx = tx
	return nil
}

// WithTx runs fn inside a transaction scoped to this call, UNLESS a
// Writer-level explicit transaction (BeginExplicit) is already open, in
// which case fn just joins it and the caller's commit/rollback is a
// no-op deferred to whoever opened the outer transaction. This is how
// Aggregator.Propagate gets "inside one transaction" (spec.md §4.3) while
// still composing with the Reconciler's replay-wide transaction bracket.
func (s *Store) WithTx(fn func() error) (err error) {
	if s.activeTx != nil {
		return fn()
	}
	if err := s.BeginExplicit(); err != nil {
		return err
	}
	tx := s.activeTx
	defer func() {
		if err != nil {
			s.activeTx = nil
			tx.Rollback()
		}
	}()
	if err = fn(); err != nil {
		return err
	}
	return s.CommitExplicit()
}

// CommitExplicit commits the transaction opened by BeginExplicit
// (spec.md §4.2 CommitTransaction).
func (s *Store) CommitExplicit() error {
	if s.activeTx == nil {
		return newErr("commit_transaction", KindEngine, fmt.Errorf("no transaction open"))
	}
	tx := s.activeTx
	s.activeTx = nil
	if err := tx.Commit(); err != nil {
		return newErr("commit_transaction", KindEngine, err)
	}
	return nil
}

// Path returns the on-disk database file path; its -wal/-shm sidecars
// sit beside it under the same name.
func (s *Store) Path() string { return s.path }

// DBPath returns the conventional path for a volume's index file under
// dataDir, matching spec.md §6 ("index-<volume_id>.db").
func DBPath(dataDir, volumeID string) string {
	return filepath.Join(dataDir, fmt.Sprintf("index-%s.db", volumeID))
}

// Open opens (creating if necessary) the index database for a volume. If
// the schema_version stored in meta differs from the current version, or
// cannot be read, the DB file and its WAL/SHM sidecars are deleted and
// recreated from scratch — the store is a cache, authoritative only while
// coherent with the current schema (spec.md §4.1).
func Open(path string, log *logrus.Entry) (*Store, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Store{path: path, log: log.WithField("component", "store")}

	if err := s.openOnce(); err != nil {
		return nil, err
	}

	version, err := s.GetMeta("schema_version")
	if err != nil || version != schemaVersion {
		s.log.WithFields(logrus.Fields{"found": version, "want": schemaVersion}).
			Warn("schema mismatch or unreadable version, recreating index")
		_ = s.db.Close()
		if err := removeDBFiles(path); err != nil {
			return nil, newErr("open", KindIo, err)
		}
		if err := s.openOnce(); err != nil {
			return nil, err
		}
		if err := s.ClearAll(); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *Store) openOnce() error {
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return newErr("open", KindEngine, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		_ = db.Close()
		return newErr("open", KindEngine, err)
	}
	if _, err := db.Exec(`PRAGMA synchronous=NORMAL;`); err != nil {
		_ = db.Close()
		return newErr("open", KindEngine, err)
	}
	if _, err := db.Exec(`PRAGMA cache_size=-65536;`); err != nil {
		_ = db.Close()
		return newErr("open", KindEngine, err)
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		_ = db.Close()
		return newErr("open", KindEngine, err)
	}
	s.db = db
	return nil
}

func removeDBFiles(path string) error {
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(path + suffix); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DBFileSize returns the current size in bytes of the primary DB file
// (spec.md §4.1 db_file_size).
func (s *Store) DBFileSize() (int64, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, newErr("db_file_size", KindIo, err)
	}
	return info.Size(), nil
}

// ClearAll drops and recreates every table and stamps the current schema
// version (spec.md §4.1 clear_all).
func (s *Store) ClearAll() error {
	tx, err := s.db.Begin()
	if err != nil {
		return newErr("clear_all", KindEngine, err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DROP TABLE IF EXISTS entries;`,
		`DROP TABLE IF EXISTS dir_stats;`,
		`DROP TABLE IF EXISTS meta;`,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return newErr("clear_all", KindEngine, err)
		}
	}
	if _, err := tx.Exec(schemaDDL); err != nil {
		return newErr("clear_all", KindEngine, err)
	}
	if _, err := tx.Exec(
		`INSERT INTO meta(key, value) VALUES ('schema_version', ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`, schemaVersion); err != nil {
		return newErr("clear_all", KindEngine, err)
	}
	if err := tx.Commit(); err != nil {
		return newErr("clear_all", KindEngine, err)
	}
	return nil
}
