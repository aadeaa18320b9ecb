package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

const currentVersion = 1

// DefaultBatchLimit is the largest number of writes committed atomically.
const DefaultBatchLimit = 500

// Store is a document store over SQLite holding the time_entries and
// ticket_statuses collections, partitioned by Scope. Every committed write
// pushes a fresh snapshot to the scope's subscribers.
type Store struct {
	db         *sql.DB
	batchLimit int

	subMu   sync.Mutex
	subs    map[int]*subscriber
	nextSub int
	version map[string]uint64
}

// New opens (or creates) the SQLite database at dbPath and runs migrations.
func New(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", p, err)
		}
	}

	s := &Store{
		db:         db,
		batchLimit: DefaultBatchLimit,
		subs:       make(map[int]*subscriber),
		version:    make(map[string]uint64),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// NewMemory creates an in-memory store for testing.
func NewMemory() (*Store, error) {
	return New(":memory:")
}

// Close ends all subscriptions and closes the database.
func (s *Store) Close() error {
	s.subMu.Lock()
	for id, sub := range s.subs {
		close(sub.ch)
		delete(s.subs, id)
	}
	s.subMu.Unlock()
	return s.db.Close()
}

// SetBatchLimit caps the number of operations Batch accepts. n <= 0 restores
// the default.
func (s *Store) SetBatchLimit(n int) {
	if n <= 0 {
		n = DefaultBatchLimit
	}
	s.batchLimit = n
}

// BatchLimit reports the largest batch committed atomically.
func (s *Store) BatchLimit() int { return s.batchLimit }

func (s *Store) migrate() error {
	var version int
	err := s.db.QueryRow("PRAGMA user_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}

	if version >= currentVersion {
		return nil
	}

	if version < 1 {
		if err := s.migrateV1(); err != nil {
			return err
		}
	}

	_, err = s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentVersion))
	return err
}

func (s *Store) migrateV1() error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS time_entries (
		id              TEXT PRIMARY KEY,
		scope           TEXT NOT NULL,
		ticket_id       TEXT NOT NULL,
		start_ms        INTEGER,
		end_ms          INTEGER,
		accumulated_ms  INTEGER NOT NULL DEFAULT 0,
		note            TEXT NOT NULL DEFAULT '',
		status          TEXT NOT NULL DEFAULT 'unsubmitted',
		submitted_ms    INTEGER,
		created_ms      INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_scope_ticket ON time_entries(scope, ticket_id);
	CREATE INDEX IF NOT EXISTS idx_entries_scope_open   ON time_entries(scope, end_ms);

	CREATE TABLE IF NOT EXISTS ticket_statuses (
		scope       TEXT NOT NULL,
		ticket_id   TEXT NOT NULL,
		is_closed   INTEGER NOT NULL DEFAULT 0,
		updated_ms  INTEGER NOT NULL,
		PRIMARY KEY (scope, ticket_id)
	);
	`
	_, err := s.db.Exec(ddl)
	return err
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// DefaultDBPath returns ~/.config/ticktack/ticktack.db
func DefaultDBPath() (string, error) {
	cfg, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cfg, "ticktack", "ticktack.db"), nil
}
