package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Querier abstracts *sql.DB and *sql.Tx so store methods work in both contexts.
type Querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Store wraps a SQLite connection for graph storage.
type Store struct {
	db     *sql.DB
	q      Querier // active querier: db or tx
	dbPath string
}

// DefaultPath returns the default database location under the user cache dir.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	dir := filepath.Join(home, ".cache", "docgraph")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir cache: %w", err)
	}
	return filepath.Join(dir, "docgraph.db"), nil
}

// OpenPath opens a SQLite database at the given path.
func OpenPath(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	s := &Store{db: db, dbPath: dbPath}
	s.q = s.db
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// OpenMemory opens an in-memory SQLite database (for testing).
// The pool is pinned to one connection so every query sees the same database.
func OpenMemory() (*Store, error) {
	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open memory db: %w", err)
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, dbPath: ":memory:"}
	s.q = s.db
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// WithTransaction executes fn within a single SQLite transaction.
// The callback receives a transaction-scoped Store; all store methods called on
// txStore use the transaction. The receiver is never mutated.
func (s *Store) WithTransaction(fn func(txStore *Store) error) error {
	if _, ok := s.q.(*sql.Tx); ok {
		// Already inside a transaction: join it.
		return fn(s)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	txStore := &Store{db: s.db, q: tx, dbPath: s.dbPath}
	if err := fn(txStore); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS applications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		app_key TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		repo_path TEXT DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS nodes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		app_id INTEGER NOT NULL REFERENCES applications(id) ON DELETE CASCADE,
		fqn TEXT NOT NULL,
		name TEXT DEFAULT '',
		package_name TEXT DEFAULT '',
		kind TEXT NOT NULL,
		lang TEXT DEFAULT '',
		parent_id INTEGER REFERENCES nodes(id) ON DELETE SET NULL,
		file_path TEXT DEFAULT '',
		line_start INTEGER,
		line_end INTEGER,
		source_code TEXT DEFAULT '',
		doc_comment TEXT DEFAULT '',
		signature TEXT DEFAULT '',
		code_hash TEXT,
		meta TEXT DEFAULT '{}',
		UNIQUE(app_id, fqn)
	);

	CREATE INDEX IF NOT EXISTS idx_nodes_kind ON nodes(app_id, kind);
	CREATE INDEX IF NOT EXISTS idx_nodes_name ON nodes(app_id, name);
	CREATE INDEX IF NOT EXISTS idx_nodes_file ON nodes(app_id, file_path);

	CREATE TABLE IF NOT EXISTS edges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		app_id INTEGER NOT NULL REFERENCES applications(id) ON DELETE CASCADE,
		src_id INTEGER NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
		dst_id INTEGER NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		evidence TEXT DEFAULT '{}',
		explanation TEXT DEFAULT '',
		confidence REAL DEFAULT 1.0,
		strength TEXT DEFAULT 'normal',
		UNIQUE(src_id, dst_id, kind)
	);

	CREATE INDEX IF NOT EXISTS idx_edges_src ON edges(src_id, kind);
	CREATE INDEX IF NOT EXISTS idx_edges_dst ON edges(dst_id, kind);
	CREATE INDEX IF NOT EXISTS idx_edges_kind ON edges(app_id, kind);

	CREATE TABLE IF NOT EXISTS libraries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		group_id TEXT NOT NULL,
		artifact_id TEXT NOT NULL,
		version TEXT NOT NULL,
		kind TEXT DEFAULT 'external',
		meta TEXT DEFAULT '{}',
		UNIQUE(group_id, artifact_id, version)
	);

	CREATE TABLE IF NOT EXISTS library_nodes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		library_id INTEGER NOT NULL REFERENCES libraries(id) ON DELETE CASCADE,
		fqn TEXT NOT NULL,
		name TEXT DEFAULT '',
		package_name TEXT DEFAULT '',
		kind TEXT NOT NULL,
		parent_id INTEGER REFERENCES library_nodes(id) ON DELETE SET NULL,
		file_path TEXT DEFAULT '',
		signature TEXT DEFAULT '',
		meta TEXT DEFAULT '{}',
		UNIQUE(library_id, fqn)
	);

	CREATE INDEX IF NOT EXISTS idx_library_nodes_fqn ON library_nodes(fqn);

	CREATE TABLE IF NOT EXISTS node_library_edges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		node_id INTEGER NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
		library_node_id INTEGER NOT NULL REFERENCES library_nodes(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		evidence TEXT DEFAULT '{}',
		UNIQUE(node_id, library_node_id, kind)
	);

	CREATE INDEX IF NOT EXISTS idx_node_library_edges_lib ON node_library_edges(library_node_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// marshalProps serializes a JSON-shaped map.
func marshalProps(props map[string]any) string {
	if props == nil {
		return "{}"
	}
	b, err := json.Marshal(props)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// UnmarshalProps deserializes JSON properties.
func UnmarshalProps(data string) map[string]any {
	return unmarshalProps(data)
}

// unmarshalProps deserializes JSON properties.
func unmarshalProps(data string) map[string]any {
	if data == "" {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return map[string]any{}
	}
	return m
}

// Now returns the current time in ISO 8601 format.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

type scanner interface {
	Scan(dest ...any) error
}

// placeholders returns "?,?,...,?" with n markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, 2*n-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '?')
	}
	return string(b)
}
