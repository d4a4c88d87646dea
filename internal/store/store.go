package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite data access layer for persisted notebook captures.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates the notebooks, cells and edges tables and their indexes.
// Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS notebooks (
  id              INTEGER PRIMARY KEY,
  path            TEXT NOT NULL UNIQUE,
  hash            TEXT NOT NULL,
  default_kernel  TEXT NOT NULL,
  cell_count      INTEGER NOT NULL DEFAULT 0,
  analyzed_at     TIMESTAMP
);

-- Set columns hold JSON arrays of sorted strings.
CREATE TABLE IF NOT EXISTS cells (
  id              INTEGER PRIMARY KEY,
  notebook_id     INTEGER NOT NULL REFERENCES notebooks(id) ON DELETE CASCADE,
  idx             INTEGER NOT NULL,
  kernel          TEXT NOT NULL,
  source          TEXT NOT NULL,
  definitions     TEXT NOT NULL DEFAULT '[]',
  uses            TEXT NOT NULL DEFAULT '[]',
  functions       TEXT NOT NULL DEFAULT '[]',
  calls           TEXT NOT NULL DEFAULT '[]',
  writes          TEXT NOT NULL DEFAULT '[]',
  reads           TEXT NOT NULL DEFAULT '[]',
  exports         TEXT NOT NULL DEFAULT '[]',
  imports         TEXT NOT NULL DEFAULT '[]',
  UNIQUE (notebook_id, idx)
);

CREATE TABLE IF NOT EXISTS edges (
  id              INTEGER PRIMARY KEY,
  notebook_id     INTEGER NOT NULL REFERENCES notebooks(id) ON DELETE CASCADE,
  producer        INTEGER NOT NULL,
  consumer        INTEGER NOT NULL,
  kind            TEXT NOT NULL,
  symbols         TEXT NOT NULL DEFAULT '[]',
  path            TEXT,
  label           TEXT,
  UNIQUE (notebook_id, producer, consumer, kind),
  CHECK (producer < consumer)
);

CREATE INDEX IF NOT EXISTS idx_cells_notebook ON cells(notebook_id);
CREATE INDEX IF NOT EXISTS idx_cells_kernel ON cells(kernel);
CREATE INDEX IF NOT EXISTS idx_edges_notebook ON edges(notebook_id);
CREATE INDEX IF NOT EXISTS idx_edges_producer ON edges(notebook_id, producer);
CREATE INDEX IF NOT EXISTS idx_edges_consumer ON edges(notebook_id, consumer);
CREATE INDEX IF NOT EXISTS idx_edges_kind ON edges(kind);
`

// DeleteNotebook removes a notebook and, through cascading foreign keys,
// its cells and edges. Deleting an unknown path is not an error.
func (s *Store) DeleteNotebook(path string) error {
	if _, err := s.db.Exec("DELETE FROM notebooks WHERE path = ?", path); err != nil {
		return fmt.Errorf("delete notebook: %w", err)
	}
	return nil
}
