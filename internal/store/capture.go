package store

import (
	"database/sql"
	"fmt"
	"time"
)

// SaveCapture replaces everything stored for nb.Path with nb, cells and
// edges inside a single transaction. IDs are assigned on the passed structs.
func (s *Store) SaveCapture(nb *Notebook, cells []*Cell, edges []*Edge) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("save capture: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM notebooks WHERE path = ?", nb.Path); err != nil {
		return 0, fmt.Errorf("save capture: delete previous: %w", err)
	}

	if nb.AnalyzedAt.IsZero() {
		nb.AnalyzedAt = time.Now().UTC().Truncate(time.Second)
	}
	nb.CellCount = len(cells)
	res, err := tx.Exec(
		"INSERT INTO notebooks (path, hash, default_kernel, cell_count, analyzed_at) VALUES (?, ?, ?, ?, ?)",
		nb.Path, nb.Hash, nb.DefaultKernel, nb.CellCount, nb.AnalyzedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("save capture: notebook %q: %w", nb.Path, err)
	}
	nb.ID, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("save capture: notebook id: %w", err)
	}

	cellStmt, err := tx.Prepare(`INSERT INTO cells
		(notebook_id, idx, kernel, source, definitions, uses, functions, calls, writes, reads, exports, imports)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("save capture: prepare cells: %w", err)
	}
	defer cellStmt.Close()

	for _, c := range cells {
		c.NotebookID = nb.ID
		res, err := cellStmt.Exec(
			c.NotebookID, c.Index, c.Kernel, c.Source,
			marshalNames(c.Definitions), marshalNames(c.Uses), marshalNames(c.Functions), marshalNames(c.Calls),
			marshalNames(c.Writes), marshalNames(c.Reads), marshalNames(c.Exports), marshalNames(c.Imports),
		)
		if err != nil {
			return 0, fmt.Errorf("save capture: cell %d: %w", c.Index, err)
		}
		if c.ID, err = res.LastInsertId(); err != nil {
			return 0, fmt.Errorf("save capture: cell id: %w", err)
		}
	}

	edgeStmt, err := tx.Prepare(`INSERT INTO edges
		(notebook_id, producer, consumer, kind, symbols, path, label)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("save capture: prepare edges: %w", err)
	}
	defer edgeStmt.Close()

	for _, e := range edges {
		e.NotebookID = nb.ID
		res, err := edgeStmt.Exec(
			e.NotebookID, e.Producer, e.Consumer, e.Kind,
			marshalNames(e.Symbols), nullString(e.Path), nullString(e.Label),
		)
		if err != nil {
			return 0, fmt.Errorf("save capture: edge %d->%d %s: %w", e.Producer, e.Consumer, e.Kind, err)
		}
		if e.ID, err = res.LastInsertId(); err != nil {
			return 0, fmt.Errorf("save capture: edge id: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("save capture: commit: %w", err)
	}
	return nb.ID, nil
}

func (s *Store) NotebookByPath(path string) (*Notebook, error) {
	nb := &Notebook{}
	var analyzedAt sql.NullTime
	err := s.db.QueryRow(
		"SELECT id, path, hash, default_kernel, cell_count, analyzed_at FROM notebooks WHERE path = ?", path,
	).Scan(&nb.ID, &nb.Path, &nb.Hash, &nb.DefaultKernel, &nb.CellCount, &analyzedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("notebook by path: %w", err)
	}
	nb.AnalyzedAt = analyzedAt.Time
	return nb, nil
}

// Notebooks returns every stored notebook ordered by path.
func (s *Store) Notebooks() ([]*Notebook, error) {
	rows, err := s.db.Query(
		"SELECT id, path, hash, default_kernel, cell_count, analyzed_at FROM notebooks ORDER BY path",
	)
	if err != nil {
		return nil, fmt.Errorf("notebooks: %w", err)
	}
	defer rows.Close()
	var out []*Notebook
	for rows.Next() {
		nb := &Notebook{}
		var analyzedAt sql.NullTime
		if err := rows.Scan(&nb.ID, &nb.Path, &nb.Hash, &nb.DefaultKernel, &nb.CellCount, &analyzedAt); err != nil {
			return nil, fmt.Errorf("notebooks: scan: %w", err)
		}
		nb.AnalyzedAt = analyzedAt.Time
		out = append(out, nb)
	}
	return out, rows.Err()
}

const cellColumns = "id, notebook_id, idx, kernel, source, definitions, uses, functions, calls, writes, reads, exports, imports"

func scanCell(scanner interface{ Scan(...any) error }) (*Cell, error) {
	c := &Cell{}
	var defs, uses, funcs, calls, writes, reads, exports, imports string
	err := scanner.Scan(&c.ID, &c.NotebookID, &c.Index, &c.Kernel, &c.Source,
		&defs, &uses, &funcs, &calls, &writes, &reads, &exports, &imports)
	if err != nil {
		return nil, err
	}
	c.Definitions = unmarshalNames(defs)
	c.Uses = unmarshalNames(uses)
	c.Functions = unmarshalNames(funcs)
	c.Calls = unmarshalNames(calls)
	c.Writes = unmarshalNames(writes)
	c.Reads = unmarshalNames(reads)
	c.Exports = unmarshalNames(exports)
	c.Imports = unmarshalNames(imports)
	return c, nil
}

func (s *Store) queryCells(query string, args ...any) ([]*Cell, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Cell
	for rows.Next() {
		c, err := scanCell(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CellsByNotebook returns a notebook's cells in document order.
func (s *Store) CellsByNotebook(notebookID int64) ([]*Cell, error) {
	cells, err := s.queryCells(
		"SELECT "+cellColumns+" FROM cells WHERE notebook_id = ? ORDER BY idx", notebookID,
	)
	if err != nil {
		return nil, fmt.Errorf("cells by notebook: %w", err)
	}
	return cells, nil
}

// CellsByIndex returns the listed cells of a notebook in document order.
// Unknown indexes are skipped.
func (s *Store) CellsByIndex(notebookID int64, idxs ...int) ([]*Cell, error) {
	if len(idxs) == 0 {
		return nil, nil
	}
	args := append([]any{notebookID}, intsToArgs(idxs)...)
	cells, err := s.queryCells(
		"SELECT "+cellColumns+" FROM cells WHERE notebook_id = ? AND idx IN ("+placeholderList(len(idxs))+") ORDER BY idx",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("cells by index: %w", err)
	}
	return cells, nil
}

// CellsDefining returns the cells of a notebook whose definitions include
// symbol, in document order.
func (s *Store) CellsDefining(notebookID int64, symbol string) ([]*Cell, error) {
	cells, err := s.queryCells(
		"SELECT "+cellColumns+" FROM cells WHERE notebook_id = ? AND EXISTS "+
			"(SELECT 1 FROM json_each(cells.definitions) WHERE json_each.value = ?) ORDER BY idx",
		notebookID, symbol,
	)
	if err != nil {
		return nil, fmt.Errorf("cells defining: %w", err)
	}
	return cells, nil
}

const edgeColumns = "id, notebook_id, producer, consumer, kind, symbols, path, label"

func (s *Store) queryEdges(query string, args ...any) ([]*Edge, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Edge
	for rows.Next() {
		e := &Edge{}
		var symbols string
		var path, label sql.NullString
		if err := rows.Scan(&e.ID, &e.NotebookID, &e.Producer, &e.Consumer, &e.Kind, &symbols, &path, &label); err != nil {
			return nil, err
		}
		e.Symbols = unmarshalNames(symbols)
		e.Path = path.String
		e.Label = label.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// EdgesByNotebook returns a notebook's edges ordered by consumer, producer
// and kind.
func (s *Store) EdgesByNotebook(notebookID int64) ([]*Edge, error) {
	edges, err := s.queryEdges(
		"SELECT "+edgeColumns+" FROM edges WHERE notebook_id = ? ORDER BY consumer, producer, kind", notebookID,
	)
	if err != nil {
		return nil, fmt.Errorf("edges by notebook: %w", err)
	}
	return edges, nil
}

// EdgesInto returns the edges whose consumer is cell.
func (s *Store) EdgesInto(notebookID int64, cell int) ([]*Edge, error) {
	edges, err := s.queryEdges(
		"SELECT "+edgeColumns+" FROM edges WHERE notebook_id = ? AND consumer = ? ORDER BY producer, kind",
		notebookID, cell,
	)
	if err != nil {
		return nil, fmt.Errorf("edges into: %w", err)
	}
	return edges, nil
}

// EdgesFrom returns the edges whose producer is cell.
func (s *Store) EdgesFrom(notebookID int64, cell int) ([]*Edge, error) {
	edges, err := s.queryEdges(
		"SELECT "+edgeColumns+" FROM edges WHERE notebook_id = ? AND producer = ? ORDER BY consumer, kind",
		notebookID, cell,
	)
	if err != nil {
		return nil, fmt.Errorf("edges from: %w", err)
	}
	return edges, nil
}
