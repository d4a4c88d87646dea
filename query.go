package cellscope

import (
	"fmt"
	"path/filepath"

	"github.com/jward/cellscope/internal/store"
)

// QueryBuilder reads persisted captures. Notebooks are looked up by the path
// they were analyzed under; an unknown notebook yields empty results.
type QueryBuilder struct {
	store *store.Store
}

// NewQueryBuilder returns a QueryBuilder over an already-open Store.
func NewQueryBuilder(s *Store) *QueryBuilder {
	return &QueryBuilder{store: s}
}

// notebook resolves path to its stored record, trying the path as given and
// then its absolute form.
func (q *QueryBuilder) notebook(path string) (*store.Notebook, error) {
	if q.store == nil {
		return nil, ErrNoStore
	}
	nb, err := q.store.NotebookByPath(path)
	if err != nil || nb != nil {
		return nb, err
	}
	abs, err := filepath.Abs(path)
	if err != nil || abs == path {
		return nil, nil
	}
	return q.store.NotebookByPath(abs)
}

// Notebooks lists every stored notebook ordered by path.
func (q *QueryBuilder) Notebooks() ([]*StoredNotebook, error) {
	if q.store == nil {
		return nil, ErrNoStore
	}
	return q.store.Notebooks()
}

// Cells returns a notebook's cell records in document order.
func (q *QueryBuilder) Cells(path string) ([]*StoredCell, error) {
	nb, err := q.notebook(path)
	if err != nil {
		return nil, fmt.Errorf("cells: %w", err)
	}
	if nb == nil {
		return nil, nil
	}
	return q.store.CellsByNotebook(nb.ID)
}

// Upstream returns the edges into cell: its direct producers.
func (q *QueryBuilder) Upstream(path string, cell int) ([]*StoredEdge, error) {
	nb, err := q.notebook(path)
	if err != nil {
		return nil, fmt.Errorf("upstream: %w", err)
	}
	if nb == nil {
		return nil, nil
	}
	return q.store.EdgesInto(nb.ID, cell)
}

// Downstream returns the edges out of cell: its direct consumers.
func (q *QueryBuilder) Downstream(path string, cell int) ([]*StoredEdge, error) {
	nb, err := q.notebook(path)
	if err != nil {
		return nil, fmt.Errorf("downstream: %w", err)
	}
	if nb == nil {
		return nil, nil
	}
	return q.store.EdgesFrom(nb.ID, cell)
}

// Lineage returns the cells that reach cell through one or more edges of
// any kind, in document order.
func (q *QueryBuilder) Lineage(path string, cell int) ([]*StoredCell, error) {
	nb, err := q.notebook(path)
	if err != nil {
		return nil, fmt.Errorf("lineage: %w", err)
	}
	if nb == nil {
		return nil, nil
	}
	edges, err := q.store.EdgesByNotebook(nb.ID)
	if err != nil {
		return nil, fmt.Errorf("lineage: %w", err)
	}
	g := &Graph{Edges: make([]Edge, 0, len(edges))}
	for _, e := range edges {
		g.Edges = append(g.Edges, Edge{Producer: e.Producer, Consumer: e.Consumer, Kind: EdgeKind(e.Kind)})
	}
	idxs := g.Upstream(cell)
	if len(idxs) == 0 {
		return nil, nil
	}
	return q.store.CellsByIndex(nb.ID, idxs...)
}

// Producers returns the cells that define symbol, in document order.
func (q *QueryBuilder) Producers(path, symbol string) ([]*StoredCell, error) {
	nb, err := q.notebook(path)
	if err != nil {
		return nil, fmt.Errorf("producers: %w", err)
	}
	if nb == nil {
		return nil, nil
	}
	return q.store.CellsDefining(nb.ID, symbol)
}
