package cellscope

import (
	"path/filepath"
	"sort"
	"strings"
)

// edgeKey identifies the single edge allowed per ordered pair and kind.
type edgeKey struct {
	producer, consumer int
	kind               EdgeKind
}

// edgeFolder accumulates contributions and folds them into one edge per key.
type edgeFolder struct {
	edges map[edgeKey]*Edge
}

func newEdgeFolder() *edgeFolder {
	return &edgeFolder{edges: make(map[edgeKey]*Edge)}
}

// add records symbol on the producer -> consumer edge of kind. Backward and
// self edges are dropped.
func (f *edgeFolder) add(producer, consumer int, kind EdgeKind, symbols ...string) {
	if producer >= consumer {
		return
	}
	k := edgeKey{producer, consumer, kind}
	e, ok := f.edges[k]
	if !ok {
		e = &Edge{Producer: producer, Consumer: consumer, Kind: kind, Symbols: NewSet()}
		f.edges[k] = e
	}
	e.Symbols.Add(symbols...)
}

// graph returns the folded edges ordered by consumer, producer, kind.
func (f *edgeFolder) graph() *Graph {
	out := make([]Edge, 0, len(f.edges))
	for _, e := range f.edges {
		if e.Kind == FileHandoff {
			labelFileEdge(e)
		}
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Consumer != b.Consumer {
			return a.Consumer < b.Consumer
		}
		if a.Producer != b.Producer {
			return a.Producer < b.Producer
		}
		return kindRank[a.Kind] < kindRank[b.Kind]
	})
	return &Graph{Edges: out}
}

// labelFileEdge sets Path to the first folded path and Label to the final
// segments of all of them.
func labelFileEdge(e *Edge) {
	paths := e.Symbols.Sorted()
	if len(paths) == 0 {
		return
	}
	e.Path = paths[0]
	bases := NewSet()
	for _, p := range paths {
		bases.Add(filepath.Base(p))
	}
	e.Label = strings.Join(bases.Sorted(), ", ")
}

// BuildGraph links records in document order: sequential-use edges from the
// last-definer pass, then cross-kernel and file hand-offs.
func BuildGraph(records []*CellRecord) *Graph {
	f := newEdgeFolder()
	linkSequential(f, records)
	inferCrossKernel(f, records)
	return f.graph()
}

// linkSequential emits lastDefiner[s] -> i for every symbol i uses, then
// makes i the last definer of everything it defines.
func linkSequential(f *edgeFolder, records []*CellRecord) {
	lastDefiner := make(map[string]int)
	for _, r := range records {
		for s := range r.Uses {
			if d, ok := lastDefiner[s]; ok {
				f.add(d, r.Index, SequentialUse, s)
			}
		}
		for s := range r.Definitions {
			lastDefiner[s] = r.Index
		}
	}
}
