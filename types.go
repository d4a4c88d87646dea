package cellscope

import (
	"encoding/json"
	"sort"

	"github.com/jward/cellscope/internal/store"
	"github.com/jward/cellscope/internal/symset"
)

// Public aliases for internal types used in the Engine and QueryBuilder API.

type Set = symset.Set
type Store = store.Store
type StoredNotebook = store.Notebook
type StoredCell = store.Cell
type StoredEdge = store.Edge

// NewSet returns a set holding items.
func NewSet(items ...string) Set { return symset.New(items...) }

// EdgeKind tags how a producer cell feeds a consumer cell.
type EdgeKind string

const (
	SequentialUse      EdgeKind = "sequential-use"
	CrossKernelHandoff EdgeKind = "cross-kernel-handoff"
	FileHandoff        EdgeKind = "file-handoff"
)

// kindRank orders edge kinds for deterministic output.
var kindRank = map[EdgeKind]int{
	SequentialUse:      0,
	CrossKernelHandoff: 1,
	FileHandoff:        2,
}

// CellRecord is the analysis of one code cell. Records are built once per
// analysis and rewritten only by the alias pass.
type CellRecord struct {
	Index       int    `json:"index"`
	Kernel      string `json:"kernel"`
	Source      string `json:"source"`
	Definitions Set    `json:"definitions"`
	Uses        Set    `json:"uses"`
	Functions   Set    `json:"functions"`
	Calls       Set    `json:"calls"`
	Writes      Set    `json:"writes"`
	Reads       Set    `json:"reads"`
	Exports     Set    `json:"exports"`
	Imports     Set    `json:"imports"`

	// Failed is set when the cell's analyzer failed and its sets are empty.
	Failed bool `json:"failed,omitempty"`
}

// Edge links a producer cell to a later consumer cell. Symbols holds the
// folded payload; for file hand-offs it holds the paths, Path the first of
// them and Label the final path segments.
type Edge struct {
	Producer int      `json:"producer"`
	Consumer int      `json:"consumer"`
	Kind     EdgeKind `json:"kind"`
	Symbols  Set      `json:"symbols"`
	Path     string   `json:"path,omitempty"`
	Label    string   `json:"label,omitempty"`
}

// Graph is the ordered edge list of one notebook.
type Graph struct {
	Edges []Edge
}

// EdgesInto returns the edges whose consumer is cell.
func (g *Graph) EdgesInto(cell int) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.Consumer == cell {
			out = append(out, e)
		}
	}
	return out
}

// EdgesFrom returns the edges whose producer is cell.
func (g *Graph) EdgesFrom(cell int) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.Producer == cell {
			out = append(out, e)
		}
	}
	return out
}

// Upstream returns every cell that reaches cell through one or more edges,
// sorted ascending.
func (g *Graph) Upstream(cell int) []int {
	into := make(map[int][]int)
	for _, e := range g.Edges {
		into[e.Consumer] = append(into[e.Consumer], e.Producer)
	}
	return closure(cell, func(c int) []int { return into[c] })
}

// closure walks next from start and returns every reached node except start,
// sorted ascending.
func closure(start int, next func(int) []int) []int {
	seen := map[int]bool{start: true}
	queue := []int{start}
	var out []int
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		for _, p := range next(c) {
			if seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, p)
			queue = append(queue, p)
		}
	}
	sort.Ints(out)
	return out
}

// MarshalJSON encodes the graph as its edge array.
func (g Graph) MarshalJSON() ([]byte, error) {
	if g.Edges == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(g.Edges)
}

// UnmarshalJSON decodes an edge array.
func (g *Graph) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &g.Edges)
}

// Capture is the finished, serializable analysis of one notebook.
type Capture struct {
	Notebook      string        `json:"notebook"`
	Hash          string        `json:"hash"`
	DefaultKernel string        `json:"default_kernel"`
	Cells         []*CellRecord `json:"cells"`
	Graph         Graph         `json:"edges"`
}
