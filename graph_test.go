package cellscope

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cell builds a record with empty sets; tests fill the sets they need.
func cell(idx int, kernel string) *CellRecord {
	return &CellRecord{
		Index:       idx,
		Kernel:      kernel,
		Definitions: NewSet(),
		Uses:        NewSet(),
		Functions:   NewSet(),
		Calls:       NewSet(),
		Writes:      NewSet(),
		Reads:       NewSet(),
		Exports:     NewSet(),
		Imports:     NewSet(),
	}
}

func cells(n int, kernel string) []*CellRecord {
	out := make([]*CellRecord, n)
	for i := range out {
		out[i] = cell(i, kernel)
	}
	return out
}

type edgeSummary struct {
	Producer, Consumer int
	Kind               EdgeKind
	Symbols            []string
}

func summarize(g *Graph) []edgeSummary {
	out := make([]edgeSummary, 0, len(g.Edges))
	for _, e := range g.Edges {
		out = append(out, edgeSummary{e.Producer, e.Consumer, e.Kind, e.Symbols.Sorted()})
	}
	return out
}

// =============================================================================
// Sequential use
// =============================================================================

func TestBuildGraph_RedefinitionCorrectness(t *testing.T) {
	t.Parallel()
	rs := cells(8, "python3")
	rs[2].Definitions.Add("x")
	rs[5].Definitions.Add("x")
	rs[7].Uses.Add("x")

	g := BuildGraph(rs)
	assert.Equal(t, []edgeSummary{{5, 7, SequentialUse, []string{"x"}}}, summarize(g))
}

func TestBuildGraph_EdgeFolding(t *testing.T) {
	t.Parallel()
	rs := cells(3, "python3")
	rs[0].Definitions.Add("a", "b")
	rs[1].Definitions.Add("c")
	rs[2].Uses.Add("a", "b", "c")

	g := BuildGraph(rs)
	assert.Equal(t, []edgeSummary{
		{0, 2, SequentialUse, []string{"a", "b"}},
		{1, 2, SequentialUse, []string{"c"}},
	}, summarize(g))
}

func TestBuildGraph_UseBeforeDefinitionHasNoEdge(t *testing.T) {
	t.Parallel()
	rs := cells(2, "python3")
	rs[0].Uses.Add("later")
	rs[1].Definitions.Add("later")

	assert.Empty(t, BuildGraph(rs).Edges)
}

// =============================================================================
// Explicit hand-offs
// =============================================================================

func TestBuildGraph_CrossKernelScenario(t *testing.T) {
	t.Parallel()
	rs := []*CellRecord{cell(0, "A"), cell(1, "A"), cell(2, "A"), cell(3, "B")}
	rs[0].Exports.Add("df")
	rs[1].Imports.Add("df")
	rs[3].Imports.Add("df")

	g := BuildGraph(rs)
	assert.Equal(t, []edgeSummary{{0, 3, CrossKernelHandoff, []string{"df"}}}, summarize(g))
}

func TestBuildGraph_CrossKernelFanOut(t *testing.T) {
	t.Parallel()
	rs := []*CellRecord{cell(0, "python3"), cell(1, "ir"), cell(2, "bash"), cell(3, "ir")}
	rs[0].Exports.Add("df", "meta")
	rs[1].Imports.Add("df")
	rs[2].Imports.Add("meta", "other")
	rs[3].Imports.Add("df", "meta")

	g := BuildGraph(rs)
	assert.Equal(t, []edgeSummary{
		{0, 1, CrossKernelHandoff, []string{"df"}},
		{0, 2, CrossKernelHandoff, []string{"meta"}},
		{0, 3, CrossKernelHandoff, []string{"df", "meta"}},
	}, summarize(g))
}

// =============================================================================
// File hand-offs
// =============================================================================

func TestBuildGraph_FileHandoffScenario(t *testing.T) {
	t.Parallel()
	rs := cells(5, "python3")
	rs[1].Writes.Add("/tmp/out.csv")
	rs[2].Writes.Add("/tmp/other.csv")
	rs[4].Reads.Add("/tmp/out.csv")

	g := BuildGraph(rs)
	require.Len(t, g.Edges, 1)
	e := g.Edges[0]
	assert.Equal(t, 1, e.Producer)
	assert.Equal(t, 4, e.Consumer)
	assert.Equal(t, FileHandoff, e.Kind)
	assert.Equal(t, []string{"/tmp/out.csv"}, e.Symbols.Sorted())
	assert.Equal(t, "/tmp/out.csv", e.Path)
	assert.Equal(t, "out.csv", e.Label)

	assert.Empty(t, g.EdgesInto(2))
	assert.Empty(t, g.EdgesFrom(2))
}

func TestBuildGraph_MostRecentWriterWins(t *testing.T) {
	t.Parallel()
	rs := cells(3, "python3")
	rs[0].Writes.Add("data.csv")
	rs[1].Writes.Add("data.csv")
	rs[2].Reads.Add("data.csv")

	assert.Equal(t, []edgeSummary{{1, 2, FileHandoff, []string{"data.csv"}}}, summarize(BuildGraph(rs)))
}

func TestBuildGraph_SameCellWriteAndRead(t *testing.T) {
	t.Parallel()
	rs := cells(2, "python3")
	rs[1].Writes.Add("tmp.csv")
	rs[1].Reads.Add("tmp.csv")

	assert.Empty(t, BuildGraph(rs).Edges)
}

func TestBuildGraph_SameCellRewriteShadowsEarlierWriter(t *testing.T) {
	t.Parallel()
	rs := cells(3, "python3")
	rs[0].Writes.Add("state.csv")
	rs[2].Reads.Add("state.csv")
	rs[2].Writes.Add("state.csv")

	assert.Empty(t, BuildGraph(rs).Edges)
}

func TestBuildGraph_RewrittenPathFeedsLaterReader(t *testing.T) {
	t.Parallel()
	rs := cells(3, "python3")
	rs[0].Writes.Add("state.csv")
	rs[1].Reads.Add("state.csv")
	rs[1].Writes.Add("state.csv")
	rs[2].Reads.Add("state.csv")

	assert.Equal(t, []edgeSummary{{1, 2, FileHandoff, []string{"state.csv"}}}, summarize(BuildGraph(rs)))
}

func TestBuildGraph_FileHandoffFolding(t *testing.T) {
	t.Parallel()
	rs := cells(2, "python3")
	rs[0].Writes.Add("/out/b.csv", "/out/a.csv")
	rs[1].Reads.Add("/out/a.csv", "/out/b.csv")

	g := BuildGraph(rs)
	require.Len(t, g.Edges, 1)
	assert.Equal(t, []string{"/out/a.csv", "/out/b.csv"}, g.Edges[0].Symbols.Sorted())
	assert.Equal(t, "/out/a.csv", g.Edges[0].Path)
	assert.Equal(t, "a.csv, b.csv", g.Edges[0].Label)
}

// =============================================================================
// Ordering and helpers
// =============================================================================

func TestBuildGraph_OrderAndInvariants(t *testing.T) {
	t.Parallel()
	rs := []*CellRecord{cell(0, "python3"), cell(1, "ir"), cell(2, "python3")}
	rs[0].Definitions.Add("df")
	rs[0].Exports.Add("df")
	rs[0].Writes.Add("f.csv")
	rs[1].Imports.Add("df")
	rs[1].Reads.Add("f.csv")
	rs[1].Uses.Add("df")
	rs[2].Uses.Add("df")

	g := BuildGraph(rs)
	assert.Equal(t, []edgeSummary{
		{0, 1, SequentialUse, []string{"df"}},
		{0, 1, CrossKernelHandoff, []string{"df"}},
		{0, 1, FileHandoff, []string{"f.csv"}},
		{0, 2, SequentialUse, []string{"df"}},
	}, summarize(g))
	assertGraphInvariants(t, &Capture{Cells: rs, Graph: *g})
}

func TestEdgeFolder_DropsBackwardAndSelfEdges(t *testing.T) {
	t.Parallel()
	f := newEdgeFolder()
	f.add(2, 1, SequentialUse, "x")
	f.add(3, 3, FileHandoff, "p")
	f.add(1, 2, SequentialUse, "x")
	f.add(1, 2, SequentialUse, "y")

	assert.Equal(t, []edgeSummary{{1, 2, SequentialUse, []string{"x", "y"}}}, summarize(f.graph()))
}

func TestGraph_Lookups(t *testing.T) {
	t.Parallel()
	g := &Graph{Edges: []Edge{
		{Producer: 0, Consumer: 1, Kind: SequentialUse},
		{Producer: 1, Consumer: 3, Kind: SequentialUse},
		{Producer: 2, Consumer: 3, Kind: FileHandoff},
		{Producer: 3, Consumer: 4, Kind: CrossKernelHandoff},
	}}

	assert.Len(t, g.EdgesInto(3), 2)
	assert.Len(t, g.EdgesFrom(1), 1)
	assert.Equal(t, []int{0, 1, 2, 3}, g.Upstream(4))
	assert.Equal(t, []int{0}, g.Upstream(1))
	assert.Empty(t, g.Upstream(0))
}

func TestCapture_JSONShape(t *testing.T) {
	t.Parallel()
	rs := cells(2, "python3")
	rs[0].Definitions.Add("b", "a")
	rs[1].Uses.Add("a")
	c := &Capture{Notebook: "nb.ipynb", Hash: "h", DefaultKernel: "python3", Cells: rs, Graph: *BuildGraph(rs)}

	data, err := json.Marshal(c)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "nb.ipynb", decoded["notebook"])
	assert.Equal(t, "python3", decoded["default_kernel"])

	cellsJSON := decoded["cells"].([]any)
	first := cellsJSON[0].(map[string]any)
	assert.Equal(t, []any{"a", "b"}, first["definitions"])
	assert.Equal(t, []any{}, first["uses"])
	assert.NotContains(t, first, "failed")

	edges := decoded["edges"].([]any)
	require.Len(t, edges, 1)
	edge := edges[0].(map[string]any)
	assert.Equal(t, "sequential-use", edge["kind"])
	assert.NotContains(t, edge, "path")

	var back Capture
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, c.Graph.Edges[0].Symbols.Sorted(), back.Graph.Edges[0].Symbols.Sorted())
	assert.True(t, back.Cells[0].Definitions.Has("a"))
}

func TestCapture_EmptyGraphEncodesArray(t *testing.T) {
	t.Parallel()
	data, err := json.Marshal(&Capture{Notebook: "x"})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"edges":[]`)
}
