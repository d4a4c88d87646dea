package cellscope

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Golden test format. Cell fields left out of golden.json are not checked.
type goldenFile struct {
	DefaultKernel string       `json:"default_kernel"`
	Cells         []goldenCell `json:"cells"`
	Edges         []goldenEdge `json:"edges"`
}

type goldenCell struct {
	Index       int       `json:"index"`
	Kernel      string    `json:"kernel,omitempty"`
	Definitions *[]string `json:"definitions,omitempty"`
	Uses        *[]string `json:"uses,omitempty"`
	Functions   *[]string `json:"functions,omitempty"`
	Calls       *[]string `json:"calls,omitempty"`
	Writes      *[]string `json:"writes,omitempty"`
	Reads       *[]string `json:"reads,omitempty"`
	Exports     *[]string `json:"exports,omitempty"`
	Imports     *[]string `json:"imports,omitempty"`
	Failed      bool      `json:"failed,omitempty"`
}

type goldenEdge struct {
	Producer int      `json:"producer"`
	Consumer int      `json:"consumer"`
	Kind     string   `json:"kind"`
	Symbols  []string `json:"symbols"`
	Path     string   `json:"path,omitempty"`
	Label    string   `json:"label,omitempty"`
}

// TestGolden walks testdata/notebooks/{case}/ directories and checks each
// notebook's capture against its golden.json.
func TestGolden(t *testing.T) {
	root := filepath.Join("testdata", "notebooks")
	cases, err := os.ReadDir(root)
	if err != nil {
		t.Skip("no testdata/notebooks directory found")
	}

	for _, c := range cases {
		if !c.IsDir() {
			continue
		}
		dir := filepath.Join(root, c.Name())
		nbPath := filepath.Join(dir, "notebook.ipynb")
		goldenPath := filepath.Join(dir, "golden.json")
		if _, err := os.Stat(goldenPath); err != nil {
			continue
		}
		t.Run(c.Name(), func(t *testing.T) {
			runGoldenTest(t, nbPath, goldenPath)
		})
	}
}

func runGoldenTest(t *testing.T, nbPath, goldenPath string) {
	t.Helper()

	goldenData, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	var golden goldenFile
	require.NoError(t, json.Unmarshal(goldenData, &golden))

	e := newTestEngine(t)
	capture, err := e.AnalyzeFile(context.Background(), nbPath)
	require.NoError(t, err)

	if golden.DefaultKernel != "" {
		assert.Equal(t, golden.DefaultKernel, capture.DefaultKernel)
	}

	for _, want := range golden.Cells {
		require.Less(t, want.Index, len(capture.Cells), "golden cell %d out of range", want.Index)
		got := capture.Cells[want.Index]
		assert.Equal(t, want.Index, got.Index)
		if want.Kernel != "" {
			assert.Equal(t, want.Kernel, got.Kernel, "cell %d kernel", want.Index)
		}
		checkSet(t, want.Index, "definitions", want.Definitions, got.Definitions)
		checkSet(t, want.Index, "uses", want.Uses, got.Uses)
		checkSet(t, want.Index, "functions", want.Functions, got.Functions)
		checkSet(t, want.Index, "calls", want.Calls, got.Calls)
		checkSet(t, want.Index, "writes", want.Writes, got.Writes)
		checkSet(t, want.Index, "reads", want.Reads, got.Reads)
		checkSet(t, want.Index, "exports", want.Exports, got.Exports)
		checkSet(t, want.Index, "imports", want.Imports, got.Imports)
		assert.Equal(t, want.Failed, got.Failed, "cell %d failed", want.Index)
	}

	gotEdges := make([]goldenEdge, 0, len(capture.Graph.Edges))
	for _, e := range capture.Graph.Edges {
		gotEdges = append(gotEdges, goldenEdge{
			Producer: e.Producer,
			Consumer: e.Consumer,
			Kind:     string(e.Kind),
			Symbols:  e.Symbols.Sorted(),
			Path:     e.Path,
			Label:    e.Label,
		})
	}
	assert.Equal(t, golden.Edges, gotEdges)
	assertGraphInvariants(t, capture)
}

func checkSet(t *testing.T, idx int, field string, want *[]string, got Set) {
	t.Helper()
	if want == nil {
		return
	}
	assert.Equal(t, *want, got.Sorted(), "cell %d %s", idx, field)
}

// assertGraphInvariants checks the properties every capture must hold.
func assertGraphInvariants(t *testing.T, c *Capture) {
	t.Helper()
	seen := make(map[edgeKey]bool)
	for _, e := range c.Graph.Edges {
		assert.Less(t, e.Producer, e.Consumer, "edge %d->%d %s is not forward", e.Producer, e.Consumer, e.Kind)
		k := edgeKey{e.Producer, e.Consumer, e.Kind}
		assert.False(t, seen[k], "duplicate edge %d->%d %s", e.Producer, e.Consumer, e.Kind)
		seen[k] = true
		assert.Positive(t, e.Symbols.Len(), "edge %d->%d %s has an empty payload", e.Producer, e.Consumer, e.Kind)
	}
	for _, r := range c.Cells {
		for f := range r.Functions {
			assert.True(t, r.Definitions.Has(f), "cell %d: function %s not a definition", r.Index, f)
		}
		assert.Empty(t, r.Uses.Intersect(r.Definitions).Sorted(), "cell %d uses its own definitions", r.Index)
		assert.Empty(t, r.Calls.Minus(r.Uses).Sorted(), "cell %d calls outside uses", r.Index)
	}
}
