package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/cellscope"
)

func TestFindRepoRoot_DirectGitDir(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))

	assert.Equal(t, root, findRepoRoot(root))
}

func TestFindRepoRoot_NestedSubdirectory(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	deep := filepath.Join(root, "notebooks", "2024")
	require.NoError(t, os.MkdirAll(deep, 0o755))

	assert.Equal(t, root, findRepoRoot(deep))
}

func TestFindRepoRoot_NoGitAncestor(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	assert.Equal(t, dir, findRepoRoot(dir))
}

func TestResolveDBPath_Default(t *testing.T) {
	assert.Equal(t, filepath.Join("/repo", ".cellscope", "index.db"), resolveDBPath("/repo"))
}

func TestParseIntArg(t *testing.T) {
	t.Parallel()
	n, err := parseIntArg("3", "cell")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = parseIntArg("-1", "cell")
	assert.ErrorContains(t, err, "non-negative")

	_, err = parseIntArg("three", "cell")
	assert.ErrorContains(t, err, `invalid cell "three"`)
}

func TestValidateFormat(t *testing.T) {
	t.Parallel()
	assert.NoError(t, validateFormat("json"))
	assert.NoError(t, validateFormat("text"))
	assert.ErrorContains(t, validateFormat("yaml"), "json or text")
}

func TestMergeAliases(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "aliases.yaml")
	require.NoError(t, os.WriteFile(path, []byte("aliases:\n  df_raw: frame\n  plt: pyplot\n"), 0o644))

	merged, err := mergeAliases(map[string]string{"df_raw": "df", "np": "numpy"}, path)
	require.NoError(t, err)
	assert.Equal(t, cellscope.AliasMap{"df_raw": "frame", "np": "numpy", "plt": "pyplot"}, merged)

	merged, err = mergeAliases(map[string]string{"np": "numpy"}, "")
	require.NoError(t, err)
	assert.Equal(t, cellscope.AliasMap{"np": "numpy"}, merged)

	_, err = mergeAliases(nil, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestFirstNonEmpty(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}

func TestNewLogger_Levels(t *testing.T) {
	t.Parallel()
	var quiet, verbose bytes.Buffer
	newLogger(&quiet, false).Debug("hidden")
	newLogger(&verbose, true).Debug("shown")

	assert.Empty(t, quiet.String())
	assert.Contains(t, verbose.String(), "shown")
}

func TestFormatEdgesText(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	formatEdgesText(&buf, []CLIEdge{
		{Producer: 0, Consumer: 1, Kind: "sequential-use", Symbols: []string{"df", "model"}},
		{Producer: 1, Consumer: 2, Kind: "file-handoff", Symbols: []string{"/tmp/a.csv"}, Label: "a.csv"},
	})
	out := buf.String()
	assert.Contains(t, out, "FROM")
	assert.Contains(t, out, "df,model")
	assert.Contains(t, out, "a.csv")
	assert.NotContains(t, out, "/tmp/a.csv")
}

func TestFormatCapturesText(t *testing.T) {
	t.Parallel()
	rec := &cellscope.CellRecord{
		Index:       0,
		Kernel:      "python3",
		Definitions: cellscope.NewSet("x"),
		Uses:        cellscope.NewSet(),
		Functions:   cellscope.NewSet(),
		Calls:       cellscope.NewSet(),
		Writes:      cellscope.NewSet(),
		Reads:       cellscope.NewSet(),
		Exports:     cellscope.NewSet(),
		Imports:     cellscope.NewSet(),
		Failed:      true,
	}
	var buf bytes.Buffer
	formatCapturesText(&buf, []*cellscope.Capture{{Notebook: "a.ipynb", DefaultKernel: "python3", Cells: []*cellscope.CellRecord{rec}}})
	out := buf.String()
	assert.Contains(t, out, "Notebook: a.ipynb")
	assert.Contains(t, out, "unparsed")
}

func TestCellsToCLI_EmptySetsAreArrays(t *testing.T) {
	t.Parallel()
	out := cellsToCLI([]*cellscope.StoredCell{{Index: 2, Kernel: "ir", Definitions: []string{"m"}}})
	require.Len(t, out, 1)
	assert.Equal(t, []string{"m"}, out[0].Definitions)
	assert.NotNil(t, out[0].Uses)
	assert.Empty(t, out[0].Uses)
}

func TestDefaultFormat_NotATerminal(t *testing.T) {
	t.Parallel()
	f, err := os.Create(filepath.Join(t.TempDir(), "out"))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, "json", defaultFormat(f))
}

func TestNewTracerProvider(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	tp, err := newTracerProvider(&buf)
	require.NoError(t, err)

	_, span := tp.Tracer("test").Start(context.Background(), "cellscope.Analyze")
	span.End()
	require.NoError(t, tp.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "cellscope.Analyze")
}
