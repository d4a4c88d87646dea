package cellscope

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/cellscope/internal/store"
)

const sosNotebook = `{
 "cells": [
  {"cell_type": "markdown", "metadata": {}, "source": "# title"},
  {"cell_type": "code", "metadata": {"kernel": "R"}, "outputs": [], "source": ["x <- 1\n", "y <- x"]},
  {"cell_type": "code", "metadata": {}, "outputs": [], "source": "print(1)"},
  {"cell_type": "code", "metadata": {"kernel": ""}, "outputs": [], "source": null}
 ],
 "metadata": {"kernelspec": {"name": "sos"}},
 "nbformat": 4,
 "nbformat_minor": 2
}`

func TestParseNotebook(t *testing.T) {
	t.Parallel()
	nb, err := ParseNotebook(strings.NewReader(sosNotebook))
	require.NoError(t, err)

	assert.Equal(t, "sos", nb.DefaultKernel)
	assert.Equal(t, store.ContentHash([]byte(sosNotebook)), nb.Hash)
	require.Len(t, nb.Cells, 3)

	assert.Equal(t, NotebookCell{Index: 0, Kernel: "R", Source: "x <- 1\ny <- x"}, nb.Cells[0])
	assert.Equal(t, NotebookCell{Index: 1, Kernel: "sos", Source: "print(1)"}, nb.Cells[1])
	assert.Equal(t, NotebookCell{Index: 2, Kernel: "sos", Source: ""}, nb.Cells[2])
}

func TestParseNotebook_DefaultKernel(t *testing.T) {
	t.Parallel()
	nb, err := ParseNotebook(strings.NewReader(`{"cells": [{"cell_type": "code", "source": "a = 1"}], "metadata": {}, "nbformat": 4}`))
	require.NoError(t, err)
	require.Len(t, nb.Cells, 1)
	assert.Equal(t, DefaultKernel, nb.DefaultKernel)
	assert.Equal(t, DefaultKernel, nb.Cells[0].Kernel)
}

func TestParseNotebook_ContainerFailures(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"not json":       "{cells",
		"old format":     `{"nbformat": 3, "worksheets": []}`,
		"bad source":     `{"cells": [{"cell_type": "code", "source": 42}], "nbformat": 4}`,
		"wrong top type": `[1, 2]`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseNotebook(strings.NewReader(doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrNotebook)
		})
	}
}

func TestReadNotebook(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nb.ipynb")
	require.NoError(t, os.WriteFile(path, []byte(sosNotebook), 0o644))

	nb, err := ReadNotebook(path)
	require.NoError(t, err)
	assert.Equal(t, path, nb.Path)
	assert.Len(t, nb.Cells, 3)
}

func TestReadNotebook_Missing(t *testing.T) {
	t.Parallel()
	_, err := ReadNotebook(filepath.Join(t.TempDir(), "missing.ipynb"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotebook)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
