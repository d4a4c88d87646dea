package cellscope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jward/cellscope/internal/store"
)

// ErrNotebook marks a notebook container that cannot be read or decoded.
// It is the only error that fails an analysis.
var ErrNotebook = errors.New("cellscope: unreadable notebook")

// DefaultKernel is used when neither a cell nor the notebook names a kernel.
const DefaultKernel = "python3"

// Notebook is a decoded notebook reduced to its code cells.
type Notebook struct {
	Path          string
	Hash          string
	DefaultKernel string
	Cells         []NotebookCell
}

// NotebookCell is one code cell. Index counts code cells only.
type NotebookCell struct {
	Index  int
	Kernel string
	Source string
}

type rawNotebook struct {
	NBFormat int       `json:"nbformat"`
	Metadata rawNBMeta `json:"metadata"`
	Cells    []rawCell `json:"cells"`
}

type rawNBMeta struct {
	Kernelspec struct {
		Name string `json:"name"`
	} `json:"kernelspec"`
}

type rawCell struct {
	CellType string          `json:"cell_type"`
	Source   json.RawMessage `json:"source"`
	Metadata struct {
		Kernel string `json:"kernel"`
	} `json:"metadata"`
}

// ReadNotebook reads and decodes the notebook at path.
func ReadNotebook(path string) (*Notebook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cellscope: read notebook %s: %w: %w", path, ErrNotebook, err)
	}
	nb, err := decodeNotebook(data)
	if err != nil {
		return nil, fmt.Errorf("cellscope: decode notebook %s: %w: %w", path, ErrNotebook, err)
	}
	nb.Path = path
	return nb, nil
}

// ParseNotebook decodes a notebook from r. The returned notebook has no Path.
func ParseNotebook(r io.Reader) (*Notebook, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("cellscope: read notebook: %w: %w", ErrNotebook, err)
	}
	nb, err := decodeNotebook(data)
	if err != nil {
		return nil, fmt.Errorf("cellscope: decode notebook: %w: %w", ErrNotebook, err)
	}
	return nb, nil
}

func decodeNotebook(data []byte) (*Notebook, error) {
	var raw rawNotebook
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if raw.NBFormat != 0 && raw.NBFormat < 4 {
		return nil, fmt.Errorf("unsupported nbformat %d", raw.NBFormat)
	}

	nb := &Notebook{
		Hash:          store.ContentHash(data),
		DefaultKernel: raw.Metadata.Kernelspec.Name,
	}
	if nb.DefaultKernel == "" {
		nb.DefaultKernel = DefaultKernel
	}

	for i, c := range raw.Cells {
		if c.CellType != "code" {
			continue
		}
		src, err := cellSource(c.Source)
		if err != nil {
			return nil, fmt.Errorf("cell %d: %w", i, err)
		}
		kernel := c.Metadata.Kernel
		if kernel == "" {
			kernel = nb.DefaultKernel
		}
		nb.Cells = append(nb.Cells, NotebookCell{
			Index:  len(nb.Cells),
			Kernel: kernel,
			Source: src,
		})
	}
	return nb, nil
}

// cellSource accepts the two nbformat encodings of source: one string or a
// list of line strings.
func cellSource(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var lines []string
	if err := json.Unmarshal(raw, &lines); err != nil {
		return "", fmt.Errorf("source: %w", err)
	}
	return strings.Join(lines, ""), nil
}
