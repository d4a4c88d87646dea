package store

import "time"

type Notebook struct {
	ID            int64
	Path          string
	Hash          string
	DefaultKernel string
	CellCount     int
	AnalyzedAt    time.Time
}

// Cell is a persisted cell record. Set fields are sorted.
type Cell struct {
	ID          int64
	NotebookID  int64
	Index       int
	Kernel      string
	Source      string
	Definitions []string
	Uses        []string
	Functions   []string
	Calls       []string
	Writes      []string
	Reads       []string
	Exports     []string
	Imports     []string
}

type Edge struct {
	ID         int64
	NotebookID int64
	Producer   int
	Consumer   int
	Kind       string
	Symbols    []string
	Path       string
	Label      string
}
