package main

import "github.com/jward/cellscope"

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command string `json:"command"`
	Results any    `json:"results"`
	Error   string `json:"error,omitempty"`
}

// CLICell is a JSON-friendly persisted cell record.
type CLICell struct {
	Index       int      `json:"index"`
	Kernel      string   `json:"kernel"`
	Definitions []string `json:"definitions"`
	Uses        []string `json:"uses"`
	Functions   []string `json:"functions"`
	Calls       []string `json:"calls"`
	Writes      []string `json:"writes"`
	Reads       []string `json:"reads"`
	Exports     []string `json:"exports"`
	Imports     []string `json:"imports"`
}

// CLIEdge is a JSON-friendly persisted dependency edge.
type CLIEdge struct {
	Producer int      `json:"producer"`
	Consumer int      `json:"consumer"`
	Kind     string   `json:"kind"`
	Symbols  []string `json:"symbols"`
	Path     string   `json:"path,omitempty"`
	Label    string   `json:"label,omitempty"`
}

func cellsToCLI(cells []*cellscope.StoredCell) []CLICell {
	out := make([]CLICell, 0, len(cells))
	for _, c := range cells {
		out = append(out, CLICell{
			Index:       c.Index,
			Kernel:      c.Kernel,
			Definitions: nonNil(c.Definitions),
			Uses:        nonNil(c.Uses),
			Functions:   nonNil(c.Functions),
			Calls:       nonNil(c.Calls),
			Writes:      nonNil(c.Writes),
			Reads:       nonNil(c.Reads),
			Exports:     nonNil(c.Exports),
			Imports:     nonNil(c.Imports),
		})
	}
	return out
}

func edgesToCLI(edges []*cellscope.StoredEdge) []CLIEdge {
	out := make([]CLIEdge, 0, len(edges))
	for _, e := range edges {
		out = append(out, CLIEdge{
			Producer: e.Producer,
			Consumer: e.Consumer,
			Kind:     e.Kind,
			Symbols:  nonNil(e.Symbols),
			Path:     e.Path,
			Label:    e.Label,
		})
	}
	return out
}

// nonNil keeps empty sets as [] rather than null in JSON output.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
