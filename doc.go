// Package cellscope reconstructs the cell-level data-dependency graph of a
// multi-kernel computational notebook: which cell produces a value or file
// that a later cell consumes, including hand-offs between cells running in
// different kernel languages.
//
// # Pipeline
//
// A single [Engine.Analyze] call runs four passes over one notebook:
//
//  1. Extract: each code cell is analyzed by the analyzer for its kernel
//     family. Python cells use the local tree-sitter parser and path
//     resolver, statistical kernels (R) are delegated to an external HTTP
//     analyzer, and bash and javascript cells run Risor scripts over their
//     tree-sitter grammars. %put and %get marker lines are collected for
//     every kernel.
//
//  2. Normalize: the alias map rewrites every set of every cell record.
//
//  3. Link: a single pass in document order keeps the last definer of each
//     symbol and emits sequential-use edges.
//
//  4. Infer: explicit %put/%get pairs between different kernels become
//     cross-kernel-handoff edges, and a path read after an earlier cell
//     wrote it becomes a file-handoff edge.
//
// Extraction is syntactic and best effort. A cell that cannot be analyzed
// contributes empty sets; only a notebook that cannot be read or decoded
// fails the call.
//
// # Usage
//
//	e, err := cellscope.New(cellscope.WithStore(".cellscope/index.db"))
//	if err != nil { ... }
//	defer e.Close()
//
//	capture, err := e.AnalyzeFile(ctx, "analysis.ipynb")
//	err = e.Save(capture)
//
//	q := e.Query()
//	producers, err := q.Lineage("analysis.ipynb", 7)
//
// # Query API
//
// The [QueryBuilder] returned by [Engine.Query] reads persisted captures:
//
//   - [QueryBuilder.Cells] lists a notebook's cell records.
//   - [QueryBuilder.Upstream] returns the edges into a cell.
//   - [QueryBuilder.Downstream] returns the edges out of a cell.
//   - [QueryBuilder.Lineage] returns every transitive producer of a cell.
//   - [QueryBuilder.Producers] returns the cells that define a symbol.
//
// # Scripts
//
// Analyzers for additional kernel families live in Risor scripts named
// kernel/{family}.risor, embedded from the scripts directory. Scripts receive
// the cell source, tree-sitter host functions and collector functions; see
// the internal/runtime package for the full set of globals.
package cellscope
