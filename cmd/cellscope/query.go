package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jward/cellscope"
	"github.com/jward/cellscope/internal/store"
)

var cellsCmd = &cobra.Command{
	Use:   "cells <notebook>",
	Short: "List the persisted cell records of a notebook",
	Args:  cobra.ExactArgs(1),
	RunE:  runCells,
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query persisted dependency graphs",
	Long:  "Run queries against notebooks saved with 'cellscope analyze --save'. Cell indices are 0-based positions among code cells.",
}

var upstreamCmd = &cobra.Command{
	Use:   "upstream <notebook> <cell>",
	Short: "List the edges into a cell",
	Args:  cobra.ExactArgs(2),
	RunE:  runUpstream,
}

var downstreamCmd = &cobra.Command{
	Use:   "downstream <notebook> <cell>",
	Short: "List the edges out of a cell",
	Args:  cobra.ExactArgs(2),
	RunE:  runDownstream,
}

var lineageCmd = &cobra.Command{
	Use:   "lineage <notebook> <cell>",
	Short: "List every cell a cell transitively depends on",
	Args:  cobra.ExactArgs(2),
	RunE:  runLineage,
}

var producersCmd = &cobra.Command{
	Use:   "producers <notebook> <symbol>",
	Short: "List the cells that define a symbol",
	Args:  cobra.ExactArgs(2),
	RunE:  runProducers,
}

func init() {
	queryCmd.AddCommand(upstreamCmd)
	queryCmd.AddCommand(downstreamCmd)
	queryCmd.AddCommand(lineageCmd)
	queryCmd.AddCommand(producersCmd)
}

func runCells(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return outputError("cells", err)
	}
	defer s.Close()

	nb, err := resolveFilePath(args[0])
	if err != nil {
		return outputError("cells", err)
	}
	cells, err := cellscope.NewQueryBuilder(s).Cells(nb)
	if err != nil {
		return outputError("cells", err)
	}
	return outputResult(CLIResult{Command: "cells", Results: cellsToCLI(cells)})
}

func runUpstream(cmd *cobra.Command, args []string) error {
	return runEdgeQuery("upstream", args, (*cellscope.QueryBuilder).Upstream)
}

func runDownstream(cmd *cobra.Command, args []string) error {
	return runEdgeQuery("downstream", args, (*cellscope.QueryBuilder).Downstream)
}

func runEdgeQuery(command string, args []string, query func(*cellscope.QueryBuilder, string, int) ([]*cellscope.StoredEdge, error)) error {
	s, err := openStore()
	if err != nil {
		return outputError(command, err)
	}
	defer s.Close()

	nb, cell, err := notebookCellArgs(args)
	if err != nil {
		return outputError(command, err)
	}
	edges, err := query(cellscope.NewQueryBuilder(s), nb, cell)
	if err != nil {
		return outputError(command, err)
	}
	return outputResult(CLIResult{Command: command, Results: edgesToCLI(edges)})
}

func runLineage(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return outputError("lineage", err)
	}
	defer s.Close()

	nb, cell, err := notebookCellArgs(args)
	if err != nil {
		return outputError("lineage", err)
	}
	cells, err := cellscope.NewQueryBuilder(s).Lineage(nb, cell)
	if err != nil {
		return outputError("lineage", err)
	}
	return outputResult(CLIResult{Command: "lineage", Results: cellsToCLI(cells)})
}

func runProducers(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return outputError("producers", err)
	}
	defer s.Close()

	nb, err := resolveFilePath(args[0])
	if err != nil {
		return outputError("producers", err)
	}
	cells, err := cellscope.NewQueryBuilder(s).Producers(nb, args[1])
	if err != nil {
		return outputError("producers", err)
	}
	return outputResult(CLIResult{Command: "producers", Results: cellsToCLI(cells)})
}

// --- Helpers ---

// openStore opens the Store from the --db flag path (or default).
func openStore() (*store.Store, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting cwd: %w", err)
	}
	dbPath := resolveDBPath(findRepoRoot(cwd))

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("database not found: %s (run 'cellscope analyze --save' first)", dbPath)
	}
	return store.NewStore(dbPath)
}

// resolveFilePath converts a notebook argument to an absolute path, the
// form analyze saves notebooks under.
func resolveFilePath(file string) (string, error) {
	if filepath.IsAbs(file) {
		return file, nil
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", fmt.Errorf("resolving file path %q: %w", file, err)
	}
	return abs, nil
}

// parseIntArg parses a positional argument as an integer with a clear error.
func parseIntArg(value, name string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be a non-negative integer", name, value)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid %s %q: must be non-negative", name, value)
	}
	return n, nil
}

func notebookCellArgs(args []string) (string, int, error) {
	nb, err := resolveFilePath(args[0])
	if err != nil {
		return "", 0, err
	}
	cell, err := parseIntArg(args[1], "cell")
	if err != nil {
		return "", 0, err
	}
	return nb, cell, nil
}

// outputResult marshals a CLIResult to stdout in the selected format.
func outputResult(result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(result)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	result := CLIResult{
		Command: command,
		Error:   err.Error(),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
	return err
}
