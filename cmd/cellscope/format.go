package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/jward/cellscope"
)

// formatCapturesText prints each capture as a cell table followed by an
// edge table.
func formatCapturesText(w io.Writer, captures []*cellscope.Capture) {
	for i, c := range captures {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "Notebook: %s\n", c.Notebook)
		fmt.Fprintf(w, "Default kernel: %s\n", c.DefaultKernel)
		fmt.Fprintln(w)

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "CELL\tKERNEL\tDEFINES\tUSES\tWRITES\tREADS\tNOTE")
		for _, r := range c.Cells {
			note := ""
			if r.Failed {
				note = "unparsed"
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
				r.Index, r.Kernel,
				joinNames(r.Definitions.Sorted()), joinNames(r.Uses.Sorted()),
				joinNames(r.Writes.Sorted()), joinNames(r.Reads.Sorted()),
				note)
		}
		tw.Flush()
		fmt.Fprintln(w)

		edges := make([]CLIEdge, 0, len(c.Graph.Edges))
		for _, e := range c.Graph.Edges {
			edges = append(edges, CLIEdge{
				Producer: e.Producer,
				Consumer: e.Consumer,
				Kind:     string(e.Kind),
				Symbols:  e.Symbols.Sorted(),
				Label:    e.Label,
			})
		}
		formatEdgesText(w, edges)
	}
}

// formatCellsText formats CLICell results as aligned columns.
func formatCellsText(w io.Writer, cells []CLICell) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CELL\tKERNEL\tDEFINES\tUSES\tWRITES\tREADS")
	for _, c := range cells {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			c.Index, c.Kernel,
			joinNames(c.Definitions), joinNames(c.Uses),
			joinNames(c.Writes), joinNames(c.Reads))
	}
	tw.Flush()
}

// formatEdgesText formats CLIEdge results as aligned columns. File edges
// show their label.
func formatEdgesText(w io.Writer, edges []CLIEdge) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FROM\tTO\tKIND\tSYMBOLS")
	for _, e := range edges {
		symbols := joinNames(e.Symbols)
		if e.Label != "" {
			symbols = e.Label
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\n", e.Producer, e.Consumer, e.Kind, symbols)
	}
	tw.Flush()
}

func joinNames(names []string) string {
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ",")
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type. It writes to os.Stdout.
func outputResultText(result CLIResult) error {
	w := io.Writer(os.Stdout)

	switch v := result.Results.(type) {
	case []*cellscope.Capture:
		formatCapturesText(w, v)
	case []CLICell:
		formatCellsText(w, v)
	case []CLIEdge:
		formatEdgesText(w, v)
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
