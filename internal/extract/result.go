// Package extract performs per-cell static analysis of Python notebook cells:
// bindings and reads, declared and called functions, and the literal file
// paths that the cell writes and reads.
package extract

import (
	"errors"

	"github.com/jward/cellscope/internal/symset"
)

// ErrSyntax is returned when a cell's source does not parse cleanly.
// Callers treat it as a contained, per-cell failure.
var ErrSyntax = errors.New("extract: source contains syntax errors")

// Result is the partial cell record produced by local or delegated analysis.
type Result struct {
	Definitions symset.Set
	Uses        symset.Set
	Functions   symset.Set
	Calls       symset.Set
	Writes      symset.Set
	Reads       symset.Set
}

// NewResult returns a Result with all sets allocated and empty.
func NewResult() Result {
	return Result{
		Definitions: symset.New(),
		Uses:        symset.New(),
		Functions:   symset.New(),
		Calls:       symset.New(),
		Writes:      symset.New(),
		Reads:       symset.New(),
	}
}

// IsEmpty reports whether every set is empty.
func (r Result) IsEmpty() bool {
	return r.Definitions.Len() == 0 && r.Uses.Len() == 0 && r.Functions.Len() == 0 &&
		r.Calls.Len() == 0 && r.Writes.Len() == 0 && r.Reads.Len() == 0
}

// Normalize enforces the per-cell invariants: declared functions are
// definitions, nothing defined in the cell is also a use, and calls are a
// subset of uses.
func (r *Result) Normalize() {
	if r.Definitions == nil {
		r.Definitions = symset.New()
	}
	if r.Functions == nil {
		r.Functions = symset.New()
	}
	if r.Writes == nil {
		r.Writes = symset.New()
	}
	if r.Reads == nil {
		r.Reads = symset.New()
	}
	r.Definitions.AddAll(r.Functions)
	r.Uses = r.Uses.Minus(r.Definitions)
	r.Calls = r.Calls.Intersect(r.Uses)
}
