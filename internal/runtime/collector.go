package runtime

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/risor-io/risor/object"

	"github.com/jward/cellscope/internal/extract"
	"github.com/jward/cellscope/internal/symset"
)

// collector accumulates the sets a kernel script reports for one cell.
// Scripts cannot build Go structs, so each set is fed through a host
// function taking a single string.
type collector struct {
	defs   symset.Set
	uses   symset.Set
	funcs  symset.Set
	calls  symset.Set
	locals symset.Set
	writes symset.Set
	reads  symset.Set
}

func newCollector() *collector {
	return &collector{
		defs:   symset.New(),
		uses:   symset.New(),
		funcs:  symset.New(),
		calls:  symset.New(),
		locals: symset.New(),
		writes: symset.New(),
		reads:  symset.New(),
	}
}

// globals returns the collector host functions:
//
//	define(name), use(name), declare_function(name), call_function(name),
//	local(name), write_path(path), read_path(path)
//
// call_function also records a use. local marks a name bound only inside a
// nested scope; it is removed from uses.
func (c *collector) globals() map[string]any {
	return map[string]any{
		"define":           makeNameFn("define", c.defs),
		"use":              makeNameFn("use", c.uses),
		"declare_function": makeNameFn("declare_function", c.funcs),
		"call_function":    makeNameFn("call_function", c.calls, c.uses),
		"local":            makeNameFn("local", c.locals),
		"write_path":       makePathFn("write_path", c.writes),
		"read_path":        makePathFn("read_path", c.reads),
	}
}

// result returns the collected sets with the per-cell invariants applied.
func (c *collector) result() extract.Result {
	res := extract.Result{
		Definitions: c.defs.Clone(),
		Uses:        c.uses.Minus(c.locals, c.funcs),
		Functions:   c.funcs.Clone(),
		Calls:       c.calls.Clone(),
		Writes:      c.writes.Clone(),
		Reads:       c.reads.Clone(),
	}
	res.Normalize()
	return res
}

func makeNameFn(name string, into ...symset.Set) *object.Builtin {
	return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError(name, 1, len(args))
		}
		s, ok := args[0].(*object.String)
		if !ok {
			return object.Errorf("%s: name must be a string, got %s", name, args[0].Type())
		}
		v := strings.TrimSpace(s.Value())
		if v == "" {
			return object.Nil
		}
		for _, set := range into {
			set.Add(v)
		}
		return object.Nil
	})
}

func makePathFn(name string, into symset.Set) *object.Builtin {
	return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError(name, 1, len(args))
		}
		s, ok := args[0].(*object.String)
		if !ok {
			return object.Errorf("%s: path must be a string, got %s", name, args[0].Type())
		}
		if p, ok := literalPath(s.Value()); ok {
			into.Add(p)
		}
		return object.Nil
	})
}

// literalPath turns the source text of a path argument into a normalized
// path. Surrounding quotes are stripped; anything still holding an
// expansion or interpolation is not a literal, and device files are never
// hand-offs.
func literalPath(raw string) (string, bool) {
	p := strings.TrimSpace(raw)
	if len(p) >= 2 {
		first, last := p[0], p[len(p)-1]
		if first == last && strings.ContainsRune("\"'`", rune(first)) {
			p = p[1 : len(p)-1]
		}
	}
	if p == "" || strings.ContainsAny(p, "$`") {
		return "", false
	}
	p = filepath.Clean(p)
	if strings.HasPrefix(p, "/dev/") {
		return "", false
	}
	return p, true
}
