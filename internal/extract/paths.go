package extract

import (
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/cellscope/internal/symset"
)

// openFuncs are open-style calls: path first, optional mode second.
var openFuncs = map[string]bool{
	"open":        true,
	"io.open":     true,
	"gzip.open":   true,
	"bz2.open":    true,
	"lzma.open":   true,
	"codecs.open": true,
}

// writerMethods and readerMethods are keyed by their first positional argument.
var writerMethods = map[string]bool{
	"to_csv":           true,
	"to_parquet":       true,
	"to_netcdf":        true,
	"to_json":          true,
	"to_feather":       true,
	"to_excel":         true,
	"to_pickle":        true,
	"to_hdf":           true,
	"to_zarr":          true,
	"to_stata":         true,
	"to_file":          true,
	"savefig":          true,
	"save":             true,
	"savez":            true,
	"savez_compressed": true,
	"savetxt":          true,
	"write_csv":        true,
	"write_parquet":    true,
}

var readerMethods = map[string]bool{
	"read_csv":       true,
	"read_table":     true,
	"read_json":      true,
	"read_parquet":   true,
	"read_excel":     true,
	"read_feather":   true,
	"read_pickle":    true,
	"read_hdf":       true,
	"read_stata":     true,
	"read_fwf":       true,
	"read_file":      true,
	"read_csv_auto":  true,
	"open_dataset":   true,
	"open_dataarray": true,
	"open_mfdataset": true,
	"open_zarr":      true,
	"load":           true,
	"loadtxt":        true,
	"genfromtxt":     true,
	"imread":         true,
}

// accessorMethods act on the path held by their receiver.
var accessorMethods = map[string]string{
	"write_text":  "write",
	"write_bytes": "write",
	"touch":       "write",
	"read_text":   "read",
	"read_bytes":  "read",
	"open":        "mode",
}

var joinFuncs = map[string]bool{
	"os.path.join":   true,
	"posixpath.join": true,
	"ntpath.join":    true,
	"path.join":      true,
}

// pathWrappers are single-argument calls that return their argument as a path.
var pathWrappers = map[string]bool{
	"Path":              true,
	"PurePath":          true,
	"PosixPath":         true,
	"PurePosixPath":     true,
	"pathlib.Path":      true,
	"pathlib.PurePath":  true,
	"pathlib.PosixPath": true,
	"os.fspath":         true,
	"str":               true,
	"os.path.normpath":  true,
}

// ResolvePaths walks root in source order and returns the normalized literal
// paths written and read by the cell. Assignments feed a cell-local
// environment so that later calls can reference a path through a name.
func ResolvePaths(root *sitter.Node, src []byte) (writes, reads symset.Set) {
	r := &pathResolver{
		src:    src,
		env:    make(map[string]string),
		writes: symset.New(),
		reads:  symset.New(),
	}
	r.walk(root)
	return r.writes, r.reads
}

type pathResolver struct {
	src    []byte
	env    map[string]string
	writes symset.Set
	reads  symset.Set
}

func (r *pathResolver) walk(n *sitter.Node) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "comment":
		return
	case "assignment":
		// Right side first: its calls happen before the name is rebound.
		r.walk(n.ChildByFieldName("right"))
		r.assign(n.ChildByFieldName("left"), n.ChildByFieldName("right"))
		return
	case "call":
		r.walkChildren(n)
		r.callSite(n)
		return
	}
	r.walkChildren(n)
}

func (r *pathResolver) walkChildren(n *sitter.Node) {
	count := int(n.NamedChildCount())
	for i := 0; i < count; i++ {
		r.walk(n.NamedChild(i))
	}
}

func (r *pathResolver) assign(left, right *sitter.Node) {
	if left == nil || left.Type() != "identifier" || right == nil {
		return
	}
	name := left.Content(r.src)
	if right.Type() == "assignment" {
		// a = b = "x": bind a to whatever b resolved to.
		inner := right.ChildByFieldName("left")
		if inner != nil && inner.Type() == "identifier" {
			if p, ok := r.env[inner.Content(r.src)]; ok {
				r.env[name] = p
				return
			}
		}
		delete(r.env, name)
		return
	}
	if p, ok := r.resolve(right); ok {
		r.env[name] = p
		return
	}
	delete(r.env, name)
}

func (r *pathResolver) callSite(call *sitter.Node) {
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return
	}
	args := r.arguments(call)
	name := dottedName(fn, r.src)

	if openFuncs[name] {
		target := args.positional(0)
		if target == nil {
			target = args.keyword("file")
		}
		mode := args.positional(1)
		if mode == nil {
			mode = args.keyword("mode")
		}
		r.record(target, r.modeKind(mode))
		return
	}

	if fn.Type() != "attribute" {
		return
	}
	attr := fn.ChildByFieldName("attribute")
	if attr == nil {
		return
	}
	method := attr.Content(r.src)

	if kind, ok := accessorMethods[method]; ok {
		if receiver, ok := r.resolve(fn.ChildByFieldName("object")); ok {
			if kind == "mode" {
				mode := args.positional(0)
				if mode == nil {
					mode = args.keyword("mode")
				}
				kind = r.modeKind(mode)
			}
			r.add(receiver, kind)
			return
		}
	}

	switch {
	case writerMethods[method]:
		r.record(args.positional(0), "write")
	case readerMethods[method]:
		r.record(args.positional(0), "read")
	}
}

// modeKind classifies an open mode; a missing or unresolvable mode reads.
func (r *pathResolver) modeKind(mode *sitter.Node) string {
	if mode == nil {
		return "read"
	}
	m, ok := r.resolve(mode)
	if ok && strings.ContainsAny(m, "wax+") {
		return "write"
	}
	return "read"
}

func (r *pathResolver) record(target *sitter.Node, kind string) {
	if target == nil {
		return
	}
	if p, ok := r.resolve(target); ok {
		r.add(p, kind)
	}
}

func (r *pathResolver) add(p, kind string) {
	if p == "" {
		return
	}
	p = filepath.Clean(p)
	if kind == "write" {
		r.writes.Add(p)
		return
	}
	r.reads.Add(p)
}

// resolve evaluates an expression to a literal path when it is built only
// from literals, known names, concatenation, joins and path wrappers.
func (r *pathResolver) resolve(n *sitter.Node) (string, bool) {
	if n == nil {
		return "", false
	}
	switch n.Type() {
	case "string":
		return stringLiteral(n, r.src)
	case "concatenated_string":
		var b strings.Builder
		count := int(n.NamedChildCount())
		for i := 0; i < count; i++ {
			part, ok := r.resolve(n.NamedChild(i))
			if !ok {
				return "", false
			}
			b.WriteString(part)
		}
		return b.String(), true
	case "identifier":
		p, ok := r.env[n.Content(r.src)]
		return p, ok
	case "parenthesized_expression":
		if n.NamedChildCount() != 1 {
			return "", false
		}
		return r.resolve(n.NamedChild(0))
	case "binary_operator":
		op := n.ChildByFieldName("operator")
		if op == nil {
			return "", false
		}
		left, ok := r.resolve(n.ChildByFieldName("left"))
		if !ok {
			return "", false
		}
		right, ok := r.resolve(n.ChildByFieldName("right"))
		if !ok {
			return "", false
		}
		switch op.Type() {
		case "+":
			return left + right, true
		case "/":
			return joinPath(left, right), true
		}
		return "", false
	case "call":
		return r.resolveCall(n)
	}
	return "", false
}

func (r *pathResolver) resolveCall(call *sitter.Node) (string, bool) {
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return "", false
	}
	args := r.arguments(call)
	if len(args.keywords) > 0 || args.splat {
		return "", false
	}
	name := dottedName(fn, r.src)

	switch {
	case joinFuncs[name]:
		return r.joinAll("", args.positionals)
	case pathWrappers[name]:
		if len(args.positionals) != 1 {
			return "", false
		}
		return r.resolve(args.positionals[0])
	case fn.Type() == "attribute":
		attr := fn.ChildByFieldName("attribute")
		if attr == nil || attr.Content(r.src) != "joinpath" {
			return "", false
		}
		base, ok := r.resolve(fn.ChildByFieldName("object"))
		if !ok {
			return "", false
		}
		return r.joinAll(base, args.positionals)
	}
	return "", false
}

func (r *pathResolver) joinAll(base string, parts []*sitter.Node) (string, bool) {
	if base == "" && len(parts) == 0 {
		return "", false
	}
	out := base
	for _, part := range parts {
		p, ok := r.resolve(part)
		if !ok {
			return "", false
		}
		out = joinPath(out, p)
	}
	return out, true
}

// joinPath joins like os.path.join: an absolute component discards what
// came before it.
func joinPath(base, elem string) string {
	if base == "" || strings.HasPrefix(elem, "/") {
		return elem
	}
	if strings.HasSuffix(base, "/") {
		return base + elem
	}
	return base + "/" + elem
}

type callArgs struct {
	positionals []*sitter.Node
	keywords    map[string]*sitter.Node
	splat       bool
}

func (a callArgs) positional(i int) *sitter.Node {
	if i < len(a.positionals) {
		return a.positionals[i]
	}
	return nil
}

func (a callArgs) keyword(name string) *sitter.Node {
	return a.keywords[name]
}

func (r *pathResolver) arguments(call *sitter.Node) callArgs {
	args := callArgs{keywords: make(map[string]*sitter.Node)}
	list := call.ChildByFieldName("arguments")
	if list == nil || list.Type() != "argument_list" {
		return args
	}
	count := int(list.NamedChildCount())
	for i := 0; i < count; i++ {
		arg := list.NamedChild(i)
		if arg == nil {
			continue
		}
		switch arg.Type() {
		case "comment":
		case "keyword_argument":
			name := arg.ChildByFieldName("name")
			value := arg.ChildByFieldName("value")
			if name != nil && value != nil {
				args.keywords[name.Content(r.src)] = value
			}
		case "list_splat", "dictionary_splat":
			args.splat = true
		default:
			args.positionals = append(args.positionals, arg)
		}
	}
	return args
}

// dottedName renders a callee made only of identifiers and attribute
// access, e.g. "os.path.join". Any other callee shape yields "".
func dottedName(n *sitter.Node, src []byte) string {
	switch n.Type() {
	case "identifier":
		return n.Content(src)
	case "attribute":
		obj := n.ChildByFieldName("object")
		attr := n.ChildByFieldName("attribute")
		if obj == nil || attr == nil {
			return ""
		}
		head := dottedName(obj, src)
		if head == "" {
			return ""
		}
		return head + "." + attr.Content(src)
	}
	return ""
}
