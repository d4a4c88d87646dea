package runtime

import (
	"context"
	"log/slog"
	"sync"
	"unsafe"

	"github.com/risor-io/risor/object"
	sitter "github.com/smacker/go-tree-sitter"
)

// parsedTree is what the host functions need to know about a tree parsed
// during a script run.
type parsedTree struct {
	tree     *sitter.Tree
	src      []byte
	lang     *sitter.Language
	hasError bool
}

// treeRegistry maps a root node back to its parsed tree. smacker's Node has
// no Tree() accessor, so node_text and query walk up to the root and look it
// up here.
type treeRegistry struct {
	mu        sync.RWMutex
	trees     map[uintptr]*parsedTree
	malformed bool
}

func newTreeRegistry() *treeRegistry {
	return &treeRegistry{trees: make(map[uintptr]*parsedTree)}
}

func nodeKey(n *sitter.Node) uintptr {
	for n.Parent() != nil {
		n = n.Parent()
	}
	return uintptr(unsafe.Pointer(n))
}

func (r *treeRegistry) add(pt *parsedTree) {
	r.mu.Lock()
	r.trees[nodeKey(pt.tree.RootNode())] = pt
	if pt.hasError {
		r.malformed = true
	}
	r.mu.Unlock()
}

// hasErrors reports whether any tree parsed during the run contained
// ERROR or MISSING nodes.
func (r *treeRegistry) hasErrors() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.malformed
}

func (r *treeRegistry) lookup(n *sitter.Node) (*parsedTree, bool) {
	r.mu.RLock()
	pt, ok := r.trees[nodeKey(n)]
	r.mu.RUnlock()
	return pt, ok
}

// release closes every tree parsed during the run.
func (r *treeRegistry) release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, pt := range r.trees {
		pt.tree.Close()
	}
	r.trees = make(map[uintptr]*parsedTree)
}

// stringArg unwraps a Risor string argument.
func stringArg(fn, name string, arg object.Object) (string, *object.Error) {
	s, ok := arg.(*object.String)
	if !ok {
		return "", object.Errorf("%s: %s must be a string, got %s", fn, name, arg.Type())
	}
	return s.Value(), nil
}

// nodeArg unwraps a proxied *sitter.Node argument.
func nodeArg(fn string, arg object.Object) (*sitter.Node, *object.Error) {
	proxy, ok := arg.(*object.Proxy)
	if !ok {
		return nil, object.Errorf("%s: expected proxy (Node), got %s", fn, arg.Type())
	}
	node, ok := proxy.Interface().(*sitter.Node)
	if !ok {
		return nil, object.Errorf("%s: expected *sitter.Node, got %T", fn, proxy.Interface())
	}
	return node, nil
}

func proxyOf(fn string, v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		return object.Errorf("%s: proxy error: %v", fn, err)
	}
	return p
}

// parse_src(source, grammar) → Tree
func makeParseSrcFn(reg *treeRegistry) *object.Builtin {
	return object.NewBuiltin("parse_src", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("parse_src", 2, len(args))
		}
		src, errObj := stringArg("parse_src", "source", args[0])
		if errObj != nil {
			return errObj
		}
		grammar, errObj := stringArg("parse_src", "language", args[1])
		if errObj != nil {
			return errObj
		}

		lang, found := ParserForLanguage(grammar)
		if !found {
			return object.Errorf("parse_src: unsupported language %q", grammar)
		}
		parser := sitter.NewParser()
		defer parser.Close()
		parser.SetLanguage(lang)

		tree, err := parser.ParseCtx(ctx, nil, []byte(src))
		if err != nil {
			return object.Errorf("parse_src: tree-sitter parse failed: %v", err)
		}
		reg.add(&parsedTree{
			tree:     tree,
			src:      []byte(src),
			lang:     lang,
			hasError: tree.RootNode().HasError(),
		})
		return proxyOf("parse_src", tree)
	})
}

// node_text(node) → string
//
// Risor proxies cannot pass a string where node.Content wants []byte, so the
// source is recovered from the registry.
func makeNodeTextFn(reg *treeRegistry) *object.Builtin {
	return object.NewBuiltin("node_text", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("node_text", 1, len(args))
		}
		node, errObj := nodeArg("node_text", args[0])
		if errObj != nil {
			return errObj
		}
		pt, found := reg.lookup(node)
		if !found {
			return object.Errorf("node_text: no source found for node's tree")
		}
		return object.NewString(node.Content(pt.src))
	})
}

// query(pattern, node) → [{capture: Node}]
func makeQueryFn(reg *treeRegistry) *object.Builtin {
	return object.NewBuiltin("query", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("query", 2, len(args))
		}
		pattern, errObj := stringArg("query", "pattern", args[0])
		if errObj != nil {
			return errObj
		}
		node, errObj := nodeArg("query", args[1])
		if errObj != nil {
			return errObj
		}
		pt, found := reg.lookup(node)
		if !found {
			return object.Errorf("query: no tree found for node")
		}

		q, err := sitter.NewQuery([]byte(pattern), pt.lang)
		if err != nil {
			return object.Errorf("query: invalid pattern: %v", err)
		}
		defer q.Close()
		cursor := sitter.NewQueryCursor()
		defer cursor.Close()
		cursor.Exec(q, node)

		results := []object.Object{}
		for {
			match, ok := cursor.NextMatch()
			if !ok {
				break
			}
			match = cursor.FilterPredicates(match, pt.src)
			captures := make(map[string]object.Object, len(match.Captures))
			for _, c := range match.Captures {
				captures[q.CaptureNameForId(c.Index)] = proxyOf("query", c.Node)
			}
			results = append(results, object.NewMap(captures))
		}
		return object.NewList(results)
	})
}

// node_child(node, field) → Node or nil
//
// Returns Risor nil rather than a proxied nil pointer for a missing field.
func makeNodeChildFn() *object.Builtin {
	return object.NewBuiltin("node_child", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("node_child", 2, len(args))
		}
		node, errObj := nodeArg("node_child", args[0])
		if errObj != nil {
			return errObj
		}
		field, errObj := stringArg("node_child", "field", args[1])
		if errObj != nil {
			return errObj
		}
		child := node.ChildByFieldName(field)
		if child == nil {
			return object.Nil
		}
		return proxyOf("node_child", child)
	})
}

// scriptLog is the scripts' log global. Messages carry the kernel family.
type scriptLog struct {
	logger *slog.Logger
}

func (l *scriptLog) Debug(msg string) { l.logger.Debug(msg) }
func (l *scriptLog) Info(msg string)  { l.logger.Info(msg) }
func (l *scriptLog) Warn(msg string)  { l.logger.Warn(msg) }
func (l *scriptLog) Error(msg string) { l.logger.Error(msg) }
