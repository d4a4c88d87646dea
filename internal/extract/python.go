package extract

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/jward/cellscope/internal/symset"
)

// PythonParser extracts definitions, uses, functions, calls and file I/O
// from one Python cell. It holds no state between calls and is safe for
// concurrent use; each Parse creates its own tree-sitter parser.
type PythonParser struct{}

// NewPythonParser returns a PythonParser.
func NewPythonParser() *PythonParser {
	return &PythonParser{}
}

// Parse analyzes source. Directive lines are blanked first. A source that
// does not parse cleanly yields an empty Result and ErrSyntax.
func (p *PythonParser) Parse(ctx context.Context, source string) (Result, error) {
	src := []byte(Sanitize(source))

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return NewResult(), fmt.Errorf("extract: tree-sitter parse: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil || root.HasError() {
		return NewResult(), ErrSyntax
	}

	v := newBindingVisitor(src)
	v.visit(root)

	res := Result{
		Definitions: v.defs,
		Uses:        v.reads.Minus(v.defs, v.funcs),
		Functions:   v.funcs,
		Calls:       v.calls,
	}
	res.Writes, res.Reads = ResolvePaths(root, src)
	res.Normalize()
	return res, nil
}

// bindingVisitor walks a Python syntax tree and sorts identifiers into
// bindings and reads. Names bound only inside a function, lambda,
// comprehension, except clause or type parameter list are tracked on a
// scope stack and never reported as reads.
type bindingVisitor struct {
	src    []byte
	defs   symset.Set
	funcs  symset.Set
	reads  symset.Set
	calls  symset.Set
	scopes []symset.Set
}

func newBindingVisitor(src []byte) *bindingVisitor {
	return &bindingVisitor{
		src:   src,
		defs:  symset.New(),
		funcs: symset.New(),
		reads: symset.New(),
		calls: symset.New(),
	}
}

func (v *bindingVisitor) text(n *sitter.Node) string {
	return n.Content(v.src)
}

func (v *bindingVisitor) read(name string) {
	for i := len(v.scopes) - 1; i >= 0; i-- {
		if v.scopes[i].Has(name) {
			return
		}
	}
	v.reads.Add(name)
}

func (v *bindingVisitor) withScope(names symset.Set, fn func()) {
	v.scopes = append(v.scopes, names)
	fn()
	v.scopes = v.scopes[:len(v.scopes)-1]
}

func (v *bindingVisitor) visitChildren(n *sitter.Node, skip ...*sitter.Node) {
	count := int(n.NamedChildCount())
	for i := 0; i < count; i++ {
		child := n.NamedChild(i)
		if child == nil || isOneOf(child, skip) {
			continue
		}
		v.visit(child)
	}
}

func (v *bindingVisitor) visitField(n *sitter.Node, field string) {
	if child := n.ChildByFieldName(field); child != nil {
		v.visit(child)
	}
}

func (v *bindingVisitor) visit(n *sitter.Node) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "comment", "global_statement", "nonlocal_statement", "future_import_statement":
		return

	case "identifier":
		v.read(v.text(n))

	case "assignment", "augmented_assignment":
		v.bind(n.ChildByFieldName("left"))
		v.visitField(n, "type")
		v.visitField(n, "right")

	case "named_expression":
		v.bind(n.ChildByFieldName("name"))
		v.visitField(n, "value")

	case "for_statement":
		left := n.ChildByFieldName("left")
		v.bind(left)
		v.visitChildren(n, left)

	case "with_item":
		v.visitWithItem(n)

	case "import_statement", "import_from_statement":
		v.visitImport(n)

	case "function_definition":
		v.visitFunction(n)

	case "lambda":
		v.visitLambda(n)

	case "class_definition":
		name := n.ChildByFieldName("name")
		if name != nil {
			v.defs.Add(v.text(name))
		}
		v.visitChildren(n, name)

	case "attribute":
		v.visitField(n, "object")

	case "keyword_argument":
		v.visitField(n, "value")

	case "call":
		if fn := n.ChildByFieldName("function"); fn != nil && fn.Type() == "identifier" {
			v.calls.Add(v.text(fn))
		}
		v.visitChildren(n)

	case "list_comprehension", "set_comprehension", "dictionary_comprehension", "generator_expression":
		v.visitComprehension(n)

	case "except_clause", "except_group_clause":
		v.visitExcept(n)

	case "type_alias_statement":
		v.visitTypeAlias(n)

	case "case_pattern":
		v.bindPattern(n)

	case "dotted_name":
		// Decorators in older grammars; the head is a read.
		if n.NamedChildCount() > 0 {
			v.visit(n.NamedChild(0))
		}

	default:
		v.visitChildren(n)
	}
}

// bind records every name bound by an assignment target.
func (v *bindingVisitor) bind(target *sitter.Node) {
	if target == nil {
		return
	}
	switch target.Type() {
	case "identifier":
		v.defs.Add(v.text(target))
	case "pattern_list", "tuple_pattern", "list_pattern", "tuple", "list",
		"expression_list", "parenthesized_expression", "list_splat_pattern",
		"list_splat", "as_pattern_target":
		count := int(target.NamedChildCount())
		for i := 0; i < count; i++ {
			v.bind(target.NamedChild(i))
		}
	case "attribute", "subscript":
		v.bindMutation(target)
	default:
		v.visit(target)
	}
}

// bindMutation handles obj.attr = ... and obj[key] = ...: the base name is
// treated as redefined, index expressions are reads.
func (v *bindingVisitor) bindMutation(n *sitter.Node) {
	switch n.Type() {
	case "identifier":
		v.defs.Add(v.text(n))
	case "attribute":
		v.bindMutation(n.ChildByFieldName("object"))
	case "subscript":
		value := n.ChildByFieldName("value")
		v.visitChildren(n, value)
		if value != nil {
			v.bindMutation(value)
		}
	default:
		v.visit(n)
	}
}

func (v *bindingVisitor) visitWithItem(n *sitter.Node) {
	// Older grammars expose value/alias fields on with_item; newer ones wrap
	// the pair in an as_pattern.
	if alias := n.ChildByFieldName("alias"); alias != nil {
		v.visitField(n, "value")
		v.bind(alias)
		return
	}
	value := n.ChildByFieldName("value")
	if value != nil && value.Type() == "as_pattern" {
		alias := value.ChildByFieldName("alias")
		v.visitChildren(value, alias)
		v.bind(alias)
		return
	}
	v.visitChildren(n)
}

func (v *bindingVisitor) visitImport(n *sitter.Node) {
	module := n.ChildByFieldName("module_name")
	count := int(n.NamedChildCount())
	for i := 0; i < count; i++ {
		child := n.NamedChild(i)
		if child == nil || sameNode(child, module) {
			continue
		}
		switch child.Type() {
		case "aliased_import":
			if alias := child.ChildByFieldName("alias"); alias != nil {
				v.defs.Add(v.text(alias))
			}
		case "dotted_name":
			if n.Type() == "import_statement" {
				// import a.b binds a
				if child.NamedChildCount() > 0 {
					v.defs.Add(v.text(child.NamedChild(0)))
				}
			} else if last := int(child.NamedChildCount()) - 1; last >= 0 {
				v.defs.Add(v.text(child.NamedChild(last)))
			}
		}
	}
}

func (v *bindingVisitor) visitFunction(n *sitter.Node) {
	name := n.ChildByFieldName("name")
	if name != nil {
		v.funcs.Add(v.text(name))
	}
	locals := v.parameters(n.ChildByFieldName("parameters"))
	v.visitField(n, "return_type")
	if body := n.ChildByFieldName("body"); body != nil {
		v.withScope(locals, func() { v.visit(body) })
	}
}

func (v *bindingVisitor) visitLambda(n *sitter.Node) {
	locals := v.parameters(n.ChildByFieldName("parameters"))
	if body := n.ChildByFieldName("body"); body != nil {
		v.withScope(locals, func() { v.visit(body) })
	}
}

// parameters collects parameter names. Defaults and annotations are
// evaluated in the enclosing scope, so they are visited here as reads.
func (v *bindingVisitor) parameters(params *sitter.Node) symset.Set {
	names := symset.New()
	if params == nil {
		return names
	}
	count := int(params.NamedChildCount())
	for i := 0; i < count; i++ {
		p := params.NamedChild(i)
		if p == nil {
			continue
		}
		switch p.Type() {
		case "identifier":
			names.Add(v.text(p))
		case "list_splat_pattern", "dictionary_splat_pattern":
			v.collectIdentifiers(p, names)
		case "typed_parameter":
			if p.NamedChildCount() > 0 {
				v.collectIdentifiers(p.NamedChild(0), names)
			}
			v.visitField(p, "type")
		case "default_parameter", "typed_default_parameter":
			if nm := p.ChildByFieldName("name"); nm != nil {
				v.collectIdentifiers(nm, names)
			}
			v.visitField(p, "type")
			v.visitField(p, "value")
		}
	}
	return names
}

func (v *bindingVisitor) collectIdentifiers(n *sitter.Node, into symset.Set) {
	if n == nil {
		return
	}
	if n.Type() == "identifier" {
		into.Add(v.text(n))
		return
	}
	count := int(n.NamedChildCount())
	for i := 0; i < count; i++ {
		v.collectIdentifiers(n.NamedChild(i), into)
	}
}

func (v *bindingVisitor) visitComprehension(n *sitter.Node) {
	locals := symset.New()
	var clauses []*sitter.Node
	count := int(n.NamedChildCount())
	for i := 0; i < count; i++ {
		child := n.NamedChild(i)
		if child != nil && child.Type() == "for_in_clause" {
			v.collectIdentifiers(child.ChildByFieldName("left"), locals)
			clauses = append(clauses, child)
		}
	}
	v.withScope(locals, func() {
		for i := 0; i < count; i++ {
			child := n.NamedChild(i)
			if child == nil {
				continue
			}
			if child.Type() == "for_in_clause" {
				v.visitChildren(child, child.ChildByFieldName("left"))
				continue
			}
			v.visit(child)
		}
	})
}

func (v *bindingVisitor) visitExcept(n *sitter.Node) {
	locals := symset.New()
	var skip []*sitter.Node
	count := int(n.ChildCount())
	for i := 0; i < count; i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		switch {
		case child.Type() == "as" && i+1 < count:
			alias := n.Child(i + 1)
			v.collectIdentifiers(alias, locals)
			skip = append(skip, alias)
		case child.Type() == "as_pattern":
			alias := child.ChildByFieldName("alias")
			v.collectIdentifiers(alias, locals)
			v.visitChildren(child, alias)
			skip = append(skip, child)
		}
	}
	v.withScope(locals, func() { v.visitChildren(n, skip...) })
}

// visitTypeAlias handles type Name[T] = ...: Name is bound and the type
// parameters are local to the right-hand side.
func (v *bindingVisitor) visitTypeAlias(n *sitter.Node) {
	count := int(n.NamedChildCount())
	if count == 0 {
		return
	}
	params := symset.New()
	v.bindTypeName(n.NamedChild(0), params)
	v.withScope(params, func() {
		for i := 1; i < count; i++ {
			v.visit(n.NamedChild(i))
		}
	})
}

func (v *bindingVisitor) bindTypeName(n *sitter.Node, params symset.Set) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "identifier":
		v.defs.Add(v.text(n))
	case "generic_type", "subscript":
		count := int(n.NamedChildCount())
		for i := 0; i < count; i++ {
			child := n.NamedChild(i)
			if i == 0 {
				v.bindTypeName(child, params)
				continue
			}
			v.collectIdentifiers(child, params)
		}
	default:
		if n.NamedChildCount() > 0 {
			v.bindTypeName(n.NamedChild(0), params)
		}
	}
}

// bindPattern records the names captured by a match-case pattern. Captures
// bind in the enclosing scope. Class names, dotted value patterns and
// mapping keys are reads; keyword names in class patterns are neither.
func (v *bindingVisitor) bindPattern(n *sitter.Node) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "identifier":
		v.defs.Add(v.text(n))
	case "dotted_name":
		if n.NamedChildCount() == 1 {
			v.defs.Add(v.text(n.NamedChild(0)))
		} else if n.NamedChildCount() > 1 {
			v.visit(n.NamedChild(0))
		}
	case "class_pattern":
		count := int(n.NamedChildCount())
		for i := 0; i < count; i++ {
			child := n.NamedChild(i)
			if i == 0 && child.Type() == "dotted_name" {
				v.visit(child.NamedChild(0))
				continue
			}
			v.bindPattern(child)
		}
	case "keyword_pattern":
		count := int(n.NamedChildCount())
		for i := 1; i < count; i++ {
			v.bindPattern(n.NamedChild(i))
		}
	case "dict_pattern":
		count := int(n.ChildCount())
		for i := 0; i < count; i++ {
			child := n.Child(i)
			if child == nil || !child.IsNamed() {
				continue
			}
			if i+1 < count && n.Child(i+1).Type() == ":" {
				v.visit(child)
				continue
			}
			v.bindPattern(child)
		}
	case "string", "concatenated_string", "integer", "float", "complex_pattern",
		"true", "false", "none":
		return
	default:
		count := int(n.NamedChildCount())
		for i := 0; i < count; i++ {
			v.bindPattern(n.NamedChild(i))
		}
	}
}

// sameNode compares two nodes by span and type.
func sameNode(a, b *sitter.Node) bool {
	if a == nil || b == nil {
		return false
	}
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}

func isOneOf(n *sitter.Node, candidates []*sitter.Node) bool {
	for _, c := range candidates {
		if sameNode(n, c) {
			return true
		}
	}
	return false
}
