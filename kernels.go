package cellscope

import (
	"context"
	"strings"

	"github.com/jward/cellscope/internal/external"
	"github.com/jward/cellscope/internal/extract"
	"github.com/jward/cellscope/internal/runtime"
)

// Kernel families with built-in handling.
const (
	FamilyPython     = "python"
	FamilyR          = "r"
	FamilyBash       = "bash"
	FamilyJavaScript = "javascript"
)

var kernelFamilies = map[string]string{
	"ir":          FamilyR,
	"r":           FamilyR,
	"bash":        FamilyBash,
	"sh":          FamilyBash,
	"zsh":         FamilyBash,
	"javascript":  FamilyJavaScript,
	"ijavascript": FamilyJavaScript,
	"node":        FamilyJavaScript,
	"nodejs":      FamilyJavaScript,
	"deno":        FamilyJavaScript,
}

// languageTags are the tags sent to the external analyzer. Families without
// an entry are sent as-is.
var languageTags = map[string]string{
	FamilyR: "R",
}

// KernelFamily maps a kernel identifier to the family that selects its
// analyzer. Unknown kernels belong to the python family.
func KernelFamily(kernel string) string {
	k := strings.ToLower(strings.TrimSpace(kernel))
	if fam, ok := kernelFamilies[k]; ok {
		return fam
	}
	if strings.HasPrefix(k, "ir-") || strings.HasPrefix(k, "r-") {
		return FamilyR
	}
	return FamilyPython
}

// familyOf is KernelFamily, except that a kernel identifier registered
// directly with WithKernelAnalyzer or WithStatisticalKernels is its own
// family.
func (e *Engine) familyOf(kernel string) string {
	k := strings.ToLower(strings.TrimSpace(kernel))
	if e.analyzers[k] != nil || e.statistical[k] {
		return k
	}
	return KernelFamily(kernel)
}

// CellInput is what a KernelAnalyzer sees of one cell.
type CellInput struct {
	Index  int
	Kernel string
	Family string
	Source string
}

// KernelAnalyzer extracts a partial cell record for one kernel family.
// A returned error marks the cell as failed; its sets are then empty.
type KernelAnalyzer interface {
	Analyze(ctx context.Context, cell CellInput) (extract.Result, error)
}

// KernelAnalyzerFunc adapts a function to KernelAnalyzer.
type KernelAnalyzerFunc func(ctx context.Context, cell CellInput) (extract.Result, error)

func (f KernelAnalyzerFunc) Analyze(ctx context.Context, cell CellInput) (extract.Result, error) {
	return f(ctx, cell)
}

// pythonAnalyzer runs the local tree-sitter parser and path resolver.
type pythonAnalyzer struct {
	parser *extract.PythonParser
}

func (a pythonAnalyzer) Analyze(ctx context.Context, cell CellInput) (extract.Result, error) {
	return a.parser.Parse(ctx, cell.Source)
}

// externalAnalyzer delegates a statistical-language cell with its source
// untouched. It never fails: the client degrades to an empty result.
type externalAnalyzer struct {
	client *external.Client
}

func (a externalAnalyzer) Analyze(ctx context.Context, cell CellInput) (extract.Result, error) {
	tag, ok := languageTags[cell.Family]
	if !ok {
		tag = cell.Family
	}
	return a.client.Analyze(ctx, tag, cell.Source), nil
}

// scriptAnalyzer runs kernel/<family>.risor. Only %put and %get lines are
// blanked; other leading % ! ? characters are valid shell and JavaScript.
type scriptAnalyzer struct {
	rt *runtime.Runtime
}

func (a scriptAnalyzer) Analyze(ctx context.Context, cell CellInput) (extract.Result, error) {
	return a.rt.Analyze(ctx, cell.Family, cell.Kernel, extract.StripMarkers(cell.Source))
}

// dispatcher picks and caches one analyzer per family for a single
// analysis. Each analysis builds its own dispatcher, so parser and script
// state never crosses calls.
type dispatcher struct {
	engine    *Engine
	rt        *runtime.Runtime
	python    KernelAnalyzer
	analyzers map[string]KernelAnalyzer
}

func (e *Engine) newDispatcher() *dispatcher {
	return &dispatcher{
		engine:    e,
		rt:        e.newRuntime(),
		python:    pythonAnalyzer{parser: extract.NewPythonParser()},
		analyzers: make(map[string]KernelAnalyzer),
	}
}

// analyzerFor resolves family in order: a registered analyzer, the external
// analyzer for statistical families, a kernel script, the python parser.
func (d *dispatcher) analyzerFor(family string) KernelAnalyzer {
	if a, ok := d.analyzers[family]; ok {
		return a
	}
	var a KernelAnalyzer
	switch {
	case d.engine.analyzers[family] != nil:
		a = d.engine.analyzers[family]
	case d.engine.statistical[family]:
		a = externalAnalyzer{client: d.engine.external}
	case family != FamilyPython && d.rt.HasScript(family):
		a = scriptAnalyzer{rt: d.rt}
	default:
		a = d.python
	}
	d.analyzers[family] = a
	return a
}
