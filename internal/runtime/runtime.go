package runtime

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"

	"github.com/jward/cellscope/internal/extract"
)

// Runtime embeds a Risor VM and provides tree-sitter host functions and a
// per-run collector to kernel analyzer scripts.
type Runtime struct {
	scriptsDir string
	fsys       fs.FS
	logger     *slog.Logger

	mu      sync.Mutex
	scripts map[string]string // path → source, filled by LoadScript
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithRuntimeFS configures the Runtime to load scripts from an fs.FS
// instead of from disk. Also configures the Risor importer to use
// FSImporter for import statement resolution.
func WithRuntimeFS(fsys fs.FS) RuntimeOption {
	return func(r *Runtime) {
		r.fsys = fsys
	}
}

// WithRuntimeLogger sets the logger behind the scripts' log global.
func WithRuntimeLogger(l *slog.Logger) RuntimeOption {
	return func(r *Runtime) {
		r.logger = l
	}
}

// NewRuntime creates a Runtime that loads scripts from scriptsDir unless an
// fs.FS is supplied with WithRuntimeFS.
func NewRuntime(scriptsDir string, opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		scriptsDir: scriptsDir,
		logger:     slog.Default(),
		scripts:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// KernelScriptPath returns the path to a kernel family's analyzer script.
func KernelScriptPath(family string) string {
	return filepath.Join("kernel", family+".risor")
}

// HasScript reports whether an analyzer script exists for family.
func (r *Runtime) HasScript(family string) bool {
	_, err := r.LoadScript(KernelScriptPath(family))
	return err == nil
}

// Analyze runs the kernel script for family over one cell's source and
// returns what the script collected. The script sees the globals source and
// kernel plus the collector functions. If the source parsed with errors the
// collected sets are discarded and ErrSyntax is returned.
func (r *Runtime) Analyze(ctx context.Context, family, kernel, source string) (extract.Result, error) {
	scriptPath := KernelScriptPath(family)
	src, err := r.LoadScript(scriptPath)
	if err != nil {
		return extract.NewResult(), err
	}

	c := newCollector()
	extras := c.globals()
	extras["source"] = source
	extras["kernel"] = kernel
	extras["log"] = mustProxy(&scriptLog{logger: r.logger.With(
		slog.String("source", "script"),
		slog.String("family", family),
	)})

	reg := newTreeRegistry()
	defer reg.release()
	if err := r.run(ctx, reg, src, scriptPath, extras); err != nil {
		return extract.NewResult(), err
	}
	if reg.hasErrors() {
		return extract.NewResult(), fmt.Errorf("runtime: %s cell: %w", family, extract.ErrSyntax)
	}
	return c.result(), nil
}

// RunScript loads and executes a Risor script with all standard globals
// plus any extra globals provided by the caller.
func (r *Runtime) RunScript(ctx context.Context, scriptPath string, extraGlobals map[string]any) error {
	src, err := r.LoadScript(scriptPath)
	if err != nil {
		return err
	}
	return r.eval(ctx, src, scriptPath, extraGlobals)
}

// RunSource executes Risor source code directly with all standard globals
// plus any extra globals. Useful for testing without script files.
func (r *Runtime) RunSource(ctx context.Context, source string, extraGlobals map[string]any) error {
	return r.eval(ctx, source, "<inline>", extraGlobals)
}

func (r *Runtime) eval(ctx context.Context, source, label string, extraGlobals map[string]any) error {
	reg := newTreeRegistry()
	defer reg.release()
	return r.run(ctx, reg, source, label, extraGlobals)
}

// run evaluates source with trees tracked in reg, which the caller releases.
func (r *Runtime) run(ctx context.Context, reg *treeRegistry, source, label string, extraGlobals map[string]any) error {
	globals := r.buildGlobals(reg, extraGlobals)

	var opts []risor.Option
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}

	if imp := r.buildImporter(globals); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	_, err := risor.Eval(ctx, source, opts...)
	if err != nil {
		return fmt.Errorf("runtime: script %s: %w", label, err)
	}
	return nil
}

// buildImporter returns a Risor importer configured for the Runtime's script source.
// Returns nil if neither fs.FS nor scriptsDir is configured.
func (r *Runtime) buildImporter(globals map[string]any) importer.Importer {
	globalNames := make([]string, 0, len(globals))
	for name := range globals {
		globalNames = append(globalNames, name)
	}

	if r.fsys != nil {
		return importer.NewFSImporter(importer.FSImporterOptions{
			GlobalNames: globalNames,
			SourceFS:    r.fsys,
			Extensions:  []string{".risor"},
		})
	}
	if r.scriptsDir != "" {
		return importer.NewLocalImporter(importer.LocalImporterOptions{
			GlobalNames: globalNames,
			SourceDir:   r.scriptsDir,
			Extensions:  []string{".risor"},
		})
	}
	return nil
}

// LoadScript returns the source of a .risor file, reading it at most once
// per Runtime. Failed reads are not cached.
func (r *Runtime) LoadScript(path string) (string, error) {
	r.mu.Lock()
	src, ok := r.scripts[path]
	r.mu.Unlock()
	if ok {
		return src, nil
	}
	src, err := r.readScript(path)
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	r.scripts[path] = src
	r.mu.Unlock()
	return src, nil
}

// readScript reads from the fs.FS when one is configured, otherwise from
// disk relative to scriptsDir.
func (r *Runtime) readScript(path string) (string, error) {
	if r.fsys != nil {
		fsPath := strings.TrimPrefix(filepath.ToSlash(path), "/")
		data, err := fs.ReadFile(r.fsys, fsPath)
		if err != nil {
			return "", fmt.Errorf("runtime: loading script %s from fs: %w", fsPath, err)
		}
		return string(data), nil
	}

	fullPath := path
	if !filepath.IsAbs(path) {
		fullPath = filepath.Join(r.scriptsDir, path)
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("runtime: loading script %s: %w", fullPath, err)
	}
	return string(data), nil
}

// buildGlobals constructs the full set of globals exposed to Risor scripts.
func (r *Runtime) buildGlobals(reg *treeRegistry, extra map[string]any) map[string]any {
	globals := map[string]any{
		"parse_src":  makeParseSrcFn(reg),
		"node_text":  makeNodeTextFn(reg),
		"node_child": makeNodeChildFn(),
		"query":      makeQueryFn(reg),
		"log":        mustProxy(&scriptLog{logger: r.logger.With(slog.String("source", "script"))}),
	}
	for k, v := range extra {
		globals[k] = v
	}
	return globals
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("runtime: proxy error: %v", err))
	}
	return p
}
