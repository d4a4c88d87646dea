package cellscope

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/jward/cellscope/internal/external"
	"github.com/jward/cellscope/internal/extract"
	"github.com/jward/cellscope/internal/runtime"
	"github.com/jward/cellscope/internal/store"
	"github.com/jward/cellscope/scripts"
)

// ErrNoStore is returned by Save and queries on an Engine without a store.
var ErrNoStore = errors.New("cellscope: no store configured")

// Engine orchestrates the cellscope pipeline: per-cell extraction, alias
// normalization, sequential linking, cross-kernel inference, and optional
// persistence. An Engine keeps no analysis state between calls and is safe
// for concurrent Analyze calls.
type Engine struct {
	logger  *slog.Logger
	aliases AliasMap

	external          *external.Client
	externalURL       string
	externalTimeout   time.Duration
	externalRateLimit float64
	statistical       map[string]bool
	analyzers         map[string]KernelAnalyzer

	scriptsDir string
	scriptsFS  fs.FS

	dbPath string
	store  *store.Store

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	tracer         trace.Tracer
	metrics        *engineMetrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithAliases sets the alias map applied to every capture.
func WithAliases(m AliasMap) Option {
	return func(e *Engine) {
		e.aliases = m
	}
}

// WithExternalAnalyzer sets the client used for statistical kernels. It
// takes precedence over the other WithExternal options.
func WithExternalAnalyzer(c *external.Client) Option {
	return func(e *Engine) {
		e.external = c
	}
}

// WithExternalURL sets the external analyzer base URL. The default comes
// from $CELLSCOPE_CONTAINERIZER_URL.
func WithExternalURL(u string) Option {
	return func(e *Engine) {
		e.externalURL = u
	}
}

// WithExternalTimeout bounds each external analyzer call.
func WithExternalTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.externalTimeout = d
	}
}

// WithExternalRateLimit caps external analyzer calls per second across all
// concurrent analyses. Zero means unlimited.
func WithExternalRateLimit(perSecond float64) Option {
	return func(e *Engine) {
		e.externalRateLimit = perSecond
	}
}

// WithStatisticalKernels replaces the families delegated to the external
// analyzer. The default is the r family.
func WithStatisticalKernels(families ...string) Option {
	return func(e *Engine) {
		e.statistical = make(map[string]bool, len(families))
		for _, f := range families {
			e.statistical[strings.ToLower(strings.TrimSpace(f))] = true
		}
	}
}

// WithKernelAnalyzer registers a for family, overriding every built-in
// choice.
func WithKernelAnalyzer(family string, a KernelAnalyzer) Option {
	return func(e *Engine) {
		if e.analyzers == nil {
			e.analyzers = make(map[string]KernelAnalyzer)
		}
		e.analyzers[strings.ToLower(strings.TrimSpace(family))] = a
	}
}

// WithScriptsFS loads kernel scripts from fsys instead of the embedded set.
func WithScriptsFS(fsys fs.FS) Option {
	return func(e *Engine) {
		e.scriptsFS = fsys
	}
}

// WithScriptsDir loads kernel scripts from a directory on disk. Ignored when
// WithScriptsFS is also given.
func WithScriptsDir(dir string) Option {
	return func(e *Engine) {
		e.scriptsDir = dir
	}
}

// WithLogger sets the Engine's logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithTracerProvider sets the provider for analysis spans. The default is
// the global otel provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) {
		e.tracerProvider = tp
	}
}

// WithMeterProvider sets the provider for the Engine's and the external
// client's counters. The default is the global otel provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *Engine) {
		e.meterProvider = mp
	}
}

// WithStore persists captures to a SQLite database at dbPath.
func WithStore(dbPath string) Option {
	return func(e *Engine) {
		e.dbPath = dbPath
	}
}

// New creates an Engine. Script loading priority:
//  1. If WithScriptsFS is set, use the provided fs.FS
//  2. If WithScriptsDir is set, use that directory on disk
//  3. Otherwise, use the embedded scripts
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		logger:      slog.Default(),
		statistical: map[string]bool{FamilyR: true},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.scriptsFS == nil && e.scriptsDir == "" {
		e.scriptsFS = scripts.FS
	}
	if e.tracerProvider == nil {
		e.tracerProvider = otel.GetTracerProvider()
	}
	if e.meterProvider == nil {
		e.meterProvider = otel.GetMeterProvider()
	}
	e.tracer = e.tracerProvider.Tracer(instrumentationName)
	e.metrics = newEngineMetrics(e.meterProvider)

	if e.external == nil {
		extOpts := []external.Option{
			external.WithLogger(e.logger),
			external.WithMeterProvider(e.meterProvider),
		}
		if e.externalURL != "" {
			extOpts = append(extOpts, external.WithBaseURL(e.externalURL))
		}
		if e.externalTimeout > 0 {
			extOpts = append(extOpts, external.WithTimeout(e.externalTimeout))
		}
		if e.externalRateLimit > 0 {
			extOpts = append(extOpts, external.WithRateLimit(e.externalRateLimit))
		}
		e.external = external.New(extOpts...)
	}

	if e.dbPath != "" {
		s, err := store.NewStore(e.dbPath)
		if err != nil {
			return nil, fmt.Errorf("cellscope: create store: %w", err)
		}
		if err := s.Migrate(); err != nil {
			s.Close()
			return nil, fmt.Errorf("cellscope: migrate: %w", err)
		}
		e.store = s
	}
	return e, nil
}

// Close releases the Engine's database resources.
func (e *Engine) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}

// Store returns the underlying Store, or nil without WithStore.
func (e *Engine) Store() *Store {
	return e.store
}

// Query returns a new QueryBuilder over the Store.
func (e *Engine) Query() *QueryBuilder {
	return &QueryBuilder{store: e.store}
}

func (e *Engine) newRuntime() *runtime.Runtime {
	opts := []runtime.RuntimeOption{runtime.WithRuntimeLogger(e.logger)}
	if e.scriptsFS != nil {
		opts = append(opts, runtime.WithRuntimeFS(e.scriptsFS))
	}
	return runtime.NewRuntime(e.scriptsDir, opts...)
}

// AnalyzeFile reads the notebook at path and analyzes it.
func (e *Engine) AnalyzeFile(ctx context.Context, path string) (*Capture, error) {
	nb, err := ReadNotebook(path)
	if err != nil {
		return nil, err
	}
	return e.Analyze(ctx, nb)
}

// Analyze runs the full pipeline over nb. Cell failures are contained: the
// cell gets empty sets and analysis continues. Only a cancelled context
// stops the call early.
func (e *Engine) Analyze(ctx context.Context, nb *Notebook) (*Capture, error) {
	if nb == nil {
		return nil, fmt.Errorf("cellscope: analyze: %w: nil notebook", ErrNotebook)
	}
	ctx, span := e.tracer.Start(ctx, "cellscope.Analyze",
		trace.WithAttributes(
			attribute.String("notebook", nb.Path),
			attribute.Int("cells", len(nb.Cells)),
		),
	)
	defer span.End()

	d := e.newDispatcher()
	records := make([]*CellRecord, 0, len(nb.Cells))
	failed := 0
	for _, cell := range nb.Cells {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, "cancelled")
			return nil, fmt.Errorf("cellscope: analyze %s: %w", nb.Path, err)
		}
		rec := e.analyzeCell(ctx, d, cell)
		if rec.Failed {
			failed++
		}
		records = append(records, rec)
	}

	e.aliases.Apply(records)
	g := BuildGraph(records)
	e.metrics.edges(ctx, g)

	span.SetAttributes(
		attribute.Int("cells.failed", failed),
		attribute.Int("edges", len(g.Edges)),
	)
	e.logger.Debug("notebook analyzed",
		slog.String("notebook", nb.Path),
		slog.Int("cells", len(records)),
		slog.Int("failed", failed),
		slog.Int("edges", len(g.Edges)),
	)

	return &Capture{
		Notebook:      nb.Path,
		Hash:          nb.Hash,
		DefaultKernel: nb.DefaultKernel,
		Cells:         records,
		Graph:         *g,
	}, nil
}

// analyzeCell builds one record. Markers are scanned from the raw source
// before dispatch, for every kernel.
func (e *Engine) analyzeCell(ctx context.Context, d *dispatcher, cell NotebookCell) *CellRecord {
	family := e.familyOf(cell.Kernel)
	ctx, span := e.tracer.Start(ctx, "cellscope.analyzeCell",
		trace.WithAttributes(
			attribute.Int("index", cell.Index),
			attribute.String("kernel", cell.Kernel),
			attribute.String("family", family),
		),
	)
	defer span.End()

	exports, imports := ScanMarkers(cell.Source)
	res, err := d.analyzerFor(family).Analyze(ctx, CellInput{
		Index:  cell.Index,
		Kernel: cell.Kernel,
		Family: family,
		Source: cell.Source,
	})
	failed := err != nil
	if failed {
		e.logger.Debug("cell analysis failed, using empty sets",
			slog.Int("cell", cell.Index),
			slog.String("kernel", cell.Kernel),
			slog.String("family", family),
			slog.String("error", err.Error()),
		)
		span.SetAttributes(attribute.Bool("failed", true))
		span.RecordError(err)
		res = extract.NewResult()
	}
	res.Normalize()
	e.metrics.cellAnalyzed(ctx, family, failed)

	return &CellRecord{
		Index:       cell.Index,
		Kernel:      cell.Kernel,
		Source:      cell.Source,
		Definitions: res.Definitions,
		Uses:        res.Uses,
		Functions:   res.Functions,
		Calls:       res.Calls,
		Writes:      res.Writes,
		Reads:       res.Reads,
		Exports:     exports,
		Imports:     imports,
		Failed:      failed,
	}
}

// Save persists capture, replacing any earlier capture of the same notebook.
func (e *Engine) Save(capture *Capture) error {
	if e.store == nil {
		return ErrNoStore
	}
	nb, cells, edges := toStored(capture)
	if _, err := e.store.SaveCapture(nb, cells, edges); err != nil {
		return fmt.Errorf("cellscope: save %s: %w", capture.Notebook, err)
	}
	return nil
}

func toStored(c *Capture) (*store.Notebook, []*store.Cell, []*store.Edge) {
	nb := &store.Notebook{Path: c.Notebook, Hash: c.Hash, DefaultKernel: c.DefaultKernel}
	cells := make([]*store.Cell, 0, len(c.Cells))
	for _, r := range c.Cells {
		cells = append(cells, &store.Cell{
			Index:       r.Index,
			Kernel:      r.Kernel,
			Source:      r.Source,
			Definitions: r.Definitions.Sorted(),
			Uses:        r.Uses.Sorted(),
			Functions:   r.Functions.Sorted(),
			Calls:       r.Calls.Sorted(),
			Writes:      r.Writes.Sorted(),
			Reads:       r.Reads.Sorted(),
			Exports:     r.Exports.Sorted(),
			Imports:     r.Imports.Sorted(),
		})
	}
	edges := make([]*store.Edge, 0, len(c.Graph.Edges))
	for _, e := range c.Graph.Edges {
		edges = append(edges, &store.Edge{
			Producer: e.Producer,
			Consumer: e.Consumer,
			Kind:     string(e.Kind),
			Symbols:  e.Symbols.Sorted(),
			Path:     e.Path,
			Label:    e.Label,
		})
	}
	return nb, cells, edges
}
