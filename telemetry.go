package cellscope

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/jward/cellscope"

// engineMetrics holds the Engine's counters. A counter that failed to
// register is nil and silently skipped.
type engineMetrics struct {
	cellsAnalyzed metric.Int64Counter
	cellsFailed   metric.Int64Counter
	edgesEmitted  metric.Int64Counter
}

func newEngineMetrics(mp metric.MeterProvider) *engineMetrics {
	meter := mp.Meter(instrumentationName)
	m := &engineMetrics{}
	if c, err := meter.Int64Counter("cellscope.cells.analyzed",
		metric.WithDescription("Code cells analyzed."),
	); err == nil {
		m.cellsAnalyzed = c
	}
	if c, err := meter.Int64Counter("cellscope.cells.failed",
		metric.WithDescription("Code cells whose analyzer failed and that contributed empty sets."),
	); err == nil {
		m.cellsFailed = c
	}
	if c, err := meter.Int64Counter("cellscope.edges.emitted",
		metric.WithDescription("Dependency edges emitted, by kind."),
	); err == nil {
		m.edgesEmitted = c
	}
	return m
}

func (m *engineMetrics) cellAnalyzed(ctx context.Context, family string, failed bool) {
	attrs := metric.WithAttributes(attribute.String("family", family))
	if m.cellsAnalyzed != nil {
		m.cellsAnalyzed.Add(ctx, 1, attrs)
	}
	if failed && m.cellsFailed != nil {
		m.cellsFailed.Add(ctx, 1, attrs)
	}
}

func (m *engineMetrics) edges(ctx context.Context, g *Graph) {
	if m.edgesEmitted == nil {
		return
	}
	counts := make(map[EdgeKind]int64)
	for _, e := range g.Edges {
		counts[e.Kind]++
	}
	for kind, n := range counts {
		m.edgesEmitted.Add(ctx, n, metric.WithAttributes(attribute.String("kind", string(kind))))
	}
}
