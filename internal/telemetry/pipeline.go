package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AltimetrikAI/propelus-ai-sub001/internal/types"
)

const pipelineScopeName = "github.com/AltimetrikAI/propelus-ai-sub001/pipeline"

// Pipeline carries the spans and counters for ingestion and mapping
// runs. NewPipeline returns a no-op-backed instance when telemetry is
// disabled, so call sites never branch.
type Pipeline struct {
	tracer   trace.Tracer
	loads    metric.Int64Counter
	rows     metric.Int64Counter
	nodes    metric.Int64Counter
	mappings metric.Int64Counter
	dur      metric.Float64Histogram
}

func NewPipeline() *Pipeline {
	m := Meter(pipelineScopeName)
	loads, _ := m.Int64Counter("taxo.ingest.loads",
		metric.WithDescription("Ingestion loads by outcome"))
	rows, _ := m.Int64Counter("taxo.ingest.rows",
		metric.WithDescription("Source rows processed"))
	nodes, _ := m.Int64Counter("taxo.mapping.nodes",
		metric.WithDescription("Nodes evaluated by the mapping engine"))
	mappings, _ := m.Int64Counter("taxo.mapping.actions",
		metric.WithDescription("Mapping state transitions by action"))
	dur, _ := m.Float64Histogram("taxo.pipeline.duration",
		metric.WithDescription("Pipeline run duration in milliseconds"),
		metric.WithUnit("ms"))
	return &Pipeline{
		tracer:   Tracer(pipelineScopeName),
		loads:    loads,
		rows:     rows,
		nodes:    nodes,
		mappings: mappings,
		dur:      dur,
	}
}

// StartSpan opens a pipeline span; end it via the returned function
// with the run's error.
func (p *Pipeline) StartSpan(ctx context.Context, name string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, name)
	return ctx, func(err error) {
		p.dur.Record(ctx, float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(attribute.String("pipeline", name)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// RecordIngest counts one ingestion outcome.
func (p *Pipeline) RecordIngest(ctx context.Context, resp *types.IngestResponse) {
	if resp == nil {
		return
	}
	p.loads.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("ok", resp.OK),
		attribute.String("taxonomy_type", string(resp.TaxonomyType)),
		attribute.String("load_type", string(resp.LoadType)),
	))
	p.rows.Add(ctx, int64(resp.RowsProcessed))
}

// RecordMapping counts one mapping run's actions.
func (p *Pipeline) RecordMapping(ctx context.Context, resp *types.MapResponse) {
	if resp == nil {
		return
	}
	p.nodes.Add(ctx, int64(resp.Results.NodesProcessed))
	for action, n := range map[string]int{
		"created":     resp.Results.MappingsCreated,
		"updated":     resp.Results.MappingsUpdated,
		"deactivated": resp.Results.MappingsDeactivated,
		"unchanged":   resp.Results.MappingsUnchanged,
		"failed":      resp.Results.Failures,
	} {
		if n > 0 {
			p.mappings.Add(ctx, int64(n), metric.WithAttributes(attribute.String("action", action)))
		}
	}
}
