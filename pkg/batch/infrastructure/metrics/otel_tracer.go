package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	model "github.com/tigerroll/customer-import/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/customer-import/pkg/batch/core/metrics"
)

// OtelTracer is an OpenTelemetry implementation of metrics.Tracer.
type OtelTracer struct {
	tracer trace.Tracer
}

// NewOtelTracer wraps tracer, usually obtained from a TracerProvider.
func NewOtelTracer(tracer trace.Tracer) *OtelTracer {
	return &OtelTracer{tracer: tracer}
}

func (t *OtelTracer) StartJobSpan(ctx context.Context, execution *model.JobExecution) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "job "+execution.JobName,
		trace.WithAttributes(
			attribute.String("batch.job.name", execution.JobName),
			attribute.String("batch.job.execution_id", execution.ID),
			attribute.String("batch.job.instance_id", execution.JobInstanceID),
		))
	return ctx, func() {
		span.SetAttributes(
			attribute.String("batch.job.status", execution.Status.String()),
			attribute.String("batch.job.exit_status", execution.ExitStatus.String()),
		)
		endWithStatus(span, execution.Status)
	}
}

func (t *OtelTracer) StartStepSpan(ctx context.Context, execution *model.StepExecution) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "step "+execution.StepName,
		trace.WithAttributes(
			attribute.String("batch.step.name", execution.StepName),
			attribute.String("batch.step.execution_id", execution.ID),
		))
	return ctx, func() {
		span.SetAttributes(
			attribute.String("batch.step.status", execution.Status.String()),
			attribute.Int("batch.step.read_count", execution.ReadCount),
			attribute.Int("batch.step.write_count", execution.WriteCount),
			attribute.Int("batch.step.filter_count", execution.FilterCount),
			attribute.Int("batch.step.commit_count", execution.CommitCount),
			attribute.Int("batch.step.rollback_count", execution.RollbackCount),
		)
		endWithStatus(span, execution.Status)
	}
}

func (t *OtelTracer) StartChunkSpan(ctx context.Context, stepName string, chunkNumber int) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "chunk "+stepName,
		trace.WithAttributes(
			attribute.String("batch.step.name", stepName),
			attribute.Int("batch.chunk.number", chunkNumber),
		))
	return ctx, func() { span.End() }
}

// RecordError records err on the span in ctx and marks it as failed.
func (t *OtelTracer) RecordError(ctx context.Context, module string, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err, trace.WithAttributes(attribute.String("batch.module", module)))
	span.SetStatus(codes.Error, err.Error())
}

func (t *OtelTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(toAttributes(attributes)...))
}

func endWithStatus(span trace.Span, status model.JobStatus) {
	switch status {
	case model.BatchStatusFailed:
		span.SetStatus(codes.Error, "FAILED")
	case model.BatchStatusCompleted:
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func toAttributes(values map[string]interface{}) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(values))
	for k, v := range values {
		switch val := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case float64:
			attrs = append(attrs, attribute.Float64(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		default:
			attrs = append(attrs, attribute.String(k, fmt.Sprint(val)))
		}
	}
	return attrs
}

var _ metrics.Tracer = (*OtelTracer)(nil)
