package metrics

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	model "github.com/tigerroll/customer-import/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/customer-import/pkg/batch/core/metrics"
)

// OtelMetricRecorder is an OpenTelemetry implementation of metrics.MetricRecorder.
// Export is driven by the MeterProvider the meter comes from.
type OtelMetricRecorder struct {
	jobs          metric.Int64Counter
	jobDuration   metric.Float64Histogram
	steps         metric.Int64Counter
	stepDuration  metric.Float64Histogram
	itemsRead     metric.Int64Counter
	itemsProcess  metric.Int64Counter
	itemsWritten  metric.Int64Counter
	itemsFiltered metric.Int64Counter
	itemSkips     metric.Int64Counter
	itemRetries   metric.Int64Counter
	commits       metric.Int64Counter
	rollbacks     metric.Int64Counter
	operations    metric.Float64Histogram
}

// NewOtelMetricRecorder creates the instruments on meter.
func NewOtelMetricRecorder(meter metric.Meter) (*OtelMetricRecorder, error) {
	r := &OtelMetricRecorder{}
	var err, e error

	r.jobs, e = meter.Int64Counter("batch.job.executions", metric.WithDescription("Job executions by status."))
	err = errors.Join(err, e)
	r.jobDuration, e = meter.Float64Histogram("batch.job.duration", metric.WithUnit("s"), metric.WithDescription("Duration of job executions."))
	err = errors.Join(err, e)
	r.steps, e = meter.Int64Counter("batch.step.executions", metric.WithDescription("Step executions by status."))
	err = errors.Join(err, e)
	r.stepDuration, e = meter.Float64Histogram("batch.step.duration", metric.WithUnit("s"), metric.WithDescription("Duration of step executions."))
	err = errors.Join(err, e)
	r.itemsRead, e = meter.Int64Counter("batch.item.read", metric.WithDescription("Items read."))
	err = errors.Join(err, e)
	r.itemsProcess, e = meter.Int64Counter("batch.item.processed", metric.WithDescription("Items processed."))
	err = errors.Join(err, e)
	r.itemsWritten, e = meter.Int64Counter("batch.item.written", metric.WithDescription("Items written."))
	err = errors.Join(err, e)
	r.itemsFiltered, e = meter.Int64Counter("batch.item.filtered", metric.WithDescription("Items filtered."))
	err = errors.Join(err, e)
	r.itemSkips, e = meter.Int64Counter("batch.item.skipped", metric.WithDescription("Items skipped."))
	err = errors.Join(err, e)
	r.itemRetries, e = meter.Int64Counter("batch.item.retried", metric.WithDescription("Item retries."))
	err = errors.Join(err, e)
	r.commits, e = meter.Int64Counter("batch.chunk.commits", metric.WithDescription("Committed chunks."))
	err = errors.Join(err, e)
	r.rollbacks, e = meter.Int64Counter("batch.chunk.rollbacks", metric.WithDescription("Rolled back chunks."))
	err = errors.Join(err, e)
	r.operations, e = meter.Float64Histogram("batch.operation.duration", metric.WithUnit("s"), metric.WithDescription("Duration of named operations."))
	err = errors.Join(err, e)

	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *OtelMetricRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {
	r.jobs.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job_name", execution.JobName),
		attribute.String("status", execution.Status.String()),
	))
}

func (r *OtelMetricRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	attrs := metric.WithAttributes(
		attribute.String("job_name", execution.JobName),
		attribute.String("status", execution.Status.String()),
	)
	r.jobs.Add(ctx, 1, attrs)
	if execution.EndTime != nil {
		r.jobDuration.Record(ctx, execution.EndTime.Sub(execution.StartTime).Seconds(), attrs)
	}
}

func (r *OtelMetricRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {
	r.steps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job_name", jobNameOf(execution)),
		attribute.String("step_name", execution.StepName),
		attribute.String("status", execution.Status.String()),
	))
}

func (r *OtelMetricRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {
	stepAttrs := metric.WithAttributes(stepAttributes(jobNameOf(execution), execution.StepName)...)
	attrs := metric.WithAttributes(
		attribute.String("job_name", jobNameOf(execution)),
		attribute.String("step_name", execution.StepName),
		attribute.String("status", execution.Status.String()),
	)
	r.steps.Add(ctx, 1, attrs)
	r.itemsFiltered.Add(ctx, int64(execution.FilterCount), stepAttrs)
	if execution.EndTime != nil {
		r.stepDuration.Record(ctx, execution.EndTime.Sub(execution.StartTime).Seconds(), attrs)
	}
}

func (r *OtelMetricRecorder) RecordItemRead(ctx context.Context, stepName string) {
	r.itemsRead.Add(ctx, 1, metric.WithAttributes(stepAttributes(jobNameFromContext(ctx), stepName)...))
}

func (r *OtelMetricRecorder) RecordItemProcess(ctx context.Context, stepName string) {
	r.itemsProcess.Add(ctx, 1, metric.WithAttributes(stepAttributes(jobNameFromContext(ctx), stepName)...))
}

func (r *OtelMetricRecorder) RecordItemWrite(ctx context.Context, stepName string, count int) {
	r.itemsWritten.Add(ctx, int64(count), metric.WithAttributes(stepAttributes(jobNameFromContext(ctx), stepName)...))
}

func (r *OtelMetricRecorder) RecordItemSkip(ctx context.Context, stepName string, reason string) {
	attrs := append(stepAttributes(jobNameFromContext(ctx), stepName), attribute.String("reason", reason))
	r.itemSkips.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (r *OtelMetricRecorder) RecordItemRetry(ctx context.Context, stepName string, reason string) {
	attrs := append(stepAttributes(jobNameFromContext(ctx), stepName), attribute.String("reason", reason))
	r.itemRetries.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (r *OtelMetricRecorder) RecordChunkCommit(ctx context.Context, stepName string, count int) {
	r.commits.Add(ctx, 1, metric.WithAttributes(stepAttributes(jobNameFromContext(ctx), stepName)...))
}

func (r *OtelMetricRecorder) RecordChunkRollback(ctx context.Context, stepName string) {
	r.rollbacks.Add(ctx, 1, metric.WithAttributes(stepAttributes(jobNameFromContext(ctx), stepName)...))
}

func (r *OtelMetricRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	attrs := make([]attribute.KeyValue, 0, len(tags)+1)
	attrs = append(attrs, attribute.String("operation", name))
	for k, v := range tags {
		attrs = append(attrs, attribute.String(k, v))
	}
	r.operations.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

func stepAttributes(jobName, stepName string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("job_name", jobName),
		attribute.String("step_name", stepName),
	}
}

var _ metrics.MetricRecorder = (*OtelMetricRecorder)(nil)
