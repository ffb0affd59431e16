package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/customer-import/pkg/batch/core/domain/model"
)

// MetricRecorder records metrics about batch execution.
// Implementations exist for Prometheus and OpenTelemetry; NoOpMetricRecorder disables recording.
type MetricRecorder interface {
	// RecordJobStart records the start of a JobExecution.
	RecordJobStart(ctx context.Context, execution *model.JobExecution)
	// RecordJobEnd records the end of a JobExecution.
	RecordJobEnd(ctx context.Context, execution *model.JobExecution)
	// RecordStepStart records the start of a StepExecution.
	RecordStepStart(ctx context.Context, execution *model.StepExecution)
	// RecordStepEnd records the end of a StepExecution.
	RecordStepEnd(ctx context.Context, execution *model.StepExecution)

	// RecordItemRead records the successful reading of an item.
	RecordItemRead(ctx context.Context, stepName string)
	// RecordItemProcess records the successful processing of an item.
	RecordItemProcess(ctx context.Context, stepName string)
	// RecordItemWrite records count items written.
	RecordItemWrite(ctx context.Context, stepName string, count int)
	// RecordItemSkip records a skipped item; reason is usually the error type.
	RecordItemSkip(ctx context.Context, stepName string, reason string)
	// RecordItemRetry records a retried item; reason is usually the error type.
	RecordItemRetry(ctx context.Context, stepName string, reason string)

	// RecordChunkCommit records a committed chunk of count items.
	RecordChunkCommit(ctx context.Context, stepName string, count int)
	// RecordChunkRollback records a rolled back chunk.
	RecordChunkRollback(ctx context.Context, stepName string)

	// RecordDuration records the duration of an arbitrary named operation.
	RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string)
}

// Flusher is implemented by recorders that export their metrics at job end
// (e.g. Prometheus push or textfile).
type Flusher interface {
	Flush(ctx context.Context) error
}
