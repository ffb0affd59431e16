package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/customer-import/pkg/batch/core/domain/model"
)

// NoOpMetricRecorder discards all metrics.
type NoOpMetricRecorder struct{}

var _ MetricRecorder = (*NoOpMetricRecorder)(nil)

func NewNoOpMetricRecorder() *NoOpMetricRecorder { return &NoOpMetricRecorder{} }

func (n *NoOpMetricRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution)   {}
func (n *NoOpMetricRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution)     {}
func (n *NoOpMetricRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {}
func (n *NoOpMetricRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution)   {}
func (n *NoOpMetricRecorder) RecordItemRead(ctx context.Context, stepName string)                 {}
func (n *NoOpMetricRecorder) RecordItemProcess(ctx context.Context, stepName string)              {}
func (n *NoOpMetricRecorder) RecordItemWrite(ctx context.Context, stepName string, count int)     {}
func (n *NoOpMetricRecorder) RecordItemSkip(ctx context.Context, stepName string, reason string)  {}
func (n *NoOpMetricRecorder) RecordItemRetry(ctx context.Context, stepName string, reason string) {}
func (n *NoOpMetricRecorder) RecordChunkCommit(ctx context.Context, stepName string, count int)   {}
func (n *NoOpMetricRecorder) RecordChunkRollback(ctx context.Context, stepName string)            {}
func (n *NoOpMetricRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
}

// NoOpTracer starts no spans.
type NoOpTracer struct{}

var _ Tracer = (*NoOpTracer)(nil)

func NewNoOpTracer() *NoOpTracer { return &NoOpTracer{} }

func (n *NoOpTracer) StartJobSpan(ctx context.Context, execution *model.JobExecution) (context.Context, func()) {
	return ctx, func() {}
}

func (n *NoOpTracer) StartStepSpan(ctx context.Context, execution *model.StepExecution) (context.Context, func()) {
	return ctx, func() {}
}

func (n *NoOpTracer) StartChunkSpan(ctx context.Context, stepName string, chunkNumber int) (context.Context, func()) {
	return ctx, func() {}
}

func (n *NoOpTracer) RecordError(ctx context.Context, module string, err error) {}

func (n *NoOpTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
}
