// Package tracing provides listeners that annotate the job and step spans with lifecycle events.
// The spans themselves are started by the job and the step; listeners receive their contexts.
package tracing

import (
	"context"
	"errors"

	port "github.com/tigerroll/customer-import/pkg/batch/core/application/port"
	model "github.com/tigerroll/customer-import/pkg/batch/core/domain/model"
	"github.com/tigerroll/customer-import/pkg/batch/core/metrics"
)

// TracingJobListener records job parameters and failures on the job span.
type TracingJobListener struct {
	tracer metrics.Tracer
}

func NewTracingJobListener(tracer metrics.Tracer) *TracingJobListener {
	return &TracingJobListener{tracer: tracer}
}

func (l *TracingJobListener) BeforeJob(ctx context.Context, jobExecution *model.JobExecution) {
	l.tracer.RecordEvent(ctx, "job.started", map[string]interface{}{
		"job.parameters": jobExecution.Parameters.String(),
	})
}

func (l *TracingJobListener) AfterJob(ctx context.Context, jobExecution *model.JobExecution) {
	for _, failure := range jobExecution.Failures {
		l.tracer.RecordError(ctx, jobExecution.JobName, errors.New(failure))
	}
	l.tracer.RecordEvent(ctx, "job.finished", map[string]interface{}{
		"job.status":      jobExecution.Status.String(),
		"job.exit_status": jobExecution.ExitStatus.String(),
	})
}

var _ port.JobExecutionListener = (*TracingJobListener)(nil)

// TracingStepListener records the step counters on the step span.
type TracingStepListener struct {
	tracer metrics.Tracer
}

func NewTracingStepListener(tracer metrics.Tracer) *TracingStepListener {
	return &TracingStepListener{tracer: tracer}
}

func (l *TracingStepListener) BeforeStep(ctx context.Context, stepExecution *model.StepExecution) {
	l.tracer.RecordEvent(ctx, "step.started", map[string]interface{}{"step.name": stepExecution.StepName})
}

func (l *TracingStepListener) AfterStep(ctx context.Context, stepExecution *model.StepExecution) {
	l.tracer.RecordEvent(ctx, "step.finished", map[string]interface{}{
		"step.status":         stepExecution.Status.String(),
		"step.read_count":     stepExecution.ReadCount,
		"step.write_count":    stepExecution.WriteCount,
		"step.filter_count":   stepExecution.FilterCount,
		"step.commit_count":   stepExecution.CommitCount,
		"step.rollback_count": stepExecution.RollbackCount,
	})
}

var _ port.StepExecutionListener = (*TracingStepListener)(nil)
