package metrics

import (
	"context"

	model "github.com/tigerroll/customer-import/pkg/batch/core/domain/model"
)

// Tracer integrates job and step execution with a distributed tracing system.
type Tracer interface {
	// StartJobSpan starts a span for a JobExecution and returns the derived context and an end function.
	StartJobSpan(ctx context.Context, execution *model.JobExecution) (context.Context, func())
	// StartStepSpan starts a span for a StepExecution.
	StartStepSpan(ctx context.Context, execution *model.StepExecution) (context.Context, func())
	// StartChunkSpan starts a span covering one chunk transaction.
	StartChunkSpan(ctx context.Context, stepName string, chunkNumber int) (context.Context, func())

	// RecordError records err on the current span. module names the failing component.
	RecordError(ctx context.Context, module string, err error)
	// RecordEvent records a named event on the current span.
	RecordEvent(ctx context.Context, name string, attributes map[string]interface{})
}
