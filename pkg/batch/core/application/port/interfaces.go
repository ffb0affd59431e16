// Package port defines the core interfaces (ports) for the batch application.
// Steps, jobs and item components depend on these interfaces only.
package port

import (
	"context"
	"database/sql"
	"errors"

	model "github.com/tigerroll/customer-import/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/customer-import/pkg/batch/core/metrics"
	tx "github.com/tigerroll/customer-import/pkg/batch/core/tx"
)

// ErrNoMoreItems is returned by ItemReader.Read at end of input.
var ErrNoMoreItems = errors.New("no more items to read")

// ErrExecutionContextNotSupported is returned when a component does not support getting or setting ExecutionContext.
var ErrExecutionContextNotSupported = errors.New("execution context not supported by this component")

// JobRunner executes a Job for a prepared JobExecution and persists its terminal state.
type JobRunner interface {
	// Run blocks until the job has finished.
	Run(ctx context.Context, job Job, jobExecution *model.JobExecution)
}

// Job is an executable batch job.
type Job interface {
	// Run executes the job's steps in order.
	Run(ctx context.Context, jobExecution *model.JobExecution, jobParameters model.JobParameters) error
	// JobName returns the logical name of the job.
	JobName() string
	// ID returns the unique ID of the job definition.
	ID() string
	// ValidateParameters validates job parameters before job execution.
	ValidateParameters(params model.JobParameters) error
	// Incrementer returns the parameters incrementer, or nil.
	Incrementer() JobParametersIncrementer
}

// Step is a single step executed within a job.
type Step interface {
	// Execute runs the step and updates stepExecution with its outcome.
	Execute(ctx context.Context, jobExecution *model.JobExecution, stepExecution *model.StepExecution) error
	// StepName returns the logical name of the step.
	StepName() string
	// ID returns the unique ID of the step definition.
	ID() string
	// GetTransactionOptions returns the transaction options (e.g., isolation level) for this step.
	GetTransactionOptions() *sql.TxOptions

	SetMetricRecorder(recorder metrics.MetricRecorder)
	SetTracer(tracer metrics.Tracer)
}

// ItemReader reads items one at a time.
// O is the type of item to be read.
type ItemReader[O any] interface {
	// Open opens resources and restores state from ExecutionContext.
	Open(ctx context.Context, ec model.ExecutionContext) error
	// Read reads the next item. Returns ErrNoMoreItems if no more items are available.
	Read(ctx context.Context) (O, error)
	// Close closes resources.
	Close(ctx context.Context) error
	// SetExecutionContext sets the state of the ItemReader.
	SetExecutionContext(ctx context.Context, ec model.ExecutionContext) error
	// GetExecutionContext returns the current state of the ItemReader.
	GetExecutionContext(ctx context.Context) (model.ExecutionContext, error)
}

// ItemProcessor transforms one item.
// Implementations must be safe for concurrent use: chunks are processed on several workers.
type ItemProcessor[I, O any] interface {
	// Process returns the output item, or the zero value (nil) when the item is filtered.
	Process(ctx context.Context, item I) (O, error)
}

// ItemWriter writes a chunk of items inside the chunk's transaction.
// Write may be called concurrently with distinct transactions.
type ItemWriter[I any] interface {
	// Open opens resources and restores state from ExecutionContext.
	Open(ctx context.Context, ec model.ExecutionContext) error
	// Write persists items using tx.
	Write(ctx context.Context, tx tx.Tx, items []I) error
	// Close closes resources.
	Close(ctx context.Context) error
	// SetExecutionContext sets the state of the ItemWriter.
	SetExecutionContext(ctx context.Context, ec model.ExecutionContext) error
	// GetExecutionContext returns the current state of the ItemWriter.
	GetExecutionContext(ctx context.Context) (model.ExecutionContext, error)
}

// Tasklet is a single unit of work executed by a TaskletStep.
type Tasklet interface {
	// Execute runs the work and returns the step's exit status.
	Execute(ctx context.Context, stepExecution *model.StepExecution) (model.ExitStatus, error)
	// Close releases resources. It is called once after Execute, even on failure.
	Close(ctx context.Context) error
}

// JobParametersIncrementer derives the next JobParameters from the given ones.
type JobParametersIncrementer interface {
	GetNext(params model.JobParameters) model.JobParameters
}

// RetryItemListener is notified before an item operation is retried.
type RetryItemListener interface {
	OnRetryRead(ctx context.Context, err error)
	OnRetryProcess(ctx context.Context, item interface{}, err error)
	OnRetryWrite(ctx context.Context, items []interface{}, err error)
}

// SkipListener is notified after an item was skipped.
type SkipListener interface {
	OnSkipRead(ctx context.Context, err error)
	OnSkipProcess(ctx context.Context, item interface{}, err error)
	OnSkipWrite(ctx context.Context, item interface{}, err error)
}

// StepExecutionListener is an interface for handling step execution events.
type StepExecutionListener interface {
	// BeforeStep is called just before a step execution starts.
	BeforeStep(ctx context.Context, stepExecution *model.StepExecution)
	// AfterStep is called after a step execution completes (regardless of success or failure).
	AfterStep(ctx context.Context, stepExecution *model.StepExecution)
}

// ChunkListener is an interface for handling chunk processing events.
// Chunks run concurrently, so implementations must be goroutine-safe.
type ChunkListener interface {
	// BeforeChunk is called before a chunk's transaction begins.
	BeforeChunk(ctx context.Context, stepExecution *model.StepExecution)
	// AfterChunk is called after the chunk's commit or rollback.
	AfterChunk(ctx context.Context, stepExecution *model.StepExecution)
}

// JobExecutionListener is an interface for handling job execution events.
type JobExecutionListener interface {
	// BeforeJob is called just before a job execution starts.
	BeforeJob(ctx context.Context, jobExecution *model.JobExecution)
	// AfterJob is called after a job execution completes (regardless of success or failure).
	AfterJob(ctx context.Context, jobExecution *model.JobExecution)
}

// ItemReadListener is notified of read errors.
type ItemReadListener interface {
	OnReadError(ctx context.Context, err error)
}

// ItemProcessListener is notified of process errors.
type ItemProcessListener interface {
	OnProcessError(ctx context.Context, item interface{}, err error)
}

// ItemWriteListener is notified of write errors.
type ItemWriteListener interface {
	OnWriteError(ctx context.Context, items []interface{}, err error)
}

type contextKey string

// StepExecutionKey is the context key under which the running StepExecution is stored.
const StepExecutionKey contextKey = "stepExecution"

// GetContextWithStepExecution stores a StepExecution in the Context.
func GetContextWithStepExecution(ctx context.Context, se *model.StepExecution) context.Context {
	return context.WithValue(ctx, StepExecutionKey, se)
}

// GetStepExecutionFromContext retrieves a StepExecution from the Context. Returns nil if not found.
func GetStepExecutionFromContext(ctx context.Context) *model.StepExecution {
	if se, ok := ctx.Value(StepExecutionKey).(*model.StepExecution); ok {
		return se
	}
	return nil
}
