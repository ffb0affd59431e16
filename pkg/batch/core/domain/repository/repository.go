// Package repository declares the store of batch execution metadata.
package repository

import (
	"context"
	"errors"

	model "github.com/tigerroll/customer-import/pkg/batch/core/domain/model"
	"github.com/tigerroll/customer-import/pkg/batch/support/util/exception"
)

// Lookup failures. They are registered with exception so retry and skip settings can name them.
var (
	ErrJobInstanceNotFound   = errors.New("job instance not found")
	ErrJobExecutionNotFound  = errors.New("job execution not found")
	ErrStepExecutionNotFound = errors.New("step execution not found")
)

func init() {
	exception.RegisterErrorType("ErrJobInstanceNotFound", ErrJobInstanceNotFound)
	exception.RegisterErrorType("ErrJobExecutionNotFound", ErrJobExecutionNotFound)
	exception.RegisterErrorType("ErrStepExecutionNotFound", ErrStepExecutionNotFound)
}

// JobRepository persists JobInstances, JobExecutions and StepExecutions.
// Updates are versioned: an update of a stale copy fails with an optimistic locking error.
type JobRepository interface {
	SaveJobInstance(ctx context.Context, instance *model.JobInstance) error
	FindJobInstanceByID(ctx context.Context, id string) (*model.JobInstance, error)
	// FindJobInstanceByJobNameAndParameters matches the parameters exactly (by hash).
	FindJobInstanceByJobNameAndParameters(ctx context.Context, jobName string, params model.JobParameters) (*model.JobInstance, error)
	// FindLatestJobInstanceByJobName returns the most recently created instance of jobName.
	FindLatestJobInstanceByJobName(ctx context.Context, jobName string) (*model.JobInstance, error)
	GetJobInstanceCount(ctx context.Context, jobName string) (int, error)

	SaveJobExecution(ctx context.Context, jobExecution *model.JobExecution) error
	UpdateJobExecution(ctx context.Context, jobExecution *model.JobExecution) error
	// FindJobExecutionByID loads the execution together with its StepExecutions.
	FindJobExecutionByID(ctx context.Context, executionID string) (*model.JobExecution, error)
	// FindJobExecutionsByJobInstance returns the executions of jobInstance, newest first.
	FindJobExecutionsByJobInstance(ctx context.Context, jobInstance *model.JobInstance) ([]*model.JobExecution, error)

	SaveStepExecution(ctx context.Context, stepExecution *model.StepExecution) error
	// UpdateStepExecution stores counters, status and ExecutionContext.
	UpdateStepExecution(ctx context.Context, stepExecution *model.StepExecution) error
	FindStepExecutionByID(ctx context.Context, executionID string) (*model.StepExecution, error)
	// FindStepExecutionsByJobExecutionID returns the steps of a JobExecution in start order.
	FindStepExecutionsByJobExecutionID(ctx context.Context, jobExecutionID string) ([]*model.StepExecution, error)

	// Close releases what the repository owns. Pooled connections belong to their provider.
	Close() error
}
