package runner

import (
	"context"
	"time"

	port "github.com/tigerroll/customer-import/pkg/batch/core/application/port"
	model "github.com/tigerroll/customer-import/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/customer-import/pkg/batch/core/domain/repository"
	logger "github.com/tigerroll/customer-import/pkg/batch/support/util/logger"
)

// SimpleJobRunner implements port.JobRunner by calling the Job's Run method
// and persisting the JobExecution before and after it.
type SimpleJobRunner struct {
	jobRepository repository.JobRepository
}

// NewSimpleJobRunner creates an instance of SimpleJobRunner.
func NewSimpleJobRunner(repo repository.JobRepository) *SimpleJobRunner {
	return &SimpleJobRunner{jobRepository: repo}
}

// Run executes job for jobExecution and blocks until it has finished.
func (r *SimpleJobRunner) Run(ctx context.Context, job port.Job, jobExecution *model.JobExecution) {
	if jobExecution.Status == model.BatchStatusStarting {
		jobExecution.MarkAsStarted()
		if err := r.jobRepository.UpdateJobExecution(ctx, jobExecution); err != nil {
			logger.Errorf("JobRunner: Failed to update JobExecution (ID: %s) status to STARTED: %v", jobExecution.ID, err)
		}
	}

	err := job.Run(ctx, jobExecution, jobExecution.Parameters)

	if err != nil {
		if jobExecution.Status.IsFinished() {
			logger.Debugf("JobRunner: Job execution finished with error, status already set to %s.", jobExecution.Status)
		} else {
			jobExecution.MarkAsFailed(err)
		}
	} else if !jobExecution.Status.IsFinished() {
		jobExecution.MarkAsCompleted()
	}

	if jobExecution.EndTime == nil {
		now := time.Now()
		jobExecution.EndTime = &now
	}

	// The job context may already be cancelled (SIGINT); the final state must still be stored.
	persistCtx := context.WithoutCancel(ctx)
	if updateErr := r.jobRepository.UpdateJobExecution(persistCtx, jobExecution); updateErr != nil {
		logger.Errorf("JobRunner: Failed to update final JobExecution (ID: %s) state: %v", jobExecution.ID, updateErr)
	}
}

var _ port.JobRunner = (*SimpleJobRunner)(nil)
