package inmemory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tigerroll/customer-import/pkg/batch/core/domain/model"
	"github.com/tigerroll/customer-import/pkg/batch/core/domain/repository"
	"github.com/tigerroll/customer-import/pkg/batch/support/util/exception"
)

// SaveJobExecution stores a new JobExecution. Saving an existing ID is an error.
func (r *InMemoryJobRepository) SaveJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobExecutions[jobExecution.ID]; exists {
		return fmt.Errorf("JobExecution with ID %s already exists", jobExecution.ID)
	}
	r.jobExecutions[jobExecution.ID] = cloneJobExecution(jobExecution)
	return nil
}

// UpdateJobExecution replaces the stored JobExecution if its version still matches.
func (r *InMemoryJobRepository) UpdateJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.jobExecutions[jobExecution.ID]
	if !exists {
		return fmt.Errorf("JobExecution with ID %s not found for update", jobExecution.ID)
	}
	if stored.Version != jobExecution.Version {
		return exception.NewOptimisticLockingFailureException("repository", fmt.Sprintf("JobExecution (ID: %s) with version %d not found for update", jobExecution.ID, jobExecution.Version), nil)
	}
	jobExecution.Version++
	jobExecution.LastUpdated = time.Now()
	r.jobExecutions[jobExecution.ID] = cloneJobExecution(jobExecution)
	return nil
}

// FindJobExecutionByID returns the JobExecution with its StepExecutions in start order.
func (r *InMemoryJobRepository) FindJobExecutionByID(ctx context.Context, id string) (*model.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	jobExecution, ok := r.jobExecutions[id]
	if !ok {
		return nil, repository.ErrJobExecutionNotFound
	}

	cloned := cloneJobExecution(jobExecution)
	for _, se := range r.stepExecutions {
		if se.JobExecutionID == cloned.ID {
			cloned.StepExecutions = append(cloned.StepExecutions, cloneStepExecution(se))
		}
	}
	sort.Slice(cloned.StepExecutions, func(i, j int) bool {
		return cloned.StepExecutions[i].StartTime.Before(cloned.StepExecutions[j].StartTime)
	})
	return cloned, nil
}

// FindJobExecutionsByJobInstance returns the executions of jobInstance, newest first, without step executions.
func (r *InMemoryJobRepository) FindJobExecutionsByJobInstance(ctx context.Context, jobInstance *model.JobInstance) ([]*model.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	executions := make([]*model.JobExecution, 0)
	for _, je := range r.jobExecutions {
		if je.JobInstanceID == jobInstance.ID {
			executions = append(executions, cloneJobExecution(je))
		}
	}
	sort.Slice(executions, func(i, j int) bool {
		return executions[j].CreateTime.Before(executions[i].CreateTime)
	})
	return executions, nil
}
