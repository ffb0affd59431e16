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

// SaveStepExecution stores a new StepExecution. Saving an existing ID is an error.
func (r *InMemoryJobRepository) SaveStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.stepExecutions[stepExecution.ID]; exists {
		return fmt.Errorf("StepExecution with ID %s already exists", stepExecution.ID)
	}
	r.stepExecutions[stepExecution.ID] = cloneStepExecution(stepExecution)
	return nil
}

// UpdateStepExecution replaces the stored StepExecution if its version still matches.
func (r *InMemoryJobRepository) UpdateStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.stepExecutions[stepExecution.ID]
	if !exists {
		return fmt.Errorf("StepExecution with ID %s not found for update", stepExecution.ID)
	}
	if stored.Version != stepExecution.Version {
		return exception.NewOptimisticLockingFailureException("repository", fmt.Sprintf("StepExecution (ID: %s) with version %d not found for update", stepExecution.ID, stepExecution.Version), nil)
	}
	stepExecution.Version++
	stepExecution.LastUpdated = time.Now()
	r.stepExecutions[stepExecution.ID] = cloneStepExecution(stepExecution)
	return nil
}

func (r *InMemoryJobRepository) FindStepExecutionByID(ctx context.Context, id string) (*model.StepExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stepExecution, ok := r.stepExecutions[id]
	if !ok {
		return nil, repository.ErrStepExecutionNotFound
	}
	return cloneStepExecution(stepExecution), nil
}

func (r *InMemoryJobRepository) FindStepExecutionsByJobExecutionID(ctx context.Context, jobExecutionID string) ([]*model.StepExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	executions := make([]*model.StepExecution, 0)
	for _, se := range r.stepExecutions {
		if se.JobExecutionID == jobExecutionID {
			executions = append(executions, cloneStepExecution(se))
		}
	}
	sort.Slice(executions, func(i, j int) bool {
		return executions[i].StartTime.Before(executions[j].StartTime)
	})
	return executions, nil
}
