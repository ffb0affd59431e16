package inmemory

import (
	"context"
	"fmt"

	"github.com/tigerroll/customer-import/pkg/batch/core/domain/model"
	"github.com/tigerroll/customer-import/pkg/batch/core/domain/repository"
)

// SaveJobInstance stores a new JobInstance. Saving an existing ID is an error.
func (r *InMemoryJobRepository) SaveJobInstance(ctx context.Context, jobInstance *model.JobInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobInstances[jobInstance.ID]; exists {
		return fmt.Errorf("JobInstance with ID %s already exists", jobInstance.ID)
	}
	r.jobInstances[jobInstance.ID] = cloneJobInstance(jobInstance)
	return nil
}

func (r *InMemoryJobRepository) FindJobInstanceByID(ctx context.Context, id string) (*model.JobInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	jobInstance, ok := r.jobInstances[id]
	if !ok {
		return nil, repository.ErrJobInstanceNotFound
	}
	return cloneJobInstance(jobInstance), nil
}

func (r *InMemoryJobRepository) FindJobInstanceByJobNameAndParameters(ctx context.Context, jobName string, params model.JobParameters) (*model.JobInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, ji := range r.jobInstances {
		if ji.JobName == jobName && ji.Parameters.Equal(params) {
			return cloneJobInstance(ji), nil
		}
	}
	return nil, repository.ErrJobInstanceNotFound
}

// FindLatestJobInstanceByJobName returns the most recently created instance of jobName.
func (r *InMemoryJobRepository) FindLatestJobInstanceByJobName(ctx context.Context, jobName string) (*model.JobInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *model.JobInstance
	for _, ji := range r.jobInstances {
		if ji.JobName != jobName {
			continue
		}
		if latest == nil || ji.CreateTime.After(latest.CreateTime) {
			latest = ji
		}
	}
	if latest == nil {
		return nil, repository.ErrJobInstanceNotFound
	}
	return cloneJobInstance(latest), nil
}

func (r *InMemoryJobRepository) GetJobInstanceCount(ctx context.Context, jobName string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, ji := range r.jobInstances {
		if ji.JobName == jobName {
			count++
		}
	}
	return count, nil
}
