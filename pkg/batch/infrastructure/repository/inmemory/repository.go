// Package inmemory provides a JobRepository that keeps batch metadata in process memory.
// It suits tests and one-off runs where no metadata needs to survive the process.
package inmemory

import (
	"sync"

	"github.com/tigerroll/customer-import/pkg/batch/core/domain/model"
	"github.com/tigerroll/customer-import/pkg/batch/core/domain/repository"
)

// InMemoryJobRepository stores snapshots of the saved entities, so callers may keep
// mutating their own copies between updates.
type InMemoryJobRepository struct {
	jobInstances   map[string]*model.JobInstance
	jobExecutions  map[string]*model.JobExecution
	stepExecutions map[string]*model.StepExecution
	mu             sync.RWMutex
}

// NewInMemoryJobRepository creates an empty InMemoryJobRepository.
func NewInMemoryJobRepository() *InMemoryJobRepository {
	return &InMemoryJobRepository{
		jobInstances:   make(map[string]*model.JobInstance),
		jobExecutions:  make(map[string]*model.JobExecution),
		stepExecutions: make(map[string]*model.StepExecution),
	}
}

// Close implements repository.JobRepository.
func (r *InMemoryJobRepository) Close() error {
	return nil
}

func cloneJobInstance(ji *model.JobInstance) *model.JobInstance {
	c := *ji
	c.Parameters = ji.Parameters.Copy()
	return &c
}

func cloneJobExecution(je *model.JobExecution) *model.JobExecution {
	c := *je
	c.Parameters = je.Parameters.Copy()
	c.ExecutionContext = je.ExecutionContext.Copy()
	c.Failures = append(model.FailureList(nil), je.Failures...)
	c.StepExecutions = make([]*model.StepExecution, 0)
	c.CancelFunc = nil
	return &c
}

func cloneStepExecution(se *model.StepExecution) *model.StepExecution {
	c := *se
	c.ExecutionContext = se.ExecutionContext.Copy()
	c.Failures = append(model.FailureList(nil), se.Failures...)
	c.JobExecution = nil
	return &c
}

var _ repository.JobRepository = (*InMemoryJobRepository)(nil)
