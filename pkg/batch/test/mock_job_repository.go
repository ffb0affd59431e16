package test

import (
	"context"

	"github.com/stretchr/testify/mock"

	model "github.com/tigerroll/customer-import/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/customer-import/pkg/batch/core/domain/repository"
)

// MockJobRepository is a testify mock of repository.JobRepository.
type MockJobRepository struct {
	mock.Mock
}

func (m *MockJobRepository) SaveJobInstance(ctx context.Context, instance *model.JobInstance) error {
	return m.Called(ctx, instance).Error(0)
}

func (m *MockJobRepository) FindJobInstanceByID(ctx context.Context, id string) (*model.JobInstance, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.JobInstance), args.Error(1)
}

func (m *MockJobRepository) FindJobInstanceByJobNameAndParameters(ctx context.Context, jobName string, params model.JobParameters) (*model.JobInstance, error) {
	args := m.Called(ctx, jobName, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.JobInstance), args.Error(1)
}

func (m *MockJobRepository) FindLatestJobInstanceByJobName(ctx context.Context, jobName string) (*model.JobInstance, error) {
	args := m.Called(ctx, jobName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.JobInstance), args.Error(1)
}

func (m *MockJobRepository) GetJobInstanceCount(ctx context.Context, jobName string) (int, error) {
	args := m.Called(ctx, jobName)
	return args.Int(0), args.Error(1)
}

func (m *MockJobRepository) SaveJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	return m.Called(ctx, jobExecution).Error(0)
}

func (m *MockJobRepository) UpdateJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	return m.Called(ctx, jobExecution).Error(0)
}

func (m *MockJobRepository) FindJobExecutionByID(ctx context.Context, executionID string) (*model.JobExecution, error) {
	args := m.Called(ctx, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.JobExecution), args.Error(1)
}

func (m *MockJobRepository) FindJobExecutionsByJobInstance(ctx context.Context, jobInstance *model.JobInstance) ([]*model.JobExecution, error) {
	args := m.Called(ctx, jobInstance)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.JobExecution), args.Error(1)
}

func (m *MockJobRepository) SaveStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	return m.Called(ctx, stepExecution).Error(0)
}

func (m *MockJobRepository) UpdateStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	return m.Called(ctx, stepExecution).Error(0)
}

func (m *MockJobRepository) FindStepExecutionByID(ctx context.Context, executionID string) (*model.StepExecution, error) {
	args := m.Called(ctx, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.StepExecution), args.Error(1)
}

func (m *MockJobRepository) FindStepExecutionsByJobExecutionID(ctx context.Context, jobExecutionID string) ([]*model.StepExecution, error) {
	args := m.Called(ctx, jobExecutionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.StepExecution), args.Error(1)
}

func (m *MockJobRepository) Close() error {
	return m.Called().Error(0)
}

var _ repository.JobRepository = (*MockJobRepository)(nil)
