// Package usecase contains the application services that start jobs.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	port "github.com/tigerroll/customer-import/pkg/batch/core/application/port"
	model "github.com/tigerroll/customer-import/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/customer-import/pkg/batch/core/domain/repository"
	exception "github.com/tigerroll/customer-import/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/customer-import/pkg/batch/support/util/logger"
)

// JobLauncher launches a Job with JobParameters.
type JobLauncher interface {
	// Launch runs the named job and returns its finished JobExecution.
	// The returned error reports a failure of the launch itself, not of the job.
	Launch(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error)
}

// ErrJobNotRegistered is returned when Launch is called with an unknown job name.
var ErrJobNotRegistered = errors.New("job not registered")

// ErrJobExecutionAlreadyRunning is returned when the JobInstance already has a running execution.
var ErrJobExecutionAlreadyRunning = errors.New("job execution already running")

// ErrJobInstanceAlreadyComplete is returned when the JobInstance already completed successfully.
var ErrJobInstanceAlreadyComplete = errors.New("job instance already complete")

func init() {
	exception.RegisterErrorType("ErrJobExecutionAlreadyRunning", ErrJobExecutionAlreadyRunning)
	exception.RegisterErrorType("ErrJobInstanceAlreadyComplete", ErrJobInstanceAlreadyComplete)
}

// SimpleJobLauncher implements JobLauncher for local, synchronous execution.
type SimpleJobLauncher struct {
	jobRepository repository.JobRepository
	jobRunner     port.JobRunner
	jobs          map[string]port.Job

	// activeJobCancellations holds the cancel functions for running jobs.
	activeJobCancellations map[string]context.CancelFunc
	mu                     sync.Mutex
}

var _ JobLauncher = (*SimpleJobLauncher)(nil)

// NewSimpleJobLauncher creates a new SimpleJobLauncher that can launch jobs.
func NewSimpleJobLauncher(repo repository.JobRepository, runner port.JobRunner, jobs ...port.Job) *SimpleJobLauncher {
	registry := make(map[string]port.Job, len(jobs))
	for _, j := range jobs {
		registry[j.JobName()] = j
	}
	return &SimpleJobLauncher{
		jobRepository:          repo,
		jobRunner:              runner,
		jobs:                   registry,
		activeJobCancellations: make(map[string]context.CancelFunc),
	}
}

func (l *SimpleJobLauncher) registerCancelFunc(executionID string, cancelFunc context.CancelFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.activeJobCancellations[executionID] = cancelFunc
}

func (l *SimpleJobLauncher) unregisterCancelFunc(executionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.activeJobCancellations, executionID)
}

// Stop cancels a running JobExecution launched by this launcher.
func (l *SimpleJobLauncher) Stop(executionID string) bool {
	l.mu.Lock()
	cancel, ok := l.activeJobCancellations[executionID]
	l.mu.Unlock()
	if ok {
		logger.Infof("Stopping JobExecution (ID: %s).", executionID)
		cancel()
	}
	return ok
}

// Launch launches a job execution and waits for it to finish.
func (l *SimpleJobLauncher) Launch(ctx context.Context, jobName string, jobParameters model.JobParameters) (*model.JobExecution, error) {
	const op = "SimpleJobLauncher.Launch"
	logger.Infof("Launching Job '%s'. Parameters: %s", jobName, jobParameters.String())

	job, ok := l.jobs[jobName]
	if !ok {
		return nil, exception.NewBatchError(op, fmt.Sprintf("Failed to find job definition for '%s'", jobName), ErrJobNotRegistered, false, false)
	}

	if incrementer := job.Incrementer(); incrementer != nil {
		next, err := l.nextParameters(ctx, jobName, jobParameters, incrementer)
		if err != nil {
			return nil, err
		}
		jobParameters = next
		logger.Infof("Generated new JobParameters using JobParametersIncrementer: %s", jobParameters.String())
	}

	if err := job.ValidateParameters(jobParameters); err != nil {
		logger.Errorf("Job '%s': JobParameters validation failed: %v", jobName, err)
		return nil, exception.NewBatchError(op, "JobParameters validation error", err, false, false)
	}

	jobInstance, err := l.findOrCreateInstance(ctx, jobName, jobParameters)
	if err != nil {
		return nil, err
	}

	jobExecution := model.NewJobExecution(jobInstance.ID, jobName, jobInstance.Parameters)

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	jobExecution.CancelFunc = cancel
	l.registerCancelFunc(jobExecution.ID, cancel)
	defer l.unregisterCancelFunc(jobExecution.ID)

	if err := l.jobRepository.SaveJobExecution(jobCtx, jobExecution); err != nil {
		logger.Errorf("Failed to persist JobExecution (ID: %s) initially: %v", jobExecution.ID, err)
		return jobExecution, exception.NewBatchError(op, "Failed to save JobExecution initially", err, false, false)
	}
	logger.Infof("Starting Job '%s' (Execution ID: %s, Job Instance ID: %s).", jobName, jobExecution.ID, jobInstance.ID)

	l.jobRunner.Run(jobCtx, job, jobExecution)
	return jobExecution, nil
}

// nextParameters derives the parameters of a new run from the latest instance of the job.
// Explicitly given parameters override the stored ones.
func (l *SimpleJobLauncher) nextParameters(ctx context.Context, jobName string, given model.JobParameters, inc port.JobParametersIncrementer) (model.JobParameters, error) {
	base := model.NewJobParameters()
	last, err := l.jobRepository.FindLatestJobInstanceByJobName(ctx, jobName)
	switch {
	case err == nil:
		base = last.Parameters.Copy()
	case errors.Is(err, repository.ErrJobInstanceNotFound):
	default:
		return model.JobParameters{}, exception.NewBatchError("job_launcher", "Failed to find latest JobInstance", err, false, false)
	}
	for k, v := range given.Params {
		base.Put(k, v)
	}
	return inc.GetNext(base), nil
}

func (l *SimpleJobLauncher) findOrCreateInstance(ctx context.Context, jobName string, params model.JobParameters) (*model.JobInstance, error) {
	existing, err := l.jobRepository.FindJobInstanceByJobNameAndParameters(ctx, jobName, params)
	if err != nil && !errors.Is(err, repository.ErrJobInstanceNotFound) {
		return nil, exception.NewBatchError("job_launcher", "Failed to search for existing JobInstance", err, false, false)
	}

	if existing == nil {
		instance := model.NewJobInstance(jobName, params)
		if err := l.jobRepository.SaveJobInstance(ctx, instance); err != nil {
			return nil, exception.NewBatchError("job_launcher", fmt.Sprintf("Failed to save new JobInstance for '%s'", jobName), err, false, false)
		}
		logger.Infof("Created and saved new JobInstance (ID: %s, JobName: %s).", instance.ID, jobName)
		return instance, nil
	}

	executions, err := l.jobRepository.FindJobExecutionsByJobInstance(ctx, existing)
	if err != nil && !errors.Is(err, repository.ErrJobExecutionNotFound) {
		return nil, exception.NewBatchError("job_launcher", "Failed to search JobExecutions of existing JobInstance", err, false, false)
	}
	for _, je := range executions {
		if !je.Status.IsFinished() {
			return nil, exception.NewBatchErrorf("job_launcher", "JobExecution (ID: %s, Status: %s) already exists for JobInstance (ID: %s)", je.ID, je.Status, existing.ID, ErrJobExecutionAlreadyRunning)
		}
		if je.Status == model.BatchStatusCompleted {
			return nil, exception.NewBatchErrorf("job_launcher", "JobInstance (ID: %s) already completed in JobExecution (ID: %s)", existing.ID, je.ID, ErrJobInstanceAlreadyComplete)
		}
	}
	logger.Infof("Creating new JobExecution for existing JobInstance (ID: %s).", existing.ID)
	return existing, nil
}
