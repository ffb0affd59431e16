// Package job provides SimpleJob, a job that runs its steps in sequence.
package job

import (
	"context"
	"errors"
	"time"

	port "github.com/tigerroll/customer-import/pkg/batch/core/application/port"
	model "github.com/tigerroll/customer-import/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/customer-import/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/customer-import/pkg/batch/core/metrics"
	exception "github.com/tigerroll/customer-import/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/customer-import/pkg/batch/support/util/logger"
)

// ParametersValidator validates JobParameters before a run.
type ParametersValidator func(params model.JobParameters) error

// SimpleJob executes its steps in order and stops at the first step that does not complete.
// The job is COMPLETED only when every step is COMPLETED.
type SimpleJob struct {
	id             string
	name           string
	steps          []port.Step
	jobRepository  repository.JobRepository
	jobListeners   []port.JobExecutionListener
	incrementer    port.JobParametersIncrementer
	validator      ParametersValidator
	metricRecorder metrics.MetricRecorder
	tracer         metrics.Tracer
}

var _ port.Job = (*SimpleJob)(nil)

// Option configures a SimpleJob.
type Option func(*SimpleJob)

// WithListeners registers JobExecutionListeners.
func WithListeners(listeners ...port.JobExecutionListener) Option {
	return func(j *SimpleJob) { j.jobListeners = append(j.jobListeners, listeners...) }
}

// WithIncrementer sets the JobParametersIncrementer used by the launcher.
func WithIncrementer(inc port.JobParametersIncrementer) Option {
	return func(j *SimpleJob) { j.incrementer = inc }
}

// WithValidator sets the JobParameters validator.
func WithValidator(v ParametersValidator) Option {
	return func(j *SimpleJob) { j.validator = v }
}

// WithMetrics sets the metric recorder and tracer of the job and all of its steps.
func WithMetrics(recorder metrics.MetricRecorder, tracer metrics.Tracer) Option {
	return func(j *SimpleJob) {
		if recorder != nil {
			j.metricRecorder = recorder
		}
		if tracer != nil {
			j.tracer = tracer
		}
	}
}

// NewSimpleJob creates a SimpleJob named name running steps in order.
func NewSimpleJob(name string, jobRepository repository.JobRepository, steps []port.Step, opts ...Option) *SimpleJob {
	j := &SimpleJob{
		id:             name,
		name:           name,
		steps:          steps,
		jobRepository:  jobRepository,
		metricRecorder: metrics.NewNoOpMetricRecorder(),
		tracer:         metrics.NewNoOpTracer(),
	}
	for _, opt := range opts {
		opt(j)
	}
	for _, s := range j.steps {
		s.SetMetricRecorder(j.metricRecorder)
		s.SetTracer(j.tracer)
	}
	return j
}

func (j *SimpleJob) ID() string { return j.id }

func (j *SimpleJob) JobName() string { return j.name }

// Steps returns the configured steps.
func (j *SimpleJob) Steps() []port.Step { return j.steps }

func (j *SimpleJob) Incrementer() port.JobParametersIncrementer { return j.incrementer }

// ValidateParameters runs the configured validator, if any.
func (j *SimpleJob) ValidateParameters(params model.JobParameters) error {
	logger.Debugf("Job '%s': Validating JobParameters: %s", j.name, params.String())
	if j.validator == nil {
		return nil
	}
	return j.validator(params)
}

func (j *SimpleJob) notifyBeforeJob(ctx context.Context, jobExecution *model.JobExecution) {
	for _, l := range j.jobListeners {
		l.BeforeJob(ctx, jobExecution)
	}
}

func (j *SimpleJob) notifyAfterJob(ctx context.Context, jobExecution *model.JobExecution) {
	for _, l := range j.jobListeners {
		l.AfterJob(ctx, jobExecution)
	}
}

// Run executes the steps in order.
func (j *SimpleJob) Run(ctx context.Context, jobExecution *model.JobExecution, jobParameters model.JobParameters) error {
	logger.Infof("Starting Job '%s' (Execution ID: %s).", j.name, jobExecution.ID)

	ctx, finishSpan := j.tracer.StartJobSpan(ctx, jobExecution)
	defer finishSpan()

	j.metricRecorder.RecordJobStart(ctx, jobExecution)
	j.notifyBeforeJob(ctx, jobExecution)

	defer func() {
		if jobExecution.EndTime == nil {
			now := time.Now()
			jobExecution.EndTime = &now
		}
		j.notifyAfterJob(ctx, jobExecution)
		j.metricRecorder.RecordJobEnd(ctx, jobExecution)

		logger.Infof("Job '%s' (Execution ID: %s) finished. Final Status: %s, Exit Status: %s",
			j.name, jobExecution.ID, jobExecution.Status, jobExecution.ExitStatus)
		for _, se := range jobExecution.StepExecutions {
			logger.Debugf("  %s", se.DebugString())
		}
	}()

	for _, step := range j.steps {
		if err := ctx.Err(); err != nil {
			logger.Warnf("Context cancelled, interrupting execution of Job '%s': %v", j.name, err)
			jobExecution.MarkAsStopped()
			jobExecution.AddFailureException(err)
			j.tracer.RecordError(ctx, "job_runner", err)
			return err
		}

		stepName := step.StepName()
		jobExecution.CurrentStepName = stepName

		stepExecution := model.NewStepExecution(model.NewID(), jobExecution, stepName)
		if err := j.jobRepository.SaveStepExecution(ctx, stepExecution); err != nil {
			logger.Errorf("Job '%s': Failed to save StepExecution (ID: %s): %v", j.name, stepExecution.ID, err)
			batchErr := exception.NewBatchError(j.name, "Error saving new StepExecution", err, false, false)
			jobExecution.MarkAsFailed(batchErr)
			j.tracer.RecordError(ctx, "job_runner", batchErr)
			return batchErr
		}
		logger.Debugf("Job '%s': Created and saved StepExecution (ID: %s) for step '%s'.", j.name, stepExecution.ID, stepName)

		stepErr := step.Execute(port.GetContextWithStepExecution(ctx, stepExecution), jobExecution, stepExecution)
		if stepErr != nil {
			logger.Errorf("Job '%s': Error occurred during execution of step '%s': %v", j.name, stepName, stepErr)
			j.tracer.RecordError(ctx, "job_runner", stepErr)
			if errors.Is(stepErr, context.Canceled) {
				jobExecution.MarkAsStopped()
				jobExecution.AddFailureException(stepErr)
			} else {
				jobExecution.MarkAsFailed(stepErr)
			}
			return stepErr
		}
		if stepExecution.Status != model.BatchStatusCompleted {
			err := exception.NewBatchErrorf(j.name, "step '%s' finished with status %s", stepName, stepExecution.Status)
			jobExecution.MarkAsFailed(err)
			return err
		}
		logger.Infof("Job '%s': Step '%s' completed successfully. ExitStatus: %s", j.name, stepName, stepExecution.ExitStatus)
	}

	jobExecution.MarkAsCompleted()
	return nil
}
