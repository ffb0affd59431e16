// Package tasklet provides TaskletStep, a step that runs a single port.Tasklet.
package tasklet

import (
	"context"
	"database/sql"
	"errors"

	port "github.com/tigerroll/customer-import/pkg/batch/core/application/port"
	model "github.com/tigerroll/customer-import/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/customer-import/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/customer-import/pkg/batch/core/metrics"
	exception "github.com/tigerroll/customer-import/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/customer-import/pkg/batch/support/util/logger"
)

// TaskletStep is a port.Step that delegates its work to a port.Tasklet.
type TaskletStep struct {
	name           string
	tasklet        port.Tasklet
	jobRepository  repository.JobRepository
	stepListeners  []port.StepExecutionListener
	readOnly       bool
	metricRecorder metrics.MetricRecorder
	tracer         metrics.Tracer
}

var _ port.Step = (*TaskletStep)(nil)

// Option configures a TaskletStep.
type Option func(*TaskletStep)

// WithListeners registers StepExecutionListeners.
func WithListeners(listeners ...port.StepExecutionListener) Option {
	return func(s *TaskletStep) { s.stepListeners = append(s.stepListeners, listeners...) }
}

// WithReadOnly marks the step's work as read-only in its transaction options.
func WithReadOnly() Option {
	return func(s *TaskletStep) { s.readOnly = true }
}

// NewTaskletStep creates a TaskletStep named name.
func NewTaskletStep(name string, tasklet port.Tasklet, jobRepository repository.JobRepository, opts ...Option) *TaskletStep {
	s := &TaskletStep{
		name:           name,
		tasklet:        tasklet,
		jobRepository:  jobRepository,
		metricRecorder: metrics.NewNoOpMetricRecorder(),
		tracer:         metrics.NewNoOpTracer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TaskletStep) ID() string { return s.name }

func (s *TaskletStep) StepName() string { return s.name }

func (s *TaskletStep) GetTransactionOptions() *sql.TxOptions {
	return &sql.TxOptions{Isolation: sql.LevelDefault, ReadOnly: s.readOnly}
}

func (s *TaskletStep) SetMetricRecorder(recorder metrics.MetricRecorder) {
	if recorder != nil {
		s.metricRecorder = recorder
	}
}

func (s *TaskletStep) SetTracer(tracer metrics.Tracer) {
	if tracer != nil {
		s.tracer = tracer
	}
}

// Execute runs the tasklet, closes it, and persists the terminal StepExecution.
func (s *TaskletStep) Execute(ctx context.Context, jobExecution *model.JobExecution, stepExecution *model.StepExecution) error {
	logger.Infof("TaskletStep '%s' executing.", s.name)

	ctx, finishSpan := s.tracer.StartStepSpan(ctx, stepExecution)
	defer finishSpan()
	ctx = port.GetContextWithStepExecution(ctx, stepExecution)

	stepExecution.MarkAsStarted()
	if err := s.jobRepository.UpdateStepExecution(ctx, stepExecution); err != nil {
		batchErr := exception.NewBatchError(s.name, "failed to update StepExecution status to STARTED", err, false, false)
		stepExecution.MarkAsFailed(batchErr)
		return batchErr
	}
	s.metricRecorder.RecordStepStart(ctx, stepExecution)
	for _, l := range s.stepListeners {
		l.BeforeStep(ctx, stepExecution)
	}

	exitStatus, err := s.tasklet.Execute(ctx, stepExecution)
	if closeErr := s.tasklet.Close(context.WithoutCancel(ctx)); closeErr != nil {
		logger.Errorf("TaskletStep '%s': failed to close tasklet: %v", s.name, closeErr)
		if err == nil {
			err = closeErr
		}
	}

	switch {
	case err == nil:
		stepExecution.MarkAsCompleted()
		if exitStatus != "" {
			stepExecution.ExitStatus = exitStatus
		}
	case errors.Is(err, context.Canceled):
		logger.Warnf("TaskletStep '%s' was stopped: %v", s.name, err)
		stepExecution.MarkAsStopped()
		stepExecution.AddFailureException(err)
	default:
		s.tracer.RecordError(ctx, s.name, err)
		stepExecution.MarkAsFailed(err)
	}

	for _, l := range s.stepListeners {
		l.AfterStep(ctx, stepExecution)
	}
	s.metricRecorder.RecordStepEnd(ctx, stepExecution)

	if updateErr := s.jobRepository.UpdateStepExecution(context.WithoutCancel(ctx), stepExecution); updateErr != nil {
		logger.Errorf("TaskletStep '%s': failed to update final StepExecution state: %v", s.name, updateErr)
		if err == nil {
			err = exception.NewBatchError(s.name, "failed to update final StepExecution state", updateErr, false, false)
		}
	}

	logger.Infof("TaskletStep '%s' finished. ExitStatus: %s", s.name, stepExecution.ExitStatus)
	return err
}
