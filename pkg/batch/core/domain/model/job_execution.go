package model

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tigerroll/customer-import/pkg/batch/support/util/logger"
)

// NewID returns a new random identifier for batch metadata entities.
func NewID() string {
	return uuid.New().String()
}

// JobInstance is a logical run of a job, identified by job name and parameters.
type JobInstance struct {
	ID             string
	JobName        string
	Parameters     JobParameters
	CreateTime     time.Time
	Version        int
	ParametersHash string
}

// NewJobInstance creates a JobInstance for jobName and params.
func NewJobInstance(jobName string, params JobParameters) *JobInstance {
	hash, err := params.Hash()
	if err != nil {
		logger.Errorf("Failed to calculate hash for JobParameters of job '%s': %v", jobName, err)
	}
	return &JobInstance{
		ID:             NewID(),
		JobName:        jobName,
		Parameters:     params,
		CreateTime:     time.Now(),
		Version:        0,
		ParametersHash: hash,
	}
}

// JobExecution is a single attempt to run a JobInstance.
type JobExecution struct {
	ID               string
	JobInstanceID    string
	JobName          string
	Parameters       JobParameters
	StartTime        time.Time
	EndTime          *time.Time
	Status           JobStatus
	ExitStatus       ExitStatus
	ExitCode         int
	Failures         FailureList
	Version          int
	CreateTime       time.Time
	LastUpdated      time.Time
	StepExecutions   []*StepExecution
	ExecutionContext ExecutionContext
	CurrentStepName  string
	CancelFunc       context.CancelFunc `json:"-"`
}

// NewJobExecution creates a JobExecution in STARTING state.
func NewJobExecution(jobInstanceID, jobName string, params JobParameters) *JobExecution {
	now := time.Now()
	return &JobExecution{
		ID:               NewID(),
		JobInstanceID:    jobInstanceID,
		JobName:          jobName,
		Parameters:       params,
		StartTime:        now,
		Status:           BatchStatusStarting,
		ExitStatus:       ExitStatusUnknown,
		Failures:         make(FailureList, 0),
		CreateTime:       now,
		LastUpdated:      now,
		StepExecutions:   make([]*StepExecution, 0),
		ExecutionContext: NewExecutionContext(),
	}
}

// TransitionTo moves the execution to newStatus, rejecting invalid transitions.
func (je *JobExecution) TransitionTo(newStatus JobStatus) error {
	if !isValidJobTransition(je.Status, newStatus) {
		return fmt.Errorf("invalid job status transition: %s -> %s", je.Status, newStatus)
	}
	je.Status = newStatus
	je.LastUpdated = time.Now()
	return nil
}

func (je *JobExecution) forceStatus(status JobStatus, exit ExitStatus) {
	if err := je.TransitionTo(status); err != nil {
		logger.Warnf("JobExecution (ID: %s): %v. Forcing status to %s.", je.ID, err, status)
		je.Status = status
	}
	je.ExitStatus = exit
	now := time.Now()
	je.LastUpdated = now
	if status.IsFinished() {
		je.EndTime = &now
	}
}

// MarkAsStarted marks the execution as STARTED.
func (je *JobExecution) MarkAsStarted() {
	if err := je.TransitionTo(BatchStatusStarted); err != nil {
		logger.Warnf("JobExecution (ID: %s): %v. Forcing status to STARTED.", je.ID, err)
		je.Status = BatchStatusStarted
	}
	je.StartTime = time.Now()
	je.ExitStatus = ExitStatusUnknown
}

// MarkAsCompleted marks the execution as COMPLETED.
func (je *JobExecution) MarkAsCompleted() {
	je.forceStatus(BatchStatusCompleted, ExitStatusCompleted)
	je.ExitCode = 0
}

// MarkAsFailed marks the execution as FAILED and records err.
func (je *JobExecution) MarkAsFailed(err error) {
	je.forceStatus(BatchStatusFailed, ExitStatusFailed)
	je.ExitCode = 1
	if err != nil {
		je.AddFailureException(err)
	}
}

// MarkAsStopped marks the execution as STOPPED.
func (je *JobExecution) MarkAsStopped() {
	je.forceStatus(BatchStatusStopped, ExitStatusStopped)
	je.ExitCode = 1
}

// AddFailureException records err unless the same message is already present.
func (je *JobExecution) AddFailureException(err error) {
	if err == nil {
		return
	}
	je.Failures = appendFailure(je.Failures, err)
	je.LastUpdated = time.Now()
}

// AddStepExecution attaches se to the execution.
func (je *JobExecution) AddStepExecution(se *StepExecution) {
	je.StepExecutions = append(je.StepExecutions, se)
	se.JobExecution = je
	se.JobExecutionID = je.ID
}

func appendFailure(list FailureList, err error) FailureList {
	msg := err.Error()
	for _, existing := range list {
		if existing == msg {
			return list
		}
	}
	return append(list, msg)
}
