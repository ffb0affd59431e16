package model

import (
	"fmt"
	"time"

	"github.com/tigerroll/customer-import/pkg/batch/support/util/logger"
)

// StepExecution is a single execution of a step within a JobExecution.
type StepExecution struct {
	ID               string
	StepName         string
	JobExecution     *JobExecution `json:"-"`
	JobExecutionID   string
	StartTime        time.Time
	EndTime          *time.Time
	Status           JobStatus
	ExitStatus       ExitStatus
	Failures         FailureList
	ReadCount        int
	WriteCount       int
	CommitCount      int
	RollbackCount    int
	FilterCount      int
	SkipReadCount    int
	SkipProcessCount int
	SkipWriteCount   int
	ExecutionContext ExecutionContext
	LastUpdated      time.Time
	Version          int
}

// NewStepExecution creates a StepExecution in STARTING state and attaches it to je.
func NewStepExecution(id string, je *JobExecution, stepName string) *StepExecution {
	now := time.Now()
	se := &StepExecution{
		ID:               id,
		StepName:         stepName,
		StartTime:        now,
		Status:           BatchStatusStarting,
		ExitStatus:       ExitStatusUnknown,
		Failures:         make(FailureList, 0),
		ExecutionContext: NewExecutionContext(),
		LastUpdated:      now,
	}
	if je != nil {
		je.AddStepExecution(se)
	}
	return se
}

// TransitionTo moves the step to newStatus, rejecting invalid transitions.
func (se *StepExecution) TransitionTo(newStatus JobStatus) error {
	if !isValidStepTransition(se.Status, newStatus) {
		return fmt.Errorf("invalid step status transition: %s -> %s", se.Status, newStatus)
	}
	se.Status = newStatus
	se.LastUpdated = time.Now()
	return nil
}

func (se *StepExecution) forceStatus(status JobStatus, exit ExitStatus) {
	if err := se.TransitionTo(status); err != nil {
		logger.Warnf("StepExecution (ID: %s, Name: %s): %v. Forcing status to %s.", se.ID, se.StepName, err, status)
		se.Status = status
	}
	se.ExitStatus = exit
	now := time.Now()
	se.LastUpdated = now
	if status.IsFinished() {
		se.EndTime = &now
	}
}

// MarkAsStarted marks the step as STARTED.
func (se *StepExecution) MarkAsStarted() {
	if err := se.TransitionTo(BatchStatusStarted); err != nil {
		logger.Warnf("StepExecution (ID: %s, Name: %s): %v. Forcing status to STARTED.", se.ID, se.StepName, err)
		se.Status = BatchStatusStarted
	}
	se.StartTime = time.Now()
	se.ExitStatus = ExitStatusUnknown
}

// MarkAsCompleted marks the step as COMPLETED.
func (se *StepExecution) MarkAsCompleted() {
	se.forceStatus(BatchStatusCompleted, ExitStatusCompleted)
}

// MarkAsFailed marks the step as FAILED and records err.
func (se *StepExecution) MarkAsFailed(err error) {
	se.forceStatus(BatchStatusFailed, ExitStatusFailed)
	if err != nil {
		se.AddFailureException(err)
	}
}

// MarkAsStopped marks the step as STOPPED.
func (se *StepExecution) MarkAsStopped() {
	se.forceStatus(BatchStatusStopped, ExitStatusStopped)
}

// AddFailureException records err unless the same message is already present.
func (se *StepExecution) AddFailureException(err error) {
	if err == nil {
		return
	}
	se.Failures = appendFailure(se.Failures, err)
	se.LastUpdated = time.Now()
}

// DebugString summarizes the step counters.
func (se *StepExecution) DebugString() string {
	return fmt.Sprintf("StepExecution[name=%s, status=%s, read=%d, write=%d, filter=%d, commit=%d, rollback=%d, skip(r/p/w)=%d/%d/%d]",
		se.StepName, se.Status, se.ReadCount, se.WriteCount, se.FilterCount, se.CommitCount, se.RollbackCount,
		se.SkipReadCount, se.SkipProcessCount, se.SkipWriteCount)
}
