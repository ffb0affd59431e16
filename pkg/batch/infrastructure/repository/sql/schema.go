package sql

import (
	"time"

	model "github.com/tigerroll/customer-import/pkg/batch/core/domain/model"
)

// JobInstanceEntity is the batch_job_instance row.
type JobInstanceEntity struct {
	ID             string `gorm:"primaryKey"`
	JobName        string
	Parameters     model.JobParameters
	CreateTime     time.Time
	Version        int
	ParametersHash string
}

func (JobInstanceEntity) TableName() string {
	return "batch_job_instance"
}

// JobExecutionEntity is the batch_job_execution row.
type JobExecutionEntity struct {
	ID               string `gorm:"primaryKey"`
	JobInstanceID    string
	JobName          string
	Parameters       model.JobParameters
	StartTime        time.Time
	EndTime          *time.Time
	Status           model.JobStatus
	ExitStatus       model.ExitStatus
	ExitCode         int
	Failures         model.FailureList
	Version          int
	CreateTime       time.Time
	LastUpdated      time.Time
	ExecutionContext model.ExecutionContext
	CurrentStepName  string
}

func (JobExecutionEntity) TableName() string {
	return "batch_job_execution"
}

// StepExecutionEntity is the batch_step_execution row.
type StepExecutionEntity struct {
	ID               string `gorm:"primaryKey"`
	StepName         string
	JobExecutionID   string
	StartTime        time.Time
	EndTime          *time.Time
	Status           model.JobStatus
	ExitStatus       model.ExitStatus
	Failures         model.FailureList
	ReadCount        int
	WriteCount       int
	CommitCount      int
	RollbackCount    int
	FilterCount      int
	SkipReadCount    int
	SkipProcessCount int
	SkipWriteCount   int
	ExecutionContext model.ExecutionContext
	LastUpdated      time.Time
	Version          int
}

func (StepExecutionEntity) TableName() string {
	return "batch_step_execution"
}

// Rows are converted field by field; the domain types carry runtime-only state
// (CancelFunc, attached StepExecutions) that must never reach gorm.

func newJobInstanceEntity(ji *model.JobInstance) *JobInstanceEntity {
	e := JobInstanceEntity{ID: ji.ID, JobName: ji.JobName, Parameters: ji.Parameters}
	e.CreateTime, e.Version, e.ParametersHash = ji.CreateTime, ji.Version, ji.ParametersHash
	return &e
}

func (e *JobInstanceEntity) toDomain() *model.JobInstance {
	ji := model.JobInstance{ID: e.ID, JobName: e.JobName, Parameters: e.Parameters}
	ji.CreateTime, ji.Version, ji.ParametersHash = e.CreateTime, e.Version, e.ParametersHash
	return &ji
}

func newJobExecutionEntity(je *model.JobExecution) *JobExecutionEntity {
	e := JobExecutionEntity{
		ID:              je.ID,
		JobInstanceID:   je.JobInstanceID,
		JobName:         je.JobName,
		Parameters:      je.Parameters,
		CurrentStepName: je.CurrentStepName,
	}
	e.StartTime, e.EndTime, e.CreateTime, e.LastUpdated = je.StartTime, je.EndTime, je.CreateTime, je.LastUpdated
	e.Status, e.ExitStatus, e.ExitCode, e.Failures = je.Status, je.ExitStatus, je.ExitCode, je.Failures
	e.Version, e.ExecutionContext = je.Version, je.ExecutionContext
	return &e
}

func (e *JobExecutionEntity) toDomain() *model.JobExecution {
	je := model.JobExecution{
		ID:              e.ID,
		JobInstanceID:   e.JobInstanceID,
		JobName:         e.JobName,
		Parameters:      e.Parameters,
		CurrentStepName: e.CurrentStepName,
		StepExecutions:  make([]*model.StepExecution, 0),
	}
	je.StartTime, je.EndTime, je.CreateTime, je.LastUpdated = e.StartTime, e.EndTime, e.CreateTime, e.LastUpdated
	je.Status, je.ExitStatus, je.ExitCode, je.Failures = e.Status, e.ExitStatus, e.ExitCode, e.Failures
	je.Version, je.ExecutionContext = e.Version, e.ExecutionContext
	return &je
}

func newStepExecutionEntity(se *model.StepExecution) *StepExecutionEntity {
	e := StepExecutionEntity{ID: se.ID, StepName: se.StepName, JobExecutionID: se.JobExecutionID}
	e.StartTime, e.EndTime, e.LastUpdated = se.StartTime, se.EndTime, se.LastUpdated
	e.Status, e.ExitStatus, e.Failures = se.Status, se.ExitStatus, se.Failures
	e.ReadCount, e.WriteCount, e.FilterCount = se.ReadCount, se.WriteCount, se.FilterCount
	e.CommitCount, e.RollbackCount = se.CommitCount, se.RollbackCount
	e.SkipReadCount, e.SkipProcessCount, e.SkipWriteCount = se.SkipReadCount, se.SkipProcessCount, se.SkipWriteCount
	e.ExecutionContext, e.Version = se.ExecutionContext, se.Version
	return &e
}

func (e *StepExecutionEntity) toDomain() *model.StepExecution {
	se := model.StepExecution{ID: e.ID, StepName: e.StepName, JobExecutionID: e.JobExecutionID}
	se.StartTime, se.EndTime, se.LastUpdated = e.StartTime, e.EndTime, e.LastUpdated
	se.Status, se.ExitStatus, se.Failures = e.Status, e.ExitStatus, e.Failures
	se.ReadCount, se.WriteCount, se.FilterCount = e.ReadCount, e.WriteCount, e.FilterCount
	se.CommitCount, se.RollbackCount = e.CommitCount, e.RollbackCount
	se.SkipReadCount, se.SkipProcessCount, se.SkipWriteCount = e.SkipReadCount, e.SkipProcessCount, e.SkipWriteCount
	se.ExecutionContext, se.Version = e.ExecutionContext, e.Version
	return &se
}
