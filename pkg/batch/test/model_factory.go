package test

import (
	model "github.com/tigerroll/customer-import/pkg/batch/core/domain/model"
)

// NewTestJobParameters creates JobParameters holding params.
func NewTestJobParameters(params map[string]interface{}) model.JobParameters {
	jp := model.NewJobParameters()
	for k, v := range params {
		jp.Put(k, v)
	}
	return jp
}

// NewTestJobExecution creates a JobInstance and a STARTED JobExecution of it.
func NewTestJobExecution(jobName string, params model.JobParameters) (*model.JobInstance, *model.JobExecution) {
	ji := model.NewJobInstance(jobName, params)
	je := model.NewJobExecution(ji.ID, jobName, params)
	je.MarkAsStarted()
	return ji, je
}

// NewTestStepExecution creates a StepExecution attached to je.
func NewTestStepExecution(je *model.JobExecution, stepName string) *model.StepExecution {
	return model.NewStepExecution(model.NewID(), je, stepName)
}
