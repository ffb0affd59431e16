// Package logging provides listeners that write batch lifecycle events to the application log.
package logging

import (
	"context"
	"time"

	port "github.com/tigerroll/customer-import/pkg/batch/core/application/port"
	model "github.com/tigerroll/customer-import/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/customer-import/pkg/batch/support/util/logger"
)

// --- Job Execution Listener ---

type LoggingJobListener struct{}

func NewLoggingJobListener() *LoggingJobListener {
	return &LoggingJobListener{}
}

func (l *LoggingJobListener) BeforeJob(ctx context.Context, jobExecution *model.JobExecution) {
	logger.Infof("JobExecutionListener: BeforeJob - JobName: %s, ID: %s, Params: %s", jobExecution.JobName, jobExecution.ID, jobExecution.Parameters.String())
}

func (l *LoggingJobListener) AfterJob(ctx context.Context, jobExecution *model.JobExecution) {
	var duration time.Duration
	if jobExecution.EndTime != nil {
		duration = jobExecution.EndTime.Sub(jobExecution.StartTime)
	}
	logger.Infof("JobExecutionListener: AfterJob - JobName: %s, Status: %s, ExitStatus: %s, Duration: %s, Failures: %d",
		jobExecution.JobName, jobExecution.Status, jobExecution.ExitStatus, duration, len(jobExecution.Failures))
	for _, failure := range jobExecution.Failures {
		logger.Errorf("JobExecutionListener: AfterJob - JobName: %s, Failure: %s", jobExecution.JobName, failure)
	}
}

var _ port.JobExecutionListener = (*LoggingJobListener)(nil)

// --- Step Execution Listener ---

type LoggingStepListener struct{}

func NewLoggingStepListener() *LoggingStepListener {
	return &LoggingStepListener{}
}

func (l *LoggingStepListener) BeforeStep(ctx context.Context, stepExecution *model.StepExecution) {
	logger.Infof("StepExecutionListener: BeforeStep - StepName: %s, ID: %s", stepExecution.StepName, stepExecution.ID)
}

func (l *LoggingStepListener) AfterStep(ctx context.Context, stepExecution *model.StepExecution) {
	logger.Infof("StepExecutionListener: AfterStep - StepName: %s, Status: %s, ExitStatus: %s, Read: %d, Filter: %d, Write: %d, Commit: %d, Rollback: %d",
		stepExecution.StepName, stepExecution.Status, stepExecution.ExitStatus,
		stepExecution.ReadCount, stepExecution.FilterCount, stepExecution.WriteCount,
		stepExecution.CommitCount, stepExecution.RollbackCount)
}

var _ port.StepExecutionListener = (*LoggingStepListener)(nil)

// --- Chunk Listener ---

// LoggingChunkListener logs at DEBUG only; chunks are frequent.
type LoggingChunkListener struct{}

func NewLoggingChunkListener() *LoggingChunkListener {
	return &LoggingChunkListener{}
}

func (l *LoggingChunkListener) BeforeChunk(ctx context.Context, stepExecution *model.StepExecution) {
	logger.Debugf("ChunkListener: BeforeChunk - StepName: %s", stepExecution.StepName)
}

func (l *LoggingChunkListener) AfterChunk(ctx context.Context, stepExecution *model.StepExecution) {
	logger.Debugf("ChunkListener: AfterChunk - StepName: %s", stepExecution.StepName)
}

var _ port.ChunkListener = (*LoggingChunkListener)(nil)

// --- Item Listeners ---

// LoggingItemListener logs item level errors of reading, processing and writing.
type LoggingItemListener struct{}

func NewLoggingItemListener() *LoggingItemListener {
	return &LoggingItemListener{}
}

func (l *LoggingItemListener) OnReadError(ctx context.Context, err error) {
	logger.Errorf("ItemReadListener: OnReadError - %v", err)
}

func (l *LoggingItemListener) OnProcessError(ctx context.Context, item interface{}, err error) {
	logger.Errorf("ItemProcessListener: OnProcessError - Item: %+v, Error: %v", item, err)
}

func (l *LoggingItemListener) OnWriteError(ctx context.Context, items []interface{}, err error) {
	logger.Errorf("ItemWriteListener: OnWriteError - Items count: %d, Error: %v", len(items), err)
}

var (
	_ port.ItemReadListener    = (*LoggingItemListener)(nil)
	_ port.ItemProcessListener = (*LoggingItemListener)(nil)
	_ port.ItemWriteListener   = (*LoggingItemListener)(nil)
)

// --- Skip Listener ---

type LoggingSkipListener struct{}

func NewLoggingSkipListener() *LoggingSkipListener {
	return &LoggingSkipListener{}
}

func (l *LoggingSkipListener) OnSkipRead(ctx context.Context, err error) {
	logger.Warnf("SkipListener: OnSkipRead - Skipping item due to error: %v", err)
}

func (l *LoggingSkipListener) OnSkipProcess(ctx context.Context, item interface{}, err error) {
	logger.Warnf("SkipListener: OnSkipProcess - Skipping item: %+v, Error: %v", item, err)
}

func (l *LoggingSkipListener) OnSkipWrite(ctx context.Context, item interface{}, err error) {
	logger.Warnf("SkipListener: OnSkipWrite - Skipping item: %+v, Error: %v", item, err)
}

var _ port.SkipListener = (*LoggingSkipListener)(nil)

// --- Retry Item Listener ---

type LoggingRetryItemListener struct{}

func NewLoggingRetryItemListener() *LoggingRetryItemListener {
	return &LoggingRetryItemListener{}
}

func (l *LoggingRetryItemListener) OnRetryRead(ctx context.Context, err error) {
	logger.Warnf("RetryItemListener: OnRetryRead - Retrying read operation due to error: %v", err)
}

func (l *LoggingRetryItemListener) OnRetryProcess(ctx context.Context, item interface{}, err error) {
	logger.Warnf("RetryItemListener: OnRetryProcess - Retrying process operation for item: %+v, Error: %v", item, err)
}

func (l *LoggingRetryItemListener) OnRetryWrite(ctx context.Context, items []interface{}, err error) {
	logger.Warnf("RetryItemListener: OnRetryWrite - Retrying write operation for %d items, Error: %v", len(items), err)
}

var _ port.RetryItemListener = (*LoggingRetryItemListener)(nil)
