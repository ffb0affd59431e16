// Package metrics provides a MetricRecorder decorator that moves item level recording
// off the chunk workers.
package metrics

import (
	"context"
	"sync"
	"time"

	model "github.com/tigerroll/customer-import/pkg/batch/core/domain/model"
	"github.com/tigerroll/customer-import/pkg/batch/core/metrics"
	"github.com/tigerroll/customer-import/pkg/batch/support/util/logger"
)

// DefaultBufferSize is used when NewAsyncMetricRecorder is given a non-positive size.
const DefaultBufferSize = 100

// MetricEvent is an item or chunk level metric queued for asynchronous recording.
type MetricEvent struct {
	Type     string
	Ctx      context.Context
	StepName string
	Count    int
	Reason   string
	Duration time.Duration
	Tags     map[string]string
}

// Metric event types.
const (
	MetricEventTypeItemRead       = "item_read"
	MetricEventTypeItemProcess    = "item_process"
	MetricEventTypeItemWrite      = "item_write"
	MetricEventTypeItemSkip       = "item_skip"
	MetricEventTypeItemRetry      = "item_retry"
	MetricEventTypeChunkCommit    = "chunk_commit"
	MetricEventTypeChunkRollback  = "chunk_rollback"
	MetricEventTypeRecordDuration = "record_duration"
)

// AsyncMetricRecorder queues item and chunk level events and records them on a single goroutine.
// Job and step events are forwarded synchronously: the executions they carry keep changing after the call.
// A full queue drops the event with a warning rather than blocking a chunk worker.
type AsyncMetricRecorder struct {
	eventQueue   chan MetricEvent
	stopCh       chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
	syncRecorder metrics.MetricRecorder
}

// NewAsyncMetricRecorder starts the worker goroutine. Close must be called to drain the queue.
func NewAsyncMetricRecorder(bufferSize int, syncRec metrics.MetricRecorder) *AsyncMetricRecorder {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	r := &AsyncMetricRecorder{
		eventQueue:   make(chan MetricEvent, bufferSize),
		stopCh:       make(chan struct{}),
		syncRecorder: syncRec,
	}
	r.wg.Add(1)
	go r.run()
	logger.Debugf("AsyncMetricRecorder: Worker goroutine started (buffer size: %d).", bufferSize)
	return r
}

func (r *AsyncMetricRecorder) run() {
	defer r.wg.Done()
	for {
		select {
		case event := <-r.eventQueue:
			r.processEvent(event)
		case <-r.stopCh:
			remaining := len(r.eventQueue)
			for i := 0; i < remaining; i++ {
				r.processEvent(<-r.eventQueue)
			}
			logger.Debugf("AsyncMetricRecorder: Worker goroutine stopped. Processed %d remaining events.", remaining)
			return
		}
	}
}

func (r *AsyncMetricRecorder) processEvent(event MetricEvent) {
	ctx := event.Ctx
	switch event.Type {
	case MetricEventTypeItemRead:
		r.syncRecorder.RecordItemRead(ctx, event.StepName)
	case MetricEventTypeItemProcess:
		r.syncRecorder.RecordItemProcess(ctx, event.StepName)
	case MetricEventTypeItemWrite:
		r.syncRecorder.RecordItemWrite(ctx, event.StepName, event.Count)
	case MetricEventTypeItemSkip:
		r.syncRecorder.RecordItemSkip(ctx, event.StepName, event.Reason)
	case MetricEventTypeItemRetry:
		r.syncRecorder.RecordItemRetry(ctx, event.StepName, event.Reason)
	case MetricEventTypeChunkCommit:
		r.syncRecorder.RecordChunkCommit(ctx, event.StepName, event.Count)
	case MetricEventTypeChunkRollback:
		r.syncRecorder.RecordChunkRollback(ctx, event.StepName)
	case MetricEventTypeRecordDuration:
		r.syncRecorder.RecordDuration(ctx, event.StepName, event.Duration, event.Tags)
	default:
		logger.Warnf("AsyncMetricRecorder: Unknown metric event type: %s", event.Type)
	}
}

// Close stops the worker after the queued events have been recorded. It is safe to call more than once.
func (r *AsyncMetricRecorder) Close(ctx context.Context) error {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
	return nil
}

// sendEvent keeps the values of ctx but drops its cancellation, which may fire before the event is recorded.
func (r *AsyncMetricRecorder) sendEvent(ctx context.Context, event MetricEvent) {
	event.Ctx = context.WithoutCancel(ctx)
	select {
	case r.eventQueue <- event:
	default:
		logger.Warnf("AsyncMetricRecorder: Event queue is full (type: %s, step: %s). Event discarded.", event.Type, event.StepName)
	}
}

func (r *AsyncMetricRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {
	r.syncRecorder.RecordJobStart(ctx, execution)
}

func (r *AsyncMetricRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	r.syncRecorder.RecordJobEnd(ctx, execution)
}

func (r *AsyncMetricRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {
	r.syncRecorder.RecordStepStart(ctx, execution)
}

func (r *AsyncMetricRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {
	r.syncRecorder.RecordStepEnd(ctx, execution)
}

func (r *AsyncMetricRecorder) RecordItemRead(ctx context.Context, stepName string) {
	r.sendEvent(ctx, MetricEvent{Type: MetricEventTypeItemRead, StepName: stepName})
}

func (r *AsyncMetricRecorder) RecordItemProcess(ctx context.Context, stepName string) {
	r.sendEvent(ctx, MetricEvent{Type: MetricEventTypeItemProcess, StepName: stepName})
}

func (r *AsyncMetricRecorder) RecordItemWrite(ctx context.Context, stepName string, count int) {
	r.sendEvent(ctx, MetricEvent{Type: MetricEventTypeItemWrite, StepName: stepName, Count: count})
}

func (r *AsyncMetricRecorder) RecordItemSkip(ctx context.Context, stepName string, reason string) {
	r.sendEvent(ctx, MetricEvent{Type: MetricEventTypeItemSkip, StepName: stepName, Reason: reason})
}

func (r *AsyncMetricRecorder) RecordItemRetry(ctx context.Context, stepName string, reason string) {
	r.sendEvent(ctx, MetricEvent{Type: MetricEventTypeItemRetry, StepName: stepName, Reason: reason})
}

func (r *AsyncMetricRecorder) RecordChunkCommit(ctx context.Context, stepName string, count int) {
	r.sendEvent(ctx, MetricEvent{Type: MetricEventTypeChunkCommit, StepName: stepName, Count: count})
}

func (r *AsyncMetricRecorder) RecordChunkRollback(ctx context.Context, stepName string) {
	r.sendEvent(ctx, MetricEvent{Type: MetricEventTypeChunkRollback, StepName: stepName})
}

func (r *AsyncMetricRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	r.sendEvent(ctx, MetricEvent{Type: MetricEventTypeRecordDuration, StepName: name, Duration: duration, Tags: tags})
}

var _ metrics.MetricRecorder = (*AsyncMetricRecorder)(nil)
