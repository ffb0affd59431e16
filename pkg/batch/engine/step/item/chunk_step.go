// Package item provides ChunkStep, the chunk-oriented step implementation.
//
// A ChunkStep reads items on a single dispatcher goroutine, groups them into chunks of
// ChunkSize items and hands every chunk to a bounded pool of workers. Each worker processes
// and writes its chunk inside its own transaction, so a chunk is the unit of commit and of
// rollback.
package item

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	port "github.com/tigerroll/customer-import/pkg/batch/core/application/port"
	config "github.com/tigerroll/customer-import/pkg/batch/core/config"
	model "github.com/tigerroll/customer-import/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/customer-import/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/customer-import/pkg/batch/core/metrics"
	tx "github.com/tigerroll/customer-import/pkg/batch/core/tx"
	"github.com/tigerroll/customer-import/pkg/batch/engine/step/retry"
	"github.com/tigerroll/customer-import/pkg/batch/engine/step/skip"
	exception "github.com/tigerroll/customer-import/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/customer-import/pkg/batch/support/util/logger"
)

const (
	// DefaultChunkSize is used when no positive chunk size is configured.
	DefaultChunkSize = 10
	// DefaultConcurrency is used when no positive concurrency is configured.
	DefaultConcurrency = 10

	writeSavepoint = "chunk_write"
)

// errItemSkipped signals that the current item was consumed by the skip policy.
var errItemSkipped = errors.New("item skipped")

type options struct {
	chunkSize      int
	concurrency    int
	isolationLevel sql.IsolationLevel
	retryConfig    config.ItemRetryConfig
	skipConfig     config.ItemSkipConfig

	stepListeners    []port.StepExecutionListener
	chunkListeners   []port.ChunkListener
	readListeners    []port.ItemReadListener
	processListeners []port.ItemProcessListener
	writeListeners   []port.ItemWriteListener
	skipListeners    []port.SkipListener
	retryListeners   []port.RetryItemListener
}

// Option configures a ChunkStep.
type Option func(*options)

// WithChunkSize sets the number of items per chunk.
func WithChunkSize(size int) Option {
	return func(o *options) { o.chunkSize = size }
}

// WithConcurrency sets the maximum number of chunks processed at the same time.
// 1 processes chunks strictly in sequence.
func WithConcurrency(n int) Option {
	return func(o *options) { o.concurrency = n }
}

// WithIsolationLevel sets the isolation level of the chunk transactions (e.g. "READ_COMMITTED").
func WithIsolationLevel(level string) Option {
	return func(o *options) { o.isolationLevel = ParseIsolationLevel(level) }
}

// WithRetry sets the item retry configuration.
func WithRetry(cfg config.ItemRetryConfig) Option {
	return func(o *options) { o.retryConfig = cfg }
}

// WithSkip sets the item skip configuration.
func WithSkip(cfg config.ItemSkipConfig) Option {
	return func(o *options) { o.skipConfig = cfg }
}

// WithBatchConfig applies chunk size, concurrency, isolation level, retry and skip from cfg.
func WithBatchConfig(cfg config.BatchConfig) Option {
	return func(o *options) {
		o.chunkSize = cfg.ChunkSize
		o.concurrency = cfg.Concurrency
		o.isolationLevel = ParseIsolationLevel(cfg.IsolationLevel)
		o.retryConfig = cfg.ItemRetry
		o.skipConfig = cfg.ItemSkip
	}
}

// WithListeners registers listeners. Each value is added to every listener list whose
// interface it implements, so one logging listener can serve several hooks.
func WithListeners(listeners ...interface{}) Option {
	return func(o *options) {
		for _, l := range listeners {
			if v, ok := l.(port.StepExecutionListener); ok {
				o.stepListeners = append(o.stepListeners, v)
			}
			if v, ok := l.(port.ChunkListener); ok {
				o.chunkListeners = append(o.chunkListeners, v)
			}
			if v, ok := l.(port.ItemReadListener); ok {
				o.readListeners = append(o.readListeners, v)
			}
			if v, ok := l.(port.ItemProcessListener); ok {
				o.processListeners = append(o.processListeners, v)
			}
			if v, ok := l.(port.ItemWriteListener); ok {
				o.writeListeners = append(o.writeListeners, v)
			}
			if v, ok := l.(port.SkipListener); ok {
				o.skipListeners = append(o.skipListeners, v)
			}
			if v, ok := l.(port.RetryItemListener); ok {
				o.retryListeners = append(o.retryListeners, v)
			}
		}
	}
}

// ChunkStep is a port.Step for chunk-oriented processing of items of type I into items of type O.
type ChunkStep[I, O any] struct {
	name          string
	reader        port.ItemReader[I]
	processor     port.ItemProcessor[I, O]
	writer        port.ItemWriter[O]
	jobRepository repository.JobRepository
	txManager     tx.TransactionManager

	options
	retryPolicy retry.Policy
	skipPolicy  skip.Policy

	metricRecorder metrics.MetricRecorder
	tracer         metrics.Tracer
}

// NewChunkStep creates a ChunkStep. The processor may be nil, in which case items are
// written as read and I must be assignable to O.
func NewChunkStep[I, O any](
	name string,
	reader port.ItemReader[I],
	processor port.ItemProcessor[I, O],
	writer port.ItemWriter[O],
	jobRepository repository.JobRepository,
	txManager tx.TransactionManager,
	opts ...Option,
) *ChunkStep[I, O] {
	s := &ChunkStep[I, O]{
		name:           name,
		reader:         reader,
		processor:      processor,
		writer:         writer,
		jobRepository:  jobRepository,
		txManager:      txManager,
		options:        options{chunkSize: DefaultChunkSize, concurrency: DefaultConcurrency},
		metricRecorder: metrics.NewNoOpMetricRecorder(),
		tracer:         metrics.NewNoOpTracer(),
	}
	for _, opt := range opts {
		opt(&s.options)
	}
	if s.chunkSize <= 0 {
		s.chunkSize = DefaultChunkSize
	}
	if s.concurrency <= 0 {
		s.concurrency = DefaultConcurrency
	}
	s.retryPolicy = retry.NewPolicy(s.retryConfig)
	s.skipPolicy = skip.NewPolicy(s.skipConfig)
	return s
}

var _ port.Step = (*ChunkStep[any, any])(nil)

// ParseIsolationLevel converts a configured isolation level name to sql.IsolationLevel.
// Unknown names yield sql.LevelDefault.
func ParseIsolationLevel(level string) sql.IsolationLevel {
	switch level {
	case "READ_UNCOMMITTED":
		return sql.LevelReadUncommitted
	case "READ_COMMITTED":
		return sql.LevelReadCommitted
	case "WRITE_COMMITTED":
		return sql.LevelWriteCommitted
	case "REPEATABLE_READ":
		return sql.LevelRepeatableRead
	case "SNAPSHOT":
		return sql.LevelSnapshot
	case "SERIALIZABLE":
		return sql.LevelSerializable
	case "LINEARIZABLE":
		return sql.LevelLinearizable
	default:
		return sql.LevelDefault
	}
}

func (s *ChunkStep[I, O]) ID() string { return s.name }

func (s *ChunkStep[I, O]) StepName() string { return s.name }

// ChunkSize returns the configured number of items per chunk.
func (s *ChunkStep[I, O]) ChunkSize() int { return s.chunkSize }

// Concurrency returns the configured worker pool size.
func (s *ChunkStep[I, O]) Concurrency() int { return s.concurrency }

// GetTransactionOptions returns the options every chunk transaction is started with.
func (s *ChunkStep[I, O]) GetTransactionOptions() *sql.TxOptions {
	return &sql.TxOptions{Isolation: s.isolationLevel}
}

func (s *ChunkStep[I, O]) SetMetricRecorder(recorder metrics.MetricRecorder) {
	if recorder != nil {
		s.metricRecorder = recorder
	}
}

func (s *ChunkStep[I, O]) SetTracer(tracer metrics.Tracer) {
	if tracer != nil {
		s.tracer = tracer
	}
}

func (s *ChunkStep[I, O]) faultTolerant() bool {
	return s.retryPolicy.GetMaxAttempts() > 0 || s.skipPolicy.GetSkipLimit() > 0
}

// execution is the mutable state of one Execute call shared by the dispatcher and the workers.
type execution struct {
	mu sync.Mutex
	se *model.StepExecution
}

// update applies fn to the StepExecution under the lock.
func (e *execution) update(fn func(se *model.StepExecution)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.se)
}

// Execute runs the step: it opens the reader and writer, dispatches chunks onto the worker
// pool until the input is exhausted or a chunk fails, and persists the final StepExecution.
// A failing chunk cancels the remaining ones; chunks committed before the failure stay committed.
func (s *ChunkStep[I, O]) Execute(ctx context.Context, jobExecution *model.JobExecution, stepExecution *model.StepExecution) error {
	logger.Infof("ChunkStep '%s' executing (chunk size: %d, concurrency: %d).", s.name, s.chunkSize, s.concurrency)

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

	exec := &execution{se: stepExecution}
	stepErr := s.run(ctx, exec)

	// Workers have all returned; the StepExecution is no longer shared.
	switch {
	case stepErr == nil:
		stepExecution.MarkAsCompleted()
	case errors.Is(stepErr, context.Canceled):
		logger.Warnf("ChunkStep '%s' was stopped: %v", s.name, stepErr)
		stepExecution.MarkAsStopped()
		stepExecution.AddFailureException(stepErr)
	default:
		s.tracer.RecordError(ctx, s.name, stepErr)
		stepExecution.MarkAsFailed(stepErr)
	}

	for _, l := range s.stepListeners {
		l.AfterStep(ctx, stepExecution)
	}
	s.metricRecorder.RecordStepEnd(ctx, stepExecution)

	// The final state must be persisted even when the run was cancelled.
	if err := s.jobRepository.UpdateStepExecution(context.WithoutCancel(ctx), stepExecution); err != nil {
		logger.Errorf("ChunkStep '%s': failed to update final StepExecution state: %v", s.name, err)
		if stepErr == nil {
			stepErr = exception.NewBatchError(s.name, "failed to update final StepExecution state", err, false, false)
		}
	}

	logger.Infof("ChunkStep '%s' finished. ExitStatus: %s", s.name, stepExecution.ExitStatus)
	return stepErr
}

// run opens the components, drives the chunk loop and closes the components.
func (s *ChunkStep[I, O]) run(ctx context.Context, exec *execution) (err error) {
	ec := exec.se.ExecutionContext
	if ec == nil {
		ec = model.NewExecutionContext()
		exec.se.ExecutionContext = ec
	}

	if err := s.reader.Open(ctx, ec); err != nil {
		return exception.NewBatchError(s.name, "failed to open ItemReader", err, false, false)
	}
	if err := s.writer.Open(ctx, ec); err != nil {
		var result *multierror.Error
		result = multierror.Append(result, exception.NewBatchError(s.name, "failed to open ItemWriter", err, false, false))
		if closeErr := s.reader.Close(ctx); closeErr != nil {
			result = multierror.Append(result, closeErr)
		}
		return result.ErrorOrNil()
	}

	defer func() {
		s.collectExecutionContext(ctx, exec.se)

		var closeErrs *multierror.Error
		if closeErr := s.reader.Close(ctx); closeErr != nil {
			logger.Warnf("ChunkStep '%s': failed to close ItemReader: %v", s.name, closeErr)
			closeErrs = multierror.Append(closeErrs, closeErr)
		}
		if closeErr := s.writer.Close(ctx); closeErr != nil {
			logger.Warnf("ChunkStep '%s': failed to close ItemWriter: %v", s.name, closeErr)
			closeErrs = multierror.Append(closeErrs, closeErr)
		}
		if err == nil && closeErrs != nil {
			err = exception.NewBatchError(s.name, "failed to close step components", closeErrs.ErrorOrNil(), false, false)
		}
	}()

	return s.dispatch(ctx, exec)
}

// dispatch reads chunks on the calling goroutine and submits each one to the worker pool.
// errgroup.Group.Go blocks while Concurrency chunks are in flight, which throttles reading.
func (s *ChunkStep[I, O]) dispatch(ctx context.Context, exec *execution) error {
	dispatchCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	g, gctx := errgroup.WithContext(dispatchCtx)
	g.SetLimit(s.concurrency)

	var readErr error
	chunkNumber := 0
	for gctx.Err() == nil {
		items, eof, err := s.readChunk(gctx, exec)
		if err != nil {
			readErr = err
			cancel(err)
			break
		}
		if len(items) > 0 {
			chunkNumber++
			n, chunk := chunkNumber, items
			g.Go(func() error {
				return s.processChunk(gctx, exec, n, chunk)
			})
		}
		if eof {
			break
		}
	}

	waitErr := g.Wait()
	switch {
	case readErr != nil && (waitErr == nil || !errors.Is(readErr, context.Canceled)):
		return readErr
	case waitErr != nil:
		// A failed chunk cancels gctx, which can also interrupt the read in progress.
		// The chunk's error is the cause unless the caller cancelled.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return waitErr
	default:
		// Cancelled from outside between two chunks.
		return ctx.Err()
	}
}

// readChunk reads up to chunkSize items. eof reports that the reader is exhausted.
func (s *ChunkStep[I, O]) readChunk(ctx context.Context, exec *execution) (items []I, eof bool, err error) {
	items = make([]I, 0, s.chunkSize)
	for len(items) < s.chunkSize {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		item, err := s.readItem(ctx, exec)
		switch {
		case err == nil:
			items = append(items, item)
		case errors.Is(err, errItemSkipped):
			continue
		case errors.Is(err, port.ErrNoMoreItems):
			return items, true, nil
		default:
			return nil, false, err
		}
	}
	return items, false, nil
}

func (s *ChunkStep[I, O]) readItem(ctx context.Context, exec *execution) (I, error) {
	var zero I
	for attempt := 1; ; attempt++ {
		item, err := s.reader.Read(ctx)
		if err == nil {
			exec.update(func(se *model.StepExecution) { se.ReadCount++ })
			s.metricRecorder.RecordItemRead(ctx, s.name)
			return item, nil
		}
		if errors.Is(err, port.ErrNoMoreItems) || errors.Is(err, io.EOF) {
			return zero, port.ErrNoMoreItems
		}

		for _, l := range s.readListeners {
			l.OnReadError(ctx, err)
		}
		if attempt <= s.retryPolicy.GetMaxAttempts() && s.retryPolicy.ShouldRetry(err) {
			logger.Warnf("ChunkStep '%s': item read failed (attempt %d/%d), retrying: %v", s.name, attempt, s.retryPolicy.GetMaxAttempts(), err)
			s.tracer.RecordError(ctx, s.name, err)
			s.metricRecorder.RecordItemRetry(ctx, s.name, "read")
			for _, l := range s.retryListeners {
				l.OnRetryRead(ctx, err)
			}
			if waitErr := retry.Wait(ctx, s.retryPolicy.GetBackoffInterval(attempt)); waitErr != nil {
				return zero, waitErr
			}
			continue
		}
		if s.skipPolicy.TrySkip(err) {
			logger.Warnf("ChunkStep '%s': item read skipped (%d/%d): %v", s.name, s.skipPolicy.GetSkipCount(), s.skipPolicy.GetSkipLimit(), err)
			exec.update(func(se *model.StepExecution) {
				se.SkipReadCount++
				se.AddFailureException(err)
			})
			s.metricRecorder.RecordItemSkip(ctx, s.name, "read")
			for _, l := range s.skipListeners {
				l.OnSkipRead(ctx, err)
			}
			return zero, errItemSkipped
		}
		return zero, exception.NewBatchError(s.name, "item read failed", err, false, false)
	}
}

// processChunk runs one chunk transaction: process every item, write the survivors, commit.
// Any error rolls the whole chunk back.
func (s *ChunkStep[I, O]) processChunk(ctx context.Context, exec *execution, chunkNumber int, items []I) error {
	ctx, finishSpan := s.tracer.StartChunkSpan(ctx, s.name, chunkNumber)
	defer finishSpan()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.notifyChunk(ctx, exec, true)
	defer s.notifyChunk(ctx, exec, false)

	t, err := s.txManager.Begin(ctx, s.GetTransactionOptions())
	if err != nil {
		return exception.NewBatchError(s.name, fmt.Sprintf("failed to begin transaction for chunk %d", chunkNumber), err, false, false)
	}
	txCtx := tx.WithTx(ctx, t)

	var written int
	outputs, filtered, err := s.processItems(txCtx, exec, items)
	if err == nil {
		written, err = s.writeItems(txCtx, exec, t, outputs)
	}
	if err == nil {
		// Another chunk failed or the job was stopped while this one was working.
		err = ctx.Err()
	}
	if err != nil {
		s.rollback(ctx, exec, t, chunkNumber)
		return err
	}

	if err := s.txManager.Commit(t); err != nil {
		exec.update(func(se *model.StepExecution) { se.RollbackCount++ })
		s.metricRecorder.RecordChunkRollback(ctx, s.name)
		return exception.NewBatchError(s.name, fmt.Sprintf("failed to commit transaction for chunk %d", chunkNumber), err, false, false)
	}
	s.metricRecorder.RecordChunkCommit(ctx, s.name, written)
	s.metricRecorder.RecordItemWrite(ctx, s.name, written)

	exec.update(func(se *model.StepExecution) {
		se.CommitCount++
		se.WriteCount += written
		se.FilterCount += filtered
		if err := s.jobRepository.UpdateStepExecution(context.WithoutCancel(ctx), se); err != nil {
			logger.Warnf("ChunkStep '%s': failed to persist progress after chunk %d: %v", s.name, chunkNumber, err)
		}
	})
	logger.Debugf("ChunkStep '%s': chunk %d committed (%d items written, %d filtered).", s.name, chunkNumber, written, filtered)
	return nil
}

func (s *ChunkStep[I, O]) rollback(ctx context.Context, exec *execution, t tx.Tx, chunkNumber int) {
	// A cancelled context may already have ended the transaction.
	if err := s.txManager.Rollback(t); err != nil && !errors.Is(err, sql.ErrTxDone) {
		logger.Errorf("ChunkStep '%s': failed to roll back chunk %d: %v", s.name, chunkNumber, err)
	}
	exec.update(func(se *model.StepExecution) { se.RollbackCount++ })
	s.metricRecorder.RecordChunkRollback(ctx, s.name)
	logger.Warnf("ChunkStep '%s': chunk %d rolled back.", s.name, chunkNumber)
}

// notifyChunk calls the chunk listeners under the execution lock, so they observe consistent counters.
func (s *ChunkStep[I, O]) notifyChunk(ctx context.Context, exec *execution, before bool) {
	if len(s.chunkListeners) == 0 {
		return
	}
	exec.update(func(se *model.StepExecution) {
		for _, l := range s.chunkListeners {
			if before {
				l.BeforeChunk(ctx, se)
			} else {
				l.AfterChunk(ctx, se)
			}
		}
	})
}

// processItems transforms items in order. Filtered items are counted, not returned.
func (s *ChunkStep[I, O]) processItems(ctx context.Context, exec *execution, items []I) (outputs []O, filtered int, err error) {
	outputs = make([]O, 0, len(items))
	for _, item := range items {
		out, err := s.processItem(ctx, exec, item)
		if errors.Is(err, errItemSkipped) {
			continue
		}
		if err != nil {
			return nil, 0, err
		}
		if isNil(out) {
			filtered++
			continue
		}
		outputs = append(outputs, out)
	}
	return outputs, filtered, nil
}

func (s *ChunkStep[I, O]) processItem(ctx context.Context, exec *execution, item I) (O, error) {
	var zero O
	if s.processor == nil {
		out, ok := any(item).(O)
		if !ok {
			return zero, exception.NewBatchErrorf(s.name, "item of type %T cannot be written without a processor", item)
		}
		return out, nil
	}

	for attempt := 1; ; attempt++ {
		out, err := s.processor.Process(ctx, item)
		if err == nil {
			s.metricRecorder.RecordItemProcess(ctx, s.name)
			return out, nil
		}

		for _, l := range s.processListeners {
			l.OnProcessError(ctx, item, err)
		}
		if attempt <= s.retryPolicy.GetMaxAttempts() && s.retryPolicy.ShouldRetry(err) {
			logger.Warnf("ChunkStep '%s': item process failed (attempt %d/%d), retrying: %v", s.name, attempt, s.retryPolicy.GetMaxAttempts(), err)
			s.tracer.RecordError(ctx, s.name, err)
			s.metricRecorder.RecordItemRetry(ctx, s.name, "process")
			for _, l := range s.retryListeners {
				l.OnRetryProcess(ctx, item, err)
			}
			if waitErr := retry.Wait(ctx, s.retryPolicy.GetBackoffInterval(attempt)); waitErr != nil {
				return zero, waitErr
			}
			continue
		}
		if s.skipPolicy.TrySkip(err) {
			logger.Warnf("ChunkStep '%s': item process skipped (%d/%d): %v", s.name, s.skipPolicy.GetSkipCount(), s.skipPolicy.GetSkipLimit(), err)
			exec.update(func(se *model.StepExecution) {
				se.SkipProcessCount++
				se.AddFailureException(err)
			})
			s.metricRecorder.RecordItemSkip(ctx, s.name, "process")
			for _, l := range s.skipListeners {
				l.OnSkipProcess(ctx, item, err)
			}
			return zero, errItemSkipped
		}
		return zero, exception.NewBatchError(s.name, "item process failed", err, false, false)
	}
}

// writeItems writes the chunk inside t. Without retry or skip configured a single write is
// attempted. Otherwise the write is guarded by a savepoint so a failed attempt can be undone
// without losing the chunk's transaction.
func (s *ChunkStep[I, O]) writeItems(ctx context.Context, exec *execution, t tx.Tx, items []O) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	if !s.faultTolerant() {
		if err := s.writer.Write(ctx, t, items); err != nil {
			s.notifyWriteError(ctx, items, err)
			return 0, exception.NewBatchError(s.name, "item write failed", err, false, false)
		}
		return len(items), nil
	}

	for attempt := 1; ; attempt++ {
		err := s.writeGuarded(ctx, t, items)
		if err == nil {
			return len(items), nil
		}
		s.notifyWriteError(ctx, items, err)

		if attempt <= s.retryPolicy.GetMaxAttempts() && s.retryPolicy.ShouldRetry(err) {
			logger.Warnf("ChunkStep '%s': chunk write failed (attempt %d/%d), retrying: %v", s.name, attempt, s.retryPolicy.GetMaxAttempts(), err)
			s.tracer.RecordError(ctx, s.name, err)
			s.metricRecorder.RecordItemRetry(ctx, s.name, "write")
			for _, l := range s.retryListeners {
				l.OnRetryWrite(ctx, toInterfaces(items), err)
			}
			if waitErr := retry.Wait(ctx, s.retryPolicy.GetBackoffInterval(attempt)); waitErr != nil {
				return 0, waitErr
			}
			continue
		}
		if s.skipPolicy.ShouldSkip(err) {
			return s.scanWrite(ctx, exec, t, items)
		}
		return 0, exception.NewBatchError(s.name, "item write failed", err, false, false)
	}
}

// scanWrite writes items one at a time after a skippable chunk write failure,
// skipping the items that fail again.
func (s *ChunkStep[I, O]) scanWrite(ctx context.Context, exec *execution, t tx.Tx, items []O) (int, error) {
	logger.Warnf("ChunkStep '%s': scanning %d items one by one after a skippable write failure.", s.name, len(items))
	written := 0
	for _, item := range items {
		err := s.writeGuarded(ctx, t, []O{item})
		if err == nil {
			written++
			continue
		}
		if !s.skipPolicy.TrySkip(err) {
			return 0, exception.NewBatchError(s.name, "item write failed", err, false, false)
		}
		exec.update(func(se *model.StepExecution) {
			se.SkipWriteCount++
			se.AddFailureException(err)
		})
		s.metricRecorder.RecordItemSkip(ctx, s.name, "write")
		for _, l := range s.skipListeners {
			l.OnSkipWrite(ctx, item, err)
		}
	}
	return written, nil
}

// writeGuarded writes items after a savepoint and rolls back to it on failure.
func (s *ChunkStep[I, O]) writeGuarded(ctx context.Context, t tx.Tx, items []O) error {
	if err := t.Savepoint(writeSavepoint); err != nil {
		return exception.NewBatchError(s.name, "failed to create savepoint", err, false, false)
	}
	writeErr := s.writer.Write(ctx, t, items)
	if writeErr == nil {
		return nil
	}
	if err := t.RollbackToSavepoint(writeSavepoint); err != nil {
		return multierror.Append(writeErr, exception.NewBatchError(s.name, "failed to roll back to savepoint", err, false, false))
	}
	return writeErr
}

func (s *ChunkStep[I, O]) notifyWriteError(ctx context.Context, items []O, err error) {
	if len(s.writeListeners) == 0 {
		return
	}
	values := toInterfaces(items)
	for _, l := range s.writeListeners {
		l.OnWriteError(ctx, values, err)
	}
}

// collectExecutionContext merges the reader and writer state into the StepExecution.
func (s *ChunkStep[I, O]) collectExecutionContext(ctx context.Context, se *model.StepExecution) {
	for name, get := range map[string]func(context.Context) (model.ExecutionContext, error){
		"ItemReader": s.reader.GetExecutionContext,
		"ItemWriter": s.writer.GetExecutionContext,
	} {
		ec, err := get(ctx)
		if err != nil {
			if !errors.Is(err, port.ErrExecutionContextNotSupported) {
				logger.Warnf("ChunkStep '%s': failed to get ExecutionContext from %s: %v", s.name, name, err)
			}
			continue
		}
		for k, v := range ec {
			se.ExecutionContext.Put(k, v)
		}
	}
}

func toInterfaces[T any](items []T) []interface{} {
	values := make([]interface{}, len(items))
	for i, item := range items {
		values[i] = item
	}
	return values
}

// isNil reports whether a processor result means "filtered".
func isNil[T any](v T) bool {
	rv := reflect.ValueOf(any(v))
	if !rv.IsValid() {
		return true
	}
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
