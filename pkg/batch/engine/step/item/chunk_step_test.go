package item_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	port "github.com/tigerroll/customer-import/pkg/batch/core/application/port"
	config "github.com/tigerroll/customer-import/pkg/batch/core/config"
	model "github.com/tigerroll/customer-import/pkg/batch/core/domain/model"
	tx "github.com/tigerroll/customer-import/pkg/batch/core/tx"
	"github.com/tigerroll/customer-import/pkg/batch/engine/step/item"
	"github.com/tigerroll/customer-import/pkg/batch/support/util/exception"
	testutil "github.com/tigerroll/customer-import/pkg/batch/test"
)

type record struct {
	ID string
}

// sliceReader yields the given records, then port.ErrNoMoreItems.
type sliceReader struct {
	mu     sync.Mutex
	items  []*record
	pos    int
	failAt map[int]error
	delay  time.Duration
	opened bool
	closed bool
}

func newSliceReader(n int) *sliceReader {
	items := make([]*record, n)
	for i := range items {
		items[i] = &record{ID: fmt.Sprintf("%d", i+1)}
	}
	return &sliceReader{items: items, failAt: map[int]error{}}
}

func (r *sliceReader) Open(ctx context.Context, ec model.ExecutionContext) error {
	r.opened = true
	return nil
}

func (r *sliceReader) Read(ctx context.Context) (*record, error) {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.failAt[r.pos]; ok {
		delete(r.failAt, r.pos)
		r.pos++
		return nil, err
	}
	if r.pos >= len(r.items) {
		return nil, port.ErrNoMoreItems
	}
	item := r.items[r.pos]
	r.pos++
	return item, nil
}

func (r *sliceReader) Close(ctx context.Context) error {
	r.closed = true
	return nil
}

func (r *sliceReader) SetExecutionContext(ctx context.Context, ec model.ExecutionContext) error {
	return port.ErrExecutionContextNotSupported
}

func (r *sliceReader) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ec := model.NewExecutionContext()
	ec.Put("read.count", r.pos)
	return ec, nil
}

// recordingWriter keeps every chunk it was asked to write.
type recordingWriter struct {
	mu          sync.Mutex
	chunks      [][]*record
	failOn      func(items []*record) error
	delay       time.Duration
	inFlight    int32
	maxInFlight int32
	closed      bool
}

func (w *recordingWriter) Open(ctx context.Context, ec model.ExecutionContext) error { return nil }

func (w *recordingWriter) Write(ctx context.Context, t tx.Tx, items []*record) error {
	n := atomic.AddInt32(&w.inFlight, 1)
	defer atomic.AddInt32(&w.inFlight, -1)
	for {
		max := atomic.LoadInt32(&w.maxInFlight)
		if n <= max || atomic.CompareAndSwapInt32(&w.maxInFlight, max, n) {
			break
		}
	}
	if w.delay > 0 {
		time.Sleep(w.delay)
	}
	if w.failOn != nil {
		if err := w.failOn(items); err != nil {
			return err
		}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.chunks = append(w.chunks, append([]*record(nil), items...))
	return nil
}

func (w *recordingWriter) Close(ctx context.Context) error {
	w.closed = true
	return nil
}

func (w *recordingWriter) SetExecutionContext(ctx context.Context, ec model.ExecutionContext) error {
	return port.ErrExecutionContextNotSupported
}

func (w *recordingWriter) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	return nil, port.ErrExecutionContextNotSupported
}

func (w *recordingWriter) written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, c := range w.chunks {
		n += len(c)
	}
	return n
}

type processorFunc func(ctx context.Context, r *record) (*record, error)

func (f processorFunc) Process(ctx context.Context, r *record) (*record, error) { return f(ctx, r) }

var passThrough = processorFunc(func(ctx context.Context, r *record) (*record, error) { return r, nil })

type fixture struct {
	repo      *testutil.MockJobRepository
	txManager *testutil.MockTxManager
	tx        *testutil.MockTx
	je        *model.JobExecution
	se        *model.StepExecution
}

func newFixture() *fixture {
	f := &fixture{
		repo:      new(testutil.MockJobRepository),
		txManager: new(testutil.MockTxManager),
		tx:        new(testutil.MockTx),
	}
	f.repo.On("UpdateStepExecution", mock.Anything, mock.Anything).Return(nil)
	f.txManager.On("Begin", mock.Anything, mock.Anything).Return(f.tx, nil)
	f.txManager.On("Commit", f.tx).Return(nil)
	f.txManager.On("Rollback", f.tx).Return(nil)
	_, f.je = testutil.NewTestJobExecution("importCustomers", model.NewJobParameters())
	f.se = testutil.NewTestStepExecution(f.je, "stepProduct")
	return f
}

func TestChunkStep_CommitsOneTransactionPerChunk(t *testing.T) {
	f := newFixture()
	reader := newSliceReader(25)
	writer := &recordingWriter{}
	step := item.NewChunkStep[*record, *record]("stepProduct", reader, passThrough, writer, f.repo, f.txManager,
		item.WithChunkSize(10), item.WithConcurrency(1))

	err := step.Execute(context.Background(), f.je, f.se)

	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, f.se.Status)
	assert.Equal(t, model.ExitStatusCompleted, f.se.ExitStatus)
	require.Len(t, writer.chunks, 3)
	assert.Len(t, writer.chunks[0], 10)
	assert.Len(t, writer.chunks[1], 10)
	assert.Len(t, writer.chunks[2], 5)
	assert.Equal(t, "1", writer.chunks[0][0].ID)
	assert.Equal(t, "25", writer.chunks[2][4].ID)
	assert.Equal(t, 25, f.se.ReadCount)
	assert.Equal(t, 25, f.se.WriteCount)
	assert.Equal(t, 3, f.se.CommitCount)
	assert.Equal(t, 0, f.se.RollbackCount)
	f.txManager.AssertNumberOfCalls(t, "Begin", 3)
	f.txManager.AssertNumberOfCalls(t, "Commit", 3)
	f.txManager.AssertNotCalled(t, "Rollback", mock.Anything)
	assert.True(t, reader.opened)
	assert.True(t, reader.closed)
	assert.True(t, writer.closed)
	rc, ok := f.se.ExecutionContext.GetInt("read.count")
	assert.True(t, ok)
	assert.Equal(t, 25, rc)
}

func TestChunkStep_ExactMultipleOfChunkSize(t *testing.T) {
	f := newFixture()
	writer := &recordingWriter{}
	step := item.NewChunkStep[*record, *record]("stepProduct", newSliceReader(20), passThrough, writer, f.repo, f.txManager,
		item.WithChunkSize(10), item.WithConcurrency(3))

	require.NoError(t, step.Execute(context.Background(), f.je, f.se))

	assert.Len(t, writer.chunks, 2)
	assert.Equal(t, 2, f.se.CommitCount)
}

func TestChunkStep_EmptyInputCompletesWithoutTransactions(t *testing.T) {
	f := newFixture()
	step := item.NewChunkStep[*record, *record]("stepProduct", newSliceReader(0), passThrough, &recordingWriter{}, f.repo, f.txManager)

	require.NoError(t, step.Execute(context.Background(), f.je, f.se))

	assert.Equal(t, model.BatchStatusCompleted, f.se.Status)
	assert.Equal(t, 0, f.se.CommitCount)
	f.txManager.AssertNotCalled(t, "Begin", mock.Anything, mock.Anything)
}

func TestChunkStep_FilteredItemsAreNotWritten(t *testing.T) {
	f := newFixture()
	writer := &recordingWriter{}
	evenOnly := processorFunc(func(ctx context.Context, r *record) (*record, error) {
		var n int
		fmt.Sscanf(r.ID, "%d", &n)
		if n%2 == 1 {
			return nil, nil
		}
		return &record{ID: "c-" + r.ID}, nil
	})
	step := item.NewChunkStep[*record, *record]("stepProduct", newSliceReader(10), evenOnly, writer, f.repo, f.txManager,
		item.WithChunkSize(4), item.WithConcurrency(1))

	require.NoError(t, step.Execute(context.Background(), f.je, f.se))

	assert.Equal(t, 10, f.se.ReadCount)
	assert.Equal(t, 5, f.se.FilterCount)
	assert.Equal(t, 5, f.se.WriteCount)
	assert.Equal(t, 3, f.se.CommitCount)
	assert.Equal(t, "c-2", writer.chunks[0][0].ID)
}

func TestChunkStep_WriteErrorRollsBackChunkAndFails(t *testing.T) {
	f := newFixture()
	storageErr := exception.NewStorageError("writer", "", errors.New("empty id"))
	writer := &recordingWriter{failOn: func(items []*record) error {
		for _, r := range items {
			if r.ID == "15" {
				return storageErr
			}
		}
		return nil
	}}
	step := item.NewChunkStep[*record, *record]("stepProduct", newSliceReader(30), passThrough, writer, f.repo, f.txManager,
		item.WithChunkSize(10), item.WithConcurrency(1))

	err := step.Execute(context.Background(), f.je, f.se)

	require.Error(t, err)
	assert.True(t, exception.IsStorageError(err))
	assert.Equal(t, model.BatchStatusFailed, f.se.Status)
	assert.Equal(t, model.ExitStatusFailed, f.se.ExitStatus)
	// The first chunk stays committed; the failing chunk persists nothing and the third never runs.
	require.Len(t, writer.chunks, 1)
	assert.Equal(t, 1, f.se.CommitCount)
	assert.Equal(t, 1, f.se.RollbackCount)
	assert.Equal(t, 10, f.se.WriteCount)
	assert.NotEmpty(t, f.se.Failures)
	f.txManager.AssertNumberOfCalls(t, "Rollback", 1)
	assert.True(t, writer.closed)
}

func TestChunkStep_ProcessErrorFailsFast(t *testing.T) {
	f := newFixture()
	writer := &recordingWriter{}
	failing := processorFunc(func(ctx context.Context, r *record) (*record, error) {
		if r.ID == "3" {
			return nil, exception.NewTransformError("processor", "invalid email", nil)
		}
		return r, nil
	})
	step := item.NewChunkStep[*record, *record]("stepProduct", newSliceReader(5), failing, writer, f.repo, f.txManager,
		item.WithChunkSize(10))

	err := step.Execute(context.Background(), f.je, f.se)

	require.Error(t, err)
	assert.True(t, exception.IsTransformError(err))
	assert.Empty(t, writer.chunks)
	assert.Equal(t, 1, f.se.RollbackCount)
	assert.Equal(t, model.BatchStatusFailed, f.se.Status)
}

func TestChunkStep_FailingChunkFailsStepUnderFullPool(t *testing.T) {
	f := newFixture()
	reader := newSliceReader(100)
	reader.delay = 2 * time.Millisecond
	writer := &recordingWriter{}
	failing := processorFunc(func(ctx context.Context, r *record) (*record, error) {
		if r.ID == "1" {
			return nil, exception.NewTransformError("processor", "invalid email", nil)
		}
		return r, nil
	})
	step := item.NewChunkStep[*record, *record]("stepProduct", reader, failing, writer, f.repo, f.txManager,
		item.WithChunkSize(10), item.WithConcurrency(10))

	err := step.Execute(context.Background(), f.je, f.se)

	require.Error(t, err)
	assert.True(t, exception.IsTransformError(err), "got %v", err)
	assert.Equal(t, model.BatchStatusFailed, f.se.Status)
	assert.Equal(t, model.ExitStatusFailed, f.se.ExitStatus)
	assert.GreaterOrEqual(t, f.se.RollbackCount, 1)
	for _, chunk := range writer.chunks {
		for _, r := range chunk {
			var n int
			fmt.Sscanf(r.ID, "%d", &n)
			assert.Greater(t, n, 10, "record %s of the failed chunk was written", r.ID)
		}
	}
}

func TestChunkStep_ReadErrorFails(t *testing.T) {
	f := newFixture()
	reader := newSliceReader(12)
	reader.failAt[11] = exception.NewParseError("reader", 13, `"broken`, errors.New("bare quote"))
	writer := &recordingWriter{}
	step := item.NewChunkStep[*record, *record]("stepProduct", reader, passThrough, writer, f.repo, f.txManager,
		item.WithChunkSize(10), item.WithConcurrency(1))

	err := step.Execute(context.Background(), f.je, f.se)

	require.Error(t, err)
	assert.True(t, exception.IsParseError(err))
	assert.Equal(t, model.BatchStatusFailed, f.se.Status)
	// The first chunk may still be in flight when the read fails, so it may or may not commit.
	assert.LessOrEqual(t, f.se.CommitCount, 1)
	assert.LessOrEqual(t, writer.written(), 10)
	assert.Equal(t, 11, f.se.ReadCount)
}

func TestChunkStep_BoundedConcurrency(t *testing.T) {
	f := newFixture()
	writer := &recordingWriter{delay: 20 * time.Millisecond}
	step := item.NewChunkStep[*record, *record]("stepProduct", newSliceReader(100), passThrough, writer, f.repo, f.txManager,
		item.WithChunkSize(5), item.WithConcurrency(4))

	require.NoError(t, step.Execute(context.Background(), f.je, f.se))

	assert.Equal(t, 100, writer.written())
	assert.Equal(t, 20, f.se.CommitCount)
	assert.Equal(t, 100, f.se.WriteCount)
	assert.LessOrEqual(t, atomic.LoadInt32(&writer.maxInFlight), int32(4))
	assert.Greater(t, atomic.LoadInt32(&writer.maxInFlight), int32(1))
}

func TestChunkStep_SkipsProcessErrorsWithinLimit(t *testing.T) {
	f := newFixture()
	writer := &recordingWriter{}
	failing := processorFunc(func(ctx context.Context, r *record) (*record, error) {
		if r.ID == "2" || r.ID == "7" {
			return nil, exception.NewTransformError("processor", "invalid dob", nil)
		}
		return r, nil
	})
	step := item.NewChunkStep[*record, *record]("stepProduct", newSliceReader(10), failing, writer, f.repo, f.txManager,
		item.WithChunkSize(5), item.WithConcurrency(1),
		item.WithSkip(config.ItemSkipConfig{SkipLimit: 2, SkippableExceptions: []string{exception.TransformErrorType}}))

	require.NoError(t, step.Execute(context.Background(), f.je, f.se))

	assert.Equal(t, 2, f.se.SkipProcessCount)
	assert.Equal(t, 8, f.se.WriteCount)
	assert.Equal(t, 2, f.se.CommitCount)
	assert.Len(t, f.se.Failures, 1) // same message is recorded once
}

func TestChunkStep_SkipLimitExceededFails(t *testing.T) {
	f := newFixture()
	failing := processorFunc(func(ctx context.Context, r *record) (*record, error) {
		return nil, exception.NewTransformError("processor", "invalid record "+r.ID, nil)
	})
	step := item.NewChunkStep[*record, *record]("stepProduct", newSliceReader(3), failing, &recordingWriter{}, f.repo, f.txManager,
		item.WithSkip(config.ItemSkipConfig{SkipLimit: 2, SkippableExceptions: []string{exception.TransformErrorType}}))

	err := step.Execute(context.Background(), f.je, f.se)

	require.Error(t, err)
	assert.Equal(t, 2, f.se.SkipProcessCount)
	assert.Equal(t, model.BatchStatusFailed, f.se.Status)
}

func TestChunkStep_WriteSkipScansItemsUnderSavepoints(t *testing.T) {
	f := newFixture()
	f.tx.On("Savepoint", "chunk_write").Return(nil)
	f.tx.On("RollbackToSavepoint", "chunk_write").Return(nil)
	writer := &recordingWriter{failOn: func(items []*record) error {
		for _, r := range items {
			if r.ID == "3" {
				return exception.NewStorageError("writer", r.ID, errors.New("check constraint failed"))
			}
		}
		return nil
	}}
	step := item.NewChunkStep[*record, *record]("stepProduct", newSliceReader(5), passThrough, writer, f.repo, f.txManager,
		item.WithChunkSize(5),
		item.WithSkip(config.ItemSkipConfig{SkipLimit: 1, SkippableExceptions: []string{exception.StorageErrorType}}))

	require.NoError(t, step.Execute(context.Background(), f.je, f.se))

	assert.Equal(t, 1, f.se.SkipWriteCount)
	assert.Equal(t, 4, f.se.WriteCount)
	assert.Equal(t, 1, f.se.CommitCount)
	assert.Equal(t, 4, writer.written())
	// One chunk attempt plus one single-item attempt per record.
	f.tx.AssertNumberOfCalls(t, "Savepoint", 6)
	f.tx.AssertNumberOfCalls(t, "RollbackToSavepoint", 2)
}

func TestChunkStep_RetriesRetryableWrites(t *testing.T) {
	f := newFixture()
	f.tx.On("Savepoint", "chunk_write").Return(nil)
	f.tx.On("RollbackToSavepoint", "chunk_write").Return(nil)
	var attempts int32
	writer := &recordingWriter{failOn: func(items []*record) error {
		if atomic.AddInt32(&attempts, 1) == 1 {
			return exception.NewBatchError("writer", "deadlock detected", nil, false, true)
		}
		return nil
	}}
	step := item.NewChunkStep[*record, *record]("stepProduct", newSliceReader(3), passThrough, writer, f.repo, f.txManager,
		item.WithRetry(config.ItemRetryConfig{MaxAttempts: 2, InitialInterval: 1}))

	require.NoError(t, step.Execute(context.Background(), f.je, f.se))

	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
	assert.Equal(t, 3, f.se.WriteCount)
	assert.Equal(t, 1, f.se.CommitCount)
	assert.Equal(t, 0, f.se.RollbackCount)
}

func TestChunkStep_CancelledContextStopsStep(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	writer := &recordingWriter{}
	step := item.NewChunkStep[*record, *record]("stepProduct", newSliceReader(10), passThrough, writer, f.repo, f.txManager)

	err := step.Execute(ctx, f.je, f.se)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, model.BatchStatusStopped, f.se.Status)
	assert.Empty(t, writer.chunks)
}

type countingListener struct {
	mu             sync.Mutex
	before         int
	after          int
	beforeChunks   int
	afterChunks    int
	processErrors  int
	lastStepStatus model.JobStatus
}

func (l *countingListener) BeforeStep(ctx context.Context, se *model.StepExecution) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.before++
	if port.GetStepExecutionFromContext(ctx) != se {
		panic("step execution missing from context")
	}
}

func (l *countingListener) AfterStep(ctx context.Context, se *model.StepExecution) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.after++
	l.lastStepStatus = se.Status
}

func (l *countingListener) BeforeChunk(ctx context.Context, se *model.StepExecution) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.beforeChunks++
}

func (l *countingListener) AfterChunk(ctx context.Context, se *model.StepExecution) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.afterChunks++
}

func (l *countingListener) OnProcessError(ctx context.Context, item interface{}, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.processErrors++
}

func TestChunkStep_NotifiesListeners(t *testing.T) {
	f := newFixture()
	l := &countingListener{}
	step := item.NewChunkStep[*record, *record]("stepProduct", newSliceReader(7), passThrough, &recordingWriter{}, f.repo, f.txManager,
		item.WithChunkSize(3), item.WithConcurrency(2), item.WithListeners(l))

	require.NoError(t, step.Execute(context.Background(), f.je, f.se))

	assert.Equal(t, 1, l.before)
	assert.Equal(t, 1, l.after)
	assert.Equal(t, 3, l.beforeChunks)
	assert.Equal(t, 3, l.afterChunks)
	assert.Equal(t, 0, l.processErrors)
	assert.Equal(t, model.BatchStatusCompleted, l.lastStepStatus)
}

func TestChunkStep_Defaults(t *testing.T) {
	f := newFixture()
	step := item.NewChunkStep[*record, *record]("stepProduct", newSliceReader(0), nil, &recordingWriter{}, f.repo, f.txManager,
		item.WithBatchConfig(config.BatchConfig{IsolationLevel: "SERIALIZABLE"}))

	assert.Equal(t, item.DefaultChunkSize, step.ChunkSize())
	assert.Equal(t, item.DefaultConcurrency, step.Concurrency())
	assert.Equal(t, "stepProduct", step.StepName())
	assert.Equal(t, item.ParseIsolationLevel("SERIALIZABLE"), step.GetTransactionOptions().Isolation)
}

func TestChunkStep_WithoutProcessorWritesItemsAsRead(t *testing.T) {
	f := newFixture()
	writer := &recordingWriter{}
	step := item.NewChunkStep[*record, *record]("stepProduct", newSliceReader(4), nil, writer, f.repo, f.txManager)

	require.NoError(t, step.Execute(context.Background(), f.je, f.se))

	assert.Equal(t, 4, writer.written())
}
