// Package generic provides reusable tasklet implementations.
package generic

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/tigerroll/customer-import/pkg/batch/core/application/port"
	"github.com/tigerroll/customer-import/pkg/batch/core/domain/model"
	"github.com/tigerroll/customer-import/pkg/batch/support/util/exception"
	"github.com/tigerroll/customer-import/pkg/batch/support/util/logger"
)

// DefaultExportBatchSize is the number of items handed to the writer per Write call.
const DefaultExportBatchSize = 1000

// ExportTasklet copies every item of a reader into a writer outside of any chunk transaction.
// Reading and writing run on two goroutines connected by a buffered channel.
// Typical use is a ParquetWriter fed by a SqlCursorReader.
type ExportTasklet[T any] struct {
	name      string
	reader    port.ItemReader[T]
	writer    port.ItemWriter[T]
	batchSize int

	opened   bool
	failed   bool
	exported int
}

// discarder is implemented by writers that can drop buffered output instead of flushing it on Close.
type discarder interface {
	Discard()
}

var _ port.Tasklet = (*ExportTasklet[any])(nil)

// NewExportTasklet creates an ExportTasklet. batchSize <= 0 uses DefaultExportBatchSize.
func NewExportTasklet[T any](name string, reader port.ItemReader[T], writer port.ItemWriter[T], batchSize int) *ExportTasklet[T] {
	if batchSize <= 0 {
		batchSize = DefaultExportBatchSize
	}
	return &ExportTasklet[T]{name: name, reader: reader, writer: writer, batchSize: batchSize}
}

// ExportedCountKey is the ExecutionContext key holding the number of exported items.
func (t *ExportTasklet[T]) ExportedCountKey() string {
	return t.name + ".exported.count"
}

func (t *ExportTasklet[T]) Execute(ctx context.Context, stepExecution *model.StepExecution) (model.ExitStatus, error) {
	t.failed, t.exported = false, 0
	if err := t.writer.Open(ctx, stepExecution.ExecutionContext); err != nil {
		return model.ExitStatusFailed, exception.NewBatchError(t.name, "failed to open writer", err, false, false)
	}
	if err := t.reader.Open(ctx, stepExecution.ExecutionContext); err != nil {
		t.opened, t.failed = true, true
		return model.ExitStatusFailed, exception.NewBatchError(t.name, "failed to open reader", err, false, false)
	}
	t.opened = true

	items := make(chan T, t.batchSize)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(items)
		for {
			item, err := t.reader.Read(gctx)
			if errors.Is(err, port.ErrNoMoreItems) || errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return exception.NewBatchError(t.name, "failed to read item", err, false, false)
			}
			select {
			case items <- item:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	g.Go(func() error {
		batch := make([]T, 0, t.batchSize)
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			if err := t.writer.Write(gctx, nil, batch); err != nil {
				return exception.NewBatchError(t.name, fmt.Sprintf("failed to write %d items", len(batch)), err, false, false)
			}
			t.exported += len(batch)
			batch = make([]T, 0, t.batchSize)
			return nil
		}
		for item := range items {
			batch = append(batch, item)
			if len(batch) >= t.batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		if err := gctx.Err(); err != nil {
			return err
		}
		return flush()
	})

	if err := g.Wait(); err != nil {
		t.failed = true
		return model.ExitStatusFailed, err
	}

	stepExecution.ExecutionContext.Put(t.ExportedCountKey(), t.exported)
	logger.Infof("ExportTasklet '%s': exported %d items.", t.name, t.exported)
	return model.ExitStatusCompleted, nil
}

// Close closes the reader, then the writer. A writer that buffers (e.g. ParquetWriter) flushes here,
// unless the export failed and the writer can discard its buffer.
func (t *ExportTasklet[T]) Close(ctx context.Context) error {
	if d, ok := t.writer.(discarder); ok && t.failed {
		d.Discard()
	}
	if !t.opened {
		return t.writer.Close(ctx)
	}
	t.opened = false
	var errs error
	if err := t.reader.Close(ctx); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := t.writer.Close(ctx); err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs
}
