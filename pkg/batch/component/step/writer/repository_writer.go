// Package writer provides reusable port.ItemWriter implementations.
package writer

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/tigerroll/customer-import/pkg/batch/core/application/port"
	"github.com/tigerroll/customer-import/pkg/batch/core/domain/model"
	tx "github.com/tigerroll/customer-import/pkg/batch/core/tx"
	"github.com/tigerroll/customer-import/pkg/batch/support/util/logger"
)

// Repository persists one item inside a transaction and returns the stored value.
type Repository[T any] interface {
	Save(ctx context.Context, t tx.Tx, item T) (T, error)
}

// SaveFunc adapts a function to Repository.
type SaveFunc[T any] func(ctx context.Context, t tx.Tx, item T) (T, error)

func (f SaveFunc[T]) Save(ctx context.Context, t tx.Tx, item T) (T, error) {
	return f(ctx, t, item)
}

// RepositoryItemWriter writes a chunk by calling Repository.Save once per item, in chunk order,
// inside the chunk's transaction. The first error aborts the chunk and is returned unchanged.
type RepositoryItemWriter[T any] struct {
	name       string
	repository Repository[T]
	saved      atomic.Int64
}

var _ port.ItemWriter[any] = (*RepositoryItemWriter[any])(nil)

// NewRepositoryItemWriter creates a RepositoryItemWriter named name.
func NewRepositoryItemWriter[T any](name string, repository Repository[T]) *RepositoryItemWriter[T] {
	return &RepositoryItemWriter[T]{name: name, repository: repository}
}

// SavedCountKey is the ExecutionContext key holding the number of items saved.
func (w *RepositoryItemWriter[T]) SavedCountKey() string {
	return w.name + ".saved.count"
}

func (w *RepositoryItemWriter[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	w.saved.Store(0)
	return nil
}

func (w *RepositoryItemWriter[T]) Write(ctx context.Context, t tx.Tx, items []T) error {
	if t == nil {
		return fmt.Errorf("writer '%s': no transaction", w.name)
	}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := w.repository.Save(ctx, t, item); err != nil {
			return err
		}
	}
	w.saved.Add(int64(len(items)))
	logger.Debugf("RepositoryItemWriter '%s' saved %d items.", w.name, len(items))
	return nil
}

func (w *RepositoryItemWriter[T]) Close(ctx context.Context) error {
	return nil
}

func (w *RepositoryItemWriter[T]) SetExecutionContext(ctx context.Context, ec model.ExecutionContext) error {
	return port.ErrExecutionContextNotSupported
}

// GetExecutionContext reports the number of items passed to Save without error.
// Items of chunks that were later rolled back are included.
func (w *RepositoryItemWriter[T]) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	ec := model.NewExecutionContext()
	ec.Put(w.SavedCountKey(), int(w.saved.Load()))
	return ec, nil
}
