package writer

import (
	"context"
	"errors"
	"fmt"

	"github.com/tigerroll/customer-import/pkg/batch/core/application/port"
	"github.com/tigerroll/customer-import/pkg/batch/core/domain/model"
	tx "github.com/tigerroll/customer-import/pkg/batch/core/tx"
	"github.com/tigerroll/customer-import/pkg/batch/support/util/exception"
	"github.com/tigerroll/customer-import/pkg/batch/support/util/logger"
)

// SqlBulkWriter upserts a chunk with one statement per bulkSize items through tx.Tx.ExecuteUpsert.
// Conflict handling is delegated to the dialect (ON CONFLICT / ON DUPLICATE KEY).
type SqlBulkWriter[T any] struct {
	name            string
	bulkSize        int
	tableName       string
	conflictColumns []string
	updateColumns   []string
	// check runs on every item before the statement is built; its error aborts the chunk unchanged.
	check func(T) error
	// key returns the conflict key of an item. When set, only the last item per key is written.
	key func(T) string
}

var _ port.ItemWriter[any] = (*SqlBulkWriter[any])(nil)

// NewSqlBulkWriter creates a SqlBulkWriter. An empty updateColumns means DO NOTHING on conflict.
func NewSqlBulkWriter[T any](name string, bulkSize int, tableName string, conflictColumns []string, updateColumns []string) *SqlBulkWriter[T] {
	if bulkSize <= 0 {
		bulkSize = 100
	}
	return &SqlBulkWriter[T]{
		name:            name,
		bulkSize:        bulkSize,
		tableName:       tableName,
		conflictColumns: conflictColumns,
		updateColumns:   updateColumns,
	}
}

// WithCheck sets a per-item check run before each statement.
func (w *SqlBulkWriter[T]) WithCheck(check func(T) error) *SqlBulkWriter[T] {
	w.check = check
	return w
}

// WithKey deduplicates each chunk on the conflict key, keeping the last item. A single
// INSERT ... ON CONFLICT DO UPDATE cannot touch the same row twice on PostgreSQL.
func (w *SqlBulkWriter[T]) WithKey(key func(T) string) *SqlBulkWriter[T] {
	w.key = key
	return w
}

func (w *SqlBulkWriter[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	return nil
}

// Write upserts items in slices of bulkSize. Any failure is reported as a StorageError.
func (w *SqlBulkWriter[T]) Write(ctx context.Context, t tx.Tx, items []T) error {
	if len(items) == 0 {
		return nil
	}
	if t == nil {
		return exception.NewBatchErrorf(w.name, "no transaction for bulk write into '%s'", w.tableName)
	}
	if w.check != nil {
		for _, item := range items {
			if err := w.check(item); err != nil {
				return err
			}
		}
	}

	if w.key != nil {
		items = w.lastPerKey(items)
	}

	for start := 0; start < len(items); start += w.bulkSize {
		end := min(start+w.bulkSize, len(items))
		batch := items[start:end]
		if _, err := t.ExecuteUpsert(ctx, batch, w.tableName, w.conflictColumns, w.updateColumns); err != nil {
			return exception.NewBatchError(w.name,
				fmt.Sprintf("failed to upsert %d records into '%s' (offset %d)", len(batch), w.tableName, start),
				errors.Join(exception.ErrStorage, err), false, false)
		}
		logger.Debugf("SqlBulkWriter '%s': upserted %d records into '%s'.", w.name, len(batch), w.tableName)
	}
	return nil
}

// lastPerKey keeps the first position of every key with the value of its last occurrence.
func (w *SqlBulkWriter[T]) lastPerKey(items []T) []T {
	index := make(map[string]int, len(items))
	out := make([]T, 0, len(items))
	for _, item := range items {
		k := w.key(item)
		if i, ok := index[k]; ok {
			out[i] = item
			continue
		}
		index[k] = len(out)
		out = append(out, item)
	}
	if dropped := len(items) - len(out); dropped > 0 {
		logger.Debugf("SqlBulkWriter '%s': %d duplicate keys in chunk, last occurrence wins.", w.name, dropped)
	}
	return out
}

func (w *SqlBulkWriter[T]) Close(ctx context.Context) error {
	return nil
}

func (w *SqlBulkWriter[T]) SetExecutionContext(ctx context.Context, ec model.ExecutionContext) error {
	return port.ErrExecutionContextNotSupported
}

func (w *SqlBulkWriter[T]) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	return model.NewExecutionContext(), nil
}
