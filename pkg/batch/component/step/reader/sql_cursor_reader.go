package reader

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tigerroll/customer-import/pkg/batch/adapter/database"
	"github.com/tigerroll/customer-import/pkg/batch/core/application/port"
	"github.com/tigerroll/customer-import/pkg/batch/core/domain/model"
	"github.com/tigerroll/customer-import/pkg/batch/support/util/exception"
	"github.com/tigerroll/customer-import/pkg/batch/support/util/logger"
)

// RowMapper maps the current row of a cursor to an item.
type RowMapper[T any] func(rows *sql.Rows) (T, error)

// SqlCursorReader streams the rows of a query over a named database connection.
// The query runs once in Open; Read advances the cursor.
type SqlCursorReader[T any] struct {
	name       string
	dbResolver database.DBConnectionResolver
	dbRef      string
	query      string
	args       []any
	mapper     RowMapper[T]

	rows      *sql.Rows
	readCount int
}

var _ port.ItemReader[any] = (*SqlCursorReader[any])(nil)

// NewSqlCursorReader creates a reader for query on the connection named dbRef.
func NewSqlCursorReader[T any](name string, dbResolver database.DBConnectionResolver, dbRef string, query string, args []any, mapper RowMapper[T]) *SqlCursorReader[T] {
	return &SqlCursorReader[T]{
		name:       name,
		dbResolver: dbResolver,
		dbRef:      dbRef,
		query:      query,
		args:       args,
		mapper:     mapper,
	}
}

// ReadCountKey is the ExecutionContext key holding the number of rows read.
func (r *SqlCursorReader[T]) ReadCountKey() string {
	return r.name + ".read.count"
}

func (r *SqlCursorReader[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	if r.rows != nil {
		if err := r.Close(ctx); err != nil {
			return err
		}
	}
	r.readCount = 0

	conn, err := r.dbResolver.ResolveDBConnection(ctx, r.dbRef)
	if err != nil {
		return exception.NewBatchError("reader", fmt.Sprintf("SqlCursorReader '%s': failed to resolve connection '%s'", r.name, r.dbRef), err, false, false)
	}
	db, err := conn.GetSQLDB()
	if err != nil {
		return exception.NewBatchError("reader", fmt.Sprintf("SqlCursorReader '%s': failed to get *sql.DB", r.name), err, false, false)
	}

	logger.Debugf("SqlCursorReader '%s': executing query: %s", r.name, r.query)
	rows, err := db.QueryContext(ctx, r.query, r.args...)
	if err != nil {
		return exception.NewBatchError("reader", fmt.Sprintf("SqlCursorReader '%s': failed to execute query", r.name), err, false, false)
	}
	r.rows = rows
	return nil
}

// Read returns the next row, or port.ErrNoMoreItems when the cursor is exhausted.
func (r *SqlCursorReader[T]) Read(ctx context.Context) (T, error) {
	var zero T
	if r.rows == nil {
		return zero, exception.NewBatchError("reader", fmt.Sprintf("SqlCursorReader '%s' is not open", r.name), errors.New("reader not initialized"), false, false)
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return zero, exception.NewBatchError("reader", fmt.Sprintf("SqlCursorReader '%s': row iteration failed", r.name), err, false, false)
		}
		return zero, port.ErrNoMoreItems
	}

	item, err := r.mapper(r.rows)
	if err != nil {
		return zero, exception.NewBatchError("reader", fmt.Sprintf("SqlCursorReader '%s': failed to map row %d", r.name, r.readCount+1), err, false, false)
	}
	r.readCount++
	return item, nil
}

func (r *SqlCursorReader[T]) Close(ctx context.Context) error {
	if r.rows == nil {
		return nil
	}
	err := r.rows.Close()
	r.rows = nil
	if err != nil {
		return exception.NewBatchError("reader", fmt.Sprintf("SqlCursorReader '%s': failed to close rows", r.name), err, false, false)
	}
	return nil
}

func (r *SqlCursorReader[T]) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	ec := model.NewExecutionContext()
	ec.Put(r.ReadCountKey(), r.readCount)
	return ec, nil
}

func (r *SqlCursorReader[T]) SetExecutionContext(ctx context.Context, ec model.ExecutionContext) error {
	return port.ErrExecutionContextNotSupported
}
