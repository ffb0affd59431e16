package writer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/customer-import/pkg/batch/component/step/writer"
	"github.com/tigerroll/customer-import/pkg/batch/core/domain/model"
	tx "github.com/tigerroll/customer-import/pkg/batch/core/tx"
	"github.com/tigerroll/customer-import/pkg/batch/support/util/exception"
	testutil "github.com/tigerroll/customer-import/pkg/batch/test"
)

type account struct {
	ID    string `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Owner string `parquet:"name=owner, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func TestRepositoryItemWriter_SavesInOrder(t *testing.T) {
	var saved []string
	mockTx := new(testutil.MockTx)
	repo := writer.SaveFunc[*account](func(ctx context.Context, got tx.Tx, item *account) (*account, error) {
		assert.Same(t, mockTx, got)
		saved = append(saved, item.ID)
		return item, nil
	})

	w := writer.NewRepositoryItemWriter[*account]("accountWriter", repo)
	ctx := context.Background()
	require.NoError(t, w.Open(ctx, model.NewExecutionContext()))
	require.NoError(t, w.Write(ctx, mockTx, []*account{{ID: "a"}, {ID: "b"}, {ID: "c"}}))
	require.NoError(t, w.Close(ctx))

	assert.Equal(t, []string{"a", "b", "c"}, saved)
	ec, err := w.GetExecutionContext(ctx)
	require.NoError(t, err)
	count, ok := ec.GetInt(w.SavedCountKey())
	assert.True(t, ok)
	assert.Equal(t, 3, count)
}

func TestRepositoryItemWriter_StopsAtFirstError(t *testing.T) {
	var saved []string
	boom := exception.NewStorageError("repo", "b", errors.New("constraint"))
	repo := writer.SaveFunc[*account](func(ctx context.Context, _ tx.Tx, item *account) (*account, error) {
		if item.ID == "b" {
			return nil, boom
		}
		saved = append(saved, item.ID)
		return item, nil
	})

	w := writer.NewRepositoryItemWriter[*account]("accountWriter", repo)
	err := w.Write(context.Background(), new(testutil.MockTx), []*account{{ID: "a"}, {ID: "b"}, {ID: "c"}})

	require.ErrorIs(t, err, boom)
	assert.True(t, exception.IsStorageError(err))
	assert.Equal(t, []string{"a"}, saved)
}

func TestRepositoryItemWriter_RequiresTransaction(t *testing.T) {
	w := writer.NewRepositoryItemWriter[*account]("accountWriter", writer.SaveFunc[*account](
		func(ctx context.Context, _ tx.Tx, item *account) (*account, error) { return item, nil }))

	assert.Error(t, w.Write(context.Background(), nil, []*account{{ID: "a"}}))
}

func TestSqlBulkWriter_SplitsIntoBulks(t *testing.T) {
	mockTx := new(testutil.MockTx)
	mockTx.On("ExecuteUpsert", mock.Anything, mock.Anything, "accounts", []string{"id"}, []string{"owner"}).
		Return(int64(2), nil).Twice()
	mockTx.On("ExecuteUpsert", mock.Anything, mock.Anything, "accounts", []string{"id"}, []string{"owner"}).
		Return(int64(1), nil).Once()

	w := writer.NewSqlBulkWriter[*account]("bulk", 2, "accounts", []string{"id"}, []string{"owner"})
	items := []*account{{ID: "1"}, {ID: "2"}, {ID: "3"}, {ID: "4"}, {ID: "5"}}
	require.NoError(t, w.Write(context.Background(), mockTx, items))

	mockTx.AssertNumberOfCalls(t, "ExecuteUpsert", 3)
	last := mockTx.Calls[2].Arguments.Get(1).([]*account)
	assert.Equal(t, []*account{{ID: "5"}}, last)
}

func TestSqlBulkWriter_LastItemPerKeyWins(t *testing.T) {
	mockTx := new(testutil.MockTx)
	mockTx.On("ExecuteUpsert", mock.Anything, mock.Anything, "accounts", []string{"id"}, []string{"owner"}).
		Return(int64(2), nil).Once()

	w := writer.NewSqlBulkWriter[*account]("bulk", 10, "accounts", []string{"id"}, []string{"owner"}).
		WithKey(func(a *account) string { return a.ID })
	items := []*account{{ID: "1", Owner: "ann"}, {ID: "2", Owner: "bob"}, {ID: "1", Owner: "cy"}}
	require.NoError(t, w.Write(context.Background(), mockTx, items))

	mockTx.AssertNumberOfCalls(t, "ExecuteUpsert", 1)
	written := mockTx.Calls[0].Arguments.Get(1).([]*account)
	assert.Equal(t, []*account{{ID: "1", Owner: "cy"}, {ID: "2", Owner: "bob"}}, written)
}

func TestSqlBulkWriter_CheckAbortsBeforeStatement(t *testing.T) {
	mockTx := new(testutil.MockTx)
	invalid := errors.New("empty id")

	w := writer.NewSqlBulkWriter[*account]("bulk", 10, "accounts", []string{"id"}, []string{"owner"}).
		WithCheck(func(a *account) error {
			if a.ID == "" {
				return invalid
			}
			return nil
		})

	err := w.Write(context.Background(), mockTx, []*account{{ID: "1"}, {ID: ""}})
	require.ErrorIs(t, err, invalid)
	mockTx.AssertNotCalled(t, "ExecuteUpsert", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSqlBulkWriter_WrapsFailureAsStorageError(t *testing.T) {
	mockTx := new(testutil.MockTx)
	mockTx.On("ExecuteUpsert", mock.Anything, mock.Anything, "accounts", mock.Anything, mock.Anything).
		Return(int64(0), errors.New("deadlock"))

	w := writer.NewSqlBulkWriter[*account]("bulk", 10, "accounts", []string{"id"}, nil)
	err := w.Write(context.Background(), mockTx, []*account{{ID: "1"}})

	require.Error(t, err)
	assert.True(t, exception.IsStorageError(err))
	assert.Contains(t, err.Error(), "deadlock")
}
