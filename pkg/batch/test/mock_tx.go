// Package test holds mocks and fixtures shared by the batch framework tests.
package test

import (
	"context"
	"database/sql"

	"github.com/stretchr/testify/mock"

	tx "github.com/tigerroll/customer-import/pkg/batch/core/tx"
)

// MockTx is a testify mock of tx.Tx.
type MockTx struct {
	mock.Mock
}

func (m *MockTx) ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (rowsAffected int64, err error) {
	args := m.Called(ctx, model, operation, tableName, query)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTx) ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (rowsAffected int64, err error) {
	args := m.Called(ctx, model, tableName, conflictColumns, updateColumns)
	return args.Get(0).(int64), args.Error(1)
}

// ExpectUpsert expects one ExecuteUpsert into tableName with any model and columns,
// answering with rowsAffected and err.
func (m *MockTx) ExpectUpsert(tableName string, rowsAffected int64, err error) *mock.Call {
	return m.On("ExecuteUpsert", mock.Anything, mock.Anything, tableName, mock.Anything, mock.Anything).
		Return(rowsAffected, err).Once()
}

func (m *MockTx) Savepoint(name string) error {
	args := m.Called(name)
	return args.Error(0)
}

func (m *MockTx) RollbackToSavepoint(name string) error {
	args := m.Called(name)
	return args.Error(0)
}

// MockTxManager is a testify mock of tx.TransactionManager.
type MockTxManager struct {
	mock.Mock
}

// Begin returns the tx.Tx configured for the call, or its error.
func (m *MockTxManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (tx.Tx, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(tx.Tx), args.Error(1)
}

func (m *MockTxManager) Commit(t tx.Tx) error {
	args := m.Called(t)
	return args.Error(0)
}

func (m *MockTxManager) Rollback(t tx.Tx) error {
	args := m.Called(t)
	return args.Error(0)
}

var _ tx.Tx = (*MockTx)(nil)
var _ tx.TransactionManager = (*MockTxManager)(nil)
