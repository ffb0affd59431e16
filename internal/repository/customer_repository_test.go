package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	testifymock "github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tigerroll/customer-import/internal/domain/entity"
	dbconfig "github.com/tigerroll/customer-import/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/customer-import/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/customer-import/pkg/batch/support/util/exception"
	batchtest "github.com/tigerroll/customer-import/pkg/batch/test"
)

func newMockTxManager(t *testing.T) (*gormadapter.GormTransactionManager, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: gormadapter.NewGormLogger("SILENT")})
	require.NoError(t, err)

	conn, err := gormadapter.NewGormDBAdapter(gormDB, dbconfig.DatabaseConfig{Type: "mysql"}, "workload")
	require.NoError(t, err)
	return gormadapter.NewGormTransactionManager(batchtest.NewTestSingleConnectionResolver(conn), "workload"), mock
}

func sampleCustomer() *entity.Customer {
	return &entity.Customer{
		ID: "1", FirstName: "Ann", LastName: "Lee", Email: "ann@example.com",
		Gender: "FEMALE", ContactNo: "555-0100", Country: "JP", DOB: "1990-01-31",
	}
}

func TestCustomerRepository_SaveUpsertsOnID(t *testing.T) {
	txManager, mock := newMockTxManager(t)
	c := sampleCustomer()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `customers` .*ON DUPLICATE KEY UPDATE").
		WithArgs(c.ID, c.FirstName, c.LastName, c.Email, c.Gender, c.ContactNo, c.Country, c.DOB).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ctx := context.Background()
	tx, err := txManager.Begin(ctx)
	require.NoError(t, err)
	saved, err := NewCustomerRepository().Save(ctx, tx, c)
	require.NoError(t, err)
	require.NoError(t, txManager.Commit(tx))

	assert.Same(t, c, saved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCustomerRepository_SaveFailureIsStorageError(t *testing.T) {
	txManager, mock := newMockTxManager(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `customers`").WillReturnError(errors.New("Error 1406: Data too long for column 'email'"))
	mock.ExpectRollback()

	ctx := context.Background()
	tx, err := txManager.Begin(ctx)
	require.NoError(t, err)
	_, err = NewCustomerRepository().Save(ctx, tx, sampleCustomer())
	require.NoError(t, txManager.Rollback(tx))

	require.Error(t, err)
	assert.True(t, exception.IsStorageError(err))
	assert.Contains(t, err.Error(), `"1"`)
	assert.Contains(t, err.Error(), "Data too long")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCustomerRepository_EmptyIDNeverReachesStore(t *testing.T) {
	mockTx := new(batchtest.MockTx)

	_, err := NewCustomerRepository().Save(context.Background(), mockTx, &entity.Customer{FirstName: "NoID"})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyID)
	assert.True(t, exception.IsStorageError(err))
	mockTx.AssertNotCalled(t, "ExecuteUpsert", testifymock.Anything, testifymock.Anything, testifymock.Anything, testifymock.Anything, testifymock.Anything)
}

func TestCheckID(t *testing.T) {
	assert.ErrorIs(t, CheckID(nil), ErrEmptyID)
	assert.ErrorIs(t, CheckID(&entity.Customer{}), ErrEmptyID)
	assert.NoError(t, CheckID(sampleCustomer()))
}

func TestCustomerRepository_UpsertsOnIDWithSevenColumns(t *testing.T) {
	mockTx := new(batchtest.MockTx)
	c := sampleCustomer()
	mockTx.ExpectUpsert(entity.CustomerTableName, 1, nil)

	_, err := NewCustomerRepository().Save(context.Background(), mockTx, c)
	require.NoError(t, err)

	mockTx.AssertExpectations(t)
	call := mockTx.Calls[0]
	assert.Same(t, c, call.Arguments.Get(1))
	assert.Equal(t, []string{"id"}, call.Arguments.Get(3))
	assert.Len(t, call.Arguments.Get(4), 7)
}
