package sql_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	testifymock "github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	dbconfig "github.com/tigerroll/customer-import/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/customer-import/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/customer-import/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/customer-import/pkg/batch/component/tasklet/migration"
	"github.com/tigerroll/customer-import/pkg/batch/component/tasklet/migration/filesystem"
	config "github.com/tigerroll/customer-import/pkg/batch/core/config"
	model "github.com/tigerroll/customer-import/pkg/batch/core/domain/model"
	"github.com/tigerroll/customer-import/pkg/batch/core/domain/repository"
	tx "github.com/tigerroll/customer-import/pkg/batch/core/tx"
	sqlrepo "github.com/tigerroll/customer-import/pkg/batch/infrastructure/repository/sql"
	"github.com/tigerroll/customer-import/pkg/batch/support/util/exception"
	batchtest "github.com/tigerroll/customer-import/pkg/batch/test"
)

// setupSQLiteRepository migrates a fresh SQLite metadata database and returns a repository on it.
func setupSQLiteRepository(t *testing.T) *sqlrepo.SQLJobRepository {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Surfin.AdaptorConfigs["metadata"] = map[string]interface{}{
		"type":     "sqlite",
		"database": filepath.Join(t.TempDir(), "metadata.db"),
	}
	provider := sqlite.NewProvider(cfg)
	resolver := gormadapter.NewGormDBConnectionResolver(cfg, provider)
	t.Cleanup(func() { _ = resolver.CloseAll() })

	err := migration.NewRunner(cfg, provider).Run(context.Background(), migration.Target{
		DBRef: "metadata",
		FS:    filesystem.FrameworkMigrationsFS(),
		Table: migration.FixedFrameworkMigrationsTable,
	})
	require.NoError(t, err)

	return sqlrepo.NewSQLJobRepository(resolver, "metadata")
}

func TestSQLiteJobRepository_Lifecycle(t *testing.T) {
	repo := setupSQLiteRepository(t)
	ctx := context.Background()

	params := batchtest.NewTestJobParameters(map[string]interface{}{"run.id": 1, "input": "customers.csv"})
	ji, je := batchtest.NewTestJobExecution("importCustomers", params)
	require.NoError(t, repo.SaveJobInstance(ctx, ji))
	require.NoError(t, repo.SaveJobExecution(ctx, je))

	se := batchtest.NewTestStepExecution(je, "stepProduct")
	require.NoError(t, repo.SaveStepExecution(ctx, se))

	se.MarkAsStarted()
	se.ReadCount = 3
	se.WriteCount = 3
	se.CommitCount = 1
	se.ExecutionContext.Put("reader.read.count", 3)
	se.MarkAsCompleted()
	require.NoError(t, repo.UpdateStepExecution(ctx, se))
	assert.Equal(t, 1, se.Version)

	je.MarkAsCompleted()
	require.NoError(t, repo.UpdateJobExecution(ctx, je))
	assert.Equal(t, 1, je.Version)

	foundInstance, err := repo.FindJobInstanceByJobNameAndParameters(ctx, "importCustomers", params)
	require.NoError(t, err)
	assert.Equal(t, ji.ID, foundInstance.ID)
	assert.True(t, foundInstance.Parameters.Equal(params))

	latest, err := repo.FindLatestJobInstanceByJobName(ctx, "importCustomers")
	require.NoError(t, err)
	assert.Equal(t, ji.ID, latest.ID)

	count, err := repo.GetJobInstanceCount(ctx, "importCustomers")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	foundExecution, err := repo.FindJobExecutionByID(ctx, je.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, foundExecution.Status)
	assert.Equal(t, model.ExitStatusCompleted, foundExecution.ExitStatus)
	require.NotNil(t, foundExecution.EndTime)
	require.Len(t, foundExecution.StepExecutions, 1)

	foundStep := foundExecution.StepExecutions[0]
	assert.Equal(t, "stepProduct", foundStep.StepName)
	assert.Equal(t, 3, foundStep.WriteCount)
	assert.Equal(t, 1, foundStep.CommitCount)
	readCount, ok := foundStep.ExecutionContext.GetInt("reader.read.count")
	require.True(t, ok)
	assert.Equal(t, 3, readCount)

	executions, err := repo.FindJobExecutionsByJobInstance(ctx, ji)
	require.NoError(t, err)
	require.Len(t, executions, 1)
	assert.Equal(t, je.ID, executions[0].ID)
}

func TestSQLiteJobRepository_FindLatestJobInstance(t *testing.T) {
	repo := setupSQLiteRepository(t)
	ctx := context.Background()

	first := model.NewJobInstance("importCustomers", batchtest.NewTestJobParameters(map[string]interface{}{"run.id": 1}))
	first.CreateTime = time.Now().Add(-time.Minute)
	second := model.NewJobInstance("importCustomers", batchtest.NewTestJobParameters(map[string]interface{}{"run.id": 2}))
	other := model.NewJobInstance("otherJob", batchtest.NewTestJobParameters(map[string]interface{}{"run.id": 9}))
	for _, ji := range []*model.JobInstance{first, second, other} {
		require.NoError(t, repo.SaveJobInstance(ctx, ji))
	}

	latest, err := repo.FindLatestJobInstanceByJobName(ctx, "importCustomers")
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
	runID, ok := latest.Parameters.GetInt("run.id")
	require.True(t, ok)
	assert.Equal(t, 2, runID)

	_, err = repo.FindLatestJobInstanceByJobName(ctx, "unknown")
	assert.ErrorIs(t, err, repository.ErrJobInstanceNotFound)
}

func TestSQLiteJobRepository_OptimisticLocking(t *testing.T) {
	repo := setupSQLiteRepository(t)
	ctx := context.Background()

	ji, je := batchtest.NewTestJobExecution("importCustomers", model.NewJobParameters())
	require.NoError(t, repo.SaveJobInstance(ctx, ji))
	require.NoError(t, repo.SaveJobExecution(ctx, je))

	stale := *je
	require.NoError(t, repo.UpdateJobExecution(ctx, je))

	err := repo.UpdateJobExecution(ctx, &stale)
	require.Error(t, err)
	assert.True(t, exception.IsOptimisticLockingFailure(err))
	assert.Equal(t, 0, stale.Version)
}

func TestSQLiteJobRepository_NotFound(t *testing.T) {
	repo := setupSQLiteRepository(t)
	ctx := context.Background()

	_, err := repo.FindJobInstanceByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrJobInstanceNotFound)
	_, err = repo.FindJobExecutionByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrJobExecutionNotFound)
	_, err = repo.FindStepExecutionByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrStepExecutionNotFound)
}

func TestSQLJobRepository_UsesTransactionFromContext(t *testing.T) {
	repo := sqlrepo.NewSQLJobRepository(new(batchtest.MockDBConnectionResolver), "metadata")
	je := model.NewJobExecution("instance-1", "importCustomers", model.NewJobParameters())

	mockTx := new(batchtest.MockTx)
	mockTx.On("ExecuteUpdate", testifymock.Anything, testifymock.Anything, "CREATE", "batch_job_execution", testifymock.Anything).Return(int64(1), nil).Once()
	mockTx.On("ExecuteUpdate", testifymock.Anything, testifymock.Anything, "UPDATE", "batch_job_execution", map[string]interface{}{"version": 0}).Return(int64(0), nil).Once()
	ctx := tx.WithTx(context.Background(), mockTx)

	require.NoError(t, repo.SaveJobExecution(ctx, je))

	err := repo.UpdateJobExecution(ctx, je)
	require.Error(t, err)
	assert.True(t, exception.IsOptimisticLockingFailure(err))
	assert.Equal(t, 0, je.Version)
	mockTx.AssertExpectations(t)
}

// setupMockRepository backs the repository with go-sqlmock through gorm's MySQL dialector.
func setupMockRepository(t *testing.T) (*sqlrepo.SQLJobRepository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: gormadapter.NewGormLogger("SILENT")})
	require.NoError(t, err)

	conn, err := gormadapter.NewGormDBAdapter(gormDB, dbconfig.DatabaseConfig{Type: "mysql"}, "metadata")
	require.NoError(t, err)
	return sqlrepo.NewSQLJobRepository(batchtest.NewTestSingleConnectionResolver(conn), "metadata"), mock
}

func TestSQLJobRepository_MissingTableIsNotFound(t *testing.T) {
	repo, mock := setupMockRepository(t)
	mock.ExpectQuery("SELECT .* FROM `batch_job_instance`").
		WillReturnError(errors.New("Error 1146 (42S02): Table 'meta.batch_job_instance' doesn't exist"))

	_, err := repo.FindJobInstanceByID(context.Background(), "abc")
	assert.ErrorIs(t, err, repository.ErrJobInstanceNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLJobRepository_QueryErrorIsBatchError(t *testing.T) {
	repo, mock := setupMockRepository(t)
	mock.ExpectQuery("SELECT .* FROM `batch_step_execution`").
		WillReturnError(errors.New("connection reset by peer"))

	_, err := repo.FindStepExecutionsByJobExecutionID(context.Background(), "je-1")
	require.Error(t, err)
	assert.True(t, exception.IsBatchError(err))
	assert.False(t, errors.Is(err, repository.ErrStepExecutionNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLJobRepository_CountsInstances(t *testing.T) {
	repo, mock := setupMockRepository(t)
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `batch_job_instance`").
		WillReturnRows(sqlmock.NewRows([]string{"count(*)"}).AddRow(4))

	count, err := repo.GetJobInstanceCount(context.Background(), "importCustomers")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
