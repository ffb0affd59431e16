// Package sql persists batch metadata (job instances, job executions and step executions)
// through a named database connection.
package sql

import (
	"context"
	"fmt"
	"time"

	"github.com/tigerroll/customer-import/pkg/batch/adapter/database"
	coreAdapter "github.com/tigerroll/customer-import/pkg/batch/core/adapter"
	model "github.com/tigerroll/customer-import/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/customer-import/pkg/batch/core/domain/repository"
	tx "github.com/tigerroll/customer-import/pkg/batch/core/tx"
	"github.com/tigerroll/customer-import/pkg/batch/support/util/exception"
	"github.com/tigerroll/customer-import/pkg/batch/support/util/logger"
)

// SQLJobRepository implements repository.JobRepository on top of a database.DBConnection.
type SQLJobRepository struct {
	dbResolver coreAdapter.ResourceConnectionResolver // dbResolver must resolve to database.DBConnection values.
	// dbName is the connection holding the batch tables (e.g., "metadata").
	dbName string
}

// NewSQLJobRepository creates a SQLJobRepository that stores metadata in the connection named dbName.
func NewSQLJobRepository(dbResolver coreAdapter.ResourceConnectionResolver, dbName string) *SQLJobRepository {
	if dbName == "" {
		dbName = "metadata"
	}
	return &SQLJobRepository{
		dbResolver: dbResolver,
		dbName:     dbName,
	}
}

// getDBConnection resolves the latest connection for reads.
func (r *SQLJobRepository) getDBConnection(ctx context.Context) (database.DBConnection, error) {
	connAsResource, err := r.dbResolver.ResolveConnection(ctx, r.dbName)
	if err != nil {
		return nil, exception.NewBatchError("SQLJobRepository", fmt.Sprintf("Failed to resolve DB connection '%s'", r.dbName), err, false, false)
	}
	conn, ok := connAsResource.(database.DBConnection)
	if !ok {
		return nil, exception.NewBatchError("SQLJobRepository", fmt.Sprintf("Resolved connection '%s' is not a database.DBConnection", r.dbName), nil, false, false)
	}
	return conn, nil
}

// getTxExecutor joins the transaction carried by ctx, or falls back to the plain connection.
func (r *SQLJobRepository) getTxExecutor(ctx context.Context) (tx.TxExecutor, error) {
	if t, ok := tx.FromContext(ctx); ok {
		return t, nil
	}
	return r.getDBConnection(ctx)
}

// create inserts entity into tableName.
func (r *SQLJobRepository) create(ctx context.Context, op string, entity interface{}, tableName, id string) error {
	executor, err := r.getTxExecutor(ctx)
	if err != nil {
		return err
	}
	if _, err := executor.ExecuteUpdate(ctx, entity, "CREATE", tableName, nil); err != nil {
		return exception.NewBatchError(op, fmt.Sprintf("failed to save %s (ID: %s)", tableName, id), err, false, true)
	}
	return nil
}

// updateVersioned updates entity only if the stored row still has originalVersion.
func (r *SQLJobRepository) updateVersioned(ctx context.Context, op string, entity interface{}, tableName, id string, originalVersion int) error {
	executor, err := r.getTxExecutor(ctx)
	if err != nil {
		return err
	}
	rowsAffected, err := executor.ExecuteUpdate(
		ctx,
		entity,
		"UPDATE",
		tableName,
		map[string]interface{}{"version": originalVersion},
	)
	if err != nil {
		return exception.NewBatchError(op, fmt.Sprintf("failed to update %s (ID: %s)", tableName, id), err, false, true)
	}
	if rowsAffected == 0 {
		return exception.NewOptimisticLockingFailureException("repository", fmt.Sprintf("%s (ID: %s) with version %d not found for update", tableName, id, originalVersion), nil)
	}
	return nil
}

// --- JobInstance implementation ---

func (r *SQLJobRepository) SaveJobInstance(ctx context.Context, instance *model.JobInstance) error {
	entity := newJobInstanceEntity(instance)
	return r.create(ctx, "SQLJobRepository.SaveJobInstance", entity, entity.TableName(), instance.ID)
}

func (r *SQLJobRepository) FindJobInstanceByJobNameAndParameters(ctx context.Context, jobName string, params model.JobParameters) (*model.JobInstance, error) {
	const op = "SQLJobRepository.FindJobInstanceByJobNameAndParameters"
	hash, err := params.Hash()
	if err != nil {
		return nil, exception.NewBatchError(op, "failed to calculate JobParameters hash", err, false, false)
	}

	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}

	var entities []JobInstanceEntity
	if err := conn.ExecuteQuery(ctx, &entities, map[string]interface{}{"job_name": jobName, "parameters_hash": hash}); err != nil {
		if conn.IsTableNotExistError(err) {
			return nil, repository.ErrJobInstanceNotFound
		}
		return nil, exception.NewBatchError(op, "failed to find JobInstance", err, false, true)
	}

	for i := range entities {
		instance := entities[i].toDomain()
		if instance.Parameters.Equal(params) {
			return instance, nil
		}
		logger.Warnf("%s: JobInstance (ID: %s) hash matched but parameters mismatched. Possible hash collision.", op, instance.ID)
	}
	return nil, repository.ErrJobInstanceNotFound
}

func (r *SQLJobRepository) FindLatestJobInstanceByJobName(ctx context.Context, jobName string) (*model.JobInstance, error) {
	const op = "SQLJobRepository.FindLatestJobInstanceByJobName"

	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}

	var entities []JobInstanceEntity
	if err := conn.ExecuteQueryAdvanced(ctx, &entities, map[string]interface{}{"job_name": jobName}, "create_time desc", 1); err != nil {
		if conn.IsTableNotExistError(err) {
			return nil, repository.ErrJobInstanceNotFound
		}
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to find latest JobInstance for job '%s'", jobName), err, false, true)
	}
	if len(entities) == 0 {
		return nil, repository.ErrJobInstanceNotFound
	}
	return entities[0].toDomain(), nil
}

func (r *SQLJobRepository) FindJobInstanceByID(ctx context.Context, id string) (*model.JobInstance, error) {
	const op = "SQLJobRepository.FindJobInstanceByID"

	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}

	var entities []JobInstanceEntity
	if err := conn.ExecuteQueryAdvanced(ctx, &entities, map[string]interface{}{"id": id}, "", 1); err != nil {
		if conn.IsTableNotExistError(err) {
			return nil, repository.ErrJobInstanceNotFound
		}
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to find JobInstance by ID: %s", id), err, false, true)
	}
	if len(entities) == 0 {
		return nil, repository.ErrJobInstanceNotFound
	}
	return entities[0].toDomain(), nil
}

func (r *SQLJobRepository) GetJobInstanceCount(ctx context.Context, jobName string) (int, error) {
	const op = "SQLJobRepository.GetJobInstanceCount"

	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return 0, err
	}
	count, err := conn.Count(ctx, &JobInstanceEntity{}, map[string]interface{}{"job_name": jobName})
	if err != nil {
		if conn.IsTableNotExistError(err) {
			return 0, nil
		}
		return 0, exception.NewBatchError(op, "failed to count JobInstances", err, false, true)
	}
	return int(count), nil
}

// --- JobExecution implementation ---

func (r *SQLJobRepository) SaveJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	entity := newJobExecutionEntity(jobExecution)
	return r.create(ctx, "SQLJobRepository.SaveJobExecution", entity, entity.TableName(), jobExecution.ID)
}

func (r *SQLJobRepository) UpdateJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	originalVersion := jobExecution.Version
	jobExecution.Version++
	jobExecution.LastUpdated = time.Now()
	entity := newJobExecutionEntity(jobExecution)

	if err := r.updateVersioned(ctx, "SQLJobRepository.UpdateJobExecution", entity, entity.TableName(), jobExecution.ID, originalVersion); err != nil {
		jobExecution.Version = originalVersion
		return err
	}
	return nil
}

func (r *SQLJobRepository) FindJobExecutionByID(ctx context.Context, executionID string) (*model.JobExecution, error) {
	const op = "SQLJobRepository.FindJobExecutionByID"

	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}

	var entities []JobExecutionEntity
	if err := conn.ExecuteQueryAdvanced(ctx, &entities, map[string]interface{}{"id": executionID}, "", 1); err != nil {
		if conn.IsTableNotExistError(err) {
			return nil, repository.ErrJobExecutionNotFound
		}
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to find JobExecution by ID: %s", executionID), err, false, true)
	}
	if len(entities) == 0 {
		return nil, repository.ErrJobExecutionNotFound
	}

	execution := entities[0].toDomain()
	stepExecutions, err := r.FindStepExecutionsByJobExecutionID(ctx, executionID)
	if err != nil {
		logger.Errorf("%s: Failed to load StepExecutions for JobExecution (ID: %s): %v", op, executionID, err)
	} else {
		execution.StepExecutions = stepExecutions
	}
	return execution, nil
}

// FindJobExecutionsByJobInstance returns the executions of jobInstance, newest first.
// Step executions are not loaded; use FindJobExecutionByID for those.
func (r *SQLJobRepository) FindJobExecutionsByJobInstance(ctx context.Context, jobInstance *model.JobInstance) ([]*model.JobExecution, error) {
	const op = "SQLJobRepository.FindJobExecutionsByJobInstance"

	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}

	var entities []JobExecutionEntity
	if err := conn.ExecuteQueryAdvanced(ctx, &entities, map[string]interface{}{"job_instance_id": jobInstance.ID}, "create_time desc", 0); err != nil {
		if conn.IsTableNotExistError(err) {
			return []*model.JobExecution{}, nil
		}
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to find JobExecutions for JobInstance ID: %s", jobInstance.ID), err, false, true)
	}

	executions := make([]*model.JobExecution, len(entities))
	for i := range entities {
		executions[i] = entities[i].toDomain()
	}
	return executions, nil
}

// --- StepExecution implementation ---

func (r *SQLJobRepository) SaveStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	entity := newStepExecutionEntity(stepExecution)
	return r.create(ctx, "SQLJobRepository.SaveStepExecution", entity, entity.TableName(), stepExecution.ID)
}

func (r *SQLJobRepository) UpdateStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	originalVersion := stepExecution.Version
	stepExecution.Version++
	stepExecution.LastUpdated = time.Now()
	entity := newStepExecutionEntity(stepExecution)

	if err := r.updateVersioned(ctx, "SQLJobRepository.UpdateStepExecution", entity, entity.TableName(), stepExecution.ID, originalVersion); err != nil {
		stepExecution.Version = originalVersion
		return err
	}
	return nil
}

func (r *SQLJobRepository) FindStepExecutionByID(ctx context.Context, executionID string) (*model.StepExecution, error) {
	const op = "SQLJobRepository.FindStepExecutionByID"

	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}

	var entities []StepExecutionEntity
	if err := conn.ExecuteQueryAdvanced(ctx, &entities, map[string]interface{}{"id": executionID}, "", 1); err != nil {
		if conn.IsTableNotExistError(err) {
			return nil, repository.ErrStepExecutionNotFound
		}
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to find StepExecution by ID: %s", executionID), err, false, true)
	}
	if len(entities) == 0 {
		return nil, repository.ErrStepExecutionNotFound
	}
	return entities[0].toDomain(), nil
}

// FindStepExecutionsByJobExecutionID returns the step executions of a job execution in start order.
func (r *SQLJobRepository) FindStepExecutionsByJobExecutionID(ctx context.Context, jobExecutionID string) ([]*model.StepExecution, error) {
	const op = "SQLJobRepository.FindStepExecutionsByJobExecutionID"

	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}

	var entities []StepExecutionEntity
	if err := conn.ExecuteQueryAdvanced(ctx, &entities, map[string]interface{}{"job_execution_id": jobExecutionID}, "start_time asc", 0); err != nil {
		if conn.IsTableNotExistError(err) {
			return []*model.StepExecution{}, nil
		}
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to find StepExecutions by JobExecution ID: %s", jobExecutionID), err, false, true)
	}

	executions := make([]*model.StepExecution, len(entities))
	for i := range entities {
		executions[i] = entities[i].toDomain()
	}
	return executions, nil
}

// Close implements repository.JobRepository. Connections belong to their provider.
func (r *SQLJobRepository) Close() error {
	return nil
}

var _ repository.JobRepository = (*SQLJobRepository)(nil)
