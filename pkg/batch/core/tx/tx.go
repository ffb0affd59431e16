// Package tx abstracts database transactions so that chunk writers can run
// their writes inside the transaction owned by the step, independent of the
// database backend.
package tx

import (
	"context"
	"database/sql"
)

// TxExecutor defines the write operations available inside a transaction.
type TxExecutor interface {
	// ExecuteUpdate performs a write ("CREATE", "UPDATE", "DELETE") on tableName.
	// For UPDATE and DELETE, query holds column conditions combined with AND.
	ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (rowsAffected int64, err error)

	// ExecuteUpsert inserts model, updating updateColumns when conflictColumns collide.
	// An empty updateColumns turns the conflict into DO NOTHING.
	ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (rowsAffected int64, err error)
}

// Tx represents an ongoing database transaction.
type Tx interface {
	TxExecutor

	// Savepoint creates a named savepoint within the transaction.
	Savepoint(name string) error
	// RollbackToSavepoint undoes the changes made after the named savepoint.
	RollbackToSavepoint(name string) error
}

// TransactionManager manages the lifecycle of transactions (begin, commit, rollback).
type TransactionManager interface {
	// Begin starts a new transaction. opts may carry the isolation level.
	Begin(ctx context.Context, opts ...*sql.TxOptions) (Tx, error)
	// Commit commits tx.
	Commit(tx Tx) error
	// Rollback rolls back tx.
	Rollback(tx Tx) error
}

type txContextKey struct{}

// WithTx returns a context carrying tx, so repositories can join it.
func WithTx(ctx context.Context, t Tx) context.Context {
	return context.WithValue(ctx, txContextKey{}, t)
}

// FromContext returns the transaction stored by WithTx, if any.
func FromContext(ctx context.Context) (Tx, bool) {
	t, ok := ctx.Value(txContextKey{}).(Tx)
	return t, ok
}
