// Package repository persists customers into the workload database.
package repository

import (
	"context"
	"errors"

	"github.com/tigerroll/customer-import/internal/domain/entity"
	tx "github.com/tigerroll/customer-import/pkg/batch/core/tx"
	"github.com/tigerroll/customer-import/pkg/batch/support/util/exception"
	"github.com/tigerroll/customer-import/pkg/batch/support/util/logger"
)

const moduleName = "CustomerRepository"

// ErrEmptyID is wrapped by the StorageError returned for a customer without an id.
var ErrEmptyID = errors.New("customer id is empty")

// CustomerRepository stores customers inside the caller's transaction.
type CustomerRepository interface {
	// Save upserts customer on its id and returns it.
	Save(ctx context.Context, t tx.Tx, customer *entity.Customer) (*entity.Customer, error)
}

type customerRepository struct{}

// NewCustomerRepository returns the tx.Tx-backed CustomerRepository.
func NewCustomerRepository() CustomerRepository {
	return &customerRepository{}
}

// Save runs a single INSERT ... ON CONFLICT (id) DO UPDATE of the seven non-key columns,
// so importing the same file twice leaves the same rows.
func (r *customerRepository) Save(ctx context.Context, t tx.Tx, customer *entity.Customer) (*entity.Customer, error) {
	if err := CheckID(customer); err != nil {
		return nil, err
	}

	if _, err := t.ExecuteUpsert(ctx, customer, entity.CustomerTableName, []string{"id"}, entity.CustomerUpdateColumns); err != nil {
		return nil, exception.NewStorageError(moduleName, customer.ID, err)
	}
	logger.Debugf("%s: saved customer %q.", moduleName, customer.ID)
	return customer, nil
}

// CheckID rejects a nil customer or one with an empty id before any statement is sent.
func CheckID(customer *entity.Customer) error {
	if customer == nil || customer.ID == "" {
		return exception.NewStorageError(moduleName, "", ErrEmptyID)
	}
	return nil
}
