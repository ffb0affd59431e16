// Package reader builds the CSV reader of the customer import.
package reader

import (
	appconfig "github.com/tigerroll/customer-import/internal/config"
	"github.com/tigerroll/customer-import/internal/domain/entity"
	"github.com/tigerroll/customer-import/pkg/batch/adapter/storage"
	batchreader "github.com/tigerroll/customer-import/pkg/batch/component/step/reader"
)

// ReaderName names the reader in logs and ExecutionContext keys.
const ReaderName = "csvReader"

// CustomerFieldSetMapper maps a tokenized line onto a Customer by column name.
// Columns missing from a short line map to "".
type CustomerFieldSetMapper struct{}

func (CustomerFieldSetMapper) MapFieldSet(fs batchreader.FieldSet) (*entity.Customer, error) {
	return &entity.Customer{
		ID:        fs.Get("id"),
		FirstName: fs.Get("firstName"),
		LastName:  fs.Get("lastName"),
		Email:     fs.Get("email"),
		Gender:    fs.Get("gender"),
		ContactNo: fs.Get("contactNo"),
		Country:   fs.Get("country"),
		DOB:       fs.Get("dob"),
	}, nil
}

// NewCustomerReader builds the flat file reader for cfg. Input comes from storage when
// customer.input.storage_ref is set, otherwise from customer.input.path.
func NewCustomerReader(cfg *appconfig.Config, storageResolver storage.StorageConnectionResolver) *batchreader.FlatFileItemReader[*entity.Customer] {
	in := cfg.Customer.Input
	var resource batchreader.Resource
	if in.StorageRef != "" {
		resource = batchreader.NewStorageResource(storageResolver, in.StorageRef, in.Bucket, in.Object)
	} else {
		resource = batchreader.NewFileResource(in.Path)
	}

	tokenizer := batchreader.NewDelimitedLineTokenizer(cfg.DelimiterRune(), entity.CustomerFields, cfg.Customer.Reader.Strict)
	return batchreader.NewFlatFileItemReader[*entity.Customer](ReaderName, resource, cfg.Customer.Reader.LinesToSkip, tokenizer, CustomerFieldSetMapper{})
}
