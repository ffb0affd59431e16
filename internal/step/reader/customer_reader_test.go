package reader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/tigerroll/customer-import/internal/config"
	"github.com/tigerroll/customer-import/internal/domain/entity"
	"github.com/tigerroll/customer-import/pkg/batch/core/application/port"
	"github.com/tigerroll/customer-import/pkg/batch/core/domain/model"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "customers.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readCustomers(t *testing.T, cfg *appconfig.Config) ([]*entity.Customer, error) {
	t.Helper()
	ctx := context.Background()
	r := NewCustomerReader(cfg, nil)
	require.NoError(t, r.Open(ctx, model.NewExecutionContext()))
	defer r.Close(ctx)

	var out []*entity.Customer
	for {
		c, err := r.Read(ctx)
		if errors.Is(err, port.ErrNoMoreItems) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, c)
	}
}

func TestCustomerReader_MapsColumnsByName(t *testing.T) {
	cfg := appconfig.Default()
	cfg.Customer.Input.Path = writeCSV(t, "id,firstName,lastName,email,gender,contactNo,country,dob\n"+
		"1,Ann,Lee,ann@example.com,female,555-0100,JP,1990-01-31\n"+
		"2,\"Bob, Jr\",Kim,bob@example.com,male,555-0101,KR,1985-12-01\n")

	customers, err := readCustomers(t, cfg)
	require.NoError(t, err)
	require.Len(t, customers, 2)

	assert.Equal(t, &entity.Customer{
		ID: "1", FirstName: "Ann", LastName: "Lee", Email: "ann@example.com",
		Gender: "female", ContactNo: "555-0100", Country: "JP", DOB: "1990-01-31",
	}, customers[0])
	assert.Equal(t, "Bob, Jr", customers[1].FirstName)
}

func TestCustomerReader_ShortLineLeavesTrailingFieldsEmpty(t *testing.T) {
	cfg := appconfig.Default()
	cfg.Customer.Input.Path = writeCSV(t, "header\n3,Cy,Park\n")

	customers, err := readCustomers(t, cfg)
	require.NoError(t, err)
	require.Len(t, customers, 1)
	assert.Equal(t, "3", customers[0].ID)
	assert.Equal(t, "Park", customers[0].LastName)
	assert.Empty(t, customers[0].Email)
	assert.Empty(t, customers[0].DOB)
}

func TestCustomerReader_StrictRejectsShortLine(t *testing.T) {
	cfg := appconfig.Default()
	cfg.Customer.Reader.Strict = true
	cfg.Customer.Input.Path = writeCSV(t, "header\n3,Cy,Park\n")

	_, err := readCustomers(t, cfg)
	require.Error(t, err)
}

func TestCustomerReader_HeaderOnly(t *testing.T) {
	cfg := appconfig.Default()
	cfg.Customer.Input.Path = writeCSV(t, "id,firstName,lastName,email,gender,contactNo,country,dob\n")

	customers, err := readCustomers(t, cfg)
	require.NoError(t, err)
	assert.Empty(t, customers)
}

func TestCustomerReader_CustomDelimiter(t *testing.T) {
	cfg := appconfig.Default()
	cfg.Customer.Reader.Delimiter = ";"
	cfg.Customer.Input.Path = writeCSV(t, "header\n7;Dee;Ng;dee@example.com;F;1;US;2000-02-29\n")

	customers, err := readCustomers(t, cfg)
	require.NoError(t, err)
	require.Len(t, customers, 1)
	assert.Equal(t, "Dee", customers[0].FirstName)
	assert.Equal(t, "2000-02-29", customers[0].DOB)
}
