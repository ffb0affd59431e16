package reader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storageAdapter "github.com/tigerroll/customer-import/pkg/batch/adapter/storage"
	"github.com/tigerroll/customer-import/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/customer-import/pkg/batch/core/application/port"
	"github.com/tigerroll/customer-import/pkg/batch/core/config"
	"github.com/tigerroll/customer-import/pkg/batch/core/domain/model"
	"github.com/tigerroll/customer-import/pkg/batch/support/util/exception"
)

type row struct {
	ID   string
	Name string
}

var rowMapper = FieldSetMapperFunc[*row](func(fs FieldSet) (*row, error) {
	return &row{ID: fs.Get("id"), Name: fs.Get("name")}, nil
})

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readAll(t *testing.T, r port.ItemReader[*row]) ([]*row, error) {
	t.Helper()
	ctx := context.Background()
	var out []*row
	for {
		item, err := r.Read(ctx)
		if errors.Is(err, port.ErrNoMoreItems) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, item)
	}
}

func newRowReader(path string, strict bool) *FlatFileItemReader[*row] {
	return NewFlatFileItemReader[*row]("csvReader", NewFileResource(path), DefaultLinesToSkip,
		NewDelimitedLineTokenizer(',', []string{"id", "name"}, strict), rowMapper)
}

func TestFlatFileItemReader_SkipsHeaderAndBlankLines(t *testing.T) {
	path := writeFile(t, "\ufeffid,name\r\n1,Ann\r\n\r\n2,Bob\n   \n3,Cy")
	r := newRowReader(path, false)
	ctx := context.Background()

	require.NoError(t, r.Open(ctx, model.NewExecutionContext()))
	defer r.Close(ctx)

	rows, err := readAll(t, r)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, &row{ID: "1", Name: "Ann"}, rows[0])
	assert.Equal(t, &row{ID: "3", Name: "Cy"}, rows[2])

	ec, err := r.GetExecutionContext(ctx)
	require.NoError(t, err)
	count, ok := ec.GetInt("csvReader.read.count")
	assert.True(t, ok)
	assert.Equal(t, 3, count)

	// Reading past the end keeps returning ErrNoMoreItems.
	_, err = r.Read(ctx)
	assert.ErrorIs(t, err, port.ErrNoMoreItems)
}

func TestFlatFileItemReader_HeaderOnly(t *testing.T) {
	r := newRowReader(writeFile(t, "id,name\n"), false)
	ctx := context.Background()
	require.NoError(t, r.Open(ctx, nil))
	defer r.Close(ctx)

	rows, err := readAll(t, r)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestFlatFileItemReader_EmptyFile(t *testing.T) {
	r := newRowReader(writeFile(t, ""), false)
	ctx := context.Background()
	require.NoError(t, r.Open(ctx, nil))
	defer r.Close(ctx)

	_, err := r.Read(ctx)
	assert.ErrorIs(t, err, port.ErrNoMoreItems)
}

func TestFlatFileItemReader_NonStrictShortLine(t *testing.T) {
	r := newRowReader(writeFile(t, "id,name\n9\n"), false)
	ctx := context.Background()
	require.NoError(t, r.Open(ctx, nil))
	defer r.Close(ctx)

	rows, err := readAll(t, r)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "9", rows[0].ID)
	assert.Equal(t, "", rows[0].Name)
}

func TestFlatFileItemReader_StrictRaisesParseError(t *testing.T) {
	r := newRowReader(writeFile(t, "id,name\n1,Ann\n2,Bob,extra\n"), true)
	ctx := context.Background()
	require.NoError(t, r.Open(ctx, nil))
	defer r.Close(ctx)

	first, err := r.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1", first.ID)

	_, err = r.Read(ctx)
	require.Error(t, err)
	assert.True(t, exception.IsParseError(err))
	assert.ErrorIs(t, err, ErrIncorrectTokenCount)
	assert.Contains(t, err.Error(), "line 3")
}

func TestFlatFileItemReader_MapperErrorIsParseError(t *testing.T) {
	failing := FieldSetMapperFunc[*row](func(fs FieldSet) (*row, error) {
		return nil, errors.New("unmappable")
	})
	r := NewFlatFileItemReader[*row]("csvReader", NewFileResource(writeFile(t, "id\n1\n")), 1, &DelimitedLineTokenizer{Names: []string{"id"}}, failing)
	ctx := context.Background()
	require.NoError(t, r.Open(ctx, nil))
	defer r.Close(ctx)

	_, err := r.Read(ctx)
	assert.True(t, exception.IsParseError(err))
}

func TestFlatFileItemReader_ReopenStartsOver(t *testing.T) {
	r := newRowReader(writeFile(t, "id,name\n1,Ann\n2,Bob\n"), false)
	ctx := context.Background()

	require.NoError(t, r.Open(ctx, nil))
	_, err := r.Read(ctx)
	require.NoError(t, err)

	require.NoError(t, r.Open(ctx, nil))
	rows, err := readAll(t, r)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	require.NoError(t, r.Close(ctx))
	require.NoError(t, r.Close(ctx))
}

func TestFlatFileItemReader_MissingFile(t *testing.T) {
	r := newRowReader(filepath.Join(t.TempDir(), "absent.csv"), false)

	err := r.Open(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, exception.IsBatchError(err))
}

func TestFlatFileItemReader_ReadBeforeOpen(t *testing.T) {
	r := newRowReader("unused.csv", false)

	_, err := r.Read(context.Background())
	assert.Error(t, err)
}

func TestFlatFileItemReader_StorageResource(t *testing.T) {
	baseDir := t.TempDir()
	cfg := config.NewConfig()
	cfg.Surfin.StorageConfigs["inbox"] = map[string]interface{}{"type": "local", "base_dir": baseDir, "bucket_name": "incoming"}
	resolver := storageAdapter.NewConnectionResolver(cfg, local.NewProvider(cfg))
	defer resolver.CloseAll()

	require.NoError(t, os.MkdirAll(filepath.Join(baseDir, "incoming"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(baseDir, "incoming", "customers.csv"), []byte("id,name\n5,Eve\n"), 0o644))

	res := NewStorageResource(resolver, "inbox", "", "customers.csv")
	r := NewFlatFileItemReader[*row]("csvReader", res, 1, NewDelimitedLineTokenizer(',', []string{"id", "name"}, false), rowMapper)
	ctx := context.Background()
	require.NoError(t, r.Open(ctx, nil))
	defer r.Close(ctx)

	rows, err := readAll(t, r)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Eve", rows[0].Name)
	assert.Contains(t, res.Description(), "inbox")
}
