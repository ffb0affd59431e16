package writer_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	storageAdapter "github.com/tigerroll/customer-import/pkg/batch/adapter/storage"
	localstorage "github.com/tigerroll/customer-import/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/customer-import/pkg/batch/component/step/writer"
	"github.com/tigerroll/customer-import/pkg/batch/core/config"
	"github.com/tigerroll/customer-import/pkg/batch/core/domain/model"
)

func newArchiveResolver(t *testing.T) (storageAdapter.StorageConnectionResolver, string) {
	t.Helper()
	baseDir := t.TempDir()
	cfg := config.NewConfig()
	cfg.Surfin.StorageConfigs["archive"] = map[string]interface{}{"type": "local", "base_dir": baseDir, "bucket_name": "exports"}
	resolver := storageAdapter.NewConnectionResolver(cfg, localstorage.NewProvider(cfg))
	t.Cleanup(func() { _ = resolver.CloseAll() })
	return resolver, baseDir
}

func readParquet(t *testing.T, path string) []account {
	t.Helper()
	fr, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(account), 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	rows := make([]account, pr.GetNumRows())
	require.NoError(t, pr.Read(&rows))
	return rows
}

func TestParquetWriter_UploadsOneFilePerPartition(t *testing.T) {
	resolver, baseDir := newArchiveResolver(t)
	w, err := writer.NewParquetWriter[account]("archiveWriter",
		writer.ParquetWriterConfig{StorageRef: "archive", OutputBaseDir: "accounts", CompressionType: "gzip"},
		resolver, new(account),
		func(a account) (string, error) { return "owner=" + a.Owner, nil })
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, w.Open(ctx, model.NewExecutionContext()))
	require.NoError(t, w.Write(ctx, nil, []account{{ID: "1", Owner: "ann"}, {ID: "2", Owner: "bob"}}))
	require.NoError(t, w.Write(ctx, nil, []account{{ID: "3", Owner: "ann"}}))
	require.NoError(t, w.Close(ctx))

	objects := w.UploadedObjects()
	require.Len(t, objects, 2)
	assert.Contains(t, objects[0], "accounts/owner=ann/")
	assert.Contains(t, objects[1], "accounts/owner=bob/")

	ann := readParquet(t, filepath.Join(baseDir, "exports", filepath.FromSlash(objects[0])))
	assert.Equal(t, []account{{ID: "1", Owner: "ann"}, {ID: "3", Owner: "ann"}}, ann)

	ec, err := w.GetExecutionContext(ctx)
	require.NoError(t, err)
	records, _ := ec.GetInt("archiveWriter.records")
	files, _ := ec.GetInt("archiveWriter.files")
	assert.Equal(t, 3, records)
	assert.Equal(t, 2, files)
}

func TestParquetWriter_NothingBuffered(t *testing.T) {
	resolver, _ := newArchiveResolver(t)
	w, err := writer.NewParquetWriter[account]("archiveWriter",
		writer.ParquetWriterConfig{StorageRef: "archive", OutputBaseDir: "accounts"}, resolver, nil, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, w.Open(ctx, nil))
	require.NoError(t, w.Close(ctx))
	assert.Empty(t, w.UploadedObjects())
}

func TestNewParquetWriter_Validation(t *testing.T) {
	resolver, _ := newArchiveResolver(t)

	_, err := writer.NewParquetWriter[account]("w", writer.ParquetWriterConfig{OutputBaseDir: "x"}, resolver, nil, nil)
	assert.ErrorContains(t, err, "storage_ref")

	_, err = writer.NewParquetWriter[account]("w", writer.ParquetWriterConfig{StorageRef: "archive"}, resolver, nil, nil)
	assert.ErrorContains(t, err, "output_base_dir")

	_, err = writer.NewParquetWriter[account]("w", writer.ParquetWriterConfig{StorageRef: "archive", OutputBaseDir: "x", CompressionType: "LZ4"}, resolver, nil, nil)
	assert.ErrorContains(t, err, "unsupported compression type")
}

func TestParquetWriter_UnknownStorage(t *testing.T) {
	resolver, _ := newArchiveResolver(t)
	w, err := writer.NewParquetWriter[account]("w", writer.ParquetWriterConfig{StorageRef: "missing", OutputBaseDir: "x"}, resolver, nil, nil)
	require.NoError(t, err)

	assert.Error(t, w.Open(context.Background(), nil))
}
