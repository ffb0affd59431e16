package local_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storageAdapter "github.com/tigerroll/customer-import/pkg/batch/adapter/storage"
	storageConfig "github.com/tigerroll/customer-import/pkg/batch/adapter/storage/config"
	"github.com/tigerroll/customer-import/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/customer-import/pkg/batch/core/config"
)

func newLocalConnection(t *testing.T) (storageAdapter.StorageConnection, string) {
	t.Helper()
	baseDir := filepath.Join(t.TempDir(), "store")
	conn, err := local.NewLocalAdapter(storageConfig.StorageConfig{Type: local.ProviderType, BaseDir: baseDir, BucketName: "inbox"}, "files")
	require.NoError(t, err)
	return conn, baseDir
}

func TestLocalAdapter_UploadDownload(t *testing.T) {
	conn, baseDir := newLocalConnection(t)
	ctx := context.Background()

	require.NoError(t, conn.Upload(ctx, "", "2024/customers.csv", strings.NewReader("id\n1\n"), "text/csv"))
	assert.FileExists(t, filepath.Join(baseDir, "inbox", "2024", "customers.csv"))

	rc, err := conn.Download(ctx, "", "2024/customers.csv")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "id\n1\n", string(data))

	_, err = conn.Download(ctx, "", "missing.csv")
	assert.Error(t, err)
}

func TestLocalAdapter_ListAndDelete(t *testing.T) {
	conn, _ := newLocalConnection(t)
	ctx := context.Background()

	for _, name := range []string{"a/1.csv", "a/2.csv", "b/3.csv"} {
		require.NoError(t, conn.Upload(ctx, "", name, strings.NewReader(name), ""))
	}

	var names []string
	require.NoError(t, conn.ListObjects(ctx, "", "a/", func(name string) error {
		names = append(names, name)
		return nil
	}))
	sort.Strings(names)
	assert.Equal(t, []string{"a/1.csv", "a/2.csv"}, names)

	require.NoError(t, conn.DeleteObject(ctx, "", "a/1.csv"))
	assert.NoError(t, conn.DeleteObject(ctx, "", "a/1.csv"), "deleting a missing object is not an error")
}

func TestLocalAdapter_RejectsEscapingPaths(t *testing.T) {
	conn, _ := newLocalConnection(t)
	err := conn.Upload(context.Background(), "", "../../outside.csv", strings.NewReader("x"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside of base_dir")
}

func TestNewLocalAdapter_Validation(t *testing.T) {
	_, err := local.NewLocalAdapter(storageConfig.StorageConfig{Type: local.ProviderType}, "files")
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err = local.NewLocalAdapter(storageConfig.StorageConfig{Type: local.ProviderType, BaseDir: file}, "files")
	assert.Error(t, err)
}

func TestConnectionResolver(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Surfin.StorageConfigs["files"] = map[string]interface{}{"type": "local", "base_dir": t.TempDir()}
	cfg.Surfin.StorageConfigs["cloud"] = map[string]interface{}{"type": "gcs", "bucket_name": "b"}

	resolver := storageAdapter.NewConnectionResolver(cfg, local.NewProvider(cfg))
	defer resolver.CloseAll()
	ctx := context.Background()

	first, err := resolver.ResolveStorageConnection(ctx, "files")
	require.NoError(t, err)
	second, err := resolver.ResolveConnection(ctx, "files")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, "files", first.Name())

	_, err = resolver.ResolveStorageConnection(ctx, "cloud")
	assert.ErrorContains(t, err, "no storage provider registered for type 'gcs'")

	_, err = resolver.ResolveStorageConnection(ctx, "unknown")
	assert.ErrorContains(t, err, "not found")
}
