package gcs_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storageConfig "github.com/tigerroll/customer-import/pkg/batch/adapter/storage/config"
	"github.com/tigerroll/customer-import/pkg/batch/adapter/storage/gcs"
)

// newFakeServer serves the subset of the JSON API used by ListObjects and DeleteObject.
func newFakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/b/archive/o"):
			assert.Equal(t, "runs/", r.URL.Query().Get("prefix"))
			_, _ = w.Write([]byte(`{"kind":"storage#objects","items":[` +
				`{"kind":"storage#object","bucket":"archive","name":"runs/a.parquet"},` +
				`{"kind":"storage#object","bucket":"archive","name":"runs/b.parquet"}]}`))
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":404,"message":"No such object"}}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGCSAdapter_ListAndDelete(t *testing.T) {
	srv := newFakeServer(t)
	ctx := context.Background()

	conn, err := gcs.NewGCSAdapter(ctx, storageConfig.StorageConfig{
		Type:       gcs.ProviderType,
		BucketName: "archive",
		Endpoint:   srv.URL + "/storage/v1/",
	}, "archive")
	require.NoError(t, err)
	defer conn.Close()

	var names []string
	err = conn.ListObjects(ctx, "", "runs/", func(name string) error {
		names = append(names, name)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"runs/a.parquet", "runs/b.parquet"}, names)

	assert.NoError(t, conn.DeleteObject(ctx, "", "runs/missing.parquet"), "deleting a missing object is not an error")
}

func TestGCSAdapter_RequiresBucket(t *testing.T) {
	ctx := context.Background()
	conn, err := gcs.NewGCSAdapter(ctx, storageConfig.StorageConfig{
		Type:     gcs.ProviderType,
		Endpoint: "http://127.0.0.1:1/storage/v1/",
	}, "nobucket")
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Download(ctx, "", "customers.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket_name is not configured")
}

func TestClientOptions(t *testing.T) {
	assert.Empty(t, gcs.ClientOptions(storageConfig.StorageConfig{}))
	assert.Len(t, gcs.ClientOptions(storageConfig.StorageConfig{CredentialsFile: "key.json"}), 1)
	assert.Len(t, gcs.ClientOptions(storageConfig.StorageConfig{Endpoint: "http://localhost:4443/storage/v1/"}), 2)
}
