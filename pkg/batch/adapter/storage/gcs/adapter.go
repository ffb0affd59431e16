// Package gcs provides a storage connection backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	storageAdapter "github.com/tigerroll/customer-import/pkg/batch/adapter/storage"
	storageConfig "github.com/tigerroll/customer-import/pkg/batch/adapter/storage/config"
	coreConfig "github.com/tigerroll/customer-import/pkg/batch/core/config"
	"github.com/tigerroll/customer-import/pkg/batch/support/util/logger"
)

// ProviderType is the storage type handled by this package.
const ProviderType = "gcs"

type gcsAdapter struct {
	client *storage.Client
	cfg    storageConfig.StorageConfig
	name   string
}

var _ storageAdapter.StorageConnection = (*gcsAdapter)(nil)

// ClientOptions converts cfg into client options.
// With an endpoint override (an emulator) authentication is disabled.
func ClientOptions(cfg storageConfig.StorageConfig) []option.ClientOption {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}
	return opts
}

// NewGCSAdapter opens a storage client for cfg.
func NewGCSAdapter(ctx context.Context, cfg storageConfig.StorageConfig, name string) (storageAdapter.StorageConnection, error) {
	client, err := storage.NewClient(ctx, ClientOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("gcs storage adapter '%s': failed to create client: %w", name, err)
	}
	return &gcsAdapter{client: client, cfg: cfg, name: name}, nil
}

// NewProvider creates the provider for "gcs" storage connections.
func NewProvider(cfg *coreConfig.Config) storageAdapter.StorageProvider {
	return storageAdapter.NewBaseProvider(cfg, ProviderType, func(c storageConfig.StorageConfig, name string) (storageAdapter.StorageConnection, error) {
		return NewGCSAdapter(context.Background(), c, name)
	})
}

func (a *gcsAdapter) Close() error {
	return a.client.Close()
}

func (a *gcsAdapter) Type() string {
	return ProviderType
}

func (a *gcsAdapter) Name() string {
	return a.name
}

func (a *gcsAdapter) bucket(bucket string) (*storage.BucketHandle, error) {
	if bucket == "" {
		bucket = a.cfg.BucketName
	}
	if bucket == "" {
		return nil, fmt.Errorf("gcs storage adapter '%s': no bucket given and bucket_name is not configured", a.name)
	}
	return a.client.Bucket(bucket), nil
}

func (a *gcsAdapter) Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	b, err := a.bucket(bucket)
	if err != nil {
		return err
	}

	w := b.Object(objectName).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, data); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to upload '%s': %w", objectName, err)
	}
	// The object is only committed when Close succeeds.
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize upload of '%s': %w", objectName, err)
	}
	logger.Debugf("Uploaded gs://%s/%s (gcs storage '%s').", w.Bucket, objectName, a.name)
	return nil
}

func (a *gcsAdapter) Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error) {
	b, err := a.bucket(bucket)
	if err != nil {
		return nil, err
	}
	reader, err := b.Object(objectName).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open '%s': %w", objectName, err)
	}
	return reader, nil
}

func (a *gcsAdapter) ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error {
	b, err := a.bucket(bucket)
	if err != nil {
		return err
	}

	it := b.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to list objects with prefix '%s': %w", prefix, err)
		}
		if err := fn(attrs.Name); err != nil {
			return err
		}
	}
}

func (a *gcsAdapter) DeleteObject(ctx context.Context, bucket, objectName string) error {
	b, err := a.bucket(bucket)
	if err != nil {
		return err
	}
	if err := b.Object(objectName).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			logger.Warnf("Object '%s' does not exist (gcs storage '%s').", objectName, a.name)
			return nil
		}
		return fmt.Errorf("failed to delete '%s': %w", objectName, err)
	}
	return nil
}
