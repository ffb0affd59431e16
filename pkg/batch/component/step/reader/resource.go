package reader

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/tigerroll/customer-import/pkg/batch/adapter/storage"
)

// Resource is an input a flat file reader can open.
type Resource interface {
	// Open opens the resource for reading from the beginning.
	Open(ctx context.Context) (io.ReadCloser, error)
	// Description describes the resource in logs.
	Description() string
}

type fileResource struct {
	path string
}

// NewFileResource returns a Resource for a local file.
func NewFileResource(path string) Resource {
	return &fileResource{path: path}
}

func (r *fileResource) Open(ctx context.Context) (io.ReadCloser, error) {
	return os.Open(r.path)
}

func (r *fileResource) Description() string {
	return "file [" + r.path + "]"
}

type storageResource struct {
	resolver   storage.StorageConnectionResolver
	storageRef string
	bucket     string
	objectName string
}

// NewStorageResource returns a Resource for an object in the storage connection named storageRef.
// An empty bucket uses the connection's configured bucket.
func NewStorageResource(resolver storage.StorageConnectionResolver, storageRef, bucket, objectName string) Resource {
	return &storageResource{resolver: resolver, storageRef: storageRef, bucket: bucket, objectName: objectName}
}

func (r *storageResource) Open(ctx context.Context) (io.ReadCloser, error) {
	conn, err := r.resolver.ResolveStorageConnection(ctx, r.storageRef)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage connection '%s': %w", r.storageRef, err)
	}
	return conn.Download(ctx, r.bucket, r.objectName)
}

func (r *storageResource) Description() string {
	return fmt.Sprintf("storage object [%s:%s/%s]", r.storageRef, r.bucket, r.objectName)
}
