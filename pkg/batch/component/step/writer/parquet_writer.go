package writer

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/xitongsys/parquet-go/parquet"
	parquetwriter "github.com/xitongsys/parquet-go/writer"

	"github.com/tigerroll/customer-import/pkg/batch/adapter/storage"
	"github.com/tigerroll/customer-import/pkg/batch/core/application/port"
	"github.com/tigerroll/customer-import/pkg/batch/core/domain/model"
	tx "github.com/tigerroll/customer-import/pkg/batch/core/tx"
	"github.com/tigerroll/customer-import/pkg/batch/support/util/exception"
	"github.com/tigerroll/customer-import/pkg/batch/support/util/logger"
)

const (
	parquetContentType = "application/octet-stream"
	// parquetParallelism is the number of goroutines parquet-go uses to marshal rows.
	parquetParallelism = 4
)

// ParquetWriterConfig holds the configuration for ParquetWriter.
type ParquetWriterConfig struct {
	// StorageRef is the name of the storage connection files are uploaded to.
	StorageRef string `yaml:"storage_ref" mapstructure:"storage_ref"`
	// Bucket overrides the connection's default bucket.
	Bucket string `yaml:"bucket" mapstructure:"bucket"`
	// OutputBaseDir is the object prefix under which partitions are written (e.g. "archive/customers").
	OutputBaseDir string `yaml:"output_base_dir" mapstructure:"output_base_dir"`
	// CompressionType is SNAPPY (default), GZIP or NONE.
	CompressionType string `yaml:"compression_type" mapstructure:"compression_type"`
}

// ParquetWriter buffers items per partition and uploads one Parquet file per partition on Close.
// It ignores the chunk transaction: files only leave the process when the writer is closed.
type ParquetWriter[T any] struct {
	name     string
	config   ParquetWriterConfig
	resolver storage.StorageConnectionResolver
	// itemPrototype drives parquet-go's schema reflection.
	itemPrototype *T
	// partitionKeyFunc returns the partition directory of an item (e.g. "dt=2024-01-31"). Nil writes a single partition.
	partitionKeyFunc func(T) (string, error)

	mu       sync.Mutex
	conn     storage.StorageConnection
	buffered map[string][]T
	total    int
	uploaded []string
	ec       model.ExecutionContext
}

var _ port.ItemWriter[any] = (*ParquetWriter[any])(nil)

// NewParquetWriter validates cfg and creates a ParquetWriter.
func NewParquetWriter[T any](
	name string,
	cfg ParquetWriterConfig,
	resolver storage.StorageConnectionResolver,
	itemPrototype *T,
	partitionKeyFunc func(T) (string, error),
) (*ParquetWriter[T], error) {
	if cfg.StorageRef == "" {
		return nil, exception.NewBatchErrorf("writer", "ParquetWriter '%s' requires 'storage_ref'", name)
	}
	if cfg.OutputBaseDir == "" {
		return nil, exception.NewBatchErrorf("writer", "ParquetWriter '%s' requires 'output_base_dir'", name)
	}
	if cfg.CompressionType == "" {
		cfg.CompressionType = "SNAPPY"
	}
	if _, err := compressionCodec(cfg.CompressionType); err != nil {
		return nil, exception.NewBatchError("writer", fmt.Sprintf("ParquetWriter '%s'", name), err, false, false)
	}
	if itemPrototype == nil {
		itemPrototype = new(T)
	}

	return &ParquetWriter[T]{
		name:             name,
		config:           cfg,
		resolver:         resolver,
		itemPrototype:    itemPrototype,
		partitionKeyFunc: partitionKeyFunc,
		buffered:         make(map[string][]T),
		ec:               model.NewExecutionContext(),
	}, nil
}

// Open resolves the storage connection and clears the buffers.
func (w *ParquetWriter[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	conn, err := w.resolver.ResolveStorageConnection(ctx, w.config.StorageRef)
	if err != nil {
		return exception.NewBatchError("writer",
			fmt.Sprintf("failed to resolve storage connection '%s' for ParquetWriter '%s'", w.config.StorageRef, w.name), err, false, false)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn = conn
	w.buffered = make(map[string][]T)
	w.total = 0
	w.uploaded = nil
	logger.Debugf("ParquetWriter '%s' opened. Target: %s/%s", w.name, w.config.StorageRef, w.config.OutputBaseDir)
	return nil
}

// Write buffers items by partition key. Nothing is uploaded until Close.
func (w *ParquetWriter[T]) Write(ctx context.Context, _ tx.Tx, items []T) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, item := range items {
		key := ""
		if w.partitionKeyFunc != nil {
			k, err := w.partitionKeyFunc(item)
			if err != nil {
				return exception.NewBatchError("writer",
					fmt.Sprintf("failed to get partition key in ParquetWriter '%s'", w.name), err, false, false)
			}
			key = k
		}
		w.buffered[key] = append(w.buffered[key], item)
		w.total++
	}
	logger.Debugf("ParquetWriter '%s' buffered %d items (total %d).", w.name, len(items), w.total)
	return nil
}

// Close encodes and uploads every buffered partition. Failures of individual partitions are aggregated.
func (w *ParquetWriter[T]) Close(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return nil
	}
	defer func() {
		w.buffered = make(map[string][]T)
		w.total = 0
		w.conn = nil
	}()

	if w.total == 0 {
		logger.Infof("ParquetWriter '%s': nothing buffered, no file written.", w.name)
		return nil
	}

	codec, _ := compressionCodec(w.config.CompressionType)
	keys := make([]string, 0, len(w.buffered))
	for k := range w.buffered {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs error
	for _, key := range keys {
		objectName, err := w.flushPartition(ctx, key, w.buffered[key], codec)
		if err != nil {
			errs = multierror.Append(errs, exception.NewBatchError("writer",
				fmt.Sprintf("failed to write partition '%s' in ParquetWriter '%s'", key, w.name), err, false, false))
			continue
		}
		w.uploaded = append(w.uploaded, objectName)
	}
	w.ec.Put(w.name+".files", len(w.uploaded))
	w.ec.Put(w.name+".records", w.total)
	return errs
}

func (w *ParquetWriter[T]) flushPartition(ctx context.Context, key string, items []T, codec parquet.CompressionCodec) (objectName string, err error) {
	buf := new(bytes.Buffer)
	pw, err := parquetwriter.NewParquetWriterFromWriter(buf, w.itemPrototype, parquetParallelism)
	if err != nil {
		return "", fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = codec

	for _, item := range items {
		if err := pw.Write(item); err != nil {
			return "", fmt.Errorf("encode row: %w", err)
		}
	}

	// parquet-go panics on some schema mismatches during WriteStop.
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("parquet writer panicked: %v", r)
			}
		}()
		err = pw.WriteStop()
	}()
	if err != nil {
		return "", err
	}

	fileName := fmt.Sprintf("data_%s_%s.parquet", time.Now().Format("20060102150405"), randomSuffix(8))
	objectName = path.Join(w.config.OutputBaseDir, key, fileName)
	if err := w.conn.Upload(ctx, w.config.Bucket, objectName, buf, parquetContentType); err != nil {
		return "", fmt.Errorf("upload '%s': %w", objectName, err)
	}
	logger.Infof("ParquetWriter '%s': uploaded %d records to %s.", w.name, len(items), objectName)
	return objectName, nil
}

// Discard drops everything buffered since Open, so the next Close uploads nothing.
func (w *ParquetWriter[T]) Discard() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buffered = make(map[string][]T)
	w.total = 0
}

// UploadedObjects returns the object names written by the last Close.
func (w *ParquetWriter[T]) UploadedObjects() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.uploaded...)
}

func (w *ParquetWriter[T]) SetExecutionContext(ctx context.Context, ec model.ExecutionContext) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ec = ec.Copy()
	return nil
}

func (w *ParquetWriter[T]) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ec.Copy(), nil
}

func compressionCodec(compressionType string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(compressionType) {
	case "SNAPPY":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "NONE", "":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, fmt.Errorf("unsupported compression type: %s", compressionType)
	}
}

func randomSuffix(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[rand.Intn(len(charset))]
	}
	return string(b)
}
