// Package config holds the customer import settings found under the "customer" key of the
// application YAML, next to the framework's "surfin" section.
package config

import (
	"fmt"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/tigerroll/customer-import/pkg/batch/component/step/writer"
	coreConfig "github.com/tigerroll/customer-import/pkg/batch/core/config"
)

// Writer modes.
const (
	WriterModeSave = "save"
	WriterModeBulk = "bulk"
)

// InputConfig locates the CSV file, either on the local file system or in a storage connection.
type InputConfig struct {
	Path       string `yaml:"path"`
	StorageRef string `yaml:"storage_ref"`
	Bucket     string `yaml:"bucket"`
	Object     string `yaml:"object"`
}

// ReaderConfig configures the flat file reader.
type ReaderConfig struct {
	LinesToSkip int    `yaml:"lines_to_skip"`
	Delimiter   string `yaml:"delimiter"`
	Strict      bool   `yaml:"strict"`
}

// ProcessorConfig configures CustomerProcessor.
type ProcessorConfig struct {
	// Normalize trims every field, lower-cases email and upper-cases gender. Off, records are stored as read.
	Normalize          bool `yaml:"normalize"`
	FilterBlankRecords bool `yaml:"filter_blank_records"`
	Validate           bool `yaml:"validate"`
}

// WriterConfig selects how a chunk is persisted.
type WriterConfig struct {
	// Mode is "save" (one upsert per record through CustomerRepository) or "bulk" (one upsert per BulkSize records).
	Mode     string `yaml:"mode"`
	BulkSize int    `yaml:"bulk_size"`
}

// ArchiveConfig configures the optional Parquet snapshot of the customers table taken after the import.
type ArchiveConfig struct {
	Enabled         bool   `yaml:"enabled"`
	StorageRef      string `yaml:"storage_ref"`
	Bucket          string `yaml:"bucket"`
	OutputBaseDir   string `yaml:"output_base_dir"`
	CompressionType string `yaml:"compression_type"`
	BatchSize       int    `yaml:"batch_size"`
}

// ParquetWriterConfig returns the writer settings of the archive.
func (a ArchiveConfig) ParquetWriterConfig() writer.ParquetWriterConfig {
	return writer.ParquetWriterConfig{
		StorageRef:      a.StorageRef,
		Bucket:          a.Bucket,
		OutputBaseDir:   a.OutputBaseDir,
		CompressionType: a.CompressionType,
	}
}

// CustomerConfig groups the settings of the importCustomers job.
type CustomerConfig struct {
	Input     InputConfig     `yaml:"input"`
	Reader    ReaderConfig    `yaml:"reader"`
	Processor ProcessorConfig `yaml:"processor"`
	Writer    WriterConfig    `yaml:"writer"`
	Archive   ArchiveConfig   `yaml:"archive"`
}

// Config is the application configuration root.
type Config struct {
	Customer CustomerConfig `yaml:"customer"`
}

// Default returns the settings used when the YAML omits them.
func Default() *Config {
	return &Config{
		Customer: CustomerConfig{
			Input:  InputConfig{Path: "customers.csv"},
			Reader: ReaderConfig{LinesToSkip: 1, Delimiter: ","},
			Writer: WriterConfig{Mode: WriterModeSave, BulkSize: 100},
			Archive: ArchiveConfig{
				OutputBaseDir:   "archive/customers",
				CompressionType: "SNAPPY",
				BatchSize:       1000,
			},
		},
	}
}

// Load decodes the "customer" section of every source in order on top of the defaults,
// then applies CUSTOMER_* environment overrides.
func Load(sources [][]byte) (*Config, error) {
	cfg := Default()
	for i, src := range sources {
		if err := yaml.Unmarshal(src, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode customer settings from source %d: %w", i, err)
		}
	}
	if err := coreConfig.LoadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load customer settings from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail mid-run.
func (c *Config) Validate() error {
	in := c.Customer.Input
	if in.Path == "" && in.StorageRef == "" {
		return fmt.Errorf("customer.input: either path or storage_ref must be set")
	}
	if in.StorageRef != "" && in.Object == "" {
		return fmt.Errorf("customer.input.object is required with storage_ref '%s'", in.StorageRef)
	}
	if c.Customer.Reader.LinesToSkip < 0 {
		return fmt.Errorf("customer.reader.lines_to_skip must not be negative")
	}
	if utf8.RuneCountInString(c.Customer.Reader.Delimiter) != 1 {
		return fmt.Errorf("customer.reader.delimiter must be a single character, got %q", c.Customer.Reader.Delimiter)
	}
	switch c.Customer.Writer.Mode {
	case WriterModeSave, WriterModeBulk:
	default:
		return fmt.Errorf("customer.writer.mode must be '%s' or '%s', got '%s'", WriterModeSave, WriterModeBulk, c.Customer.Writer.Mode)
	}
	if c.Customer.Archive.Enabled && c.Customer.Archive.StorageRef == "" {
		return fmt.Errorf("customer.archive.storage_ref is required when the archive is enabled")
	}
	return nil
}

// DelimiterRune returns the reader delimiter as a rune.
func (c *Config) DelimiterRune() rune {
	r, _ := utf8.DecodeRuneInString(c.Customer.Reader.Delimiter)
	return r
}
