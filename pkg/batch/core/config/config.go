// Package config provides the framework configuration structures and their loader.
package config

// EmbeddedConfig holds the content of the configuration file compiled into the binary.
type EmbeddedConfig []byte

// ItemRetryConfig holds item-level retry configuration.
type ItemRetryConfig struct {
	MaxAttempts         int      `yaml:"max_attempts"`         // MaxAttempts is the maximum number of attempts for an item. 0 disables retry.
	InitialInterval     int      `yaml:"initial_interval"`     // InitialInterval is the backoff interval in milliseconds.
	RetryableExceptions []string `yaml:"retryable_exceptions"` // RetryableExceptions lists registered error type names.
}

// ItemSkipConfig holds item-level skip configuration.
type ItemSkipConfig struct {
	SkipLimit           int      `yaml:"skip_limit"`           // SkipLimit is the maximum number of items to skip. 0 disables skipping.
	SkippableExceptions []string `yaml:"skippable_exceptions"` // SkippableExceptions lists registered error type names.
}

// BatchConfig holds configuration specific to the batch processing engine.
type BatchConfig struct {
	// JobName is the job launched by the entry point.
	JobName string `yaml:"job_name"`
	// ChunkSize is the number of items per chunk transaction.
	ChunkSize int `yaml:"chunk_size"`
	// Concurrency is the maximum number of chunks in flight.
	Concurrency int `yaml:"concurrency"`
	// IsolationLevel is the chunk transaction isolation level (e.g. "READ_COMMITTED"). Empty uses the driver default.
	IsolationLevel string `yaml:"isolation_level"`
	// Incrementer selects the JobParametersIncrementer ("run_id", "timestamp", "none").
	Incrementer string `yaml:"incrementer"`
	// ItemRetry is the item-level retry configuration.
	ItemRetry ItemRetryConfig `yaml:"item_retry"`
	// ItemSkip is the item-level skip configuration.
	ItemSkip ItemSkipConfig `yaml:"item_skip"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // DEBUG, INFO, WARN, ERROR, FATAL or SILENT.
	Format string `yaml:"format"` // "console" or "json".
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	// Timezone is the application timezone (e.g., "UTC", "Asia/Tokyo").
	Timezone string        `yaml:"timezone"`
	Logging  LoggingConfig `yaml:"logging"`
}

// JobRepositoryConfig selects the job repository implementation.
type JobRepositoryConfig struct {
	Type string `yaml:"type"` // "sql" or "inmemory".
}

// MigrationConfig controls schema migration at start-up.
type MigrationConfig struct {
	Enabled bool `yaml:"enabled"`
}

// InfrastructureConfig holds logical dependency settings for infrastructure components.
type InfrastructureConfig struct {
	// JobRepositoryDBRef is the name of the database connection used by the JobRepository.
	JobRepositoryDBRef string `yaml:"job_repository_db_ref"`
	// WorkloadDBRef is the name of the database connection the job writes business data to.
	WorkloadDBRef string              `yaml:"workload_db_ref"`
	JobRepository JobRepositoryConfig `yaml:"job_repository"`
	Migration     MigrationConfig     `yaml:"migration"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// MaskedParameterKeys lists additional JobParameters key fragments masked in logs.
	MaskedParameterKeys []string `yaml:"masked_parameter_keys"`
}

// PrometheusConfig configures how Prometheus metrics leave the process at job end.
type PrometheusConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url"`
	TextfilePath   string `yaml:"textfile_path"`
}

// OTLPConfig configures an OTLP exporter.
type OTLPConfig struct {
	Protocol string `yaml:"protocol"` // "grpc" or "http".
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

// MetricsConfig configures metric recording.
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // "prometheus" or "otlp".
	// AsyncBufferSize > 0 records item and chunk metrics on a background goroutine with a queue of this size.
	AsyncBufferSize int              `yaml:"async_buffer_size"`
	Prometheus      PrometheusConfig `yaml:"prometheus"`
	OTLP            OTLPConfig       `yaml:"otlp"`
}

// TracingConfig configures distributed tracing.
type TracingConfig struct {
	Enabled     bool       `yaml:"enabled"`
	SampleRatio float64    `yaml:"sample_ratio"`
	OTLP        OTLPConfig `yaml:"otlp"`
}

// TelemetryConfig groups metrics and tracing settings.
type TelemetryConfig struct {
	ServiceName string        `yaml:"service_name"`
	Metrics     MetricsConfig `yaml:"metrics"`
	Tracing     TracingConfig `yaml:"tracing"`
}

// SurfinConfig holds all configuration under the "surfin" top-level key.
type SurfinConfig struct {
	Batch          BatchConfig          `yaml:"batch"`
	System         SystemConfig         `yaml:"system"`
	Infrastructure InfrastructureConfig `yaml:"infrastructure"`
	Security       SecurityConfig       `yaml:"security"`
	Telemetry      TelemetryConfig      `yaml:"telemetry"`
	// AdaptorConfigs holds the named database connections, decoded by the database provider.
	AdaptorConfigs map[string]interface{} `yaml:"database"`
	// StorageConfigs holds the named storage connections, decoded by the storage providers.
	StorageConfigs map[string]interface{} `yaml:"storage"`
}

// Config is the root structure for the framework configuration.
type Config struct {
	Surfin SurfinConfig `yaml:"surfin"`
	// Sources holds the expanded YAML documents in load order, so applications
	// can decode their own sections from the same files.
	Sources [][]byte `yaml:"-"`
}

// NewConfig returns a new instance of Config with default values.
func NewConfig() *Config {
	return &Config{
		Surfin: SurfinConfig{
			System: SystemConfig{
				Timezone: "UTC",
				Logging:  LoggingConfig{Level: "INFO", Format: "console"},
			},
			Batch: BatchConfig{
				ChunkSize:   10,
				Concurrency: 10,
				Incrementer: "run_id",
				ItemRetry: ItemRetryConfig{
					MaxAttempts:     0,
					InitialInterval: 1000,
				},
				ItemSkip: ItemSkipConfig{
					SkipLimit: 0,
				},
			},
			Infrastructure: InfrastructureConfig{
				JobRepositoryDBRef: "metadata",
				WorkloadDBRef:      "workload",
				JobRepository:      JobRepositoryConfig{Type: "sql"},
				Migration:          MigrationConfig{Enabled: true},
			},
			Security: SecurityConfig{
				MaskedParameterKeys: []string{"password", "api_key", "secret"},
			},
			Telemetry: TelemetryConfig{
				ServiceName: "customer-import",
				Metrics:     MetricsConfig{Exporter: "prometheus", OTLP: OTLPConfig{Protocol: "grpc"}},
				Tracing:     TracingConfig{SampleRatio: 1.0, OTLP: OTLPConfig{Protocol: "grpc"}},
			},
			AdaptorConfigs: map[string]interface{}{},
			StorageConfigs: map[string]interface{}{},
		},
	}
}
