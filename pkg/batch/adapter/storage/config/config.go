package config

// StorageConfig holds configuration for a single storage connection.
type StorageConfig struct {
	Type            string `yaml:"type"`             // Storage type ("local", "gcs").
	BucketName      string `yaml:"bucket_name"`      // Default bucket used when an operation passes none.
	CredentialsFile string `yaml:"credentials_file"` // Service account key file (gcs).
	Endpoint        string `yaml:"endpoint"`         // API endpoint override, e.g. a local emulator (gcs).
	BaseDir         string `yaml:"base_dir"`         // Root directory (local).
}
