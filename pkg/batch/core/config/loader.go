package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/customer-import/pkg/batch/support/util/exception"
	"github.com/tigerroll/customer-import/pkg/batch/support/util/logger"
)

const moduleName = "config"

// LoadOptions describes where configuration is read from.
type LoadOptions struct {
	// EnvFilePath is the .env file loaded before anything else. Missing files are tolerated.
	EnvFilePath string
	// Embedded is the configuration compiled into the binary.
	Embedded EmbeddedConfig
	// ExternalPath is an optional YAML file whose values override the embedded ones.
	ExternalPath string
	// Expander expands ${VAR} placeholders. Defaults to OsEnvironmentExpander.
	Expander EnvironmentExpander
}

// LoadConfig loads configuration in this order: defaults, embedded YAML,
// external YAML, then SURFIN_* environment variables.
// Values in the .env file are exported to the process environment first.
func LoadConfig(opts LoadOptions) (*Config, error) {
	if opts.EnvFilePath != "" {
		if err := godotenv.Load(opts.EnvFilePath); err != nil {
			logger.Debugf(".env file (%s) not found or could not be loaded: %v", opts.EnvFilePath, err)
		}
	}
	expander := opts.Expander
	if expander == nil {
		expander = NewOsEnvironmentExpander()
	}

	cfg := NewConfig()

	if len(opts.Embedded) > 0 {
		if err := cfg.apply(opts.Embedded, expander); err != nil {
			return nil, exception.NewBatchError(moduleName, "failed to unmarshal embedded config", err, false, false)
		}
	}

	if opts.ExternalPath != "" {
		data, err := os.ReadFile(opts.ExternalPath)
		if err != nil {
			return nil, exception.NewBatchError(moduleName, fmt.Sprintf("failed to read config file '%s'", opts.ExternalPath), err, false, false)
		}
		if err := cfg.apply(data, expander); err != nil {
			return nil, exception.NewBatchError(moduleName, fmt.Sprintf("failed to unmarshal config file '%s'", opts.ExternalPath), err, false, false)
		}
	}

	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), ""); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to load config from environment variables", err, false, false)
	}

	if err := validateExceptionClasses(cfg); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to validate configured exception classes", err, false, false)
	}
	return cfg, nil
}

// apply decodes data on top of the current values. Keys absent from data keep
// their previous value; named connection maps are merged key by key.
func (c *Config) apply(data []byte, expander EnvironmentExpander) error {
	expanded, err := expander.Expand(data)
	if err != nil {
		return err
	}
	var overlay Config
	if err := yaml.Unmarshal(expanded, &overlay); err != nil {
		return err
	}
	adaptors, storages := c.Surfin.AdaptorConfigs, c.Surfin.StorageConfigs
	if err := yaml.Unmarshal(expanded, c); err != nil {
		return err
	}
	c.Surfin.AdaptorConfigs = mergeMaps(adaptors, overlay.Surfin.AdaptorConfigs)
	c.Surfin.StorageConfigs = mergeMaps(storages, overlay.Surfin.StorageConfigs)
	c.Sources = append(c.Sources, expanded)
	return nil
}

func mergeMaps(dest, source map[string]interface{}) map[string]interface{} {
	if dest == nil {
		dest = make(map[string]interface{})
	}
	for key, value := range source {
		dest[key] = value
	}
	return dest
}

// validateExceptionClasses checks that retry and skip settings only name registered error types.
func validateExceptionClasses(cfg *Config) error {
	if err := checkExceptionClasses(cfg.Surfin.Batch.ItemRetry.RetryableExceptions, "ItemRetry"); err != nil {
		return err
	}
	return checkExceptionClasses(cfg.Surfin.Batch.ItemSkip.SkippableExceptions, "ItemSkip")
}

func checkExceptionClasses(classNames []string, configType string) error {
	for _, name := range classNames {
		if !exception.IsErrorTypeRegistered(name) {
			return fmt.Errorf("%s configuration references unknown exception class: '%s'", configType, name)
		}
	}
	return nil
}

// LoadFromEnv overrides the fields of the struct pointed to by target from environment variables,
// named after the upper-cased yaml tag path (a field `yaml:"customer"` > `yaml:"path"` reads CUSTOMER_PATH).
func LoadFromEnv(target interface{}) error {
	val := reflect.ValueOf(target)
	if val.Kind() != reflect.Ptr || val.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("LoadFromEnv requires a pointer to a struct, got %T", target)
	}
	return loadStructFromEnv(val.Elem(), "")
}

// loadStructFromEnv recursively loads configuration values into a struct from environment variables.
// The variable name is the upper-cased path of yaml tags joined by "_", e.g. SURFIN_BATCH_CHUNK_SIZE.
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := strings.Split(fieldType.Tag.Get("yaml"), ",")[0]
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		envVarName := strings.ToUpper(prefix + yamlTag)

		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		}

		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			continue
		}
		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envVarName, err)
		}
	}
	return nil
}

// setField sets a string, int, float, bool or comma-separated []string field from value.
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Float64, reflect.Float32:
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return nil
		}
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		field.Set(reflect.ValueOf(items))
	}
	return nil
}
