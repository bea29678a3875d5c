// Package config loads engine configuration from defaults, a YAML
// file, environment variables and command-line overrides.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete engine configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Engine    EngineConfig    `yaml:"engine"`
	Secrets   SecretsConfig   `yaml:"secrets"`
	Reporting ReportingConfig `yaml:"reporting"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds the HTTP API server settings.
type ServerConfig struct {
	Address      string        `yaml:"address" env:"CIQ_SERVER_ADDRESS"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"CIQ_SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"CIQ_SERVER_WRITE_TIMEOUT"`
	BodyLimitMB  int           `yaml:"body_limit_mb" env:"CIQ_SERVER_BODY_LIMIT_MB"`
}

// EngineConfig holds run scheduling settings.
type EngineConfig struct {
	// PipelinesDir is scanned for *.yml / *.yaml pipeline definitions.
	PipelinesDir      string        `yaml:"pipelines_dir" env:"CIQ_ENGINE_PIPELINES_DIR"`
	MaxConcurrentRuns int           `yaml:"max_concurrent_runs" env:"CIQ_ENGINE_MAX_CONCURRENT_RUNS"`
	ShutdownGrace     time.Duration `yaml:"shutdown_grace" env:"CIQ_ENGINE_SHUTDOWN_GRACE"`
	// EnableScheduler turns the cron daemon on or off.
	EnableScheduler bool `yaml:"enable_scheduler" env:"CIQ_ENGINE_ENABLE_SCHEDULER"`
}

// SecretsConfig controls where secret values come from.
type SecretsConfig struct {
	// File is an optional YAML file of name: value pairs.
	File string `yaml:"file" env:"CIQ_SECRETS_FILE"`
	// EnvPrefix imports matching environment variables as secrets,
	// with the prefix stripped.
	EnvPrefix string `yaml:"env_prefix" env:"CIQ_SECRETS_ENV_PREFIX"`
}

// ReportingConfig holds engine-level reporter defaults.
type ReportingConfig struct {
	// Verbose makes the console reporter print per-step lines.
	Verbose bool `yaml:"verbose" env:"CIQ_REPORTING_VERBOSE"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `yaml:"level" env:"CIQ_LOG_LEVEL"`
	Format     string `yaml:"format" env:"CIQ_LOG_FORMAT"`
	Output     string `yaml:"output" env:"CIQ_LOG_OUTPUT"`
	FilePath   string `yaml:"file_path" env:"CIQ_LOG_FILE_PATH"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"CIQ_LOG_MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" env:"CIQ_LOG_MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"max_age_days" env:"CIQ_LOG_MAX_AGE_DAYS"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:      ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			BodyLimitMB:  4,
		},
		Engine: EngineConfig{
			PipelinesDir:      "pipelines",
			MaxConcurrentRuns: 16,
			ShutdownGrace:     30 * time.Second,
			EnableScheduler:   true,
		},
		Secrets: SecretsConfig{
			EnvPrefix: "CIQ_SECRET_",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
	}
}

// Validate checks the configuration for unusable values.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Engine.MaxConcurrentRuns <= 0 {
		return fmt.Errorf("engine.max_concurrent_runs must be positive")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

// Serialize renders the configuration as YAML.
func (c *Config) Serialize() ([]byte, error) {
	return yaml.Marshal(c)
}

// Loader loads configuration from multiple sources.
type Loader struct {
	configPath string
	overrides  map[string]string
}

// NewLoader creates a configuration loader.
func NewLoader() *Loader {
	return &Loader{overrides: make(map[string]string)}
}

// WithConfigPath sets the YAML configuration file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithOverrides sets dot-notation command-line overrides, e.g.
// "server.address" -> ":9000".
func (l *Loader) WithOverrides(overrides map[string]string) *Loader {
	for k, v := range overrides {
		l.overrides[k] = v
	}
	return l
}

// Load resolves configuration with precedence:
// defaults < YAML file < environment variables < overrides.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if err := applyEnvToStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	for key, value := range l.overrides {
		if err := setByPath(cfg, key, value); err != nil {
			return nil, fmt.Errorf("applying override %s: %w", key, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile merges the YAML file into cfg. A missing file is not
// an error; explicit paths that fail to parse are.
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// LoadFromFile is a convenience wrapper for a file-only load.
func LoadFromFile(path string) (*Config, error) {
	return NewLoader().WithConfigPath(path).Load()
}

// applyEnvToStruct walks struct fields and applies env-tagged values.
func applyEnvToStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := applyEnvToStruct(field); err != nil {
				return err
			}
			continue
		}

		envName := fieldType.Tag.Get("env")
		if envName == "" {
			continue
		}
		envValue := os.Getenv(envName)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("field %s from %s: %w", fieldType.Name, envName, err)
		}
	}
	return nil
}

// setByPath sets a config value by its dot-notation yaml path.
func setByPath(cfg *Config, path, value string) error {
	parts := strings.Split(path, ".")
	v := reflect.ValueOf(cfg).Elem()

	for i, part := range parts {
		field, ok := fieldByYAMLName(v, part)
		if !ok {
			return fmt.Errorf("unknown configuration path: %s", path)
		}

		if i == len(parts)-1 {
			return setFieldValue(field, value)
		}
		if field.Kind() != reflect.Struct {
			return fmt.Errorf("%s is not a section", part)
		}
		v = field
	}
	return nil
}

// fieldByYAMLName finds a struct field by its yaml tag or name.
func fieldByYAMLName(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := strings.Split(t.Field(i).Tag.Get("yaml"), ",")[0]
		if tag == name || strings.EqualFold(t.Field(i).Name, name) {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// setFieldValue parses a string into the field's type.
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return fmt.Errorf("field is not settable")
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(i)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid float: %w", err)
		}
		field.SetFloat(f)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		field.Set(reflect.ValueOf(parts))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}
	return nil
}
