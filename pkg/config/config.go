// Package config loads and validates the strata configuration.
//
// Configuration sources, highest precedence first: environment variables
// (STRATA_*), the configuration file, built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/strataproc/strata/internal/bytesize"
)

// Config is the full strata configuration.
type Config struct {
	// Workflow selects the inputs and the science parameters.
	Workflow WorkflowConfig `mapstructure:"workflow" yaml:"workflow"`

	// Streaming tunes the block streaming pipeline.
	Streaming StreamingConfig `mapstructure:"streaming" yaml:"streaming"`

	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Metrics controls the Prometheus endpoint.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// WorkflowConfig selects inputs and science parameters.
type WorkflowConfig struct {
	// Files lists input rasters in chronological order. Mutually
	// exclusive with Glob.
	Files []string `mapstructure:"files" yaml:"files,omitempty"`

	// Glob matches input rasters; matches are sorted lexically, which
	// orders date-stamped names chronologically.
	Glob string `mapstructure:"glob" yaml:"glob,omitempty"`

	// OutputDir receives batch working directories and final outputs.
	OutputDir string `mapstructure:"output_dir" validate:"required" yaml:"output_dir"`

	// MinistackSize is the maximum raw epochs per sequential batch.
	MinistackSize int `mapstructure:"ministack_size" validate:"gt=0" yaml:"ministack_size"`

	// DispersionThreshold classifies a pixel stable below it.
	DispersionThreshold float64 `mapstructure:"dispersion_threshold" validate:"gt=0,lt=1" yaml:"dispersion_threshold"`

	// MinCount is the minimum valid samples per pixel; 0 means the full
	// stack depth.
	MinCount int `mapstructure:"min_count" validate:"gte=0" yaml:"min_count"`

	// MaskPath optionally names a validity raster.
	MaskPath string `mapstructure:"mask_path" yaml:"mask_path,omitempty"`
}

// StreamingConfig tunes the block streaming pipeline.
type StreamingConfig struct {
	// MemoryBudget bounds the planned block size, e.g. "256Mi".
	MemoryBudget bytesize.ByteSize `mapstructure:"memory_budget" yaml:"memory_budget"`

	// QueueSize bounds blocks in flight between loader and consumer.
	QueueSize int `mapstructure:"queue_size" validate:"gt=0" yaml:"queue_size"`

	// Timeout bounds each retrieval wait, e.g. "60s".
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0" yaml:"timeout"`

	// OverlapRows and OverlapCols inflate tiles at interior borders.
	OverlapRows int `mapstructure:"overlap_rows" validate:"gte=0" yaml:"overlap_rows"`
	OverlapCols int `mapstructure:"overlap_cols" validate:"gte=0" yaml:"overlap_cols"`

	// Synchronous forces inline writes, for debugging.
	Synchronous bool `mapstructure:"synchronous" yaml:"synchronous"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum level to output: DEBUG, INFO, WARN, ERROR.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format is text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// ListenAddr is the host:port for /metrics.
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
}

// Load loads configuration from file, environment, and defaults. An empty
// configPath searches the working directory and falls back to defaults when
// nothing is found.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		cfg := Default()
		if err := Validate(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the configuration to path as YAML.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration against its struct tags plus the
// cross-field rules tags cannot express.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if len(cfg.Workflow.Files) > 0 && cfg.Workflow.Glob != "" {
		return fmt.Errorf("configuration validation failed: workflow.files and workflow.glob are mutually exclusive")
	}
	return nil
}

// InputFiles resolves the workflow input list: explicit files as given, or
// the sorted glob matches.
func (c *Config) InputFiles() ([]string, error) {
	if len(c.Workflow.Files) > 0 {
		return c.Workflow.Files, nil
	}
	if c.Workflow.Glob == "" {
		return nil, fmt.Errorf("no input files: set workflow.files or workflow.glob")
	}

	matches, err := filepath.Glob(c.Workflow.Glob)
	if err != nil {
		return nil, fmt.Errorf("bad glob %q: %w", c.Workflow.Glob, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("glob %q matched no files", c.Workflow.Glob)
	}
	// filepath.Glob returns sorted matches; date-stamped names come out
	// chronological.
	return matches, nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("STRATA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("strata")
		v.SetConfigType("yaml")
	}
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read config file: %w", err)
	}
	return true, nil
}

func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		bytesize.DecodeHook(),
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// durationDecodeHook converts strings like "30s" and raw numbers
// (nanoseconds) to time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(_ reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}
