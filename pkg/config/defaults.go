package config

import (
	"strings"
	"time"

	"github.com/strataproc/strata/internal/bytesize"
)

// Default returns the built-in configuration. It still requires an output
// directory before it validates.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Workflow.OutputDir = "output"
	return cfg
}

// ApplyDefaults fills zero-valued fields with defaults. Explicit values are
// preserved.
func ApplyDefaults(cfg *Config) {
	applyWorkflowDefaults(&cfg.Workflow)
	applyStreamingDefaults(&cfg.Streaming)
	applyLoggingDefaults(&cfg.Logging)
	applyMetricsDefaults(&cfg.Metrics)
}

func applyWorkflowDefaults(cfg *WorkflowConfig) {
	if cfg.MinistackSize == 0 {
		cfg.MinistackSize = 10
	}
	if cfg.DispersionThreshold == 0 {
		cfg.DispersionThreshold = 0.25
	}
}

func applyStreamingDefaults(cfg *StreamingConfig) {
	if cfg.MemoryBudget == 0 {
		cfg.MemoryBudget = 256 * bytesize.MiB
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 1
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "localhost:9090"
	}
}
