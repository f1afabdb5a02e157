// Package config provides configuration types and defaults for procview.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/procview/internal/log"
)

// Config holds all configuration options for procview.
type Config struct {
	// Shell interprets commands as "<shell> -c <command>". Empty uses $SHELL, then /bin/sh.
	Shell   string   `mapstructure:"shell"`
	WorkDir string   `mapstructure:"work_dir"`
	Env     []string `mapstructure:"env"` // extra KEY=VALUE pairs

	// CaptureStderr merges stderr into the document. Only stdout is read by default.
	CaptureStderr bool `mapstructure:"capture_stderr"`

	// StripANSI removes escape sequences when displaying. The buffer keeps them.
	StripANSI bool `mapstructure:"strip_ansi"`

	Retention RetentionConfig `mapstructure:"retention"`
	UI        UIConfig        `mapstructure:"ui"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Log       LogConfig       `mapstructure:"log"`
}

// RetentionConfig controls eviction of detached processes.
type RetentionConfig struct {
	// DetachedTTL is how long a detached process keeps its output.
	// Zero keeps it for the whole session.
	DetachedTTL time.Duration `mapstructure:"detached_ttl"`

	// CleanupInterval is how often expired entries are swept.
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// UIConfig holds user interface configuration options.
type UIConfig struct {
	Wrap        bool   `mapstructure:"wrap"`        // soft-wrap long lines
	Placeholder string `mapstructure:"placeholder"` // command prompt placeholder
}

// TracingConfig holds distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether tracing is active.
	// Default: false
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects the trace export backend.
	// Options: "none", "file", "stdout", "otlp"
	// Default: "file"
	Exporter string `mapstructure:"exporter"`

	// FilePath is the output file for "file" exporter.
	// Default: ~/.config/procview/traces/traces.jsonl
	FilePath string `mapstructure:"file_path"`

	// OTLPEndpoint is the collector endpoint for "otlp" exporter.
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// SampleRate controls trace sampling (0.0 to 1.0).
	SampleRate float64 `mapstructure:"sample_rate"`
}

// LogConfig holds debug log options.
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
}

// DefaultTracesFilePath returns ~/.config/procview/traces/traces.jsonl,
// or "" if the home directory is unavailable.
func DefaultTracesFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "procview", "traces", "traces.jsonl")
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		StripANSI: true,
		Retention: RetentionConfig{
			DetachedTTL:     0,
			CleanupInterval: time.Minute,
		},
		UI: UIConfig{
			Wrap:        false,
			Placeholder: "journalctl -f",
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "file",
			FilePath:     DefaultTracesFilePath(),
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
		Log: LogConfig{
			Level: "debug",
		},
	}
}

// SetDefaults registers every default with v so unset keys resolve.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("shell", d.Shell)
	v.SetDefault("work_dir", d.WorkDir)
	v.SetDefault("env", []string{})
	v.SetDefault("capture_stderr", d.CaptureStderr)
	v.SetDefault("strip_ansi", d.StripANSI)
	v.SetDefault("retention.detached_ttl", d.Retention.DetachedTTL)
	v.SetDefault("retention.cleanup_interval", d.Retention.CleanupInterval)
	v.SetDefault("ui.wrap", d.UI.Wrap)
	v.SetDefault("ui.placeholder", d.UI.Placeholder)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("log.level", d.Log.Level)
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	for _, kv := range c.Env {
		if k, _, ok := strings.Cut(kv, "="); !ok || k == "" {
			return fmt.Errorf("env entry %q must be KEY=VALUE", kv)
		}
	}
	if err := ValidateRetention(c.Retention); err != nil {
		return err
	}
	if err := ValidateTracing(c.Tracing); err != nil {
		return err
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// ValidateRetention rejects negative durations.
func ValidateRetention(r RetentionConfig) error {
	if r.DetachedTTL < 0 {
		return fmt.Errorf("retention.detached_ttl must not be negative, got %s", r.DetachedTTL)
	}
	if r.CleanupInterval < 0 {
		return fmt.Errorf("retention.cleanup_interval must not be negative, got %s", r.CleanupInterval)
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tracing TracingConfig) error {
	if tracing.SampleRate < 0.0 || tracing.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tracing.SampleRate)
	}

	if tracing.Exporter != "" {
		switch tracing.Exporter {
		case "none", "file", "stdout", "otlp":
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tracing.Exporter)
		}
	}

	// Path requirements only matter when tracing is on
	if tracing.Enabled {
		if tracing.Exporter == "file" && tracing.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if tracing.Exporter == "otlp" && tracing.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}
	return nil
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# procview configuration

# Shell used to run commands as "<shell> -c <command>" (default: $SHELL, then /bin/sh)
# shell: /bin/bash

# Working directory for commands (default: current directory)
# work_dir: /path/to/project

# Extra environment for commands, as KEY=VALUE
env: []

# Read stderr into the document as well as stdout
capture_stderr: false

# Remove ANSI escape sequences when displaying output
strip_ansi: true

# Detached processes keep their output for detached_ttl ("0" keeps it all session)
retention:
  detached_ttl: 0s
  cleanup_interval: 1m

# UI settings
ui:
  wrap: false                  # Soft-wrap long output lines
  placeholder: "journalctl -f" # Command prompt placeholder

# Debug log level (only used with --debug): debug, info, warn, error
log:
  level: debug

# Tracing of process spawn and detach
# tracing:
#   enabled: true
#   exporter: file              # none, file, stdout, otlp
#   file_path: ~/.config/procview/traces/traces.jsonl
#   otlp_endpoint: localhost:4317
#   sample_rate: 1.0
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	var probe map[string]any
	if err := yaml.Unmarshal([]byte(DefaultConfigTemplate()), &probe); err != nil {
		return fmt.Errorf("default config template is not valid yaml: %w", err)
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
