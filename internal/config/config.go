package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all recognized sandbox configuration. The same struct
// loads from environment variables, a YAML file, or plain construction.
type Config struct {
	Sandbox SandboxConfig `yaml:"sandbox"`
	Logging LogConfig     `yaml:"logging"`
}

// SandboxConfig holds the resource ceilings. Zero always means
// unlimited, never "fail immediately".
type SandboxConfig struct {
	CPUSeconds  float64  `envconfig:"SANDBOX_CPU_SECONDS" default:"0" yaml:"cpu_seconds"`
	MemoryBytes ByteSize `envconfig:"SANDBOX_MEMORY_BYTES" default:"0" yaml:"memory_bytes"`
}

// LogConfig holds failure logging configuration.
type LogConfig struct {
	Errors      bool   `envconfig:"LOG_ERRORS" default:"true" yaml:"log_errors"`
	Level       string `envconfig:"LOG_LEVEL" default:"info" yaml:"log_level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" yaml:"log_dev"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// LoadFile reads configuration from a YAML file, with environment
// defaults filled in for keys the file omits.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Default returns default configuration: unlimited resources, failure
// logging on at info level.
func Default() *Config {
	return &Config{
		Sandbox: SandboxConfig{
			CPUSeconds:  0,
			MemoryBytes: 0,
		},
		Logging: LogConfig{
			Errors:      true,
			Level:       "info",
			Development: false,
		},
	}
}
