// Package config loads Kestrel configuration from YAML with sane defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the process-wide configuration, read-only during execution.
type Config struct {
	Retry   RetryPolicy   `yaml:"retry"`
	Trace   TraceConfig   `yaml:"trace"`
	Memory  MemoryConfig  `yaml:"memory"`
	Server  ServerConfig  `yaml:"server"`
	Archive ArchiveConfig `yaml:"archive"`
}

// RetryPolicy controls per-step retry behavior.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int `yaml:"max_retries"`
	// InitialDelayMs is the delay before the first retry.
	InitialDelayMs int `yaml:"initial_delay_ms"`
	// BackoffMultiplier scales the delay after each failed attempt.
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
}

// InitialDelay returns the first inter-attempt delay as a duration.
func (p RetryPolicy) InitialDelay() time.Duration {
	return time.Duration(p.InitialDelayMs) * time.Millisecond
}

// TraceConfig bounds the request tracer.
type TraceConfig struct {
	// MaxRequests is the maximum number of tracked requests before the
	// oldest request is evicted wholesale.
	MaxRequests int `yaml:"max_requests"`
}

// MemoryConfig bounds the rolling knowledge memory.
type MemoryConfig struct {
	MaxFindings int `yaml:"max_findings"`
	MaxLessons  int `yaml:"max_lessons"`
}

// ServerConfig configures the HTTP control plane.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// ArchiveConfig configures the SQLite task archive.
type ArchiveConfig struct {
	Path string `yaml:"path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Retry: RetryPolicy{
			MaxRetries:        3,
			InitialDelayMs:    1000,
			BackoffMultiplier: 2.0,
		},
		Trace:  TraceConfig{MaxRequests: 1000},
		Memory: MemoryConfig{MaxFindings: 100, MaxLessons: 100},
		Server: ServerConfig{Listen: "127.0.0.1:7410"},
	}
}

// Load reads a YAML config file, falling back to defaults for anything
// the file does not set. A missing file returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be >= 0, got %d", c.Retry.MaxRetries)
	}
	if c.Retry.BackoffMultiplier < 1 {
		return fmt.Errorf("retry.backoff_multiplier must be >= 1, got %v", c.Retry.BackoffMultiplier)
	}
	if c.Trace.MaxRequests <= 0 {
		return fmt.Errorf("trace.max_requests must be > 0, got %d", c.Trace.MaxRequests)
	}
	if c.Memory.MaxFindings <= 0 || c.Memory.MaxLessons <= 0 {
		return fmt.Errorf("memory bounds must be > 0")
	}
	return nil
}
