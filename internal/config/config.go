package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config represents the lock service configuration.
type Config struct {
	LogLevel string `json:"log_level"`

	// Workload configuration for the stratadb demo driver.
	Workload WorkloadConfig `json:"workload"`
}

// WorkloadConfig shapes the demo workload: the resource tree it builds and
// the concurrency it runs with.
type WorkloadConfig struct {
	Tables        int `json:"tables"`
	PagesPerTable int `json:"pages_per_table"`
	Workers       int `json:"workers"`
	Operations    int `json:"operations"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Workload: WorkloadConfig{
			Tables:        4,
			PagesPerTable: 10,
			Workers:       8,
			Operations:    200,
		},
	}
}

// LoadFromFile loads configuration from a JSON file.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFromFlags merges command-line flags into the configuration.
func (c *Config) LoadFromFlags(logLevel string, workers int) {
	if logLevel != "" {
		c.LogLevel = logLevel
	}
	if workers > 0 {
		c.Workload.Workers = workers
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}

	if c.Workload.Tables < 1 {
		return fmt.Errorf("workload must have at least 1 table")
	}
	if c.Workload.PagesPerTable < 1 {
		return fmt.Errorf("workload must have at least 1 page per table")
	}
	if c.Workload.Workers < 1 {
		return fmt.Errorf("workload must have at least 1 worker")
	}
	if c.Workload.Operations < 0 {
		return fmt.Errorf("workload operations cannot be negative")
	}

	return nil
}
