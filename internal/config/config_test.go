package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected info log level, got %s", cfg.LogLevel)
	}
	if cfg.Workload.Tables < 1 || cfg.Workload.Workers < 1 {
		t.Error("default workload must be runnable")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, true},
		{"zero tables", func(c *Config) { c.Workload.Tables = 0 }, true},
		{"zero pages", func(c *Config) { c.Workload.PagesPerTable = 0 }, true},
		{"zero workers", func(c *Config) { c.Workload.Workers = 0 }, true},
		{"negative operations", func(c *Config) { c.Workload.Operations = -1 }, true},
		{"zero operations", func(c *Config) { c.Workload.Operations = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	data := `{"log_level": "debug", "workload": {"tables": 2, "pages_per_table": 5, "workers": 3, "operations": 10}}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected debug, got %s", cfg.LogLevel)
	}
	if cfg.Workload.Tables != 2 || cfg.Workload.PagesPerTable != 5 {
		t.Errorf("workload not loaded: %+v", cfg.Workload)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	if _, err := LoadFromFile("/does/not/exist.json"); err == nil {
		t.Error("expected error for missing file")
	}

	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"log_level": "loud"}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(bad); err == nil {
		t.Error("expected validation error")
	}
}

func TestLoadFromFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LoadFromFlags("debug", 12)
	if cfg.LogLevel != "debug" || cfg.Workload.Workers != 12 {
		t.Errorf("flags not applied: %+v", cfg)
	}

	cfg.LoadFromFlags("", 0)
	if cfg.LogLevel != "debug" || cfg.Workload.Workers != 12 {
		t.Error("empty flags must not override")
	}
}
