package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vwsim/framework/pkg/errors"
)

// Test Constants
const (
	TestDebugLevel = "DEBUG"
	TestMaxBytes   = "128MB"
)

func TestNewDefault(t *testing.T) {
	cfg := NewDefault()

	// Test global defaults
	if cfg.Global.LogLevel != "INFO" {
		t.Errorf("Expected LogLevel to be INFO, got %s", cfg.Global.LogLevel)
	}
	if cfg.Global.MetricsPort != 8080 {
		t.Errorf("Expected MetricsPort to be 8080, got %d", cfg.Global.MetricsPort)
	}

	// Test maintenance defaults
	if !cfg.Maintenance.Enabled {
		t.Error("Expected maintenance to be enabled by default")
	}
	if cfg.Maintenance.Interval != 10*time.Second {
		t.Errorf("Expected maintenance interval 10s, got %v", cfg.Maintenance.Interval)
	}

	// Test buffer pool defaults
	if cfg.BufferPool.MaxAllocatedBytes != "64MB" {
		t.Errorf("Expected MaxAllocatedBytes to be 64MB, got %s", cfg.BufferPool.MaxAllocatedBytes)
	}
	if n, err := cfg.BufferPool.MaxBytes(); err != nil || n != 64<<20 {
		t.Errorf("Expected MaxBytes 64MiB, got %d (%v)", n, err)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default configuration should validate, got %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "framework.yaml")

	content := `
global:
  log_level: DEBUG
  log_format: json
maintenance:
  interval: 2s
buffer_pool:
  max_allocated_bytes: 16MB
  size_classes: [512, 2048]
  idle_max_age: 90s
caches:
  textures:
    capacity: 1048576
    use_sizing: true
    min_size: 65536
    max_age: 10m
object_pools:
  packets:
    max_retained: 256
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg := NewDefault()
	if err := cfg.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if cfg.Global.LogLevel != TestDebugLevel {
		t.Errorf("Expected LogLevel %s, got %s", TestDebugLevel, cfg.Global.LogLevel)
	}
	if cfg.Maintenance.Interval != 2*time.Second {
		t.Errorf("Expected interval 2s, got %v", cfg.Maintenance.Interval)
	}
	if !cfg.Maintenance.Enabled {
		t.Error("Fields absent from the file should keep their defaults")
	}
	if cfg.BufferPool.IdleMaxAge != 90*time.Second {
		t.Errorf("Expected idle_max_age 90s, got %v", cfg.BufferPool.IdleMaxAge)
	}
	if len(cfg.BufferPool.SizeClasses) != 2 || cfg.BufferPool.SizeClasses[1] != 2048 {
		t.Errorf("Unexpected size classes %v", cfg.BufferPool.SizeClasses)
	}

	textures, ok := cfg.Caches["textures"]
	if !ok {
		t.Fatal("Expected textures cache")
	}
	if !textures.UseSizing || textures.MinSize != 65536 || textures.MaxAge != 10*time.Minute {
		t.Errorf("Unexpected cache config %+v", textures)
	}
	if cfg.ObjectPools["packets"].MaxRetained != 256 {
		t.Errorf("Expected packets max_retained 256, got %d", cfg.ObjectPools["packets"].MaxRetained)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Loaded configuration should validate, got %v", err)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	cfg := NewDefault()

	err := cfg.LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.HasCode(err, errors.ErrCodeConfigLoad) {
		t.Errorf("Expected CONFIG_LOAD for missing file, got %v", err)
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("global: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	err = cfg.LoadFromFile(path)
	if !errors.HasCode(err, errors.ErrCodeConfigLoad) {
		t.Errorf("Expected CONFIG_LOAD for malformed file, got %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("VWSIM_LOG_LEVEL", TestDebugLevel)
	t.Setenv("VWSIM_METRICS_PORT", "9191")
	t.Setenv("VWSIM_MAINTENANCE_INTERVAL", "250ms")
	t.Setenv("VWSIM_MAINTENANCE_ENABLED", "false")
	t.Setenv("VWSIM_BUFFER_POOL_MAX_BYTES", TestMaxBytes)
	t.Setenv("VWSIM_METRICS_ENABLED", "FALSE")

	cfg := NewDefault()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv failed: %v", err)
	}

	if cfg.Global.LogLevel != TestDebugLevel {
		t.Errorf("Expected LogLevel %s, got %s", TestDebugLevel, cfg.Global.LogLevel)
	}
	if cfg.Global.MetricsPort != 9191 {
		t.Errorf("Expected MetricsPort 9191, got %d", cfg.Global.MetricsPort)
	}
	if cfg.Maintenance.Interval != 250*time.Millisecond {
		t.Errorf("Expected interval 250ms, got %v", cfg.Maintenance.Interval)
	}
	if cfg.Maintenance.Enabled {
		t.Error("Expected maintenance to be disabled")
	}
	if cfg.BufferPool.MaxAllocatedBytes != TestMaxBytes {
		t.Errorf("Expected MaxAllocatedBytes %s, got %s", TestMaxBytes, cfg.BufferPool.MaxAllocatedBytes)
	}
	if cfg.Monitoring.Metrics.Enabled {
		t.Error("Expected metrics to be disabled")
	}
}

func TestLoadFromEnvMalformed(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"VWSIM_METRICS_PORT", "eighty"},
		{"VWSIM_MAINTENANCE_INTERVAL", "soon"},
		{"VWSIM_BUFFER_POOL_IDLE_MAX_AGE", "10 minutes"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			err := NewDefault().LoadFromEnv()
			if !errors.HasCode(err, errors.ErrCodeConfigLoad) {
				t.Errorf("Expected CONFIG_LOAD, got %v", err)
			}
			if err != nil && !strings.Contains(err.Error(), tt.key) {
				t.Errorf("Error should name %s: %v", tt.key, err)
			}
		})
	}
}

func TestSaveToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "framework.yaml")

	cfg := NewDefault()
	cfg.Caches["inventory"] = CacheConfig{Capacity: 4096, MaxAge: time.Minute}
	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Saved file missing: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected mode 0600, got %v", info.Mode().Perm())
	}

	loaded := &Configuration{}
	if err := loaded.LoadFromFile(path); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if loaded.Caches["inventory"].MaxAge != time.Minute {
		t.Errorf("Round-tripped max_age = %v", loaded.Caches["inventory"].MaxAge)
	}
	if loaded.Maintenance.Interval != cfg.Maintenance.Interval {
		t.Errorf("Round-tripped interval = %v", loaded.Maintenance.Interval)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Configuration)
		field  string
	}{
		{"bad log level", func(c *Configuration) { c.Global.LogLevel = "LOUD" }, "global.log_level"},
		{"bad log format", func(c *Configuration) { c.Global.LogFormat = "xml" }, "global.log_format"},
		{"port out of range", func(c *Configuration) { c.Global.MetricsPort = 70000 }, "global.metrics_port"},
		{"zero interval", func(c *Configuration) { c.Maintenance.Interval = 0 }, "maintenance.interval"},
		{"bad byte size", func(c *Configuration) { c.BufferPool.MaxAllocatedBytes = "lots" }, "buffer_pool.max_allocated_bytes"},
		{"unsorted classes", func(c *Configuration) { c.BufferPool.SizeClasses = []int{64, 32} }, "buffer_pool.size_classes"},
		{"no classes", func(c *Configuration) { c.BufferPool.SizeClasses = nil }, "buffer_pool.size_classes"},
		{"cache without capacity", func(c *Configuration) { c.Caches["x"] = CacheConfig{} }, "caches.x.capacity"},
		{"cache reserve too big", func(c *Configuration) { c.Caches["x"] = CacheConfig{Capacity: 1, MinSize: 2} }, "caches.x.min_size"},
		{"pool without cap", func(c *Configuration) { c.ObjectPools["p"] = ObjectPoolConfig{} }, "object_pools.p.max_retained"},
		{"metrics path", func(c *Configuration) { c.Monitoring.Metrics.Path = "metrics" }, "monitoring.metrics.path"},
		{"health error threshold", func(c *Configuration) { c.Monitoring.Health.ErrorThreshold = 0 }, "monitoring.health.error_threshold"},
		{"health unavailable threshold", func(c *Configuration) { c.Monitoring.Health.UnavailableThreshold = 1 }, "monitoring.health.unavailable_threshold"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefault()
			tt.mutate(cfg)

			err := cfg.Validate()
			if !errors.HasCode(err, errors.ErrCodeConfigValidation) {
				t.Fatalf("Expected CONFIG_VALIDATION, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("Error should name %s: %v", tt.field, err)
			}
		})
	}

	cfg := NewDefault()
	cfg.Maintenance.Enabled = false
	cfg.Maintenance.Interval = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("Interval is irrelevant when maintenance is disabled: %v", err)
	}
}
