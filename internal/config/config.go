package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vwsim/framework/pkg/errors"
	"github.com/vwsim/framework/pkg/health"
	"github.com/vwsim/framework/pkg/utils"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "VWSIM_"

// Configuration represents the complete application configuration
type Configuration struct {
	Global      GlobalConfig                `yaml:"global"`
	Maintenance MaintenanceConfig           `yaml:"maintenance"`
	BufferPool  BufferPoolConfig            `yaml:"buffer_pool"`
	Caches      map[string]CacheConfig      `yaml:"caches"`
	ObjectPools map[string]ObjectPoolConfig `yaml:"object_pools"`
	Monitoring  MonitoringConfig            `yaml:"monitoring"`
}

// GlobalConfig represents global application settings
type GlobalConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsPort int    `yaml:"metrics_port"`
}

// MaintenanceConfig controls the periodic Maintain driver.
type MaintenanceConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Interval    time.Duration `yaml:"interval"`
	HistorySize int           `yaml:"history_size"`
}

// BufferPoolConfig represents the shared tiered byte buffer pool
type BufferPoolConfig struct {
	MaxAllocatedBytes  string        `yaml:"max_allocated_bytes"`
	SizeClasses        []int         `yaml:"size_classes"`
	IdleMaxAge         time.Duration `yaml:"idle_max_age"`
	MaxBuffersPerClass int           `yaml:"max_buffers_per_class"`
}

// CacheConfig represents one named cache
type CacheConfig struct {
	Capacity  int64         `yaml:"capacity"`
	UseSizing bool          `yaml:"use_sizing"`
	MinSize   int64         `yaml:"min_size"`
	MaxAge    time.Duration `yaml:"max_age"`
}

// ObjectPoolConfig represents one named object pool
type ObjectPoolConfig struct {
	MaxRetained int `yaml:"max_retained"`
}

// MonitoringConfig represents monitoring settings
type MonitoringConfig struct {
	Metrics MetricsConfig        `yaml:"metrics"`
	Health  health.TrackerConfig `yaml:"health"`
}

// MetricsConfig represents metrics settings
type MetricsConfig struct {
	Enabled        bool              `yaml:"enabled"`
	Path           string            `yaml:"path"`
	Namespace      string            `yaml:"namespace"`
	UpdateInterval time.Duration     `yaml:"update_interval"`
	CustomLabels   map[string]string `yaml:"custom_labels"`
}

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:    "INFO",
			LogFormat:   "text",
			MetricsPort: 8080,
		},
		Maintenance: MaintenanceConfig{
			Enabled:     true,
			Interval:    10 * time.Second,
			HistorySize: 128,
		},
		BufferPool: BufferPoolConfig{
			MaxAllocatedBytes:  "64MB",
			SizeClasses:        []int{1024, 4096, 8192, 16384, 32768, 65536, 131072, 262144, 524288, 1048576},
			IdleMaxAge:         5 * time.Minute,
			MaxBuffersPerClass: 16384,
		},
		Caches:      make(map[string]CacheConfig),
		ObjectPools: make(map[string]ObjectPoolConfig),
		Monitoring: MonitoringConfig{
			Metrics: MetricsConfig{
				Enabled:        true,
				Path:           "/metrics",
				Namespace:      "vwsim",
				UpdateInterval: 30 * time.Second,
				CustomLabels:   make(map[string]string),
			},
			Health: health.DefaultConfig(),
		},
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return errors.NewError(errors.ErrCodeConfigLoad, "failed to read config file").
			WithDetail("file", filename).
			WithCause(err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.NewError(errors.ErrCodeConfigLoad, "failed to parse config file").
			WithDetail("file", filename).
			WithCause(err)
	}

	return nil
}

// LoadFromEnv applies VWSIM_* environment overrides. Malformed values are
// reported rather than ignored.
func (c *Configuration) LoadFromEnv() error {
	// Global settings
	if val := getenv("LOG_LEVEL"); val != "" {
		c.Global.LogLevel = val
	}
	if val := getenv("LOG_FORMAT"); val != "" {
		c.Global.LogFormat = val
	}
	if val := getenv("METRICS_PORT"); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return envError("METRICS_PORT", val, err)
		}
		c.Global.MetricsPort = port
	}

	// Maintenance settings
	if val := getenv("MAINTENANCE_ENABLED"); val != "" {
		c.Maintenance.Enabled = strings.ToLower(val) == "true"
	}
	if val := getenv("MAINTENANCE_INTERVAL"); val != "" {
		interval, err := time.ParseDuration(val)
		if err != nil {
			return envError("MAINTENANCE_INTERVAL", val, err)
		}
		c.Maintenance.Interval = interval
	}

	// Buffer pool settings
	if val := getenv("BUFFER_POOL_MAX_BYTES"); val != "" {
		c.BufferPool.MaxAllocatedBytes = val
	}
	if val := getenv("BUFFER_POOL_IDLE_MAX_AGE"); val != "" {
		age, err := time.ParseDuration(val)
		if err != nil {
			return envError("BUFFER_POOL_IDLE_MAX_AGE", val, err)
		}
		c.BufferPool.IdleMaxAge = age
	}

	// Monitoring settings
	if val := getenv("METRICS_ENABLED"); val != "" {
		c.Monitoring.Metrics.Enabled = strings.ToLower(val) == "true"
	}

	return nil
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.NewError(errors.ErrCodeConfigSave, "failed to marshal config").WithCause(err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return errors.NewError(errors.ErrCodeConfigSave, "failed to create config directory").WithCause(err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return errors.NewError(errors.ErrCodeConfigSave, "failed to write config file").WithCause(err)
	}

	return nil
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	if _, err := utils.ParseLogLevel(c.Global.LogLevel); err != nil {
		return invalid("global.log_level", "%v", err)
	}
	if _, err := utils.ParseLogFormat(c.Global.LogFormat); err != nil {
		return invalid("global.log_format", "%v", err)
	}
	if c.Global.MetricsPort < 0 || c.Global.MetricsPort > 65535 {
		return invalid("global.metrics_port", "port %d out of range", c.Global.MetricsPort)
	}

	if c.Maintenance.Enabled && c.Maintenance.Interval <= 0 {
		return invalid("maintenance.interval", "must be positive when maintenance is enabled")
	}
	if c.Maintenance.HistorySize < 0 {
		return invalid("maintenance.history_size", "must not be negative")
	}

	if _, err := c.BufferPool.MaxBytes(); err != nil {
		return invalid("buffer_pool.max_allocated_bytes", "%v", err)
	}
	if len(c.BufferPool.SizeClasses) == 0 {
		return invalid("buffer_pool.size_classes", "at least one size class is required")
	}
	for i, size := range c.BufferPool.SizeClasses {
		if size <= 0 || (i > 0 && size <= c.BufferPool.SizeClasses[i-1]) {
			return invalid("buffer_pool.size_classes", "must be positive and strictly ascending")
		}
	}
	if c.BufferPool.IdleMaxAge < 0 {
		return invalid("buffer_pool.idle_max_age", "must not be negative")
	}
	if c.BufferPool.MaxBuffersPerClass < 0 {
		return invalid("buffer_pool.max_buffers_per_class", "must not be negative")
	}

	for _, name := range sortedKeys(c.Caches) {
		cache := c.Caches[name]
		field := "caches." + name
		switch {
		case cache.Capacity <= 0:
			return invalid(field+".capacity", "must be positive")
		case cache.MinSize < 0 || cache.MinSize > cache.Capacity:
			return invalid(field+".min_size", "must be between 0 and capacity")
		case cache.MaxAge < 0:
			return invalid(field+".max_age", "must not be negative")
		}
	}

	for _, name := range sortedKeys(c.ObjectPools) {
		if c.ObjectPools[name].MaxRetained < 1 {
			return invalid("object_pools."+name+".max_retained", "must be positive")
		}
	}

	if c.Monitoring.Metrics.Enabled && !strings.HasPrefix(c.Monitoring.Metrics.Path, "/") {
		return invalid("monitoring.metrics.path", "must start with '/', got %q", c.Monitoring.Metrics.Path)
	}
	if c.Monitoring.Health.ErrorThreshold < 1 {
		return invalid("monitoring.health.error_threshold", "must be positive")
	}
	if c.Monitoring.Health.UnavailableThreshold < c.Monitoring.Health.ErrorThreshold {
		return invalid("monitoring.health.unavailable_threshold", "must not be below error_threshold")
	}

	return nil
}

// MaxBytes parses MaxAllocatedBytes ("64MB", "1.5GB", "1048576").
func (b BufferPoolConfig) MaxBytes() (int64, error) {
	return utils.ParseBytes(b.MaxAllocatedBytes)
}

func getenv(key string) string {
	return os.Getenv(EnvPrefix + key)
}

func envError(key, value string, cause error) error {
	return errors.Newf(errors.ErrCodeConfigLoad, "invalid value %q for %s%s", value, EnvPrefix, key).
		WithCause(cause)
}

func invalid(field, format string, args ...interface{}) error {
	return errors.NewError(errors.ErrCodeConfigValidation, field+": "+fmt.Sprintf(format, args...)).
		WithComponent("config").
		WithDetail("field", field)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
