/*
Package config loads and validates the framework configuration.

Configuration is read from YAML and then overridden from the environment:

	cfg := config.NewDefault()
	if err := cfg.LoadFromFile("framework.yaml"); err != nil {
		return err
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

# File format

	global:
	  log_level: INFO        # TRACE, DEBUG, INFO, WARN, ERROR, FATAL
	  log_format: text       # text or json
	  metrics_port: 8080

	maintenance:
	  enabled: true
	  interval: 10s
	  history_size: 128

	buffer_pool:
	  max_allocated_bytes: 64MB
	  size_classes: [1024, 4096, 16384, 65536]
	  idle_max_age: 5m
	  max_buffers_per_class: 16384

	caches:
	  textures:
	    capacity: 67108864
	    use_sizing: true
	    min_size: 8388608
	    max_age: 10m

	object_pools:
	  packets:
	    max_retained: 1024

	monitoring:
	  metrics:
	    enabled: true
	    path: /metrics
	    namespace: vwsim
	    update_interval: 30s
	    custom_labels:
	      region: sim-1

# Environment

VWSIM_LOG_LEVEL, VWSIM_LOG_FORMAT, VWSIM_METRICS_PORT,
VWSIM_MAINTENANCE_ENABLED, VWSIM_MAINTENANCE_INTERVAL,
VWSIM_BUFFER_POOL_MAX_BYTES, VWSIM_BUFFER_POOL_IDLE_MAX_AGE and
VWSIM_METRICS_ENABLED override the matching fields. Durations use
time.ParseDuration syntax and byte sizes accept K, M, G and T suffixes.

Load errors carry errors.ErrCodeConfigLoad, save errors
errors.ErrCodeConfigSave and validation errors
errors.ErrCodeConfigValidation with the offending field in the message.
*/
package config
