package framework

import (
	"context"
	"sync"

	"github.com/vwsim/framework/internal/buffer"
	"github.com/vwsim/framework/internal/cache"
	"github.com/vwsim/framework/internal/config"
	"github.com/vwsim/framework/internal/maintenance"
	"github.com/vwsim/framework/internal/metrics"
	"github.com/vwsim/framework/pkg/errors"
	"github.com/vwsim/framework/pkg/health"
	"github.com/vwsim/framework/pkg/utils"
)

const (
	// BufferPoolName is the name the shared tiered pool is registered under.
	BufferPoolName = "buffers"
	// DefaultMaxRetained is the cap of object pools absent from configuration.
	DefaultMaxRetained = 1024
)

// Framework owns the shared buffer pool, the maintenance driver and the
// metrics collector, and builds named caches and pools wired to both.
type Framework struct {
	mu      sync.Mutex
	config  *config.Configuration
	logger  *utils.StructuredLogger
	buffers *buffer.TieredPool
	driver  *maintenance.Driver
	metrics *metrics.Collector
	health  *health.Tracker
	started bool
}

// New builds a framework from a validated configuration. A nil logger
// discards output.
func New(cfg *config.Configuration, logger *utils.StructuredLogger) (*Framework, error) {
	if cfg == nil {
		cfg = config.NewDefault()
	}
	if logger == nil {
		logger = utils.NopLogger()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:        cfg.Monitoring.Metrics.Enabled,
		Port:           cfg.Global.MetricsPort,
		Path:           cfg.Monitoring.Metrics.Path,
		Labels:         cfg.Monitoring.Metrics.CustomLabels,
		Namespace:      cfg.Monitoring.Metrics.Namespace,
		UpdateInterval: cfg.Monitoring.Metrics.UpdateInterval,
	}, logger)
	if err != nil {
		return nil, err
	}

	tracker, err := health.NewTracker(cfg.Monitoring.Health)
	if err != nil {
		return nil, err
	}
	collector.SetHealthTracker(tracker)

	interval := cfg.Maintenance.Interval
	if interval <= 0 {
		interval = maintenance.DefaultConfig().Interval
	}
	driver, err := maintenance.NewDriver(&maintenance.Config{
		Interval:    interval,
		HistorySize: cfg.Maintenance.HistorySize,
	}, collector, logger)
	if err != nil {
		return nil, err
	}
	driver.SetHealthTracker(tracker)

	maxBytes, err := cfg.BufferPool.MaxBytes()
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "invalid buffer pool size").WithCause(err)
	}
	buffers, err := buffer.NewTieredPool(&buffer.TieredPoolConfig{
		MaxAllocatedBytes:  maxBytes,
		SizeClasses:        cfg.BufferPool.SizeClasses,
		IdleMaxAge:         cfg.BufferPool.IdleMaxAge,
		MaxBuffersPerClass: cfg.BufferPool.MaxBuffersPerClass,
	}, logger)
	if err != nil {
		return nil, err
	}

	f := &Framework{
		config:  cfg,
		logger:  logger.WithComponent("framework"),
		buffers: buffers,
		driver:  driver,
		metrics: collector,
		health:  tracker,
	}
	if err := f.register(poolTarget(BufferPoolName), buffers.Maintain, cfg.BufferPool.IdleMaxAge > 0); err != nil {
		return nil, err
	}
	if err := collector.RegisterPool(BufferPoolName, buffers); err != nil {
		return nil, err
	}

	return f, nil
}

// Buffers returns the shared tiered byte buffer pool.
func (f *Framework) Buffers() *buffer.TieredPool { return f.buffers }

// Maintenance returns the maintenance driver.
func (f *Framework) Maintenance() *maintenance.Driver { return f.driver }

// Metrics returns the metrics collector.
func (f *Framework) Metrics() *metrics.Collector { return f.metrics }

// Health returns the tracker fed by maintenance outcomes.
func (f *Framework) Health() *health.Tracker { return f.health }

// Logger returns the framework logger.
func (f *Framework) Logger() *utils.StructuredLogger { return f.logger }

// Config returns the configuration the framework was built from.
func (f *Framework) Config() *config.Configuration { return f.config }

// Start starts the metrics server and, if enabled, the maintenance loop.
func (f *Framework) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.started {
		return errors.NewError(errors.ErrCodeAlreadyStarted, "framework already started").
			WithComponent("framework").
			WithOperation("Start")
	}

	if err := f.metrics.Start(ctx); err != nil {
		return err
	}
	if f.config.Maintenance.Enabled {
		if err := f.driver.Start(ctx); err != nil {
			_ = f.metrics.Stop(ctx)
			return err
		}
	}

	f.started = true
	f.logger.Info("framework started", utils.Fields{
		"maintenance": f.config.Maintenance.Enabled,
		"metrics":     f.metrics.Enabled(),
		"buffers":     f.buffers.String(),
	})
	return nil
}

// Stop stops maintenance and then the metrics server.
func (f *Framework) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.started {
		return errors.NewError(errors.ErrCodeNotStarted, "framework not started").
			WithComponent("framework").
			WithOperation("Stop")
	}
	f.started = false

	if f.driver.Running() {
		if err := f.driver.Stop(); err != nil {
			return err
		}
	}
	if err := f.metrics.Stop(ctx); err != nil {
		return err
	}

	f.logger.Info("framework stopped")
	return nil
}

// Release detaches a named cache or pool from maintenance and metrics.
func (f *Framework) Release(name string) {
	f.driver.Unregister(cacheTarget(name))
	f.driver.Unregister(poolTarget(name))
	f.metrics.Unregister(name)
}

// NewCache builds the cache configured under name, or a default cache if the
// configuration has no entry for it. Caches with a max age are registered
// for maintenance; every cache is exported as metrics.
func NewCache[K comparable, V any](f *Framework, name string) (*cache.LRUCache[K, V], error) {
	cfg := cache.DefaultCacheConfig()
	if c, ok := f.config.Caches[name]; ok {
		cfg = &cache.CacheConfig{
			Capacity:  c.Capacity,
			UseSizing: c.UseSizing,
			MinSize:   c.MinSize,
			MaxAge:    c.MaxAge,
		}
	} else {
		f.logger.Debug("no configuration for cache, using defaults", utils.Fields{"cache": name})
	}

	c, err := cache.NewLRUCache[K, V](cfg)
	if err != nil {
		return nil, err
	}

	if err := f.metrics.RegisterCache(name, c); err != nil {
		return nil, err
	}
	if err := f.register(cacheTarget(name), c.Maintain, cfg.MaxAge > 0); err != nil {
		f.metrics.Unregister(name)
		return nil, err
	}
	return c, nil
}

// NewObjectPool builds the object pool configured under name. Pools without
// configuration retain up to DefaultMaxRetained objects.
func NewObjectPool[T any](f *Framework, name string, factory func() T) (*buffer.ObjectPool[T], error) {
	maxRetained := DefaultMaxRetained
	if p, ok := f.config.ObjectPools[name]; ok {
		maxRetained = p.MaxRetained
	}

	pool, err := buffer.NewObjectPool(maxRetained, factory)
	if err != nil {
		return nil, err
	}
	if err := f.metrics.RegisterPool(name, pool); err != nil {
		return nil, err
	}
	return pool, nil
}

type maintainFunc func() int

func (fn maintainFunc) Maintain() int { return fn() }

func (f *Framework) register(target string, fn func() int, enabled bool) error {
	if !enabled {
		return nil
	}
	return f.driver.Register(target, maintainFunc(fn))
}

func cacheTarget(name string) string { return "cache/" + name }

func poolTarget(name string) string { return "pool/" + name }
