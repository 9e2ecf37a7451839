package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vwsim/framework/pkg/errors"
	"github.com/vwsim/framework/pkg/health"
	"github.com/vwsim/framework/pkg/types"
	"github.com/vwsim/framework/pkg/utils"
)

// Collector exports cache, pool and maintenance metrics to Prometheus
type Collector struct {
	mu       sync.RWMutex
	config   *Config
	registry *prometheus.Registry
	logger   *utils.StructuredLogger

	caches map[string]types.CacheSource
	pools  map[string]types.PoolSource
	health *health.Tracker

	// Prometheus metrics
	maintenanceDuration *prometheus.HistogramVec
	maintenancePurged   *prometheus.CounterVec
	maintenanceErrors   *prometheus.CounterVec
	uptime              prometheus.Gauge

	startTime time.Time

	// HTTP server for metrics endpoint
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
}

// Config represents metrics configuration
type Config struct {
	Enabled        bool              `yaml:"enabled"`
	Port           int               `yaml:"port"`
	Path           string            `yaml:"path"`
	Labels         map[string]string `yaml:"labels"`
	Namespace      string            `yaml:"namespace"`
	Subsystem      string            `yaml:"subsystem"`
	UpdateInterval time.Duration     `yaml:"update_interval"`
}

// DefaultConfig returns the default metrics configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:        true,
		Port:           8080,
		Path:           "/metrics",
		Namespace:      "vwsim",
		UpdateInterval: 30 * time.Second,
		Labels:         make(map[string]string),
	}
}

// Snapshot is the JSON document served on /debug/stats.
type Snapshot struct {
	Uptime string                      `json:"uptime"`
	Caches map[string]types.CacheStats `json:"caches"`
	Pools  map[string]types.PoolStats  `json:"pools"`
}

// NewCollector creates a new metrics collector
func NewCollector(config *Config, logger *utils.StructuredLogger) (*Collector, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = utils.NopLogger()
	}

	collector := &Collector{
		config:    config,
		logger:    logger.WithComponent("metrics"),
		caches:    make(map[string]types.CacheSource),
		pools:     make(map[string]types.PoolSource),
		startTime: time.Now(),
	}
	if !config.Enabled {
		return collector, nil
	}

	collector.registry = prometheus.NewRegistry()
	collector.initMetrics()

	if err := collector.registerMetrics(); err != nil {
		return nil, errors.NewError(errors.ErrCodeInternalError, "failed to register metrics").
			WithComponent("metrics").
			WithOperation("NewCollector").
			WithCause(err)
	}

	return collector, nil
}

// SetHealthTracker makes /health report the tracker's overall state.
func (c *Collector) SetHealthTracker(tracker *health.Tracker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.health = tracker
}

// Enabled reports whether metrics are collected.
func (c *Collector) Enabled() bool {
	return c.config.Enabled
}

// Registry returns the underlying registry, nil when disabled.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RegisterCache exposes a cache's statistics under name.
func (c *Collector) RegisterCache(name string, source types.CacheSource) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.caches[name]; exists {
		return errors.Newf(errors.ErrCodeDuplicateRegistration, "cache %q already registered", name).
			WithComponent("metrics").
			WithOperation("RegisterCache")
	}
	c.caches[name] = source
	return nil
}

// RegisterPool exposes a pool's statistics under name.
func (c *Collector) RegisterPool(name string, source types.PoolSource) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.pools[name]; exists {
		return errors.Newf(errors.ErrCodeDuplicateRegistration, "pool %q already registered", name).
			WithComponent("metrics").
			WithOperation("RegisterPool")
	}
	c.pools[name] = source
	return nil
}

// Unregister removes any cache or pool registered under name.
func (c *Collector) Unregister(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.caches, name)
	delete(c.pools, name)
}

// RecordMaintenance records one Maintain call on target.
func (c *Collector) RecordMaintenance(target string, duration time.Duration, purged int) {
	if !c.config.Enabled {
		return
	}

	c.maintenanceDuration.With(prometheus.Labels{"target": target}).Observe(duration.Seconds())
	if purged > 0 {
		c.maintenancePurged.With(prometheus.Labels{"target": target}).Add(float64(purged))
	}
}

// RecordMaintenanceError records a failed Maintain call on target.
func (c *Collector) RecordMaintenanceError(target string) {
	if !c.config.Enabled {
		return
	}

	c.maintenanceErrors.With(prometheus.Labels{"target": target}).Inc()
}

// Snapshot returns the current statistics of every registered source.
func (c *Collector) Snapshot() Snapshot {
	caches, pools := c.sources()

	snap := Snapshot{
		Uptime: time.Since(c.startTime).Round(time.Second).String(),
		Caches: make(map[string]types.CacheStats, len(caches)),
		Pools:  make(map[string]types.PoolStats, len(pools)),
	}
	for name, source := range caches {
		snap.Caches[name] = source.Stats()
	}
	for name, source := range pools {
		snap.Pools[name] = source.Stats()
	}
	return snap
}

// Handler returns the HTTP handler serving metrics, health and debug output.
func (c *Collector) Handler() http.Handler {
	mux := http.NewServeMux()
	if c.registry != nil {
		mux.Handle(c.config.Path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}))
	}
	mux.HandleFunc("/health", c.healthHandler)
	mux.HandleFunc("/debug/stats", c.debugStatsHandler)
	return mux
}

// Start starts the metrics collection server
func (c *Collector) Start(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.server != nil {
		return errors.NewError(errors.ErrCodeAlreadyStarted, "metrics server already started").
			WithComponent("metrics").
			WithOperation("Start")
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", c.config.Port))
	if err != nil {
		return errors.Newf(errors.ErrCodeInternalError, "failed to listen on port %d", c.config.Port).
			WithComponent("metrics").
			WithOperation("Start").
			WithCause(err)
	}

	c.listener = listener
	c.server = &http.Server{
		Handler:           c.Handler(),
		ReadHeaderTimeout: 30 * time.Second, // Prevent Slowloris attacks
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Start server in background
	go func(server *http.Server) {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			c.logger.Error("metrics server failed", utils.Fields{"error": err})
		}
	}(c.server)

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	go c.updateLoop(loopCtx)

	c.logger.Info("metrics server started", utils.Fields{
		"addr": listener.Addr().String(),
		"path": c.config.Path,
	})
	return nil
}

// Addr returns the address the server listens on, or "" if not started.
func (c *Collector) Addr() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.listener == nil {
		return ""
	}
	return c.listener.Addr().String()
}

// Stop stops the metrics collection server
func (c *Collector) Stop(ctx context.Context) error {
	c.mu.Lock()
	server, cancel := c.server, c.cancel
	c.server, c.listener, c.cancel = nil, nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if server != nil {
		return server.Shutdown(ctx)
	}
	return nil
}

// Helper methods

// sourceCollector turns registered cache and pool statistics into const
// metrics on every scrape.
type sourceCollector struct {
	c *Collector

	cacheEntries     *prometheus.Desc
	cacheSize        *prometheus.Desc
	cacheCapacity    *prometheus.Desc
	cacheHits        *prometheus.Desc
	cacheMisses      *prometheus.Desc
	cacheEvictions   *prometheus.Desc
	cacheExpirations *prometheus.Desc

	poolRetained      *prometheus.Desc
	poolAllocated     *prometheus.Desc
	poolLeases        *prometheus.Desc
	poolHits          *prometheus.Desc
	poolMisses        *prometheus.Desc
	poolReturns       *prometheus.Desc
	poolDropped       *prometheus.Desc
	poolCulled        *prometheus.Desc
	poolUnserviceable *prometheus.Desc
}

func newSourceCollector(c *Collector) *sourceCollector {
	labels := prometheus.Labels(c.config.Labels)
	desc := func(name, help, label string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(c.config.Namespace, c.config.Subsystem, name),
			help, []string{label}, labels)
	}

	return &sourceCollector{
		c: c,

		cacheEntries:     desc("cache_entries", "Number of entries held by the cache", "cache"),
		cacheSize:        desc("cache_size_units", "Occupied cache size in sizing units", "cache"),
		cacheCapacity:    desc("cache_capacity_units", "Configured cache capacity in sizing units", "cache"),
		cacheHits:        desc("cache_hits_total", "Total number of cache hits", "cache"),
		cacheMisses:      desc("cache_misses_total", "Total number of cache misses", "cache"),
		cacheEvictions:   desc("cache_evictions_total", "Total number of capacity evictions", "cache"),
		cacheExpirations: desc("cache_expirations_total", "Total number of age evictions", "cache"),

		poolRetained:      desc("pool_retained", "Number of idle objects held for reuse", "pool"),
		poolAllocated:     desc("pool_allocated_bytes", "Bytes held idle by the pool", "pool"),
		poolLeases:        desc("pool_leases_total", "Total number of leases", "pool"),
		poolHits:          desc("pool_hits_total", "Total number of leases served from the pool", "pool"),
		poolMisses:        desc("pool_misses_total", "Total number of leases that allocated", "pool"),
		poolReturns:       desc("pool_returns_total", "Total number of returns", "pool"),
		poolDropped:       desc("pool_dropped_total", "Total number of returns discarded", "pool"),
		poolCulled:        desc("pool_culled_total", "Total number of idle objects culled", "pool"),
		poolUnserviceable: desc("pool_unserviceable_total", "Total number of requests no size class could serve", "pool"),
	}
}

func (s *sourceCollector) descs() []*prometheus.Desc {
	return []*prometheus.Desc{
		s.cacheEntries, s.cacheSize, s.cacheCapacity, s.cacheHits, s.cacheMisses,
		s.cacheEvictions, s.cacheExpirations,
		s.poolRetained, s.poolAllocated, s.poolLeases, s.poolHits, s.poolMisses,
		s.poolReturns, s.poolDropped, s.poolCulled, s.poolUnserviceable,
	}
}

// Describe implements prometheus.Collector for the registered sources.
func (s *sourceCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, desc := range s.descs() {
		ch <- desc
	}
}

// Collect implements prometheus.Collector. Statistics are read at scrape
// time so registered sources need no push loop.
func (s *sourceCollector) Collect(ch chan<- prometheus.Metric) {
	caches, pools := s.c.sources()

	for name, source := range caches {
		st := source.Stats()
		ch <- prometheus.MustNewConstMetric(s.cacheEntries, prometheus.GaugeValue, float64(st.Entries), name)
		ch <- prometheus.MustNewConstMetric(s.cacheSize, prometheus.GaugeValue, float64(st.Size), name)
		ch <- prometheus.MustNewConstMetric(s.cacheCapacity, prometheus.GaugeValue, float64(st.Capacity), name)
		ch <- prometheus.MustNewConstMetric(s.cacheHits, prometheus.CounterValue, float64(st.Hits), name)
		ch <- prometheus.MustNewConstMetric(s.cacheMisses, prometheus.CounterValue, float64(st.Misses), name)
		ch <- prometheus.MustNewConstMetric(s.cacheEvictions, prometheus.CounterValue, float64(st.Evictions), name)
		ch <- prometheus.MustNewConstMetric(s.cacheExpirations, prometheus.CounterValue, float64(st.Expirations), name)
	}

	for name, source := range pools {
		st := source.Stats()
		ch <- prometheus.MustNewConstMetric(s.poolRetained, prometheus.GaugeValue, float64(st.Retained), name)
		ch <- prometheus.MustNewConstMetric(s.poolAllocated, prometheus.GaugeValue, float64(st.AllocatedBytes), name)
		ch <- prometheus.MustNewConstMetric(s.poolLeases, prometheus.CounterValue, float64(st.Leases), name)
		ch <- prometheus.MustNewConstMetric(s.poolHits, prometheus.CounterValue, float64(st.Hits), name)
		ch <- prometheus.MustNewConstMetric(s.poolMisses, prometheus.CounterValue, float64(st.Misses), name)
		ch <- prometheus.MustNewConstMetric(s.poolReturns, prometheus.CounterValue, float64(st.Returns), name)
		ch <- prometheus.MustNewConstMetric(s.poolDropped, prometheus.CounterValue, float64(st.Dropped), name)
		ch <- prometheus.MustNewConstMetric(s.poolCulled, prometheus.CounterValue, float64(st.Culled), name)
		ch <- prometheus.MustNewConstMetric(s.poolUnserviceable, prometheus.CounterValue, float64(st.Unserviceable), name)
	}
}

func (c *Collector) initMetrics() {
	labels := prometheus.Labels(c.config.Labels)

	c.maintenanceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "maintenance_duration_seconds",
			Help:        "Duration of Maintain calls in seconds",
			Buckets:     prometheus.ExponentialBuckets(0.00001, 4, 10), // 10us to ~2.6s
			ConstLabels: labels,
		},
		[]string{"target"},
	)

	c.maintenancePurged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "maintenance_purged_total",
			Help:        "Total number of entries or buffers removed by maintenance",
			ConstLabels: labels,
		},
		[]string{"target"},
	)

	c.maintenanceErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "maintenance_errors_total",
			Help:        "Total number of failed Maintain calls",
			ConstLabels: labels,
		},
		[]string{"target"},
	)

	c.uptime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "uptime_seconds",
			Help:        "Seconds since the collector was created",
			ConstLabels: labels,
		},
	)
}

func (c *Collector) registerMetrics() error {
	metrics := []prometheus.Collector{
		c.maintenanceDuration,
		c.maintenancePurged,
		c.maintenanceErrors,
		c.uptime,
		newSourceCollector(c),
	}

	for _, metric := range metrics {
		if err := c.registry.Register(metric); err != nil {
			return err
		}
	}

	return nil
}

// sources copies the registrations so Stats is called without c.mu held.
func (c *Collector) sources() (map[string]types.CacheSource, map[string]types.PoolSource) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	caches := make(map[string]types.CacheSource, len(c.caches))
	for name, source := range c.caches {
		caches[name] = source
	}
	pools := make(map[string]types.PoolSource, len(c.pools))
	for name, source := range c.pools {
		pools[name] = source
	}
	return caches, pools
}

func (c *Collector) updateLoop(ctx context.Context) {
	interval := c.config.UpdateInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.updatePeriodicMetrics()
		}
	}
}

func (c *Collector) updatePeriodicMetrics() {
	c.uptime.Set(time.Since(c.startTime).Seconds())

	if !c.logger.IsEnabled(utils.DEBUG) {
		return
	}
	snap := c.Snapshot()
	names := make([]string, 0, len(snap.Pools))
	for name := range snap.Pools {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		st := snap.Pools[name]
		c.logger.Debug("pool summary", utils.Fields{
			"pool":      name,
			"retained":  st.Retained,
			"hit_rate":  fmt.Sprintf("%.2f", st.HitRate()),
			"allocated": utils.FormatBytes(st.AllocatedBytes),
		})
	}
}

// HTTP handlers

type healthReport struct {
	Status     health.HealthState       `json:"status"`
	Service    string                   `json:"service"`
	Components []health.ComponentHealth `json:"components,omitempty"`
}

func (c *Collector) healthHandler(w http.ResponseWriter, r *http.Request) {
	c.mu.RLock()
	tracker := c.health
	c.mu.RUnlock()

	report := healthReport{Status: health.StateHealthy, Service: "vwsim-framework"}
	if tracker != nil {
		report.Status = tracker.GetOverallHealth()
		report.Components = tracker.GetAllComponents()
	}

	w.Header().Set("Content-Type", "application/json")
	if report.Status == health.StateUnavailable {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(report) // Ignore write error for health check
}

func (c *Collector) debugStatsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c.Snapshot()); err != nil {
		c.logger.Warn("failed to encode debug stats", utils.Fields{"error": err})
	}
}
