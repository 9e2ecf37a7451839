/*
Package metrics exports framework statistics to Prometheus.

# Overview

Collector owns a private Prometheus registry. Caches and pools register
themselves by name and are read at scrape time through the
types.CacheSource and types.PoolSource interfaces, so the hot paths of
those components never touch Prometheus. The maintenance driver pushes
per-target run durations into a histogram.

	┌─────────────┐
	│  Collector  │
	└──────┬──────┘
	       │
	   ┌───┴────────────────────────────┐
	   │                                │
	┌──▼───────────────┐      ┌─────────▼───────┐
	│ Registry         │      │ HTTP endpoints  │
	│ - source scrape  │      │ /metrics        │
	│ - maintenance    │      │ /health         │
	│   histogram      │      │ /debug/stats    │
	└──────────────────┘      └─────────────────┘

# Usage

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Port:      8080,
		Path:      "/metrics",
		Namespace: "vwsim",
	}, logger)
	if err != nil {
		return err
	}

	_ = collector.RegisterCache("textures", textureCache)
	_ = collector.RegisterPool("udp-buffers", bufferPool)

	if err := collector.Start(ctx); err != nil {
		return err
	}
	defer collector.Stop(ctx)

# Exported series

Per cache (label "cache"): cache_entries, cache_size_units,
cache_capacity_units, cache_hits_total, cache_misses_total,
cache_evictions_total, cache_expirations_total.

Per pool (label "pool"): pool_retained, pool_allocated_bytes,
pool_leases_total, pool_hits_total, pool_misses_total, pool_returns_total,
pool_dropped_total, pool_culled_total, pool_unserviceable_total.

Per maintenance target (label "target"): maintenance_duration_seconds,
maintenance_purged_total, maintenance_errors_total.

A disabled collector accepts registrations and records nothing.
*/
package metrics
