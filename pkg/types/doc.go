/*
Package types defines the contracts shared between the framework's resource
primitives and the infrastructure that drives them.

Caches and pools live in internal/cache and internal/buffer. They never import
the maintenance driver or the metrics collector; instead they satisfy the
small interfaces declared here:

	Maintainer    periodic age-based cleanup (Maintain)
	CacheSource   exposes CacheStats for scraping
	PoolSource    exposes PoolStats for scraping

The maintenance driver (internal/maintenance) accepts any Maintainer and the
metrics collector (internal/metrics) accepts any CacheSource or PoolSource, so
a subsystem wires a cache into both by passing the same value twice.
*/
package types
