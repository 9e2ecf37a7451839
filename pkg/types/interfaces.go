package types

// Maintainer is implemented by caches and pools that support age-based
// eviction. Maintain returns the number of entries removed. Implementations
// must tolerate concurrent use with their ordinary operations but callers
// must not run Maintain concurrently with itself on the same instance.
type Maintainer interface {
	Maintain() int
}

// CacheSource exposes cache statistics.
type CacheSource interface {
	Stats() CacheStats
}

// PoolSource exposes pool statistics.
type PoolSource interface {
	Stats() PoolStats
}
