package types

// CacheStats represents cache performance statistics
type CacheStats struct {
	Entries     int     `json:"entries"`
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	Evictions   uint64  `json:"evictions"`
	Expirations uint64  `json:"expirations"`
	Size        int64   `json:"size"`
	Capacity    int64   `json:"capacity"`
	HitRate     float64 `json:"hit_rate"`
	Utilization float64 `json:"utilization"`
}

// PoolStats represents object and buffer pool statistics
type PoolStats struct {
	Retained       int64  `json:"retained"`
	Leases         uint64 `json:"leases"`
	Hits           uint64 `json:"hits"`
	Misses         uint64 `json:"misses"`
	Returns        uint64 `json:"returns"`
	Dropped        uint64 `json:"dropped"`
	Culled         uint64 `json:"culled"`
	Unserviceable  uint64 `json:"unserviceable"`
	AllocatedBytes int64  `json:"allocated_bytes"`
}

// HitRate returns Hits / Leases, or 0 before the first lease.
func (s PoolStats) HitRate() float64 {
	if s.Leases == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Leases)
}
