package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/vwsim/framework/pkg/errors"
	"github.com/vwsim/framework/pkg/types"
)

// PurgeHandler is notified when an entry is evicted for capacity or age.
type PurgeHandler[K comparable, V any] func(key K, value V)

// LRUCache implements a thread-safe LRU cache with optional per-entry sizing
// and age-based eviction.
type LRUCache[K comparable, V any] struct {
	mu        sync.Mutex
	capacity  int64
	size      int64
	items     map[K]*list.Element
	evictList *list.List // front is most recently used

	config   CacheConfig
	handlers []PurgeHandler[K, V]

	stats types.CacheStats
	now   func() time.Time
}

// CacheConfig represents cache configuration
type CacheConfig struct {
	// Capacity is the maximum total size in units.
	Capacity int64 `yaml:"capacity"`
	// UseSizing makes each entry count its declared size; otherwise every
	// entry counts as one unit.
	UseSizing bool `yaml:"use_sizing"`
	// MinSize is the reserve that Maintain never shrinks the cache below.
	MinSize int64 `yaml:"min_size"`
	// MaxAge enables age-based eviction during Maintain. Zero disables it.
	MaxAge time.Duration `yaml:"max_age"`
}

// cacheItem represents an item in the cache
type cacheItem[K comparable, V any] struct {
	key        K
	value      V
	size       int64
	accessTime time.Time
}

// DefaultCacheConfig returns a 1024-entry unsized cache without aging.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{Capacity: 1024}
}

// Validate checks the configuration for consistency.
func (c *CacheConfig) Validate() error {
	switch {
	case c.Capacity <= 0:
		return errors.Newf(errors.ErrCodeInvalidConfig, "capacity must be positive, got %d", c.Capacity)
	case c.MinSize < 0:
		return errors.Newf(errors.ErrCodeInvalidConfig, "min_size must not be negative, got %d", c.MinSize)
	case c.MinSize > c.Capacity:
		return errors.Newf(errors.ErrCodeInvalidConfig, "min_size %d exceeds capacity %d", c.MinSize, c.Capacity)
	case c.MaxAge < 0:
		return errors.Newf(errors.ErrCodeInvalidConfig, "max_age must not be negative, got %s", c.MaxAge)
	}
	return nil
}

// NewLRUCache creates a new LRU cache. A nil config uses DefaultCacheConfig.
func NewLRUCache[K comparable, V any](config *CacheConfig) (*LRUCache[K, V], error) {
	if config == nil {
		config = DefaultCacheConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "invalid cache configuration").
			WithComponent("cache").
			WithOperation("NewLRUCache").
			WithCause(err)
	}

	return &LRUCache[K, V]{
		capacity:  config.Capacity,
		items:     make(map[K]*list.Element),
		evictList: list.New(),
		config:    *config,
		stats:     types.CacheStats{Capacity: config.Capacity},
		now:       time.Now,
	}, nil
}

// OnItemPurged subscribes fn to capacity and age evictions. Explicit Remove,
// Clear and replacement by Add do not notify. Handlers run synchronously on
// the evicting goroutine after the cache lock has been released, so they may
// call back into the cache.
func (c *LRUCache[K, V]) OnItemPurged(fn PurgeHandler[K, V]) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	// Copy on write so notify can iterate a snapshot without the lock.
	handlers := make([]PurgeHandler[K, V], len(c.handlers), len(c.handlers)+1)
	copy(handlers, c.handlers)
	c.handlers = append(handlers, fn)
}

// Get returns the value for key. A hit makes the entry most recently used
// and refreshes its access time.
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, exists := c.items[key]
	if !exists {
		c.stats.Misses++
		var zero V
		return zero, false
	}

	item := element.Value.(*cacheItem[K, V])
	item.accessTime = c.now()
	c.evictList.MoveToFront(element)
	c.stats.Hits++

	return item.value, true
}

// Peek returns the value for key without touching recency or statistics.
func (c *LRUCache[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if element, exists := c.items[key]; exists {
		return element.Value.(*cacheItem[K, V]).value, true
	}
	var zero V
	return zero, false
}

// Contains reports whether key is cached without affecting recency.
func (c *LRUCache[K, V]) Contains(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, exists := c.items[key]
	return exists
}

// Add stores value with a size of one unit. See AddSized.
func (c *LRUCache[K, V]) Add(key K, value V) bool {
	return c.AddSized(key, value, 1)
}

// AddSized inserts or replaces key. Any previous entry for key is removed
// first, then least recently used entries are evicted until the new entry
// fits or the cache is empty. An entry larger than the whole capacity is
// still stored. size is ignored when sizing is disabled; negative sizes
// count as zero. Returns whether key was already present.
func (c *LRUCache[K, V]) AddSized(key K, value V, size int64) bool {
	if !c.config.UseSizing {
		size = 1
	} else if size < 0 {
		size = 0
	}

	c.mu.Lock()

	existed := false
	if element, exists := c.items[key]; exists {
		c.removeElement(element)
		existed = true
	}

	var purged []*cacheItem[K, V]
	for c.size+size > c.capacity && c.evictList.Len() > 0 {
		purged = append(purged, c.removeElement(c.evictList.Back()))
		c.stats.Evictions++
	}

	c.items[key] = c.evictList.PushFront(&cacheItem[K, V]{
		key:        key,
		value:      value,
		size:       size,
		accessTime: c.now(),
	})
	c.size += size

	handlers := c.handlers
	c.mu.Unlock()

	notify(handlers, purged)
	return existed
}

// Remove deletes key. It does not notify purge handlers.
func (c *LRUCache[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, exists := c.items[key]
	if !exists {
		return false
	}
	c.removeElement(element)
	return true
}

// Clear clears all items from the cache
func (c *LRUCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[K]*list.Element)
	c.evictList.Init()
	c.size = 0
}

// Maintain evicts entries idle for longer than MaxAge, oldest first. It stops
// at the first entry that is young enough, or when evicting the next entry
// would take the cache below MinSize. Returns the number of entries purged.
func (c *LRUCache[K, V]) Maintain() int {
	if c.config.MaxAge <= 0 {
		return 0
	}

	c.mu.Lock()

	now := c.now()
	var purged []*cacheItem[K, V]
	for element := c.evictList.Back(); element != nil; {
		item := element.Value.(*cacheItem[K, V])
		if now.Sub(item.accessTime) <= c.config.MaxAge {
			break
		}
		if c.size-item.size < c.config.MinSize {
			break
		}
		prev := element.Prev()
		purged = append(purged, c.removeElement(element))
		c.stats.Expirations++
		element = prev
	}

	handlers := c.handlers
	c.mu.Unlock()

	notify(handlers, purged)
	return len(purged)
}

// Resize changes the capacity, evicting least recently used entries until
// the cache fits. Returns the number of entries evicted.
func (c *LRUCache[K, V]) Resize(capacity int64) (int, error) {
	if capacity <= 0 || capacity < c.config.MinSize {
		return 0, errors.Newf(errors.ErrCodeInvalidArgument, "invalid capacity %d", capacity).
			WithComponent("cache").
			WithOperation("Resize")
	}

	c.mu.Lock()

	c.capacity = capacity
	c.stats.Capacity = capacity

	var purged []*cacheItem[K, V]
	for c.size > c.capacity && c.evictList.Len() > 0 {
		purged = append(purged, c.removeElement(c.evictList.Back()))
		c.stats.Evictions++
	}

	handlers := c.handlers
	c.mu.Unlock()

	notify(handlers, purged)
	return len(purged), nil
}

// Len returns the number of entries.
func (c *LRUCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Size returns the current cache size
func (c *LRUCache[K, V]) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Capacity returns the configured capacity.
func (c *LRUCache[K, V]) Capacity() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capacity
}

// RemainingCapacity returns capacity minus size. It is negative while a
// single oversized entry is held.
func (c *LRUCache[K, V]) RemainingCapacity() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capacity - c.size
}

// Keys returns all keys from least to most recently used.
func (c *LRUCache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]K, 0, len(c.items))
	for element := c.evictList.Back(); element != nil; element = element.Prev() {
		keys = append(keys, element.Value.(*cacheItem[K, V]).key)
	}
	return keys
}

// Stats returns cache statistics
func (c *LRUCache[K, V]) Stats() types.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Entries = len(c.items)
	stats.Size = c.size
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	stats.Utilization = float64(c.size) / float64(c.capacity)
	return stats
}

// removeElement unlinks element from both structures. Caller holds c.mu.
func (c *LRUCache[K, V]) removeElement(element *list.Element) *cacheItem[K, V] {
	item := c.evictList.Remove(element).(*cacheItem[K, V])
	delete(c.items, item.key)
	c.size -= item.size
	return item
}

func notify[K comparable, V any](handlers []PurgeHandler[K, V], purged []*cacheItem[K, V]) {
	if len(handlers) == 0 {
		return
	}
	for _, item := range purged {
		for _, h := range handlers {
			h(item.key, item.value)
		}
	}
}
