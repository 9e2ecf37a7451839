/*
Package cache provides the framework's bounded key/value cache.

LRUCache is a generic least-recently-used cache guarded by a single mutex.
Entries live in a doubly linked list ordered by recency (front is most
recently used) plus a map from key to list element, so lookup, promotion,
insertion and removal are all O(1).

# Eviction

Two independent policies apply:

Capacity (reactive):
- Add evicts from the least recently used end until the new entry fits
- An entry larger than the whole capacity is still stored once the cache is empty
- With UseSizing every entry declares its own size, otherwise each counts as one

Age (proactive):
- Enabled by a non-zero MaxAge
- Runs only when Maintain is called, normally from internal/maintenance
- Walks from the oldest entry and stops at the first entry young enough to keep
- Never shrinks the cache below MinSize

# Purge notifications

Subscribers registered with OnItemPurged see every capacity or age eviction.
They run on the goroutine that caused the eviction, after the lock has been
released. Remove, Clear and replacing an existing key are not purges.

# Usage

	textures, err := cache.NewLRUCache[uuid, *TextureMeta](&cache.CacheConfig{
		Capacity:  64 << 20,
		UseSizing: true,
		MinSize:   8 << 20,
		MaxAge:    10 * time.Minute,
	})
	if err != nil {
		return err
	}
	textures.OnItemPurged(func(id uuid, meta *TextureMeta) {
		meta.Release()
	})

	textures.AddSized(id, meta, meta.Bytes())
	if meta, ok := textures.Get(id); ok {
		// ...
	}
*/
package cache
