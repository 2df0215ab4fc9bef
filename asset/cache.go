// Package asset implements the bounded two-tier cache for decoded media
// payloads: a cost-weighted in-memory LRU tier backed by a persistent disk
// tier that survives process restarts.
package asset

import (
	"container/list"
	"context"
	"sync"

	"github.com/reelfeed/reelfeed/log"
	"github.com/reelfeed/reelfeed/metrics"
)

// Stats is a point-in-time snapshot of cache occupancy and traffic.
type Stats struct {
	Entries    int
	Bytes      int64
	MaxBytes   int64
	MaxEntries int
	Hits       uint64
	Misses     uint64
	Evictions  uint64
}

// entry is one memory-tier record. Recency is tracked by position in the
// cache's list: front is most recently used.
type entry struct {
	key     string
	payload []byte
	cost    int64
}

// Cache is the two-tier asset cache. All exported methods are safe for
// concurrent use; mutation of the shared tables is serialized by a single
// mutex while disk I/O happens outside the critical section.
type Cache struct {
	mu         sync.Mutex
	maxBytes   int64
	maxEntries int
	bytes      int64
	order      *list.List
	items      map[string]*list.Element
	hits       uint64
	misses     uint64
	evictions  uint64

	disk   *diskTier // nil when the disk tier is disabled
	diskWG sync.WaitGroup
}

// New creates a cache with the given memory budget. An empty dir disables
// the disk tier entirely.
func New(maxBytes int64, maxEntries int, dir string) *Cache {
	c := &Cache{
		maxBytes:   maxBytes,
		maxEntries: maxEntries,
		order:      list.New(),
		items:      make(map[string]*list.Element),
	}
	if dir != "" {
		c.disk = &diskTier{dir: dir}
	}
	return c
}

// Get returns the payload for key, consulting the memory tier first and
// promoting disk hits into memory. It never triggers network I/O; a total
// miss returns (nil, false). Disk errors degrade to a miss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	if el, ok := c.items[key]; ok {
		c.order.MoveToFront(el)
		payload := el.Value.(*entry).payload
		c.hits++
		c.mu.Unlock()
		metrics.CacheRead("memory", "hit")
		return payload, true
	}
	disk := c.disk
	c.mu.Unlock()
	metrics.CacheRead("memory", "miss")

	if disk == nil {
		c.miss()
		return nil, false
	}

	payload, ok := disk.read(ctx, key)
	if !ok {
		metrics.CacheRead("disk", "miss")
		c.miss()
		return nil, false
	}
	metrics.CacheRead("disk", "hit")

	// Promote without re-persisting: the disk tier already holds it.
	c.insert(key, payload)
	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
	return payload, true
}

// Put inserts the payload into the memory tier, evicting least-recently-used
// entries until both the byte budget and the entry count limit hold, then
// persists to the disk tier asynchronously. Disk write failures are logged
// and never propagated.
func (c *Cache) Put(ctx context.Context, key string, payload []byte) {
	c.insert(key, payload)

	if c.disk == nil {
		return
	}
	c.diskWG.Add(1)
	go func() {
		defer c.diskWG.Done()
		if err := c.disk.write(ctx, key, payload); err != nil {
			log.Warnf("asset cache: disk persist failed for %q: %v", key, err)
		}
	}()
}

// Remove drops the key from both tiers.
func (c *Cache) Remove(key string) {
	c.mu.Lock()
	if el, ok := c.items[key]; ok {
		c.evict(el)
	}
	disk := c.disk
	c.mu.Unlock()

	if disk != nil {
		disk.remove(key)
	}
}

// Clear drops every entry from both tiers.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.order.Init()
	c.items = make(map[string]*list.Element)
	c.bytes = 0
	disk := c.disk
	c.mu.Unlock()
	metrics.SetCacheMemoryBytes(0)

	if disk != nil {
		disk.clear()
	}
}

// Stats returns a snapshot of current occupancy and counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:    c.order.Len(),
		Bytes:      c.bytes,
		MaxBytes:   c.maxBytes,
		MaxEntries: c.maxEntries,
		Hits:       c.hits,
		Misses:     c.misses,
		Evictions:  c.evictions,
	}
}

// insert places the payload at the front of the recency order and trims the
// tier back inside its budgets.
func (c *Cache) insert(key string, payload []byte) {
	cost := int64(len(payload))

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		old := el.Value.(*entry)
		c.bytes += cost - old.cost
		old.payload = payload
		old.cost = cost
		c.order.MoveToFront(el)
	} else {
		el := c.order.PushFront(&entry{key: key, payload: payload, cost: cost})
		c.items[key] = el
		c.bytes += cost
	}

	for (c.bytes > c.maxBytes || c.order.Len() > c.maxEntries) && c.order.Len() > 1 {
		c.evict(c.order.Back())
	}
	// A single payload larger than the whole budget is not cacheable in memory.
	if c.bytes > c.maxBytes && c.order.Len() == 1 {
		c.evict(c.order.Back())
	}
	metrics.SetCacheMemoryBytes(c.bytes)
}

// evict removes one element. Caller holds c.mu.
func (c *Cache) evict(el *list.Element) {
	e := el.Value.(*entry)
	c.order.Remove(el)
	delete(c.items, e.key)
	c.bytes -= e.cost
	c.evictions++
	metrics.CacheEviction()
}

func (c *Cache) miss() {
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
}

// WaitDisk blocks until pending asynchronous disk writes settle.
func (c *Cache) WaitDisk() {
	c.diskWG.Wait()
}
