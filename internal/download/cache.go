package download

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/rainfall-import-service/internal/observability"
)

// CachedFetcher wraps a Fetcher with an in-memory LRU cache for documents
// that many stations share (water-year workbooks, monthly reports).
// Concurrent misses for the same URL share one download.
type CachedFetcher struct {
	inner     Fetcher
	cache     *lruCache
	cacheable func(url string) bool
	group     singleflight.Group
	metrics   *observability.Metrics
}

// NewCachedFetcher creates a cache decorator. Only URLs for which cacheable
// returns true are cached; a nil cacheable caches everything.
func NewCachedFetcher(inner Fetcher, maxEntries int, cacheable func(string) bool, metrics *observability.Metrics) *CachedFetcher {
	if cacheable == nil {
		cacheable = func(string) bool { return true }
	}
	return &CachedFetcher{
		inner:     inner,
		cache:     newLRUCache(maxEntries),
		cacheable: cacheable,
		metrics:   metrics,
	}
}

func (c *CachedFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if !c.cacheable(url) {
		return c.inner.Fetch(ctx, url)
	}
	if body, ok := c.cache.get(url); ok {
		c.metrics.DownloadCache.WithLabelValues("hit").Inc()
		return body, nil
	}
	c.metrics.DownloadCache.WithLabelValues("miss").Inc()

	v, err, _ := c.group.Do(url, func() (any, error) {
		body, err := c.inner.Fetch(ctx, url)
		if err != nil {
			return nil, err
		}
		// Failures are not cached so a missing document can appear later.
		c.cache.put(url, body)
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// lruCache is a simple thread-safe LRU cache of document bodies.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value []byte
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxEntries <= 0 {
		return
	}
	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
