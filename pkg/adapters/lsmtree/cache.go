package lsmtree

import (
	"container/list"
	"sync"
)

// Cache implements a simple LRU cache over segment reads. Only live
// values are cached, never tombstones, and writers must invalidate the
// key so a cached segment read can never shadow a newer write.
type Cache struct {
	capacity int
	mu       sync.Mutex
	items    map[string]*list.Element
	order    *list.List
}

type cacheEntry struct {
	key   string
	value string
}

// NewCache creates a cache holding up to capacity entries. A zero or
// negative capacity disables caching.
func NewCache(capacity int) *Cache {
	return &Cache{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get retrieves a value from the cache.
func (c *Cache) Get(key string) (string, bool) {
	if c.capacity <= 0 {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		return elem.Value.(*cacheEntry).value, true
	}
	return "", false
}

// Put inserts or updates a key-value pair in the cache.
func (c *Cache) Put(key, value string) {
	if c.capacity <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		elem.Value.(*cacheEntry).value = value
		return
	}
	entry := &cacheEntry{key: key, value: value}
	c.items[key] = c.order.PushFront(entry)
	if c.order.Len() > c.capacity {
		// Remove least recently used element.
		if lru := c.order.Back(); lru != nil {
			c.order.Remove(lru)
			delete(c.items, lru.Value.(*cacheEntry).key)
		}
	}
}

// Invalidate drops the cached value for key, if present.
func (c *Cache) Invalidate(key string) {
	if c.capacity <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.order.Remove(elem)
		delete(c.items, key)
	}
}

// Len returns the current number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Clear drops all cached entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
}
