// Package memcache provides a bounded in-process implementation of the
// cache port for deployments that run without Redis. Capacity is enforced
// with LRU eviction and every entry carries a TTL, so nothing is cached
// forever.
package memcache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/iho/postings/internal/usecase"
)

var _ usecase.Cache = (*Cache)(nil)

// Cache is a size-bounded LRU cache with per-entry expiry.
type Cache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List // front = most recently used
}

type entry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// New creates a cache holding at most capacity entries.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 1024
	}

	return &Cache{
		capacity: capacity,
		entries:  make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

// Get retrieves a live value by key. Expired entries are removed lazily.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.entries[key]
	if !ok {
		return nil, usecase.ErrCacheMiss
	}

	e := element.Value.(*entry)
	if time.Now().After(e.expiresAt) {
		c.removeLocked(element)
		return nil, usecase.ErrCacheMiss
	}

	c.order.MoveToFront(element)

	value := make([]byte, len(e.value))
	copy(value, e.value)

	return value, nil
}

// Set stores a value, evicting the least recently used entry when full.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	c.mu.Lock()
	defer c.mu.Unlock()

	if element, ok := c.entries[key]; ok {
		e := element.Value.(*entry)
		e.value = stored
		e.expiresAt = time.Now().Add(ttl)
		c.order.MoveToFront(element)

		return nil
	}

	for len(c.entries) >= c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
	}

	element := c.order.PushFront(&entry{
		key:       key,
		value:     stored,
		expiresAt: time.Now().Add(ttl),
	})
	c.entries[key] = element

	return nil
}

// Delete removes keys.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range keys {
		if element, ok := c.entries[key]; ok {
			c.removeLocked(element)
		}
	}

	return nil
}

// Len returns the number of entries currently held, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

func (c *Cache) removeLocked(element *list.Element) {
	e := element.Value.(*entry)
	delete(c.entries, e.key)
	c.order.Remove(element)
}
