// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cache memoizes expensive external-call results with TTL expiry.
// Lookups are two-tier: a bounded in-process LRU map is checked first,
// falling back to a SQLite-backed store on miss. Deterministic keys make
// logically identical requests collide, which is the main cost control
// of the pipeline.
package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pdiddy/report-engine/pkg/types"
)

const (
	defaultMemoryEntries = 1000
	defaultTTL           = time.Hour
)

// Store is the slow-path tier contract. A nil Store leaves the cache
// memory-only; the production store is SQLite (see sqlite.go), but any
// key-value store with TTL semantics satisfies it.
type Store interface {
	// Get returns the value for key if present and unexpired. An expired
	// entry is evicted and reported absent.
	Get(key string, now time.Time) ([]byte, bool, error)

	// Set writes value under key with the given expiry instant.
	Set(key string, value []byte, expiresAt time.Time) error

	// CleanupExpired removes entries whose expiry precedes now and
	// returns the number removed.
	CleanupExpired(now time.Time) (int, error)

	// Len returns the number of stored entries, expired or not.
	Len() (int, error)

	Close() error
}

// entry is one memory-tier record.
type entry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// Cache is the two-tier TTL cache. It is safe for concurrent use; the
// memory tier is guarded by a single mutex and the slow path relies on
// the store's own synchronization.
type Cache struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	lru     *list.List // front = most recently used
	maxSize int
	ttl     time.Duration

	store Store

	// now is swappable so tests can control expiry.
	now func() time.Time
}

// New creates a Cache over the optional slow-path store.
func New(cfg types.CacheConfig, store Store) *Cache {
	maxSize := cfg.MemoryEntries
	if maxSize <= 0 {
		maxSize = defaultMemoryEntries
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{
		items:   make(map[string]*list.Element),
		lru:     list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		store:   store,
		now:     time.Now,
	}
}

// TTL returns the configured default time-to-live.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Key derives a deterministic cache key from call inputs. Parts are
// length-prefixed before hashing so ("ab","c") and ("a","bc") differ.
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		fmt.Fprintf(h, "%d:", len(p))
		h.Write([]byte(strings.TrimSpace(p)))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached value for key, or ok=false if absent or
// expired. A slow-path hit populates the memory tier.
func (c *Cache) Get(key string) ([]byte, bool) {
	now := c.now()

	c.mu.Lock()
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry)
		if now.Before(e.expiresAt) {
			c.lru.MoveToFront(el)
			v := e.value
			c.mu.Unlock()
			return v, true
		}
		// Lazy expiry: treat as absent and evict.
		c.removeLocked(el)
	}
	c.mu.Unlock()

	if c.store == nil {
		return nil, false
	}

	// Slow path outside the lock; external stores may block.
	value, ok, err := c.store.Get(key, now)
	if err != nil || !ok {
		return nil, false
	}

	c.mu.Lock()
	c.insertLocked(key, value, now.Add(c.ttl))
	c.mu.Unlock()
	return value, true
}

// Set writes value under key with ttl. A non-positive ttl uses the
// configured default.
func (c *Cache) Set(key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	expiresAt := c.now().Add(ttl)

	c.mu.Lock()
	c.insertLocked(key, value, expiresAt)
	c.mu.Unlock()

	if c.store == nil {
		return nil
	}
	if err := c.store.Set(key, value, expiresAt); err != nil {
		return fmt.Errorf("writing slow-path cache: %w", err)
	}
	return nil
}

// insertLocked adds or refreshes an entry, evicting the LRU tail past
// capacity. Caller holds mu.
func (c *Cache) insertLocked(key string, value []byte, expiresAt time.Time) {
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry)
		e.value = value
		e.expiresAt = expiresAt
		c.lru.MoveToFront(el)
		return
	}
	el := c.lru.PushFront(&entry{key: key, value: value, expiresAt: expiresAt})
	c.items[key] = el
	for c.lru.Len() > c.maxSize {
		c.removeLocked(c.lru.Back())
	}
}

func (c *Cache) removeLocked(el *list.Element) {
	c.lru.Remove(el)
	delete(c.items, el.Value.(*entry).key)
}

// CleanupExpired removes expired entries from both tiers and returns
// the total removed.
func (c *Cache) CleanupExpired() int {
	now := c.now()
	removed := 0

	c.mu.Lock()
	for el := c.lru.Back(); el != nil; {
		prev := el.Prev()
		if !now.Before(el.Value.(*entry).expiresAt) {
			c.removeLocked(el)
			removed++
		}
		el = prev
	}
	c.mu.Unlock()

	if c.store != nil {
		if n, err := c.store.CleanupExpired(now); err == nil {
			removed += n
		}
	}
	return removed
}

// Stats reports entry counts per tier. The store count is -1 when the
// slow path is absent or unreadable.
func (c *Cache) Stats() (memory, store int) {
	c.mu.Lock()
	memory = c.lru.Len()
	c.mu.Unlock()

	store = -1
	if c.store != nil {
		if n, err := c.store.Len(); err == nil {
			store = n
		}
	}
	return memory, store
}

// Close releases the slow-path store.
func (c *Cache) Close() error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}
