// Package cache provides an in-memory TTL cache for idempotent tool
// results (field catalogs, metric lists, completed range queries).
// Entries expire lazily and the store is bounded with LRU eviction.
package cache

import (
	"strings"
	"sync"
	"time"
)

// DefaultMaxSize bounds a cache instance when no explicit size is given.
const DefaultMaxSize = 1000

type entry struct {
	value      interface{}
	expiresAt  time.Time
	lastAccess time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

// ttlOverride is an ordered (prefix, ttl) pair. Overrides are checked in
// insertion order and the first matching prefix wins; order-dependence is
// part of the contract.
type ttlOverride struct {
	prefix string
	ttl    time.Duration
}

// Cache is a TTL key-value store with per-key-prefix TTL overrides.
//
// Tool invocations run on separate goroutines under the MCP server, so
// unlike a single-threaded cooperative runtime this store needs a real
// mutex.
type Cache struct {
	mu         sync.Mutex
	defaultTTL time.Duration
	maxSize    int
	entries    map[string]*entry
	overrides  []ttlOverride
}

// New creates a cache with the given default TTL and DefaultMaxSize.
func New(defaultTTL time.Duration) *Cache {
	return NewWithSize(defaultTTL, DefaultMaxSize)
}

// NewWithSize creates a cache with an explicit entry bound.
func NewWithSize(defaultTTL time.Duration, maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Cache{
		defaultTTL: defaultTTL,
		maxSize:    maxSize,
		entries:    make(map[string]*entry),
	}
}

// SetTTLOverride registers a TTL for keys matching a prefix. Overrides
// are evaluated in registration order, first match wins.
func (c *Cache) SetTTLOverride(prefix string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overrides = append(c.overrides, ttlOverride{prefix: prefix, ttl: ttl})
}

func (c *Cache) ttlFor(key string) time.Duration {
	for _, o := range c.overrides {
		if strings.HasPrefix(key, o.prefix) {
			return o.ttl
		}
	}
	return c.defaultTTL
}

// Get returns the cached value for key, or (nil, false) when absent or
// expired. Expired entries are removed on access.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	now := time.Now()
	if e.expired(now) {
		delete(c.entries, key)
		return nil, false
	}
	e.lastAccess = now
	return e.value, true
}

// Set stores a value under key using the key's resolved TTL. When the
// store is full, expired entries are dropped first, then the least
// recently used entry.
func (c *Cache) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictExpiredLocked(now)
		if len(c.entries) >= c.maxSize {
			c.evictLRULocked()
		}
	}

	c.entries[key] = &entry{
		value:      value,
		expiresAt:  now.Add(c.ttlFor(key)),
		lastAccess: now,
	}
}

// Delete removes a key. Deleting an absent key is a no-op.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

// Has reports whether key exists and has not expired.
func (c *Cache) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Keys returns all unexpired keys.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	keys := make([]string, 0, len(c.entries))
	for k, e := range c.entries {
		if !e.expired(now) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Len returns the number of stored entries, including any not yet
// lazily evicted.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) evictExpiredLocked(now time.Time) {
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
		}
	}
}

func (c *Cache) evictLRULocked() {
	var oldestKey string
	var oldestTime time.Time
	first := true
	for k, e := range c.entries {
		if first || e.lastAccess.Before(oldestTime) {
			oldestKey = k
			oldestTime = e.lastAccess
			first = false
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// TTLOverride is an ordered tool-name-to-TTL pair from configuration.
type TTLOverride struct {
	Tool       string
	TTLSeconds int
}

// AccessRecorder receives cache hit and miss observations.
type AccessRecorder interface {
	RecordCacheAccess(toolName string, hit bool)
}

// Manager owns one cache instance per tool name for the process
// lifetime. It is created once at server construction and passed into
// each tool façade; there are no package-level singletons.
type Manager struct {
	mu         sync.Mutex
	defaultTTL time.Duration
	overrides  []TTLOverride
	caches     map[string]*Cache
	enabled    bool
	recorder   AccessRecorder
}

// NewManager creates a cache manager. Overrides are matched by exact
// tool name in configured order, first match wins.
func NewManager(defaultTTL time.Duration, overrides []TTLOverride, enabled bool) *Manager {
	return &Manager{
		defaultTTL: defaultTTL,
		overrides:  overrides,
		caches:     make(map[string]*Cache),
		enabled:    enabled,
	}
}

// SetRecorder attaches a hit/miss recorder. Safe to leave unset.
func (m *Manager) SetRecorder(r AccessRecorder) {
	m.mu.Lock()
	m.recorder = r
	m.mu.Unlock()
}

// RecordAccess forwards a lookup outcome to the recorder, if any.
func (m *Manager) RecordAccess(toolName string, hit bool) {
	m.mu.Lock()
	r := m.recorder
	m.mu.Unlock()
	if r != nil {
		r.RecordCacheAccess(toolName, hit)
	}
}

// Enabled reports whether caching is active. Tools consult this before
// reading or writing; a disabled manager still hands out cache
// instances so call sites stay uniform.
func (m *Manager) Enabled() bool { return m.enabled }

// GetCache returns the cache for a tool, creating it on first use with
// the tool's configured TTL.
func (m *Manager) GetCache(toolName string) *Cache {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.caches[toolName]; ok {
		return c
	}

	ttl := m.defaultTTL
	for _, o := range m.overrides {
		if o.Tool == toolName {
			ttl = time.Duration(o.TTLSeconds) * time.Second
			break
		}
	}
	c := New(ttl)
	m.caches[toolName] = c
	return c
}

// ClearAll empties every cache.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.caches {
		c.Clear()
	}
}
