package optimizer

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"github.com/hyperjump/shitsumon/internal/config"
)

// Strategy selects how the cache evicts and expires entries.
type Strategy string

const (
	// StrategyLRU evicts the least recently used entry and never expires entries.
	StrategyLRU Strategy = "lru"
	// StrategyTTL expires entries after the TTL and evicts the oldest insertion first.
	StrategyTTL Strategy = "ttl"
	// StrategyHybrid keeps LRU order and also expires entries after the TTL.
	StrategyHybrid Strategy = "hybrid"
)

// ParseStrategy parses a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyLRU, StrategyTTL, StrategyHybrid:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("unknown cache strategy %q", s)
	}
}

const defaultEntrySize = 1024

// Sizer reports the approximate memory held by a cached value.
type Sizer interface {
	Size() int
}

// CacheEntry is one cached value with its bookkeeping.
type CacheEntry[V any] struct {
	Key         string
	Value       V
	CreatedAt   time.Time
	ExpiresAt   time.Time
	LastAccess  time.Time
	AccessCount int
	Size        int
}

func (e *CacheEntry[V]) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// CacheStats is a point-in-time view of the cache counters.
type CacheStats struct {
	Strategy    Strategy `json:"strategy"`
	Entries     int      `json:"entries"`
	MaxEntries  int      `json:"max_entries"`
	MemoryBytes int64    `json:"memory_bytes"`
	MaxMemory   int64    `json:"max_memory_bytes"`
	Hits        uint64   `json:"hits"`
	Misses      uint64   `json:"misses"`
	Evictions   uint64   `json:"evictions"`
	Expirations uint64   `json:"expirations"`
	HitRate     float64  `json:"hit_rate"`
}

// AdaptiveCache is a bounded key/value cache with LRU, TTL or hybrid eviction and a
// soft memory ceiling. Safe for concurrent use.
type AdaptiveCache[V any] struct {
	strategy   Strategy
	ttl        time.Duration
	maxEntries int
	maxMemory  int64
	now        func() time.Time

	mu          sync.Mutex
	items       map[string]*list.Element
	order       *list.List // front is most recent
	memory      int64
	hits        uint64
	misses      uint64
	evictions   uint64
	expirations uint64
}

// NewAdaptiveCache creates a cache from cfg. Zero fields take the package defaults;
// an unknown strategy falls back to hybrid.
func NewAdaptiveCache[V any](cfg config.CacheConfig, now func() time.Time) *AdaptiveCache[V] {
	def := config.Default().Cache
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = def.MaxEntries
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.MaxMemoryMB <= 0 {
		cfg.MaxMemoryMB = def.MaxMemoryMB
	}
	strategy, err := ParseStrategy(cfg.Strategy)
	if err != nil {
		strategy = StrategyHybrid
	}
	if now == nil {
		now = time.Now
	}
	return &AdaptiveCache[V]{
		strategy:   strategy,
		ttl:        cfg.TTL,
		maxEntries: cfg.MaxEntries,
		maxMemory:  int64(cfg.MaxMemoryMB) << 20,
		now:        now,
		items:      make(map[string]*list.Element),
		order:      list.New(),
	}
}

// Get returns the value for key. Absent and expired keys are misses; a hit promotes
// the entry to most recently used.
func (c *AdaptiveCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, ok := c.items[key]
	if !ok {
		c.misses++
		return zero, false
	}
	entry := elem.Value.(*CacheEntry[V])
	now := c.now()
	if c.strategy != StrategyLRU && entry.expired(now) {
		c.removeLocked(elem)
		c.expirations++
		c.misses++
		return zero, false
	}
	entry.LastAccess = now
	entry.AccessCount++
	if c.strategy != StrategyTTL {
		c.order.MoveToFront(elem)
	}
	c.hits++
	return entry.Value, true
}

// Set stores value under key, replacing any existing entry, then evicts until the
// entry and memory limits hold.
func (c *AdaptiveCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	entry := &CacheEntry[V]{
		Key:        key,
		Value:      value,
		CreatedAt:  now,
		LastAccess: now,
		Size:       entrySize(key, value),
	}
	if c.strategy != StrategyLRU {
		entry.ExpiresAt = now.Add(c.ttl)
	}

	if elem, ok := c.items[key]; ok {
		c.memory -= int64(elem.Value.(*CacheEntry[V]).Size)
		elem.Value = entry
		c.order.MoveToFront(elem)
	} else {
		c.items[key] = c.order.PushFront(entry)
	}
	c.memory += int64(entry.Size)
	c.enforceLocked()
}

// Delete removes key and reports whether it was present.
func (c *AdaptiveCache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.items[key]
	if ok {
		c.removeLocked(elem)
	}
	return ok
}

// Clear drops every entry. Counters are kept.
func (c *AdaptiveCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
	c.memory = 0
}

// Len returns the number of entries, expired ones included until swept.
func (c *AdaptiveCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Sweep removes expired entries and, when memory is over the ceiling, evicts about a
// fifth of the remaining entries. It returns the number of entries removed.
func (c *AdaptiveCache[V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	if c.strategy != StrategyLRU {
		now := c.now()
		for elem := c.order.Back(); elem != nil; {
			prev := elem.Prev()
			if elem.Value.(*CacheEntry[V]).expired(now) {
				c.removeLocked(elem)
				c.expirations++
				removed++
			}
			elem = prev
		}
	}
	if c.memory > c.maxMemory {
		target := c.order.Len() - c.order.Len()/5
		for c.order.Len() > target {
			c.evictLocked()
			removed++
		}
	}
	return removed
}

// Resize changes the entry limit and evicts when the cache is now over it.
func (c *AdaptiveCache[V]) Resize(maxEntries int) {
	if maxEntries <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxEntries = maxEntries
	c.enforceLocked()
}

// Stats returns the current counters.
func (c *AdaptiveCache[V]) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := CacheStats{
		Strategy:    c.strategy,
		Entries:     c.order.Len(),
		MaxEntries:  c.maxEntries,
		MemoryBytes: c.memory,
		MaxMemory:   c.maxMemory,
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expirations: c.expirations,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

func (c *AdaptiveCache[V]) enforceLocked() {
	for c.order.Len() > c.maxEntries || (c.memory > c.maxMemory && c.order.Len() > 1) {
		c.evictLocked()
	}
}

// evictLocked drops one entry: an expired one when the strategy expires entries,
// otherwise the back of the list.
func (c *AdaptiveCache[V]) evictLocked() {
	if c.strategy == StrategyHybrid {
		now := c.now()
		for elem := c.order.Back(); elem != nil; elem = elem.Prev() {
			if elem.Value.(*CacheEntry[V]).expired(now) {
				c.removeLocked(elem)
				c.expirations++
				return
			}
		}
	}
	if back := c.order.Back(); back != nil {
		c.removeLocked(back)
		c.evictions++
	}
}

func (c *AdaptiveCache[V]) removeLocked(elem *list.Element) {
	entry := elem.Value.(*CacheEntry[V])
	c.order.Remove(elem)
	delete(c.items, entry.Key)
	c.memory -= int64(entry.Size)
}

func entrySize[V any](key string, value V) int {
	if s, ok := any(value).(Sizer); ok {
		return len(key) + s.Size()
	}
	return len(key) + defaultEntrySize
}
