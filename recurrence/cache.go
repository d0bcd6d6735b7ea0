package recurrence

import (
	"container/list"
	"strings"
	"sync"
	"time"

	"github.com/samber/mo"
)

// CacheConfig sizes a RecurrenceCache.
type CacheConfig struct {
	TTL             time.Duration
	MaxEntries      int
	CleanupInterval time.Duration
}

// DefaultCacheConfig keeps up to 1000 expansions for 15 minutes.
var DefaultCacheConfig = CacheConfig{
	TTL:             15 * time.Minute,
	MaxEntries:      1000,
	CleanupInterval: 5 * time.Minute,
}

// CacheKey identifies an expansion request: everything that can change
// its answer.
type CacheKey struct {
	Operation       string
	Rule            Rule
	Start           time.Time
	EndOfRecurrence mo.Option[time.Time]
	Location        *time.Location
	RangeStart      time.Time
	RangeEnd        time.Time
}

// String renders the key with the params in canonical order, so
// "byhour:9;count:3" and "count:3;byhour:9" share a slot.
func (k CacheKey) String() string {
	var b strings.Builder
	b.WriteString(k.Operation)
	b.WriteByte('|')
	b.WriteString(k.Rule.Frequency.String())
	b.WriteByte('|')
	b.WriteString(k.Rule.ParsedParams().String())
	b.WriteByte('|')
	b.WriteString(k.Start.Format(time.RFC3339Nano))
	b.WriteByte('|')
	if eor, ok := k.EndOfRecurrence.Get(); ok {
		b.WriteString(eor.Format(time.RFC3339Nano))
	}
	b.WriteByte('|')
	if k.Location != nil {
		b.WriteString(k.Location.String())
	}
	b.WriteByte('|')
	b.WriteString(k.RangeStart.Format(time.RFC3339Nano))
	b.WriteByte('|')
	b.WriteString(k.RangeEnd.Format(time.RFC3339Nano))
	return b.String()
}

type cacheEntry struct {
	key       string
	value     any
	expiresAt time.Time
}

// RecurrenceCache memoizes expansions with a TTL and least-recently-used
// eviction. A background sweep drops expired entries until Close.
type RecurrenceCache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List // front is most recently used
	ttl     time.Duration
	max     int
	now     func() time.Time

	stop      chan struct{}
	closeOnce sync.Once
}

func NewRecurrenceCache(config CacheConfig) *RecurrenceCache {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultCacheConfig.CleanupInterval
	}
	c := &RecurrenceCache{
		entries: make(map[string]*list.Element),
		lru:     list.New(),
		ttl:     config.TTL,
		max:     config.MaxEntries,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go c.sweepEvery(config.CleanupInterval)
	return c
}

// Get returns the value stored under key unless it has expired.
func (c *RecurrenceCache) Get(key CacheKey) (any, bool) {
	k := key.String()

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[k]
	if !ok {
		return nil, false
	}
	entry := elem.Value.(*cacheEntry)
	if c.now().After(entry.expiresAt) {
		c.remove(elem)
		return nil, false
	}
	c.lru.MoveToFront(elem)
	return entry.value, true
}

// Set stores value under key, evicting the least recently used entries
// past MaxEntries.
func (c *RecurrenceCache) Set(key CacheKey, value any) {
	k := key.String()
	expires := c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[k]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.value, entry.expiresAt = value, expires
		c.lru.MoveToFront(elem)
		return
	}
	c.entries[k] = c.lru.PushFront(&cacheEntry{key: k, value: value, expiresAt: expires})

	for c.max > 0 && c.lru.Len() > c.max {
		c.remove(c.lru.Back())
	}
}

func (c *RecurrenceCache) remove(elem *list.Element) {
	c.lru.Remove(elem)
	delete(c.entries, elem.Value.(*cacheEntry).key)
}

// sweep drops every expired entry. Callers hold mu.
func (c *RecurrenceCache) sweep() {
	now := c.now()
	for elem := c.lru.Back(); elem != nil; {
		prev := elem.Prev()
		if now.After(elem.Value.(*cacheEntry).expiresAt) {
			c.remove(elem)
		}
		elem = prev
	}
}

func (c *RecurrenceCache) sweepEvery(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			c.sweep()
			c.mu.Unlock()
		case <-c.stop:
			return
		}
	}
}

// Close stops the sweep and empties the cache. Calling it twice is fine.
func (c *RecurrenceCache) Close() {
	c.closeOnce.Do(func() { close(c.stop) })

	c.mu.Lock()
	c.entries = make(map[string]*list.Element)
	c.lru.Init()
	c.mu.Unlock()
}

// CacheStats is a snapshot of cache occupancy.
type CacheStats struct {
	TotalEntries   int
	ExpiredEntries int
	ActiveEntries  int
}

func (c *RecurrenceCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	stats := CacheStats{TotalEntries: c.lru.Len()}
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		if now.After(elem.Value.(*cacheEntry).expiresAt) {
			stats.ExpiredEntries++
		}
	}
	stats.ActiveEntries = stats.TotalEntries - stats.ExpiredEntries
	return stats
}
