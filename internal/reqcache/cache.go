// Package reqcache is the in-memory, TTL-checked cache fronting portfolio
// valuation. One Cache is constructed at startup and injected where needed.
package reqcache

import (
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"launchpad-terminal/internal/domain"
)

// DefaultTTL is the read-time expiry of an entry.
const DefaultTTL = 3 * time.Minute

// Entry is one cached valuation result.
type Entry struct {
	Data           []domain.PortfolioDataPoint
	BalanceResults map[int64][]*big.Int // bucket timestamp -> balances in token order
	Timestamp      time.Time
	ChartDays      int
}

// Age returns how long ago the entry was stored relative to now.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.Timestamp)
}

// Stats reports cache activity counters.
type Stats struct {
	Hits    uint64
	Misses  uint64
	Expired uint64
	Skipped uint64 // all-zero writes ignored
}

// Cache is a mutex-protected keyed cache with read-time expiry.
// There is no background eviction.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]*Entry
	stats   Stats
}

// New creates a cache. A zero ttl means DefaultTTL; a nil clock means time.Now.
func New(ttl time.Duration, now func() time.Time) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Cache{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]*Entry),
	}
}

// Key builds the deterministic cache key for a valuation request.
func Key(chainID int64, address string, chartDays int) string {
	return fmt.Sprintf("%d:%s:%d", chainID, strings.ToLower(address), chartDays)
}

// Get returns the entry for key, or nil if absent or expired.
// Expired entries are deleted.
func (c *Cache) Get(key string) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return nil
	}
	if c.now().Sub(e.Timestamp) > c.ttl {
		delete(c.entries, key)
		c.stats.Expired++
		c.stats.Misses++
		return nil
	}
	c.stats.Hits++
	return e
}

// Set stores a result unless every data point is zero. It reports whether
// the entry was stored.
func (c *Cache) Set(key string, data []domain.PortfolioDataPoint, balances map[int64][]*big.Int, chartDays int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !domain.HasValue(data) {
		c.stats.Skipped++
		return false
	}

	points := make([]domain.PortfolioDataPoint, len(data))
	copy(points, data)
	c.entries[key] = &Entry{
		Data:           points,
		BalanceResults: balances,
		Timestamp:      c.now(),
		ChartDays:      chartDays,
	}
	return true
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Entry)
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
