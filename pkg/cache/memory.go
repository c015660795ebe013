package cache

import (
	"context"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

type entry struct {
	value   []byte
	expires time.Time
}

// MemoryCache is a bounded in-process LRU. The LRU evicts at the default TTL;
// shorter per-entry lifetimes are checked on read.
type MemoryCache struct {
	lru      *lru.LRU[string, entry]
	ttl      time.Duration
	now      func() time.Time
	counters counters
}

// NewMemoryCache creates a cache holding at most size entries.
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if size <= 0 {
		size = 10000
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &MemoryCache{
		lru: lru.NewLRU[string, entry](size, nil, ttl),
		ttl: ttl,
		now: time.Now,
	}
}

func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	e, ok := c.lru.Get(key)
	if ok && !c.now().Before(e.expires) {
		c.lru.Remove(key)
		ok = false
	}
	c.counters.record(ok)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 || ttl > c.ttl {
		ttl = c.ttl
	}
	c.lru.Add(key, entry{value: append([]byte(nil), value...), expires: c.now().Add(ttl)})
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		c.lru.Remove(k)
	}
	return nil
}

// DeletePrefix walks the key set; the cache is small and bounded.
func (c *MemoryCache) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	n := 0
	for _, k := range c.lru.Keys() {
		if strings.HasPrefix(k, prefix) && c.lru.Remove(k) {
			n++
		}
	}
	return n, nil
}

func (c *MemoryCache) Ping(ctx context.Context) error { return nil }

func (c *MemoryCache) Stats() Stats {
	return c.counters.stats(int64(c.lru.Len()))
}

func (c *MemoryCache) Close() error {
	c.lru.Purge()
	return nil
}
