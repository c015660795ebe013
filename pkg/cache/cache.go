// Package cache provides the optional key-value cache used for cache-aside
// reads. Two implementations exist: RedisCache for deployments with several
// API processes and MemoryCache for a single process.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// Backend names accepted by New.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// ErrDisabled is returned by New when caching is turned off.
var ErrDisabled = errors.New("cache disabled")

// Cache stores opaque values under string keys with a per-entry TTL.
type Cache interface {
	// Get returns the value and true on a hit.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value for ttl. A non-positive ttl uses the cache default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// DeletePrefix removes every key starting with prefix and returns how
	// many were removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	Ping(ctx context.Context) error
	Stats() Stats
	Close() error
}

// Config selects and sizes the cache.
type Config struct {
	Backend       string
	RedisURL      string
	RedisPassword string
	RedisDB       int
	// TTL is the default entry lifetime.
	TTL time.Duration
	// Size bounds the number of entries of the memory cache.
	Size int
	// Prefix namespaces every key in a shared Redis.
	Prefix string
}

// DefaultConfig returns a disabled cache with sensible sizing.
func DefaultConfig() Config {
	return Config{
		Backend: BackendNone,
		TTL:     5 * time.Minute,
		Size:    10000,
		Prefix:  "qa:",
	}
}

// New builds the cache selected by cfg.Backend. It returns ErrDisabled for
// BackendNone so callers can run without a cache.
func New(ctx context.Context, cfg Config) (Cache, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendNone:
		return nil, ErrDisabled
	case BackendMemory:
		return NewMemoryCache(cfg.Size, cfg.TTL), nil
	case BackendRedis:
		return NewRedisCache(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// Stats reports hit and miss counts.
type Stats struct {
	Hits    int64
	Misses  int64
	Entries int64
	HitRate float64
}

type counters struct {
	hits   atomic.Int64
	misses atomic.Int64
}

func (c *counters) record(hit bool) {
	if hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
}

func (c *counters) stats(entries int64) Stats {
	s := Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Entries: entries}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}
