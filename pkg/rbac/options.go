package rbac

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/MertBaran/QA-API-sub001/pkg/cache"
	"github.com/MertBaran/QA-API-sub001/pkg/observability"
)

// Recorder receives RBAC outcome metrics. observability.Metrics implements it.
type Recorder interface {
	ObservePermissionCheck(result string)
	ObserveAssignment(operation, outcome string)
	ObserveSweep(deactivated int64, err error)
	ObserveCache(name string, hit bool)
}

type nopRecorder struct{}

func (nopRecorder) ObservePermissionCheck(string)    {}
func (nopRecorder) ObserveAssignment(string, string) {}
func (nopRecorder) ObserveSweep(int64, error)        {}
func (nopRecorder) ObserveCache(string, bool)        {}

// Option configures stores, the resolver and the sweeper.
type Option func(*settings)

type settings struct {
	cache    cache.Cache
	cacheTTL time.Duration
	logger   *observability.Logger
	metrics  Recorder
	now      func() time.Time

	// gen is shared by every component built with the same WithCache
	// option and counts the invalidations they have issued.
	gen *atomic.Uint64
}

func newSettings(opts []Option) settings {
	s := settings{
		cacheTTL: 5 * time.Minute,
		logger:   observability.NewLogger(observability.InfoLevel, io.Discard),
		metrics:  nopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// WithCache enables cache-aside reads with the given default TTL. A nil
// cache leaves caching disabled.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	gen := new(atomic.Uint64)
	return func(s *settings) {
		s.cache = c
		s.gen = gen
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

func WithLogger(logger *observability.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(r Recorder) Option {
	return func(s *settings) {
		if r != nil {
			s.metrics = r
		}
	}
}

// WithClock overrides the time source used for effectiveness checks.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}
