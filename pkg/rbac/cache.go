package rbac

import (
	"context"
	"encoding/json"
	"time"
)

const (
	userKeyPrefix       = "rbac:user:"
	rolesKeyPrefix      = "rbac:roles:"
	permissionKeyPrefix = "rbac:permissions:"

	activeRolesKey    = rolesKeyPrefix + "active"
	allPermissionsKey = permissionKeyPrefix + "all"
)

func userPrefix(userID string) string {
	return userKeyPrefix + userID + ":"
}

func userPermissionsKey(userID string) string {
	return userPrefix(userID) + "permissions"
}

// invalidateUser clears every cached entry derived from one user's
// assignments.
func (s settings) invalidateUser(ctx context.Context, userID string) {
	s.deletePrefixes(ctx, userPrefix(userID))
}

// invalidateAll clears every cached entry. Role and permission writes can
// change the effective set of any user.
func (s settings) invalidateAll(ctx context.Context) {
	s.deletePrefixes(ctx, userKeyPrefix, rolesKeyPrefix, permissionKeyPrefix)
}

// invalidateUsers clears the per-user entries only.
func (s settings) invalidateUsers(ctx context.Context) {
	s.deletePrefixes(ctx, userKeyPrefix)
}

// A failed delete leaves entries that expire at their TTL; the write that
// triggered it has already been committed.
func (s settings) deletePrefixes(ctx context.Context, prefixes ...string) {
	if s.cache == nil {
		return
	}
	// Bumped before the delete so a load that read storage earlier sees the
	// change by the time it would fill.
	if s.gen != nil {
		s.gen.Add(1)
	}
	for _, p := range prefixes {
		if _, err := s.cache.DeletePrefix(ctx, p); err != nil {
			s.logger.WithError(err).WithField("prefix", p).Error("cache invalidation failed")
		}
	}
}

// cachedList reads a JSON-encoded list from the cache or fills it with load.
// Cache failures fall back to load.
func cachedList[T any](ctx context.Context, s settings, name, key string, load func(context.Context) ([]T, error)) ([]T, error) {
	if s.cache == nil {
		return load(ctx)
	}
	if data, ok, err := s.cache.Get(ctx, key); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("cache read failed")
	} else if ok {
		var out []T
		if err := json.Unmarshal(data, &out); err == nil {
			s.metrics.ObserveCache(name, true)
			return out, nil
		}
		s.logger.WithField("key", key).Warn("discarding corrupt cache entry")
	}
	s.metrics.ObserveCache(name, false)

	gen := s.generation()
	out, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if s.current(gen) {
		s.store(ctx, key, out, s.cacheTTL)
	}
	return out, nil
}

// generation returns the invalidation count of the shared cache option.
func (s settings) generation() uint64 {
	if s.gen == nil {
		return 0
	}
	return s.gen.Load()
}

// current reports whether no invalidation happened since gen was read. A
// load that raced an invalidation may hold data older than the write that
// caused it and must not be cached.
func (s settings) current(gen uint64) bool {
	return s.generation() == gen
}

func (s settings) store(ctx context.Context, key string, v interface{}, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Error("cache encode failed")
		return
	}
	if err := s.cache.Set(ctx, key, data, ttl); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("cache write failed")
	}
}
