package rbac

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/MertBaran/QA-API-sub001/pkg/datasource"
	"github.com/MertBaran/QA-API-sub001/pkg/ids"
	"github.com/MertBaran/QA-API-sub001/pkg/model"
)

var resolverTracer = otel.Tracer("qa/rbac/resolver")

// Resolver computes a user's effective permissions.
type Resolver struct {
	assignments datasource.DataSource[model.Assignment]
	roles       datasource.DataSource[model.Role]
	permissions datasource.DataSource[model.Permission]
	settings

	fills singleflight.Group
}

// NewResolver creates a resolver over the three data sources.
func NewResolver(assignments datasource.DataSource[model.Assignment], roles datasource.DataSource[model.Role], permissions datasource.DataSource[model.Permission], opts ...Option) *Resolver {
	return &Resolver{
		assignments: assignments,
		roles:       roles,
		permissions: permissions,
		settings:    newSettings(opts),
	}
}

// resolved is the cached form of a user's permission set.
type resolved struct {
	Permissions []model.Permission `json:"permissions"`
	// Expires is the earliest expiry among the contributing assignments.
	Expires *time.Time `json:"expires,omitempty"`
}

// EffectivePermissions returns the permissions granted to userID through
// effective assignments of active roles, in first-seen order.
func (r *Resolver) EffectivePermissions(ctx context.Context, userID string) ([]model.Permission, error) {
	userID = ids.Canonical(userID)
	ctx, span := resolverTracer.Start(ctx, "EffectivePermissions",
		trace.WithAttributes(attribute.String("user_id", userID)),
	)
	defer span.End()

	key := userPermissionsKey(userID)
	if cached, ok := r.cached(ctx, key); ok {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		return cached, nil
	}

	// The flight is shared by every caller that joins it, so it must not
	// stop when the caller that started it goes away.
	flightCtx := context.WithoutCancel(ctx)
	ch := r.fills.DoChan(key, func() (interface{}, error) {
		gen := r.generation()
		res, err := r.load(flightCtx, userID)
		if err != nil {
			return nil, err
		}
		r.fill(flightCtx, key, res, gen)
		return res.Permissions, nil
	})

	select {
	case <-ctx.Done():
		span.RecordError(ctx.Err())
		span.SetStatus(codes.Error, "resolution canceled")
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, "failed to resolve permissions")
			return nil, res.Err
		}
		perms := res.Val.([]model.Permission)
		span.SetAttributes(attribute.Int("permissions", len(perms)))
		return append([]model.Permission(nil), perms...), nil
	}
}

// load walks assignments, roles and permissions without the cache.
func (r *Resolver) load(ctx context.Context, userID string) (resolved, error) {
	now := r.now()
	rows, err := r.assignments.FindByField(ctx, model.FieldUserID, userID)
	if err != nil {
		return resolved{}, err
	}

	var (
		res     = resolved{Permissions: []model.Permission{}}
		permIDs []string
		seenIDs = make(map[string]struct{})
	)
	for _, a := range model.EffectiveOnly(rows, now) {
		role, found, err := datasource.Lookup(ctx, r.roles, a.RoleID)
		if err != nil {
			return resolved{}, err
		}
		if !found || !role.IsActive {
			continue
		}
		if a.ExpiresAt != nil && (res.Expires == nil || a.ExpiresAt.Before(*res.Expires)) {
			exp := *a.ExpiresAt
			res.Expires = &exp
		}
		for _, id := range role.Permissions {
			if _, dup := seenIDs[id]; dup {
				continue
			}
			seenIDs[id] = struct{}{}
			permIDs = append(permIDs, id)
		}
	}

	for _, id := range permIDs {
		p, found, err := datasource.Lookup(ctx, r.permissions, id)
		if err != nil {
			return resolved{}, err
		}
		if !found {
			r.logger.WithFields(map[string]interface{}{
				"user_id":       userID,
				"permission_id": id,
			}).Warn("role references a permission that no longer exists")
			continue
		}
		res.Permissions = append(res.Permissions, p)
	}
	return res, nil
}

func (r *Resolver) cached(ctx context.Context, key string) ([]model.Permission, bool) {
	if r.cache == nil {
		return nil, false
	}
	data, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		r.logger.WithError(err).WithField("key", key).Warn("cache read failed")
	}
	if err != nil || !ok {
		r.metrics.ObserveCache("user_permissions", false)
		return nil, false
	}
	var res resolved
	if err := json.Unmarshal(data, &res); err != nil {
		r.logger.WithField("key", key).Warn("discarding corrupt cache entry")
		r.metrics.ObserveCache("user_permissions", false)
		return nil, false
	}
	// An entry written just before an expiry must not outlive it.
	if res.Expires != nil && !res.Expires.After(r.now()) {
		r.metrics.ObserveCache("user_permissions", false)
		return nil, false
	}
	r.metrics.ObserveCache("user_permissions", true)
	return res.Permissions, true
}

// fill stores res with a TTL that ends no later than the earliest
// contributing expiry. Results loaded before an invalidation are dropped.
func (r *Resolver) fill(ctx context.Context, key string, res resolved, gen uint64) {
	if r.cache == nil {
		return
	}
	if !r.current(gen) {
		r.logger.WithField("key", key).Debug("skipping fill raced by an invalidation")
		return
	}
	ttl := r.cacheTTL
	if res.Expires != nil {
		remaining := res.Expires.Sub(r.now())
		if remaining <= 0 {
			return
		}
		if remaining < ttl {
			ttl = remaining
		}
	}
	r.store(ctx, key, res, ttl)
}

// HasPermission reports whether userID holds the named permission.
func (r *Resolver) HasPermission(ctx context.Context, userID, permission string) (bool, error) {
	return r.check(ctx, userID, []string{permission}, false)
}

// HasAnyPermission reports whether userID holds at least one of names. An
// empty list grants nothing.
func (r *Resolver) HasAnyPermission(ctx context.Context, userID string, names []string) (bool, error) {
	return r.check(ctx, userID, names, false)
}

// HasAllPermissions reports whether userID holds every one of names. An
// empty list is trivially satisfied.
func (r *Resolver) HasAllPermissions(ctx context.Context, userID string, names []string) (bool, error) {
	return r.check(ctx, userID, names, true)
}

func (r *Resolver) check(ctx context.Context, userID string, names []string, all bool) (bool, error) {
	if len(names) == 0 {
		return all, nil
	}
	perms, err := r.EffectivePermissions(ctx, userID)
	if err != nil {
		r.metrics.ObservePermissionCheck("error")
		return false, err
	}
	held := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		held[p.Name] = struct{}{}
	}

	granted := all
	for _, name := range names {
		_, ok := held[name]
		if all && !ok {
			granted = false
			break
		}
		if !all && ok {
			granted = true
			break
		}
	}
	if granted {
		r.metrics.ObservePermissionCheck("granted")
	} else {
		r.metrics.ObservePermissionCheck("denied")
	}
	return granted, nil
}

// Invalidate drops the cached entries of userID.
func (r *Resolver) Invalidate(ctx context.Context, userID string) {
	r.invalidateUser(ctx, ids.Canonical(userID))
}
