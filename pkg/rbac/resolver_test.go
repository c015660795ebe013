package rbac

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MertBaran/QA-API-sub001/pkg/cache"
	"github.com/MertBaran/QA-API-sub001/pkg/datasource"
	"github.com/MertBaran/QA-API-sub001/pkg/ids"
	"github.com/MertBaran/QA-API-sub001/pkg/model"
)

func TestResolverUnionAcrossRoles(t *testing.T) {
	forEachScheme(t, func(t *testing.T, scheme ids.Scheme) {
		ctx := context.Background()
		f := newFixture(t, scheme)
		read := f.permission(t, "questions:read")
		create := f.permission(t, "questions:create")
		ban := f.permission(t, "users:ban")
		user := scheme.New()

		for _, r := range []model.Role{
			f.role(t, "asker", read, create),
			f.role(t, "moderator", create, ban),
		} {
			_, err := f.users.AssignRoleToUser(ctx, user, r.ID, AssignOptions{})
			require.NoError(t, err)
		}

		assert.Equal(t, []string{"questions:read", "questions:create", "users:ban"}, f.permissionNames(t, user))

		ok, err := f.resolver.HasAnyPermission(ctx, user, []string{"nope", "users:ban"})
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = f.resolver.HasAllPermissions(ctx, user, []string{"questions:read", "nope"})
		require.NoError(t, err)
		assert.False(t, ok)
		ok, err = f.resolver.HasAnyPermission(ctx, user, nil)
		require.NoError(t, err)
		assert.False(t, ok)
		ok, err = f.resolver.HasAllPermissions(ctx, user, nil)
		require.NoError(t, err)
		assert.True(t, ok)

		assert.Equal(t, 1, f.metrics.checks["granted"])
		assert.Equal(t, 1, f.metrics.checks["denied"])
	})
}

func TestResolverSkipsDanglingReferences(t *testing.T) {
	forEachScheme(t, func(t *testing.T, scheme ids.Scheme) {
		ctx := context.Background()
		f := newFixture(t, scheme)
		keep := f.permission(t, "keep")
		gone := f.permission(t, "gone")
		r := f.role(t, "r", gone, keep)
		orphan := f.role(t, "orphan", keep)
		user := scheme.New()

		for _, role := range []model.Role{r, orphan} {
			_, err := f.users.AssignRoleToUser(ctx, user, role.ID, AssignOptions{})
			require.NoError(t, err)
		}
		_, err := f.permissions.Delete(ctx, gone.ID)
		require.NoError(t, err)
		_, err = f.backend.Roles().DeleteByID(ctx, orphan.ID)
		require.NoError(t, err)

		assert.Equal(t, []string{"keep"}, f.permissionNames(t, user))
	})
}

func TestResolverIgnoresPermissionActiveFlag(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ids.ObjectIDScheme{})
	p := f.permission(t, "p")
	r := f.role(t, "r", p)
	user := ids.ObjectIDScheme{}.New()
	_, err := f.users.AssignRoleToUser(ctx, user, r.ID, AssignOptions{})
	require.NoError(t, err)

	_, err = f.permissions.Update(ctx, p.ID, model.Fields{model.FieldIsActive: false})
	require.NoError(t, err)

	assert.Equal(t, []string{"p"}, f.permissionNames(t, user))
}

func setupRedis(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := cache.NewRedisCacheFromClient(client, "qa:", 5*time.Minute)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestResolverCachesAndInvalidates(t *testing.T) {
	ctx := context.Background()
	c, mr := setupRedis(t)
	f := newFixture(t, ids.UUIDScheme{}, WithCache(c, 5*time.Minute))
	read := f.permission(t, "questions:read")
	write := f.permission(t, "questions:create")
	r := f.role(t, "asker", read)
	user := ids.UUIDScheme{}.New()
	key := "qa:" + userPermissionsKey(user)

	_, err := f.users.AssignRoleToUser(ctx, user, r.ID, AssignOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"questions:read"}, f.permissionNames(t, user))
	assert.True(t, mr.Exists(key))
	assert.Equal(t, 5*time.Minute, mr.TTL(key))

	assert.Equal(t, []string{"questions:read"}, f.permissionNames(t, user))
	assert.Equal(t, 1, f.metrics.cacheHits)

	_, err = f.roles.AssignPermission(ctx, r.ID, write.ID)
	require.NoError(t, err)
	assert.False(t, mr.Exists(key), "role writes clear every user entry")
	assert.Equal(t, []string{"questions:read", "questions:create"}, f.permissionNames(t, user))

	_, err = f.users.RemoveRoleFromUser(ctx, user, r.ID)
	require.NoError(t, err)
	assert.False(t, mr.Exists(key))
	assert.Empty(t, f.permissionNames(t, user))
}

func TestResolverCacheTTLEndsAtEarliestExpiry(t *testing.T) {
	ctx := context.Background()
	c, mr := setupRedis(t)
	f := newFixture(t, ids.ObjectIDScheme{}, WithCache(c, 5*time.Minute))
	p := f.permission(t, "p")
	r := f.role(t, "r", p)
	user := ids.ObjectIDScheme{}.New()
	key := "qa:" + userPermissionsKey(user)

	expires := f.clock.Now().Add(30 * time.Second)
	_, err := f.users.AssignRoleToUser(ctx, user, r.ID, AssignOptions{ExpiresAt: &expires})
	require.NoError(t, err)

	assert.Equal(t, []string{"p"}, f.permissionNames(t, user))
	assert.Equal(t, 30*time.Second, mr.TTL(key))

	f.clock.Advance(30 * time.Second)
	assert.Empty(t, f.permissionNames(t, user), "an entry never outlives the assignment that produced it")
}

func TestResolverSweepInvalidatesUsers(t *testing.T) {
	ctx := context.Background()
	c, mr := setupRedis(t)
	f := newFixture(t, ids.UUIDScheme{}, WithCache(c, time.Hour))
	r := f.role(t, "r", f.permission(t, "p"))
	user := ids.UUIDScheme{}.New()

	expires := f.clock.Now().Add(time.Minute)
	_, err := f.users.AssignRoleToUser(ctx, user, r.ID, AssignOptions{ExpiresAt: &expires})
	require.NoError(t, err)
	other := ids.UUIDScheme{}.New()
	_, err = f.users.AssignRoleToUser(ctx, other, r.ID, AssignOptions{})
	require.NoError(t, err)
	f.permissionNames(t, other)
	require.True(t, mr.Exists("qa:"+userPermissionsKey(other)))

	f.clock.Advance(time.Hour)
	n, err := f.users.DeactivateExpiredRoles(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.False(t, mr.Exists("qa:"+userPermissionsKey(other)))
}

func TestResolverFallsBackWhenCacheIsDown(t *testing.T) {
	ctx := context.Background()
	c, mr := setupRedis(t)
	f := newFixture(t, ids.UUIDScheme{}, WithCache(c, time.Minute))
	r := f.role(t, "r", f.permission(t, "p"))
	user := ids.UUIDScheme{}.New()
	_, err := f.users.AssignRoleToUser(ctx, user, r.ID, AssignOptions{})
	require.NoError(t, err)

	mr.Close()

	assert.Equal(t, []string{"p"}, f.permissionNames(t, user))
	_, err = f.users.RemoveRoleFromUser(ctx, user, r.ID)
	require.NoError(t, err, "invalidation failures do not fail the write")
}

func TestResolverWithMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemoryCache(100, time.Minute)
	f := newFixture(t, ids.ObjectIDScheme{}, WithCache(c, time.Minute))
	r := f.role(t, "r", f.permission(t, "p"))
	user := ids.ObjectIDScheme{}.New()
	_, err := f.users.AssignRoleToUser(ctx, user, r.ID, AssignOptions{})
	require.NoError(t, err)

	f.permissionNames(t, user)
	f.permissionNames(t, user)
	assert.Equal(t, int64(1), c.Stats().Hits)

	f.resolver.Invalidate(ctx, user)
	_, ok, err := c.Get(ctx, userPermissionsKey(user))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolverRevocationClearsMixedCaseReads(t *testing.T) {
	forEachScheme(t, func(t *testing.T, scheme ids.Scheme) {
		ctx := context.Background()
		c := cache.NewMemoryCache(100, time.Minute)
		f := newFixture(t, scheme, WithCache(c, time.Minute))
		r := f.role(t, "asker", f.permission(t, "questions:create"))
		user := scheme.New()
		upper := strings.ToUpper(user)

		a, err := f.users.AssignRoleToUser(ctx, upper, strings.ToUpper(r.ID), AssignOptions{})
		require.NoError(t, err)
		assert.Equal(t, user, a.UserID)
		assert.Equal(t, r.ID, a.RoleID)

		assert.Equal(t, []string{"questions:create"}, f.permissionNames(t, upper))
		assert.Equal(t, []string{"questions:create"}, f.permissionNames(t, user))

		_, err = f.users.RemoveRoleFromUser(ctx, user, r.ID)
		require.NoError(t, err)

		assert.Empty(t, f.permissionNames(t, upper))
		assert.Empty(t, f.permissionNames(t, user))

		ok, err := f.resolver.HasPermission(ctx, upper, "questions:create")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

// hookedAssignments runs hooks around the resolver's assignment lookup.
type hookedAssignments struct {
	datasource.AssignmentSource
	before func()
	after  func()
}

func (h *hookedAssignments) FindByField(ctx context.Context, field string, value interface{}) ([]model.Assignment, error) {
	if h.before != nil {
		h.before()
	}
	rows, err := h.AssignmentSource.FindByField(ctx, field, value)
	if h.after != nil {
		fn := h.after
		h.after = nil
		fn()
	}
	return rows, err
}

func TestResolverSkipsFillRacedByInvalidation(t *testing.T) {
	ctx := context.Background()
	c, mr := setupRedis(t)
	f := newFixture(t, ids.UUIDScheme{})
	r := f.role(t, "reader", f.permission(t, "questions:read"))
	user := ids.UUIDScheme{}.New()
	key := "qa:" + userPermissionsKey(user)

	shared := WithCache(c, 5*time.Minute)
	hooked := &hookedAssignments{AssignmentSource: f.backend.Assignments()}
	resolver := NewResolver(hooked, f.backend.Roles(), f.backend.Permissions(), WithClock(f.clock.Now), shared)
	users := NewUserRoleStore(f.backend.Assignments(), f.roles, resolver, ids.UUIDScheme{}, WithClock(f.clock.Now), shared)

	_, err := users.AssignRoleToUser(ctx, user, r.ID, AssignOptions{})
	require.NoError(t, err)

	// The revocation commits after the resolver has read the assignments.
	hooked.after = func() {
		_, err := users.RemoveRoleFromUser(ctx, user, r.ID)
		assert.NoError(t, err)
	}
	perms, err := resolver.EffectivePermissions(ctx, user)
	require.NoError(t, err)
	assert.Len(t, perms, 1)
	assert.False(t, mr.Exists(key), "a raced load is not cached")

	perms, err = resolver.EffectivePermissions(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, perms)
	assert.True(t, mr.Exists(key))
}

func TestResolverFlightOutlivesCanceledCaller(t *testing.T) {
	c, mr := setupRedis(t)
	f := newFixture(t, ids.ObjectIDScheme{})
	r := f.role(t, "reader", f.permission(t, "questions:read"))
	user := ids.ObjectIDScheme{}.New()
	key := "qa:" + userPermissionsKey(user)

	started := make(chan struct{})
	release := make(chan struct{})
	hooked := &hookedAssignments{AssignmentSource: f.backend.Assignments()}
	resolver := NewResolver(hooked, f.backend.Roles(), f.backend.Permissions(), WithClock(f.clock.Now), WithCache(c, 5*time.Minute))

	_, err := f.users.AssignRoleToUser(context.Background(), user, r.ID, AssignOptions{})
	require.NoError(t, err)

	hooked.before = func() {
		close(started)
		<-release
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := resolver.EffectivePermissions(ctx, user)
		done <- err
	}()

	<-started
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(release)
	assert.Eventually(t, func() bool { return mr.Exists(key) }, time.Second, 10*time.Millisecond)

	hooked.before = nil
	perms, err := resolver.EffectivePermissions(context.Background(), user)
	require.NoError(t, err)
	require.Len(t, perms, 1)
	assert.Equal(t, "questions:read", perms[0].Name)
}
