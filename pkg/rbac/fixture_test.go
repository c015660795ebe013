package rbac

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MertBaran/QA-API-sub001/pkg/datasource/memory"
	"github.com/MertBaran/QA-API-sub001/pkg/ids"
	"github.com/MertBaran/QA-API-sub001/pkg/model"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	scheme      ids.Scheme
	clock       *testClock
	backend     *memory.Backend
	permissions *PermissionStore
	roles       *RoleStore
	resolver    *Resolver
	users       *UserRoleStore
	metrics     *recordingMetrics
}

// newFixture wires the stores over an in-memory backend. Extra options are
// applied to every component.
func newFixture(t *testing.T, scheme ids.Scheme, opts ...Option) *fixture {
	t.Helper()
	clock := newTestClock()
	metrics := &recordingMetrics{}
	backend := memory.New(scheme, memory.WithClock(clock.Now))

	opts = append([]Option{WithClock(clock.Now), WithMetrics(metrics)}, opts...)
	permissions := NewPermissionStore(backend.Permissions(), opts...)
	roles := NewRoleStore(backend.Roles(), backend.Permissions(), opts...)
	resolver := NewResolver(backend.Assignments(), backend.Roles(), backend.Permissions(), opts...)
	users := NewUserRoleStore(backend.Assignments(), roles, resolver, scheme, opts...)

	return &fixture{
		scheme:      scheme,
		clock:       clock,
		backend:     backend,
		permissions: permissions,
		roles:       roles,
		resolver:    resolver,
		users:       users,
		metrics:     metrics,
	}
}

// forEachScheme runs fn once per id scheme.
func forEachScheme(t *testing.T, fn func(t *testing.T, scheme ids.Scheme)) {
	for _, scheme := range []ids.Scheme{ids.ObjectIDScheme{}, ids.UUIDScheme{}} {
		scheme := scheme
		t.Run(string(scheme.Kind()), func(t *testing.T) {
			fn(t, scheme)
		})
	}
}

func (f *fixture) permission(t *testing.T, name string) model.Permission {
	t.Helper()
	p, err := f.permissions.Create(context.Background(), model.Permission{
		Name:     name,
		Resource: "questions",
		Action:   name,
		Category: model.CategoryContent,
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) role(t *testing.T, name string, permissions ...model.Permission) model.Role {
	t.Helper()
	permissionIDs := make([]string, 0, len(permissions))
	for _, p := range permissions {
		permissionIDs = append(permissionIDs, p.ID)
	}
	r, err := f.roles.Create(context.Background(), model.Role{Name: name, Permissions: permissionIDs})
	require.NoError(t, err)
	return r
}

func (f *fixture) permissionNames(t *testing.T, userID string) []string {
	t.Helper()
	perms, err := f.users.GetUserPermissions(context.Background(), userID)
	require.NoError(t, err)
	names := make([]string, 0, len(perms))
	for _, p := range perms {
		names = append(names, p.Name)
	}
	return names
}

type recordingMetrics struct {
	mu          sync.Mutex
	checks      map[string]int
	assignments map[string]int
	sweeps      []int64
	cacheHits   int
	cacheMisses int
}

func (m *recordingMetrics) ObservePermissionCheck(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.checks == nil {
		m.checks = make(map[string]int)
	}
	m.checks[result]++
}

func (m *recordingMetrics) ObserveAssignment(operation, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.assignments == nil {
		m.assignments = make(map[string]int)
	}
	m.assignments[operation+":"+outcome]++
}

func (m *recordingMetrics) ObserveSweep(deactivated int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweeps = append(m.sweeps, deactivated)
}

func (m *recordingMetrics) ObserveCache(name string, hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.cacheHits++
	} else {
		m.cacheMisses++
	}
}
