// Package memory provides an in-process backend with the same observable
// behaviour as the MongoDB and PostgreSQL adapters, including their unique
// indexes. It is used by tests and local development and can mimic either
// id scheme.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/MertBaran/QA-API-sub001/pkg/datasource"
	"github.com/MertBaran/QA-API-sub001/pkg/ids"
	"github.com/MertBaran/QA-API-sub001/pkg/model"
)

// Backend is an in-memory datasource.Backend.
type Backend struct {
	scheme      ids.Scheme
	permissions *store[model.Permission]
	roles       *roleStore
	assignments *assignmentStore
}

// Option configures a Backend.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates an empty backend using scheme for ids.
func New(scheme ids.Scheme, opts ...Option) *Backend {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	return &Backend{
		scheme: scheme,
		permissions: newStore[model.Permission]("permission", scheme, o.now, clonePermission,
			func(p model.Permission) (string, bool) { return p.Name, true },
		),
		roles: &roleStore{store: newStore[model.Role]("role", scheme, o.now, cloneRole,
			func(r model.Role) (string, bool) { return r.Name, true },
		)},
		assignments: &assignmentStore{store: newStore[model.Assignment]("assignment", scheme, o.now, cloneAssignment,
			func(a model.Assignment) (string, bool) { return a.UserID + "|" + a.RoleID, a.IsActive },
		)},
	}
}

func (b *Backend) Kind() ids.Kind  { return b.scheme.Kind() }
func (b *Backend) IDs() ids.Scheme { return b.scheme }

func (b *Backend) Permissions() datasource.DataSource[model.Permission] { return b.permissions }
func (b *Backend) Roles() datasource.RoleSource                         { return b.roles }
func (b *Backend) Assignments() datasource.AssignmentSource             { return b.assignments }

func (b *Backend) Migrate(ctx context.Context) error { return nil }
func (b *Backend) Ping(ctx context.Context) error    { return nil }
func (b *Backend) Close(ctx context.Context) error   { return nil }

// uniqueFunc returns the unique key of an entity and whether the constraint
// applies to it. It mirrors partial unique indexes.
type uniqueFunc[T any] func(T) (string, bool)

type store[T model.Record[T]] struct {
	mu     sync.RWMutex
	entity string
	scheme ids.Scheme
	now    func() time.Time
	clone  func(T) T
	unique uniqueFunc[T]
	rows   map[string]T
	order  []string
}

func newStore[T model.Record[T]](entity string, scheme ids.Scheme, now func() time.Time, clone func(T) T, unique uniqueFunc[T]) *store[T] {
	return &store[T]{
		entity: entity,
		scheme: scheme,
		now:    now,
		clone:  clone,
		unique: unique,
		rows:   make(map[string]T),
	}
}

func (s *store[T]) specs() map[string]model.FieldSpec {
	var zero T
	return zero.FieldSpecs()
}

// conflicts reports whether entity collides with another row on the unique
// key. Caller holds the lock.
func (s *store[T]) conflicts(entity T) bool {
	key, applies := s.unique(entity)
	if !applies {
		return false
	}
	for id, row := range s.rows {
		if id == entity.GetID() {
			continue
		}
		if other, ok := s.unique(row); ok && other == key {
			return true
		}
	}
	return false
}

func (s *store[T]) Create(ctx context.Context, entity T) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, datasource.Failure(s.entity+" create", err)
	}

	id := s.canonical(entity.GetID())
	if !s.scheme.Valid(id) {
		id = s.scheme.New()
	}
	entity = entity.Prepare(id, s.now())
	if err := datasource.CheckIDs(s.scheme, entity); err != nil {
		return zero, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rows[id]; exists || s.conflicts(entity) {
		return zero, datasource.Duplicate(s.entity, nil)
	}
	s.rows[id] = s.clone(entity)
	s.order = append(s.order, id)
	return s.clone(entity), nil
}

func (s *store[T]) FindByID(ctx context.Context, id string) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, datasource.Failure(s.entity+" find", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.rows[s.canonical(id)]
	if !ok {
		return zero, datasource.NotFound(s.entity, id)
	}
	return s.clone(row), nil
}

func (s *store[T]) FindAll(ctx context.Context) ([]T, error) {
	return s.FindByFields(ctx, nil)
}

func (s *store[T]) UpdateByID(ctx context.Context, id string, patch model.Fields) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, datasource.Failure(s.entity+" update", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.canonical(id)
	row, ok := s.rows[key]
	if !ok {
		return zero, datasource.NotFound(s.entity, id)
	}
	updated, err := row.Apply(patch)
	if err != nil {
		return zero, err
	}
	if err := datasource.CheckIDs(s.scheme, updated); err != nil {
		return zero, err
	}
	if s.conflicts(updated) {
		return zero, datasource.Duplicate(s.entity, nil)
	}
	updated = touch(updated, s.now())
	s.rows[key] = s.clone(updated)
	return s.clone(updated), nil
}

func (s *store[T]) DeleteByID(ctx context.Context, id string) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, datasource.Failure(s.entity+" delete", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.canonical(id)
	row, ok := s.rows[key]
	if !ok {
		return zero, datasource.NotFound(s.entity, id)
	}
	delete(s.rows, key)
	for i, oid := range s.order {
		if oid == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return row, nil
}

func (s *store[T]) FindByField(ctx context.Context, field string, value interface{}) ([]T, error) {
	if value == nil {
		return nil, model.ErrInvalidField.WithMessage("field %q: nil value", field)
	}
	return s.FindByFields(ctx, model.Fields{field: value})
}

func (s *store[T]) FindByFields(ctx context.Context, filter model.Fields) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, datasource.Failure(s.entity+" find", err)
	}
	norm, err := model.NormalizeFilter(s.specs(), filter)
	if err != nil {
		return nil, err
	}
	if !datasource.Matchable(s.scheme, s.specs(), norm) {
		return []T{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]T, 0)
	for _, id := range s.order {
		row := s.rows[id]
		if matches(row, norm, s.specs()) {
			out = append(out, s.clone(row))
		}
	}
	return out, nil
}

func (s *store[T]) CountAll(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, datasource.Failure(s.entity+" count", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.rows)), nil
}

func (s *store[T]) DeleteAll(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, datasource.Failure(s.entity+" delete", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.rows))
	s.rows = make(map[string]T)
	s.order = nil
	return n, nil
}

// canonical lowercases ids the way the relational store's uuid column
// does. ObjectIDs are stored lowercase as well.
func (s *store[T]) canonical(id string) string {
	return strings.ToLower(id)
}

func matches[T model.Record[T]](row T, filter model.Fields, specs map[string]model.FieldSpec) bool {
	for field, want := range filter {
		got, ok := row.Value(field)
		if !ok || !equalValue(got, want, specs[field].IsID()) {
			return false
		}
	}
	return true
}

func equalValue(got, want interface{}, id bool) bool {
	switch w := want.(type) {
	case string:
		g, ok := got.(string)
		if id {
			return ok && strings.EqualFold(g, w)
		}
		return ok && g == w
	case bool:
		g, ok := got.(bool)
		return ok && g == w
	case time.Time:
		g, ok := got.(time.Time)
		return ok && g.Equal(w)
	case *time.Time:
		g, ok := got.(*time.Time)
		if !ok {
			return false
		}
		if g == nil || w == nil {
			return g == nil && w == nil
		}
		return g.Equal(*w)
	default:
		return false
	}
}

// touch sets UpdatedAt on any entity type.
func touch[T any](entity T, now time.Time) T {
	now = model.Timestamp(now)
	switch e := any(&entity).(type) {
	case *model.Permission:
		e.UpdatedAt = now
	case *model.Role:
		e.UpdatedAt = now
	case *model.Assignment:
		e.UpdatedAt = now
	}
	return entity
}

func clonePermission(p model.Permission) model.Permission { return p }

func cloneRole(r model.Role) model.Role {
	r.Permissions = append([]string{}, r.Permissions...)
	return r
}

func cloneAssignment(a model.Assignment) model.Assignment {
	a.ExpiresAt = model.OptionalTimestamp(a.ExpiresAt)
	return a
}
