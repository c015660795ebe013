package datasource

import (
	"context"
	"time"

	"github.com/MertBaran/QA-API-sub001/pkg/model"
)

// Recorder receives one observation per storage operation.
type Recorder interface {
	ObserveStorage(operation, backend string, duration time.Duration, err error)
}

// Instrument wraps every data source of b so that each call is reported to
// rec. Operations are named "<entity>.<method>".
func Instrument(b Backend, rec Recorder) Backend {
	if rec == nil {
		return b
	}
	backend := string(b.Kind())
	return &instrumentedBackend{
		Backend: b,
		permissions: &instrumented[model.Permission]{
			next: b.Permissions(), rec: rec, backend: backend, entity: "permission",
		},
		roles: &instrumentedRoles{
			instrumented: instrumented[model.Role]{next: b.Roles(), rec: rec, backend: backend, entity: "role"},
			roles:        b.Roles(),
		},
		assignments: &instrumentedAssignments{
			instrumented: instrumented[model.Assignment]{next: b.Assignments(), rec: rec, backend: backend, entity: "assignment"},
			assignments:  b.Assignments(),
		},
	}
}

type instrumentedBackend struct {
	Backend
	permissions *instrumented[model.Permission]
	roles       *instrumentedRoles
	assignments *instrumentedAssignments
}

func (b *instrumentedBackend) Permissions() DataSource[model.Permission] { return b.permissions }
func (b *instrumentedBackend) Roles() RoleSource                         { return b.roles }
func (b *instrumentedBackend) Assignments() AssignmentSource             { return b.assignments }

type instrumented[T any] struct {
	next    DataSource[T]
	rec     Recorder
	backend string
	entity  string
}

func (s *instrumented[T]) observe(op string, start time.Time, err error) {
	s.rec.ObserveStorage(s.entity+"."+op, s.backend, time.Since(start), err)
}

func (s *instrumented[T]) Create(ctx context.Context, entity T) (T, error) {
	start := time.Now()
	out, err := s.next.Create(ctx, entity)
	s.observe("create", start, err)
	return out, err
}

func (s *instrumented[T]) FindByID(ctx context.Context, id string) (T, error) {
	start := time.Now()
	out, err := s.next.FindByID(ctx, id)
	s.observe("find_by_id", start, err)
	return out, err
}

func (s *instrumented[T]) FindAll(ctx context.Context) ([]T, error) {
	start := time.Now()
	out, err := s.next.FindAll(ctx)
	s.observe("find_all", start, err)
	return out, err
}

func (s *instrumented[T]) UpdateByID(ctx context.Context, id string, patch model.Fields) (T, error) {
	start := time.Now()
	out, err := s.next.UpdateByID(ctx, id, patch)
	s.observe("update_by_id", start, err)
	return out, err
}

func (s *instrumented[T]) DeleteByID(ctx context.Context, id string) (T, error) {
	start := time.Now()
	out, err := s.next.DeleteByID(ctx, id)
	s.observe("delete_by_id", start, err)
	return out, err
}

func (s *instrumented[T]) FindByField(ctx context.Context, field string, value interface{}) ([]T, error) {
	start := time.Now()
	out, err := s.next.FindByField(ctx, field, value)
	s.observe("find_by_field", start, err)
	return out, err
}

func (s *instrumented[T]) FindByFields(ctx context.Context, filter model.Fields) ([]T, error) {
	start := time.Now()
	out, err := s.next.FindByFields(ctx, filter)
	s.observe("find_by_fields", start, err)
	return out, err
}

func (s *instrumented[T]) CountAll(ctx context.Context) (int64, error) {
	start := time.Now()
	n, err := s.next.CountAll(ctx)
	s.observe("count_all", start, err)
	return n, err
}

func (s *instrumented[T]) DeleteAll(ctx context.Context) (int64, error) {
	start := time.Now()
	n, err := s.next.DeleteAll(ctx)
	s.observe("delete_all", start, err)
	return n, err
}

type instrumentedRoles struct {
	instrumented[model.Role]
	roles RoleSource
}

func (s *instrumentedRoles) AddPermissions(ctx context.Context, roleID string, permissionIDs []string) (model.Role, error) {
	start := time.Now()
	out, err := s.roles.AddPermissions(ctx, roleID, permissionIDs)
	s.observe("add_permissions", start, err)
	return out, err
}

func (s *instrumentedRoles) RemovePermissions(ctx context.Context, roleID string, permissionIDs []string) (model.Role, error) {
	start := time.Now()
	out, err := s.roles.RemovePermissions(ctx, roleID, permissionIDs)
	s.observe("remove_permissions", start, err)
	return out, err
}

type instrumentedAssignments struct {
	instrumented[model.Assignment]
	assignments AssignmentSource
}

func (s *instrumentedAssignments) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	start := time.Now()
	n, err := s.assignments.DeactivateExpired(ctx, now)
	s.observe("deactivate_expired", start, err)
	return n, err
}
