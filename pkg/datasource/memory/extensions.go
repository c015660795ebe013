package memory

import (
	"context"
	"time"

	"github.com/MertBaran/QA-API-sub001/pkg/datasource"
	"github.com/MertBaran/QA-API-sub001/pkg/model"
)

type roleStore struct {
	*store[model.Role]
}

func (s *roleStore) AddPermissions(ctx context.Context, roleID string, permissionIDs []string) (model.Role, error) {
	return s.mutate(ctx, roleID, permissionIDs, func(r model.Role, ids []string) model.Role {
		return r.WithPermissions(ids...)
	})
}

func (s *roleStore) RemovePermissions(ctx context.Context, roleID string, permissionIDs []string) (model.Role, error) {
	return s.mutate(ctx, roleID, permissionIDs, func(r model.Role, ids []string) model.Role {
		return r.WithoutPermissions(ids...)
	})
}

func (s *roleStore) mutate(ctx context.Context, roleID string, permissionIDs []string, fn func(model.Role, []string) model.Role) (model.Role, error) {
	if err := ctx.Err(); err != nil {
		return model.Role{}, datasource.Failure("role update permissions", err)
	}
	permissionIDs = model.UniqueIDs(permissionIDs)
	if err := datasource.CheckIDList(s.scheme, model.FieldPermissions, permissionIDs); err != nil {
		return model.Role{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.canonical(roleID)
	row, ok := s.rows[key]
	if !ok {
		return model.Role{}, datasource.NotFound(s.entity, roleID)
	}
	updated := touch(fn(row, permissionIDs), s.now())
	s.rows[key] = cloneRole(updated)
	return cloneRole(updated), nil
}

type assignmentStore struct {
	*store[model.Assignment]
}

func (s *assignmentStore) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, datasource.Failure("assignment deactivate expired", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	stamp := model.Timestamp(s.now())
	for id, row := range s.rows {
		if row.IsActive && row.Expired(now) {
			row.IsActive = false
			row.UpdatedAt = stamp
			s.rows[id] = row
			n++
		}
	}
	return n, nil
}
