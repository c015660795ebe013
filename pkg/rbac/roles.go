package rbac

import (
	"context"

	"github.com/MertBaran/QA-API-sub001/pkg/apperrors"
	"github.com/MertBaran/QA-API-sub001/pkg/datasource"
	"github.com/MertBaran/QA-API-sub001/pkg/model"
)

// RoleStore implements RoleRepository. Permission ids handed to it must
// reference existing permissions.
type RoleStore struct {
	roles       datasource.RoleSource
	permissions datasource.DataSource[model.Permission]
	settings
}

// NewRoleStore creates a role store.
func NewRoleStore(roles datasource.RoleSource, permissions datasource.DataSource[model.Permission], opts ...Option) *RoleStore {
	return &RoleStore{roles: roles, permissions: permissions, settings: newSettings(opts)}
}

func (s *RoleStore) Create(ctx context.Context, r model.Role) (model.Role, error) {
	r.Permissions = model.UniqueIDs(r.Permissions)
	if err := model.Validate(r); err != nil {
		return model.Role{}, err
	}
	if _, found, err := datasource.First(ctx, s.roles, model.Fields{model.FieldName: r.Name}); err != nil {
		return model.Role{}, err
	} else if found {
		return model.Role{}, apperrors.Conflict("role", "role %q already exists", r.Name)
	}
	if err := s.requirePermissions(ctx, r.Permissions); err != nil {
		return model.Role{}, err
	}

	created, err := s.roles.Create(ctx, r)
	if err != nil {
		if datasource.IsDuplicate(err) {
			return model.Role{}, apperrors.Conflict("role", "role %q already exists", r.Name).WithCause(err)
		}
		return model.Role{}, err
	}
	s.invalidateAll(ctx)
	return created, nil
}

func (s *RoleStore) FindByID(ctx context.Context, id string) (model.Role, error) {
	r, err := s.roles.FindByID(ctx, id)
	return r, domainError(err, "role", id)
}

func (s *RoleStore) FindByName(ctx context.Context, name string) (model.Role, error) {
	r, found, err := datasource.First(ctx, s.roles, model.Fields{model.FieldName: name})
	if err != nil {
		return model.Role{}, err
	}
	if !found {
		return model.Role{}, apperrors.NotFound("role", name)
	}
	return r, nil
}

func (s *RoleStore) FindAll(ctx context.Context) ([]model.Role, error) {
	return s.roles.FindAll(ctx)
}

// Update applies a sparse patch. A replacement permission set is checked
// like the one given to Create.
func (s *RoleStore) Update(ctx context.Context, id string, patch model.Fields) (model.Role, error) {
	current, err := s.FindByID(ctx, id)
	if err != nil {
		return model.Role{}, err
	}
	next, err := current.Apply(patch)
	if err != nil {
		return model.Role{}, err
	}
	if err := model.Validate(next); err != nil {
		return model.Role{}, err
	}
	if _, ok := patch[model.FieldPermissions]; ok {
		if err := s.requirePermissions(ctx, next.Permissions); err != nil {
			return model.Role{}, err
		}
	}

	updated, err := s.roles.UpdateByID(ctx, id, patch)
	if err != nil {
		return model.Role{}, domainError(err, "role", id)
	}
	s.invalidateAll(ctx)
	return updated, nil
}

// Delete removes a role. System roles are protected. Assignments that
// reference the role stop granting anything once it is gone.
func (s *RoleStore) Delete(ctx context.Context, id string) (model.Role, error) {
	current, err := s.FindByID(ctx, id)
	if err != nil {
		return model.Role{}, err
	}
	if current.IsSystem {
		return model.Role{}, apperrors.BusinessRule(apperrors.ErrSystemRoleProtected,
			"role %q is a system role and cannot be deleted", current.Name)
	}

	deleted, err := s.roles.DeleteByID(ctx, id)
	if err != nil {
		return model.Role{}, domainError(err, "role", id)
	}
	s.invalidateAll(ctx)
	return deleted, nil
}

func (s *RoleStore) AssignPermission(ctx context.Context, roleID, permissionID string) (model.Role, error) {
	return s.AddPermissionsToRole(ctx, roleID, []string{permissionID})
}

func (s *RoleStore) RemovePermission(ctx context.Context, roleID, permissionID string) (model.Role, error) {
	return s.RemovePermissionsFromRole(ctx, roleID, []string{permissionID})
}

// AddPermissionsToRole adds permissions to the role's set. Ids already in
// the set are ignored; unknown permissions fail the whole call.
func (s *RoleStore) AddPermissionsToRole(ctx context.Context, roleID string, permissionIDs []string) (model.Role, error) {
	permissionIDs = model.UniqueIDs(permissionIDs)
	if err := s.requirePermissions(ctx, permissionIDs); err != nil {
		return model.Role{}, err
	}
	updated, err := s.roles.AddPermissions(ctx, roleID, permissionIDs)
	if err != nil {
		return model.Role{}, domainError(err, "role", roleID)
	}
	s.invalidateAll(ctx)
	return updated, nil
}

// RemovePermissionsFromRole removes permissions from the role's set. Ids not
// in the set are ignored.
func (s *RoleStore) RemovePermissionsFromRole(ctx context.Context, roleID string, permissionIDs []string) (model.Role, error) {
	updated, err := s.roles.RemovePermissions(ctx, roleID, model.UniqueIDs(permissionIDs))
	if err != nil {
		return model.Role{}, domainError(err, "role", roleID)
	}
	s.invalidateAll(ctx)
	return updated, nil
}

// GetDefaultRole returns the role given to new users.
func (s *RoleStore) GetDefaultRole(ctx context.Context) (model.Role, error) {
	return s.FindByName(ctx, model.DefaultRoleName)
}

func (s *RoleStore) GetSystemRoles(ctx context.Context) ([]model.Role, error) {
	return s.roles.FindByField(ctx, model.FieldIsSystem, true)
}

func (s *RoleStore) GetActiveRoles(ctx context.Context) ([]model.Role, error) {
	return cachedList(ctx, s.settings, "roles", activeRolesKey, func(ctx context.Context) ([]model.Role, error) {
		return s.roles.FindByField(ctx, model.FieldIsActive, true)
	})
}

// requirePermissions fails with NotFound on the first id that does not
// reference an existing permission.
func (s *RoleStore) requirePermissions(ctx context.Context, permissionIDs []string) error {
	for _, id := range permissionIDs {
		_, found, err := datasource.Lookup(ctx, s.permissions, id)
		if err != nil {
			return err
		}
		if !found {
			return apperrors.NotFound("permission", id)
		}
	}
	return nil
}
