package rbac

import (
	"context"

	"github.com/MertBaran/QA-API-sub001/pkg/apperrors"
	"github.com/MertBaran/QA-API-sub001/pkg/datasource"
	"github.com/MertBaran/QA-API-sub001/pkg/model"
)

// PermissionStore implements PermissionRepository over a datasource.
type PermissionStore struct {
	ds datasource.DataSource[model.Permission]
	settings
}

// NewPermissionStore creates a permission store.
func NewPermissionStore(ds datasource.DataSource[model.Permission], opts ...Option) *PermissionStore {
	return &PermissionStore{ds: ds, settings: newSettings(opts)}
}

// Create adds a permission. Names are unique.
func (s *PermissionStore) Create(ctx context.Context, p model.Permission) (model.Permission, error) {
	if err := model.Validate(p); err != nil {
		return model.Permission{}, err
	}
	if _, found, err := datasource.First(ctx, s.ds, model.Fields{model.FieldName: p.Name}); err != nil {
		return model.Permission{}, err
	} else if found {
		return model.Permission{}, apperrors.Conflict("permission", "permission %q already exists", p.Name)
	}

	created, err := s.ds.Create(ctx, p)
	if err != nil {
		if datasource.IsDuplicate(err) {
			return model.Permission{}, apperrors.Conflict("permission", "permission %q already exists", p.Name).WithCause(err)
		}
		return model.Permission{}, err
	}
	s.invalidateAll(ctx)
	return created, nil
}

func (s *PermissionStore) FindByID(ctx context.Context, id string) (model.Permission, error) {
	p, err := s.ds.FindByID(ctx, id)
	return p, domainError(err, "permission", id)
}

// FindByName returns the permission with the given name or a NotFound error.
func (s *PermissionStore) FindByName(ctx context.Context, name string) (model.Permission, error) {
	p, found, err := datasource.First(ctx, s.ds, model.Fields{model.FieldName: name})
	if err != nil {
		return model.Permission{}, err
	}
	if !found {
		return model.Permission{}, apperrors.NotFound("permission", name)
	}
	return p, nil
}

func (s *PermissionStore) FindByResource(ctx context.Context, resource string) ([]model.Permission, error) {
	return s.ds.FindByField(ctx, model.FieldResource, resource)
}

func (s *PermissionStore) FindByCategory(ctx context.Context, category model.Category) ([]model.Permission, error) {
	if !category.Valid() {
		return nil, apperrors.Validation("unknown permission category %q", category)
	}
	return s.ds.FindByField(ctx, model.FieldCategory, string(category))
}

func (s *PermissionStore) FindActive(ctx context.Context) ([]model.Permission, error) {
	return s.ds.FindByField(ctx, model.FieldIsActive, true)
}

func (s *PermissionStore) FindAll(ctx context.Context) ([]model.Permission, error) {
	return cachedList(ctx, s.settings, "permissions", allPermissionsKey, s.ds.FindAll)
}

// Update applies a sparse patch. Renaming onto an existing name is a
// conflict.
func (s *PermissionStore) Update(ctx context.Context, id string, patch model.Fields) (model.Permission, error) {
	current, err := s.FindByID(ctx, id)
	if err != nil {
		return model.Permission{}, err
	}
	next, err := current.Apply(patch)
	if err != nil {
		return model.Permission{}, err
	}
	if err := model.Validate(next); err != nil {
		return model.Permission{}, err
	}

	updated, err := s.ds.UpdateByID(ctx, id, patch)
	if err != nil {
		return model.Permission{}, domainError(err, "permission", id)
	}
	s.invalidateAll(ctx)
	return updated, nil
}

// Delete removes a permission. Roles keep the dangling id; resolution skips
// it.
func (s *PermissionStore) Delete(ctx context.Context, id string) (model.Permission, error) {
	deleted, err := s.ds.DeleteByID(ctx, id)
	if err != nil {
		return model.Permission{}, domainError(err, "permission", id)
	}
	s.invalidateAll(ctx)
	return deleted, nil
}
