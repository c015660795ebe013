package rbac

import (
	"context"
	"time"

	"github.com/MertBaran/QA-API-sub001/pkg/apperrors"
	"github.com/MertBaran/QA-API-sub001/pkg/datasource"
	"github.com/MertBaran/QA-API-sub001/pkg/model"
)

// PermissionRepository manages the permission catalogue.
type PermissionRepository interface {
	Create(ctx context.Context, p model.Permission) (model.Permission, error)
	FindByID(ctx context.Context, id string) (model.Permission, error)
	FindByName(ctx context.Context, name string) (model.Permission, error)
	FindByResource(ctx context.Context, resource string) ([]model.Permission, error)
	FindByCategory(ctx context.Context, category model.Category) ([]model.Permission, error)
	FindActive(ctx context.Context) ([]model.Permission, error)
	FindAll(ctx context.Context) ([]model.Permission, error)
	Update(ctx context.Context, id string, patch model.Fields) (model.Permission, error)
	Delete(ctx context.Context, id string) (model.Permission, error)
}

// RoleRepository manages roles and their permission sets.
type RoleRepository interface {
	Create(ctx context.Context, r model.Role) (model.Role, error)
	FindByID(ctx context.Context, id string) (model.Role, error)
	FindByName(ctx context.Context, name string) (model.Role, error)
	FindAll(ctx context.Context) ([]model.Role, error)
	Update(ctx context.Context, id string, patch model.Fields) (model.Role, error)
	Delete(ctx context.Context, id string) (model.Role, error)

	AssignPermission(ctx context.Context, roleID, permissionID string) (model.Role, error)
	RemovePermission(ctx context.Context, roleID, permissionID string) (model.Role, error)
	AddPermissionsToRole(ctx context.Context, roleID string, permissionIDs []string) (model.Role, error)
	RemovePermissionsFromRole(ctx context.Context, roleID string, permissionIDs []string) (model.Role, error)

	GetDefaultRole(ctx context.Context) (model.Role, error)
	GetSystemRoles(ctx context.Context) ([]model.Role, error)
	GetActiveRoles(ctx context.Context) ([]model.Role, error)
}

// AssignOptions carries the optional fields of a new assignment.
type AssignOptions struct {
	// AssignedBy is the id of the acting administrator, empty when unknown.
	AssignedBy string
	// ExpiresAt bounds the assignment; nil never expires.
	ExpiresAt *time.Time
}

// UserRoleRepository manages user role assignments and answers access
// questions over effective assignments.
type UserRoleRepository interface {
	AssignRoleToUser(ctx context.Context, userID, roleID string, opts AssignOptions) (model.Assignment, error)
	AssignDefaultRole(ctx context.Context, userID string) (model.Assignment, error)
	RemoveRoleFromUser(ctx context.Context, userID, roleID string) (model.Assignment, error)

	GetUserRoles(ctx context.Context, userID string) ([]model.Assignment, error)
	GetUserAssignments(ctx context.Context, userID string) ([]model.Assignment, error)
	GetRoleUsers(ctx context.Context, roleID string) ([]model.Assignment, error)

	HasRole(ctx context.Context, userID, roleID string) (bool, error)
	HasAnyRole(ctx context.Context, userID string, roleIDs []string) (bool, error)
	HasAllRoles(ctx context.Context, userID string, roleIDs []string) (bool, error)

	DeactivateExpiredRoles(ctx context.Context) (int64, error)

	GetUserPermissions(ctx context.Context, userID string) ([]model.Permission, error)
	UserHasPermission(ctx context.Context, userID, permission string) (bool, error)
}

var (
	_ PermissionRepository = (*PermissionStore)(nil)
	_ RoleRepository       = (*RoleStore)(nil)
	_ UserRoleRepository   = (*UserRoleStore)(nil)
)

// domainError translates storage not-found and duplicate failures into
// domain errors. Everything else passes through.
func domainError(err error, resource, id string) error {
	switch {
	case err == nil:
		return nil
	case datasource.IsNotFound(err):
		return apperrors.NotFound(resource, id).WithCause(err)
	case datasource.IsDuplicate(err):
		return apperrors.Conflict(resource, "%s already exists", resource).WithCause(err)
	default:
		return err
	}
}
