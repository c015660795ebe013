// Package rbac implements role-based access control for the Q&A platform.
//
// # Overview
//
// Three entities make up the model:
//
//  1. Permissions: a flat catalogue of resource + action pairs (e.g. "questions:create")
//  2. Roles: named sets of permission ids (e.g. "moderator")
//  3. Assignments: time-bounded links between a user and a role
//
// A user's effective permission set is the union of the permission sets of every
// active role reachable through an effective assignment. An assignment is effective
// while it is active and its expiry, if any, lies in the future. Effectiveness is
// always evaluated at read time, so an expired assignment stops granting access
// before the background sweep deactivates it.
//
// # Stores
//
// PermissionStore, RoleStore and UserRoleStore implement the repository interfaces on
// top of a datasource.Backend. They translate storage errors into domain errors:
//
//	datasource.ErrNotFound  -> apperrors.ErrNotFound (404)
//	datasource.ErrDuplicate -> apperrors.ErrAlreadyExists / ErrRoleAlreadyAssigned (409)
//
// At most one active assignment may exist per user and role. UserRoleStore checks
// this before inserting, and the storage engine enforces it with a partial unique
// index; a late duplicate-key failure is reported as the same conflict.
//
// # Resolution
//
// Resolver computes effective permissions:
//
//	assignments(user) -> effective only -> roles (active only) -> union of ids -> permissions
//
// Ids that no longer resolve are dropped and logged. With a cache configured, the
// result is stored per user with a TTL capped at the earliest assignment expiry, and
// concurrent fills for the same user are collapsed.
//
// # Cache Invalidation
//
// Every write that can change a cached result clears the affected keys before
// returning:
//
//	assign / remove role          -> rbac:user:<id>:*
//	role or permission writes     -> rbac:user:*, rbac:roles:*, rbac:permissions:*
//	sweep deactivating any row    -> rbac:user:*
//
// # HTTP
//
// Middleware guards handlers with RequirePermission, RequireAnyPermission,
// RequireAllPermissions and RequireRole. The caller's user id is read from the
// request context, where an upstream authentication layer stores it, and must be
// a well-formed id for the active backend.
//
// Handlers exposes the administrative API:
//
//	GET    /rbac/permissions
//	POST   /rbac/permissions
//	GET    /rbac/permissions/{id}
//	PATCH  /rbac/permissions/{id}
//	DELETE /rbac/permissions/{id}
//	GET    /rbac/roles
//	POST   /rbac/roles
//	GET    /rbac/roles/{id}
//	PATCH  /rbac/roles/{id}
//	DELETE /rbac/roles/{id}
//	POST   /rbac/roles/{id}/permissions
//	DELETE /rbac/roles/{id}/permissions
//	GET    /rbac/roles/{id}/users
//	GET    /rbac/users/{id}/roles
//	POST   /rbac/users/{id}/roles
//	DELETE /rbac/users/{id}/roles/{role_id}
//	GET    /rbac/users/{id}/permissions
//	POST   /rbac/sweep
//
// # Sweep
//
// Sweeper runs DeactivateExpiredRoles on a cron schedule. The operation is
// idempotent: a second run over the same data deactivates nothing.
//
// # Seeding
//
// Seeder applies a YAML file of permissions and roles by name, creating what is
// missing and adding missing memberships, then checks that the default "user" role
// exists.
package rbac
