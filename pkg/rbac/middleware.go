package rbac

import (
	"context"
	"net/http"

	"github.com/MertBaran/QA-API-sub001/pkg/apperrors"
	"github.com/MertBaran/QA-API-sub001/pkg/contextkeys"
	"github.com/MertBaran/QA-API-sub001/pkg/httputil"
	"github.com/MertBaran/QA-API-sub001/pkg/ids"
)

// PermissionChecker answers permission questions for a user.
type PermissionChecker interface {
	HasPermission(ctx context.Context, userID, permission string) (bool, error)
	HasAnyPermission(ctx context.Context, userID string, names []string) (bool, error)
	HasAllPermissions(ctx context.Context, userID string, names []string) (bool, error)
}

// RoleChecker answers role membership questions for a user.
type RoleChecker interface {
	HasRole(ctx context.Context, userID, roleID string) (bool, error)
}

var _ PermissionChecker = (*Resolver)(nil)

// Middleware guards handlers. The caller's id is read from the request
// context; it is set there by the authentication layer in front of it.
type Middleware struct {
	permissions PermissionChecker
	roles       RoleChecker
	scheme      ids.Scheme
}

// NewMiddleware creates the guard. roles may be nil when RequireRole is
// not used.
func NewMiddleware(permissions PermissionChecker, roles RoleChecker, scheme ids.Scheme) *Middleware {
	return &Middleware{permissions: permissions, roles: roles, scheme: scheme}
}

// RequirePermission allows the request when the caller holds permission.
func (m *Middleware) RequirePermission(permission string) func(http.Handler) http.Handler {
	return m.guard(func(ctx context.Context, userID string) (bool, error) {
		return m.permissions.HasPermission(ctx, userID, permission)
	}, "missing permission %s", permission)
}

// RequireAnyPermission allows the request when the caller holds at least
// one of names.
func (m *Middleware) RequireAnyPermission(names ...string) func(http.Handler) http.Handler {
	return m.guard(func(ctx context.Context, userID string) (bool, error) {
		return m.permissions.HasAnyPermission(ctx, userID, names)
	}, "requires any of %v", names)
}

// RequireAllPermissions allows the request when the caller holds every one
// of names.
func (m *Middleware) RequireAllPermissions(names ...string) func(http.Handler) http.Handler {
	return m.guard(func(ctx context.Context, userID string) (bool, error) {
		return m.permissions.HasAllPermissions(ctx, userID, names)
	}, "requires all of %v", names)
}

// RequireRole allows the request when the caller has an effective
// assignment of roleID.
func (m *Middleware) RequireRole(roleID string) func(http.Handler) http.Handler {
	return m.guard(func(ctx context.Context, userID string) (bool, error) {
		return m.roles.HasRole(ctx, userID, roleID)
	}, "missing role %s", roleID)
}

func (m *Middleware) guard(allowed func(ctx context.Context, userID string) (bool, error), format string, args ...interface{}) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := contextkeys.GetUserID(r.Context())
			if userID == "" {
				httputil.WriteAppError(w, apperrors.Unauthenticated("no authenticated user"))
				return
			}
			if !m.scheme.Valid(userID) {
				httputil.WriteAppError(w, apperrors.Unauthenticated("malformed user id"))
				return
			}
			userID = m.scheme.Canonical(userID)

			ok, err := allowed(r.Context(), userID)
			if err != nil {
				httputil.WriteAppError(w, err)
				return
			}
			if !ok {
				httputil.WriteAppError(w, apperrors.Forbidden(format, args...))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
