package rbac

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/MertBaran/QA-API-sub001/pkg/apperrors"
	"github.com/MertBaran/QA-API-sub001/pkg/contextkeys"
	"github.com/MertBaran/QA-API-sub001/pkg/httputil"
	"github.com/MertBaran/QA-API-sub001/pkg/model"
	"github.com/MertBaran/QA-API-sub001/pkg/observability"
)

// Handlers provides HTTP handlers for RBAC administration
type Handlers struct {
	permissions PermissionRepository
	roles       RoleRepository
	users       UserRoleRepository
	logger      *observability.Logger
}

// NewHandlers creates new RBAC handlers
func NewHandlers(permissions PermissionRepository, roles RoleRepository, users UserRoleRepository, opts ...Option) *Handlers {
	s := newSettings(opts)
	return &Handlers{permissions: permissions, roles: roles, users: users, logger: s.logger}
}

// RegisterRoutes registers all RBAC routes under /rbac. middleware guards
// every route.
func (h *Handlers) RegisterRoutes(router *mux.Router, middleware ...mux.MiddlewareFunc) {
	r := router.PathPrefix("/rbac").Subrouter()
	r.Use(middleware...)

	// Permission catalogue
	r.HandleFunc("/permissions", h.ListPermissions).Methods(http.MethodGet)
	r.HandleFunc("/permissions", h.CreatePermission).Methods(http.MethodPost)
	r.HandleFunc("/permissions/{id}", h.GetPermission).Methods(http.MethodGet)
	r.HandleFunc("/permissions/{id}", h.UpdatePermission).Methods(http.MethodPatch)
	r.HandleFunc("/permissions/{id}", h.DeletePermission).Methods(http.MethodDelete)

	// Roles
	r.HandleFunc("/roles", h.ListRoles).Methods(http.MethodGet)
	r.HandleFunc("/roles", h.CreateRole).Methods(http.MethodPost)
	r.HandleFunc("/roles/{id}", h.GetRole).Methods(http.MethodGet)
	r.HandleFunc("/roles/{id}", h.UpdateRole).Methods(http.MethodPatch)
	r.HandleFunc("/roles/{id}", h.DeleteRole).Methods(http.MethodDelete)
	r.HandleFunc("/roles/{id}/permissions", h.AddRolePermissions).Methods(http.MethodPost)
	r.HandleFunc("/roles/{id}/permissions", h.RemoveRolePermissions).Methods(http.MethodDelete)
	r.HandleFunc("/roles/{id}/users", h.GetRoleUsers).Methods(http.MethodGet)

	// User assignments
	r.HandleFunc("/users/{id}/roles", h.GetUserRoles).Methods(http.MethodGet)
	r.HandleFunc("/users/{id}/roles", h.AssignRoleToUser).Methods(http.MethodPost)
	r.HandleFunc("/users/{id}/roles/{role_id}", h.RemoveRoleFromUser).Methods(http.MethodDelete)
	r.HandleFunc("/users/{id}/permissions", h.GetUserPermissions).Methods(http.MethodGet)

	r.HandleFunc("/sweep", h.Sweep).Methods(http.MethodPost)
}

// ListPermissions lists permissions, optionally filtered by resource,
// category or active=true.
func (h *Handlers) ListPermissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	active, err := httputil.ParseQueryBool(r, "active", false)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	var perms []model.Permission
	switch {
	case r.URL.Query().Get("resource") != "":
		perms, err = h.permissions.FindByResource(ctx, r.URL.Query().Get("resource"))
	case r.URL.Query().Get("category") != "":
		perms, err = h.permissions.FindByCategory(ctx, model.Category(r.URL.Query().Get("category")))
	case active:
		perms, err = h.permissions.FindActive(ctx)
	default:
		perms, err = h.permissions.FindAll(ctx)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, perms)
}

type permissionRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Resource    string         `json:"resource"`
	Action      string         `json:"action"`
	Category    model.Category `json:"category"`
}

func (h *Handlers) CreatePermission(w http.ResponseWriter, r *http.Request) {
	var req permissionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	p, err := h.permissions.Create(r.Context(), model.Permission{
		Name:        req.Name,
		Description: req.Description,
		Resource:    req.Resource,
		Action:      req.Action,
		Category:    req.Category,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteCreated(w, p)
}

func (h *Handlers) GetPermission(w http.ResponseWriter, r *http.Request) {
	p, err := h.permissions.FindByID(r.Context(), httputil.PathVar(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, p)
}

// UpdatePermission applies a JSON object of logical fields as a patch.
func (h *Handlers) UpdatePermission(w http.ResponseWriter, r *http.Request) {
	var patch model.Fields
	if !httputil.ParseJSONOrError(w, r, &patch) {
		return
	}
	p, err := h.permissions.Update(r.Context(), httputil.PathVar(r, "id"), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, p)
}

func (h *Handlers) DeletePermission(w http.ResponseWriter, r *http.Request) {
	p, err := h.permissions.Delete(r.Context(), httputil.PathVar(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, p)
}

// ListRoles lists roles, optionally only system=true or active=true ones.
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	system, err := httputil.ParseQueryBool(r, "system", false)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	active, err := httputil.ParseQueryBool(r, "active", false)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	var roles []model.Role
	switch {
	case system:
		roles, err = h.roles.GetSystemRoles(ctx)
	case active:
		roles, err = h.roles.GetActiveRoles(ctx)
	default:
		roles, err = h.roles.FindAll(ctx)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, roles)
}

type roleRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
	IsSystem    bool     `json:"isSystem"`
}

func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	role, err := h.roles.Create(r.Context(), model.Role{
		Name:        req.Name,
		Description: req.Description,
		Permissions: req.Permissions,
		IsSystem:    req.IsSystem,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteCreated(w, role)
}

func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.roles.FindByID(r.Context(), httputil.PathVar(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

func (h *Handlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var patch model.Fields
	if !httputil.ParseJSONOrError(w, r, &patch) {
		return
	}
	role, err := h.roles.Update(r.Context(), httputil.PathVar(r, "id"), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

func (h *Handlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.roles.Delete(r.Context(), httputil.PathVar(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

type membershipRequest struct {
	PermissionIDs []string `json:"permissionIds"`
}

func (h *Handlers) AddRolePermissions(w http.ResponseWriter, r *http.Request) {
	var req membershipRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	role, err := h.roles.AddPermissionsToRole(r.Context(), httputil.PathVar(r, "id"), req.PermissionIDs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

func (h *Handlers) RemoveRolePermissions(w http.ResponseWriter, r *http.Request) {
	var req membershipRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	role, err := h.roles.RemovePermissionsFromRole(r.Context(), httputil.PathVar(r, "id"), req.PermissionIDs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

func (h *Handlers) GetRoleUsers(w http.ResponseWriter, r *http.Request) {
	assignments, err := h.users.GetRoleUsers(r.Context(), httputil.PathVar(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, assignments)
}

// GetUserRoles returns the user's effective assignments, or the full
// history with history=true.
func (h *Handlers) GetUserRoles(w http.ResponseWriter, r *http.Request) {
	history, err := httputil.ParseQueryBool(r, "history", false)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	userID := httputil.PathVar(r, "id")

	var assignments []model.Assignment
	if history {
		assignments, err = h.users.GetUserAssignments(r.Context(), userID)
	} else {
		assignments, err = h.users.GetUserRoles(r.Context(), userID)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, assignments)
}

type assignRequest struct {
	RoleID    string     `json:"roleId"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// AssignRoleToUser records the authenticated caller, if any, as assigner.
func (h *Handlers) AssignRoleToUser(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	a, err := h.users.AssignRoleToUser(r.Context(), httputil.PathVar(r, "id"), req.RoleID, AssignOptions{
		AssignedBy: contextkeys.GetUserID(r.Context()),
		ExpiresAt:  req.ExpiresAt,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteCreated(w, a)
}

func (h *Handlers) RemoveRoleFromUser(w http.ResponseWriter, r *http.Request) {
	a, err := h.users.RemoveRoleFromUser(r.Context(), httputil.PathVar(r, "id"), httputil.PathVar(r, "role_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, a)
}

func (h *Handlers) GetUserPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.users.GetUserPermissions(r.Context(), httputil.PathVar(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, perms)
}

// Sweep runs the expiry sweep immediately.
func (h *Handlers) Sweep(w http.ResponseWriter, r *http.Request) {
	n, err := h.users.DeactivateExpiredRoles(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]int64{"deactivated": n})
}

// fail logs errors worth logging and writes the classified response.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	if appErr := apperrors.FromError(err); appErr.ShouldLog() {
		entry := h.logger.WithError(err).WithFields(map[string]interface{}{
			"method":     r.Method,
			"path":       r.URL.Path,
			"code":       appErr.Code,
			"request_id": contextkeys.GetRequestID(r.Context()),
		})
		if appErr.ShouldAlert() {
			entry = entry.WithField("alert", true)
		}
		entry.Warn("request failed")
	}
	httputil.WriteAppError(w, err)
}
