package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/MertBaran/QA-API-sub001/pkg/model"
)

func permissionSpec() tableSpec[model.Permission] {
	return tableSpec[model.Permission]{
		entity:     "permission",
		table:      "permissions",
		selectList: "id, name, description, resource, action, category, is_active, created_at, updated_at",
		insertColumns: []string{
			"id", "name", "description", "resource", "action", "category", "is_active", "created_at", "updated_at",
		},
		insertArgs: func(p model.Permission) []interface{} {
			return []interface{}{
				p.ID, p.Name, p.Description, p.Resource, p.Action, string(p.Category), p.IsActive, p.CreatedAt, p.UpdatedAt,
			}
		},
		columns: map[string]string{
			model.FieldID:          "id",
			model.FieldName:        "name",
			model.FieldDescription: "description",
			model.FieldResource:    "resource",
			model.FieldAction:      "action",
			model.FieldCategory:    "category",
			model.FieldIsActive:    "is_active",
			model.FieldCreatedAt:   "created_at",
			model.FieldUpdatedAt:   "updated_at",
		},
		scan: scanPermission,
	}
}

func scanPermission(row scanner) (model.Permission, error) {
	var p model.Permission
	var category string
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Resource, &p.Action, &category, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return model.Permission{}, err
	}
	p.Category = model.Category(category)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

// The permission set is read back in insertion order through the position
// column of the join table.
const roleSelectList = `id, name, description, is_system, is_active, created_at, updated_at,
	ARRAY(SELECT rp.permission_id::text FROM role_permissions rp WHERE rp.role_id = roles.id ORDER BY rp.position) AS permissions`

func roleSpec() tableSpec[model.Role] {
	return tableSpec[model.Role]{
		entity:        "role",
		table:         "roles",
		selectList:    roleSelectList,
		insertColumns: []string{"id", "name", "description", "is_system", "is_active", "created_at", "updated_at"},
		insertArgs: func(r model.Role) []interface{} {
			return []interface{}{r.ID, r.Name, r.Description, r.IsSystem, r.IsActive, r.CreatedAt, r.UpdatedAt}
		},
		columns: map[string]string{
			model.FieldID:          "id",
			model.FieldName:        "name",
			model.FieldDescription: "description",
			model.FieldIsSystem:    "is_system",
			model.FieldIsActive:    "is_active",
			model.FieldCreatedAt:   "created_at",
			model.FieldUpdatedAt:   "updated_at",
		},
		scan:       scanRole,
		writeExtra: writeRolePermissions,
	}
}

func scanRole(row scanner) (model.Role, error) {
	var r model.Role
	var permissions []string
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.IsSystem, &r.IsActive, &r.CreatedAt, &r.UpdatedAt, pq.Array(&permissions))
	if err != nil {
		return model.Role{}, err
	}
	if permissions == nil {
		permissions = []string{}
	}
	r.Permissions = permissions
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, nil
}

const (
	insertRolePermissionsQuery = `
		INSERT INTO role_permissions (role_id, permission_id)
		SELECT $1::uuid, p.id FROM unnest($2::uuid[]) WITH ORDINALITY AS p(id, ord)
		ORDER BY p.ord
		ON CONFLICT (role_id, permission_id) DO NOTHING`

	deleteRolePermissionsQuery = `
		DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = ANY($2::uuid[])`

	clearRolePermissionsQuery = `DELETE FROM role_permissions WHERE role_id = $1`
)

func writeRolePermissions(ctx context.Context, tx *sql.Tx, roleID string, fields model.Fields, replace bool) error {
	v, ok := fields[model.FieldPermissions]
	if !ok {
		return nil
	}
	ids, ok := v.([]string)
	if !ok {
		return fmt.Errorf("unexpected permissions value %T", v)
	}
	if replace {
		if _, err := tx.ExecContext(ctx, clearRolePermissionsQuery, roleID); err != nil {
			return err
		}
	}
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx, insertRolePermissionsQuery, roleID, pq.Array(ids))
	return err
}

func assignmentSpec() tableSpec[model.Assignment] {
	return tableSpec[model.Assignment]{
		entity:     "assignment",
		table:      "user_roles",
		selectList: "id, user_id, role_id, assigned_at, assigned_by, expires_at, is_active, created_at, updated_at",
		insertColumns: []string{
			"id", "user_id", "role_id", "assigned_at", "assigned_by", "expires_at", "is_active", "created_at", "updated_at",
		},
		insertArgs: func(a model.Assignment) []interface{} {
			var assignedBy, expiresAt interface{}
			if a.AssignedBy != "" {
				assignedBy = a.AssignedBy
			}
			if a.ExpiresAt != nil {
				expiresAt = *a.ExpiresAt
			}
			return []interface{}{
				a.ID, a.UserID, a.RoleID, a.AssignedAt, assignedBy, expiresAt, a.IsActive, a.CreatedAt, a.UpdatedAt,
			}
		},
		columns: map[string]string{
			model.FieldID:         "id",
			model.FieldUserID:     "user_id",
			model.FieldRoleID:     "role_id",
			model.FieldAssignedAt: "assigned_at",
			model.FieldAssignedBy: "assigned_by",
			model.FieldExpiresAt:  "expires_at",
			model.FieldIsActive:   "is_active",
			model.FieldCreatedAt:  "created_at",
			model.FieldUpdatedAt:  "updated_at",
		},
		scan: scanAssignment,
	}
}

func scanAssignment(row scanner) (model.Assignment, error) {
	var a model.Assignment
	var assignedBy sql.NullString
	var expiresAt sql.NullTime
	err := row.Scan(&a.ID, &a.UserID, &a.RoleID, &a.AssignedAt, &assignedBy, &expiresAt, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return model.Assignment{}, err
	}
	a.AssignedBy = assignedBy.String
	if expiresAt.Valid {
		t := expiresAt.Time.UTC()
		a.ExpiresAt = &t
	}
	a.AssignedAt = a.AssignedAt.UTC()
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}
