// Package postgres implements the relational backend on PostgreSQL with
// lib/pq. Identifiers are version 4 UUIDs, role permission sets live in the
// role_permissions join table and the one-active-assignment rule is enforced
// by a partial unique index on user_roles.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/MertBaran/QA-API-sub001/pkg/datasource"
	"github.com/MertBaran/QA-API-sub001/pkg/ids"
	"github.com/MertBaran/QA-API-sub001/pkg/model"
)

func init() {
	datasource.Register(ids.KindRelational, Open)
}

// Backend is the PostgreSQL datasource.Backend.
type Backend struct {
	db          *sql.DB
	scheme      ids.Scheme
	permissions *table[model.Permission]
	roles       *roleTable
	assignments *assignmentTable
}

// Open connects using cfg and returns the backend. Schema creation is left
// to Migrate.
func Open(ctx context.Context, cfg datasource.Config) (datasource.Backend, error) {
	db, err := Connect(ctx, ConnectionConfig{
		URL:         cfg.URI,
		MaxConns:    cfg.MaxConns,
		MinConns:    cfg.MinConns,
		Timeout:     cfg.Timeout,
		MaxLifetime: cfg.ConnMaxLifetime,
		MaxIdleTime: 5 * time.Minute,
	})
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

// New wraps an open database handle.
func New(db *sql.DB) *Backend {
	return newBackend(db, time.Now)
}

func newBackend(db *sql.DB, now func() time.Time) *Backend {
	scheme := ids.UUIDScheme{}
	return &Backend{
		db:          db,
		scheme:      scheme,
		permissions: &table[model.Permission]{db: db, scheme: scheme, now: now, spec: permissionSpec()},
		roles:       &roleTable{table: &table[model.Role]{db: db, scheme: scheme, now: now, spec: roleSpec()}},
		assignments: &assignmentTable{table: &table[model.Assignment]{db: db, scheme: scheme, now: now, spec: assignmentSpec()}},
	}
}

func (b *Backend) Kind() ids.Kind  { return ids.KindRelational }
func (b *Backend) IDs() ids.Scheme { return b.scheme }

func (b *Backend) Permissions() datasource.DataSource[model.Permission] { return b.permissions }
func (b *Backend) Roles() datasource.RoleSource                         { return b.roles }
func (b *Backend) Assignments() datasource.AssignmentSource             { return b.assignments }

// Migrate applies pending schema migrations.
func (b *Backend) Migrate(ctx context.Context) error {
	return RunMigrations(ctx, b.db)
}

// Ping verifies the connection with a trivial query.
func (b *Backend) Ping(ctx context.Context) error {
	if err := b.db.PingContext(ctx); err != nil {
		return classify("ping", "database", err)
	}
	var one int
	if err := b.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return classify("ping", "database", err)
	}
	return nil
}

func (b *Backend) Close(ctx context.Context) error {
	return b.db.Close()
}

type roleTable struct {
	*table[model.Role]
}

func (t *roleTable) AddPermissions(ctx context.Context, roleID string, permissionIDs []string) (model.Role, error) {
	return t.mutate(ctx, "add permissions", roleID, permissionIDs, insertRolePermissionsQuery)
}

func (t *roleTable) RemovePermissions(ctx context.Context, roleID string, permissionIDs []string) (model.Role, error) {
	return t.mutate(ctx, "remove permissions", roleID, permissionIDs, deleteRolePermissionsQuery)
}

// mutate locks the role row by touching updated_at, applies query to the
// join table and reads the role back inside one transaction.
func (t *roleTable) mutate(ctx context.Context, op, roleID string, permissionIDs []string, query string) (model.Role, error) {
	permissionIDs = model.UniqueIDs(permissionIDs)
	if err := datasource.CheckIDList(t.scheme, model.FieldPermissions, permissionIDs); err != nil {
		return model.Role{}, err
	}
	if !t.scheme.Valid(roleID) {
		return model.Role{}, datasource.NotFound(t.spec.entity, roleID)
	}

	var role model.Role
	err := withTx(ctx, t.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "UPDATE roles SET updated_at = $1 WHERE id = $2", model.Timestamp(t.now()), roleID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return datasource.NotFound(t.spec.entity, roleID)
		}
		if len(permissionIDs) > 0 {
			if _, err := tx.ExecContext(ctx, query, roleID, pq.Array(permissionIDs)); err != nil {
				return err
			}
		}
		role, err = t.selectByID(ctx, tx, roleID)
		return err
	})
	if err != nil {
		return model.Role{}, classify(t.op(op), t.spec.entity, err)
	}
	return role, nil
}

type assignmentTable struct {
	*table[model.Assignment]
}

const deactivateExpiredQuery = `
	UPDATE user_roles
	SET is_active = FALSE, updated_at = $1
	WHERE is_active AND expires_at IS NOT NULL AND expires_at <= $2`

func (t *assignmentTable) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := t.db.ExecContext(ctx, deactivateExpiredQuery, model.Timestamp(t.now()), now)
	if err != nil {
		return 0, classify(t.op("deactivate expired"), t.spec.entity, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}
