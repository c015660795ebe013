package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations returns the schema history in order. Ids are UUIDs generated by
// the application; user ids reference an external users table and carry no
// foreign key. Permission ids inside role_permissions carry no foreign key
// either, so a deleted permission leaves a dangling reference that the
// resolver skips, exactly like the document store.
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS permissions (
					id UUID PRIMARY KEY,
					name VARCHAR(100) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					resource VARCHAR(100) NOT NULL,
					action VARCHAR(100) NOT NULL,
					category VARCHAR(20) NOT NULL,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE UNIQUE INDEX IF NOT EXISTS idx_permissions_name ON permissions(name);
				CREATE INDEX IF NOT EXISTS idx_permissions_resource ON permissions(resource);
				CREATE INDEX IF NOT EXISTS idx_permissions_category ON permissions(category);
			`,
		},
		{
			Version:     2,
			Description: "Create roles and role_permissions tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS roles (
					id UUID PRIMARY KEY,
					name VARCHAR(50) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					is_system BOOLEAN NOT NULL DEFAULT FALSE,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE UNIQUE INDEX IF NOT EXISTS idx_roles_name ON roles(name);
				CREATE INDEX IF NOT EXISTS idx_roles_is_active ON roles(is_active);

				CREATE TABLE IF NOT EXISTS role_permissions (
					role_id UUID NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					permission_id UUID NOT NULL,
					position BIGSERIAL,
					PRIMARY KEY (role_id, permission_id)
				);

				CREATE INDEX IF NOT EXISTS idx_role_permissions_permission_id ON role_permissions(permission_id);
			`,
		},
		{
			Version:     3,
			Description: "Create user_roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_roles (
					id UUID PRIMARY KEY,
					user_id UUID NOT NULL,
					role_id UUID NOT NULL,
					assigned_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					assigned_by UUID,
					expires_at TIMESTAMPTZ,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE UNIQUE INDEX IF NOT EXISTS idx_user_roles_active_pair
					ON user_roles(user_id, role_id) WHERE is_active;
				CREATE INDEX IF NOT EXISTS idx_user_roles_user_id ON user_roles(user_id);
				CREATE INDEX IF NOT EXISTS idx_user_roles_role_id ON user_roles(role_id);
				CREATE INDEX IF NOT EXISTS idx_user_roles_expiry
					ON user_roles(expires_at) WHERE is_active AND expires_at IS NOT NULL;
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS qa_schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM qa_schema_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()

	for _, migration := range Migrations() {
		if applied[migration.Version] {
			continue
		}
		if err := applyMigration(ctx, db, migration); err != nil {
			return err
		}
	}

	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, migration Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
		return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO qa_schema_migrations (version, description) VALUES ($1, $2)",
		migration.Version, migration.Description,
	); err != nil {
		return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
	}
	return nil
}
