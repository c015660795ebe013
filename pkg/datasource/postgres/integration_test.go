//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/MertBaran/QA-API-sub001/pkg/datasource"
	"github.com/MertBaran/QA-API-sub001/pkg/datasource/datasourcetest"
	"github.com/MertBaran/QA-API-sub001/pkg/ids"
)

// setupPostgres starts one container for the whole contract run and returns
// its connection string.
func setupPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("qa_test"),
		tcpostgres.WithUsername("qa"),
		tcpostgres.WithPassword("qa_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return connStr
}

func TestPostgresContract(t *testing.T) {
	url := setupPostgres(t)

	datasourcetest.Run(t, func(t *testing.T) datasource.Backend {
		ctx := context.Background()
		b, err := datasource.Open(ctx, datasource.Config{
			Kind:     ids.KindRelational,
			URI:      url,
			MaxConns: 5,
			Timeout:  10 * time.Second,
		})
		require.NoError(t, err)
		require.NoError(t, b.Migrate(ctx))

		// Subtests share the database, so every run starts from empty tables.
		_, err = b.Assignments().DeleteAll(ctx)
		require.NoError(t, err)
		_, err = b.Roles().DeleteAll(ctx)
		require.NoError(t, err)
		_, err = b.Permissions().DeleteAll(ctx)
		require.NoError(t, err)

		t.Cleanup(func() { b.Close(context.Background()) })
		return b
	})
}

func TestMigrationsAreIdempotent(t *testing.T) {
	url := setupPostgres(t)
	ctx := context.Background()

	db, err := Connect(ctx, ConnectionConfig{URL: url, MaxConns: 2})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, RunMigrations(ctx, db))
	require.NoError(t, RunMigrations(ctx, db))

	b := New(db)
	require.NoError(t, b.Ping(ctx))
}
