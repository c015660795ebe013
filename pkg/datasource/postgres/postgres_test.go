package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MertBaran/QA-API-sub001/pkg/apperrors"
	"github.com/MertBaran/QA-API-sub001/pkg/datasource"
	"github.com/MertBaran/QA-API-sub001/pkg/ids"
	"github.com/MertBaran/QA-API-sub001/pkg/model"
)

var fixedNow = time.Date(2026, 3, 14, 9, 26, 53, 589000000, time.UTC)

func newMockBackend(t *testing.T) (*Backend, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return newBackend(db, func() time.Time { return fixedNow }), mock
}

var permissionColumns = []string{"id", "name", "description", "resource", "action", "category", "is_active", "created_at", "updated_at"}

func TestBackendIdentity(t *testing.T) {
	b, _ := newMockBackend(t)
	assert.Equal(t, ids.KindRelational, b.Kind())
	assert.Equal(t, ids.KindRelational, b.IDs().Kind())
}

func TestPermissionFindByID(t *testing.T) {
	b, mock := newMockBackend(t)
	ctx := context.Background()

	t.Run("malformed id never reaches the database", func(t *testing.T) {
		_, err := b.Permissions().FindByID(ctx, "507f1f77bcf86cd799439011")
		assert.True(t, datasource.IsNotFound(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("row found", func(t *testing.T) {
		id := ids.UUIDScheme{}.New()
		rows := sqlmock.NewRows(permissionColumns).
			AddRow(id, "questions.create", "", "questions", "create", "content", true, fixedNow, fixedNow)
		mock.ExpectQuery(regexp.QuoteMeta("FROM permissions WHERE id = $1")).
			WithArgs(id).
			WillReturnRows(rows)

		p, err := b.Permissions().FindByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "questions.create", p.Name)
		assert.Equal(t, model.CategoryContent, p.Category)
		assert.Equal(t, time.UTC, p.CreatedAt.Location())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no rows", func(t *testing.T) {
		id := ids.UUIDScheme{}.New()
		mock.ExpectQuery(regexp.QuoteMeta("FROM permissions WHERE id = $1")).
			WithArgs(id).
			WillReturnError(sql.ErrNoRows)

		_, err := b.Permissions().FindByID(ctx, id)
		assert.True(t, datasource.IsNotFound(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPermissionCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts with generated id", func(t *testing.T) {
		b, mock := newMockBackend(t)
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO permissions (id, name, description, resource, action, category, is_active, created_at, updated_at)")).
			WithArgs(sqlmock.AnyArg(), "answers.delete", "", "answers", "delete", "content", true, fixedNow, fixedNow).
			WillReturnResult(sqlmock.NewResult(0, 1))

		p, err := b.Permissions().Create(ctx, model.Permission{
			Name: "answers.delete", Resource: "answers", Action: "delete", Category: model.CategoryContent,
		})
		require.NoError(t, err)
		assert.True(t, ids.UUIDScheme{}.Valid(p.ID))
		assert.True(t, p.IsActive)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unique violation", func(t *testing.T) {
		b, mock := newMockBackend(t)
		mock.ExpectExec("INSERT INTO permissions").
			WillReturnError(&pq.Error{Code: "23505", Constraint: "idx_permissions_name"})

		_, err := b.Permissions().Create(ctx, model.Permission{
			Name: "answers.delete", Resource: "answers", Action: "delete", Category: model.CategoryContent,
		})
		assert.True(t, datasource.IsDuplicate(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRoleCreateWritesPermissionSet(t *testing.T) {
	b, mock := newMockBackend(t)
	p1, p2 := ids.UUIDScheme{}.New(), ids.UUIDScheme{}.New()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO roles").
		WithArgs(sqlmock.AnyArg(), "moderator", "", false, true, fixedNow, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO role_permissions").
		WithArgs(sqlmock.AnyArg(), pq.Array([]string{p1, p2})).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	role, err := b.Roles().Create(context.Background(), model.Role{Name: "moderator", Permissions: []string{p1, p2, p1}})
	require.NoError(t, err)
	assert.Equal(t, []string{p1, p2}, role.Permissions)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleCreateRejectsForeignPermissionIDs(t *testing.T) {
	b, mock := newMockBackend(t)

	_, err := b.Roles().Create(context.Background(), model.Role{
		Name:        "moderator",
		Permissions: []string{ids.ObjectIDScheme{}.New()},
	})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidID))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleAddPermissions(t *testing.T) {
	ctx := context.Background()

	t.Run("missing role rolls back", func(t *testing.T) {
		b, mock := newMockBackend(t)
		roleID := ids.UUIDScheme{}.New()

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("UPDATE roles SET updated_at = $1 WHERE id = $2")).
			WithArgs(fixedNow, roleID).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		_, err := b.Roles().AddPermissions(ctx, roleID, []string{ids.UUIDScheme{}.New()})
		assert.True(t, datasource.IsNotFound(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("appends and reads back", func(t *testing.T) {
		b, mock := newMockBackend(t)
		roleID := ids.UUIDScheme{}.New()
		p1 := ids.UUIDScheme{}.New()

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("UPDATE roles SET updated_at = $1 WHERE id = $2")).
			WithArgs(fixedNow, roleID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO role_permissions").
			WithArgs(roleID, pq.Array([]string{p1})).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(regexp.QuoteMeta("FROM roles WHERE id = $1")).
			WithArgs(roleID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "is_system", "is_active", "created_at", "updated_at", "permissions"}).
				AddRow(roleID, "moderator", "", false, true, fixedNow, fixedNow, "{"+p1+"}"))
		mock.ExpectCommit()

		role, err := b.Roles().AddPermissions(ctx, roleID, []string{p1, p1})
		require.NoError(t, err)
		assert.Equal(t, []string{p1}, role.Permissions)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAssignmentFindByFields(t *testing.T) {
	b, mock := newMockBackend(t)
	userID := ids.UUIDScheme{}.New()

	mock.ExpectQuery(regexp.QuoteMeta("FROM user_roles WHERE is_active = $1 AND user_id = $2 ORDER BY created_at, id")).
		WithArgs(true, userID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "role_id", "assigned_at", "assigned_by", "expires_at", "is_active", "created_at", "updated_at"}).
			AddRow(ids.UUIDScheme{}.New(), userID, ids.UUIDScheme{}.New(), fixedNow, nil, nil, true, fixedNow, fixedNow))

	list, err := b.Assignments().FindByFields(context.Background(), model.Fields{
		model.FieldUserID:   userID,
		model.FieldIsActive: true,
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Empty(t, list[0].AssignedBy)
	assert.Nil(t, list[0].ExpiresAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentFilterWithForeignIDMatchesNothing(t *testing.T) {
	b, mock := newMockBackend(t)

	list, err := b.Assignments().FindByField(context.Background(), model.FieldUserID, "not-an-id")
	require.NoError(t, err)
	assert.Empty(t, list)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeactivateExpired(t *testing.T) {
	b, mock := newMockBackend(t)
	cutoff := fixedNow.Add(time.Minute)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE user_roles")).
		WithArgs(fixedNow, cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := b.Assignments().DeactivateExpired(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"unique violation", &pq.Error{Code: "23505"}, "DUPLICATE_KEY"},
		{"connection failure", &pq.Error{Code: "08006"}, apperrors.CodeUnavailable},
		{"admin shutdown", &pq.Error{Code: "57P01"}, apperrors.CodeUnavailable},
		{"syntax error", &pq.Error{Code: "42601"}, apperrors.CodeInternal},
		{"bad connection", sql.ErrConnDone, apperrors.CodeInternal},
		{"classified passes through", datasource.NotFound("role", "x"), "RECORD_NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr, ok := apperrors.As(classify("op", "role", tt.err))
			require.True(t, ok)
			assert.Equal(t, tt.code, appErr.Code)
		})
	}
	assert.NoError(t, classify("op", "role", nil))
}

func TestRunMigrations(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS qa_schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM qa_schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1).AddRow(2))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS user_roles").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO qa_schema_migrations").
		WithArgs(3, "Create user_roles table").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, RunMigrations(context.Background(), db))
	require.NoError(t, mock.ExpectationsWereMet())
}
