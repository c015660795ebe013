// Package datasourcetest holds the behavioural contract every
// datasource.Backend must satisfy. Adapter packages run it against their
// own backend so that all backends stay observably identical.
package datasourcetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MertBaran/QA-API-sub001/pkg/apperrors"
	"github.com/MertBaran/QA-API-sub001/pkg/datasource"
	"github.com/MertBaran/QA-API-sub001/pkg/ids"
	"github.com/MertBaran/QA-API-sub001/pkg/model"
)

// Factory returns an empty, migrated backend. Cleanup is registered on t.
type Factory func(t *testing.T) datasource.Backend

// Run executes the full contract against backends produced by newBackend.
func Run(t *testing.T, newBackend Factory) {
	tests := []struct {
		name string
		fn   func(*testing.T, datasource.Backend)
	}{
		{"CreateAssignsIDAndDefaults", testCreateAssignsIDAndDefaults},
		{"FindByIDNotFound", testFindByIDNotFound},
		{"UpdateByID", testUpdateByID},
		{"DeleteByID", testDeleteByID},
		{"FindByFields", testFindByFields},
		{"CountAndDeleteAll", testCountAndDeleteAll},
		{"UniqueNames", testUniqueNames},
		{"RolePermissionSet", testRolePermissionSet},
		{"ActiveAssignmentUniqueness", testActiveAssignmentUniqueness},
		{"DeactivateExpired", testDeactivateExpired},
		{"AssignmentOptionalFields", testAssignmentOptionalFields},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newBackend(t))
		})
	}
}

func otherScheme(kind ids.Kind) ids.Scheme {
	if kind == ids.KindDocument {
		return ids.UUIDScheme{}
	}
	return ids.ObjectIDScheme{}
}

func newPermission(name string) model.Permission {
	return model.Permission{
		Name:        name,
		Description: "allows " + name,
		Resource:    "questions",
		Action:      name,
		Category:    model.CategoryContent,
	}
}

func testCreateAssignsIDAndDefaults(t *testing.T, b datasource.Backend) {
	ctx := context.Background()
	before := time.Now().Add(-time.Second)

	p, err := b.Permissions().Create(ctx, newPermission("create"))
	require.NoError(t, err)
	assert.True(t, b.IDs().Valid(p.ID), "id %q not valid for %s", p.ID, b.Kind())
	assert.True(t, ids.ValidForBackend(p.ID, b.Kind()))
	assert.True(t, p.IsActive)
	assert.True(t, p.CreatedAt.After(before))
	assert.True(t, p.CreatedAt.Equal(p.UpdatedAt))

	found, err := b.Permissions().FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, found.ID)
	assert.Equal(t, p.Name, found.Name)
	assert.Equal(t, p.Category, found.Category)
	assert.True(t, p.CreatedAt.Equal(found.CreatedAt))
}

func testFindByIDNotFound(t *testing.T, b datasource.Backend) {
	ctx := context.Background()

	for _, id := range []string{b.IDs().New(), otherScheme(b.Kind()).New(), "not-an-id", ""} {
		_, err := b.Roles().FindByID(ctx, id)
		assert.True(t, datasource.IsNotFound(err), "id %q: %v", id, err)

		_, ok, err := datasource.Lookup[model.Role](ctx, b.Roles(), id)
		assert.NoError(t, err)
		assert.False(t, ok)
	}
}

func testUpdateByID(t *testing.T, b datasource.Backend) {
	ctx := context.Background()

	p, err := b.Permissions().Create(ctx, newPermission("edit"))
	require.NoError(t, err)

	updated, err := b.Permissions().UpdateByID(ctx, p.ID, model.Fields{
		model.FieldDescription: "edit any question",
		model.FieldIsActive:    false,
	})
	require.NoError(t, err)
	assert.Equal(t, "edit any question", updated.Description)
	assert.False(t, updated.IsActive)
	assert.Equal(t, p.Name, updated.Name)
	assert.Equal(t, p.Resource, updated.Resource)
	assert.False(t, updated.UpdatedAt.Before(p.UpdatedAt))

	found, err := b.Permissions().FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, found.IsActive)

	_, err = b.Permissions().UpdateByID(ctx, b.IDs().New(), model.Fields{model.FieldIsActive: true})
	assert.True(t, datasource.IsNotFound(err))

	_, err = b.Permissions().UpdateByID(ctx, p.ID, model.Fields{model.FieldID: b.IDs().New()})
	assert.True(t, errors.Is(err, datasource.ErrInvalidField))

	_, err = b.Permissions().UpdateByID(ctx, p.ID, model.Fields{"unknown": 1})
	assert.True(t, errors.Is(err, datasource.ErrInvalidField))
}

func testDeleteByID(t *testing.T, b datasource.Backend) {
	ctx := context.Background()

	p, err := b.Permissions().Create(ctx, newPermission("delete"))
	require.NoError(t, err)

	deleted, err := b.Permissions().DeleteByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, deleted.ID)
	assert.Equal(t, p.Name, deleted.Name)

	_, err = b.Permissions().FindByID(ctx, p.ID)
	assert.True(t, datasource.IsNotFound(err))

	_, err = b.Permissions().DeleteByID(ctx, p.ID)
	assert.True(t, datasource.IsNotFound(err))
}

func testFindByFields(t *testing.T, b datasource.Backend) {
	ctx := context.Background()
	ps := b.Permissions()

	a, err := ps.Create(ctx, newPermission("answers:create"))
	require.NoError(t, err)
	_, err = ps.Create(ctx, model.Permission{Name: "users:ban", Resource: "users", Action: "ban", Category: model.CategoryUser})
	require.NoError(t, err)
	c, err := ps.Create(ctx, newPermission("questions:delete"))
	require.NoError(t, err)
	_, err = ps.UpdateByID(ctx, c.ID, model.Fields{model.FieldIsActive: false})
	require.NoError(t, err)

	byResource, err := ps.FindByField(ctx, model.FieldResource, "questions")
	require.NoError(t, err)
	assert.Len(t, byResource, 2)

	active, err := ps.FindByFields(ctx, model.Fields{
		model.FieldResource: "questions",
		model.FieldIsActive: true,
		model.FieldAction:   nil,
	})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, a.ID, active[0].ID)

	byCategory, err := ps.FindByField(ctx, model.FieldCategory, model.CategoryUser)
	require.NoError(t, err)
	assert.Len(t, byCategory, 1)

	byID, err := ps.FindByField(ctx, model.FieldID, a.ID)
	require.NoError(t, err)
	assert.Len(t, byID, 1)

	none, err := ps.FindByField(ctx, model.FieldID, otherScheme(b.Kind()).New())
	require.NoError(t, err)
	assert.Empty(t, none)

	all, err := ps.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = ps.FindByField(ctx, "colour", "red")
	assert.True(t, errors.Is(err, datasource.ErrInvalidField))
}

func testCountAndDeleteAll(t *testing.T, b datasource.Backend) {
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		_, err := b.Permissions().Create(ctx, newPermission(name))
		require.NoError(t, err)
	}

	n, err := b.Permissions().CountAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	deleted, err := b.Permissions().DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	n, err = b.Permissions().CountAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testUniqueNames(t *testing.T, b datasource.Backend) {
	ctx := context.Background()

	_, err := b.Permissions().Create(ctx, newPermission("vote"))
	require.NoError(t, err)
	_, err = b.Permissions().Create(ctx, newPermission("vote"))
	assert.True(t, datasource.IsDuplicate(err), "got %v", err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategorySystem))

	_, err = b.Roles().Create(ctx, model.Role{Name: "moderator"})
	require.NoError(t, err)
	_, err = b.Roles().Create(ctx, model.Role{Name: "moderator"})
	assert.True(t, datasource.IsDuplicate(err), "got %v", err)
}

func testRolePermissionSet(t *testing.T, b datasource.Backend) {
	ctx := context.Background()

	p1, err := b.Permissions().Create(ctx, newPermission("p1"))
	require.NoError(t, err)
	p2, err := b.Permissions().Create(ctx, newPermission("p2"))
	require.NoError(t, err)
	p3, err := b.Permissions().Create(ctx, newPermission("p3"))
	require.NoError(t, err)

	role, err := b.Roles().Create(ctx, model.Role{Name: "editor", Permissions: []string{p1.ID, p2.ID, p1.ID}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{p1.ID, p2.ID}, role.Permissions)

	role, err = b.Roles().AddPermissions(ctx, role.ID, []string{p2.ID, p3.ID, p3.ID})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{p1.ID, p2.ID, p3.ID}, role.Permissions)

	again, err := b.Roles().AddPermissions(ctx, role.ID, []string{p3.ID})
	require.NoError(t, err)
	assert.ElementsMatch(t, role.Permissions, again.Permissions)

	role, err = b.Roles().RemovePermissions(ctx, role.ID, []string{p1.ID, b.IDs().New()})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{p2.ID, p3.ID}, role.Permissions)

	found, err := b.Roles().FindByID(ctx, role.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{p2.ID, p3.ID}, found.Permissions)

	replaced, err := b.Roles().UpdateByID(ctx, role.ID, model.Fields{model.FieldPermissions: []string{p1.ID}})
	require.NoError(t, err)
	assert.Equal(t, []string{p1.ID}, replaced.Permissions)

	_, err = b.Roles().AddPermissions(ctx, b.IDs().New(), []string{p1.ID})
	assert.True(t, datasource.IsNotFound(err))

	_, err = b.Roles().AddPermissions(ctx, role.ID, []string{otherScheme(b.Kind()).New()})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidID), "got %v", err)

	_, err = b.Roles().Create(ctx, model.Role{Name: "broken", Permissions: []string{"nope"}})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidID), "got %v", err)
}

func testActiveAssignmentUniqueness(t *testing.T, b datasource.Backend) {
	ctx := context.Background()
	userID := b.IDs().New()
	roleID := b.IDs().New()
	as := b.Assignments()

	first, err := as.Create(ctx, model.Assignment{UserID: userID, RoleID: roleID})
	require.NoError(t, err)

	_, err = as.Create(ctx, model.Assignment{UserID: userID, RoleID: roleID})
	assert.True(t, datasource.IsDuplicate(err), "got %v", err)

	_, err = as.UpdateByID(ctx, first.ID, model.Fields{model.FieldIsActive: false})
	require.NoError(t, err)

	second, err := as.Create(ctx, model.Assignment{UserID: userID, RoleID: roleID})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	_, err = as.UpdateByID(ctx, first.ID, model.Fields{model.FieldIsActive: true})
	assert.True(t, datasource.IsDuplicate(err), "reactivating a second active row must fail, got %v", err)

	history, err := as.FindByFields(ctx, model.Fields{model.FieldUserID: userID, model.FieldRoleID: roleID})
	require.NoError(t, err)
	assert.Len(t, history, 2)

	_, err = as.Create(ctx, model.Assignment{UserID: "bad", RoleID: roleID})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidID), "got %v", err)
}

func testDeactivateExpired(t *testing.T, b datasource.Backend) {
	ctx := context.Background()
	now := model.Timestamp(time.Now())
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	as := b.Assignments()

	expired, err := as.Create(ctx, model.Assignment{UserID: b.IDs().New(), RoleID: b.IDs().New(), ExpiresAt: &past})
	require.NoError(t, err)
	boundary, err := as.Create(ctx, model.Assignment{UserID: b.IDs().New(), RoleID: b.IDs().New(), ExpiresAt: &now})
	require.NoError(t, err)
	live, err := as.Create(ctx, model.Assignment{UserID: b.IDs().New(), RoleID: b.IDs().New(), ExpiresAt: &future})
	require.NoError(t, err)
	forever, err := as.Create(ctx, model.Assignment{UserID: b.IDs().New(), RoleID: b.IDs().New()})
	require.NoError(t, err)

	n, err := as.DeactivateExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = as.DeactivateExpired(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, n)

	for id, wantActive := range map[string]bool{
		expired.ID:  false,
		boundary.ID: false,
		live.ID:     true,
		forever.ID:  true,
	} {
		a, err := as.FindByID(ctx, id)
		require.NoError(t, err, "assignment rows survive the sweep")
		assert.Equal(t, wantActive, a.IsActive, "assignment %s", id)
	}
}

func testAssignmentOptionalFields(t *testing.T, b datasource.Backend) {
	ctx := context.Background()
	expiry := time.Now().Add(24 * time.Hour)
	admin := b.IDs().New()

	a, err := b.Assignments().Create(ctx, model.Assignment{
		UserID:     b.IDs().New(),
		RoleID:     b.IDs().New(),
		AssignedBy: admin,
		ExpiresAt:  &expiry,
	})
	require.NoError(t, err)

	found, err := b.Assignments().FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, admin, found.AssignedBy)
	require.NotNil(t, found.ExpiresAt)
	assert.True(t, model.Timestamp(expiry).Equal(*found.ExpiresAt))
	assert.False(t, found.AssignedAt.IsZero())

	cleared, err := b.Assignments().UpdateByID(ctx, a.ID, model.Fields{model.FieldExpiresAt: nil})
	require.NoError(t, err)
	assert.Nil(t, cleared.ExpiresAt)

	plain, err := b.Assignments().Create(ctx, model.Assignment{UserID: b.IDs().New(), RoleID: b.IDs().New()})
	require.NoError(t, err)
	found, err = b.Assignments().FindByID(ctx, plain.ID)
	require.NoError(t, err)
	assert.Empty(t, found.AssignedBy)
	assert.Nil(t, found.ExpiresAt)
}
