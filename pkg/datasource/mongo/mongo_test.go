package mongo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/MertBaran/QA-API-sub001/pkg/apperrors"
	"github.com/MertBaran/QA-API-sub001/pkg/datasource"
	"github.com/MertBaran/QA-API-sub001/pkg/ids"
	"github.com/MertBaran/QA-API-sub001/pkg/model"
)

func TestAssignmentDocumentNulls(t *testing.T) {
	scheme := ids.ObjectIDScheme{}
	now := time.Date(2026, 1, 2, 3, 4, 5, 6000000, time.UTC)
	a := model.Assignment{ID: scheme.New(), UserID: scheme.New(), RoleID: scheme.New()}.Prepare(scheme.New(), now)

	doc, err := encodeAssignment(a)
	require.NoError(t, err)
	raw, err := bson.Marshal(doc)
	require.NoError(t, err)

	var m bson.M
	require.NoError(t, bson.Unmarshal(raw, &m))
	assert.Contains(t, m, "assignedBy")
	assert.Nil(t, m["assignedBy"])
	assert.Contains(t, m, "expiresAt")
	assert.Nil(t, m["expiresAt"])
	assert.IsType(t, primitive.ObjectID{}, m["userId"])

	var back assignmentDoc
	require.NoError(t, bson.Unmarshal(raw, &back))
	decoded := decodeAssignment(back)
	assert.Empty(t, decoded.AssignedBy)
	assert.Nil(t, decoded.ExpiresAt)
	assert.Equal(t, a.UserID, decoded.UserID)
}

func TestEncodeRejectsForeignIDs(t *testing.T) {
	_, err := encodeRole(model.Role{ID: ids.ObjectIDScheme{}.New(), Permissions: []string{ids.UUIDScheme{}.New()}})
	assert.Error(t, err)

	_, err = encodeAssignment(model.Assignment{ID: ids.ObjectIDScheme{}.New(), UserID: "u1", RoleID: ids.ObjectIDScheme{}.New()})
	assert.Error(t, err)
}

func TestRoleDocumentKeepsPermissionOrder(t *testing.T) {
	scheme := ids.ObjectIDScheme{}
	perms := []string{scheme.New(), scheme.New(), scheme.New()}
	r := model.Role{Name: "editor", Permissions: perms}.Prepare(scheme.New(), time.Now())

	doc, err := encodeRole(r)
	require.NoError(t, err)
	assert.Equal(t, perms, decodeRole(doc).Permissions)
}

func TestBSONValue(t *testing.T) {
	oid := primitive.NewObjectID()
	ts := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		spec model.FieldSpec
		in   interface{}
		want interface{}
	}{
		{"plain string", model.FieldSpec{Kind: model.KindString}, "moderator", "moderator"},
		{"id", model.FieldSpec{Kind: model.KindID}, oid.Hex(), oid},
		{"unset optional id", model.FieldSpec{Kind: model.KindOptionalID}, "", nil},
		{"id set", model.FieldSpec{Kind: model.KindIDSet}, []string{oid.Hex()}, []primitive.ObjectID{oid}},
		{"unset optional time", model.FieldSpec{Kind: model.KindOptionalTime}, (*time.Time)(nil), nil},
		{"optional time", model.FieldSpec{Kind: model.KindOptionalTime}, &ts, ts},
		{"bool", model.FieldSpec{Kind: model.KindBool}, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := bsonValue(tt.spec, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify(t *testing.T) {
	dup := mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000, Message: "E11000 duplicate key"}}}
	assert.True(t, datasource.IsDuplicate(classify("role create", "role", dup)))

	err := classify("role find", "role", context.Canceled)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeInternal, appErr.Code)

	err = classify("role find", "role", mongo.ErrClientDisconnected)
	appErr, ok = apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeUnavailable, appErr.Code)
	assert.True(t, appErr.ShouldAlert())

	notFound := datasource.NotFound("role", "x")
	assert.True(t, errors.Is(classify("role find", "role", notFound), datasource.ErrNotFound))
	assert.NoError(t, classify("op", "role", nil))
}

func TestKeysMapID(t *testing.T) {
	k := keys(model.Assignment{}.FieldSpecs())
	assert.Equal(t, "_id", k[model.FieldID])
	assert.Equal(t, "userId", k[model.FieldUserID])
	assert.Equal(t, "expiresAt", k[model.FieldExpiresAt])
}
