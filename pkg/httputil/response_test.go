package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MertBaran/QA-API-sub001/pkg/apperrors"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"message": "success"}

	err := WriteJSON(w, http.StatusOK, data)

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "success")
}

func TestWriteAppError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		status   int
		code     string
		category apperrors.Category
		message  string
	}{
		{
			name:     "not found",
			err:      apperrors.NotFound("role", "abc"),
			status:   http.StatusNotFound,
			code:     apperrors.CodeNotFound,
			category: apperrors.CategoryUser,
			message:  "role not found: abc",
		},
		{
			name:     "conflict",
			err:      apperrors.Conflict("role", "role %q already exists", "admin"),
			status:   http.StatusConflict,
			code:     apperrors.CodeAlreadyExists,
			category: apperrors.CategoryBusiness,
			message:  `role "admin" already exists`,
		},
		{
			name:     "business rule",
			err:      apperrors.BusinessRule(apperrors.ErrRoleInactive, "role is inactive"),
			status:   http.StatusBadRequest,
			code:     apperrors.CodeRoleInactive,
			category: apperrors.CategoryBusiness,
			message:  "role is inactive",
		},
		{
			name:     "forbidden",
			err:      apperrors.Forbidden("missing permission %s", "x"),
			status:   http.StatusForbidden,
			code:     apperrors.CodeForbidden,
			category: apperrors.CategoryAuthorization,
			message:  "missing permission x",
		},
		{
			name:     "unclassified",
			err:      errors.New("pq: password authentication failed"),
			status:   http.StatusInternalServerError,
			code:     apperrors.CodeInternal,
			category: apperrors.CategorySystem,
			message:  "internal error",
		},
		{
			name:     "unavailable",
			err:      apperrors.Unavailable("ping", errors.New("dial tcp: refused")),
			status:   http.StatusServiceUnavailable,
			code:     apperrors.CodeUnavailable,
			category: apperrors.CategorySystem,
			message:  "service unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			WriteAppError(w, tt.err)

			assert.Equal(t, tt.status, w.Code)
			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, tt.code, resp.Error)
			assert.Equal(t, tt.category, resp.Category)
			assert.Equal(t, tt.message, resp.Message)
		})
	}
}

func TestWriteAppErrorDetails(t *testing.T) {
	w := httptest.NewRecorder()

	WriteAppError(w, apperrors.InvalidID("userId", "nope"))

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "userId", resp.Details["field"])
}

func TestWriteErrorMessage(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorMessage(w, http.StatusNotFound, "resource not found")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "resource not found")
}

func TestWriteCreated(t *testing.T) {
	w := httptest.NewRecorder()

	err := WriteCreated(w, map[string]string{"id": "123"})

	assert.NoError(t, err)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "123")
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()

	err := WriteSuccess(w, []string{"a"})

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWriteNoContent(t *testing.T) {
	w := httptest.NewRecorder()

	WriteNoContent(w)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}
