package httputil

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"

	"github.com/MertBaran/QA-API-sub001/pkg/apperrors"
)

func TestParseJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	tests := []struct {
		name        string
		body        string
		expectError bool
	}{
		{
			name:        "valid JSON",
			body:        `{"name": "test"}`,
			expectError: false,
		},
		{
			name:        "invalid JSON",
			body:        `{invalid}`,
			expectError: true,
		},
		{
			name:        "unknown field",
			body:        `{"name": "test", "extra": 1}`,
			expectError: true,
		},
		{
			name:        "empty body",
			body:        ``,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/test", bytes.NewBufferString(tt.body))
			var dest payload

			err := ParseJSON(req, &dest)

			if tt.expectError {
				assert.ErrorIs(t, err, apperrors.ErrValidation)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, "test", dest.Name)
			}
		})
	}
}

func TestParseJSONOrError(t *testing.T) {
	req := httptest.NewRequest("POST", "/test", bytes.NewBufferString(`{invalid}`))
	w := httptest.NewRecorder()
	var dest map[string]string

	ok := ParseJSONOrError(w, req, &dest)

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), apperrors.CodeValidationFailed)
}

func TestPathVar(t *testing.T) {
	router := mux.NewRouter()
	var got string
	router.HandleFunc("/roles/{id}", func(w http.ResponseWriter, r *http.Request) {
		got = PathVar(r, "id")
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/roles/abc", nil))

	assert.Equal(t, "abc", got)
	assert.Empty(t, PathVar(httptest.NewRequest("GET", "/", nil), "id"))
}

func TestParseQueryBool(t *testing.T) {
	req := httptest.NewRequest("GET", "/test?active=true&bad=maybe", nil)

	val, err := ParseQueryBool(req, "active", false)
	assert.NoError(t, err)
	assert.True(t, val)

	val, err = ParseQueryBool(req, "missing", true)
	assert.NoError(t, err)
	assert.True(t, val)

	_, err = ParseQueryBool(req, "bad", false)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestParseQueryString(t *testing.T) {
	req := httptest.NewRequest("GET", "/test?resource=questions", nil)

	assert.Equal(t, "questions", ParseQueryString(req, "resource", ""))
	assert.Equal(t, "content", ParseQueryString(req, "category", "content"))
}
