package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerivedFlags(t *testing.T) {
	tests := []struct {
		name      string
		category  Category
		severity  Severity
		log       bool
		alert     bool
		retryable bool
	}{
		{"low user error is silent", CategoryUser, SeverityLow, false, false, false},
		{"medium user error is logged", CategoryUser, SeverityMedium, true, false, false},
		{"validation error is logged", CategoryValidation, SeverityLow, true, false, false},
		{"business conflict", CategoryBusiness, SeverityMedium, true, false, false},
		{"authorization failure", CategoryAuthorization, SeverityMedium, true, false, false},
		{"high system error retries", CategorySystem, SeverityHigh, true, false, true},
		{"critical system error alerts", CategorySystem, SeverityCritical, true, true, false},
		{"critical business error does not alert", CategoryBusiness, SeverityCritical, true, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.category, tt.severity, "X", "x")
			assert.Equal(t, tt.log, err.ShouldLog())
			assert.Equal(t, tt.alert, err.ShouldAlert())
			assert.Equal(t, tt.retryable, err.Retryable())
		})
	}
}

func TestIsMatchesByCode(t *testing.T) {
	err := NotFound("role", "abc")
	wrapped := fmt.Errorf("loading: %w", err)

	assert.True(t, errors.Is(wrapped, ErrNotFound))
	assert.False(t, errors.Is(wrapped, ErrAlreadyExists))
	assert.True(t, IsNotFound(wrapped))
	assert.Equal(t, "role not found: abc", err.Error())
	assert.Equal(t, "role", err.Context["resource"])
	// template is untouched
	assert.Nil(t, ErrNotFound.Context)
}

func TestSystemWrapsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := System("find role", cause)

	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, CategorySystem, err.Category)
	assert.Equal(t, http.StatusInternalServerError, err.StatusCode)
	assert.False(t, err.Operational)
	assert.True(t, err.Retryable())
	assert.Contains(t, err.Error(), "connection reset")
}

func TestUnavailableIsCritical(t *testing.T) {
	err := Unavailable("ping", errors.New("dial tcp"))
	assert.True(t, err.ShouldAlert())
	assert.False(t, err.Retryable())
	assert.Equal(t, http.StatusServiceUnavailable, err.StatusCode)
}

func TestFromError(t *testing.T) {
	assert.Nil(t, FromError(nil))

	plain := FromError(errors.New("boom"))
	require.NotNil(t, plain)
	assert.Equal(t, CategorySystem, plain.Category)
	assert.Equal(t, CodeInternal, plain.Code)

	conflict := Conflict("permission", "permission %q already exists", "questions:create")
	assert.Same(t, conflict, FromError(fmt.Errorf("wrap: %w", conflict)))
	assert.True(t, IsCategory(conflict, CategoryBusiness))
	assert.Equal(t, http.StatusConflict, conflict.StatusCode)
}

func TestStatusCodes(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, ErrRoleNotAssigned.StatusCode)
	assert.Equal(t, http.StatusBadRequest, InvalidID("userId", "x").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, ErrUnauthenticated.StatusCode)
	assert.Equal(t, http.StatusForbidden, ErrForbidden.StatusCode)
}
