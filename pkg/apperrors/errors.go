package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Category classifies who or what caused an error.
type Category string

const (
	CategoryUser           Category = "user"
	CategoryValidation     Category = "validation"
	CategoryAuthentication Category = "authentication"
	CategoryAuthorization  Category = "authorization"
	CategoryBusiness       Category = "business"
	CategorySystem         Category = "system"
)

// Severity ranks how bad an error is for operators.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Error codes shared across packages.
const (
	CodeNotFound            = "NOT_FOUND"
	CodeAlreadyExists       = "ALREADY_EXISTS"
	CodeRoleAlreadyAssigned = "ROLE_ALREADY_ASSIGNED"
	CodeRoleNotAssigned     = "ROLE_NOT_ASSIGNED"
	CodeRoleInactive        = "ROLE_INACTIVE"
	CodeSystemRoleProtected = "SYSTEM_ROLE_PROTECTED"
	CodeInvalidID           = "INVALID_ID"
	CodeValidationFailed    = "VALIDATION_FAILED"
	CodeUnauthenticated     = "UNAUTHENTICATED"
	CodeForbidden           = "FORBIDDEN"
	CodeInternal            = "INTERNAL_ERROR"
	CodeUnavailable         = "SERVICE_UNAVAILABLE"
)

// Error is the application error carried across layer boundaries.
type Error struct {
	Category   Category
	Severity   Severity
	Code       string
	Message    string
	StatusCode int
	// Operational is false for programming or infrastructure faults.
	Operational bool
	Context     map[string]interface{}
	Err         error
}

// New creates an error with an explicit classification.
func New(category Category, severity Severity, code, message string) *Error {
	return &Error{
		Category:    category,
		Severity:    severity,
		Code:        code,
		Message:     message,
		StatusCode:  defaultStatus(category),
		Operational: category != CategorySystem,
	}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors carrying the same code so that templates such as
// ErrNotFound work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Code == "" {
		return false
	}
	return e.Code == t.Code
}

// ShouldLog reports whether the error is worth a log line. Low severity user
// errors are expected traffic.
func (e *Error) ShouldLog() bool {
	return !(e.Category == CategoryUser && e.Severity == SeverityLow)
}

// ShouldAlert reports whether operators need to be paged.
func (e *Error) ShouldAlert() bool {
	return e.Category == CategorySystem && e.Severity == SeverityCritical
}

// Retryable reports whether repeating the operation may succeed.
func (e *Error) Retryable() bool {
	return e.Category == CategorySystem && e.Severity != SeverityCritical
}

// WithMessage returns a copy with a different message.
func (e *Error) WithMessage(format string, args ...interface{}) *Error {
	c := e.clone()
	c.Message = fmt.Sprintf(format, args...)
	return c
}

// WithCause returns a copy wrapping err.
func (e *Error) WithCause(err error) *Error {
	c := e.clone()
	c.Err = err
	return c
}

// WithContext returns a copy carrying an additional context value.
func (e *Error) WithContext(key string, value interface{}) *Error {
	c := e.clone()
	ctx := make(map[string]interface{}, len(e.Context)+1)
	for k, v := range e.Context {
		ctx[k] = v
	}
	ctx[key] = value
	c.Context = ctx
	return c
}

func (e *Error) clone() *Error {
	c := *e
	return &c
}

func defaultStatus(category Category) int {
	switch category {
	case CategoryUser:
		return http.StatusNotFound
	case CategoryValidation:
		return http.StatusBadRequest
	case CategoryAuthentication:
		return http.StatusUnauthorized
	case CategoryAuthorization:
		return http.StatusForbidden
	case CategoryBusiness:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Templates for errors.Is comparisons.
var (
	ErrNotFound            = New(CategoryUser, SeverityLow, CodeNotFound, "resource not found")
	ErrAlreadyExists       = New(CategoryBusiness, SeverityMedium, CodeAlreadyExists, "resource already exists")
	ErrRoleAlreadyAssigned = New(CategoryBusiness, SeverityMedium, CodeRoleAlreadyAssigned, "role already assigned to user")
	ErrRoleNotAssigned     = New(CategoryUser, SeverityLow, CodeRoleNotAssigned, "role not assigned to user")
	ErrRoleInactive        = New(CategoryBusiness, SeverityMedium, CodeRoleInactive, "role is inactive")
	ErrSystemRoleProtected = New(CategoryBusiness, SeverityMedium, CodeSystemRoleProtected, "system roles cannot be deleted")
	ErrInvalidID           = New(CategoryValidation, SeverityLow, CodeInvalidID, "invalid identifier")
	ErrValidation          = New(CategoryValidation, SeverityLow, CodeValidationFailed, "validation failed")
	ErrUnauthenticated     = New(CategoryAuthentication, SeverityMedium, CodeUnauthenticated, "authentication required")
	ErrForbidden           = New(CategoryAuthorization, SeverityMedium, CodeForbidden, "insufficient permissions")
	ErrInternal            = New(CategorySystem, SeverityHigh, CodeInternal, "internal error")
	ErrUnavailable         = New(CategorySystem, SeverityCritical, CodeUnavailable, "service unavailable")
)

func init() {
	ErrUnavailable.StatusCode = http.StatusServiceUnavailable
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *Error {
	return ErrNotFound.WithMessage("%s not found: %s", resource, id).
		WithContext("resource", resource).
		WithContext("id", id)
}

// Conflict reports a business-level uniqueness violation.
func Conflict(resource, format string, args ...interface{}) *Error {
	return ErrAlreadyExists.WithMessage(format, args...).WithContext("resource", resource)
}

// BusinessRule reports a request that is well formed but violates a domain
// rule, such as assigning an inactive role.
func BusinessRule(template *Error, format string, args ...interface{}) *Error {
	e := template.WithMessage(format, args...)
	if e.Category != CategoryBusiness {
		e.Category = CategoryBusiness
		e.Severity = SeverityMedium
	}
	e.StatusCode = http.StatusBadRequest
	return e
}

// Unauthenticated reports a request without a usable identity.
func Unauthenticated(reason string) *Error {
	return ErrUnauthenticated.WithMessage("%s", reason)
}

// Forbidden reports an authenticated caller lacking a permission or role.
func Forbidden(format string, args ...interface{}) *Error {
	return ErrForbidden.WithMessage(format, args...)
}

// Validation reports malformed input.
func Validation(format string, args ...interface{}) *Error {
	return ErrValidation.WithMessage(format, args...)
}

// InvalidID reports an identifier that does not belong to the active scheme.
func InvalidID(field, id string) *Error {
	return ErrInvalidID.WithMessage("invalid %s: %q", field, id).WithContext("field", field)
}

// System wraps an unexpected infrastructure failure.
func System(op string, err error) *Error {
	return ErrInternal.WithMessage("%s failed", op).WithCause(err)
}

// Unavailable wraps a failure to reach a required dependency.
func Unavailable(op string, err error) *Error {
	return ErrUnavailable.WithMessage("%s: dependency unavailable", op).WithCause(err)
}

// As extracts the application error from err's chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// FromError returns err as an application error, classifying anything
// unknown as an internal System error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	if appErr, ok := As(err); ok {
		return appErr
	}
	return ErrInternal.WithCause(err)
}

// CategoryOf returns the category of err, CategorySystem when unclassified.
func CategoryOf(err error) Category {
	return FromError(err).Category
}

// IsNotFound reports whether err is a domain not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsCategory reports whether err is classified under category.
func IsCategory(err error, category Category) bool {
	if err == nil {
		return false
	}
	return CategoryOf(err) == category
}
