package datasource

import (
	"context"
	"errors"
	"time"

	"github.com/MertBaran/QA-API-sub001/pkg/apperrors"
	"github.com/MertBaran/QA-API-sub001/pkg/ids"
	"github.com/MertBaran/QA-API-sub001/pkg/model"
)

// DataSource is the uniform persistence contract every backend implements
// for every entity type.
type DataSource[T any] interface {
	// Create assigns an id and defaults, persists the entity and returns
	// the stored copy.
	Create(ctx context.Context, entity T) (T, error)
	// FindByID fails with ErrNotFound when no record has the id.
	FindByID(ctx context.Context, id string) (T, error)
	FindAll(ctx context.Context) ([]T, error)
	// UpdateByID applies a sparse update and returns the updated record.
	UpdateByID(ctx context.Context, id string, patch model.Fields) (T, error)
	// DeleteByID removes the record and returns it as it was.
	DeleteByID(ctx context.Context, id string) (T, error)
	FindByField(ctx context.Context, field string, value interface{}) ([]T, error)
	// FindByFields matches every non-nil value in filter.
	FindByFields(ctx context.Context, filter model.Fields) ([]T, error)
	CountAll(ctx context.Context) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// RoleSource adds atomic permission set maintenance to the role contract.
type RoleSource interface {
	DataSource[model.Role]
	// AddPermissions adds ids to the role's permission set. Ids already
	// present are ignored.
	AddPermissions(ctx context.Context, roleID string, permissionIDs []string) (model.Role, error)
	// RemovePermissions removes ids from the role's permission set. Ids not
	// present are ignored.
	RemovePermissions(ctx context.Context, roleID string, permissionIDs []string) (model.Role, error)
}

// AssignmentSource adds the bulk expiry sweep to the assignment contract.
type AssignmentSource interface {
	DataSource[model.Assignment]
	// DeactivateExpired flips isActive to false on every active assignment
	// whose expiry is at or before now and returns how many changed.
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

// Backend bundles the data sources of one storage engine. A process opens
// exactly one backend; its kind fixes the id scheme for the process.
type Backend interface {
	Kind() ids.Kind
	IDs() ids.Scheme
	Permissions() DataSource[model.Permission]
	Roles() RoleSource
	Assignments() AssignmentSource
	// Migrate creates collections, tables and indexes, including the
	// partial unique index on active (userId, roleId) pairs.
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Storage level errors. Both are System errors; services translate them into
// domain errors where absence or duplication is expected.
var (
	ErrNotFound     = apperrors.New(apperrors.CategorySystem, apperrors.SeverityMedium, "RECORD_NOT_FOUND", "record not found")
	ErrDuplicate    = apperrors.New(apperrors.CategorySystem, apperrors.SeverityHigh, "DUPLICATE_KEY", "unique constraint violated")
	ErrInvalidField = model.ErrInvalidField
)

// NotFound returns ErrNotFound decorated with the entity and id.
func NotFound(entity, id string) error {
	return ErrNotFound.WithMessage("%s %s not found", entity, id).
		WithContext("entity", entity).
		WithContext("id", id)
}

// Duplicate returns ErrDuplicate wrapping the driver error.
func Duplicate(entity string, cause error) error {
	return ErrDuplicate.WithMessage("%s violates a unique constraint", entity).
		WithContext("entity", entity).
		WithCause(cause)
}

// Failure wraps a driver error as a retryable System error.
func Failure(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}
	return apperrors.System(op, err)
}

// Unreachable wraps a connection level driver error as a critical System
// error.
func Unreachable(op string, err error) error {
	return apperrors.Unavailable(op, err)
}

// IsNotFound reports whether err is a storage not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicate reports whether err is a unique constraint violation.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicate)
}
