package model

import (
	"fmt"
	"time"

	"github.com/MertBaran/QA-API-sub001/pkg/apperrors"
	"github.com/MertBaran/QA-API-sub001/pkg/ids"
)

// Logical field names shared by every backend. Adapters translate them to
// their own key or column names.
const (
	FieldID          = "id"
	FieldName        = "name"
	FieldDescription = "description"
	FieldResource    = "resource"
	FieldAction      = "action"
	FieldCategory    = "category"
	FieldPermissions = "permissions"
	FieldIsSystem    = "isSystem"
	FieldIsActive    = "isActive"
	FieldUserID      = "userId"
	FieldRoleID      = "roleId"
	FieldAssignedAt  = "assignedAt"
	FieldAssignedBy  = "assignedBy"
	FieldExpiresAt   = "expiresAt"
	FieldCreatedAt   = "createdAt"
	FieldUpdatedAt   = "updatedAt"
)

// Fields is a sparse set of logical field values, used both as a partial
// update and as an equality filter.
type Fields map[string]interface{}

// ErrInvalidField is returned for unknown, immutable or mistyped fields.
var ErrInvalidField = apperrors.New(apperrors.CategoryValidation, apperrors.SeverityLow, "INVALID_FIELD", "invalid field")

// FieldKind describes how a field's value is typed and stored.
type FieldKind int

const (
	KindString FieldKind = iota
	KindID
	KindOptionalID
	KindBool
	KindTime
	KindOptionalTime
	KindIDSet
)

// FieldSpec describes one logical field of an entity.
type FieldSpec struct {
	Kind      FieldKind
	Immutable bool
}

// IsID reports whether values of the field are identifiers of the active
// id scheme.
func (s FieldSpec) IsID() bool {
	return s.Kind == KindID || s.Kind == KindOptionalID || s.Kind == KindIDSet
}

// Filterable reports whether the field can appear in an equality filter.
func (s FieldSpec) Filterable() bool {
	return s.Kind != KindIDSet
}

// Record is implemented by every persisted entity. T is the entity itself.
type Record[T any] interface {
	GetID() string
	FieldSpecs() map[string]FieldSpec
	Value(field string) (interface{}, bool)
	Apply(patch Fields) (T, error)
	Prepare(id string, now time.Time) T
}

func invalidField(field, format string, args ...interface{}) error {
	return ErrInvalidField.WithMessage("field %q: %s", field, fmt.Sprintf(format, args...)).
		WithContext("field", field)
}

// NormalizeFilter checks a filter against specs and normalises its values.
// Nil values are dropped.
func NormalizeFilter(specs map[string]FieldSpec, filter Fields) (Fields, error) {
	out := make(Fields, len(filter))
	for field, value := range filter {
		if value == nil {
			continue
		}
		spec, ok := specs[field]
		if !ok {
			return nil, invalidField(field, "unknown field")
		}
		if !spec.Filterable() {
			return nil, invalidField(field, "not filterable")
		}
		v, err := NormalizeValue(spec, field, value)
		if err != nil {
			return nil, err
		}
		out[field] = v
	}
	return out, nil
}

// NormalizePatch checks a partial update against specs and normalises its
// values. Immutable fields are rejected.
func NormalizePatch(specs map[string]FieldSpec, patch Fields) (Fields, error) {
	out := make(Fields, len(patch))
	for field, value := range patch {
		spec, ok := specs[field]
		if !ok {
			return nil, invalidField(field, "unknown field")
		}
		if spec.Immutable {
			return nil, invalidField(field, "immutable")
		}
		v, err := NormalizeValue(spec, field, value)
		if err != nil {
			return nil, err
		}
		out[field] = v
	}
	return out, nil
}

// NormalizeValue converts v to the canonical Go type for spec:
// string, bool, time.Time, *time.Time or []string.
func NormalizeValue(spec FieldSpec, field string, v interface{}) (interface{}, error) {
	switch spec.Kind {
	case KindString:
		s, ok := asString(v)
		if !ok {
			return nil, invalidField(field, "expected string, got %T", v)
		}
		return s, nil
	case KindID, KindOptionalID:
		if v == nil && spec.Kind == KindOptionalID {
			return "", nil
		}
		s, ok := asString(v)
		if !ok {
			return nil, invalidField(field, "expected string, got %T", v)
		}
		return ids.Canonical(s), nil
	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, invalidField(field, "expected bool, got %T", v)
		}
		return b, nil
	case KindTime:
		t, ok, err := asTime(v)
		if err != nil || !ok || t == nil {
			return nil, invalidField(field, "expected time, got %T", v)
		}
		return *t, nil
	case KindOptionalTime:
		t, ok, err := asTime(v)
		if err != nil || !ok {
			return nil, invalidField(field, "expected time or null, got %T", v)
		}
		return t, nil
	case KindIDSet:
		list, ok := asStringSlice(v)
		if !ok {
			return nil, invalidField(field, "expected list of ids, got %T", v)
		}
		return UniqueIDs(list), nil
	default:
		return nil, invalidField(field, "unsupported kind")
	}
}

func asString(v interface{}) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case Category:
		return string(s), true
	default:
		return "", false
	}
}

// asTime returns a nil pointer for an explicit null.
func asTime(v interface{}) (*time.Time, bool, error) {
	switch t := v.(type) {
	case nil:
		return nil, true, nil
	case time.Time:
		n := Timestamp(t)
		return &n, true, nil
	case *time.Time:
		if t == nil {
			return nil, true, nil
		}
		n := Timestamp(*t)
		return &n, true, nil
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return nil, false, err
		}
		n := Timestamp(parsed)
		return &n, true, nil
	default:
		return nil, false, nil
	}
}

func asStringSlice(v interface{}) ([]string, bool) {
	switch s := v.(type) {
	case []string:
		return s, true
	case []interface{}:
		out := make([]string, 0, len(s))
		for _, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, str)
		}
		return out, true
	case nil:
		return []string{}, true
	default:
		return nil, false
	}
}

// Timestamp normalises t to UTC millisecond precision, the finest precision
// every backend round-trips.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// OptionalTimestamp applies Timestamp to a possibly nil time.
func OptionalTimestamp(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	n := Timestamp(*t)
	return &n
}

// UniqueIDs drops empty and repeated ids, keeping first-seen order.
func UniqueIDs(list []string) []string {
	out := make([]string, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, id := range list {
		if id == "" {
			continue
		}
		id = ids.Canonical(id)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
