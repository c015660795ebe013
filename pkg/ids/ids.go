// Package ids implements the identifier schemes used by the storage
// backends. Document stores use 24 character hex ObjectIDs, relational
// stores use version 4 UUIDs. The scheme is chosen once, together with the
// backend, and every id entering the system is validated against it.
package ids

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Kind names a storage backend family.
type Kind string

const (
	KindDocument   Kind = "mongodb"
	KindRelational Kind = "postgres"
)

// ParseKind maps configuration values onto a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mongodb", "mongo", "document":
		return KindDocument, nil
	case "postgres", "postgresql", "relational":
		return KindRelational, nil
	default:
		return "", fmt.Errorf("unknown backend kind %q (must be mongodb or postgres)", s)
	}
}

// Scheme generates and validates identifiers for one backend kind.
type Scheme interface {
	Kind() Kind
	New() string
	Valid(id string) bool
	// Canonical returns the form the backend stores and returns.
	Canonical(id string) string
}

// Canonical lowercases id. Both schemes accept upper-case hex on input but
// store and return lowercase, so keys derived from ids must use this form.
func Canonical(id string) string {
	return strings.ToLower(id)
}

// ObjectIDScheme produces 24 character hex ObjectIDs.
type ObjectIDScheme struct{}

func (ObjectIDScheme) Kind() Kind { return KindDocument }

func (ObjectIDScheme) New() string { return primitive.NewObjectID().Hex() }

func (ObjectIDScheme) Valid(id string) bool {
	return primitive.IsValidObjectID(id)
}

func (ObjectIDScheme) Canonical(id string) string { return Canonical(id) }

// UUIDScheme produces canonical lowercase version 4 UUIDs.
type UUIDScheme struct{}

func (UUIDScheme) Kind() Kind { return KindRelational }

func (UUIDScheme) New() string { return uuid.New().String() }

// Valid accepts only the 36 character hyphenated form. uuid.Parse also
// accepts urn and brace forms which the relational store never emits.
func (UUIDScheme) Valid(id string) bool {
	if len(id) != 36 {
		return false
	}
	u, err := uuid.Parse(id)
	if err != nil {
		return false
	}
	return u.Version() == 4 && u.Variant() == uuid.RFC4122
}

func (UUIDScheme) Canonical(id string) string { return Canonical(id) }

// SchemeFor returns the scheme bound to kind.
func SchemeFor(kind Kind) (Scheme, error) {
	switch kind {
	case KindDocument:
		return ObjectIDScheme{}, nil
	case KindRelational:
		return UUIDScheme{}, nil
	default:
		return nil, fmt.Errorf("no id scheme for backend kind %q", kind)
	}
}

// ValidForBackend reports whether id is well formed for the given backend.
// An id shaped for the other backend is always rejected.
func ValidForBackend(id string, kind Kind) bool {
	scheme, err := SchemeFor(kind)
	if err != nil {
		return false
	}
	return scheme.Valid(id)
}
