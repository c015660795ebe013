package model

import (
	"time"

	"github.com/MertBaran/QA-API-sub001/pkg/ids"
)

// DefaultRoleName is the role handed to every newly registered user.
const DefaultRoleName = "user"

// Role is a named bundle of permissions. Permissions holds permission ids
// with set semantics.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name" validate:"required,max=50"`
	Description string    `json:"description,omitempty" validate:"max=500"`
	Permissions []string  `json:"permissions" validate:"dive,required"`
	IsSystem    bool      `json:"isSystem"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

var roleFields = map[string]FieldSpec{
	FieldID:          {Kind: KindID, Immutable: true},
	FieldName:        {Kind: KindString},
	FieldDescription: {Kind: KindString},
	FieldPermissions: {Kind: KindIDSet},
	FieldIsSystem:    {Kind: KindBool},
	FieldIsActive:    {Kind: KindBool},
	FieldCreatedAt:   {Kind: KindTime, Immutable: true},
	FieldUpdatedAt:   {Kind: KindTime, Immutable: true},
}

func (r Role) GetID() string { return r.ID }

func (r Role) FieldSpecs() map[string]FieldSpec { return roleFields }

func (r Role) Value(field string) (interface{}, bool) {
	switch field {
	case FieldID:
		return r.ID, true
	case FieldName:
		return r.Name, true
	case FieldDescription:
		return r.Description, true
	case FieldPermissions:
		return append([]string(nil), r.Permissions...), true
	case FieldIsSystem:
		return r.IsSystem, true
	case FieldIsActive:
		return r.IsActive, true
	case FieldCreatedAt:
		return r.CreatedAt, true
	case FieldUpdatedAt:
		return r.UpdatedAt, true
	}
	return nil, false
}

func (r Role) Apply(patch Fields) (Role, error) {
	norm, err := NormalizePatch(roleFields, patch)
	if err != nil {
		return r, err
	}
	for field, v := range norm {
		switch field {
		case FieldName:
			r.Name = v.(string)
		case FieldDescription:
			r.Description = v.(string)
		case FieldPermissions:
			r.Permissions = v.([]string)
		case FieldIsSystem:
			r.IsSystem = v.(bool)
		case FieldIsActive:
			r.IsActive = v.(bool)
		}
	}
	return r, nil
}

func (r Role) Prepare(id string, now time.Time) Role {
	now = Timestamp(now)
	r.ID = id
	r.Permissions = UniqueIDs(r.Permissions)
	r.IsActive = true
	r.CreatedAt = now
	r.UpdatedAt = now
	return r
}

// HasPermission reports whether the role references permissionID.
func (r Role) HasPermission(permissionID string) bool {
	permissionID = ids.Canonical(permissionID)
	for _, id := range r.Permissions {
		if id == permissionID {
			return true
		}
	}
	return false
}

// WithPermissions returns a copy of r with ids added to its permission set.
func (r Role) WithPermissions(added ...string) Role {
	r.Permissions = UniqueIDs(append(append([]string(nil), r.Permissions...), added...))
	return r
}

// WithoutPermissions returns a copy of r with ids removed from its
// permission set. Ids not present are ignored.
func (r Role) WithoutPermissions(removed ...string) Role {
	drop := make(map[string]struct{}, len(removed))
	for _, id := range removed {
		drop[ids.Canonical(id)] = struct{}{}
	}
	kept := make([]string, 0, len(r.Permissions))
	for _, id := range r.Permissions {
		if _, ok := drop[id]; !ok {
			kept = append(kept, id)
		}
	}
	r.Permissions = kept
	return r
}
