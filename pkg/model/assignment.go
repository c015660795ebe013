package model

import (
	"time"

	"github.com/MertBaran/QA-API-sub001/pkg/ids"
)

// Assignment binds a role to a user. Rows are never deleted by revocation
// or expiry; IsActive is flipped instead so the history stays queryable.
type Assignment struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId" validate:"required"`
	RoleID     string     `json:"roleId" validate:"required"`
	AssignedAt time.Time  `json:"assignedAt"`
	AssignedBy string     `json:"assignedBy,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	IsActive   bool       `json:"isActive"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

var assignmentFields = map[string]FieldSpec{
	FieldID:         {Kind: KindID, Immutable: true},
	FieldUserID:     {Kind: KindID, Immutable: true},
	FieldRoleID:     {Kind: KindID, Immutable: true},
	FieldAssignedAt: {Kind: KindTime},
	FieldAssignedBy: {Kind: KindOptionalID},
	FieldExpiresAt:  {Kind: KindOptionalTime},
	FieldIsActive:   {Kind: KindBool},
	FieldCreatedAt:  {Kind: KindTime, Immutable: true},
	FieldUpdatedAt:  {Kind: KindTime, Immutable: true},
}

func (a Assignment) GetID() string { return a.ID }

func (a Assignment) FieldSpecs() map[string]FieldSpec { return assignmentFields }

func (a Assignment) Value(field string) (interface{}, bool) {
	switch field {
	case FieldID:
		return a.ID, true
	case FieldUserID:
		return a.UserID, true
	case FieldRoleID:
		return a.RoleID, true
	case FieldAssignedAt:
		return a.AssignedAt, true
	case FieldAssignedBy:
		return a.AssignedBy, true
	case FieldExpiresAt:
		return a.ExpiresAt, true
	case FieldIsActive:
		return a.IsActive, true
	case FieldCreatedAt:
		return a.CreatedAt, true
	case FieldUpdatedAt:
		return a.UpdatedAt, true
	}
	return nil, false
}

func (a Assignment) Apply(patch Fields) (Assignment, error) {
	norm, err := NormalizePatch(assignmentFields, patch)
	if err != nil {
		return a, err
	}
	for field, v := range norm {
		switch field {
		case FieldAssignedAt:
			a.AssignedAt = v.(time.Time)
		case FieldAssignedBy:
			a.AssignedBy = v.(string)
		case FieldExpiresAt:
			a.ExpiresAt = v.(*time.Time)
		case FieldIsActive:
			a.IsActive = v.(bool)
		}
	}
	return a, nil
}

func (a Assignment) Prepare(id string, now time.Time) Assignment {
	now = Timestamp(now)
	a.ID = id
	a.UserID = ids.Canonical(a.UserID)
	a.RoleID = ids.Canonical(a.RoleID)
	a.AssignedBy = ids.Canonical(a.AssignedBy)
	if a.AssignedAt.IsZero() {
		a.AssignedAt = now
	} else {
		a.AssignedAt = Timestamp(a.AssignedAt)
	}
	a.ExpiresAt = OptionalTimestamp(a.ExpiresAt)
	a.IsActive = true
	a.CreatedAt = now
	a.UpdatedAt = now
	return a
}

// Expired reports whether the assignment has an expiry at or before now.
func (a Assignment) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && !a.ExpiresAt.After(now)
}

// IsEffective reports whether the assignment grants its role at now: it
// must be active and either never expire or expire strictly after now.
func (a Assignment) IsEffective(now time.Time) bool {
	return a.IsActive && !a.Expired(now)
}

// EffectiveOnly filters assignments down to the effective ones at now.
func EffectiveOnly(assignments []Assignment, now time.Time) []Assignment {
	out := make([]Assignment, 0, len(assignments))
	for _, a := range assignments {
		if a.IsEffective(now) {
			out = append(out, a)
		}
	}
	return out
}
