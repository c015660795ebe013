package model

import "time"

// Category groups permissions by the area of the platform they govern.
type Category string

const (
	CategoryContent Category = "content"
	CategoryUser    Category = "user"
	CategorySystem  Category = "system"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryContent, CategoryUser, CategorySystem:
		return true
	}
	return false
}

// Permission is a named capability on a resource, e.g. "questions:create".
type Permission struct {
	ID          string    `json:"id"`
	Name        string    `json:"name" validate:"required,max=100"`
	Description string    `json:"description,omitempty" validate:"max=500"`
	Resource    string    `json:"resource" validate:"required,max=100"`
	Action      string    `json:"action" validate:"required,max=100"`
	Category    Category  `json:"category" validate:"required,oneof=content user system"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

var permissionFields = map[string]FieldSpec{
	FieldID:          {Kind: KindID, Immutable: true},
	FieldName:        {Kind: KindString},
	FieldDescription: {Kind: KindString},
	FieldResource:    {Kind: KindString},
	FieldAction:      {Kind: KindString},
	FieldCategory:    {Kind: KindString},
	FieldIsActive:    {Kind: KindBool},
	FieldCreatedAt:   {Kind: KindTime, Immutable: true},
	FieldUpdatedAt:   {Kind: KindTime, Immutable: true},
}

func (p Permission) GetID() string { return p.ID }

func (p Permission) FieldSpecs() map[string]FieldSpec { return permissionFields }

func (p Permission) Value(field string) (interface{}, bool) {
	switch field {
	case FieldID:
		return p.ID, true
	case FieldName:
		return p.Name, true
	case FieldDescription:
		return p.Description, true
	case FieldResource:
		return p.Resource, true
	case FieldAction:
		return p.Action, true
	case FieldCategory:
		return string(p.Category), true
	case FieldIsActive:
		return p.IsActive, true
	case FieldCreatedAt:
		return p.CreatedAt, true
	case FieldUpdatedAt:
		return p.UpdatedAt, true
	}
	return nil, false
}

// Apply returns a copy of p with patch applied. UpdatedAt is left to the
// caller.
func (p Permission) Apply(patch Fields) (Permission, error) {
	norm, err := NormalizePatch(permissionFields, patch)
	if err != nil {
		return p, err
	}
	for field, v := range norm {
		switch field {
		case FieldName:
			p.Name = v.(string)
		case FieldDescription:
			p.Description = v.(string)
		case FieldResource:
			p.Resource = v.(string)
		case FieldAction:
			p.Action = v.(string)
		case FieldCategory:
			p.Category = Category(v.(string))
		case FieldIsActive:
			p.IsActive = v.(bool)
		}
	}
	return p, nil
}

// Prepare fills the defaults of a newly created permission.
func (p Permission) Prepare(id string, now time.Time) Permission {
	now = Timestamp(now)
	p.ID = id
	p.IsActive = true
	p.CreatedAt = now
	p.UpdatedAt = now
	return p
}
