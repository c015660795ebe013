package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/MertBaran/QA-API-sub001/pkg/model"
)

type permissionDoc struct {
	ID          primitive.ObjectID `bson:"_id"`
	Name        string             `bson:"name"`
	Description string             `bson:"description"`
	Resource    string             `bson:"resource"`
	Action      string             `bson:"action"`
	Category    string             `bson:"category"`
	IsActive    bool               `bson:"isActive"`
	CreatedAt   time.Time          `bson:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt"`
}

type roleDoc struct {
	ID          primitive.ObjectID   `bson:"_id"`
	Name        string               `bson:"name"`
	Description string               `bson:"description"`
	Permissions []primitive.ObjectID `bson:"permissions"`
	IsSystem    bool                 `bson:"isSystem"`
	IsActive    bool                 `bson:"isActive"`
	CreatedAt   time.Time            `bson:"createdAt"`
	UpdatedAt   time.Time            `bson:"updatedAt"`
}

// assignmentDoc stores unset optional fields as explicit nulls so that a
// {field: null} filter matches them.
type assignmentDoc struct {
	ID         primitive.ObjectID  `bson:"_id"`
	UserID     primitive.ObjectID  `bson:"userId"`
	RoleID     primitive.ObjectID  `bson:"roleId"`
	AssignedAt time.Time           `bson:"assignedAt"`
	AssignedBy *primitive.ObjectID `bson:"assignedBy"`
	ExpiresAt  *time.Time          `bson:"expiresAt"`
	IsActive   bool                `bson:"isActive"`
	CreatedAt  time.Time           `bson:"createdAt"`
	UpdatedAt  time.Time           `bson:"updatedAt"`
}

// keys maps logical field names onto document keys. Only the id differs.
func keys(specs map[string]model.FieldSpec) map[string]string {
	out := make(map[string]string, len(specs))
	for field := range specs {
		out[field] = field
	}
	out[model.FieldID] = "_id"
	return out
}

func objectID(hex string) (primitive.ObjectID, error) {
	return primitive.ObjectIDFromHex(hex)
}

func objectIDs(hexes []string) ([]primitive.ObjectID, error) {
	out := make([]primitive.ObjectID, 0, len(hexes))
	for _, h := range hexes {
		oid, err := objectID(h)
		if err != nil {
			return nil, err
		}
		out = append(out, oid)
	}
	return out, nil
}

func hexes(oids []primitive.ObjectID) []string {
	out := make([]string, 0, len(oids))
	for _, oid := range oids {
		out = append(out, oid.Hex())
	}
	return out
}

func encodePermission(p model.Permission) (permissionDoc, error) {
	oid, err := objectID(p.ID)
	if err != nil {
		return permissionDoc{}, err
	}
	return permissionDoc{
		ID:          oid,
		Name:        p.Name,
		Description: p.Description,
		Resource:    p.Resource,
		Action:      p.Action,
		Category:    string(p.Category),
		IsActive:    p.IsActive,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}, nil
}

func decodePermission(d permissionDoc) model.Permission {
	return model.Permission{
		ID:          d.ID.Hex(),
		Name:        d.Name,
		Description: d.Description,
		Resource:    d.Resource,
		Action:      d.Action,
		Category:    model.Category(d.Category),
		IsActive:    d.IsActive,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
}

func encodeRole(r model.Role) (roleDoc, error) {
	oid, err := objectID(r.ID)
	if err != nil {
		return roleDoc{}, err
	}
	perms, err := objectIDs(r.Permissions)
	if err != nil {
		return roleDoc{}, err
	}
	return roleDoc{
		ID:          oid,
		Name:        r.Name,
		Description: r.Description,
		Permissions: perms,
		IsSystem:    r.IsSystem,
		IsActive:    r.IsActive,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}, nil
}

func decodeRole(d roleDoc) model.Role {
	return model.Role{
		ID:          d.ID.Hex(),
		Name:        d.Name,
		Description: d.Description,
		Permissions: hexes(d.Permissions),
		IsSystem:    d.IsSystem,
		IsActive:    d.IsActive,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
}

func encodeAssignment(a model.Assignment) (assignmentDoc, error) {
	d := assignmentDoc{
		AssignedAt: a.AssignedAt,
		ExpiresAt:  model.OptionalTimestamp(a.ExpiresAt),
		IsActive:   a.IsActive,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
	var err error
	if d.ID, err = objectID(a.ID); err != nil {
		return assignmentDoc{}, err
	}
	if d.UserID, err = objectID(a.UserID); err != nil {
		return assignmentDoc{}, err
	}
	if d.RoleID, err = objectID(a.RoleID); err != nil {
		return assignmentDoc{}, err
	}
	if a.AssignedBy != "" {
		by, err := objectID(a.AssignedBy)
		if err != nil {
			return assignmentDoc{}, err
		}
		d.AssignedBy = &by
	}
	return d, nil
}

func decodeAssignment(d assignmentDoc) model.Assignment {
	a := model.Assignment{
		ID:         d.ID.Hex(),
		UserID:     d.UserID.Hex(),
		RoleID:     d.RoleID.Hex(),
		AssignedAt: d.AssignedAt.UTC(),
		IsActive:   d.IsActive,
		CreatedAt:  d.CreatedAt.UTC(),
		UpdatedAt:  d.UpdatedAt.UTC(),
	}
	if d.AssignedBy != nil {
		a.AssignedBy = d.AssignedBy.Hex()
	}
	if d.ExpiresAt != nil {
		t := d.ExpiresAt.UTC()
		a.ExpiresAt = &t
	}
	return a
}
