package datasource

import (
	"github.com/MertBaran/QA-API-sub001/pkg/apperrors"
	"github.com/MertBaran/QA-API-sub001/pkg/ids"
	"github.com/MertBaran/QA-API-sub001/pkg/model"
)

// CheckIDs rejects id-valued fields of entity, other than its own id, that
// are not well formed for scheme. Adapters call it before every write so a
// malformed reference fails the same way on every backend.
func CheckIDs[T model.Record[T]](scheme ids.Scheme, entity T) error {
	for field, spec := range entity.FieldSpecs() {
		if !spec.IsID() || field == model.FieldID {
			continue
		}
		v, _ := entity.Value(field)
		switch val := v.(type) {
		case string:
			if val == "" && spec.Kind == model.KindOptionalID {
				continue
			}
			if !scheme.Valid(val) {
				return apperrors.InvalidID(field, val)
			}
		case []string:
			if err := CheckIDList(scheme, field, val); err != nil {
				return err
			}
		}
	}
	return nil
}

// CheckIDList rejects the first id in list that is malformed for scheme.
func CheckIDList(scheme ids.Scheme, field string, list []string) error {
	for _, id := range list {
		if !scheme.Valid(id) {
			return apperrors.InvalidID(field, id)
		}
	}
	return nil
}

// Matchable reports false when an id-valued value of a normalised filter is
// malformed for scheme; such a filter cannot match any record.
func Matchable(scheme ids.Scheme, specs map[string]model.FieldSpec, filter model.Fields) bool {
	for field, v := range filter {
		spec := specs[field]
		if !spec.IsID() {
			continue
		}
		id, _ := v.(string)
		if id == "" && spec.Kind == model.KindOptionalID {
			continue
		}
		if !scheme.Valid(id) {
			return false
		}
	}
	return true
}

// CheckPatchIDs rejects malformed id-valued fields of a normalised patch.
func CheckPatchIDs(scheme ids.Scheme, specs map[string]model.FieldSpec, patch model.Fields) error {
	for field, v := range patch {
		spec := specs[field]
		if !spec.IsID() {
			continue
		}
		switch val := v.(type) {
		case string:
			if val == "" && spec.Kind == model.KindOptionalID {
				continue
			}
			if err := CheckIDList(scheme, field, []string{val}); err != nil {
				return err
			}
		case []string:
			if err := CheckIDList(scheme, field, val); err != nil {
				return err
			}
		}
	}
	return nil
}
