package datasource

import (
	"context"

	"github.com/MertBaran/QA-API-sub001/pkg/model"
)

// Lookup is FindByID with absence reported as ok=false instead of an error.
func Lookup[T any](ctx context.Context, ds DataSource[T], id string) (T, bool, error) {
	var zero T
	entity, err := ds.FindByID(ctx, id)
	if err != nil {
		if IsNotFound(err) {
			return zero, false, nil
		}
		return zero, false, err
	}
	return entity, true, nil
}

// First returns the first record matching filter, if any.
func First[T any](ctx context.Context, ds DataSource[T], filter model.Fields) (T, bool, error) {
	var zero T
	matches, err := ds.FindByFields(ctx, filter)
	if err != nil {
		return zero, false, err
	}
	if len(matches) == 0 {
		return zero, false, nil
	}
	return matches[0], true, nil
}
