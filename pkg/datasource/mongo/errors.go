package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/MertBaran/QA-API-sub001/pkg/apperrors"
	"github.com/MertBaran/QA-API-sub001/pkg/datasource"
)

// classify maps driver errors onto the datasource error taxonomy.
func classify(op, entity string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}
	switch {
	case mongo.IsDuplicateKeyError(err):
		return datasource.Duplicate(entity, err)
	case errors.Is(err, context.Canceled):
		return datasource.Failure(op, err)
	case mongo.IsNetworkError(err), mongo.IsTimeout(err),
		errors.Is(err, mongo.ErrClientDisconnected):
		return datasource.Unreachable(op, err)
	}
	return datasource.Failure(op, err)
}
