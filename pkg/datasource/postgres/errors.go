package postgres

import (
	"database/sql/driver"
	"errors"
	"net"

	"github.com/lib/pq"

	"github.com/MertBaran/QA-API-sub001/pkg/apperrors"
	"github.com/MertBaran/QA-API-sub001/pkg/datasource"
)

const (
	uniqueViolation = pq.ErrorCode("23505")
	adminShutdown   = pq.ErrorCode("57P01")
	cannotConnect   = pq.ErrorCode("57P03")
)

// classify maps driver errors onto the datasource error taxonomy. Errors
// that are already classified pass through unchanged.
func classify(op, entity string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == uniqueViolation:
			return datasource.Duplicate(entity, err)
		case pqErr.Code.Class() == "08", pqErr.Code == adminShutdown, pqErr.Code == cannotConnect:
			return datasource.Unreachable(op, err)
		}
		return datasource.Failure(op, err)
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.As(err, &netErr) {
		return datasource.Unreachable(op, err)
	}
	return datasource.Failure(op, err)
}
