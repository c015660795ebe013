// Package apperrors defines the error taxonomy shared by the storage
// adapters, the RBAC services and the HTTP layer.
//
// Every error carries a Category (who caused it) and a Severity (how bad it
// is). Logging, alerting and retry decisions are derived from those two
// values only:
//
//	ShouldLog   everything except low severity user errors
//	ShouldAlert critical system errors
//	Retryable   non-critical system errors
//
// Templates such as ErrNotFound are compared by code, so a decorated copy
// still satisfies errors.Is:
//
//	err := apperrors.NotFound("role", id)
//	errors.Is(err, apperrors.ErrNotFound) // true
package apperrors
