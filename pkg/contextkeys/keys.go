// Package contextkeys provides centralized context key definitions
//
// All request-scoped values shared between packages are keyed here so the
// HTTP layer, the logger and the RBAC guards agree on them.
//
//	ctx = contextkeys.WithUserID(ctx, userID)
//	userID := contextkeys.GetUserID(ctx)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// RequestIDKey contains request ID string
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, error responses
	RequestIDKey Key = "request_id"

	// UserIDKey contains the caller's user ID in the active identity scheme
	// Set by: httputil.IdentityMiddleware
	// Used by: rbac.Middleware guards, assignedBy on role assignment
	UserIDKey Key = "user_id"

	// LoggerKey contains *observability.Logger
	// Set by: httputil.LoggingMiddleware
	LoggerKey Key = "logger"
)

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}

// GetLogger retrieves the raw logger value from context
func GetLogger(ctx context.Context) interface{} {
	return ctx.Value(LoggerKey)
}
