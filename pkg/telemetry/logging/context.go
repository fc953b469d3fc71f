package logging

import "context"

// Context keys for request-scoped log fields.
type contextKey string

const (
	// RequestIDKey is the context key for request ids.
	RequestIDKey contextKey = "request_id"

	// CallerIDKey is the context key for the inbound caller identity.
	CallerIDKey contextKey = "caller_id"

	// UpstreamKey is the context key for the resolved upstream alias.
	UpstreamKey contextKey = "upstream"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(RequestIDKey).(string); ok {
		return v
	}
	return ""
}

// WithCallerID adds the caller identity to the context.
func WithCallerID(ctx context.Context, callerID string) context.Context {
	return context.WithValue(ctx, CallerIDKey, callerID)
}

// GetCallerID retrieves the caller identity from the context.
func GetCallerID(ctx context.Context) string {
	if v, ok := ctx.Value(CallerIDKey).(string); ok {
		return v
	}
	return ""
}

// WithUpstream adds the resolved upstream alias to the context.
func WithUpstream(ctx context.Context, alias string) context.Context {
	return context.WithValue(ctx, UpstreamKey, alias)
}

// GetUpstream retrieves the resolved upstream alias from the context.
func GetUpstream(ctx context.Context) string {
	if v, ok := ctx.Value(UpstreamKey).(string); ok {
		return v
	}
	return ""
}
