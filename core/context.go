package core

import "context"

// Context keys for run options
type contextKey string

const suppressHeaderKey contextKey = "suppressHeader"

// withSuppressHeader marks the context so run headers are not printed.
func withSuppressHeader(ctx context.Context) context.Context {
	return context.WithValue(ctx, suppressHeaderKey, true)
}

// WithSuppressHeader is withSuppressHeader for callers outside core, such
// as the MCP server whose stdout carries protocol frames.
func WithSuppressHeader(ctx context.Context) context.Context {
	return withSuppressHeader(ctx)
}

// shouldSuppressHeader returns whether headers should be suppressed from context
func shouldSuppressHeader(ctx context.Context) bool {
	val := ctx.Value(suppressHeaderKey)
	if val == nil {
		return false // default: show headers
	}
	suppress, ok := val.(bool)
	return ok && suppress
}
