// Package trace provides trace ID generation and context propagation so that
// every log line and audit row produced by one command or session can be
// correlated.
package trace

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// traceKey is the unexported context key used to store the trace ID.
type traceKey struct{}

// GenerateID returns a new trace ID of the form "t_<32 hex digits>".
func GenerateID() string {
	return "t_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// WithTraceID returns a child context carrying the given trace ID.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

// Ensure returns ctx unchanged when it already carries a trace ID, otherwise
// a child context with a freshly generated one.
func Ensure(ctx context.Context) (context.Context, string) {
	if id := FromContext(ctx); id != "" {
		return ctx, id
	}
	id := GenerateID()
	return WithTraceID(ctx, id), id
}

// FromContext extracts the trace ID from ctx, returning "" if absent.
func FromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceKey{}).(string); ok {
		return v
	}
	return ""
}
