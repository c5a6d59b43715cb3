package policy

import "context"

type contextKey int

const traceIDKey contextKey = iota

// WithTraceID returns a context carrying the given trace id, for
// propagation from the HTTP layer down into the evaluator and decision
// log without threading it through every function signature.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceIDFromContext returns the trace id stored by WithTraceID, or
// "" if none was set.
func TraceIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(traceIDKey).(string)
	return v
}
