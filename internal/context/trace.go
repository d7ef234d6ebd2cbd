package context

import (
	stdcontext "context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// TraceContext carries only cross-cutting concerns needed for observability.
type TraceContext struct {
	TraceID string // Globally unique ID for logs and spans
	SpanID  string // Current span identifier
	stdCtx  stdcontext.Context
}

// NewTraceContext derives a TraceContext from the active span in ctx.
// Without a recording span, fresh UUIDs are used so log lines can still be correlated.
func NewTraceContext(ctx stdcontext.Context) TraceContext {
	if ctx == nil {
		ctx = stdcontext.Background()
	}
	sc := trace.SpanContextFromContext(ctx)
	if sc.IsValid() {
		return TraceContext{
			TraceID: sc.TraceID().String(),
			SpanID:  sc.SpanID().String(),
			stdCtx:  ctx,
		}
	}
	return TraceContext{
		TraceID: uuid.NewString(),
		SpanID:  uuid.NewString(),
		stdCtx:  ctx,
	}
}

// Context returns the standard context the trace was derived from.
func (tc TraceContext) Context() stdcontext.Context {
	if tc.stdCtx == nil {
		return stdcontext.Background()
	}
	return tc.stdCtx
}
