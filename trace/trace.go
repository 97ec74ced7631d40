// Package trace carries request correlation identifiers for outbound API calls:
// the X-Request-ID header and W3C trace context (traceparent/tracestate).
package trace

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	oteltrace "go.opentelemetry.io/otel/trace"
)

type contextKey string

const (
	requestIDKey   contextKey = "request_id"
	traceParentKey contextKey = "traceparent"
	traceStateKey  contextKey = "tracestate"

	// HeaderXRequestID is the request correlation header sent with every call
	HeaderXRequestID = "X-Request-ID"
	// HeaderTraceParent is the W3C trace context header name
	HeaderTraceParent = "traceparent"
	// HeaderTraceState is the W3C trace context "tracestate" header name
	HeaderTraceState = "tracestate"
)

// WithRequestID stores a request id in ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request id stored in ctx, if any.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if id, ok := ctx.Value(requestIDKey).(string); ok && id != "" {
		return id, true
	}
	return "", false
}

// EnsureRequestID returns the stored request id, the active span's trace id, or a new UUID.
func EnsureRequestID(ctx context.Context) string {
	if id, ok := RequestIDFromContext(ctx); ok {
		return id
	}
	if sc := oteltrace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return uuid.New().String()
}

// WithTraceParent stores an upstream traceparent value in ctx.
func WithTraceParent(ctx context.Context, traceParent string) context.Context {
	return context.WithValue(ctx, traceParentKey, traceParent)
}

// ParentFromContext returns the stored traceparent, if any.
func ParentFromContext(ctx context.Context) (string, bool) {
	if tp, ok := ctx.Value(traceParentKey).(string); ok && tp != "" {
		return tp, true
	}
	return "", false
}

// WithTraceState stores an upstream tracestate value in ctx.
func WithTraceState(ctx context.Context, traceState string) context.Context {
	return context.WithValue(ctx, traceStateKey, traceState)
}

// StateFromContext returns the stored tracestate, if any.
func StateFromContext(ctx context.Context) (string, bool) {
	if ts, ok := ctx.Value(traceStateKey).(string); ok && ts != "" {
		return ts, true
	}
	return "", false
}

// InjectOptions controls InjectHeaders.
type InjectOptions struct {
	// GenerateTraceParent creates a traceparent when neither an active span nor ctx provides one
	GenerateTraceParent bool
}

// InjectHeaders writes correlation headers into h without overwriting values the caller set.
// W3C headers come from the active OTel span through the global propagator, then from values
// stored in ctx. X-Request-ID falls back to the trace id of the outgoing traceparent.
func InjectHeaders(ctx context.Context, h http.Header, opts InjectOptions) {
	if h.Get(HeaderTraceParent) == "" {
		otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(h))
	}
	// the global propagator may be a no-op when no provider was installed
	if h.Get(HeaderTraceParent) == "" && oteltrace.SpanContextFromContext(ctx).IsValid() {
		propagation.TraceContext{}.Inject(ctx, propagation.HeaderCarrier(h))
	}
	if h.Get(HeaderTraceParent) == "" {
		if tp, ok := ParentFromContext(ctx); ok {
			h.Set(HeaderTraceParent, tp)
		} else if opts.GenerateTraceParent {
			h.Set(HeaderTraceParent, GenerateTraceParent())
		}
	}
	if h.Get(HeaderTraceState) == "" {
		if ts, ok := StateFromContext(ctx); ok {
			h.Set(HeaderTraceState, ts)
		}
	}
	if h.Get(HeaderXRequestID) != "" {
		return
	}
	if id, ok := RequestIDFromContext(ctx); ok {
		h.Set(HeaderXRequestID, id)
		return
	}
	if traceID := traceIDFromParent(h.Get(HeaderTraceParent)); traceID != "" {
		h.Set(HeaderXRequestID, traceID)
		return
	}
	h.Set(HeaderXRequestID, EnsureRequestID(ctx))
}

// traceIDFromParent extracts the 32-hex trace id from a traceparent value.
func traceIDFromParent(tp string) string {
	parts := strings.Split(tp, "-")
	if len(parts) != 4 || len(parts[1]) != 32 {
		return ""
	}
	return parts[1]
}

// GenerateTraceParent creates a sampled W3C traceparent value.
// Format: version(2)-trace-id(32)-span-id(16)-flags(2), e.g., "00-<32>-<16>-01"
func GenerateTraceParent() string {
	traceID := make([]byte, 16)
	spanID := make([]byte, 8)
	if _, err := crand.Read(traceID); err != nil {
		clear(traceID)
	}
	if _, err := crand.Read(spanID); err != nil {
		clear(spanID)
	}
	if allZero(traceID) {
		traceID[len(traceID)-1] = 0x01
	}
	if allZero(spanID) {
		spanID[len(spanID)-1] = 0x01
	}
	return "00-" + hex.EncodeToString(traceID) + "-" + hex.EncodeToString(spanID) + "-01"
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
