package httpclient

import (
	"context"
	nethttp "net/http"
	"time"

	"go.opentelemetry.io/otel/metric"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/gaborage/llmsdk/trace"
)

const (
	// HeaderXRequestID is the standard header name for request correlation
	HeaderXRequestID = trace.HeaderXRequestID
	// HeaderTraceParent is the W3C trace context header name
	HeaderTraceParent = trace.HeaderTraceParent
	// HeaderTraceState is the W3C trace context "tracestate" header name
	HeaderTraceState = trace.HeaderTraceState

	// HeaderContentType is consulted by the retry middleware
	HeaderContentType = "Content-Type"
	// HeaderAuthorization carries the bearer token
	HeaderAuthorization = "Authorization"
)

// Doer sends a fully built request. *Client implements it; tests may substitute their own.
type Doer interface {
	Do(req *nethttp.Request) (*nethttp.Response, error)
	BaseURL() string
}

// RequestInterceptor is called on the request clone before it enters the middleware chain
type RequestInterceptor func(ctx context.Context, req *nethttp.Request) error

// Config holds the transport client configuration. It is fixed once Build returns.
type Config struct {
	BaseURL             string
	Retry               RetryPolicy
	RequestInterceptors []RequestInterceptor
	DefaultHeaders      map[string]string
	// LogPayloads enables debug-level logging of headers and body payloads
	LogPayloads bool
	// MaxPayloadLogBytes caps the number of body bytes logged when LogPayloads is enabled
	MaxPayloadLogBytes int
	// EnableW3CTrace generates a traceparent when no span or upstream value is available
	EnableW3CTrace bool
	// Transport is the innermost RoundTripper (default: a clone of http.DefaultTransport)
	Transport nethttp.RoundTripper
	// TracerProvider and MeterProvider default to the OpenTelemetry globals
	TracerProvider oteltrace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// WithRequestID pins the X-Request-ID used for calls made with ctx
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return trace.WithRequestID(ctx, requestID)
}

// NewHeaderInterceptor creates an interceptor that sets header when the request does not carry it
func NewHeaderInterceptor(header, value string) RequestInterceptor {
	return func(_ context.Context, req *nethttp.Request) error {
		if req.Header.Get(header) == "" {
			req.Header.Set(header, value)
		}
		return nil
	}
}

// durationOrDefault returns d, or def when d is not positive
func durationOrDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
