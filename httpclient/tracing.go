package httpclient

import (
	nethttp "net/http"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.32.0"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/gaborage/llmsdk/trace"
)

const tracerName = "github.com/gaborage/llmsdk/httpclient"

// TracingMiddleware opens one client span per logical call and propagates
// trace context and X-Request-ID headers. Retries below it become span events.
type TracingMiddleware struct {
	next           nethttp.RoundTripper
	tracer         oteltrace.Tracer
	generateParent bool
}

// NewTracingMiddleware wraps next. A nil tp uses the global tracer provider.
func NewTracingMiddleware(next nethttp.RoundTripper, tp oteltrace.TracerProvider, enableW3C bool) *TracingMiddleware {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &TracingMiddleware{
		next:           next,
		tracer:         tp.Tracer(tracerName),
		generateParent: enableW3C,
	}
}

// RoundTrip implements http.RoundTripper.
func (m *TracingMiddleware) RoundTrip(req *nethttp.Request) (*nethttp.Response, error) {
	ctx, span := m.tracer.Start(req.Context(), req.Method+" "+req.URL.Path,
		oteltrace.WithSpanKind(oteltrace.SpanKindClient),
	)
	defer span.End()

	span.SetAttributes(requestAttributes(req)...)

	out := req.Clone(ctx)
	trace.InjectHeaders(ctx, out.Header, trace.InjectOptions{GenerateTraceParent: m.generateParent})
	span.SetAttributes(attribute.String("http.request.id", out.Header.Get(HeaderXRequestID)))

	resp, err := m.next.RoundTrip(out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(semconv.HTTPResponseStatusCode(resp.StatusCode))
	if resp.StatusCode >= 400 {
		span.SetAttributes(attribute.String("error.type", strconv.Itoa(resp.StatusCode)))
		span.SetStatus(codes.Error, nethttp.StatusText(resp.StatusCode))
	}
	return resp, nil
}

func requestAttributes(req *nethttp.Request) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.HTTPRequestMethodKey.String(req.Method),
		semconv.URLFull(req.URL.Redacted()),
		semconv.ServerAddress(req.URL.Hostname()),
	}
	if port, err := strconv.Atoi(req.URL.Port()); err == nil {
		attrs = append(attrs, semconv.ServerPort(port))
	}
	if ct := req.Header.Get(HeaderContentType); ct != "" {
		attrs = append(attrs, attribute.Bool("http.request.retryable", IsRetryableContentType(ct)))
	}
	return attrs
}
