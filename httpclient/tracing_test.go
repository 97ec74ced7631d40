package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	obtest "github.com/gaborage/llmsdk/observability/testing"
)

func TestTracingMiddlewareSingleSpanAcrossRetries(t *testing.T) {
	tp := obtest.NewTestTraceProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	var calls atomic.Int32
	var mu sync.Mutex
	var seenIDs []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seenIDs = append(seenIDs, r.Header.Get(HeaderXRequestID))
		mu.Unlock()
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewBuilder(&fakeLogger{}).
		WithBaseURL(srv.URL).
		WithRetries(3).
		WithBackoff(time.Millisecond, 2*time.Millisecond).
		WithTracerProvider(tp).
		Build()

	req := newJSONRequest(t, srv.URL+"/embeddings", `{"input":"hello"}`)
	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	spans := obtest.NewSpanCollector(t, tp.Exporter)
	spans.AssertCount(1)
	span := spans.First()
	obtest.AssertSpanName(t, &span, "POST /embeddings")
	assert.Equal(t, oteltrace.SpanKindClient, span.SpanKind)
	obtest.AssertSpanAttribute(t, &span, "http.response.status_code", int64(200))
	obtest.AssertSpanAttribute(t, &span, "http.request.method", "POST")

	retryEvents := 0
	for _, ev := range span.Events {
		if ev.Name == "http.retry" {
			retryEvents++
		}
	}
	assert.Equal(t, 2, retryEvents)

	// every attempt carries the same correlation id
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seenIDs, 3)
	assert.NotEmpty(t, seenIDs[0])
	assert.Equal(t, seenIDs[0], seenIDs[1])
	assert.Equal(t, seenIDs[0], seenIDs[2])
}

func TestTracingMiddlewareErrorStatus(t *testing.T) {
	tp := obtest.NewTestTraceProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewBuilder(nil).WithBaseURL(srv.URL).WithTracerProvider(tp).Build()
	resp, err := c.Do(newJSONRequest(t, srv.URL+"/chat/completions", `{}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	spans := obtest.NewSpanCollector(t, tp.Exporter).AssertCount(1)
	span := spans.First()
	obtest.AssertSpanStatus(t, &span, codes.Error)
	obtest.AssertSpanAttribute(t, &span, "error.type", "401")
}

func TestTracingMiddlewarePropagatesTraceparent(t *testing.T) {
	tp := obtest.NewTestTraceProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	traceparents := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		traceparents <- r.Header.Get(HeaderTraceParent)
	}))
	defer srv.Close()

	c := NewBuilder(nil).WithBaseURL(srv.URL).WithTracerProvider(tp).Build()
	resp, err := c.Do(newJSONRequest(t, srv.URL+"/embeddings", `{}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	traceparent := <-traceparents
	span := obtest.NewSpanCollector(t, tp.Exporter).AssertCount(1).First()
	assert.True(t, strings.Contains(traceparent, span.SpanContext.TraceID().String()))
	assert.True(t, strings.Contains(traceparent, span.SpanContext.SpanID().String()))
}

func TestTracingMiddlewareTransportError(t *testing.T) {
	tp := obtest.NewTestTraceProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	transport := &scriptedTransport{outcomes: oneOf(netFailure)}
	m := NewTracingMiddleware(NewRetryMiddleware(transport, fastPolicy(1)), tp, false)

	resp, err := m.RoundTrip(newRetryRequest(t, testContentType, "x"))
	assert.Nil(t, resp)
	require.Error(t, err)
	assert.Equal(t, int32(2), transport.attempts.Load())

	span := obtest.NewSpanCollector(t, tp.Exporter).AssertCount(1).First()
	obtest.AssertSpanStatus(t, &span, codes.Error)
}
