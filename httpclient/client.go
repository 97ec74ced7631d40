package httpclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	nethttp "net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/gaborage/llmsdk/logger"
	"github.com/gaborage/llmsdk/trace"
)

const (
	// DefaultBaseURL is the public API root
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultMaxRetries is the default number of additional attempts for transient failures
	DefaultMaxRetries = 3

	// DefaultMaxPayloadLogBytes caps logged body previews
	DefaultMaxPayloadLogBytes = 1024
)

// Client sends descriptor-built requests through the middleware chain
// tracing -> retry -> network. It is immutable and safe for concurrent use.
type Client struct {
	httpClient *nethttp.Client
	logger     logger.Logger
	config     *Config
	callCount  int64
}

// New creates a client for baseURL with maxRetries additional attempts and default backoff.
func New(log logger.Logger, baseURL string, maxRetries int) *Client {
	return NewBuilder(log).
		WithBaseURL(baseURL).
		WithRetries(maxRetries).
		Build()
}

// Builder provides a fluent interface for configuring the transport client
type Builder struct {
	config *Config
	logger logger.Logger
}

// NewBuilder creates a new client builder
func NewBuilder(log logger.Logger) *Builder {
	if log == nil {
		log = logger.NewNop()
	}
	return &Builder{
		config: &Config{
			BaseURL:            DefaultBaseURL,
			Retry:              DefaultRetryPolicy(DefaultMaxRetries),
			DefaultHeaders:     make(map[string]string),
			MaxPayloadLogBytes: DefaultMaxPayloadLogBytes,
		},
		logger: log,
	}
}

// WithBaseURL sets the API root all descriptor paths are appended to
func (b *Builder) WithBaseURL(baseURL string) *Builder {
	if baseURL != "" {
		b.config.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return b
}

// WithRetries sets the number of additional attempts for transient failures
func (b *Builder) WithRetries(maxRetries int) *Builder {
	if maxRetries < 0 {
		maxRetries = 0
	}
	b.config.Retry.MaxRetries = maxRetries
	return b
}

// WithBackoff overrides the first backoff wait and the per-wait ceiling
func (b *Builder) WithBackoff(initial, ceiling time.Duration) *Builder {
	b.config.Retry.InitialInterval = initial
	b.config.Retry.MaxInterval = ceiling
	return b
}

// WithDefaultHeader adds a header sent with all requests unless the request sets it
func (b *Builder) WithDefaultHeader(key, value string) *Builder {
	b.config.DefaultHeaders[key] = value
	return b
}

// WithRequestInterceptor adds a request interceptor
func (b *Builder) WithRequestInterceptor(interceptor RequestInterceptor) *Builder {
	b.config.RequestInterceptors = append(b.config.RequestInterceptors, interceptor)
	return b
}

// WithPayloadLogging enables debug-level previews of request and response bodies
func (b *Builder) WithPayloadLogging(enabled bool, maxBytes int) *Builder {
	b.config.LogPayloads = enabled
	b.config.MaxPayloadLogBytes = maxBytes
	return b
}

// WithW3CTrace generates a traceparent for calls made outside any span
func (b *Builder) WithW3CTrace(enabled bool) *Builder {
	b.config.EnableW3CTrace = enabled
	return b
}

// WithTransport replaces the innermost RoundTripper
func (b *Builder) WithTransport(rt nethttp.RoundTripper) *Builder {
	b.config.Transport = rt
	return b
}

// WithTracerProvider sets the provider used for client spans
func (b *Builder) WithTracerProvider(tp oteltrace.TracerProvider) *Builder {
	b.config.TracerProvider = tp
	return b
}

// WithMeterProvider sets the provider used for attempt and retry counters
func (b *Builder) WithMeterProvider(mp metric.MeterProvider) *Builder {
	b.config.MeterProvider = mp
	return b
}

// Build assembles the middleware chain. The builder must not be reused afterwards.
func (b *Builder) Build() *Client {
	cfg := *b.config
	if cfg.Transport == nil {
		cfg.Transport = nethttp.DefaultTransport.(*nethttp.Transport).Clone()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}

	retry := NewRetryMiddleware(cfg.Transport, cfg.Retry,
		WithRetryLogger(b.logger),
		WithRetryMeterProvider(cfg.MeterProvider),
	)
	chain := NewTracingMiddleware(retry, cfg.TracerProvider, cfg.EnableW3CTrace)

	return &Client{
		httpClient: &nethttp.Client{
			Transport: chain,
			// one logical call maps to one span; redirects are surfaced to the caller
			CheckRedirect: func(_ *nethttp.Request, _ []*nethttp.Request) error {
				return nethttp.ErrUseLastResponse
			},
		},
		logger: b.logger,
		config: &cfg,
	}
}

// BaseURL returns the API root requests are built against
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// RetryPolicy returns the client's retry budget
func (c *Client) RetryPolicy() RetryPolicy {
	return c.config.Retry
}

// Do sends req through the middleware chain. The caller's request is not modified.
// Transport failures are returned as TimeoutError or NetworkError; every status code,
// including 4xx and 5xx, is returned as a response for the caller to classify.
func (c *Client) Do(req *nethttp.Request) (*nethttp.Response, error) {
	if req == nil {
		return nil, NewValidationError("request cannot be nil", "request")
	}

	start := time.Now()
	callCount := atomic.AddInt64(&c.callCount, 1)
	ctx := req.Context()

	out := req.Clone(ctx)
	c.applyHeaders(out)
	if err := c.runRequestInterceptors(ctx, out); err != nil {
		return nil, NewInterceptorError("request interceptor failed", "request", err)
	}

	requestID := out.Header.Get(HeaderXRequestID)
	if requestID == "" {
		requestID = trace.EnsureRequestID(ctx)
		out.Header.Set(HeaderXRequestID, requestID)
	}

	c.logRequest(out, c.requestPreview(out), requestID)

	resp, err := c.httpClient.Do(out)
	if err != nil {
		clientErr := c.classifyTransportError(ctx, err, time.Since(start))
		c.logger.Error().
			Err(clientErr).
			Str("method", out.Method).
			Str("url", out.URL.String()).
			Str("request_id", requestID).
			Msg("REST client request failed")
		return nil, clientErr
	}

	c.logResponse(resp, c.responsePreview(resp), requestID, time.Since(start), callCount)
	return resp, nil
}

// applyHeaders sets default headers the request does not already carry
func (c *Client) applyHeaders(req *nethttp.Request) {
	for key, value := range c.config.DefaultHeaders {
		if req.Header.Get(key) == "" {
			req.Header.Set(key, value)
		}
	}
}

// runRequestInterceptors executes all request interceptors
func (c *Client) runRequestInterceptors(ctx context.Context, req *nethttp.Request) error {
	for _, interceptor := range c.config.RequestInterceptors {
		if err := interceptor(ctx, req); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) classifyTransportError(ctx context.Context, err error, elapsed time.Duration) ClientError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return NewTimeoutError("request deadline exceeded", elapsed.Round(time.Millisecond))
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewTimeoutError("request timeout", elapsed.Round(time.Millisecond))
	}
	var clientErr ClientError
	if errors.As(err, &clientErr) {
		return clientErr
	}
	return NewNetworkError("request execution failed", err)
}

// payloadLimit returns the preview size cap
func (c *Client) payloadLimit() int {
	if c.config.MaxPayloadLogBytes <= 0 {
		return DefaultMaxPayloadLogBytes
	}
	return c.config.MaxPayloadLogBytes
}

// requestPreview reads the body through GetBody so the request itself stays unread
func (c *Client) requestPreview(req *nethttp.Request) []byte {
	if !c.config.LogPayloads || req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil
	}
	defer body.Close()
	preview, _ := io.ReadAll(io.LimitReader(body, int64(c.payloadLimit())+1))
	return preview
}

// responsePreview buffers the response body and puts it back for the caller
func (c *Client) responsePreview(resp *nethttp.Response) []byte {
	if !c.config.LogPayloads || resp.Body == nil {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(data))
	if err != nil {
		return nil
	}
	return data
}

// logRequest logs the outgoing request
func (c *Client) logRequest(req *nethttp.Request, preview []byte, requestID string) {
	bodySize := req.ContentLength
	if bodySize <= 0 {
		bodySize = int64(len(preview))
	}

	logEvent := c.logger.Info().
		Str("direction", "outbound").
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Str("request_id", requestID)
	if len(req.Header) > 0 {
		logEvent = logEvent.Int("header_count", len(req.Header))
	}
	if bodySize > 0 {
		logEvent = logEvent.Int64("body_size", bodySize)
	}
	logEvent.Msg("REST client request")

	if !c.config.LogPayloads {
		return
	}
	c.logPayload(c.logger.Debug().
		Str("direction", "outbound").
		Str("method", req.Method).
		Str("request_id", requestID).
		Interface("headers", req.Header), preview, bodySize).
		Msg("REST client request")
}

// logResponse logs the incoming response
func (c *Client) logResponse(resp *nethttp.Response, preview []byte, requestID string, elapsed time.Duration, callCount int64) {
	bodySize := resp.ContentLength
	if preview != nil {
		bodySize = int64(len(preview))
	}

	logEvent := c.logger.Info().
		Str("direction", "inbound").
		Int("status", resp.StatusCode).
		Dur("elapsed", elapsed).
		Int64("call_count", callCount).
		Str("request_id", requestID)
	if bodySize > 0 {
		logEvent = logEvent.Int64("body_size", bodySize)
	}
	logEvent.Msg("REST client response")

	if !c.config.LogPayloads {
		return
	}
	c.logPayload(c.logger.Debug().
		Str("direction", "inbound").
		Int("status", resp.StatusCode).
		Str("request_id", requestID).
		Interface("headers", resp.Header), preview, bodySize).
		Msg("REST client response")
}

func (c *Client) logPayload(event logger.LogEvent, body []byte, size int64) logger.LogEvent {
	limit := c.payloadLimit()
	truncated := len(body) > limit || size > int64(limit)
	if len(body) > limit {
		body = body[:limit]
	}
	event = event.Int64("body_size", size).
		Str("body_truncated", boolString(truncated))
	if len(body) > 0 {
		event = event.Bytes("body_preview", body)
	}
	return event
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
