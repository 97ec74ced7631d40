package httpclient

import (
	"context"
	"errors"
	"io"
	nethttp "net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/gaborage/llmsdk/logger"
)

const (
	contentTypeMultipart   = "multipart/form-data"
	contentTypeOctetStream = "application/octet-stream"

	// maxDrainBytes bounds how much of a failed response is read before the connection is reused
	maxDrainBytes = 64 << 10

	retryReasonNetwork     = "network"
	retryReasonServerError = "server_error"
	retryReasonRateLimited = "rate_limited"
)

// RetryPolicy is the immutable retry budget shared by every call of a client.
type RetryPolicy struct {
	// MaxRetries is the number of additional attempts after the first one
	MaxRetries int
	// InitialInterval is the first backoff wait (default 500ms)
	InitialInterval time.Duration
	// MaxInterval caps a single backoff wait (default 60s)
	MaxInterval time.Duration
}

// DefaultRetryPolicy returns a policy using the exponential backoff defaults.
func DefaultRetryPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries:      maxRetries,
		InitialInterval: backoff.DefaultInitialInterval,
		MaxInterval:     backoff.DefaultMaxInterval,
	}
}

// newBackOff creates a fresh backoff sequence for one logical call.
func (p RetryPolicy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = durationOrDefault(p.InitialInterval, backoff.DefaultInitialInterval)
	b.MaxInterval = durationOrDefault(p.MaxInterval, backoff.DefaultMaxInterval)
	b.Reset()
	return b
}

// IsRetryableContentType reports whether a request with this Content-Type may be resent.
// Multipart uploads and raw octet streams are sent exactly once.
func IsRetryableContentType(contentType string) bool {
	if strings.Contains(contentType, contentTypeMultipart) {
		return false
	}
	return contentType != contentTypeOctetStream
}

// RetryOption configures a TransientRetry
type RetryOption func(*TransientRetry)

// WithRetryLogger logs each scheduled retry at warn level
func WithRetryLogger(log logger.Logger) RetryOption {
	return func(t *TransientRetry) {
		t.logger = log
	}
}

// WithRetryMeterProvider records attempt and retry counters on mp
func WithRetryMeterProvider(mp metric.MeterProvider) RetryOption {
	return func(t *TransientRetry) {
		t.metrics = newRetryMetrics(mp, t.logger)
	}
}

// TransientRetry resends a request on network errors, 5xx and 429 responses
// with exponential backoff, up to MaxRetries additional attempts.
type TransientRetry struct {
	next    nethttp.RoundTripper
	policy  RetryPolicy
	logger  logger.Logger
	metrics *retryMetrics
}

// NewTransientRetry wraps next with the transient retry policy
func NewTransientRetry(next nethttp.RoundTripper, policy RetryPolicy, opts ...RetryOption) *TransientRetry {
	t := &TransientRetry{
		next:   next,
		policy: policy,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RoundTrip implements http.RoundTripper.
func (t *TransientRetry) RoundTrip(req *nethttp.Request) (*nethttp.Response, error) {
	ctx := req.Context()
	bo := t.policy.newBackOff()

	attemptReq := req
	for attempt := 0; ; attempt++ {
		resp, err := t.send(attemptReq)

		reason, transient := transientReason(ctx, resp, err)
		if !transient || attempt >= t.policy.MaxRetries || !rewindable(req) {
			return resp, err
		}

		wait := bo.NextBackOff()
		discard(resp)
		t.onRetry(ctx, req, attempt+1, reason, wait, resp, err)

		if err := sleepContext(ctx, wait); err != nil {
			return nil, err
		}

		attemptReq, err = rewind(req)
		if err != nil {
			return nil, err
		}
	}
}

// send performs a single attempt
func (t *TransientRetry) send(req *nethttp.Request) (*nethttp.Response, error) {
	t.metrics.recordAttempt(req.Context(), req.URL.Path)
	return t.next.RoundTrip(req)
}

func (t *TransientRetry) onRetry(ctx context.Context, req *nethttp.Request, retry int, reason string, wait time.Duration, resp *nethttp.Response, err error) {
	t.metrics.recordRetry(ctx, req.URL.Path, reason)

	oteltrace.SpanFromContext(ctx).AddEvent("http.retry", oteltrace.WithAttributes(
		attribute.Int("http.request.resend_count", retry),
		attribute.String("retry.reason", reason),
		attribute.Int64("retry.wait_ms", wait.Milliseconds()),
	))

	if t.logger == nil {
		return
	}
	event := t.logger.Warn().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Int("retry", retry).
		Int("max_retries", t.policy.MaxRetries).
		Str("reason", reason).
		Dur("wait", wait)
	if resp != nil {
		event = event.Int("status", resp.StatusCode)
	}
	if err != nil {
		event = event.Err(err)
	}
	event.Msg("Retrying REST client request")
}

// RetryMiddleware is the content-type gate in front of TransientRetry.
type RetryMiddleware struct {
	transient *TransientRetry
}

// NewRetryMiddleware composes the content-type gate over a TransientRetry around next
func NewRetryMiddleware(next nethttp.RoundTripper, policy RetryPolicy, opts ...RetryOption) *RetryMiddleware {
	return &RetryMiddleware{transient: NewTransientRetry(next, policy, opts...)}
}

// RoundTrip implements http.RoundTripper.
func (m *RetryMiddleware) RoundTrip(req *nethttp.Request) (*nethttp.Response, error) {
	if !IsRetryableContentType(req.Header.Get(HeaderContentType)) {
		return m.transient.send(req)
	}
	return m.transient.RoundTrip(req)
}

// transientReason classifies an attempt outcome. Failures caused by the caller's
// context ending are never transient.
func transientReason(ctx context.Context, resp *nethttp.Response, err error) (string, bool) {
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", false
		}
		return retryReasonNetwork, true
	}
	switch {
	case resp.StatusCode == nethttp.StatusTooManyRequests:
		return retryReasonRateLimited, true
	case resp.StatusCode >= 500 && resp.StatusCode < 600:
		return retryReasonServerError, true
	default:
		return "", false
	}
}

// rewindable reports whether the request body can be recreated for another attempt
func rewindable(req *nethttp.Request) bool {
	return req.Body == nil || req.Body == nethttp.NoBody || req.GetBody != nil
}

// rewind clones req with a fresh body for the next attempt
func rewind(req *nethttp.Request) (*nethttp.Request, error) {
	clone := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, NewNetworkError("failed to rewind request body", err)
		}
		clone.Body = body
	}
	return clone, nil
}

// discard drains and closes a response that will not be returned to the caller
func discard(resp *nethttp.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
	_ = resp.Body.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
