package httpclient

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/gaborage/llmsdk/logger"
	"github.com/gaborage/llmsdk/observability"
)

const (
	meterName = "github.com/gaborage/llmsdk/httpclient"

	metricAttempts = "llmsdk.http.client.attempts" // Counter, one per send
	metricRetries  = "llmsdk.http.client.retries"  // Counter, one per scheduled resend

	attrPath        = "url.path"
	attrRetryReason = "retry.reason"
)

// retryMetrics holds the transport counters. A nil *retryMetrics records nothing.
type retryMetrics struct {
	attempts metric.Int64Counter
	retries  metric.Int64Counter
}

func newRetryMetrics(mp metric.MeterProvider, log logger.Logger) *retryMetrics {
	if mp == nil {
		return nil
	}
	meter := mp.Meter(meterName)
	m := &retryMetrics{}

	var err error
	m.attempts, err = observability.CreateCounter(meter, metricAttempts,
		"Number of HTTP attempts sent to the API", metric.WithUnit("{attempt}"))
	logMetricError(log, metricAttempts, err)

	m.retries, err = observability.CreateCounter(meter, metricRetries,
		"Number of HTTP attempts resent after a transient failure", metric.WithUnit("{retry}"))
	logMetricError(log, metricRetries, err)

	return m
}

func logMetricError(log logger.Logger, name string, err error) {
	if err != nil && log != nil {
		log.Warn().Err(err).Str("metric", name).Msg("Failed to initialize HTTP client metric")
	}
}

func (m *retryMetrics) recordAttempt(ctx context.Context, path string) {
	if m == nil || m.attempts == nil {
		return
	}
	m.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String(attrPath, path)))
}

func (m *retryMetrics) recordRetry(ctx context.Context, path, reason string) {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrPath, path),
		attribute.String(attrRetryReason, reason),
	))
}
