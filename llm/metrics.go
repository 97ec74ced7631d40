package llm

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/gaborage/llmsdk/httpclient"
	"github.com/gaborage/llmsdk/logger"
	"github.com/gaborage/llmsdk/observability"
)

const (
	meterName = "github.com/gaborage/llmsdk/llm"

	metricCalls        = "llmsdk.api.calls"
	metricCallDuration = "llmsdk.api.call.duration"

	attrOperation = "llm.operation"
	attrOutcome   = "llm.outcome"

	outcomeSuccess   = "success"
	outcomeHTTPError = "http_error"
	outcomeDecode    = "decode_error"
	outcomeError     = "error"
)

// callMetrics records one observation per logical call. A nil *callMetrics records nothing.
type callMetrics struct {
	calls    metric.Int64Counter
	duration metric.Float64Histogram
}

func newCallMetrics(mp metric.MeterProvider, log logger.Logger) *callMetrics {
	if mp == nil {
		return nil
	}
	meter := mp.Meter(meterName)
	m := &callMetrics{}

	var err error
	if m.calls, err = observability.CreateCounter(meter, metricCalls,
		"Number of API calls by operation and outcome", metric.WithUnit("{call}")); err != nil {
		log.Warn().Err(err).Str("metric", metricCalls).Msg("Failed to initialize SDK metric")
	}
	if m.duration, err = observability.CreateHistogram(meter, metricCallDuration,
		"Duration of API calls including retries", metric.WithUnit("ms")); err != nil {
		log.Warn().Err(err).Str("metric", metricCallDuration).Msg("Failed to initialize SDK metric")
	}
	return m
}

func (m *callMetrics) record(ctx context.Context, operation string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrOperation, operation),
		attribute.String(attrOutcome, outcomeOf(err)),
	)
	if m.calls != nil {
		m.calls.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, float64(elapsed)/float64(time.Millisecond), attrs)
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return outcomeSuccess
	case httpclient.IsErrorType(err, httpclient.HTTPError):
		return outcomeHTTPError
	case httpclient.IsErrorType(err, httpclient.DecodeError):
		return outcomeDecode
	default:
		return outcomeError
	}
}

// operationName labels a descriptor for metrics.
func operationName(descriptor IntoRequest) string {
	switch d := descriptor.(type) {
	case ChatCompletionRequest:
		return "chat.completions"
	case ImageRequest:
		return "images.generations"
	case SpeechRequest:
		return "audio.speech"
	case WhisperRequest:
		if d.Type == WhisperTranslation {
			return "audio.translations"
		}
		return "audio.transcriptions"
	case EmbeddingRequest:
		return "embeddings"
	default:
		return "unknown"
	}
}
