// Package testing provides in-memory OpenTelemetry providers and assertions
// for tests that exercise the SDK's spans and metrics.
//
// Usage:
//
//	tp := NewTestTraceProvider()
//	defer tp.Shutdown(context.Background())
//
//	client := httpclient.NewBuilder(log).WithTracerProvider(tp).Build()
//	// ... issue requests ...
//
//	span := NewSpanCollector(t, tp.Exporter).AssertCount(1).First()
//	AssertSpanName(t, &span, "POST /chat/completions")
package testing

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

const (
	attrValueMismatchErrMsg   = "attribute %s value mismatch"
	metricNotFoundErrMsg      = "metric %s not found"
	metricValueMismatchErrMsg = "metric %s value mismatch"
)

// TestTraceProvider is an SDK TracerProvider that records spans synchronously in memory.
type TestTraceProvider struct {
	*sdktrace.TracerProvider
	Exporter *tracetest.InMemoryExporter
}

// NewTestTraceProvider creates a TracerProvider backed by an in-memory exporter.
func NewTestTraceProvider() *TestTraceProvider {
	exporter := tracetest.NewInMemoryExporter()
	return &TestTraceProvider{
		TracerProvider: sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter)),
		Exporter:       exporter,
	}
}

// TestMeterProvider is an SDK MeterProvider read on demand through a manual reader.
type TestMeterProvider struct {
	*sdkmetric.MeterProvider
	Reader *sdkmetric.ManualReader
}

// NewTestMeterProvider creates a MeterProvider with a manual reader.
func NewTestMeterProvider() *TestMeterProvider {
	reader := sdkmetric.NewManualReader()
	return &TestMeterProvider{
		MeterProvider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
		Reader:        reader,
	}
}

// Collect reads every metric recorded so far.
func (tmp *TestMeterProvider) Collect(t *testing.T) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, tmp.Reader.Collect(context.Background(), &rm), "failed to collect metrics")
	return rm
}

// SpanCollector snapshots the exporter's spans for fluent assertions.
type SpanCollector struct {
	t     *testing.T
	spans tracetest.SpanStubs
}

func NewSpanCollector(t *testing.T, exporter *tracetest.InMemoryExporter) *SpanCollector {
	t.Helper()
	return &SpanCollector{t: t, spans: exporter.GetSpans()}
}

func (sc *SpanCollector) Len() int {
	return len(sc.spans)
}

// WithName keeps only the spans called name.
func (sc *SpanCollector) WithName(name string) *SpanCollector {
	sc.t.Helper()
	filtered := make(tracetest.SpanStubs, 0, len(sc.spans))
	for i := range sc.spans {
		if sc.spans[i].Name == name {
			filtered = append(filtered, sc.spans[i])
		}
	}
	return &SpanCollector{t: sc.t, spans: filtered}
}

// First fails the test when the collection is empty.
func (sc *SpanCollector) First() tracetest.SpanStub {
	sc.t.Helper()
	require.NotEmpty(sc.t, sc.spans, "no spans in collection")
	return sc.spans[0]
}

func (sc *SpanCollector) AssertCount(expected int) *SpanCollector {
	sc.t.Helper()
	assert.Len(sc.t, sc.spans, expected, "unexpected number of spans")
	return sc
}

func AssertSpanName(t *testing.T, span *tracetest.SpanStub, expected string) {
	t.Helper()
	assert.Equal(t, expected, span.Name, "span name mismatch")
}

// AssertSpanAttribute supports string, int, int64, float64 and bool expectations.
func AssertSpanAttribute(t *testing.T, span *tracetest.SpanStub, key string, expected any) {
	t.Helper()
	for _, attr := range span.Attributes {
		if string(attr.Key) != key {
			continue
		}
		switch v := expected.(type) {
		case string:
			assert.Equal(t, v, attr.Value.AsString(), attrValueMismatchErrMsg, key)
		case int:
			assert.Equal(t, int64(v), attr.Value.AsInt64(), attrValueMismatchErrMsg, key)
		case int64:
			assert.Equal(t, v, attr.Value.AsInt64(), attrValueMismatchErrMsg, key)
		case float64:
			assert.Equal(t, v, attr.Value.AsFloat64(), attrValueMismatchErrMsg, key)
		case bool:
			assert.Equal(t, v, attr.Value.AsBool(), attrValueMismatchErrMsg, key)
		default:
			t.Fatalf("unsupported attribute value type: %T", expected)
		}
		return
	}
	t.Errorf("attribute %s not found in span", key)
}

func AssertSpanStatus(t *testing.T, span *tracetest.SpanStub, expectedCode codes.Code) {
	t.Helper()
	assert.Equal(t, expectedCode, span.Status.Code, "span status code mismatch")
}

// FindMetric returns nil when no metric is called metricName.
func FindMetric(rm metricdata.ResourceMetrics, metricName string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == metricName {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// AssertMetricValue checks the summed value of a counter across all its
// attribute sets, or the total observation count of a histogram.
func AssertMetricValue(t *testing.T, rm metricdata.ResourceMetrics, metricName string, expectedValue any) {
	t.Helper()
	m := FindMetric(rm, metricName)
	require.NotNil(t, m, metricNotFoundErrMsg, metricName)

	switch data := m.Data.(type) {
	case metricdata.Sum[int64]:
		var total int64
		for _, dp := range data.DataPoints {
			total += dp.Value
		}
		assert.EqualValues(t, expectedValue, total, metricValueMismatchErrMsg, metricName)
	case metricdata.Sum[float64]:
		var total float64
		for _, dp := range data.DataPoints {
			total += dp.Value
		}
		assert.EqualValues(t, expectedValue, total, metricValueMismatchErrMsg, metricName)
	case metricdata.Histogram[float64]:
		count, err := GetMetricHistogramCount(rm, metricName)
		require.NoError(t, err)
		assert.EqualValues(t, expectedValue, count, metricValueMismatchErrMsg, metricName)
	default:
		t.Fatalf("unsupported metric data type %T for %s", m.Data, metricName)
	}
}

func AssertMetricExists(t *testing.T, rm metricdata.ResourceMetrics, metricName string) {
	t.Helper()
	assert.NotNil(t, FindMetric(rm, metricName), metricNotFoundErrMsg, metricName)
}

// GetMetricHistogramCount sums the observation count over every data point of a float histogram.
func GetMetricHistogramCount(rm metricdata.ResourceMetrics, metricName string) (uint64, error) {
	m := FindMetric(rm, metricName)
	if m == nil {
		return 0, fmt.Errorf(metricNotFoundErrMsg, metricName)
	}
	hist, ok := m.Data.(metricdata.Histogram[float64])
	if !ok {
		return 0, fmt.Errorf("metric %s is not a float64 histogram", metricName)
	}
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	return count, nil
}
