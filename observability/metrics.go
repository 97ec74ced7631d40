package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"google.golang.org/grpc/credentials/insecure"
)

func (p *provider) initMeterProvider() error {
	res, err := p.createResource()
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := p.createMetricExporter()
	if err != nil {
		return fmt.Errorf("failed to create metric exporter: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(
		exporter,
		sdkmetric.WithInterval(p.config.Metrics.Interval),
		sdkmetric.WithTimeout(p.config.Metrics.Export.Timeout),
	)

	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	return nil
}

// temporalitySelector maps the configured temporality onto instrument kinds.
// Up-down counters stay cumulative under delta.
func temporalitySelector(temporality string) sdkmetric.TemporalitySelector {
	if temporality != TemporalityDelta {
		return sdkmetric.DefaultTemporalitySelector
	}
	return func(kind sdkmetric.InstrumentKind) metricdata.Temporality {
		switch kind {
		case sdkmetric.InstrumentKindUpDownCounter, sdkmetric.InstrumentKindObservableUpDownCounter:
			return metricdata.CumulativeTemporality
		default:
			return metricdata.DeltaTemporality
		}
	}
}

func (p *provider) createMetricExporter() (sdkmetric.Exporter, error) {
	cfg := p.config.Metrics
	selector := temporalitySelector(cfg.Temporality)

	if cfg.Endpoint == EndpointStdout {
		return stdoutmetric.New(
			stdoutmetric.WithPrettyPrint(),
			stdoutmetric.WithTemporalitySelector(selector),
		)
	}

	secure := !isEnabled(cfg.Insecure)
	switch cfg.Protocol {
	case ProtocolHTTP:
		opts := []otlpmetrichttp.Option{
			otlpmetrichttp.WithEndpointURL(cfg.Endpoint),
			otlpmetrichttp.WithTemporalitySelector(selector),
		}
		if !secure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlpmetrichttp.WithHeaders(cfg.Headers))
		}
		if cfg.Compression == CompressionGzip {
			opts = append(opts, otlpmetrichttp.WithCompression(otlpmetrichttp.GzipCompression))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case ProtocolGRPC:
		opts := []otlpmetricgrpc.Option{
			otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
			otlpmetricgrpc.WithTemporalitySelector(selector),
		}
		if !secure {
			opts = append(opts, otlpmetricgrpc.WithTLSCredentials(insecure.NewCredentials()))
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlpmetricgrpc.WithHeaders(cfg.Headers))
		}
		if cfg.Compression == CompressionGzip {
			opts = append(opts, otlpmetricgrpc.WithCompressor(CompressionGzip))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("metrics protocol '%s': %w", cfg.Protocol, ErrInvalidProtocol)
	}
}

// CreateCounter creates an Int64Counter with a description.
func CreateCounter(meter metric.Meter, name, description string, opts ...metric.Int64CounterOption) (metric.Int64Counter, error) {
	return meter.Int64Counter(
		name,
		append([]metric.Int64CounterOption{metric.WithDescription(description)}, opts...)...,
	)
}

// CreateHistogram creates a Float64Histogram with a description.
func CreateHistogram(meter metric.Meter, name, description string, opts ...metric.Float64HistogramOption) (metric.Float64Histogram, error) {
	return meter.Float64Histogram(
		name,
		append([]metric.Float64HistogramOption{metric.WithDescription(description)}, opts...)...,
	)
}
