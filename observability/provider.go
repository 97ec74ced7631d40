// Package observability builds the OpenTelemetry trace and meter providers the
// SDK transport reports into. When disabled it hands out no-op providers.
package observability

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.32.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/gaborage/llmsdk/logger"
)

// Provider owns the lifecycle of the trace and meter providers.
type Provider interface {
	TracerProvider() trace.TracerProvider
	MeterProvider() metric.MeterProvider

	// Shutdown flushes pending telemetry and releases exporters.
	Shutdown(ctx context.Context) error
	ForceFlush(ctx context.Context) error
}

type provider struct {
	config         Config
	log            logger.Logger
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	mu             sync.Mutex
}

// NewProvider applies defaults to a copy of cfg, validates it, and builds the
// enabled signals. The result is also installed as the global OTel provider
// together with a W3C trace-context propagator.
func NewProvider(cfg *Config, log logger.Logger) (Provider, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	if log == nil {
		log = logger.NewNop()
	}

	safeCfg := *cfg
	safeCfg.ApplyDefaults()
	if err := safeCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid observability config: %w", err)
	}

	if !safeCfg.Enabled {
		log.Debug().Msg("Observability disabled, using no-op providers")
		return newNoopProvider(), nil
	}

	p := &provider{config: safeCfg, log: log}

	if isEnabled(safeCfg.Trace.Enabled) {
		if *safeCfg.Trace.Sample.Rate == 0 {
			log.Warn().Msg("Trace sample rate is 0.0, no spans will be recorded")
		}
		if err := p.initTraceProvider(); err != nil {
			return nil, fmt.Errorf("failed to initialize trace provider: %w", err)
		}
		otel.SetTracerProvider(p.tracerProvider)
	}

	if isEnabled(safeCfg.Metrics.Enabled) {
		if err := p.initMeterProvider(); err != nil {
			return nil, fmt.Errorf("failed to initialize meter provider: %w", err)
		}
		otel.SetMeterProvider(p.meterProvider)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info().
		Str("service", safeCfg.Service.Name).
		Str("environment", safeCfg.Environment).
		Str("trace_endpoint", safeCfg.Trace.Endpoint).
		Str("metrics_endpoint", safeCfg.Metrics.Endpoint).
		Msg("Observability provider initialized")
	return p, nil
}

func isEnabled(flag *bool) bool {
	return flag != nil && *flag
}

func (p *provider) initTraceProvider() error {
	res, err := p.createResource()
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := p.createTraceExporter()
	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(
		exporter,
		sdktrace.WithBatchTimeout(p.config.Trace.Batch.Timeout),
		sdktrace.WithExportTimeout(p.config.Trace.Export.Timeout),
		sdktrace.WithMaxExportBatchSize(p.config.Trace.Batch.Size),
	)

	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(*p.config.Trace.Sample.Rate))),
	)
	return nil
}

func (p *provider) createResource() (*resource.Resource, error) {
	custom, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(p.config.Service.Name),
			semconv.ServiceVersion(p.config.Service.Version),
			semconv.DeploymentEnvironmentName(p.config.Environment),
		),
	)
	if err != nil {
		return nil, err
	}
	return resource.Merge(resource.Default(), custom)
}

func (p *provider) createTraceExporter() (sdktrace.SpanExporter, error) {
	cfg := p.config.Trace
	if cfg.Endpoint == EndpointStdout {
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	}

	p.log.Debug().
		Str("endpoint", cfg.Endpoint).
		Str("protocol", cfg.Protocol).
		Msg("Creating OTLP trace exporter")

	switch cfg.Protocol {
	case ProtocolHTTP:
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpointURL(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		if cfg.Compression == CompressionGzip {
			opts = append(opts, otlptracehttp.WithCompression(otlptracehttp.GzipCompression))
		}
		return otlptracehttp.New(context.Background(), opts...)
	case ProtocolGRPC:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithTLSCredentials(insecure.NewCredentials()))
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		if cfg.Compression == CompressionGzip {
			opts = append(opts, otlptracegrpc.WithCompressor(CompressionGzip))
		}
		return otlptracegrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("trace protocol '%s': %w", cfg.Protocol, ErrInvalidProtocol)
	}
}

func (p *provider) TracerProvider() trace.TracerProvider {
	if p.tracerProvider == nil {
		return noop.NewTracerProvider()
	}
	return p.tracerProvider
}

func (p *provider) MeterProvider() metric.MeterProvider {
	if p.meterProvider == nil {
		return metricnoop.NewMeterProvider()
	}
	return p.meterProvider
}

func (p *provider) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown trace provider: %w", err))
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown meter provider: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}

func (p *provider) ForceFlush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	if p.tracerProvider != nil {
		if err := p.tracerProvider.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to flush trace provider: %w", err))
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to flush meter provider: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("flush errors: %w", errors.Join(errs...))
	}
	return nil
}
