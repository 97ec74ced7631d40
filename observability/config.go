package observability

import (
	"maps"
	"strings"
	"time"
)

const (
	// EndpointStdout pretty-prints telemetry to stdout instead of exporting it.
	EndpointStdout = "stdout"

	ProtocolHTTP = "http"
	ProtocolGRPC = "grpc"

	CompressionGzip = "gzip"
	CompressionNone = "none"

	// TemporalityDelta reports the change since the last export.
	TemporalityDelta = "delta"
	// TemporalityCumulative reports the running total since the instrument was created.
	TemporalityCumulative = "cumulative"

	EnvironmentDevelopment = "development"

	// DefaultServiceName is reported when the caller leaves service.name empty.
	DefaultServiceName = "llmsdk"
)

// BoolPtr returns a pointer to v.
func BoolPtr(v bool) *bool {
	return &v
}

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 {
	return &v
}

func cloneHeaderMap(headers map[string]string) map[string]string {
	if headers == nil {
		return nil
	}
	clone := make(map[string]string, len(headers))
	maps.Copy(clone, headers)
	return clone
}

// Config is the "observability" section of the SDK configuration.
// Signals default to enabled once Enabled is true; set trace.enabled or
// metrics.enabled to false to switch one off.
type Config struct {
	Enabled     bool          `koanf:"enabled"`
	Service     ServiceConfig `koanf:"service"`
	Environment string        `koanf:"environment"`
	Trace       TraceConfig   `koanf:"trace"`
	Metrics     MetricsConfig `koanf:"metrics"`
}

// ServiceConfig names the process in the exported resource.
type ServiceConfig struct {
	Name    string `koanf:"name"`
	Version string `koanf:"version"`
}

// TraceConfig configures span export.
type TraceConfig struct {
	Enabled *bool `koanf:"enabled"`

	// Endpoint is "stdout", a host:port for grpc, or an http(s) URL for http.
	Endpoint    string            `koanf:"endpoint"`
	Protocol    string            `koanf:"protocol"`
	Insecure    bool              `koanf:"insecure"`
	Headers     map[string]string `koanf:"headers"`
	Compression string            `koanf:"compression"`
	Sample      SampleConfig      `koanf:"sample"`
	Batch       BatchConfig       `koanf:"batch"`
	Export      ExportConfig      `koanf:"export"`
}

// SampleConfig holds the head sampling ratio. Nil means sample everything.
type SampleConfig struct {
	Rate *float64 `koanf:"rate"`
}

// BatchConfig tunes the batch span processor.
type BatchConfig struct {
	Timeout time.Duration `koanf:"timeout"`
	Size    int           `koanf:"size"`
}

// ExportConfig bounds a single export call.
type ExportConfig struct {
	Timeout time.Duration `koanf:"timeout"`
}

// MetricsConfig configures metric export. Protocol, Insecure and Headers
// fall back to the trace settings when unset.
type MetricsConfig struct {
	Enabled     *bool             `koanf:"enabled"`
	Endpoint    string            `koanf:"endpoint"`
	Protocol    string            `koanf:"protocol"`
	Insecure    *bool             `koanf:"insecure"`
	Headers     map[string]string `koanf:"headers"`
	Compression string            `koanf:"compression"`
	Temporality string            `koanf:"temporality"`
	Interval    time.Duration     `koanf:"interval"`
	Export      ExportConfig      `koanf:"export"`
}

// ApplyDefaults fills every unset field. NewProvider calls it on a copy,
// so callers only need it when they inspect the effective values.
func (c *Config) ApplyDefaults() {
	if c.Service.Name == "" {
		c.Service.Name = DefaultServiceName
	}
	if c.Service.Version == "" {
		c.Service.Version = "unknown"
	}
	if c.Environment == "" {
		c.Environment = EnvironmentDevelopment
	}

	c.applyTraceDefaults()
	c.applyMetricsDefaults()
}

func (c *Config) isLocal(endpoint string) bool {
	return c.Environment == EnvironmentDevelopment || endpoint == EndpointStdout
}

func (c *Config) applyTraceDefaults() {
	if c.Trace.Endpoint == "" {
		c.Trace.Endpoint = EndpointStdout
	}
	if c.Enabled && c.Trace.Enabled == nil {
		c.Trace.Enabled = BoolPtr(true)
	}
	if c.Trace.Protocol == "" {
		c.Trace.Protocol = ProtocolHTTP
	}
	if c.Trace.Endpoint == EndpointStdout {
		c.Trace.Insecure = true
	}
	if c.Trace.Compression == "" {
		c.Trace.Compression = CompressionGzip
	}
	if c.Trace.Sample.Rate == nil {
		c.Trace.Sample.Rate = Float64Ptr(1.0)
	}

	local := c.isLocal(c.Trace.Endpoint)
	if c.Trace.Batch.Timeout == 0 {
		c.Trace.Batch.Timeout = 5 * time.Second
		if local {
			c.Trace.Batch.Timeout = 500 * time.Millisecond
		}
	}
	if c.Trace.Batch.Size == 0 {
		c.Trace.Batch.Size = 512
	}
	if c.Trace.Export.Timeout == 0 {
		c.Trace.Export.Timeout = 60 * time.Second
		if local {
			c.Trace.Export.Timeout = 10 * time.Second
		}
	}
}

func (c *Config) applyMetricsDefaults() {
	if c.Metrics.Endpoint == "" {
		c.Metrics.Endpoint = EndpointStdout
	}
	if c.Enabled && c.Metrics.Enabled == nil {
		c.Metrics.Enabled = BoolPtr(true)
	}
	if c.Metrics.Protocol == "" {
		c.Metrics.Protocol = c.Trace.Protocol
	}
	if c.Metrics.Insecure == nil {
		c.Metrics.Insecure = BoolPtr(c.Trace.Insecure)
	}
	// Cloned so edits to one signal's headers never leak into the other.
	if c.Metrics.Headers == nil && c.Trace.Headers != nil {
		c.Metrics.Headers = cloneHeaderMap(c.Trace.Headers)
	}
	if c.Metrics.Compression == "" {
		c.Metrics.Compression = CompressionGzip
	}
	if c.Metrics.Temporality == "" {
		c.Metrics.Temporality = TemporalityCumulative
	}
	if c.Metrics.Interval == 0 {
		c.Metrics.Interval = 10 * time.Second
	}
	if c.Metrics.Export.Timeout == 0 {
		c.Metrics.Export.Timeout = 60 * time.Second
		if c.isLocal(c.Metrics.Endpoint) {
			c.Metrics.Export.Timeout = 10 * time.Second
		}
	}
}

// Validate reports the first invalid setting. A disabled config is always valid.
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if !c.Enabled {
		return nil
	}
	if c.Service.Name == "" {
		return ErrMissingServiceName
	}
	if err := c.validateTraceConfig(); err != nil {
		return err
	}
	return c.validateMetricsConfig()
}

// validateEndpointFormat rejects an http endpoint without a scheme and a grpc endpoint with one.
func validateEndpointFormat(endpoint, protocol string) error {
	if endpoint == EndpointStdout || endpoint == "" {
		return nil
	}

	hasScheme := strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://")
	if protocol == ProtocolGRPC && hasScheme {
		return ErrInvalidEndpointFormat
	}
	if protocol == ProtocolHTTP && !hasScheme {
		return ErrInvalidEndpointFormat
	}
	return nil
}

func validateCompression(compression string) error {
	switch compression {
	case "", CompressionGzip, CompressionNone:
		return nil
	default:
		return ErrInvalidCompression
	}
}

func validateTemporality(temporality string) error {
	switch temporality {
	case "", TemporalityDelta, TemporalityCumulative:
		return nil
	default:
		return ErrInvalidTemporality
	}
}

func validateProtocol(protocol string) error {
	switch protocol {
	case "", ProtocolHTTP, ProtocolGRPC:
		return nil
	default:
		return ErrInvalidProtocol
	}
}

// effectiveProtocol resolves an unset protocol to the fallback, then to http.
func effectiveProtocol(protocol, fallback string) string {
	if protocol != "" {
		return protocol
	}
	if fallback != "" {
		return fallback
	}
	return ProtocolHTTP
}

func (c *Config) validateTraceConfig() error {
	if rate := c.Trace.Sample.Rate; rate != nil && (*rate < 0.0 || *rate > 1.0) {
		return ErrInvalidSampleRate
	}
	if err := validateCompression(c.Trace.Compression); err != nil {
		return err
	}
	if err := validateProtocol(c.Trace.Protocol); err != nil {
		return err
	}
	return validateEndpointFormat(c.Trace.Endpoint, effectiveProtocol(c.Trace.Protocol, ""))
}

func (c *Config) validateMetricsConfig() error {
	if c.Metrics.Enabled == nil || !*c.Metrics.Enabled {
		return nil
	}
	if err := validateCompression(c.Metrics.Compression); err != nil {
		return err
	}
	if err := validateTemporality(c.Metrics.Temporality); err != nil {
		return err
	}
	if err := validateProtocol(c.Metrics.Protocol); err != nil {
		return err
	}
	return validateEndpointFormat(c.Metrics.Endpoint, effectiveProtocol(c.Metrics.Protocol, c.Trace.Protocol))
}
