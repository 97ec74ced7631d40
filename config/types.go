package config

import (
	"time"

	"github.com/knadh/koanf/v2"

	"github.com/gaborage/llmsdk/observability"
)

// Config is the SDK configuration: where the API lives, how calls are
// retried, how they are logged, and where telemetry goes. Keys outside the
// typed sections stay reachable through GetString and Unmarshal.
type Config struct {
	API           APIConfig            `koanf:"api" json:"api" yaml:"api" mapstructure:"api"`
	Log           LogConfig            `koanf:"log" json:"log" yaml:"log" mapstructure:"log"`
	Observability observability.Config `koanf:"observability" json:"observability" yaml:"observability" mapstructure:"observability"`

	k *koanf.Koanf `json:"-" yaml:"-" mapstructure:"-"`
}

// APIConfig describes the remote API and the per-call policy.
type APIConfig struct {
	// BaseURL is the API root every endpoint path is appended to.
	BaseURL string `koanf:"baseurl" json:"baseurl" yaml:"baseurl" mapstructure:"baseurl"`

	// Token is sent as a bearer credential. Empty sends no Authorization header.
	Token string `koanf:"token" json:"-" yaml:"token" mapstructure:"token"`

	// Timeout bounds one logical call, retries included.
	Timeout time.Duration `koanf:"timeout" json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// TraceContext generates a W3C traceparent when no span is active.
	TraceContext bool `koanf:"tracecontext" json:"tracecontext" yaml:"tracecontext" mapstructure:"tracecontext"`

	Retry RetryConfig `koanf:"retry" json:"retry" yaml:"retry" mapstructure:"retry"`
}

// RetryConfig is the exponential backoff budget for transient failures.
type RetryConfig struct {
	Max     int           `koanf:"max" json:"max" yaml:"max" mapstructure:"max"`
	Initial time.Duration `koanf:"initial" json:"initial" yaml:"initial" mapstructure:"initial"`
	Ceiling time.Duration `koanf:"ceiling" json:"ceiling" yaml:"ceiling" mapstructure:"ceiling"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level" json:"level" yaml:"level" mapstructure:"level"`
	Pretty bool   `koanf:"pretty" json:"pretty" yaml:"pretty" mapstructure:"pretty"`

	// Payloads adds debug events carrying truncated request and response bodies.
	Payloads        bool `koanf:"payloads" json:"payloads" yaml:"payloads" mapstructure:"payloads"`
	MaxPayloadBytes int  `koanf:"maxpayloadbytes" json:"maxpayloadbytes" yaml:"maxpayloadbytes" mapstructure:"maxpayloadbytes"`
}
