package observability

import "errors"

var (
	// ErrNilConfig is returned when a nil *Config is validated.
	ErrNilConfig = errors.New("observability: config is nil")

	// ErrMissingServiceName is returned when observability is enabled without a service name.
	ErrMissingServiceName = errors.New("observability: service name is required when observability is enabled")

	// ErrInvalidSampleRate is returned when trace.sample.rate falls outside [0, 1].
	ErrInvalidSampleRate = errors.New("observability: trace sample rate must be between 0.0 and 1.0")

	ErrInvalidProtocol = errors.New("observability: protocol must be either 'http' or 'grpc'")

	// ErrInvalidEndpointFormat is returned when the endpoint scheme disagrees with the protocol.
	ErrInvalidEndpointFormat = errors.New("observability: invalid endpoint format for protocol")

	ErrInvalidCompression = errors.New("observability: compression must be either 'gzip' or 'none'")

	ErrInvalidTemporality = errors.New("observability: temporality must be either 'delta' or 'cumulative'")
)
