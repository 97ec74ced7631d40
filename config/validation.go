package config

import (
	"fmt"
	"net/url"
	"slices"
)

// MaxRetries caps api.retry.max.
const MaxRetries = 10

var validLogLevels = []string{"trace", "debug", "info", "warn", "error", "fatal", "disabled"}

// Validate checks every typed section and returns the first *ConfigError found,
// or the observability package's error for that section.
func Validate(cfg *Config) error {
	if err := validateAPI(&cfg.API); err != nil {
		return err
	}
	if err := validateLog(&cfg.Log); err != nil {
		return err
	}
	if err := cfg.Observability.Validate(); err != nil {
		return fmt.Errorf("observability config: %w", err)
	}
	return nil
}

func validateAPI(cfg *APIConfig) error {
	if cfg.BaseURL == "" {
		return NewMissingFieldError("api.baseurl", EnvPrefix+"API_BASEURL", "api.baseurl")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return NewValidationError("api.baseurl", fmt.Sprintf("must be an absolute http(s) url, got %q", cfg.BaseURL))
	}

	if cfg.Timeout <= 0 {
		return NewValidationError("api.timeout", "must be positive")
	}

	return validateRetry(&cfg.Retry)
}

func validateRetry(cfg *RetryConfig) error {
	if cfg.Max < 0 || cfg.Max > MaxRetries {
		return NewValidationError("api.retry.max", fmt.Sprintf("must be between 0 and %d, got %d", MaxRetries, cfg.Max))
	}
	if cfg.Initial <= 0 {
		return NewValidationError("api.retry.initial", "must be positive")
	}
	if cfg.Ceiling < cfg.Initial {
		return NewValidationError("api.retry.ceiling",
			fmt.Sprintf("must not be below api.retry.initial (%s < %s)", cfg.Ceiling, cfg.Initial))
	}
	return nil
}

func validateLog(cfg *LogConfig) error {
	if !slices.Contains(validLogLevels, cfg.Level) {
		return NewInvalidFieldError("log.level", fmt.Sprintf("unknown level %q", cfg.Level), validLogLevels)
	}
	if cfg.MaxPayloadBytes < 0 {
		return NewValidationError("log.maxpayloadbytes", "must not be negative")
	}
	return nil
}
