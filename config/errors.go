package config

import (
	"fmt"
	"strings"
)

// ConfigError is a configuration problem with a hint on how to fix it.
// Messages are lowercase.
//
//nolint:revive // ConfigError reads better than config.Error at call sites
type ConfigError struct {
	Category string   // "missing" or "invalid"
	Field    string   // dotted config path, e.g. "api.retry.max"
	Message  string   // what is wrong
	Action   string   // how to fix it
	Details  []string // extra context
}

func (e *ConfigError) Error() string {
	var parts []string
	if e.Category != "" {
		parts = append(parts, fmt.Sprintf("config_%s:", e.Category))
	}
	if e.Field != "" {
		parts = append(parts, e.Field)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.Action != "" {
		parts = append(parts, e.Action)
	}
	if len(e.Details) > 0 {
		parts = append(parts, strings.Join(e.Details, "; "))
	}
	return strings.Join(parts, " ")
}

// NewMissingFieldError reports a required key with the env var and yaml path that set it.
func NewMissingFieldError(field, envVar, yamlPath string) *ConfigError {
	return &ConfigError{
		Category: "missing",
		Field:    field,
		Message:  "required",
		Action:   fmt.Sprintf("set %s env var or add %s to config.yaml", envVar, yamlPath),
	}
}

// NewInvalidFieldError reports a bad value, listing the accepted options when there are any.
func NewInvalidFieldError(field, message string, validOptions []string) *ConfigError {
	err := &ConfigError{
		Category: "invalid",
		Field:    field,
		Message:  message,
	}
	if len(validOptions) > 0 {
		err.Action = fmt.Sprintf("must be one of: %s", strings.Join(validOptions, ", "))
	}
	return err
}

// NewValidationError reports a bad value with a free-form message.
func NewValidationError(field, message string) *ConfigError {
	return &ConfigError{
		Category: "invalid",
		Field:    field,
		Message:  message,
	}
}
