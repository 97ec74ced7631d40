// Package config loads SDK settings from defaults, an optional YAML file and
// LLMSDK_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	envprovider "github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// DefaultFile is read by Load when present.
	DefaultFile = "config.yaml"

	// EnvPrefix scopes the environment variables Load reads.
	// LLMSDK_API_RETRY_MAX maps to api.retry.max.
	EnvPrefix = "LLMSDK_"

	// FallbackTokenEnv supplies api.token when nothing else set it.
	FallbackTokenEnv = "OPENAI_API_KEY"
)

// Load reads config.yaml from the working directory when present.
func Load() (*Config, error) {
	return LoadFile(DefaultFile)
}

// LoadFile loads defaults, then path (skipped when it does not exist), then
// the environment, and validates the result.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}
	}

	if err := loadEnv(k); err != nil {
		return nil, err
	}

	return build(k)
}

// LoadFromBytes loads defaults overlaid with YAML content. The environment is not consulted.
func LoadFromBytes(data []byte) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}

	return build(k)
}

func build(k *koanf.Koanf) (*Config, error) {
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.API.BaseURL = strings.TrimRight(cfg.API.BaseURL, "/")
	cfg.k = k

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadEnv(k *koanf.Koanf) error {
	if err := k.Load(envprovider.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return fmt.Errorf("failed to load environment variables: %w", err)
	}

	if k.String("api.token") == "" {
		if token := os.Getenv(FallbackTokenEnv); token != "" {
			if err := k.Set("api.token", token); err != nil {
				return fmt.Errorf("failed to apply %s: %w", FallbackTokenEnv, err)
			}
		}
	}
	return nil
}

// envKey converts LLMSDK_API_BASEURL to api.baseurl.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".")
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"api.baseurl":       "https://api.openai.com/v1",
		"api.timeout":       "30s",
		"api.tracecontext":  false,
		"api.retry.max":     3,
		"api.retry.initial": "500ms",
		"api.retry.ceiling": "60s",

		"log.level":           "info",
		"log.pretty":          false,
		"log.payloads":        false,
		"log.maxpayloadbytes": 1024,

		"observability.enabled":      false,
		"observability.service.name": "llmsdk",
	}

	return k.Load(confmap.Provider(defaults, "."), nil)
}
