package config

import "errors"

var errNotInitialized = errors.New("configuration not initialized")

// GetString returns a raw value by dotted key, for sections the typed
// Config does not model (for example "models.chat").
func (c *Config) GetString(key string, defaultVal ...string) string {
	if c == nil || c.k == nil || !c.k.Exists(key) {
		if len(defaultVal) > 0 {
			return defaultVal[0]
		}
		return ""
	}
	return c.k.String(key)
}

func (c *Config) Exists(key string) bool {
	if c == nil || c.k == nil {
		return false
	}
	return c.k.Exists(key)
}

// Unmarshal decodes the section under key into out.
func (c *Config) Unmarshal(key string, out any) error {
	if c == nil || c.k == nil {
		return errNotInitialized
	}
	return c.k.Unmarshal(key, out)
}
