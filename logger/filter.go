package logger

import (
	"net/url"
	"reflect"
	"strings"
)

const (
	// DefaultMaxDepth bounds recursion into nested values, which also stops self-referencing values
	DefaultMaxDepth = 8
	// DefaultMaskValue replaces sensitive values
	DefaultMaskValue = "***"
)

// FilterConfig lists the field names treated as sensitive.
type FilterConfig struct {
	// SensitiveFields are matched case-insensitively as substrings of the field name
	SensitiveFields []string
	// MaskValue replaces sensitive values (default: "***")
	MaskValue string
}

// DefaultFilterConfig masks credentials an LLM client handles: bearer tokens, API keys
// and the Authorization header.
func DefaultFilterConfig() *FilterConfig {
	return &FilterConfig{
		SensitiveFields: []string{
			"password", "secret",
			"api_key", "apikey", "api-key",
			"token", "authorization", "credential",
		},
		MaskValue: DefaultMaskValue,
	}
}

// SensitiveDataFilter masks sensitive values before they are attached to log events.
type SensitiveDataFilter struct {
	config *FilterConfig
}

// NewSensitiveDataFilter creates a filter; nil selects DefaultFilterConfig.
func NewSensitiveDataFilter(config *FilterConfig) *SensitiveDataFilter {
	if config == nil {
		config = DefaultFilterConfig()
	}
	if config.MaskValue == "" {
		config.MaskValue = DefaultMaskValue
	}
	return &SensitiveDataFilter{config: config}
}

// FilterString masks value when key is sensitive. URLs keep their structure with only
// the password replaced.
func (f *SensitiveDataFilter) FilterString(key, value string) string {
	if !f.isSensitiveField(key) || value == "" {
		return value
	}
	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		return f.maskURL(value)
	}
	return f.config.MaskValue
}

// FilterValue masks value when key is sensitive, otherwise walks maps, slices and structs
// masking nested sensitive entries. Walked maps and structs come back as map[string]any.
func (f *SensitiveDataFilter) FilterValue(key string, value any) any {
	return f.filter(key, value, DefaultMaxDepth)
}

// FilterFields filters every entry of fields.
func (f *SensitiveDataFilter) FilterFields(fields map[string]any) map[string]any {
	filtered := make(map[string]any, len(fields))
	for key, value := range fields {
		filtered[key] = f.FilterValue(key, value)
	}
	return filtered
}

func (f *SensitiveDataFilter) filter(key string, value any, depth int) any {
	if f.isSensitiveField(key) {
		return f.config.MaskValue
	}
	if value == nil || depth <= 0 {
		return value
	}

	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return value
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return value
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			out[k] = f.filter(k, iter.Value().Interface(), depth-1)
		}
		return out
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return value
		}
		out := make([]any, rv.Len())
		for i := range rv.Len() {
			out[i] = f.filter(key, rv.Index(i).Interface(), depth-1)
		}
		return out
	case reflect.Struct:
		return f.filterStruct(rv, depth)
	default:
		return value
	}
}

func (f *SensitiveDataFilter) filterStruct(rv reflect.Value, depth int) map[string]any {
	rt := rv.Type()
	out := make(map[string]any, rv.NumField())
	for i := range rv.NumField() {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		name := fieldName(&field)
		if name == "" {
			continue
		}
		out[name] = f.filter(name, rv.Field(i).Interface(), depth-1)
	}
	return out
}

// fieldName prefers the json tag; "" means the field is skipped.
func fieldName(field *reflect.StructField) string {
	tag := field.Tag.Get("json")
	if tag == "-" {
		return ""
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return field.Name
	}
	return name
}

func (f *SensitiveDataFilter) isSensitiveField(fieldName string) bool {
	lower := strings.ToLower(fieldName)
	for _, sensitive := range f.config.SensitiveFields {
		if strings.Contains(lower, strings.ToLower(sensitive)) {
			return true
		}
	}
	return false
}

func (f *SensitiveDataFilter) maskURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return f.config.MaskValue
	}
	if parsed.User == nil {
		return raw
	}
	if _, ok := parsed.User.Password(); !ok {
		return raw
	}
	// url.UserPassword would percent-encode the mask, so splice it in by hand
	userinfo := url.User(parsed.User.Username()).String() + ":" + f.config.MaskValue + "@"
	parsed.User = nil
	rest := parsed.String()
	prefix := "//"
	if parsed.Scheme != "" {
		prefix = parsed.Scheme + "://"
	}
	if !strings.HasPrefix(rest, prefix) {
		return f.config.MaskValue
	}
	return prefix + userinfo + rest[len(prefix):]
}
