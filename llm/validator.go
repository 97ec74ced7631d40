package llm

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

const maxReportedValueLen = 64

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// descriptorValidator returns the shared validator. Field names in errors are JSON names.
func descriptorValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
		v.RegisterCustomTypeFunc(func(field reflect.Value) any {
			if in, ok := field.Interface().(EmbeddingInput); ok {
				return in.values
			}
			return nil
		}, EmbeddingInput{})
		validate = v
	})
	return validate
}

// validateStruct runs tag validation on a descriptor.
func validateStruct(i any) error {
	if err := descriptorValidator().Struct(i); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return NewValidationError(validationErrors)
		}
		return err
	}
	return nil
}

// ValidationError lists every field of a descriptor that failed validation.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

// FieldError is a single failed field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

// NewValidationError converts go-playground/validator errors.
func NewValidationError(errs validator.ValidationErrors) *ValidationError {
	fieldErrors := make([]FieldError, 0, len(errs))
	for _, err := range errs {
		fieldErrors = append(fieldErrors, FieldError{
			Field:   err.Namespace()[strings.Index(err.Namespace(), ".")+1:],
			Message: getErrorMessage(err),
			Value:   reportedValue(err.Value()),
		})
	}
	return &ValidationError{Errors: fieldErrors}
}

func (ve *ValidationError) Error() string {
	switch len(ve.Errors) {
	case 0:
		return "validation failed"
	case 1:
		return fmt.Sprintf("validation failed: %s", ve.Errors[0].Message)
	default:
		msgs := make([]string, 0, len(ve.Errors))
		for _, fe := range ve.Errors {
			msgs = append(msgs, fe.Message)
		}
		return fmt.Sprintf("validation failed: %d errors: %s", len(ve.Errors), strings.Join(msgs, "; "))
	}
}

// HasField reports whether field failed validation
func (ve *ValidationError) HasField(field string) bool {
	for _, fe := range ve.Errors {
		if fe.Field == field {
			return true
		}
	}
	return false
}

func getErrorMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "min", "gte":
		if isNumber(fe.Kind()) {
			return fmt.Sprintf("%s must be at least %s", field, fe.Param())
		}
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must contain at least %s items", field, fe.Param())
	case "max", "lte":
		if isNumber(fe.Kind()) {
			return fmt.Sprintf("%s must be at most %s", field, fe.Param())
		}
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must contain at most %s items", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation", field)
	}
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

// reportedValue renders a rejected value, leaving out binary payloads
func reportedValue(v any) string {
	if _, ok := v.([]byte); ok {
		return ""
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return ""
		}
		v = rv.Elem().Interface()
	}
	s := fmt.Sprintf("%v", v)
	if len(s) > maxReportedValueLen {
		s = s[:maxReportedValueLen] + "..."
	}
	return s
}
