package httpclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ClientError represents the failure classes surfaced by API calls
type ClientError interface {
	error
	Type() ErrorType
}

// ErrorType defines the category of client error
type ErrorType string

const (
	NetworkError     ErrorType = "network"
	TimeoutError     ErrorType = "timeout"
	HTTPError        ErrorType = "http"
	ValidationError  ErrorType = "validation"
	InterceptorError ErrorType = "interceptor"
	DecodeError      ErrorType = "decode"
)

// Error is the concrete ClientError. Which fields are set depends on Kind:
// StatusCode and Body for HTTPError, Body and Target for DecodeError, Field for
// ValidationError, Stage for InterceptorError and Timeout for TimeoutError.
type Error struct {
	Kind       ErrorType
	Message    string
	StatusCode int
	Body       []byte
	Target     string
	Field      string
	Stage      string
	Timeout    time.Duration
	Err        error
}

var _ ClientError = (*Error)(nil)

func (e *Error) Type() ErrorType {
	return e.Kind
}

func (e *Error) Error() string {
	var b strings.Builder
	switch e.Kind {
	case HTTPError:
		fmt.Fprintf(&b, "HTTP error: %s (status: %d)", e.Message, e.StatusCode)
		return b.String()
	case TimeoutError:
		fmt.Fprintf(&b, "timeout error: %s (timeout: %v)", e.Message, e.Timeout)
		return b.String()
	case DecodeError:
		fmt.Fprintf(&b, "decode error: cannot decode %s", e.Target)
	case ValidationError:
		b.WriteString("validation error: " + e.Message)
		if e.Field != "" {
			fmt.Fprintf(&b, " (field: %s)", e.Field)
		}
	case InterceptorError:
		fmt.Fprintf(&b, "interceptor error: %s (stage: %s)", e.Message, e.Stage)
	default:
		fmt.Fprintf(&b, "%s error: %s", e.Kind, e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the cause. Timeouts unwrap to context.DeadlineExceeded.
func (e *Error) Unwrap() error {
	if e.Kind == TimeoutError && e.Err == nil {
		return context.DeadlineExceeded
	}
	return e.Err
}

func NewNetworkError(message string, wrapped error) ClientError {
	return &Error{Kind: NetworkError, Message: message, Err: wrapped}
}

func NewTimeoutError(message string, timeout time.Duration) ClientError {
	return &Error{Kind: TimeoutError, Message: message, Timeout: timeout}
}

// NewHTTPError creates the error for a 4xx/5xx response. message is the raw response text.
func NewHTTPError(message string, statusCode int, body []byte) ClientError {
	return &Error{Kind: HTTPError, Message: message, StatusCode: statusCode, Body: body}
}

// NewValidationError rejects a request before anything is sent
func NewValidationError(message, field string) ClientError {
	return &Error{Kind: ValidationError, Message: message, Field: field}
}

// WrapValidationError wraps a field-level validation failure so callers can still reach it with errors.As.
func WrapValidationError(message string, wrapped error) ClientError {
	return &Error{Kind: ValidationError, Message: message, Err: wrapped}
}

func NewInterceptorError(message, stage string, wrapped error) ClientError {
	return &Error{Kind: InterceptorError, Message: message, Stage: stage, Err: wrapped}
}

// NewDecodeError reports a success response whose body is not a valid target
func NewDecodeError(target string, body []byte, wrapped error) ClientError {
	return &Error{Kind: DecodeError, Target: target, Body: body, Err: wrapped}
}

// IsErrorType reports whether the outermost ClientError in err's chain has errorType
func IsErrorType(err error, errorType ErrorType) bool {
	var clientErr ClientError
	if err != nil && errors.As(err, &clientErr) {
		return clientErr.Type() == errorType
	}
	return false
}

// IsHTTPStatusError checks if an error is an HTTP error with a specific status code
func IsHTTPStatusError(err error, statusCode int) bool {
	code, _, ok := HTTPStatus(err)
	return ok && code == statusCode
}

// HTTPStatus returns the status code and raw body of an HTTP error.
func HTTPStatus(err error) (statusCode int, body []byte, ok bool) {
	var e *Error
	if errors.As(err, &e) && e.Kind == HTTPError {
		return e.StatusCode, e.Body, true
	}
	return 0, nil, false
}

// IsSuccessStatus checks if a status code represents success (2xx)
func IsSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

// IsErrorStatus reports whether a status code is classified as a failed call (400-599)
func IsErrorStatus(statusCode int) bool {
	return statusCode >= 400 && statusCode < 600
}
