package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeNetwork         ErrorType = "network"
	ErrorTypeHTTP            ErrorType = "http"
	ErrorTypeRateLimit       ErrorType = "rate_limit"
	ErrorTypeAuth            ErrorType = "auth"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeServerError     ErrorType = "server_error"
	ErrorTypeParsing         ErrorType = "parsing"
	ErrorTypeIntegrity       ErrorType = "integrity"
	ErrorTypeCacheCorruption ErrorType = "cache_corruption"
	ErrorTypeLockContention  ErrorType = "lock_contention"
	ErrorTypeCodec           ErrorType = "codec"
	ErrorTypeCircuitOpen     ErrorType = "circuit_open"
	ErrorTypeUnknown         ErrorType = "unknown"
)

// ErrCircuitOpen is returned for every task submitted after the scheduler's
// rate-limit breaker has tripped.
var ErrCircuitOpen = &Error{
	Type:    ErrorTypeCircuitOpen,
	Message: "too many consecutive rate-limit responses, dispatch halted",
	Code:    http.StatusTooManyRequests,
}

// Error represents a pipeline error with type information
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error (code %d): %s: %v", e.Type, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any error of the same type.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Type == e.Type
}

// New creates a typed error with a formatted message
func New(t ErrorType, code int, format string, args ...interface{}) *Error {
	return &Error{Type: t, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a typed error around a cause
func Wrap(t ErrorType, code int, err error, message string) *Error {
	return &Error{Type: t, Code: code, Message: message, Err: err}
}

// TypeOf returns the type of the first *Error in err's chain
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// IsType reports whether err carries the given type
func IsType(err error, t ErrorType) bool {
	return err != nil && TypeOf(err) == t
}

// IsRetryable checks if an error type should be retried.
// Only transport failures and truncated bodies are worth another attempt;
// every HTTP status, including 429, is final for the request that saw it.
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeIntegrity:
		return true
	default:
		return false
	}
}

// FromStatus maps a non-2xx HTTP status to a typed error
func FromStatus(statusCode int, url string) *Error {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return New(ErrorTypeRateLimit, statusCode, "rate limited: %s", url)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return New(ErrorTypeAuth, statusCode, "access denied: %s", url)
	case statusCode == http.StatusNotFound:
		return New(ErrorTypeNotFound, statusCode, "not found: %s", url)
	case statusCode >= 500:
		return New(ErrorTypeServerError, statusCode, "server error: %s", url)
	default:
		return New(ErrorTypeHTTP, statusCode, "unexpected status %d: %s", statusCode, url)
	}
}
