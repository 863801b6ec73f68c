package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode classifies application errors.
type ErrorCode string

const (
	ErrCodeResolutionFailed  ErrorCode = "RESOLUTION_FAILED"
	ErrCodeTransportNotReady ErrorCode = "TRANSPORT_NOT_READY"
	ErrCodeIllegalTransition ErrorCode = "ILLEGAL_TRANSITION"
	ErrCodeAmbiguousUsage    ErrorCode = "AMBIGUOUS_USAGE"
	ErrCodeNegotiation       ErrorCode = "NEGOTIATION_FAILED"
	ErrCodeInvalidInput      ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized      ErrorCode = "UNAUTHORIZED"
	ErrCodeConflict          ErrorCode = "CONFLICT"
	ErrCodeRateLimit         ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal          ErrorCode = "INTERNAL_ERROR"
)

// AppError carries a code, a message and optional context alongside the
// wrapped cause.
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
	Context    map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext attaches a key/value pair to the error.
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates an AppError.
func New(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus}
}

// Wrap wraps an existing error with a code and message.
func Wrap(err error, code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus, Cause: err}
}

// CodeOf extracts the ErrorCode from err, or ErrCodeInternal when err is not
// an AppError.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

func NewResolutionFailed(rtcIdentity string, cause error) *AppError {
	return Wrap(cause, ErrCodeResolutionFailed,
		fmt.Sprintf("could not resolve %q", rtcIdentity), http.StatusBadGateway)
}

func NewTransportNotReady(selector string) *AppError {
	return New(ErrCodeTransportNotReady,
		fmt.Sprintf("no transport implementation attached for %q", selector),
		http.StatusServiceUnavailable)
}

func NewIllegalTransition(from, to string) *AppError {
	return New(ErrCodeIllegalTransition,
		fmt.Sprintf("transition %s -> %s is not allowed", from, to),
		http.StatusConflict)
}

func NewNegotiation(step string, cause error) *AppError {
	return Wrap(cause, ErrCodeNegotiation,
		fmt.Sprintf("negotiation step %s failed", step), http.StatusBadGateway)
}

func NewNotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func NewInvalidInput(message string) *AppError {
	return New(ErrCodeInvalidInput, message, http.StatusBadRequest)
}

func NewUnauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message, http.StatusUnauthorized)
}

func NewConflict(message string) *AppError {
	return New(ErrCodeConflict, message, http.StatusConflict)
}

func NewRateLimit() *AppError {
	return New(ErrCodeRateLimit, "rate limit exceeded", http.StatusTooManyRequests)
}

// AmbiguousUsage is a programmer error: the API was invoked with arguments of
// the wrong shape. It fails fast instead of being reported through the error
// channel.
func AmbiguousUsage(message string) {
	panic(New(ErrCodeAmbiguousUsage, message, http.StatusInternalServerError))
}
