package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorCode identifies a class of pipeline error
type ErrorCode string

const (
	// Generic errors
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodeRateLimit    ErrorCode = "RATE_LIMIT"

	// Pipeline errors
	ErrCodeSourceUnavailable    ErrorCode = "SOURCE_UNAVAILABLE"
	ErrCodeInsufficientData     ErrorCode = "INSUFFICIENT_DATA"
	ErrCodeInvalidConfiguration ErrorCode = "INVALID_CONFIGURATION"
	ErrCodeAlertStateConflict   ErrorCode = "ALERT_STATE_CONFLICT"
	ErrCodeHubNotRunning        ErrorCode = "HUB_NOT_RUNNING"

	// Store errors
	ErrCodeStoreConnection ErrorCode = "STORE_CONNECTION_ERROR"
	ErrCodeStoreOperation  ErrorCode = "STORE_OPERATION_ERROR"
)

// ErrorSeverity classifies how serious an error is
type ErrorSeverity string

const (
	SeverityLow      ErrorSeverity = "low"
	SeverityMedium   ErrorSeverity = "medium"
	SeverityHigh     ErrorSeverity = "high"
	SeverityCritical ErrorSeverity = "critical"
)

// AppError is the typed error carried across pipeline boundaries
type AppError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Severity  ErrorSeverity          `json:"severity"`
	Timestamp time.Time              `json:"timestamp"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Cause     error                  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error code to an HTTP status code
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeInvalidInput, ErrCodeInvalidConfiguration:
		return http.StatusBadRequest
	case ErrCodeConflict, ErrCodeAlertStateConflict:
		return http.StatusConflict
	case ErrCodeRateLimit:
		return http.StatusTooManyRequests
	case ErrCodeInsufficientData:
		return http.StatusUnprocessableEntity
	case ErrCodeSourceUnavailable, ErrCodeHubNotRunning:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Severity:  defaultSeverity(code),
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// WithDetails attaches free-text details to the error
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithContext attaches a key/value pair to the error context
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func defaultSeverity(code ErrorCode) ErrorSeverity {
	switch code {
	case ErrCodeInsufficientData, ErrCodeNotFound, ErrCodeInvalidInput:
		return SeverityLow
	case ErrCodeSourceUnavailable, ErrCodeRateLimit, ErrCodeStoreOperation:
		return SeverityMedium
	case ErrCodeInvalidConfiguration, ErrCodeStoreConnection, ErrCodeHubNotRunning:
		return SeverityHigh
	case ErrCodeAlertStateConflict, ErrCodeInternal:
		return SeverityCritical
	default:
		return SeverityMedium
	}
}

// NewInsufficientData reports that a metric has too few samples to serve a
// forecasting or insight request. It is a legitimate result state for the
// caller, not a failure.
func NewInsufficientData(metric string, have, need int) *AppError {
	return NewAppError(ErrCodeInsufficientData, "insufficient data", nil).
		WithDetails(fmt.Sprintf("metric %s has %d samples, needs %d", metric, have, need)).
		WithContext("metric", metric).
		WithContext("samples", have).
		WithContext("required", need)
}

// NewSourceUnavailable reports a connector that cannot be reached
func NewSourceUnavailable(source string, cause error) *AppError {
	return NewAppError(ErrCodeSourceUnavailable, "source unavailable", cause).
		WithContext("source", source)
}

// NewInvalidConfiguration reports a configuration value rejected at load
func NewInvalidConfiguration(field, reason string) *AppError {
	return NewAppError(ErrCodeInvalidConfiguration, "invalid configuration", nil).
		WithDetails(fmt.Sprintf("%s: %s", field, reason)).
		WithContext("field", field)
}

// IsCode reports whether err carries the given error code
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// AsAppError extracts an AppError from err, wrapping unknown errors as internal
func AsAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewAppError(ErrCodeInternal, "internal error", err).WithDetails(err.Error())
}
