package errors

import (
	"fmt"
)

// ErrorCategory classifies the outcome of an outbound HTTP call
type ErrorCategory string

const (
	CategoryNetworkError    ErrorCategory = "network_error"
	CategoryTimeout         ErrorCategory = "timeout"
	CategoryInvalidResponse ErrorCategory = "invalid_response"
	CategoryProtocolError   ErrorCategory = "protocol_error"
	CategoryCircuitOpen     ErrorCategory = "circuit_open"
	CategorySystemError     ErrorCategory = "system_error"
)

// GatewayError describes a failed gateway or merchant endpoint call.
// Transient failures are network-level; protocol failures carry the HTTP
// status. Both remain retriable under the task's attempt budget.
type GatewayError struct {
	Code        string
	Message     string
	Body        string
	Category    ErrorCategory
	StatusCode  int
	IsRetriable bool
	Transient   bool
}

func (e *GatewayError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewTransientError creates a network-level failure
func NewTransientError(category ErrorCategory, message string) *GatewayError {
	return &GatewayError{
		Code:        string(category),
		Message:     message,
		Category:    category,
		IsRetriable: true,
		Transient:   true,
	}
}

// NewProtocolError creates a failure for a non-2xx answer
func NewProtocolError(statusCode int, body string) *GatewayError {
	return &GatewayError{
		Code:        "http_error",
		Message:     fmt.Sprintf("gateway returned HTTP %d", statusCode),
		Body:        body,
		Category:    CategoryProtocolError,
		StatusCode:  statusCode,
		IsRetriable: true,
	}
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
