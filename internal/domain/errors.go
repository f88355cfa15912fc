package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	// Authentication Errors (AUTH_*)
	ErrorCodeAuthMissing ErrorCode = "AUTH_MISSING"
	ErrorCodeAuthInvalid ErrorCode = "AUTH_INVALID"

	// Transaction Errors (TXN_*)
	ErrorCodeTxnNotFound ErrorCode = "TXN_NOT_FOUND"

	// Sync queue Errors (SYNC_*)
	ErrorCodeTaskNotFound     ErrorCode = "SYNC_TASK_NOT_FOUND"
	ErrorCodeTaskNotRetryable ErrorCode = "SYNC_TASK_NOT_RETRYABLE"
	ErrorCodeTaskConflict     ErrorCode = "SYNC_TASK_CONFLICT"
	ErrorCodeInvalidPriority  ErrorCode = "SYNC_INVALID_PRIORITY"
	ErrorCodeInvalidKind      ErrorCode = "SYNC_INVALID_KIND"

	// Gateway configuration Errors (GATEWAY_CONFIG_*)
	ErrorCodeGatewayNotFound        ErrorCode = "GATEWAY_CONFIG_NOT_FOUND"
	ErrorCodeGatewayInactive        ErrorCode = "GATEWAY_CONFIG_INACTIVE"
	ErrorCodeGatewayMissingEndpoint ErrorCode = "GATEWAY_CONFIG_MISSING_ENDPOINT"

	// Payment Gateway call Errors (GATEWAY_*)
	ErrorCodeGatewayError   ErrorCode = "GATEWAY_ERROR"
	ErrorCodeGatewayTimeout ErrorCode = "GATEWAY_TIMEOUT"

	// Webhook Errors (WEBHOOK_*)
	ErrorCodeSignatureInvalid     ErrorCode = "WEBHOOK_SIGNATURE_INVALID"
	ErrorCodeWebhookConfigMissing ErrorCode = "WEBHOOK_CONFIG_NOT_FOUND"
	ErrorCodeDeliveryNotFound     ErrorCode = "WEBHOOK_DELIVERY_NOT_FOUND"

	// Validation Errors (VALIDATION_*)
	ErrorCodeValidationFailed       ErrorCode = "VALIDATION_FAILED"
	ErrorCodeValidationMissingField ErrorCode = "VALIDATION_MISSING_FIELD"

	// Internal Errors (INTERNAL_*)
	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrorCodeDatabaseError ErrorCode = "INTERNAL_DATABASE_ERROR"
)

// DomainError represents a structured domain error with error code and context
type DomainError struct {
	Err     error
	Details map[string]interface{}
	Code    ErrorCode
	Message string
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches two domain errors by code so package sentinels work with errors.Is
// even after WithDetail or WrapError produced a new instance.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// WithDetail returns a copy of the error carrying an extra detail field
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	return &DomainError{Err: e.Err, Details: details, Code: e.Code, Message: e.Message}
}

// NewDomainError creates a new domain error
func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with a domain error code
func WrapError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Err:     err,
	}
}

// IsDomainError checks if an error is a DomainError with the given code
func IsDomainError(err error, code ErrorCode) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error, returns empty string if not a DomainError
func GetErrorCode(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// IsNotFoundError checks if an error represents a "not found" condition
func IsNotFoundError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeTxnNotFound ||
		code == ErrorCodeTaskNotFound ||
		code == ErrorCodeGatewayNotFound ||
		code == ErrorCodeWebhookConfigMissing ||
		code == ErrorCodeDeliveryNotFound
}

// IsConfigurationError reports failures caused by missing or inactive gateway
// configuration. These are never retried.
func IsConfigurationError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeGatewayNotFound ||
		code == ErrorCodeGatewayInactive ||
		code == ErrorCodeGatewayMissingEndpoint
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeValidationFailed ||
		code == ErrorCodeValidationMissingField ||
		code == ErrorCodeInvalidPriority ||
		code == ErrorCodeInvalidKind
}

// IsGatewayError checks if an error is a payment gateway error
func IsGatewayError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeGatewayError ||
		code == ErrorCodeGatewayTimeout
}

var (
	ErrAuthMissing = NewDomainError(ErrorCodeAuthMissing, "authentication required")
	ErrAuthInvalid = NewDomainError(ErrorCodeAuthInvalid, "invalid authentication")

	ErrTransactionNotFound = NewDomainError(ErrorCodeTxnNotFound, "transaction not found")

	ErrTaskNotFound     = NewDomainError(ErrorCodeTaskNotFound, "sync task not found")
	ErrTaskNotRetryable = NewDomainError(ErrorCodeTaskNotRetryable, "sync task can only be retried from FAILED or COMPLETED")
	ErrTaskConflict     = NewDomainError(ErrorCodeTaskConflict, "another active sync task exists for this transaction and kind")
	ErrInvalidPriority  = NewDomainError(ErrorCodeInvalidPriority, "priority must be 1, 2 or 3")
	ErrInvalidKind      = NewDomainError(ErrorCodeInvalidKind, "unknown sync kind")

	ErrGatewayNotFound        = NewDomainError(ErrorCodeGatewayNotFound, "gateway configuration not found")
	ErrGatewayInactive        = NewDomainError(ErrorCodeGatewayInactive, "gateway configuration is inactive")
	ErrGatewayMissingEndpoint = NewDomainError(ErrorCodeGatewayMissingEndpoint, "gateway endpoint not configured")

	ErrGatewayError    = NewDomainError(ErrorCodeGatewayError, "payment gateway error")
	ErrGatewayTimedOut = NewDomainError(ErrorCodeGatewayTimeout, "payment gateway timeout")

	ErrSignatureInvalid     = NewDomainError(ErrorCodeSignatureInvalid, "invalid signature")
	ErrWebhookConfigMissing = NewDomainError(ErrorCodeWebhookConfigMissing, "webhook configuration not found")
	ErrDeliveryNotFound     = NewDomainError(ErrorCodeDeliveryNotFound, "webhook delivery not found")

	ErrValidationFailed       = NewDomainError(ErrorCodeValidationFailed, "validation failed")
	ErrValidationMissingField = NewDomainError(ErrorCodeValidationMissingField, "required field missing")

	ErrInternalError = NewDomainError(ErrorCodeInternalError, "internal server error")
	ErrDatabaseError = NewDomainError(ErrorCodeDatabaseError, "database error")
)
