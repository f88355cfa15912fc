package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestDomainError_ErrorString(t *testing.T) {
	tests := []struct {
		name     string
		err      *DomainError
		contains []string
	}{
		{
			name:     "plain",
			err:      ErrTaskNotFound,
			contains: []string{"SYNC_TASK_NOT_FOUND", "sync task not found"},
		},
		{
			name:     "wrapped",
			err:      WrapError(ErrorCodeDatabaseError, "claim batch", errors.New("connection reset")),
			contains: []string{"INTERNAL_DATABASE_ERROR", "claim batch", "connection reset"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, want := range tt.contains {
				if !strings.Contains(tt.err.Error(), want) {
					t.Errorf("error %q does not contain %q", tt.err.Error(), want)
				}
			}
		})
	}
}

func TestDomainError_IsMatchesByCode(t *testing.T) {
	detailed := ErrTaskNotFound.WithDetail("sync_id", int64(42))
	wrapped := fmt.Errorf("get task: %w", detailed)

	if !errors.Is(wrapped, ErrTaskNotFound) {
		t.Errorf("expected wrapped error to match ErrTaskNotFound")
	}
	if errors.Is(wrapped, ErrGatewayNotFound) {
		t.Errorf("did not expect wrapped error to match ErrGatewayNotFound")
	}
	if len(ErrTaskNotFound.Details) != 0 {
		t.Errorf("WithDetail must not mutate the sentinel, got %v", ErrTaskNotFound.Details)
	}
	if detailed.Details["sync_id"] != int64(42) {
		t.Errorf("expected detail to be set, got %v", detailed.Details)
	}
}

func TestDomainError_Classifiers(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		notFound   bool
		config     bool
		validation bool
		gateway    bool
	}{
		{name: "task_not_found", err: ErrTaskNotFound, notFound: true},
		{name: "txn_not_found", err: ErrTransactionNotFound, notFound: true},
		{name: "gateway_not_found", err: ErrGatewayNotFound, notFound: true, config: true},
		{name: "gateway_inactive", err: ErrGatewayInactive, config: true},
		{name: "missing_endpoint", err: ErrGatewayMissingEndpoint, config: true},
		{name: "invalid_priority", err: ErrInvalidPriority, validation: true},
		{name: "gateway_timeout", err: ErrGatewayTimedOut, gateway: true},
		{name: "plain_error", err: errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFoundError(tt.err); got != tt.notFound {
				t.Errorf("IsNotFoundError() = %v, want %v", got, tt.notFound)
			}
			if got := IsConfigurationError(tt.err); got != tt.config {
				t.Errorf("IsConfigurationError() = %v, want %v", got, tt.config)
			}
			if got := IsValidationError(tt.err); got != tt.validation {
				t.Errorf("IsValidationError() = %v, want %v", got, tt.validation)
			}
			if got := IsGatewayError(tt.err); got != tt.gateway {
				t.Errorf("IsGatewayError() = %v, want %v", got, tt.gateway)
			}
		})
	}
}

func TestGetErrorCode(t *testing.T) {
	if got := GetErrorCode(fmt.Errorf("outer: %w", ErrSignatureInvalid)); got != ErrorCodeSignatureInvalid {
		t.Errorf("GetErrorCode() = %q, want %q", got, ErrorCodeSignatureInvalid)
	}
	if got := GetErrorCode(errors.New("plain")); got != "" {
		t.Errorf("GetErrorCode() = %q, want empty", got)
	}
	if !IsDomainError(WrapError(ErrorCodeInternalError, "x", nil), ErrorCodeInternalError) {
		t.Errorf("expected IsDomainError to match code")
	}
}
