package errors

import (
	"fmt"
)

// ErrorCode represents different categories of errors
type ErrorCode string

const (
	// ErrCodeSetup indicates the delegation could not be established
	ErrCodeSetup ErrorCode = "SETUP"

	// ErrCodeValidation indicates an out of bounds spin intent
	ErrCodeValidation ErrorCode = "VALIDATION"

	// ErrCodePaymentUnavailable indicates no gas payment option can cover the request
	ErrCodePaymentUnavailable ErrorCode = "PAYMENT_UNAVAILABLE"

	// ErrCodePaymentExhausted indicates every gas payment option was attempted and failed
	ErrCodePaymentExhausted ErrorCode = "PAYMENT_EXHAUSTED"

	// ErrCodeConfirmationTimeout indicates no outcome was observed for a submitted operation
	ErrCodeConfirmationTimeout ErrorCode = "CONFIRMATION_TIMEOUT"

	// ErrCodeSubmission indicates an unexpected failure while talking to the network
	ErrCodeSubmission ErrorCode = "SUBMISSION"

	// ErrCodeNetwork indicates network-related errors
	ErrCodeNetwork ErrorCode = "NETWORK"

	// ErrCodeConfig indicates configuration errors
	ErrCodeConfig ErrorCode = "CONFIG"

	// ErrCodeInternal indicates internal system errors
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// SetupReason refines ErrCodeSetup.
type SetupReason string

const (
	SetupNoWallet   SetupReason = "no-wallet"
	SetupProvider   SetupReason = "provider"
	SetupWrongChain SetupReason = "wrong-chain"
	SetupNotReady   SetupReason = "not-ready"
)

// Severity represents the severity level of an error
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

// SpinError is the error type surfaced by the spin pipeline.
type SpinError struct {
	Code     ErrorCode              `json:"code"`
	Reason   SetupReason            `json:"reason,omitempty"`
	Message  string                 `json:"message"`
	Network  string                 `json:"network,omitempty"`
	Severity Severity               `json:"severity"`
	Cause    error                  `json:"-"`
	Context  map[string]interface{} `json:"context,omitempty"`
}

// NewSpinError creates a new SpinError
func NewSpinError(code ErrorCode, network, message string, cause error) *SpinError {
	return &SpinError{
		Code:     code,
		Message:  message,
		Network:  network,
		Severity: determineSeverity(code),
		Cause:    cause,
		Context:  make(map[string]interface{}),
	}
}

// Error implements the error interface
func (e *SpinError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Network != "" {
		return fmt.Sprintf("[%s:%s] %s", e.Network, e.Code, msg)
	}
	return fmt.Sprintf("[%s] %s", e.Code, msg)
}

// Unwrap returns the underlying cause
func (e *SpinError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *SpinError) WithContext(key string, value interface{}) *SpinError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithSeverity overrides the default severity
func (e *SpinError) WithSeverity(severity Severity) *SpinError {
	e.Severity = severity
	return e
}

// IsRetryable reports whether the same operation may succeed when simply repeated.
func (e *SpinError) IsRetryable() bool {
	switch e.Code {
	case ErrCodeNetwork, ErrCodeSubmission:
		return true
	case ErrCodeSetup:
		return e.Reason == SetupProvider
	default:
		return false
	}
}

// CountsAgainstHealth reports whether the error moves the connection health counter.
// Only submission and confirmation failures do; payment, setup, validation, config and
// internal errors describe local state rather than the connection.
func (e *SpinError) CountsAgainstHealth() bool {
	return e.Code == ErrCodeSubmission || e.Code == ErrCodeConfirmationTimeout
}

func determineSeverity(code ErrorCode) Severity {
	switch code {
	case ErrCodeInternal:
		return SeverityCritical
	case ErrCodeSubmission, ErrCodeConfirmationTimeout, ErrCodePaymentExhausted:
		return SeverityHigh
	case ErrCodeNetwork, ErrCodeSetup, ErrCodePaymentUnavailable:
		return SeverityMedium
	case ErrCodeValidation, ErrCodeConfig:
		return SeverityLow
	default:
		return SeverityInfo
	}
}

// Common error constructors

// NewSetupError creates a setup error with the given reason
func NewSetupError(reason SetupReason, network, message string, cause error) *SpinError {
	e := NewSpinError(ErrCodeSetup, network, message, cause)
	e.Reason = reason
	return e
}

// NewValidationError creates a validation error
func NewValidationError(message string) *SpinError {
	return NewSpinError(ErrCodeValidation, "", message, nil)
}

// NewPaymentUnavailableError creates a payment-unavailable error
func NewPaymentUnavailableError(network, message string) *SpinError {
	return NewSpinError(ErrCodePaymentUnavailable, network, message, nil)
}

// NewPaymentExhaustedError creates a payment-exhausted error
func NewPaymentExhaustedError(network, message string, cause error) *SpinError {
	return NewSpinError(ErrCodePaymentExhausted, network, message, cause)
}

// NewConfirmationTimeoutError creates a confirmation timeout error
func NewConfirmationTimeoutError(network, message string) *SpinError {
	return NewSpinError(ErrCodeConfirmationTimeout, network, message, nil)
}

// NewSubmissionError creates a submission error
func NewSubmissionError(network, message string, cause error) *SpinError {
	return NewSpinError(ErrCodeSubmission, network, message, cause)
}

// NewNetworkError creates a network error
func NewNetworkError(network, message string, cause error) *SpinError {
	return NewSpinError(ErrCodeNetwork, network, message, cause)
}

// NewConfigError creates a configuration error
func NewConfigError(message string) *SpinError {
	return NewSpinError(ErrCodeConfig, "", message, nil)
}

// NewInternalError creates an internal error
func NewInternalError(network, message string, cause error) *SpinError {
	return NewSpinError(ErrCodeInternal, network, message, cause)
}
