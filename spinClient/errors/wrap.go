package errors

import (
	"errors"
	"fmt"
	"strings"
)

// shortMessageLimit bounds messages forwarded to the game surface.
const shortMessageLimit = 160

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted message
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// WrapSpinError wraps an error as a SpinError if it isn't already one
func WrapSpinError(err error, code ErrorCode, network, message string) *SpinError {
	if err == nil {
		return nil
	}

	var spinErr *SpinError
	if errors.As(err, &spinErr) {
		spinErr.WithContext("wrapped_message", message)
		if network != "" && spinErr.Network == "" {
			spinErr.Network = network
		}
		return spinErr
	}

	return NewSpinError(code, network, message, err)
}

// Is checks if an error is of a specific type
func Is(err error, target error) bool {
	return errors.Is(err, target)
}

// As checks if an error can be assigned to a target type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New is errors.New, re-exported so callers need a single errors import.
func New(text string) error {
	return errors.New(text)
}

// IsCode checks if an error is a SpinError with a specific code
func IsCode(err error, code ErrorCode) bool {
	var spinErr *SpinError
	if errors.As(err, &spinErr) {
		return spinErr.Code == code
	}
	return false
}

// IsSetupReason checks if an error is a setup error with the given reason
func IsSetupReason(err error, reason SetupReason) bool {
	var spinErr *SpinError
	if errors.As(err, &spinErr) {
		return spinErr.Code == ErrCodeSetup && spinErr.Reason == reason
	}
	return false
}

// CountsAgainstHealth applies SpinError.CountsAgainstHealth to err's chain. An error
// outside the taxonomy counts, since it surfaced from the submission path unclassified.
func CountsAgainstHealth(err error) bool {
	if err == nil {
		return false
	}
	var spinErr *SpinError
	if errors.As(err, &spinErr) {
		return spinErr.CountsAgainstHealth()
	}
	return true
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var spinErr *SpinError
	if errors.As(err, &spinErr) {
		return spinErr.IsRetryable()
	}

	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"too many requests",
		"eof",
	}
	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// ShortMessage returns the first line of an error message, truncated for display.
// JSON-RPC errors often carry multi-line revert data that is useless to a player.
func ShortMessage(err error) string {
	if err == nil {
		return ""
	}
	var spinErr *SpinError
	msg := err.Error()
	if errors.As(err, &spinErr) && spinErr.Cause != nil {
		msg = spinErr.Cause.Error()
	}
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	msg = strings.TrimSpace(msg)
	if len(msg) > shortMessageLimit {
		msg = msg[:shortMessageLimit-3] + "..."
	}
	return msg
}
