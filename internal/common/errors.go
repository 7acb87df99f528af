package common

import (
	"errors"
	"net/http"
)

// Error codes used across the checkout protocol.
const (
	CodeConfiguration    = "CONFIGURATION_ERROR"
	CodeValidation       = "VALIDATION_ERROR"
	CodeNetwork          = "NETWORK_ERROR"
	CodeAPI              = "API_ERROR"
	CodeTimeout          = "PAYMENT_TIMEOUT"
	CodeInvalidSignature = "INVALID_SIGNATURE"
)

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// ConfigurationError reports a missing or invalid required option. It is
// fatal: construction of the offending component fails immediately.
func ConfigurationError(message string) *AppError {
	return NewAppError(CodeConfiguration, message, http.StatusInternalServerError, nil)
}

// ValidationError reports a missing or malformed input field. It blocks the
// operation before any API call is made.
func ValidationError(message string, details any) *AppError {
	return &AppError{Code: CodeValidation, Message: message, HTTPStatus: http.StatusUnprocessableEntity, Details: details}
}

// NetworkError wraps a transport failure. The operation is abandoned and not
// retried automatically.
func NetworkError(err error) *AppError {
	return NewAppError(CodeNetwork, "Network error occurred", http.StatusBadGateway, err)
}

// APIError carries a structured error description returned by the payment API.
func APIError(description string, status int) *AppError {
	return NewAppError(CodeAPI, description, status, nil)
}

// TimeoutError reports an exhausted poll budget.
func TimeoutError(message string) *AppError {
	return NewAppError(CodeTimeout, message, http.StatusGatewayTimeout, nil)
}

// SignatureMismatch reports a failed webhook signature verification.
func SignatureMismatch() *AppError {
	return NewAppError(CodeInvalidSignature, "signature verification failed", http.StatusUnauthorized, nil)
}

// IsAppError checks whether the error is an AppError.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}

// CodeOf extracts the error code, or an empty string for plain errors.
func CodeOf(err error) string {
	var target *AppError
	if errors.As(err, &target) {
		return target.Code
	}
	return ""
}
