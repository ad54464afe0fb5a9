// Package errors defines the service error envelope shared by the HTTP
// transport and middleware.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode is a stable machine readable error identifier.
type ErrorCode string

const (
	CodeUnauthorized         ErrorCode = "UNAUTHORIZED"
	CodeForbidden            ErrorCode = "FORBIDDEN"
	CodeInvalidToken         ErrorCode = "INVALID_TOKEN"
	CodeInvalidFormat        ErrorCode = "INVALID_FORMAT"
	CodeNotFound             ErrorCode = "NOT_FOUND"
	CodeConflict             ErrorCode = "CONFLICT"
	CodeBadGateway           ErrorCode = "BAD_GATEWAY"
	CodeRateLimitExceeded    ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeInternal             ErrorCode = "INTERNAL"
	CodeCauseNotFound        ErrorCode = "CAUSE_NOT_FOUND"
	CodeCauseInactive        ErrorCode = "CAUSE_INACTIVE"
	CodeZeroAmount           ErrorCode = "ZERO_AMOUNT"
	CodeInvalidWalletAddress ErrorCode = "INVALID_WALLET_ADDRESS"
	CodeInvalidOwner         ErrorCode = "INVALID_OWNER"
	CodeTransferFailed       ErrorCode = "TRANSFER_FAILED"
	CodeAmountOverflow       ErrorCode = "AMOUNT_OVERFLOW"
	CodeReentrantCall        ErrorCode = "REENTRANT_CALL"
)

// ServiceError is an error with an HTTP mapping.
type ServiceError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	HTTPStatus int                    `json:"-"`
	Err        error                  `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails returns a copy of e with an extra detail entry.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	cp := *e
	cp.Details = make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// New builds a ServiceError.
func New(code ErrorCode, message string, status int, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

func Unauthorized(message string) *ServiceError {
	if message == "" {
		message = "Authentication required"
	}
	return New(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func Forbidden(message string) *ServiceError {
	if message == "" {
		message = "Access denied"
	}
	return New(CodeForbidden, message, http.StatusForbidden, nil)
}

func InvalidToken(err error) *ServiceError {
	return New(CodeInvalidToken, "Invalid or expired token", http.StatusUnauthorized, err)
}

func InvalidFormat(field, reason string) *ServiceError {
	return New(CodeInvalidFormat, fmt.Sprintf("Invalid %s", field), http.StatusBadRequest, nil).
		WithDetails("field", field).
		WithDetails("reason", reason)
}

func NotFound(resource, id string) *ServiceError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound, nil).
		WithDetails("id", id)
}

func Conflict(message string) *ServiceError {
	return New(CodeConflict, message, http.StatusConflict, nil)
}

func BadGateway(message string, err error) *ServiceError {
	return New(CodeBadGateway, message, http.StatusBadGateway, err)
}

func RateLimitExceeded(limit int, window string) *ServiceError {
	return New(CodeRateLimitExceeded, "Rate limit exceeded", http.StatusTooManyRequests, nil).
		WithDetails("limit", limit).
		WithDetails("window", window)
}

func Internal(message string, err error) *ServiceError {
	if message == "" {
		message = "Internal server error"
	}
	return New(CodeInternal, message, http.StatusInternalServerError, err)
}

// GetServiceError extracts a ServiceError from err's chain.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se
	}
	return nil
}
