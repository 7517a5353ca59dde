package internal

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound     ErrorType = "NOT_FOUND"
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"
	ErrorTypeConflict     ErrorType = "CONFLICT"
	ErrorTypeInternal     ErrorType = "INTERNAL_ERROR"
	ErrorTypeExternal     ErrorType = "EXTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidAmount    ErrorCode = "INVALID_AMOUNT"
	ErrCodeInvalidCurrency  ErrorCode = "INVALID_CURRENCY"
	ErrCodeInvalidMethod    ErrorCode = "INVALID_PAYMENT_METHOD"

	ErrCodePaymentNotFound ErrorCode = "PAYMENT_NOT_FOUND"
	ErrCodePayoutNotFound  ErrorCode = "PAYOUT_NOT_FOUND"
	ErrCodeHoldNotFound    ErrorCode = "ESCROW_HOLD_NOT_FOUND"

	ErrCodeInvalidTransition   ErrorCode = "INVALID_TRANSITION"
	ErrCodeInvalidOperation    ErrorCode = "INVALID_OPERATION"
	ErrCodeAlreadyReleased     ErrorCode = "ESCROW_ALREADY_RELEASED"
	ErrCodeInsufficientBalance ErrorCode = "INSUFFICIENT_REFUNDABLE_BALANCE"
	ErrCodeSignatureInvalid    ErrorCode = "SIGNATURE_INVALID"
	ErrCodeGatewayFailed       ErrorCode = "GATEWAY_FAILED"
	ErrCodePayeeResolution     ErrorCode = "PAYEE_RESOLUTION_FAILED"
	ErrCodePayoutNotRetryable  ErrorCode = "PAYOUT_NOT_RETRYABLE"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
			return validationErrors.Errors[0].Message
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) GetDetailedMessage() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok {
			if len(validationErrors.Errors) == 1 {
				return validationErrors.Errors[0].Message
			} else if len(validationErrors.Errors) > 1 {
				messages := make([]string, len(validationErrors.Errors))
				for i, err := range validationErrors.Errors {
					messages[i] = err.Message
				}
				return strings.Join(messages, "; ")
			}
		}
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
		Details: ValidationErrors{
			Errors: []ValidationError{
				{Field: field, Message: message, Code: string(code)},
			},
		},
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewUnauthorizedError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// NewInvalidTransitionError marks a state machine violation. Webhook-triggered
// duplicates are logged and swallowed; explicit operations surface it.
func NewInvalidTransitionError(from, to string) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       ErrCodeInvalidTransition,
		Message:    fmt.Sprintf("cannot transition payment from %s to %s", from, to),
		StatusCode: http.StatusConflict,
	}
}

func NewInvalidOperationError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       ErrCodeInvalidOperation,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewInsufficientBalanceError(requested, remaining int64) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeInsufficientBalance,
		Message:    fmt.Sprintf("refund of %d exceeds refundable balance of %d", requested, remaining),
		StatusCode: http.StatusUnprocessableEntity,
	}
}

func NewSignatureVerificationError(provider string) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       ErrCodeSignatureInvalid,
		Message:    fmt.Sprintf("webhook signature verification failed for provider %s", provider),
		StatusCode: http.StatusUnauthorized,
	}
}

func NewGatewayError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       ErrCodeGatewayFailed,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Cause:      cause,
	}
}

func NewPayeeResolutionError(sellerID int64, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       ErrCodePayeeResolution,
		Message:    fmt.Sprintf("could not resolve payout account for seller %d", sellerID),
		StatusCode: http.StatusUnprocessableEntity,
		Cause:      cause,
	}
}

var (
	ErrPaymentNotFound = NewNotFoundError("Payment not found", ErrCodePaymentNotFound)
	ErrPayoutNotFound  = NewNotFoundError("Payout not found", ErrCodePayoutNotFound)
	ErrHoldNotFound    = NewNotFoundError("Escrow hold not found", ErrCodeHoldNotFound)
)

func IsAppError(err error) (*AppError, bool) {
	if appErr, ok := err.(*AppError); ok {
		return appErr, true
	}
	return nil, false
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
