package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents application error codes
type ErrorCode string

const (
	ErrCodeInvalidField        ErrorCode = "INVALID_FIELD"
	ErrCodeInvalidColumn       ErrorCode = "INVALID_COLUMN"
	ErrCodeInvalidInput        ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound            ErrorCode = "NOT_FOUND"
	ErrCodeNotAuthorised       ErrorCode = "NOT_AUTHORISED"
	ErrCodeAppInstanceMismatch ErrorCode = "APP_INSTANCE_MISMATCH"
	ErrCodeRateLimit           ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeServiceUnavailable  ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeUnknown             ErrorCode = "UNKNOWN"
)

// AppError is an error the service layer hands back to callers so they can
// branch on Code instead of parsing messages.
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

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Context:    make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with application error
func WrapError(err error, code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Cause:      err,
		Context:    make(map[string]interface{}),
	}
}

// NewInvalidFieldError reports the first attribute that failed validation.
func NewInvalidFieldError(message, field string) *AppError {
	return NewAppError(ErrCodeInvalidField, message, http.StatusBadRequest).
		WithContext("field", field)
}

func NewInvalidColumnError(column string, cause error) *AppError {
	return WrapError(cause, ErrCodeInvalidColumn, fmt.Sprintf("invalid column %s", column), http.StatusBadRequest).
		WithContext("column", column)
}

func NewInvalidInputError(message string) *AppError {
	return NewAppError(ErrCodeInvalidInput, message, http.StatusBadRequest)
}

func NewNotFoundError(message string) *AppError {
	return NewAppError(ErrCodeNotFound, message, http.StatusNotFound)
}

func NewNotAuthorisedError(message string) *AppError {
	return NewAppError(ErrCodeNotAuthorised, message, http.StatusForbidden)
}

func NewAppInstanceMismatchError(cause error) *AppError {
	return WrapError(cause, ErrCodeAppInstanceMismatch, "appInstance parameter does not match streamId", http.StatusConflict)
}

func NewRateLimitError() *AppError {
	return NewAppError(ErrCodeRateLimit, "rate limit exceeded", http.StatusTooManyRequests)
}

// NewServiceUnavailableError reports a local resource, such as a lock, that
// could not be obtained in time.
func NewServiceUnavailableError(message string, cause error) *AppError {
	return WrapError(cause, ErrCodeServiceUnavailable, message, http.StatusServiceUnavailable)
}

// NewUpstreamError reports a failed call to an external collaborator.
func NewUpstreamError(message string, cause error) *AppError {
	return WrapError(cause, ErrCodeServiceUnavailable, message, http.StatusBadGateway)
}

// NewUnknownError is the catch-all. cause may be nil.
func NewUnknownError(cause error) *AppError {
	return WrapError(cause, ErrCodeUnknown, "unknown error", http.StatusInternalServerError)
}

// IsAppError checks if error is an AppError
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// GetAppError extracts AppError from error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// HasCode reports whether err carries an AppError with the given code.
func HasCode(err error, code ErrorCode) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Code == code
}
