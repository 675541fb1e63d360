package errors

import (
	"errors"
	"fmt"
	"net/http"

	domainauth "github.com/hakim-ai/identity-gateway/internal/domain/auth"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeConflict indicates a conflict with existing data (e.g., unique constraint violation).
	ErrCodeConflict ErrorCode = "conflict"
	// ErrCodeValidation indicates invalid input data.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeUnauthorized indicates missing or expired credentials.
	ErrCodeUnauthorized ErrorCode = "unauthorized"
	// ErrCodeForbidden indicates an authenticated caller lacking permission.
	ErrCodeForbidden ErrorCode = "forbidden"
	// ErrCodeUpstream indicates the identity provider returned an unusable response.
	ErrCodeUpstream ErrorCode = "upstream"
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates a timeout occurred.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"
)

// AppError represents a structured application error with a code, message, and optional cause.
// Message is safe to show to end users; Cause carries the diagnostic detail.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
	// Field is the specific field that caused the error (optional, for validation errors)
	Field string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NotFound creates a new NotFound error.
func NotFound(message string) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: message}
}

// Conflict creates a new Conflict error.
func Conflict(message string) *AppError {
	return &AppError{Code: ErrCodeConflict, Message: message}
}

// Validation creates a new Validation error.
func Validation(message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message}
}

// ValidationField creates a Validation error bound to a request field.
func ValidationField(field, message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message, Field: field}
}

// Internal creates a new Internal error.
func Internal(message string) *AppError {
	return &AppError{Code: ErrCodeInternal, Message: message}
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// authMapping pairs an identity error kind with its public code and message.
// Order matters: the first match wins.
var authMapping = []struct {
	kind    error
	code    ErrorCode
	message string
}{
	{domainauth.ErrCsrfViolation, ErrCodeForbidden, "Login request could not be verified. Please sign in again."},
	{domainauth.ErrSessionExpired, ErrCodeUnauthorized, "Your session has expired. Please sign in again."},
	{domainauth.ErrUnauthenticated, ErrCodeUnauthorized, "Authentication required."},
	{domainauth.ErrAccountPending, ErrCodeForbidden, "Your account is awaiting approval."},
	{domainauth.ErrAccountInactive, ErrCodeForbidden, "Your account has been deactivated."},
	{domainauth.ErrForbidden, ErrCodeForbidden, "You do not have access to this resource."},
	{domainauth.ErrRoleConflict, ErrCodeConflict, "Account role conflicts with the existing record."},
	{domainauth.ErrInvalidRole, ErrCodeValidation, "Unknown role."},
	{domainauth.ErrInvalidRegistration, ErrCodeValidation, "Registration details are incomplete."},
	{domainauth.ErrTokenExchangeFailed, ErrCodeValidation, "Sign-in could not be completed. Please try again."},
	{domainauth.ErrUserInfoFetchFailed, ErrCodeUpstream, "Identity provider is unavailable. Please try again."},
	{domainauth.ErrInvalidIdentityClaims, ErrCodeUpstream, "Identity provider returned an incomplete profile."},
	{domainauth.ErrSigningError, ErrCodeInternal, "Sign-in is temporarily unavailable."},
}

// FromAuth converts identity flow errors into AppErrors with user-safe messages.
// Errors that are already AppErrors are returned unchanged; unknown errors become Internal.
func FromAuth(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	for _, m := range authMapping {
		if errors.Is(err, m.kind) {
			return &AppError{Code: m.code, Message: m.message, Cause: err}
		}
	}
	if mapped, ok := MapDBError(err).(*AppError); ok {
		return mapped
	}
	return &AppError{Code: ErrCodeInternal, Message: "An unexpected error occurred.", Cause: err}
}

// HTTPStatus returns the response status for an error code.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeUpstream:
		return http.StatusBadGateway
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeCanceled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool { return isCode(err, ErrCodeNotFound) }

// IsConflict checks if an error is a Conflict error.
func IsConflict(err error) bool { return isCode(err, ErrCodeConflict) }

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool { return isCode(err, ErrCodeValidation) }

// IsTimeout checks if an error is a Timeout error.
func IsTimeout(err error) bool { return isCode(err, ErrCodeTimeout) }

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field from an error, or empty string if not an AppError or no field set.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
