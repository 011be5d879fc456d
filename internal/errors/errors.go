package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Authentication & Authorization
	ErrCodeUnauthorized  ErrorCode = "UNAUTHORIZED"
	ErrCodeInvalidToken  ErrorCode = "INVALID_TOKEN"
	ErrCodeNotAuthorized ErrorCode = "NOT_AUTHORIZED"

	// Validation
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED"
	ErrCodeUnknownJobType  ErrorCode = "UNKNOWN_JOB_TYPE"

	// Resource
	ErrCodeNotFound    ErrorCode = "NOT_FOUND"
	ErrCodeJobNotFound ErrorCode = "JOB_NOT_FOUND"
	ErrCodeConflict    ErrorCode = "CONFLICT"

	// Configuration absence
	ErrCodeNotConfigured         ErrorCode = "NOT_CONFIGURED"
	ErrCodeAnalysisNotConfigured ErrorCode = "ANALYSIS_NOT_CONFIGURED"

	// Handshake
	ErrCodeInvalidCode        ErrorCode = "INVALID_CODE"
	ErrCodeInvalidPassword    ErrorCode = "INVALID_PASSWORD"
	ErrCodeHandshakeNotFound  ErrorCode = "HANDSHAKE_NOT_FOUND"
	ErrCodeHandshakeEnded     ErrorCode = "HANDSHAKE_ENDED"
	ErrCodeHandshakeCancelled ErrorCode = "HANDSHAKE_CANCELLED"
	ErrCodeHandshakeTimedOut  ErrorCode = "HANDSHAKE_TIMED_OUT"

	// Rate Limiting
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeQueueFull         ErrorCode = "QUEUE_FULL"

	// Internal
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
	ErrCodeExternal ErrorCode = "EXTERNAL_SERVICE_ERROR"
)

// AppError is a structured error that can be returned to clients.
// Message is user-facing and is forwarded verbatim to job owners.
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common error constructors

func Unauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message)
}

func InvalidToken(message string) *AppError {
	return New(ErrCodeInvalidToken, message)
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func JobNotFound(id int64) *AppError {
	return New(ErrCodeJobNotFound, fmt.Sprintf("Task #%d not found", id))
}

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func InvalidInput(field string, reason string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Invalid %s: %s", field, reason))
}

func MissingRequired(field string) *AppError {
	return New(ErrCodeMissingRequired, fmt.Sprintf("%s is required", field))
}

func UnknownJobType(jobType string) *AppError {
	return New(ErrCodeUnknownJobType, fmt.Sprintf("Unknown task type %q", jobType))
}

func NotConfigured() *AppError {
	return New(ErrCodeNotConfigured, "Chat account is not connected. Run /setup to connect it first.")
}

func NotAuthorized() *AppError {
	return New(ErrCodeNotAuthorized, "Chat session is no longer authorized. Run /setup to sign in again.")
}

func AnalysisNotConfigured() *AppError {
	return New(ErrCodeAnalysisNotConfigured, "Analysis API key is not configured. Add it with /settings.")
}

func InvalidCode() *AppError {
	return New(ErrCodeInvalidCode, "The code is invalid or expired. Start again with /setup.")
}

func InvalidPassword() *AppError {
	return New(ErrCodeInvalidPassword, "Wrong two-step verification password. Try again.")
}

func HandshakeNotFound() *AppError {
	return New(ErrCodeHandshakeNotFound, "No sign-in in progress. Start with /setup.")
}

func HandshakeEnded(state string) *AppError {
	return New(ErrCodeHandshakeEnded, fmt.Sprintf("Sign-in already ended (%s). Start again with /setup.", state))
}

func HandshakeCancelled() *AppError {
	return New(ErrCodeHandshakeCancelled, "Sign-in was cancelled.")
}

func HandshakeTimedOut() *AppError {
	return New(ErrCodeHandshakeTimedOut, "Sign-in timed out. Start again with /setup.")
}

func RateLimitExceeded() *AppError {
	return New(ErrCodeRateLimitExceeded, "Rate limit exceeded")
}

func QueueFull() *AppError {
	return New(ErrCodeQueueFull, "Task queue is full, try again later")
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func Database(cause error) *AppError {
	return Wrap(ErrCodeDatabase, "Database error", cause)
}

func External(service string, cause error) *AppError {
	return Wrap(ErrCodeExternal, fmt.Sprintf("External service error: %s", service), cause)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}
