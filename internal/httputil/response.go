package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/export-worker-go/internal/errors"
)

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Debug().Err(err).Msg("failed to encode response")
	}
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string              `json:"error"`
	Code    apperrors.ErrorCode `json:"code"`
	Details any                 `json:"details,omitempty"`
}

// WriteError writes an AppError as an HTTP response with appropriate status code
func WriteError(w http.ResponseWriter, err error) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		log.Error().Err(err).Msg("unhandled error")
		appErr = apperrors.Internal("An unexpected error occurred")
	}

	WriteErrorWithStatus(w, StatusFromCode(appErr.Code), appErr)
}

// WriteErrorWithStatus writes an error with a specific HTTP status code
func WriteErrorWithStatus(w http.ResponseWriter, status int, err *apperrors.AppError) {
	if status >= http.StatusInternalServerError && err.Unwrap() != nil {
		log.Error().Err(err).Str("code", string(err.Code)).Msg("request failed")
	}

	message := err.Message
	if err.Code == apperrors.ErrCodeDatabase {
		message = "Internal server error"
	}

	WriteJSON(w, status, ErrorResponse{
		Error:   message,
		Code:    err.Code,
		Details: err.Details,
	})
}

// StatusFromCode maps ErrorCode to HTTP status code
func StatusFromCode(code apperrors.ErrorCode) int {
	switch code {
	// 400 Bad Request
	case apperrors.ErrCodeValidation,
		apperrors.ErrCodeInvalidInput,
		apperrors.ErrCodeMissingRequired,
		apperrors.ErrCodeUnknownJobType,
		apperrors.ErrCodeInvalidCode,
		apperrors.ErrCodeInvalidPassword:
		return http.StatusBadRequest

	// 401 Unauthorized
	case apperrors.ErrCodeUnauthorized,
		apperrors.ErrCodeInvalidToken:
		return http.StatusUnauthorized

	// 404 Not Found
	case apperrors.ErrCodeNotFound,
		apperrors.ErrCodeJobNotFound,
		apperrors.ErrCodeHandshakeNotFound:
		return http.StatusNotFound

	// 409 Conflict
	case apperrors.ErrCodeConflict,
		apperrors.ErrCodeHandshakeEnded,
		apperrors.ErrCodeHandshakeCancelled,
		apperrors.ErrCodeHandshakeTimedOut:
		return http.StatusConflict

	// 412 Precondition Failed
	case apperrors.ErrCodeNotConfigured,
		apperrors.ErrCodeNotAuthorized,
		apperrors.ErrCodeAnalysisNotConfigured:
		return http.StatusPreconditionFailed

	// 429 Too Many Requests
	case apperrors.ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests

	// 502 Bad Gateway
	case apperrors.ErrCodeExternal:
		return http.StatusBadGateway

	// 503 Service Unavailable
	case apperrors.ErrCodeQueueFull:
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}
