// Package httputil provides HTTP response helpers and the error-to-status
// mapping for the public API.
package httputil

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/cardvault/locker/internal/errors"
)

// ErrorResponse is the stable error body: {code, message, data?}.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// HandleErrorGin maps domain errors to HTTP status codes and writes the
// public error body. Nothing from the cryptographic layer or the database
// driver reaches the response; the full chain is logged at error level.
func HandleErrorGin(c *gin.Context, err error, logger *slog.Logger) {
	if err == nil {
		return
	}

	var statusCode int
	var response ErrorResponse

	switch {
	case apperrors.Is(err, apperrors.ErrNotFound):
		statusCode = http.StatusNotFound
		response = ErrorResponse{
			Code:    "NOT_FOUND",
			Message: "The requested resource was not found",
		}

	case apperrors.Is(err, apperrors.ErrInvalidInput):
		statusCode = http.StatusBadRequest
		response = ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: err.Error(),
		}

	case apperrors.Is(err, apperrors.ErrUnauthorized):
		statusCode = http.StatusUnauthorized
		response = ErrorResponse{
			Code:    "UNAUTHORIZED",
			Message: "Authentication failed",
		}

	case apperrors.Is(err, apperrors.ErrLocked):
		statusCode = http.StatusForbidden
		response = ErrorResponse{
			Code:    "CUSTODIAN_LOCKED",
			Message: "Tenant master key is locked",
		}

	case apperrors.Is(err, apperrors.ErrForbidden):
		statusCode = http.StatusForbidden
		response = ErrorResponse{
			Code:    "FORBIDDEN",
			Message: "You don't have permission to access this resource",
		}

	case apperrors.Is(err, apperrors.ErrTooManyRequests):
		statusCode = http.StatusTooManyRequests
		response = ErrorResponse{
			Code:    "RATE_LIMITED",
			Message: "Rate limit applied",
		}

	default:
		statusCode = http.StatusInternalServerError
		response = ErrorResponse{
			Code:    "INTERNAL_ERROR",
			Message: "An internal error occurred",
		}
	}

	if logger != nil {
		logger.Error("request failed",
			slog.Int("status_code", statusCode),
			slog.String("error_code", response.Code),
			slog.Any("error", err),
		)
	}

	c.AbortWithStatusJSON(statusCode, response)
}

// HandleValidationErrorGin writes a 400 Bad Request response for validation
// errors.
func HandleValidationErrorGin(c *gin.Context, err error, logger *slog.Logger) {
	if logger != nil {
		logger.Warn("validation failed", slog.Any("error", err))
	}

	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Code:    "VALIDATION_ERROR",
		Message: err.Error(),
	})
}
