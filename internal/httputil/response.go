// Package httputil provides request parsing and error responses shared by the
// ops API handlers.
package httputil

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/allisson/casevault/internal/errors"
)

// RetryAfterSeconds is advertised on 503 responses caused by an unavailable dependency.
const RetryAfterSeconds = 5

// ErrorResponse represents a structured error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// errorMapping is the HTTP status and client message for one error code.
type errorMapping struct {
	status  int
	message string
}

// errorMappings is keyed by apperrors.Code. An empty message echoes the error,
// which is only done for caller mistakes.
var errorMappings = map[string]errorMapping{
	"not_found":      {http.StatusNotFound, "The requested resource was not found"},
	"conflict":       {http.StatusConflict, "The request conflicts with the current state of the resource"},
	"invalid_input":  {http.StatusUnprocessableEntity, ""},
	"unauthorized":   {http.StatusUnauthorized, "Authentication is required"},
	"forbidden":      {http.StatusForbidden, "You don't have permission to access this resource"},
	"locked":         {http.StatusLocked, "The resource is locked and requires operator intervention"},
	"unavailable":    {http.StatusServiceUnavailable, "A required dependency is temporarily unavailable"},
	"internal_error": {http.StatusInternalServerError, "An internal error occurred"},
}

// HandleErrorGin maps err's kind to a status code and writes the JSON error.
// Internal errors are logged in full but never echoed to the client.
func HandleErrorGin(c *gin.Context, err error, logger *slog.Logger) {
	if err == nil {
		return
	}

	code := apperrors.Code(err)
	mapping := errorMappings[code]
	message := mapping.message
	if message == "" {
		message = err.Error()
	}

	level := slog.LevelWarn
	if mapping.status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logger.Log(c.Request.Context(), level, "request failed",
		slog.Int("status_code", mapping.status),
		slog.String("error_code", code),
		slog.Any("error", err),
	)

	if apperrors.Retryable(err) {
		c.Header("Retry-After", strconv.Itoa(RetryAfterSeconds))
	}
	c.JSON(mapping.status, ErrorResponse{Error: code, Message: message})
}

// HandleBadRequestGin writes a 400 Bad Request response for malformed JSON or parameters.
func HandleBadRequestGin(c *gin.Context, err error, logger *slog.Logger) {
	logger.Warn("bad request", slog.Any("error", err))
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: err.Error()})
}

// HandleValidationErrorGin writes a 422 Unprocessable Entity response for validation errors.
func HandleValidationErrorGin(c *gin.Context, err error, logger *slog.Logger) {
	logger.Warn("validation failed", slog.Any("error", err))
	c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "validation_error", Message: err.Error()})
}
