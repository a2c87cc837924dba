package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"cabdispatch/internal/ratelimit"
	"cabdispatch/internal/repository"
	"cabdispatch/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)

	var exceeded *ratelimit.ExceededError
	if errors.As(err, &exceeded) {
		seconds := strconv.FormatInt(exceeded.RetryAfterSeconds, 10)
		c.Header("Retry-After", seconds)
		c.Header("X-Rate-Limit-Retry-After-Seconds", seconds)
	}

	if code >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(code, ErrorResponse{Error: err.Error()})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps service/repository errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound

	// Validation errors - Bad Request
	case errors.Is(err, service.ErrInvalidVehicleID),
		errors.Is(err, service.ErrInvalidRiderID),
		errors.Is(err, service.ErrInvalidAssignmentID),
		errors.Is(err, service.ErrInvalidLocation),
		errors.Is(err, service.ErrInvalidName):
		return http.StatusBadRequest

	// State machine violations
	case errors.Is(err, service.ErrInvalidTransition):
		return http.StatusUnprocessableEntity

	// Conflict errors
	case errors.Is(err, repository.ErrConflict),
		errors.Is(err, service.ErrBatchInProgress):
		return http.StatusConflict

	case errors.Is(err, ratelimit.ErrRateLimitExceeded):
		return http.StatusTooManyRequests

	// Default to internal server error
	default:
		return http.StatusInternalServerError
	}
}
