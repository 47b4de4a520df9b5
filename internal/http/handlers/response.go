// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the response helpers shared by every endpoint: the error
// envelope, the service-error mapping and the success writers.
//
// Conventions:
//   - All error responses are an ErrorResponse with a stable `code`.
//   - `fail()` logs 5xx responses with the request-scoped logger.
//   - `failErr()` is the single place where service errors become statuses.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-production-goals/internal/http/middleware"
	"github.com/tbourn/go-production-goals/internal/services"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"part not found"`
	// Set when the request was a benign duplicate of one already applied
	Duplicate bool `json:"duplicate,omitempty" example:"false"`
}

// fail aborts the request with a structured error. Server errors (>=500) are
// logged with the request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// Fail is the exported variant of fail() for the router's fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// duplicate answers 409 with the duplicate flag set.
func duplicate(c *gin.Context, msg string) {
	middleware.LoggerFrom(c).Info().Str("reason", msg).Msg("duplicate request")
	c.AbortWithStatusJSON(http.StatusConflict, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      ErrCodeDuplicate,
		Message:   msg,
		Duplicate: true,
	})
}

// failErr maps a service error to its status and code. Unknown errors are
// reported as a generic database failure; the detail goes to the log only.
func failErr(c *gin.Context, err error) {
	switch {
	case services.IsDuplicate(err):
		duplicate(c, err.Error())
	case errors.Is(err, services.ErrUnauthenticated):
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, err.Error())
	case errors.Is(err, services.ErrInvalidQuantity):
		fail(c, http.StatusBadRequest, ErrCodeInvalidQuantity, err.Error())
	case errors.Is(err, services.ErrInvalidInput):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrProjectNotFound),
		errors.Is(err, services.ErrPartNotFound),
		errors.Is(err, services.ErrSubmissionNotFound),
		errors.Is(err, services.ErrArchiveNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, services.ErrPartInactive):
		fail(c, http.StatusConflict, ErrCodePartInactive, err.Error())
	case errors.Is(err, services.ErrNoGoals):
		fail(c, http.StatusConflict, ErrCodeNoGoals, err.Error())
	default:
		middleware.LoggerFrom(c).Error().Err(err).Msg("service error")
		fail(c, http.StatusInternalServerError, ErrCodeDatabase, "database failure, please try again")
	}
}

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// noContent writes an HTTP 204 No Content response.
func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
