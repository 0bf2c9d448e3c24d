// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/swingai/backend/internal/analysis"
	"github.com/swingai/backend/internal/upload"
)

// APIError represents a structured API error response.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewBadRequestError creates a 400 Bad Request error.
func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewValidationError creates a 400 validation error for a specific field.
func NewValidationError(field string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf("validation failed for field: %s", field),
	}
}

// NewFileRejectedError creates a 422 error for a file the validator refused.
func NewFileRejectedError(fileName, reason string) *APIError {
	return &APIError{
		Status:  http.StatusUnprocessableEntity,
		Code:    "FILE_REJECTED",
		Message: fmt.Sprintf("%s: %s", fileName, reason),
	}
}

// NewNotFoundError creates a 404 Not Found error.
func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewInternalError creates a 500 Internal Server Error.
func NewInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewUpstreamError maps an analysis-client failure onto the API taxonomy:
// timeouts and transport failures become 502/504, application-level
// failures keep the service's own message.
func NewUpstreamError(cause error) *APIError {
	switch {
	case errors.Is(cause, analysis.ErrTimeout):
		return &APIError{
			Status:  http.StatusGatewayTimeout,
			Code:    "ANALYSIS_TIMEOUT",
			Message: cause.Error(),
		}
	default:
		var svcErr *analysis.ServiceError
		if errors.As(cause, &svcErr) {
			return &APIError{
				Status:  http.StatusBadGateway,
				Code:    "ANALYSIS_FAILED",
				Message: svcErr.Message,
			}
		}
		return &APIError{
			Status:  http.StatusBadGateway,
			Code:    "ANALYSIS_UNAVAILABLE",
			Message: cause.Error(),
		}
	}
}

// ErrorHandler is the echo HTTPErrorHandler for this API.
// Usage: e.HTTPErrorHandler = api.ErrorHandler
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *APIError

	var validationErr *upload.ValidationError
	switch {
	case errors.As(err, &apiErr):
		// already structured
	case errors.As(err, &validationErr):
		apiErr = NewFileRejectedError(validationErr.FileName, validationErr.Reason)
	default:
		if httpErr, ok := err.(*echo.HTTPError); ok {
			apiErr = &APIError{
				Status:  httpErr.Code,
				Code:    "HTTP_ERROR",
				Message: fmt.Sprintf("%v", httpErr.Message),
			}
		} else {
			apiErr = &APIError{
				Status:  http.StatusInternalServerError,
				Code:    "UNKNOWN_ERROR",
				Message: "An unexpected error occurred",
				Details: err.Error(),
			}
		}
	}

	if !c.Response().Committed {
		c.JSON(apiErr.Status, apiErr)
	}
}
