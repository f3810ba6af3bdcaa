// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// APIError represents a structured API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(status int, code, message string, cause error) *APIError {
	err := &APIError{Status: status, Code: code, Message: message}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewBadRequestError creates a 400 error.
func NewBadRequestError(message string, cause error) *APIError {
	return newError(http.StatusBadRequest, "BAD_REQUEST", message, cause)
}

// NewValidationError creates a 400 error for one form field.
func NewValidationError(field, message string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf("validation failed for field: %s", field),
		Details: message,
	}
}

// NewNotFoundError creates a 404 error.
func NewNotFoundError(resource string, id string) *APIError {
	return newError(http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("%s not found: %s", resource, id), nil)
}

// NewTooLargeError creates a 413 error.
func NewTooLargeError(limit int64) *APIError {
	return newError(http.StatusRequestEntityTooLarge, "TOO_LARGE", fmt.Sprintf("dataset exceeds %d bytes", limit), nil)
}

// NewUnprocessableError is returned when a dataset could not be profiled.
func NewUnprocessableError(message string, cause error) *APIError {
	return newError(http.StatusUnprocessableEntity, "UNPROCESSABLE", message, cause)
}

// NewBadGatewayError is returned when a remote dataset could not be fetched.
func NewBadGatewayError(message string, cause error) *APIError {
	return newError(http.StatusBadGateway, "BAD_GATEWAY", message, cause)
}

// NewInternalError creates a 500 error.
func NewInternalError(message string, cause error) *APIError {
	return newError(http.StatusInternalServerError, "INTERNAL_ERROR", message, cause)
}

// NewErrorHandler returns the Echo error handler rendering every error as an
// APIError. Details of unexpected errors are only exposed when showDetails is set.
// Usage: e.HTTPErrorHandler = api.NewErrorHandler(log, false)
func NewErrorHandler(log *zap.Logger, showDetails bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var apiErr *APIError
		var httpErr *echo.HTTPError

		switch {
		case errors.As(err, &apiErr):
		case errors.As(err, &httpErr):
			apiErr = &APIError{
				Status:  httpErr.Code,
				Code:    "HTTP_ERROR",
				Message: fmt.Sprintf("%v", httpErr.Message),
			}
		default:
			apiErr = &APIError{
				Status:  http.StatusInternalServerError,
				Code:    "UNKNOWN_ERROR",
				Message: "An unexpected error occurred",
			}
			if showDetails {
				apiErr.Details = err.Error()
			}
		}

		if apiErr.Status >= 500 {
			log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		}

		var sendErr error
		if c.Request().Method == http.MethodHead {
			sendErr = c.NoContent(apiErr.Status)
		} else {
			sendErr = c.JSON(apiErr.Status, apiErr)
		}
		if sendErr != nil {
			log.Warn("failed to send error response", zap.Error(sendErr))
		}
	}
}
