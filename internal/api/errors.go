// errors.go - Structured error handling for API responses
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/audio-tag-editor/backend/internal/audio"
	"github.com/audio-tag-editor/backend/internal/debug"
	"github.com/audio-tag-editor/backend/internal/downloader"
	"github.com/audio-tag-editor/backend/internal/session"
	"github.com/audio-tag-editor/backend/internal/storage"
	"github.com/audio-tag-editor/backend/internal/tags"
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

// Error constructors for consistent error handling

// NewBadRequestError creates a 400 Bad Request error
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

// NewValidationError creates a 400 validation error for a specific field
func NewValidationError(field string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf("validation failed for field: %s", field),
	}
}

// NewUnprocessableError creates a 422 error for input that is well formed but unusable
func NewUnprocessableError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusUnprocessableEntity,
		Code:    "UNPROCESSABLE",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewForbiddenError creates a 403 Forbidden error
func NewForbiddenError(message string) *APIError {
	return &APIError{
		Status:  http.StatusForbidden,
		Code:    "FORBIDDEN",
		Message: message,
	}
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewInternalError creates a 500 Internal Server Error
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

// NewServiceUnavailableError creates a 503 Service Unavailable error
func NewServiceUnavailableError(message string) *APIError {
	return &APIError{
		Status:  http.StatusServiceUnavailable,
		Code:    "SERVICE_UNAVAILABLE",
		Message: message,
	}
}

// fromError maps package sentinel errors onto API errors. message is used
// when err carries no better text of its own.
func fromError(err error, message string) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case errors.Is(err, session.ErrNotFound):
		return &APIError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: "session not found", Details: err.Error()}
	case errors.Is(err, storage.ErrNotFound):
		return &APIError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: "File not found", Details: err.Error()}
	case errors.Is(err, storage.ErrEmptyWorkspace):
		return &APIError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: storage.ErrEmptyWorkspace.Error()}
	case errors.Is(err, session.ErrIndexOutOfRange),
		errors.Is(err, session.ErrEmptyPatch),
		errors.Is(err, session.ErrBlankField),
		errors.Is(err, storage.ErrNoSelection),
		errors.Is(err, storage.ErrInvalidPrefix),
		errors.Is(err, storage.ErrInvalidUploadID),
		errors.Is(err, audio.ErrInvalidCover):
		return NewBadRequestError(message, err)
	case errors.Is(err, tags.ErrUnsupportedFormat), errors.Is(err, audio.ErrUnreadable):
		return NewUnprocessableError(message, err)
	case errors.Is(err, downloader.ErrInvalidURL),
		errors.Is(err, downloader.ErrTooLong),
		errors.Is(err, downloader.ErrNoPlaylist):
		return NewBadRequestError(message, err)
	case errors.Is(err, downloader.ErrDRM):
		return NewUnprocessableError(message, err)
	case errors.Is(err, downloader.ErrNotFound):
		return &APIError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: message, Details: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return &APIError{Status: http.StatusGatewayTimeout, Code: "TIMEOUT", Message: message, Details: err.Error()}
	}
	return NewInternalError(message, err)
}

// ErrorHandler middleware for Echo
// Usage: e.HTTPErrorHandler = api.ErrorHandler
func ErrorHandler(err error, c echo.Context) {
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
		if debug.Enabled() {
			apiErr.Details = err.Error()
		}
	}

	if apiErr.Status >= http.StatusInternalServerError {
		fmt.Printf("[API] %s %s: %v\n", c.Request().Method, c.Request().URL.Path, err)
	}

	if c.Request().Method == http.MethodHead {
		c.NoContent(apiErr.Status)
		return
	}
	c.JSON(apiErr.Status, apiErr)
}
