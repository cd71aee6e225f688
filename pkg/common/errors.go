package common

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError represents an HTTP error with a status code and message.
// Hooks and actions return it to choose the response sent to the client;
// any other error becomes a 500 Internal Server Error.
type HTTPError struct {
	StatusCode int    // HTTP status code (e.g., 400, 404, 500)
	Message    string // Error message to be sent in the response body
}

// Error implements the error interface.
// It returns a string representation of the HTTP error in the format "status: message".
func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.StatusCode, e.Message)
}

// NewHTTPError creates a new HTTPError with the specified status code and message.
// An empty message is replaced by the standard status text.
func NewHTTPError(statusCode int, message string) *HTTPError {
	if message == "" {
		message = http.StatusText(statusCode)
	}
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
	}
}

// StatusOf returns the status carried by an HTTPError in err's chain, or
// fallback when there is none.
func StatusOf(err error, fallback int) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return fallback
}
