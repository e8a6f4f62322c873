package types

import (
	"errors"
	"fmt"
)

// HTTPError is an error that must surface to the client with a specific
// status code. Layers below the HTTP surface return it; the handlers
// translate it into the error envelope.
type HTTPError struct {
	Code   int    `json:"-"`
	Detail string `json:"detail"`
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Code, e.Detail)
}

// NewHTTPError creates a tagged error with a fixed detail string.
func NewHTTPError(code int, detail string) *HTTPError {
	return &HTTPError{Code: code, Detail: detail}
}

// HTTPErrorf creates a tagged error with a formatted detail string.
func HTTPErrorf(code int, format string, args ...interface{}) *HTTPError {
	return &HTTPError{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// AsHTTPError unwraps err looking for a tagged error. It returns nil
// when err carries no status code.
func AsHTTPError(err error) *HTTPError {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	return nil
}
