package apiclient

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

// errorBodyLimit caps how much of an error response body is kept.
const errorBodyLimit = 4096

// Error is a non-2xx API response.
//
// The reconciler classifies these with IsNotFound and IsConflict; any
// other status is fatal for the current reconciliation attempt.
type Error struct {
	// StatusCode is the HTTP status of the failed call.
	StatusCode int

	// Message is the service-provided error body, if any.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("apiclient: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("apiclient: unexpected status %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is an API error with status 404.
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsConflict reports whether err is an API error with status 409 or 412,
// both of which the external stores use to signal a lost optimistic
// concurrency race.
func IsConflict(err error) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusConflict ||
		apiErr.StatusCode == http.StatusPreconditionFailed
}

// errorFromResponse builds an *Error from a non-2xx response,
// capturing a bounded amount of the body for diagnostics.
func errorFromResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	return &Error{
		StatusCode: resp.StatusCode,
		Message:    string(body),
	}
}
