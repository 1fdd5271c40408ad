package dify

import (
	"errors"
	"fmt"
)

// ErrNotImplemented marks app types whose response handling is not wired
// yet (text-generator, workflow).
var ErrNotImplemented = errors.New("dify: app type not implemented")

// BackendError is a non-2xx response from the Dify API. Body is the raw
// response body for diagnostics.
type BackendError struct {
	StatusCode int
	Body       string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("dify api status %d: %s", e.StatusCode, e.Body)
}
