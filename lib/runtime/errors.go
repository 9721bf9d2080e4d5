package runtime

import (
	"errors"
	"fmt"
)

var (
	// ErrNoToken is returned when an operation requires a bearer token and none is configured
	ErrNoToken = errors.New("no authentication token")

	// ErrInvalidReference is returned when a pull reference cannot be parsed
	ErrInvalidReference = errors.New("invalid image reference")
)

// APIError is a non-2xx response from the runtime control service.
// Message comes from the structured error body when one could be parsed,
// otherwise from the raw HTTP status text.
type APIError struct {
	StatusCode int
	Message    string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Detail)
	}
	return e.Message
}
