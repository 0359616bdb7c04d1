package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the remote store has no recipe with the
	// requested id.
	ErrNotFound = errors.New("recipe not found")
	// ErrInvalidID is returned for ids below 1 without contacting the store.
	ErrInvalidID = errors.New("recipe id must be a positive integer")
)

// NetworkError wraps a transport failure: DNS, refused connection, timeout
// or cancellation.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError is a non-2xx response from the remote store.
type ServerError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *ServerError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: api error: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: api error: status %d, body: %s", e.Op, e.StatusCode, e.Body)
}
