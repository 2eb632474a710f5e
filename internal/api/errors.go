package api

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized indicates the backend rejected the bearer token (401).
	ErrUnauthorized = errors.New("api: unauthorized")
	// ErrForbidden indicates the authenticated user lacks permission (403).
	ErrForbidden = errors.New("api: forbidden")
	// ErrServer indicates a backend-side failure (5xx).
	ErrServer = errors.New("api: server failure")
	// ErrNetwork indicates the request never produced an HTTP response.
	ErrNetwork = errors.New("api: network failure")
	// ErrRequest indicates the backend rejected the request payload (4xx).
	ErrRequest = errors.New("api: request rejected")
)

// Error carries the backend error envelope alongside the observed HTTP status.
// Status is zero when the failure happened before a response arrived.
type Error struct {
	Message string
	Code    string
	Status  int
	cause   error
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("api: request failed: %s", e.Message)
	}
	if e.Code != "" {
		return fmt.Sprintf("api: status %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api: status %d: %s", e.Status, e.Message)
}

// Unwrap maps the error onto the client taxonomy so callers can classify with errors.Is.
func (e *Error) Unwrap() error {
	if e.cause != nil {
		return e.cause
	}
	switch {
	case e.Status == http.StatusUnauthorized:
		return ErrUnauthorized
	case e.Status == http.StatusForbidden:
		return ErrForbidden
	case e.Status >= http.StatusInternalServerError:
		return ErrServer
	case e.Status == 0:
		return ErrNetwork
	default:
		return ErrRequest
	}
}

func newTransportError(err error) *Error {
	return &Error{Message: err.Error(), cause: fmt.Errorf("%w: %v", ErrNetwork, err)}
}
