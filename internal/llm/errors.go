package llm

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidRequest           = errors.New("invalid request")
	ErrUpstreamUnavailable      = errors.New("upstream unavailable")
	ErrMalformedUpstreamPayload = errors.New("malformed upstream payload")
	ErrNoChoicesReturned        = errors.New("no choices returned")
	ErrSessionBusy              = errors.New("session busy")
)

// UpstreamError reports a failed call to the model API. Status is the
// upstream HTTP status, or 0 when the request never got a response.
type UpstreamError struct {
	Status int
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %v", ErrUpstreamUnavailable, e.Err)
	}
	return fmt.Sprintf("%s (status %d): %v", ErrUpstreamUnavailable, e.Status, e.Err)
}

func (e *UpstreamError) Unwrap() []error {
	return []error{ErrUpstreamUnavailable, e.Err}
}

// HTTPStatus is the status to answer the caller with.
func (e *UpstreamError) HTTPStatus() int {
	if e.Status < http.StatusBadRequest {
		return http.StatusBadGateway
	}
	return e.Status
}
