package gateway

import (
	"errors"
	"fmt"
)

// Sentinel errors for the gateway domain.
var (
	ErrBadRequest        = errors.New("bad request")
	ErrCacheMiss         = errors.New("cache miss")
	ErrUnavailable       = errors.New("upstream unavailable")
	ErrMalformedResponse = errors.New("malformed upstream response")
)

// UpstreamError is a non-200 reply from the upstream query service.
// It is surfaced to clients verbatim and never retried.
type UpstreamError struct {
	Query      string
	StatusCode int
	Body       string
}

// Error returns a formatted error string including query, status, and body.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: HTTP %d: %s", e.Query, e.StatusCode, e.Body)
}

// HTTPStatus returns the upstream HTTP status code.
func (e *UpstreamError) HTTPStatus() int { return e.StatusCode }

// RequestError is a rejected client request. Msg is safe to show to clients;
// the error matches ErrBadRequest.
type RequestError struct {
	Msg string
}

// BadRequest returns a *RequestError carrying msg.
func BadRequest(msg string) error {
	return &RequestError{Msg: msg}
}

func (e *RequestError) Error() string { return "bad request: " + e.Msg }

// Unwrap makes errors.Is(err, ErrBadRequest) hold.
func (e *RequestError) Unwrap() error { return ErrBadRequest }
