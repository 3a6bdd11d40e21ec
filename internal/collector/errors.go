package collector

import (
	"errors"
	"fmt"
)

// Reason classifies why a fetch produced no table.
type Reason int

const (
	// ReasonRetriesExhausted means every attempt ended without a 200 status.
	ReasonRetriesExhausted Reason = iota + 1
	// ReasonMalformedResponse means a 200 response carried no usable data.
	ReasonMalformedResponse
)

func (r Reason) String() string {
	switch r {
	case ReasonRetriesExhausted:
		return "retries_exhausted"
	case ReasonMalformedResponse:
		return "malformed_response"
	default:
		return "unknown"
	}
}

var (
	ErrRetriesExhausted  = errors.New("retries exhausted")
	ErrMalformedResponse = errors.New("malformed response")
)

// FetchError is a soft fetch failure. The caller may continue without the
// table; errors.Is matches ErrRetriesExhausted or ErrMalformedResponse.
type FetchError struct {
	Asset    string
	Metrics  []string
	Reason   Reason
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s %v: %s after %d attempt(s): %v", e.Asset, e.Metrics, e.Reason, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrRetriesExhausted:
		return e.Reason == ReasonRetriesExhausted
	case ErrMalformedResponse:
		return e.Reason == ReasonMalformedResponse
	}
	return false
}

// IsSoftFailure reports whether err is a FetchError.
func IsSoftFailure(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

// statusError is a non-200 response; it is retried.
type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("status %d", e.StatusCode)
	}
	return fmt.Sprintf("status %d, body: %s", e.StatusCode, e.Body)
}

// transportError is a failed round trip or body read; it is retried.
type transportError struct {
	Err error
}

func (e *transportError) Error() string { return e.Err.Error() }

func (e *transportError) Unwrap() error { return e.Err }
