package livefetch

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by [Resource.Refresh] after the resource was closed.
var ErrClosed = errors.New("livefetch: resource closed")

// ErrUnexpectedStatus is the cause recorded in a [FetchError] when the
// server answered with a non-2xx status code.
var ErrUnexpectedStatus = errors.New("unexpected status code")

// FetchError describes a failed HTTP fetch.
//
// StatusCode is zero when the request failed before a response arrived.
// Err is the underlying cause and is reachable through [errors.Is] and
// [errors.As].
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
