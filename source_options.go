package livefetch

import (
	"errors"
	"net/http"
	"time"
)

// sourceConfig holds mutable state during source construction.
type sourceConfig struct {
	labels   map[string]string
	headers  map[string]string
	timeout  time.Duration
	selector Selector
	method   string
	interval time.Duration
}

// SourceOption configures a [Source] during construction.
//
// Built-in options: [WithLabels], [WithHeaders], [WithTimeout],
// [WithSelector], [WithMethod], [WithInterval].
type SourceOption func(*sourceConfig) error

// WithLabels adds metadata labels shown next to the resource on the
// dashboard.
//
// Accepts variadic key-value pairs. Returns an error if an odd number of
// arguments is provided.
//
// Example:
//
//	src, err := livefetch.NewSource("quote", url,
//	    livefetch.WithLabels("team", "growth"),
//	)
func WithLabels(keyValues ...string) SourceOption {
	return func(cfg *sourceConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithLabels requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.labels[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithHeaders adds custom HTTP headers sent with every request, for
// example an Authorization header.
//
// Accepts variadic key-value pairs. Returns an error if an odd number of
// arguments is provided.
func WithHeaders(keyValues ...string) SourceOption {
	return func(cfg *sourceConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithHeaders requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.headers[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithTimeout sets the per-request timeout. A request that exceeds it
// fails the refresh. Defaults to 10 seconds.
//
// Returns an error if the duration is zero or negative.
func WithTimeout(d time.Duration) SourceOption {
	return func(cfg *sourceConfig) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		cfg.timeout = d
		return nil
	}
}

// WithSelector sets how the response is turned into the published value.
// Defaults to [DefaultSelector].
func WithSelector(sel Selector) SourceOption {
	return func(cfg *sourceConfig) error {
		cfg.selector = sel
		return nil
	}
}

// WithMethod sets the HTTP method. GET (default), HEAD and POST are
// supported.
//
// Returns an error for any other method.
func WithMethod(method string) SourceOption {
	return func(cfg *sourceConfig) error {
		switch method {
		case http.MethodGet, http.MethodHead, http.MethodPost:
			cfg.method = method
			return nil
		default:
			return errors.New("method must be GET, HEAD, or POST")
		}
	}
}

// WithInterval sets a refresh interval for this source that overrides the
// board interval set with [WithRefreshInterval].
//
// The interval is measured from when a refresh starts. It must be between
// 1 second and 1 hour.
func WithInterval(d time.Duration) SourceOption {
	return func(cfg *sourceConfig) error {
		if d < time.Second {
			return errors.New("interval must be at least 1 second")
		}
		if d > time.Hour {
			return errors.New("interval must not exceed 1 hour")
		}
		cfg.interval = d
		return nil
	}
}
