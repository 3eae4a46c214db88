package livefetch

import (
	"errors"
	"log/slog"
	"time"
)

// boardConfig holds mutable state during Board construction.
type boardConfig struct {
	title           string
	sources         []Source
	refreshInterval time.Duration
	port            int
	maxConcurrency  int
	logger          *slog.Logger
	changeCallbacks []func(Snapshot)
}

// Option configures a [Board] during construction.
//
// Options return an error if validation fails.
//
// Built-in options: [WithSource], [WithSources], [WithRefreshInterval],
// [WithPort], [WithMaxConcurrency], [WithLogger], [WithChangeCallback],
// [WithTitle].
type Option func(*boardConfig) error

// WithSource adds a single [Source] to the board.
//
// Can be called multiple times. At least one source must be configured for
// [New] to succeed.
//
// Example:
//
//	b, err := livefetch.New(
//	    livefetch.WithSource(quotes),
//	    livefetch.WithSource(weather),
//	)
func WithSource(s Source) Option {
	return func(cfg *boardConfig) error {
		cfg.sources = append(cfg.sources, s)
		return nil
	}
}

// WithSources adds several [Source] values at once. Equivalent to calling
// [WithSource] for each.
func WithSources(sources ...Source) Option {
	return func(cfg *boardConfig) error {
		cfg.sources = append(cfg.sources, sources...)
		return nil
	}
}

// WithRefreshInterval sets how often sources without their own interval
// are refreshed automatically. Defaults to 30 seconds.
//
// Per-source intervals set with [WithInterval] take precedence.
//
// Returns an error if the duration is zero or negative.
func WithRefreshInterval(d time.Duration) Option {
	return func(cfg *boardConfig) error {
		if d <= 0 {
			return errors.New("refresh interval must be positive")
		}
		cfg.refreshInterval = d
		return nil
	}
}

// WithPort sets the HTTP port for the dashboard and API. Defaults to 8080.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithPort(port int) Option {
	return func(cfg *boardConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithMaxConcurrency limits how many scheduled refreshes run at once.
// Click-triggered refreshes are not counted. Defaults to 10.
//
// Returns an error if the value is zero or negative.
func WithMaxConcurrency(n int) Option {
	return func(cfg *boardConfig) error {
		if n <= 0 {
			return errors.New("max concurrency must be positive")
		}
		cfg.maxConcurrency = n
		return nil
	}
}

// WithLogger sets the [slog.Logger] used by the board, its resources and
// its HTTP server. If not specified, [slog.Default] is used.
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
//	b, err := livefetch.New(
//	    livefetch.WithSource(src),
//	    livefetch.WithLogger(logger),
//	)
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *boardConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithChangeCallback registers a function called with a [Snapshot] every
// time a resource's value, busy flag or error changes while the board is
// running.
//
// Snapshots of one source reach the callbacks in the order they were taken,
// one at a time, in registration order. Callbacks should not block. They may
// call [Board.Refresh]; snapshots produced meanwhile are delivered after the
// callback returns. Panics are recovered and logged. Nil callbacks are
// ignored.
//
// Example:
//
//	b, err := livefetch.New(
//	    livefetch.WithSource(src),
//	    livefetch.WithChangeCallback(func(s livefetch.Snapshot) {
//	        if s.Error != nil {
//	            log.Printf("%s failed: %s", s.Name, *s.Error)
//	        }
//	    }),
//	)
func WithChangeCallback(cb func(Snapshot)) Option {
	return func(cfg *boardConfig) error {
		if cb == nil {
			return nil
		}
		cfg.changeCallbacks = append(cfg.changeCallbacks, cb)
		return nil
	}
}

// WithTitle sets the dashboard title shown in the browser tab and header.
// Defaults to "livefetch".
func WithTitle(title string) Option {
	return func(cfg *boardConfig) error {
		cfg.title = title
		return nil
	}
}
