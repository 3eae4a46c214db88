package livefetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Fetcher performs one unit of asynchronous work and returns its result.
//
// Fetchers receive a context that is cancelled when the caller gives up or
// the owning [Resource] is closed. They must not retry on their own.
type Fetcher[T any] func(ctx context.Context) (T, error)

// Result is the outcome of a refresh started with [Resource.RefreshAsync].
type Result[T any] struct {
	Value T
	Err   error
}

// Resource publishes the result of a [Fetcher] into observable stores.
//
// A Resource owns three stores:
//
//   - Value holds the last successfully fetched value.
//   - Fetching is true while at least one refresh is in flight.
//   - Err holds the error of the most recent failed refresh, or nil once a
//     later refresh succeeds.
//
// Overlapping refreshes are not serialized: whichever completes last decides
// the final value. Fetching becomes true when the first of a group of
// overlapping refreshes starts and false when the last of them completes.
//
// A Resource is torn down with [Resource.Close], which cancels in-flight
// refreshes and closes the stores.
//
// Subscribers of the three stores may start refreshes of the same resource.
// A change of the busy flag caused from inside a Fetching subscriber is
// published after that subscriber returns, if it still holds then.
type Resource[T any] struct {
	Value    *Store[T]
	Fetching *Store[bool]
	Err      *Store[error]

	name   string
	fetch  Fetcher[T]
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	inflight int
	closed   bool
	wg       sync.WaitGroup

	// busy is the last value written to Fetching; publishing is set while
	// one goroutine is writing it. Both are guarded by mu.
	busy       bool
	publishing bool
}

// ResourceOption configures a [Resource] during construction.
type ResourceOption func(*resourceConfig)

type resourceConfig struct {
	name   string
	logger *slog.Logger
}

// WithName sets the name used in log records about the resource.
func WithName(name string) ResourceOption {
	return func(cfg *resourceConfig) {
		cfg.name = name
	}
}

// WithResourceLogger sets the logger for the resource and its stores.
// A nil logger is ignored; [slog.Default] is used when unset.
func WithResourceLogger(logger *slog.Logger) ResourceOption {
	return func(cfg *resourceConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// NewResource creates a [Resource] whose Value store starts at initial.
//
// fetch must not be nil.
func NewResource[T any](fetch Fetcher[T], initial T, opts ...ResourceOption) *Resource[T] {
	if fetch == nil {
		panic("livefetch: NewResource called with nil fetcher")
	}

	cfg := &resourceConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	storeLogger := WithStoreLogger(cfg.logger)

	return &Resource[T]{
		Value:    NewStore(initial, storeLogger),
		Fetching: NewStore(false, storeLogger),
		Err:      NewStore[error](nil, storeLogger),
		name:     cfg.name,
		fetch:    fetch,
		logger:   cfg.logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Name returns the name set with [WithName].
func (r *Resource[T]) Name() string {
	return r.name
}

// Refresh runs the fetcher and publishes its result.
//
// Fetching is set to true before the fetcher starts and released on every
// exit path. On success the value is written to Value and Err is cleared.
// On failure the error is written to Err and Value keeps its previous
// content. A fetch whose context was cancelled before it returned is
// treated as a failure: its result is dropped, even if the fetcher
// succeeded, and the context error is returned. Err records the
// cancellation only when the resource itself was closed or the fetcher
// reported an error; a caller that cancels ctx leaves Err untouched.
//
// Refresh blocks until the fetcher returns. It returns [ErrClosed] if the
// resource was closed.
func (r *Resource[T]) Refresh(ctx context.Context) (T, error) {
	release, err := r.acquire()
	if err != nil {
		var zero T
		return zero, err
	}
	defer release()

	return r.run(ctx)
}

// RefreshAsync starts a refresh on a new goroutine and returns a channel
// that yields exactly one [Result] before it is closed.
//
// Fetching is already true when RefreshAsync returns, unless the resource
// is closed, in which case the result carries [ErrClosed], or the call was
// made while another goroutine is publishing the busy flag.
func (r *Resource[T]) RefreshAsync(ctx context.Context) <-chan Result[T] {
	out := make(chan Result[T], 1)

	release, err := r.acquire()
	if err != nil {
		out <- Result[T]{Err: err}
		close(out)
		return out
	}

	go func() {
		defer close(out)
		defer release()
		v, err := r.run(ctx)
		// readers of the result see the busy flag already released
		release()
		out <- Result[T]{Value: v, Err: err}
	}()

	return out
}

// Close cancels in-flight refreshes, waits for them to return, and closes
// the Value, Fetching and Err stores. Close is idempotent.
//
// Close must not be called from a subscriber of this resource's stores.
func (r *Resource[T]) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()

	r.Value.Close()
	r.Fetching.Close()
	r.Err.Close()
}

// acquire marks a refresh as in flight. The returned release function
// undoes it and is safe to call more than once.
func (r *Resource[T]) acquire() (release func(), err error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	r.wg.Add(1)
	r.inflight++
	r.mu.Unlock()

	r.publishBusy()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			r.inflight--
			r.mu.Unlock()
			r.publishBusy()
			r.wg.Done()
		})
	}, nil
}

// publishBusy brings Fetching in line with the in-flight count. It never
// holds mu while writing the store. If another call is already writing,
// publishBusy returns at once and that call publishes the latest state
// after its own write, so flag changes stay ordered.
func (r *Resource[T]) publishBusy() {
	r.mu.Lock()
	if r.publishing {
		r.mu.Unlock()
		return
	}
	r.publishing = true
	for {
		want := r.inflight > 0
		if want == r.busy {
			r.publishing = false
			r.mu.Unlock()
			return
		}
		r.busy = want
		r.mu.Unlock()

		r.Fetching.Set(want)

		r.mu.Lock()
	}
}

func (r *Resource[T]) run(ctx context.Context) (T, error) {
	var zero T

	if ctx == nil {
		ctx = context.Background()
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(r.ctx, cancel)
	defer stop()

	start := time.Now()
	v, err := r.safeFetch(fetchCtx)
	fetchErr := err
	if err == nil && fetchCtx.Err() != nil {
		// completed after the caller or the resource gave up
		err = fetchCtx.Err()
	}
	elapsed := time.Since(start)

	if err != nil {
		if callerCancelled(ctx, r.ctx, fetchErr) {
			r.logger.Debug("refresh cancelled",
				"resource", r.name,
				"duration_ms", elapsed.Milliseconds(),
			)
			return zero, err
		}
		r.Err.Set(err)
		r.logger.Warn("refresh failed",
			"resource", r.name,
			"duration_ms", elapsed.Milliseconds(),
			"error", err.Error(),
		)
		return zero, err
	}

	r.Value.Set(v)
	if r.Err.Get() != nil {
		r.Err.Set(nil)
	}
	r.logger.Debug("refresh completed",
		"resource", r.name,
		"duration_ms", elapsed.Milliseconds(),
	)
	return v, nil
}

// callerCancelled reports whether a refresh ended only because the caller's
// ctx was done while the resource stayed open. Such a refresh is abandoned,
// not failed, and is not recorded in Err.
func callerCancelled(ctx, lifetime context.Context, fetchErr error) bool {
	if ctx.Err() == nil || lifetime.Err() != nil {
		return false
	}
	return fetchErr == nil || errors.Is(fetchErr, context.Canceled) || errors.Is(fetchErr, context.DeadlineExceeded)
}

// safeFetch calls the fetcher with panic recovery. A panic is logged with
// its stack and a correlation ID, and returned as an error carrying the ID.
func (r *Resource[T]) safeFetch(ctx context.Context) (v T, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			correlationID := uuid.NewString()
			r.logger.Error("fetcher panic",
				"resource", r.name,
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", rec),
				"stack", string(debug.Stack()),
			)
			var zero T
			v = zero
			err = fmt.Errorf("fetcher panic (correlation_id: %s)", correlationID)
		}
	}()
	return r.fetch(ctx)
}
