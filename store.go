package livefetch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
)

// watchBuffer is the channel capacity used by [Store.Watch].
const watchBuffer = 16

// Store is an observable value container.
//
// A Store holds exactly one current value and an ordered list of
// subscribers. Every write replaces the value and then synchronously
// notifies the subscribers that were registered at the time of the write,
// in registration order. Notifications of one Store are serialized, so
// subscribers observe values in the order they were written.
//
// A Store is created with [NewStore] and torn down with [Store.Close]. Its
// lifetime is owned by whoever constructed it, not by any subscriber.
//
// Subscribers run on the writer's goroutine. They may call [Store.Get] and
// remove other subscribers, but must not call their own unsubscribe
// function or Set, Update, Subscribe, Watch or Close on the Store that is
// notifying them. A subscriber that wants to stop itself calls its
// unsubscribe function on a new goroutine, or uses [Store.Watch] with a
// cancellable context.
type Store[T any] struct {
	// notifyMu serializes writes together with their notification loop.
	notifyMu sync.Mutex

	mu     sync.Mutex
	value  T
	subs   []*subscription[T]
	closed bool

	logger *slog.Logger
}

type subscription[T any] struct {
	fn      func(T)
	onClose func()

	// callMu is held while fn runs and guards active, so removal from
	// another goroutine waits for an invocation in progress.
	callMu sync.Mutex
	active bool
}

// StoreOption configures a [Store] during construction.
type StoreOption func(*storeConfig)

type storeConfig struct {
	logger *slog.Logger
}

// WithStoreLogger sets the logger used to report panicking subscribers.
// A nil logger is ignored; [slog.Default] is used when unset.
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(cfg *storeConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// NewStore creates a [Store] holding initial.
func NewStore[T any](initial T, opts ...StoreOption) *Store[T] {
	cfg := &storeConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	return &Store[T]{
		value:  initial,
		logger: cfg.logger,
	}
}

// Get returns the current value. It has no side effects.
func (s *Store[T]) Get() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Set replaces the current value and notifies all current subscribers in
// registration order before returning.
//
// After Close, Set still replaces the value but notifies nobody.
func (s *Store[T]) Set(v T) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.value = v
	subs := s.activeLocked()
	s.mu.Unlock()

	s.notify(subs, v)
}

// Update applies fn to the current value and stores the result, notifying
// subscribers like [Store.Set]. The read and the write happen atomically
// with respect to other writers.
func (s *Store[T]) Update(fn func(T) T) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	v := fn(s.value)
	s.value = v
	subs := s.activeLocked()
	s.mu.Unlock()

	s.notify(subs, v)
}

// Subscribe registers fn and immediately invokes it once with the current
// value, so late subscribers see the current state.
//
// The returned function removes the subscription. If fn is running on
// another goroutine, it waits for fn to return. Once it returns, fn is not
// invoked again; calling it more than once is a no-op. A nil fn is ignored.
//
// Subscribing to a closed Store delivers the current value once and
// returns a no-op function.
func (s *Store[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	return s.subscribe(fn, nil)
}

// Watch returns a channel that receives the current value and every
// subsequent write.
//
// The channel is buffered and delivery is non-blocking: a reader that falls
// behind misses values rather than blocking writers. The channel is closed
// when ctx is done or the Store is closed.
func (s *Store[T]) Watch(ctx context.Context) <-chan T {
	ch := make(chan T, watchBuffer)

	var once sync.Once
	var stop func() bool
	closeCh := func() {
		once.Do(func() {
			if stop != nil {
				stop()
			}
			close(ch)
		})
	}

	send := func(v T) {
		select {
		case ch <- v:
		default:
			// slow reader, drop
		}
	}

	s.notifyMu.Lock()
	unsubscribe := s.subscribeLocked(send, closeCh)
	stop = context.AfterFunc(ctx, func() {
		// close under notifyMu so no send can race the close
		s.notifyMu.Lock()
		defer s.notifyMu.Unlock()
		unsubscribe()
		closeCh()
	})
	s.notifyMu.Unlock()

	return ch
}

// Len returns the number of active subscribers.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Close removes every subscriber and closes every channel returned by
// [Store.Watch]. Close is idempotent.
func (s *Store[T]) Close() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	for _, sub := range subs {
		// notifyMu is held, so no invocation is in progress
		sub.callMu.Lock()
		sub.active = false
		sub.callMu.Unlock()
		if sub.onClose != nil {
			sub.onClose()
		}
	}
}

func (s *Store[T]) subscribe(fn func(T), onClose func()) func() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	return s.subscribeLocked(fn, onClose)
}

// subscribeLocked must be called with notifyMu held.
func (s *Store[T]) subscribeLocked(fn func(T), onClose func()) func() {
	sub := &subscription[T]{fn: fn, onClose: onClose}

	s.mu.Lock()
	current := s.value
	if s.closed {
		s.mu.Unlock()
		s.invokeSafe(fn, current)
		if onClose != nil {
			onClose()
		}
		return func() {}
	}
	sub.active = true
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	s.invokeSafe(fn, current)

	return func() { s.remove(sub) }
}

func (s *Store[T]) remove(sub *subscription[T]) {
	sub.callMu.Lock()
	wasActive := sub.active
	sub.active = false
	sub.callMu.Unlock()
	if !wasActive {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, candidate := range s.subs {
		if candidate == sub {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			return
		}
	}
}

// activeLocked returns a copy of the subscriber list. mu must be held.
func (s *Store[T]) activeLocked() []*subscription[T] {
	if len(s.subs) == 0 {
		return nil
	}
	subs := make([]*subscription[T], len(s.subs))
	copy(subs, s.subs)
	return subs
}

func (s *Store[T]) notify(subs []*subscription[T], v T) {
	for _, sub := range subs {
		s.invokeActive(sub, v)
	}
}

// invokeActive calls sub unless it has been removed, holding callMu for
// the whole call.
func (s *Store[T]) invokeActive(sub *subscription[T], v T) {
	sub.callMu.Lock()
	defer sub.callMu.Unlock()
	// a subscriber earlier in the loop may have removed this one
	if !sub.active {
		return
	}
	s.invokeSafe(sub.fn, v)
}

// invokeSafe calls a subscriber with panic recovery. Panics are logged with
// a correlation ID and do not propagate to the writer.
func (s *Store[T]) invokeSafe(fn func(T), v T) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("store subscriber panicked",
				"correlation_id", uuid.NewString(),
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn(v)
}
