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

	"github.com/jpalmerr/livefetch/dashboard"
	"github.com/jpalmerr/livefetch/internal/fetch"
	"github.com/jpalmerr/livefetch/internal/scheduler"
	"github.com/jpalmerr/livefetch/internal/server"
	"github.com/jpalmerr/livefetch/internal/store"
)

const (
	defaultRefreshInterval = 30 * time.Second
	defaultPort            = 8080
	defaultMaxConcurrency  = 10
)

var (
	// ErrUnknownSource is returned for a source name the board does not own.
	ErrUnknownSource = errors.New("livefetch: unknown source")

	// ErrBoardRunning is returned by [Board.Start] while the board is
	// already running.
	ErrBoardRunning = errors.New("livefetch: board already running")
)

// Snapshot is the state of one board resource at a point in time, as
// passed to [WithChangeCallback] and served by the HTTP API.
type Snapshot = store.Snapshot

// Board keeps a set of [Source] values live and serves them on a dashboard.
//
// Each source is backed by a [Resource]. While the board runs, every
// resource is refreshed immediately, then on its interval, and whenever a
// dashboard user clicks its refresh button.
//
// The typical lifecycle is:
//
//	b, err := livefetch.New(livefetch.WithSource(src))
//	if err != nil {
//	    slog.Error("failed to create board", "error", err)
//	    os.Exit(1)
//	}
//	defer b.Close()
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	b.Start(ctx) // blocks until context cancelled
type Board struct {
	title           string
	sources         []Source
	refreshInterval time.Duration
	port            int
	maxConcurrency  int
	logger          *slog.Logger
	changeCallbacks []func(Snapshot)

	client    *fetch.Client
	resources map[string]*Resource[any]

	mu      sync.Mutex
	running bool
}

// New creates a [Board] with the given options.
//
// At least one source must be configured via [WithSource] or
// [WithSources], and source names must be unique. Other options default to:
//   - Refresh interval: 30 seconds
//   - Port: 8080
//   - Max concurrency: 10
//
// Returns an error if no sources are configured or any option is invalid.
func New(opts ...Option) (*Board, error) {
	cfg := &boardConfig{
		refreshInterval: defaultRefreshInterval,
		port:            defaultPort,
		maxConcurrency:  defaultMaxConcurrency,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if len(cfg.sources) == 0 {
		return nil, errors.New("at least one source is required")
	}

	seen := make(map[string]bool, len(cfg.sources))
	for _, src := range cfg.sources {
		if seen[src.name] {
			return nil, fmt.Errorf("duplicate source name: %q", src.name)
		}
		seen[src.name] = true
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	client := fetch.NewClient()
	resources := make(map[string]*Resource[any], len(cfg.sources))
	for _, src := range cfg.sources {
		resources[src.name] = NewResource(sourceFetcher(client, src), nil,
			WithName(src.name),
			WithResourceLogger(logger),
		)
	}

	return &Board{
		title:           cfg.title,
		sources:         cfg.sources,
		refreshInterval: cfg.refreshInterval,
		port:            cfg.port,
		maxConcurrency:  cfg.maxConcurrency,
		logger:          logger,
		changeCallbacks: cfg.changeCallbacks,
		client:          client,
		resources:       resources,
	}, nil
}

// Start refreshes sources and serves the dashboard until ctx is cancelled.
//
// During execution:
//
//   - every source is refreshed immediately, then at its interval
//   - the HTTP server listens on the configured port
//   - resource changes are published to the dashboard and change callbacks
//
// Returns nil on graceful shutdown, [ErrBoardRunning] if the board is
// already running, or an error if the HTTP server fails to start. A board
// may be started again after Start returns, until [Board.Close].
func (b *Board) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return ErrBoardRunning
	}
	b.running = true
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
	}()

	if ctx.Err() != nil {
		return nil
	}

	b.logger.Info("livefetch starting", "source_count", len(b.sources))
	b.logger.Info("refresh configured", "interval", b.refreshInterval.String())
	b.logger.Info("dashboard available", "url", fmt.Sprintf("http://localhost:%d", b.port))

	snapshots := store.NewMemoryStore()

	mirrors := make([]*mirror, 0, len(b.sources))
	for _, src := range b.sources {
		m := &mirror{
			src:       src,
			res:       b.resources[src.name],
			store:     snapshots,
			callbacks: b.changeCallbacks,
			logger:    b.logger,
		}
		m.attach()
		mirrors = append(mirrors, m)
	}

	sched := scheduler.New(b.jobs(), b.refreshInterval, b.maxConcurrency, b.logger)
	sched.Start(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for outcome := range sched.Results() {
			attrs := []any{
				"resource", outcome.Name,
				"duration_ms", outcome.Duration.Milliseconds(),
				"manual", outcome.Manual,
			}
			if outcome.Err != nil {
				attrs = append(attrs, "error", outcome.Err.Error())
			}
			b.logger.Debug("refresh finished", attrs...)
		}
	}()

	cleanup := func() {
		sched.Stop() // cancels running refreshes and closes results
		wg.Wait()
		for _, m := range mirrors {
			m.detach()
		}
	}

	trigger := server.TriggerFunc(func(name string) error {
		if _, ok := b.resources[name]; !ok {
			return server.ErrUnknownResource
		}
		if !sched.Trigger(name) {
			return errors.New("board is shutting down")
		}
		return nil
	})

	httpServer := server.NewServer(snapshots, trigger, b.port, dashboard.Assets, b.title, b.logger)
	if err := httpServer.Start(ctx); err != nil {
		cleanup()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	<-ctx.Done()
	cleanup()
	b.logger.Info("livefetch stopped")
	return nil
}

// jobs returns one scheduler job per source.
func (b *Board) jobs() []scheduler.Job {
	jobs := make([]scheduler.Job, len(b.sources))
	for i, src := range b.sources {
		res := b.resources[src.name]
		jobs[i] = scheduler.Job{
			Name:     src.name,
			Interval: src.interval,
			Run: func(ctx context.Context) error {
				_, err := res.Refresh(ctx)
				return err
			},
		}
	}
	return jobs
}

// Resource returns the resource backing the named source.
func (b *Board) Resource(name string) (*Resource[any], bool) {
	res, ok := b.resources[name]
	return res, ok
}

// Refresh refreshes the named source and waits for the result.
//
// Returns an error wrapping [ErrUnknownSource] if no source has that name.
func (b *Board) Refresh(ctx context.Context, name string) (any, error) {
	res, ok := b.resources[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, name)
	}
	return res.Refresh(ctx)
}

// Close cancels in-flight refreshes, closes every resource and releases
// idle connections. The board cannot be started again afterwards.
func (b *Board) Close() {
	for _, res := range b.resources {
		res.Close()
	}
	b.client.Close()
}

// Sources returns a copy of the configured sources.
func (b *Board) Sources() []Source {
	cp := make([]Source, len(b.sources))
	copy(cp, b.sources)
	return cp
}

// Port returns the configured HTTP port.
func (b *Board) Port() int {
	return b.port
}

// RefreshInterval returns the default interval between automatic refreshes.
func (b *Board) RefreshInterval() time.Duration {
	return b.refreshInterval
}

// mirror publishes a resource's three stores as snapshots.
type mirror struct {
	src       Source
	res       *Resource[any]
	store     store.Store
	callbacks []func(Snapshot)
	logger    *slog.Logger

	mu          sync.Mutex
	seenValue   bool
	refreshedAt time.Time
	unsubs      []func()

	// pending holds snapshots not yet handed to callbacks; draining is set
	// while one goroutine delivers them. Both are guarded by mu.
	pending  []Snapshot
	draining bool
}

func (m *mirror) attach() {
	m.unsubs = []func(){
		m.res.Value.Subscribe(func(any) {
			m.mu.Lock()
			// the first delivery is the current value, not a refresh
			if m.seenValue {
				m.refreshedAt = time.Now()
			}
			m.seenValue = true
			m.publishLocked()
		}),
		m.res.Fetching.Subscribe(func(bool) { m.publish() }),
		m.res.Err.Subscribe(func(error) { m.publish() }),
	}
}

func (m *mirror) detach() {
	for _, unsub := range m.unsubs {
		unsub()
	}
	m.unsubs = nil
}

func (m *mirror) publish() {
	m.mu.Lock()
	m.publishLocked()
}

// publishLocked reads all three stores so that the last publish after any
// change reflects the latest state, then unlocks mu and runs the change
// callbacks. mu must be held on entry.
func (m *mirror) publishLocked() {
	var errStr *string
	if err := m.res.Err.Get(); err != nil {
		s := err.Error()
		errStr = &s
	}

	snap := Snapshot{
		Name:        m.src.name,
		URL:         m.src.url,
		Labels:      copyMap(m.src.labels),
		Value:       m.res.Value.Get(),
		Fetching:    m.res.Fetching.Get(),
		Error:       errStr,
		RefreshedAt: m.refreshedAt,
		ChangedAt:   time.Now(),
	}
	m.store.Update(snap)

	if len(m.callbacks) == 0 {
		m.mu.Unlock()
		return
	}
	m.pending = append(m.pending, snap)
	if m.draining {
		// the goroutine already draining delivers it in order
		m.mu.Unlock()
		return
	}
	m.draining = true
	m.drainLocked()
}

// drainLocked delivers pending snapshots without holding mu, so callbacks
// may call back into the board. mu must be held on entry and is released
// on return.
func (m *mirror) drainLocked() {
	for len(m.pending) > 0 {
		snap := m.pending[0]
		m.pending = m.pending[1:]
		m.mu.Unlock()

		for _, cb := range m.callbacks {
			cbSnap := snap
			cbSnap.Labels = copyMap(m.src.labels)
			invokeCallbackSafe(cb, cbSnap, m.logger)
		}

		m.mu.Lock()
	}
	m.pending = nil
	m.draining = false
	m.mu.Unlock()
}

// invokeCallbackSafe calls a change callback with panic recovery.
func invokeCallbackSafe(cb func(Snapshot), snap Snapshot, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("change callback panicked",
				"resource", snap.Name,
				"correlation_id", uuid.NewString(),
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	cb(snap)
}
