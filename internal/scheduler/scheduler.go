package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// minTick floors the scheduler tick to prevent CPU thrashing.
const minTick = time.Second

// Job is a named unit of periodic work.
type Job struct {
	// Name identifies the job. Names must be unique within a Scheduler.
	Name string

	// Interval is how often the job runs. If 0, the scheduler's default
	// interval is used.
	Interval time.Duration

	// Run performs the work. It must honour ctx cancellation.
	Run func(ctx context.Context) error
}

// Outcome reports one completed run of a [Job].
type Outcome struct {
	// Name is the job name.
	Name string

	// Err is the error returned by Run, or a panic converted to an error.
	Err error

	// Duration is how long Run took.
	Duration time.Duration

	// FinishedAt is when Run returned.
	FinishedAt time.Time

	// Manual is true for runs started by [Scheduler.Trigger].
	Manual bool
}

// Scheduler runs jobs immediately on start and then at their intervals.
//
// Scheduler uses a tick-and-check pattern: it ticks at the GCD of all job
// intervals and runs only jobs that are due, through a worker pool bounded
// by maxConcurrency. Outcomes are emitted on [Scheduler.Results].
//
// All lifecycle methods are safe for concurrent use.
type Scheduler struct {
	jobs           []Job
	interval       time.Duration
	maxConcurrency int
	results        chan Outcome
	logger         *slog.Logger
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup

	mu        sync.Mutex
	started   bool
	stopped   bool
	closeOnce sync.Once

	lastRunAt map[string]time.Time
	tick      time.Duration
}

// New creates a [Scheduler].
//
// interval is the default for jobs without their own. maxConcurrency bounds
// how many jobs run at once during one tick; values below 1 are treated
// as 1. Manual triggers are not bounded by it.
func New(jobs []Job, interval time.Duration, maxConcurrency int, logger *slog.Logger) *Scheduler {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		jobs:           jobs,
		interval:       interval,
		maxConcurrency: maxConcurrency,
		results:        make(chan Outcome, len(jobs)+1),
		logger:         logger,
	}
}

// Results returns the channel of job outcomes.
//
// The channel is closed by [Scheduler.Stop] once every run has returned.
// Consumers should read until it is closed.
func (s *Scheduler) Results() <-chan Outcome {
	return s.results
}

// Tick returns the interval the scheduler ticks at: the GCD of all job
// intervals, floored at one second.
func (s *Scheduler) Tick() time.Duration {
	if len(s.jobs) == 0 {
		return maxDuration(s.interval, minTick)
	}

	result := s.intervalOf(s.jobs[0])
	for _, job := range s.jobs[1:] {
		result = gcdDuration(result, s.intervalOf(job))
	}
	return maxDuration(result, minTick)
}

func (s *Scheduler) intervalOf(job Job) time.Duration {
	if job.Interval > 0 {
		return job.Interval
	}
	return s.interval
}

func gcdDuration(a, b time.Duration) time.Duration {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

// Start runs every job once, then keeps running due jobs until
// [Scheduler.Stop] is called or ctx is cancelled.
//
// Start is non-blocking and idempotent. If Stop was called first, Start is
// a no-op. A nil ctx is treated as context.Background().
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.lastRunAt = make(map[string]time.Time, len(s.jobs))
	s.tick = s.Tick()

	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	runCtx := s.ctx
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()

		s.runDue(runCtx, true)

		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.runDue(runCtx, false)
			}
		}
	}()
}

// Trigger runs the named job now, outside the tick schedule, and reports
// its outcome on Results with Manual set. It returns false if the job is
// unknown or the scheduler is not running.
//
// Triggered runs are not deduplicated: a trigger while the same job is
// already running starts an overlapping run.
func (s *Scheduler) Trigger(name string) bool {
	job, ok := s.find(name)
	if !ok {
		return false
	}

	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return false
	}
	runCtx := s.ctx
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.emit(runCtx, s.runJob(runCtx, job, true))
	}()
	return true
}

func (s *Scheduler) find(name string) (Job, bool) {
	for _, job := range s.jobs {
		if job.Name == name {
			return job, true
		}
	}
	return Job{}, false
}

// Stop cancels the scheduler, waits for all runs to return, and closes the
// results channel. Stop is idempotent and safe to call before Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		if s.cancel != nil {
			s.cancel()
		}
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.closeOnce.Do(func() { close(s.results) })
}

// runDue runs jobs that are due. If immediate is true, every job runs.
//
// lastRunAt is updated when a run STARTS, so the effective interval of a
// slow job is its interval plus its run time.
func (s *Scheduler) runDue(ctx context.Context, immediate bool) {
	now := time.Now()
	due := make([]Job, 0, len(s.jobs))

	s.mu.Lock()
	for _, job := range s.jobs {
		last, seen := s.lastRunAt[job.Name]
		if immediate || !seen || now.Sub(last) >= s.intervalOf(job) {
			due = append(due, job)
			s.lastRunAt[job.Name] = now
		}
	}
	s.mu.Unlock()

	if len(due) == 0 {
		return
	}
	s.runJobs(ctx, due)
}

// runJobs runs a batch of jobs concurrently, bounded by maxConcurrency.
func (s *Scheduler) runJobs(ctx context.Context, jobs []Job) {
	queue := make(chan Job, len(jobs))

	var wg sync.WaitGroup
	for i := 0; i < s.maxConcurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range queue {
				if !s.emit(ctx, s.runJob(ctx, job, false)) {
					return
				}
			}
		}()
	}

	for _, job := range jobs {
		select {
		case queue <- job:
		case <-ctx.Done():
			close(queue)
			wg.Wait()
			return
		}
	}
	close(queue)

	wg.Wait()
}

// emit sends an outcome unless ctx is done first.
func (s *Scheduler) emit(ctx context.Context, outcome Outcome) bool {
	select {
	case s.results <- outcome:
		return true
	case <-ctx.Done():
		return false
	}
}

// runJob runs one job with panic recovery. A panic is logged with its
// stack and a correlation ID and reported as the outcome's error.
func (s *Scheduler) runJob(ctx context.Context, job Job, manual bool) (outcome Outcome) {
	start := time.Now()
	outcome = Outcome{Name: job.Name, Manual: manual}

	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			s.logger.Error("job panic",
				"job", job.Name,
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			outcome.Err = fmt.Errorf("job panic (correlation_id: %s)", correlationID)
		}
		outcome.Duration = time.Since(start)
		outcome.FinishedAt = time.Now()
	}()

	outcome.Err = job.Run(ctx)
	return outcome
}
