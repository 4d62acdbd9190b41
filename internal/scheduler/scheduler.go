// Package scheduler orders a wide-scope graph load after the narrower loads
// that were in flight when it was scheduled.
//
// A narrower load registers itself with RegisterInFlightJob (or runs through
// Go). ScheduleDeferredLoad then waits for a minimum delay and, once the
// delay's deadline passes, for every job registered up to that moment. Jobs
// registered later are not waited on. A job counts as finished when its done
// channel is closed, whatever its outcome.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Scheduler tracks in-flight jobs. It is safe for concurrent use.
type Scheduler struct {
	mu     sync.Mutex
	jobs   map[uuid.UUID]<-chan struct{}
	logger *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// New returns a scheduler with no registered jobs.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		jobs:   make(map[uuid.UUID]<-chan struct{}),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterInFlightJob adds a job whose completion is signalled by closing
// done. It may be called any number of times. The job leaves the set when
// done is closed.
func (s *Scheduler) RegisterInFlightJob(done <-chan struct{}) uuid.UUID {
	id := uuid.New()
	s.mu.Lock()
	s.jobs[id] = done
	s.mu.Unlock()

	go func() {
		<-done
		s.mu.Lock()
		delete(s.jobs, id)
		s.mu.Unlock()
	}()
	return id
}

// Job is a function started with Go.
type Job struct {
	ID   uuid.UUID
	done chan struct{}
	err  error
}

// Done is closed when the job returns.
func (j *Job) Done() <-chan struct{} { return j.done }

// Err returns the job's error. It is valid after Done is closed.
func (j *Job) Err() error { return j.err }

// Wait blocks until the job returns or ctx ends. Ending ctx does not stop
// the job.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return j.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Go runs fn in a new goroutine as a registered in-flight job. Cancelling
// ctx cancels fn; the job then finishes like any other.
func (s *Scheduler) Go(ctx context.Context, fn func(context.Context) error) *Job {
	j := &Job{done: make(chan struct{})}
	j.ID = s.RegisterInFlightJob(j.done)
	go func() {
		defer close(j.done)
		j.err = fn(ctx)
	}()
	return j
}

// Pending returns the number of registered jobs that have not finished.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, done := range s.jobs {
		select {
		case <-done:
		default:
			n++
		}
	}
	return n
}

// snapshot returns the done channels of the jobs registered so far.
func (s *Scheduler) snapshot() map[uuid.UUID]<-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uuid.UUID]<-chan struct{}, len(s.jobs))
	for id, done := range s.jobs {
		out[id] = done
	}
	return out
}

// WaitDeferred blocks until delay has elapsed and every job registered
// before the delay's deadline has finished. It returns ctx's error if ctx
// ends first; the jobs keep running.
func (s *Scheduler) WaitDeferred(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}

	joined := s.snapshot()
	if len(joined) > 0 {
		s.logger.Debug("deferred load waiting for jobs", "component", "scheduler", "count", len(joined))
	}
	for id, done := range joined {
		select {
		case <-done:
		case <-ctx.Done():
			return fmt.Errorf("waiting for job %s: %w", id, ctx.Err())
		}
	}
	return nil
}

// ScheduleDeferredLoad runs load once WaitDeferred returns. load receives
// ctx and its error is returned as is.
func (s *Scheduler) ScheduleDeferredLoad(ctx context.Context, delay time.Duration, load func(context.Context) error) error {
	if err := s.WaitDeferred(ctx, delay); err != nil {
		return err
	}
	return load(ctx)
}
