package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tick = 40 * time.Millisecond

func TestScheduleDeferredLoad_WaitsForDelay(t *testing.T) {
	t.Parallel()
	s := New()

	// The job is done long before the delay.
	done := make(chan struct{})
	s.RegisterInFlightJob(done)
	close(done)

	start := time.Now()
	var ran atomic.Bool
	err := s.ScheduleDeferredLoad(context.Background(), 3*tick, func(context.Context) error {
		ran.Store(true)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran.Load())
	assert.GreaterOrEqual(t, time.Since(start), 3*tick)
}

func TestScheduleDeferredLoad_WaitsForJobPastDelay(t *testing.T) {
	t.Parallel()
	s := New()

	var finished atomic.Bool
	job := s.Go(context.Background(), func(context.Context) error {
		time.Sleep(4 * tick)
		finished.Store(true)
		return nil
	})

	err := s.ScheduleDeferredLoad(context.Background(), tick, func(context.Context) error {
		assert.True(t, finished.Load(), "load started before the job finished")
		return nil
	})
	require.NoError(t, err)
	<-job.Done()
	assert.NoError(t, job.Err())
}

func TestScheduleDeferredLoad_CancelledJobDoesNotBlock(t *testing.T) {
	t.Parallel()
	s := New()

	jobCtx, cancel := context.WithCancel(context.Background())
	job := s.Go(jobCtx, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	time.AfterFunc(2*tick, cancel)

	ctx, stop := context.WithTimeout(context.Background(), 50*tick)
	defer stop()
	require.NoError(t, s.WaitDeferred(ctx, tick))
	assert.ErrorIs(t, job.Err(), context.Canceled)
}

func TestScheduleDeferredLoad_LateJobsAreNotJoined(t *testing.T) {
	t.Parallel()
	s := New()

	first := make(chan struct{})
	s.RegisterInFlightJob(first)
	time.AfterFunc(4*tick, func() { close(first) })

	// Registered after the deadline while the load waits on the first job;
	// it never finishes.
	never := make(chan struct{})
	time.AfterFunc(2*tick, func() { s.RegisterInFlightJob(never) })

	ctx, stop := context.WithTimeout(context.Background(), 50*tick)
	defer stop()
	require.NoError(t, s.WaitDeferred(ctx, tick))
	assert.Equal(t, 1, s.Pending())
}

func TestWaitDeferred_CancelLeavesJobsRunning(t *testing.T) {
	t.Parallel()
	s := New()

	release := make(chan struct{})
	job := s.Go(context.Background(), func(context.Context) error {
		<-release
		return errors.New("boom")
	})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(2*tick, cancel)
	err := s.WaitDeferred(ctx, tick)
	require.ErrorIs(t, err, context.Canceled)

	select {
	case <-job.Done():
		t.Fatal("job stopped with the wait")
	default:
	}
	assert.Equal(t, 1, s.Pending())

	close(release)
	assert.EqualError(t, job.Wait(context.Background()), "boom")
}

func TestWaitDeferred_CancelDuringDelay(t *testing.T) {
	t.Parallel()
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran bool
	err := s.ScheduleDeferredLoad(ctx, time.Hour, func(context.Context) error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran)
}

func TestPending_FinishedJobsLeave(t *testing.T) {
	t.Parallel()
	s := New()
	a := make(chan struct{})
	b := make(chan struct{})
	idA := s.RegisterInFlightJob(a)
	idB := s.RegisterInFlightJob(b)
	assert.NotEqual(t, idA, idB)
	assert.Equal(t, 2, s.Pending())

	close(a)
	assert.Eventually(t, func() bool { return s.Pending() == 1 }, time.Second, time.Millisecond)
	close(b)
	assert.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.jobs) == 0
	}, time.Second, time.Millisecond)
}

func TestScheduleDeferredLoad_ReturnsLoadError(t *testing.T) {
	t.Parallel()
	s := New()
	want := errors.New("load failed")
	err := s.ScheduleDeferredLoad(context.Background(), 0, func(context.Context) error { return want })
	assert.ErrorIs(t, err, want)
}
