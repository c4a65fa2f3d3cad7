package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/taskbridge/internal/engine"
)

func noopJob(ctx context.Context) (engine.Report, error) {
	return engine.Report{}, nil
}

func TestJobInvoke_RunsBody(t *testing.T) {
	var calls atomic.Int32
	j := NewJob("create", time.Minute, func(ctx context.Context) (engine.Report, error) {
		calls.Add(1)
		return engine.Report{Processed: 1}, nil
	})

	assert.True(t, j.Invoke(context.Background()))
	assert.True(t, j.Invoke(context.Background()))
	assert.Equal(t, int32(2), calls.Load())
}

func TestJobInvoke_OverlappingInvocationSkipsWithZeroWork(t *testing.T) {
	// The second invocation must do nothing at all while the first is
	// still running: no body call, no side effects.
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32

	j := NewJob("create", time.Minute, func(ctx context.Context) (engine.Report, error) {
		calls.Add(1)
		select {
		case <-started:
		default:
			close(started)
		}
		<-release
		return engine.Report{}, nil
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		j.Invoke(context.Background())
	}()

	<-started
	assert.False(t, j.Invoke(context.Background()), "overlapping invocation is skipped")
	assert.Equal(t, int32(1), calls.Load(), "skipped invocation never touches the body")

	close(release)
	wg.Wait()

	// Guard released: the job runs again afterwards.
	assert.True(t, j.Invoke(context.Background()))
	assert.Equal(t, int32(2), calls.Load())
}

func TestJobInvoke_ErrorReleasesGuard(t *testing.T) {
	fail := true
	j := NewJob("complete", time.Minute, func(ctx context.Context) (engine.Report, error) {
		if fail {
			return engine.Report{}, errors.New("central unreachable")
		}
		return engine.Report{}, nil
	})

	assert.True(t, j.Invoke(context.Background()), "failed run still counts as invoked")
	fail = false
	assert.True(t, j.Invoke(context.Background()), "guard released after a failed run")
}

func TestScheduler_IndependentJobsOverlap(t *testing.T) {
	// Two distinct jobs may run concurrently; the guard is per job.
	aStarted := make(chan struct{})
	bRan := make(chan struct{})
	release := make(chan struct{})

	a := NewJob("create", 10*time.Millisecond, func(ctx context.Context) (engine.Report, error) {
		select {
		case <-aStarted:
		default:
			close(aStarted)
		}
		<-release
		return engine.Report{}, nil
	})
	b := NewJob("purge", 10*time.Millisecond, func(ctx context.Context) (engine.Report, error) {
		select {
		case <-bRan:
		default:
			close(bRan)
		}
		return engine.Report{}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = New(a, b).Run(ctx)
	}()

	<-aStarted
	select {
	case <-bRan:
	case <-time.After(2 * time.Second):
		t.Fatal("job b never ran while job a was blocked")
	}

	close(release)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}

func TestScheduler_FiresOnInterval(t *testing.T) {
	var calls atomic.Int32
	j := NewJob("create", 5*time.Millisecond, func(ctx context.Context) (engine.Report, error) {
		calls.Add(1)
		return engine.Report{}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = New(j).Run(ctx)
	}()

	require.Eventually(t, func() bool { return calls.Load() >= 3 },
		2*time.Second, time.Millisecond, "immediate run plus at least two ticks")

	cancel()
	<-done
}

func TestScheduler_RunReturnsContextError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New(NewJob("create", time.Minute, noopJob)).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_DropsNonPositiveIntervals(t *testing.T) {
	s := New(
		NewJob("create", time.Minute, noopJob),
		NewJob("disabled", 0, noopJob),
	)
	require.Len(t, s.Jobs(), 1)
	assert.Equal(t, "create", s.Jobs()[0].Name())
}
