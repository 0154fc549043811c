package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/webview-isolation/internal/harness"
	"github.com/GriffinCanCode/webview-isolation/internal/harness/harnesstest"
)

func TestSubmitRunsTask(t *testing.T) {
	s := harnesstest.NewFakeSession(3, 1)
	q := New(s, nil, 0)
	defer q.Close()

	got, err := q.Do(context.Background(), "list", func(ctx context.Context, s harness.Session) (any, error) {
		handles, err := s.ListWindows(ctx)
		return len(handles), err
	})

	require.NoError(t, err)
	assert.Equal(t, 3, got)
}

func TestConcurrentSubmissionsNeverInterleave(t *testing.T) {
	s := harnesstest.NewFakeSession(3, 1)
	s.Latency = 2 * time.Millisecond
	s.Exec = func(current harness.Context, script string, args []any) (any, error) {
		return current.Window, nil
	}

	q := New(s, nil, 0)
	defer q.Close()

	ctx := context.Background()
	var futures []*Future
	for i := 0; i < 12; i++ {
		window := i % 3
		futures = append(futures, q.Submit(ctx, fmt.Sprintf("probe-%d", i),
			func(ctx context.Context, s harness.Session) (any, error) {
				if err := s.SelectWindow(ctx, window); err != nil {
					return nil, err
				}
				return s.Execute(ctx, "return 1;")
			}))
	}

	for i, f := range futures {
		got, err := f.Await(ctx)
		require.NoError(t, err)
		assert.Equal(t, i%3, got, "task %d observed another task's selection", i)
	}
	assert.Zero(t, s.Overlaps())
}

func TestSubmitFromManyGoroutines(t *testing.T) {
	s := harnesstest.NewFakeSession(2, 0)
	q := New(s, nil, 2)
	defer q.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.Do(context.Background(), "list", func(ctx context.Context, s harness.Session) (any, error) {
				return s.ListWindows(ctx)
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Zero(t, s.Overlaps())
	assert.Len(t, s.Calls(), 20)
}

func TestSubmitAfterClose(t *testing.T) {
	q := New(harnesstest.NewFakeSession(1, 0), nil, 0)
	q.Close()
	q.Close()

	_, err := q.Do(context.Background(), "late", func(ctx context.Context, s harness.Session) (any, error) {
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestCloseDrainsAcceptedTasks(t *testing.T) {
	q := New(harnesstest.NewFakeSession(1, 0), nil, 4)

	f := q.Submit(context.Background(), "slow", func(ctx context.Context, s harness.Session) (any, error) {
		time.Sleep(20 * time.Millisecond)
		return "done", nil
	})
	q.Close()

	got, err := f.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "done", got)
}

func TestTaskPanicBecomesError(t *testing.T) {
	q := New(harnesstest.NewFakeSession(1, 0), nil, 0)
	defer q.Close()

	_, err := q.Do(context.Background(), "bad", func(ctx context.Context, s harness.Session) (any, error) {
		panic("nil window")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task bad panicked")

	// The worker survives the panic.
	got, err := q.Do(context.Background(), "good", func(ctx context.Context, s harness.Session) (any, error) {
		return 1, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, got)
}

func TestCancelledTaskIsSkipped(t *testing.T) {
	q := New(harnesstest.NewFakeSession(1, 0), nil, 4)
	defer q.Close()

	release := make(chan struct{})
	blocker := q.Submit(context.Background(), "blocker", func(ctx context.Context, s harness.Session) (any, error) {
		<-release
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	ran := false
	skipped := q.Submit(ctx, "skipped", func(ctx context.Context, s harness.Session) (any, error) {
		ran = true
		return nil, nil
	})
	cancel()
	close(release)

	_, err := blocker.Await(context.Background())
	require.NoError(t, err)
	_, err = skipped.Await(context.Background())
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, ran)
}

func TestAwaitHonoursContext(t *testing.T) {
	q := New(harnesstest.NewFakeSession(1, 0), nil, 0)
	defer q.Close()

	release := make(chan struct{})
	defer close(release)
	f := q.Submit(context.Background(), "stuck", func(ctx context.Context, s harness.Session) (any, error) {
		<-release
		return nil, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "stuck", f.Name())
}
