package windows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/webview-isolation/internal/harness"
	"github.com/GriffinCanCode/webview-isolation/internal/harness/harnesstest"
	"github.com/GriffinCanCode/webview-isolation/internal/harness/poll"
)

func fastPoll() poll.Options {
	return poll.Options{Interval: 5 * time.Millisecond, Timeout: 100 * time.Millisecond}
}

func TestSelectWindowAndPane(t *testing.T) {
	s := harnesstest.NewFakeSession(3, 1)
	s.Exec = func(current harness.Context, script string, args []any) (any, error) {
		return current.String(), nil
	}
	a := New(s, fastPoll(), nil)
	ctx := context.Background()

	require.NoError(t, a.Select(ctx, harness.PaneContext(2, 0)))
	got, err := s.Execute(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "window[2]/pane[0]", got)

	require.NoError(t, a.Select(ctx, harness.WindowContext(1)))
	got, err = s.Execute(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "window[1]", got)
}

func TestSelectErrors(t *testing.T) {
	a := New(harnesstest.NewFakeSession(3, 1), fastPoll(), nil)
	ctx := context.Background()

	err := a.Select(ctx, harness.WindowContext(3))
	var outOfRange *harness.IndexOutOfRangeError
	require.ErrorAs(t, err, &outOfRange)
	assert.Equal(t, 3, outOfRange.Count)

	err = a.Select(ctx, harness.PaneContext(0, 0))
	var noPane *harness.NoSuchPaneError
	assert.ErrorAs(t, err, &noPane)
	assert.True(t, harness.IsInfrastructure(err))
}

func TestWaitForWindowCountAlreadySatisfied(t *testing.T) {
	s := new(harnesstest.MockSession)
	s.On("ListWindows", mock.Anything).Return([]string{"a", "b", "c"}, nil).Once()
	a := New(s, poll.Options{Interval: time.Second, Timeout: time.Second}, nil)

	start := time.Now()
	require.NoError(t, a.WaitForWindowCount(context.Background(), 3, 0))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	s.AssertExpectations(t)
}

func TestWaitForWindowCountSpawnedLater(t *testing.T) {
	s := harnesstest.NewFakeSession(3, 1)
	a := New(s, fastPoll(), nil)

	go func() {
		time.Sleep(20 * time.Millisecond)
		s.AddWindow()
	}()

	require.NoError(t, a.WaitForWindowCount(context.Background(), 4, time.Second))
	n, err := a.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestWaitForWindowCountTimeout(t *testing.T) {
	a := New(harnesstest.NewFakeSession(3, 1), fastPoll(), nil)

	start := time.Now()
	err := a.WaitForWindowCount(context.Background(), 4, 50*time.Millisecond)

	var timeout *poll.TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, 3, timeout.Last)
	assert.Contains(t, err.Error(), "4 open windows")
	assert.Less(t, time.Since(start), 50*time.Millisecond+5*time.Millisecond+150*time.Millisecond)
	assert.False(t, harness.IsInfrastructure(err))
}

func TestWaitForWindowCountListFailure(t *testing.T) {
	s := new(harnesstest.MockSession)
	s.On("ListWindows", mock.Anything).Return(nil, errors.New("invalid session id")).Once()
	a := New(s, fastPoll(), nil)

	err := a.WaitForWindowCount(context.Background(), 4, time.Second)
	require.Error(t, err)
	assert.True(t, harness.IsInfrastructure(err))
	s.AssertExpectations(t)
}
