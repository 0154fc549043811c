// Package poll provides bounded-retry polling for asynchronous state the
// harness cannot observe synchronously, such as a window the application
// registers some time after the script that requested it returned.
package poll

import (
	"context"
	"fmt"
	"time"
)

// DefaultInterval is used when Options.Interval is not set.
const DefaultInterval = 100 * time.Millisecond

// Options bounds a poll.
type Options struct {
	Interval    time.Duration // minimum spacing between evaluations
	Timeout     time.Duration // overall bound, measured from the first evaluation
	Description string        // what is being waited for, used in TimeoutError
}

// DefaultOptions returns the options used for window waits.
func DefaultOptions() Options {
	return Options{
		Interval: DefaultInterval,
		Timeout:  5 * time.Second,
	}
}

// TimeoutError reports a condition that never became true.
type TimeoutError struct {
	Description string
	Last        any // last value observed by the condition
	Attempts    int
	Elapsed     time.Duration
	Timeout     time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for %s (last observed: %v, %d attempts)",
		e.Elapsed.Round(time.Millisecond), e.Description, e.Last, e.Attempts)
}

// Condition observes some state and reports whether it is satisfied. A
// non-nil error aborts the poll.
type Condition[T any] func(ctx context.Context) (observed T, done bool, err error)

// Until evaluates cond until it reports done, returns an error, or the
// timeout elapses. cond is always evaluated at least once and never more
// often than opts.Interval. A timed-out poll returns no later than
// opts.Timeout + opts.Interval after it started, plus the latency of the
// final evaluation.
func Until[T any](ctx context.Context, opts Options, cond Condition[T]) (T, error) {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	start := time.Now()
	deadline := start.Add(opts.Timeout)

	timer := time.NewTimer(interval)
	defer timer.Stop()

	var last T
	for attempt := 1; ; attempt++ {
		observed, done, err := cond(ctx)
		if err != nil {
			return observed, err
		}
		last = observed
		if done {
			return observed, nil
		}

		if !time.Now().Before(deadline) {
			return last, &TimeoutError{
				Description: opts.Description,
				Last:        last,
				Attempts:    attempt,
				Elapsed:     time.Since(start),
				Timeout:     opts.Timeout,
			}
		}

		timer.Reset(interval)
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-timer.C:
		}
	}
}
