// Package windows maps the logical context indices used by scenarios onto a
// session's window-handle set, and waits for asynchronously created windows
// to register.
//
// Indices are creation order: 0 is the main window, 1..N the content-bearing
// windows, N+1 onwards windows spawned during the run. The handle set is
// re-read on every selection because window creation and closure happen
// behind the harness's back.
package windows

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/webview-isolation/internal/harness"
	"github.com/GriffinCanCode/webview-isolation/internal/harness/poll"
	"github.com/GriffinCanCode/webview-isolation/internal/infrastructure/logging"
)

// Addresser selects contexts on one session.
type Addresser struct {
	session harness.Session
	poll    poll.Options
	logger  *logging.Logger
}

// New creates an Addresser. opts supplies the poll interval used by
// WaitForWindowCount; its timeout is the default when none is given.
func New(session harness.Session, opts poll.Options, logger *logging.Logger) *Addresser {
	if opts.Interval <= 0 {
		opts.Interval = poll.DefaultInterval
	}
	return &Addresser{
		session: session,
		poll:    opts,
		logger:  logging.OrNop(logger).Component("windows"),
	}
}

// Session returns the underlying session.
func (a *Addresser) Session() harness.Session {
	return a.session
}

// Select makes c the current context: the window by index and, when c names
// one, the embedded pane inside it.
func (a *Addresser) Select(ctx context.Context, c harness.Context) error {
	if err := a.session.SelectWindow(ctx, c.Window); err != nil {
		return fmt.Errorf("select %s: %w", c, err)
	}
	if !c.HasPane() {
		return nil
	}
	if err := a.session.SelectEmbeddedPane(ctx, c.Pane); err != nil {
		return fmt.Errorf("select %s: %w", c, err)
	}
	return nil
}

// Count returns the number of open top-level windows.
func (a *Addresser) Count(ctx context.Context) (int, error) {
	handles, err := a.session.ListWindows(ctx)
	if err != nil {
		return 0, fmt.Errorf("list windows: %w", err)
	}
	return len(handles), nil
}

// WaitForWindowCount polls until exactly expected windows are open. A zero
// timeout uses the Addresser's default. On timeout the returned
// *poll.TimeoutError carries the last observed count.
func (a *Addresser) WaitForWindowCount(ctx context.Context, expected int, timeout time.Duration) error {
	opts := a.poll
	if timeout > 0 {
		opts.Timeout = timeout
	}
	opts.Description = fmt.Sprintf("%d open windows", expected)

	start := time.Now()
	count, err := poll.Until(ctx, opts, func(ctx context.Context) (int, bool, error) {
		n, err := a.Count(ctx)
		return n, n == expected, err
	})
	if err != nil {
		a.logger.Warn("window count not reached",
			zap.Int("expected", expected),
			zap.Int("observed", count),
			zap.Error(err),
		)
		return err
	}

	a.logger.Debug("window count reached",
		zap.Int("count", count),
		zap.Duration("waited", time.Since(start)),
	)
	return nil
}
