package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/webview-isolation/internal/harness"
	"github.com/GriffinCanCode/webview-isolation/internal/infrastructure/logging"
	"github.com/GriffinCanCode/webview-isolation/internal/webdriver"
)

// ErrSessionStopped is returned by commands issued after Stop.
var ErrSessionStopped = errors.New("session stopped")

// Session adapts a WebDriver session to harness.Session.
type Session struct {
	wd     *webdriver.Session
	logger *logging.Logger
	reap   func(ctx context.Context) error

	stopped  atomic.Bool
	stopOnce sync.Once
	stopErr  error
}

var _ harness.Session = (*Session)(nil)

// NewSession wraps an existing WebDriver session.
func NewSession(wd *webdriver.Session, logger *logging.Logger) *Session {
	return &Session{
		wd:     wd,
		logger: logging.OrNop(logger).Component("remote").WithFields(zap.String("session", wd.ID)),
	}
}

// ID returns the WebDriver session id.
func (s *Session) ID() string {
	return s.wd.ID
}

func (s *Session) live() error {
	if s.stopped.Load() {
		return ErrSessionStopped
	}
	return nil
}

// ListWindows implements harness.Session.
func (s *Session) ListWindows(ctx context.Context) ([]string, error) {
	if err := s.live(); err != nil {
		return nil, err
	}
	return s.wd.WindowHandles(ctx)
}

// SelectWindow implements harness.Session. The handle set is re-read on
// every call.
func (s *Session) SelectWindow(ctx context.Context, index int) error {
	handles, err := s.ListWindows(ctx)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(handles) {
		return &harness.IndexOutOfRangeError{Index: index, Count: len(handles)}
	}

	err = s.wd.SwitchToWindow(ctx, handles[index])
	if webdriver.IsNoSuchWindow(err) {
		// Closed between listing and switching.
		return &harness.IndexOutOfRangeError{Index: index, Count: len(handles) - 1}
	}
	return err
}

// SelectEmbeddedPane implements harness.Session.
func (s *Session) SelectEmbeddedPane(ctx context.Context, paneIndex int) error {
	if err := s.live(); err != nil {
		return err
	}
	err := s.wd.SwitchToFrame(ctx, paneIndex)
	if webdriver.IsNoSuchFrame(err) {
		return &harness.NoSuchPaneError{Pane: paneIndex, Err: err}
	}
	return err
}

// Execute implements harness.Session.
func (s *Session) Execute(ctx context.Context, script string, args ...any) (any, error) {
	if err := s.live(); err != nil {
		return nil, err
	}
	value, err := s.wd.ExecuteScript(ctx, script, args)
	if err != nil {
		var wdErr *webdriver.Error
		if errors.As(err, &wdErr) && wdErr.Code == webdriver.CodeJavaScript {
			return nil, &harness.ExecutionError{Script: script, Message: wdErr.Message}
		}
		return nil, err
	}
	return value, nil
}

// GetAttribute implements harness.Session. Elements without the attribute
// contribute an empty string.
func (s *Session) GetAttribute(ctx context.Context, selector, name string) ([]string, error) {
	if err := s.live(); err != nil {
		return nil, err
	}
	ids, err := s.wd.FindElements(ctx, webdriver.ByCSS, selector)
	if err != nil {
		return nil, fmt.Errorf("find %q: %w", selector, err)
	}

	values := make([]string, 0, len(ids))
	for _, id := range ids {
		v, _, err := s.wd.ElementAttribute(ctx, id, name)
		if err != nil {
			return nil, fmt.Errorf("read %s of %q: %w", name, selector, err)
		}
		values = append(values, v)
	}
	return values, nil
}

// Navigate implements harness.Session.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.live(); err != nil {
		return err
	}
	return s.wd.NavigateTo(ctx, url)
}

// Stop deletes the WebDriver session, which quits the application, then runs
// the reaper when one is configured. Only the first call has any effect.
func (s *Session) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		err := s.wd.Delete(ctx)
		if err != nil {
			s.logger.Warn("session delete failed", zap.Error(err))
		}
		if s.reap != nil {
			if reapErr := s.reap(ctx); reapErr != nil {
				s.logger.Warn("reaper failed", zap.Error(reapErr))
				err = errors.Join(err, fmt.Errorf("reap: %w", reapErr))
			}
		}
		s.stopErr = err
		if err == nil {
			s.logger.Info("session stopped")
		}
	})
	return s.stopErr
}
