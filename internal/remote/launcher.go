package remote

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/webview-isolation/internal/fixture"
	"github.com/GriffinCanCode/webview-isolation/internal/harness"
	"github.com/GriffinCanCode/webview-isolation/internal/harness/poll"
	"github.com/GriffinCanCode/webview-isolation/internal/harness/windows"
	"github.com/GriffinCanCode/webview-isolation/internal/infrastructure/logging"
	"github.com/GriffinCanCode/webview-isolation/internal/webdriver"
)

// Launch phases reported in harness.LaunchError.
const (
	PhaseConfig  = "config"
	PhaseDriver  = "driver"
	PhaseSession = "session"
	PhaseWindows = "windows"
)

// LaunchConfig describes how to start the application.
type LaunchConfig struct {
	// ConfigPath is where the fixture document is written. Empty skips the
	// write, for applications configured some other way.
	ConfigPath string
	Binary     string
	Args       []string

	// StartupTimeout bounds the whole launch, all phases together.
	StartupTimeout time.Duration
	PollInterval   time.Duration

	// ExpectedWindows is the window count that means "ready". Defaults to
	// the main window plus one per team.
	ExpectedWindows func(fixture.Document) int

	// Reap runs after the session is deleted, e.g. to kill application
	// processes the driver left behind.
	Reap func(ctx context.Context) error
}

// DefaultExpectedWindows is one main window plus one per team.
func DefaultExpectedWindows(doc fixture.Document) int {
	return 1 + len(doc.Teams)
}

// Launcher starts sessions through a WebDriver client.
type Launcher struct {
	driver *webdriver.Client
	cfg    LaunchConfig
	logger *logging.Logger
}

var _ harness.Launcher = (*Launcher)(nil)

// NewLauncher creates a launcher.
func NewLauncher(driver *webdriver.Client, cfg LaunchConfig, logger *logging.Logger) *Launcher {
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = 10 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = poll.DefaultInterval
	}
	if cfg.ExpectedWindows == nil {
		cfg.ExpectedWindows = DefaultExpectedWindows
	}
	return &Launcher{
		driver: driver,
		cfg:    cfg,
		logger: logging.OrNop(logger).Component("launcher"),
	}
}

// Start implements harness.Launcher.
func (l *Launcher) Start(ctx context.Context, doc fixture.Document) (harness.Session, error) {
	start := time.Now()
	deadline := start.Add(l.cfg.StartupTimeout)

	// The poll loops time out on their own; the context deadline is a
	// backstop for commands that hang.
	ctx, cancel := context.WithDeadline(ctx, deadline.Add(l.cfg.PollInterval))
	defer cancel()

	if err := doc.Validate(); err != nil {
		return nil, &harness.LaunchError{Phase: PhaseConfig, Err: err}
	}
	if l.cfg.ConfigPath != "" {
		if err := doc.Write(l.cfg.ConfigPath); err != nil {
			return nil, &harness.LaunchError{Phase: PhaseConfig, Err: err}
		}
		l.logger.Debug("config written", zap.String("path", l.cfg.ConfigPath), zap.Int("teams", len(doc.Teams)))
	}

	if err := l.waitForDriver(ctx, deadline); err != nil {
		return nil, &harness.LaunchError{Phase: PhaseDriver, Err: err}
	}

	wd, err := l.driver.NewSession(ctx, webdriver.ElectronCapabilities(l.cfg.Binary, l.cfg.Args))
	if err != nil {
		return nil, &harness.LaunchError{Phase: PhaseSession, Err: err}
	}
	session := NewSession(wd, l.logger)
	session.reap = l.cfg.Reap

	expected := l.cfg.ExpectedWindows(doc)
	addresser := windows.New(session, poll.Options{Interval: l.cfg.PollInterval}, l.logger)
	if err := addresser.WaitForWindowCount(ctx, expected, remaining(deadline)); err != nil {
		stopCtx, stopCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer stopCancel()
		if stopErr := session.Stop(stopCtx); stopErr != nil {
			l.logger.Warn("stop after failed launch", zap.Error(stopErr))
		}
		return nil, &harness.LaunchError{Phase: PhaseWindows, Err: err}
	}

	l.logger.Info("application ready",
		zap.String("session", wd.ID),
		zap.Int("windows", expected),
		zap.Duration("startup", time.Since(start)),
	)
	return session, nil
}

func (l *Launcher) waitForDriver(ctx context.Context, deadline time.Time) error {
	opts := poll.Options{
		Interval:    l.cfg.PollInterval,
		Timeout:     remaining(deadline),
		Description: fmt.Sprintf("driver at %s", l.driver.URL()),
	}
	_, err := poll.Until(ctx, opts, func(ctx context.Context) (string, bool, error) {
		ready, msg, err := l.driver.Status(ctx)
		if err != nil {
			// Not listening yet.
			return err.Error(), false, nil
		}
		return msg, ready, nil
	})
	return err
}

func remaining(deadline time.Time) time.Duration {
	d := time.Until(deadline)
	if d < time.Millisecond {
		return time.Millisecond
	}
	return d
}
