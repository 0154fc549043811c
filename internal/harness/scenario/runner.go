package scenario

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/webview-isolation/internal/fixture"
	"github.com/GriffinCanCode/webview-isolation/internal/harness"
	"github.com/GriffinCanCode/webview-isolation/internal/harness/poll"
	"github.com/GriffinCanCode/webview-isolation/internal/harness/probe"
	"github.com/GriffinCanCode/webview-isolation/internal/harness/queue"
	"github.com/GriffinCanCode/webview-isolation/internal/harness/windows"
	"github.com/GriffinCanCode/webview-isolation/internal/infrastructure/logging"
	"github.com/GriffinCanCode/webview-isolation/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/webview-isolation/internal/shared/id"
)

// Settings are the bounds and addresses scenarios run with.
type Settings struct {
	// SettingsURL opens the settings view in the main window.
	SettingsURL string
	// SpawnTimeout bounds the wait for a content-spawned window.
	SpawnTimeout time.Duration
	// Poll spaces window-count checks.
	Poll poll.Options
	// TeardownTimeout bounds Stop, which runs even after ctx is done.
	TeardownTimeout time.Duration
	// Timeout bounds one scenario, launch included. Zero means no bound.
	Timeout time.Duration
}

// DefaultSettings returns the bounds the isolation scenarios are written for.
func DefaultSettings() Settings {
	return Settings{
		SettingsURL:     "app://settings",
		SpawnTimeout:    5 * time.Second,
		Poll:            poll.Options{Interval: poll.DefaultInterval, Timeout: 5 * time.Second},
		TeardownTimeout: 5 * time.Second,
		Timeout:         time.Minute,
	}
}

// Scenario is one named isolation check.
type Scenario struct {
	Name        string
	Description string
	Run         func(ctx context.Context, env *Env) error
}

// Env is what a running scenario works with.
type Env struct {
	Session   harness.Session
	Addresser *windows.Addresser
	Queue     *queue.Queue
	Document  fixture.Document
	Settings  Settings
	Logger    *logging.Logger

	report  *Report
	metrics *monitoring.Metrics
}

// Teams returns the number of team windows, N.
func (e *Env) Teams() int {
	return len(e.Document.Teams)
}

// Record adds a probe result to the report. It returns the result's error
// when that error is infrastructure trouble, which the scenario should
// return to abort.
func (e *Env) Record(res probe.Result) error {
	e.report.add(res)
	verdict := Verdict(res)
	if e.metrics != nil {
		e.metrics.RecordProbe(string(res.Probe), verdict, res.Duration)
	}

	fields := []zap.Field{
		zap.String("probe", string(res.Probe)),
		zap.Stringer("context", res.Context),
		zap.String("verdict", verdict),
		zap.Duration("duration", res.Duration),
	}
	if res.Err != nil {
		e.Logger.Warn("probe failed", append(fields, zap.Error(res.Err))...)
	} else {
		e.Logger.Debug("probe passed", fields...)
	}

	if res.Infrastructure() {
		return res.Err
	}
	return nil
}

// Probe runs fn with exclusive use of the session and waits for its result.
func (e *Env) Probe(ctx context.Context, name string, fn func(ctx context.Context, t probe.Target) probe.Result) (probe.Result, error) {
	return await(ctx, e.Submit(ctx, name, fn))
}

// Submit queues fn without waiting. Collect the result with Await.
func (e *Env) Submit(ctx context.Context, name string, fn func(ctx context.Context, t probe.Target) probe.Result) *queue.Future {
	return e.Queue.Submit(ctx, name, func(ctx context.Context, _ harness.Session) (any, error) {
		return fn(ctx, e.Addresser), nil
	})
}

// Await returns the result of a submitted probe.
func (e *Env) Await(ctx context.Context, f *queue.Future) (probe.Result, error) {
	return await(ctx, f)
}

func await(ctx context.Context, f *queue.Future) (probe.Result, error) {
	v, err := f.Await(ctx)
	if err != nil {
		return probe.Result{}, fmt.Errorf("probe %s: %w", f.Name(), err)
	}
	return v.(probe.Result), nil
}

// Runner launches a session per scenario and runs it.
type Runner struct {
	Launcher harness.Launcher
	Document fixture.Document
	Settings Settings
	Logger   *logging.Logger
	Metrics  *monitoring.Metrics
	// RunID tags every report; a fresh one is generated when empty.
	RunID id.RunID
}

// Run executes sc against a freshly launched session. It always returns a
// report; the report's Err is set when the scenario was aborted.
func (r *Runner) Run(ctx context.Context, sc Scenario) *Report {
	if r.RunID == "" {
		r.RunID = id.NewRunID()
	}
	logger := logging.OrNop(r.Logger).Component("scenario").WithFields(
		zap.String("run", r.RunID.String()),
		zap.String("scenario", sc.Name),
	)

	report := newReport(r.RunID, sc)
	defer func() {
		report.Duration = float64(time.Since(report.Started).Microseconds()) / 1000
		if r.Metrics != nil {
			r.Metrics.RecordScenario(sc.Name, string(report.Outcome), time.Since(report.Started))
		}
		logger.Info("scenario finished",
			zap.String("outcome", string(report.Outcome)),
			zap.Int("probes", len(report.Probes)),
			zap.Int("failures", len(report.Failures)),
		)
	}()

	if r.Settings.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Settings.Timeout)
		defer cancel()
	}

	report.transition(SessionStarting)
	launched := time.Now()
	session, err := r.Launcher.Start(ctx, r.Document)
	if err != nil {
		var launchErr *harness.LaunchError
		if !errors.As(err, &launchErr) {
			err = &harness.LaunchError{Phase: "session", Err: err}
		}
		logger.Error("launch failed", zap.Error(err))
		report.fail(err)
		report.Outcome = OutcomeError
		report.transition(Failed)
		report.transition(TornDown)
		return report
	}
	if r.Metrics != nil {
		r.Metrics.RecordLaunch(time.Since(launched))
	}

	q := queue.New(session, logger, 0)
	defer r.teardown(ctx, session, q, report, logger)

	report.transition(Ready)
	env := &Env{
		Session:   session,
		Addresser: windows.New(session, r.Settings.Poll, logger),
		Queue:     q,
		Document:  r.Document,
		Settings:  r.Settings,
		Logger:    logger,
		report:    report,
		metrics:   r.Metrics,
	}

	report.transition(Probing)
	if err := runScenario(ctx, sc, env); err != nil {
		logger.Error("scenario aborted", zap.Error(err))
		report.fail(err)
		report.Outcome = OutcomeError
		report.transition(Failed)
		return report
	}

	if len(report.Failures) > 0 {
		report.Outcome = OutcomeFailed
		report.transition(Failed)
		return report
	}
	report.Outcome = OutcomePassed
	report.transition(Passed)
	return report
}

func runScenario(ctx context.Context, sc Scenario, env *Env) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("scenario %s panicked: %v", sc.Name, p)
		}
	}()
	return sc.Run(ctx, env)
}

// teardown drains the queue and stops the session. It runs on a context
// detached from ctx so a cancelled run still quits the application.
func (r *Runner) teardown(ctx context.Context, session harness.Session, q *queue.Queue, report *Report, logger *logging.Logger) {
	q.Close()

	timeout := r.Settings.TeardownTimeout
	if timeout <= 0 {
		timeout = DefaultSettings().TeardownTimeout
	}
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := session.Stop(stopCtx); err != nil {
		logger.Warn("teardown failed", zap.Error(err))
		if report.Err == nil {
			report.fail(fmt.Errorf("teardown: %w", err))
		}
	}
	if r.Metrics != nil {
		r.Metrics.IncSessionsStopped()
	}
	report.transition(TornDown)
}
