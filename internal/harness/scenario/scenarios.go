package scenario

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/GriffinCanCode/webview-isolation/internal/harness"
	"github.com/GriffinCanCode/webview-isolation/internal/harness/poll"
	"github.com/GriffinCanCode/webview-isolation/internal/harness/probe"
	"github.com/GriffinCanCode/webview-isolation/internal/harness/queue"
)

// KindWindowSpawn is the pseudo-probe recording whether a content-spawned
// window registered.
const KindWindowSpawn probe.Kind = "window-spawn"

// OpenWindowScript calls the fixture page's window.open helper.
const OpenWindowScript = `open_window();`

// SettingsView labels the main window after navigation to settings.
const SettingsView = "settings"

// StaticIsolation checks every team window and its pane for node
// integration, both as rendered on the webview element and as observed from
// script.
var StaticIsolation = Scenario{
	Name:        "static-isolation",
	Description: "webview nodeintegration is false and the host API is unreachable in every team window and pane",
	Run: func(ctx context.Context, env *Env) error {
		for i := 1; i <= env.Teams(); i++ {
			window, pane := harness.WindowContext(i), harness.PaneContext(i, 0)

			checks := []struct {
				name string
				run  func(ctx context.Context, t probe.Target) probe.Result
			}{
				{"capability " + window.String(), func(ctx context.Context, t probe.Target) probe.Result {
					return probe.CapabilityAbsent(ctx, t, window, probe.NodeIntegration)
				}},
				{"host-api " + window.String(), func(ctx context.Context, t probe.Target) probe.Result {
					return probe.HostAPIUnreachable(ctx, t, window)
				}},
				{"host-api " + pane.String(), func(ctx context.Context, t probe.Target) probe.Result {
					return probe.HostAPIUnreachable(ctx, t, pane)
				}},
			}

			for _, check := range checks {
				res, err := env.Probe(ctx, check.name, check.run)
				if err != nil {
					return err
				}
				if err := env.Record(res); err != nil {
					return err
				}
			}
		}
		return nil
	},
}

// WindowSpawn has content in the first team's pane open a window and checks
// that the new window does not reach the host API either.
var WindowSpawn = Scenario{
	Name:        "window-spawn",
	Description: "a window opened by embedded content registers and cannot reach the host API",
	Run: func(ctx context.Context, env *Env) error {
		if env.Teams() < 1 {
			return env.Record(probe.Result{
				Probe:   KindWindowSpawn,
				Context: harness.PaneContext(1, 0),
				Err:     &harness.SetupDefect{Context: harness.PaneContext(1, 0), Detail: "configuration has no team window"},
			})
		}

		opener := harness.PaneContext(1, 0)
		spawned, err := env.Probe(ctx, "spawn from "+opener.String(), func(ctx context.Context, t probe.Target) probe.Result {
			return spawnWindow(ctx, env, t, opener)
		})
		if err != nil {
			return err
		}
		if err := env.Record(spawned); err != nil || !spawned.Passed {
			return err
		}

		target := harness.WindowContext(spawned.Observed.(int) - 1)
		res, err := env.Probe(ctx, "host-api "+target.String(), func(ctx context.Context, t probe.Target) probe.Result {
			return probe.HostAPIUnreachable(ctx, t, target)
		})
		if err != nil {
			return err
		}
		return env.Record(res)
	},
}

// spawnWindow runs open_window in opener and waits for the window count to
// grow by one. On success Observed is the new count.
func spawnWindow(ctx context.Context, env *Env, t probe.Target, opener harness.Context) probe.Result {
	start := time.Now()
	res := probe.Result{Probe: KindWindowSpawn, Context: opener}
	finish := func(err error) probe.Result {
		res.Err = err
		res.Passed = err == nil
		res.Duration = time.Since(start)
		return res
	}

	before, err := env.Addresser.Count(ctx)
	if err != nil {
		return finish(err)
	}
	if err := t.Select(ctx, opener); err != nil {
		return finish(err)
	}

	if _, err := t.Session().Execute(ctx, OpenWindowScript); err != nil {
		var execErr *harness.ExecutionError
		if errors.As(err, &execErr) {
			return finish(&harness.SetupDefect{
				Context: opener,
				Detail:  fmt.Sprintf("open_window failed: %s", execErr.Message),
			})
		}
		return finish(fmt.Errorf("open_window: %w", err))
	}

	if err := env.Addresser.WaitForWindowCount(ctx, before+1, env.Settings.SpawnTimeout); err != nil {
		var timeout *poll.TimeoutError
		if errors.As(err, &timeout) {
			res.Observed = timeout.Last
		}
		return finish(err)
	}
	res.Observed = before + 1
	return finish(nil)
}

// EvalBlocked submits the dynamic-evaluation probe for every context at once
// and collects every verdict. The main window is probed as launched and
// again after navigating to settings; the queue runs them in that order.
var EvalBlocked = Scenario{
	Name:        "eval-blocked",
	Description: "eval is rejected in the main window, the settings view and every team window",
	Run: func(ctx context.Context, env *Env) error {
		type target struct {
			context harness.Context
			prepare probe.Prepare
		}

		targets := []target{
			{context: harness.WindowContext(0)},
			{context: harness.WindowContext(0).WithView(SettingsView), prepare: navigateToSettings(env.Settings.SettingsURL)},
		}
		for i := 1; i <= env.Teams(); i++ {
			targets = append(targets, target{context: harness.WindowContext(i)})
		}

		futures := make([]*queue.Future, 0, len(targets))
		for _, tg := range targets {
			futures = append(futures, env.Submit(ctx, "eval "+tg.context.String(), func(ctx context.Context, t probe.Target) probe.Result {
				return probe.EvalBlocked(ctx, t, tg.context, tg.prepare)
			}))
		}

		// Every verdict is collected before an infrastructure error aborts.
		var abort error
		for _, f := range futures {
			res, err := env.Await(ctx, f)
			if err != nil {
				abort = errors.Join(abort, err)
				continue
			}
			if err := env.Record(res); err != nil {
				abort = errors.Join(abort, err)
			}
		}
		return abort
	},
}

func navigateToSettings(url string) probe.Prepare {
	return func(ctx context.Context, s harness.Session) error {
		if url == "" {
			return &harness.SetupDefect{
				Context: harness.WindowContext(0).WithView(SettingsView),
				Detail:  "no settings URL configured",
			}
		}
		return s.Navigate(ctx, url)
	}
}

// All returns the isolation scenarios in run order.
func All() []Scenario {
	return []Scenario{StaticIsolation, WindowSpawn, EvalBlocked}
}
