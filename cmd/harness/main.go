package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/webview-isolation/internal/emulator"
	"github.com/GriffinCanCode/webview-isolation/internal/fixture"
	"github.com/GriffinCanCode/webview-isolation/internal/harness/poll"
	"github.com/GriffinCanCode/webview-isolation/internal/harness/scenario"
	"github.com/GriffinCanCode/webview-isolation/internal/infrastructure/config"
	"github.com/GriffinCanCode/webview-isolation/internal/infrastructure/logging"
	"github.com/GriffinCanCode/webview-isolation/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/webview-isolation/internal/remote"
	"github.com/GriffinCanCode/webview-isolation/internal/webdriver"
)

func main() {
	os.Exit(run())
}

func run() int {
	profile := flag.String("profile", "", "YAML or TOML profile overlaid on the environment")
	emulate := flag.Bool("emulate", false, "Run against the in-process application emulator")
	weaken := flag.String("weaken", "", "Emulator weaknesses: node,popups,eval,settings-eval,suppress-popups")
	scenarios := flag.String("scenarios", "", "Glob over scenario names, e.g. 'eval-*'")
	reportPath := flag.String("report", "", "Write the JSON report to this path")
	metricsPath := flag.String("metrics", "", "Write prometheus metrics to this textfile")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Printf("config: %v", err)
		return 2
	}
	if *profile != "" {
		p, err := config.LoadProfile(*profile)
		if err != nil {
			log.Printf("profile: %v", err)
			return 2
		}
		cfg.ApplyProfile(p)
	}
	setFlag(&cfg.Report.Scenarios, *scenarios)
	setFlag(&cfg.Report.JSON, *reportPath)
	setFlag(&cfg.Report.Metrics, *metricsPath)
	if err := cfg.Validate(); err != nil {
		log.Printf("invalid config: %v", err)
		return 2
	}

	logger, err := logging.New(logging.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
	if err != nil {
		log.Printf("logger: %v", err)
		return 2
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := monitoring.NewMetrics()

	// The fixture server is shared by every scenario of the run.
	fixtures := fixture.NewServer(fixture.ServerConfig{
		Host:    cfg.Fixture.Host,
		Port:    cfg.Fixture.Port,
		Metrics: metrics,
	}, logger)
	if err := fixtures.Start(); err != nil {
		logger.Error("fixture server failed to start", zap.Error(err))
		return 2
	}
	defer shutdown(logger, "fixture server", fixtures.Stop)

	driverURL, settingsURL := cfg.Driver.URL, cfg.App.SettingsURL
	if *emulate {
		policy, err := parseWeaknesses(*weaken)
		if err != nil {
			logger.Error("invalid -weaken", zap.Error(err))
			return 2
		}
		emu := emulator.New(emulator.Config{
			Policy:      policy,
			ConfigPath:  cfg.App.ConfigPath,
			SettingsURL: cfg.App.SettingsURL,
			Metrics:     metrics,
		}, logger)
		if err := emu.Start(); err != nil {
			logger.Error("emulator failed to start", zap.Error(err))
			return 2
		}
		defer shutdown(logger, "emulator", emu.Stop)
		driverURL, settingsURL = emu.URL(), emu.SettingsURL()
	}

	driver := webdriver.New(webdriver.Config{
		URL:              driverURL,
		CommandTimeout:   cfg.Driver.CommandTimeout,
		RateLimit:        cfg.Driver.RateLimit,
		Retries:          cfg.Driver.Retries,
		BreakerThreshold: cfg.Driver.BreakerThreshold,
		BreakerCooldown:  cfg.Driver.BreakerCooldown,
	}, logger)
	launcher := remote.NewLauncher(driver, remote.LaunchConfig{
		ConfigPath:     cfg.App.ConfigPath,
		Binary:         cfg.App.Binary,
		Args:           cfg.App.Args,
		StartupTimeout: cfg.Timeouts.Startup,
		PollInterval:   cfg.Timeouts.Poll,
	}, logger)

	suite := &scenario.Suite{
		Runner: &scenario.Runner{
			Launcher: launcher,
			Document: fixture.NewDocument(fixtures.URL(), cfg.Fixture.Teams...),
			Settings: scenario.Settings{
				SettingsURL:     settingsURL,
				SpawnTimeout:    cfg.Timeouts.Spawn,
				Poll:            poll.Options{Interval: cfg.Timeouts.Poll, Timeout: cfg.Timeouts.Spawn},
				TeardownTimeout: cfg.Timeouts.Teardown,
				Timeout:         cfg.Timeouts.Scenario,
			},
			Logger:  logger,
			Metrics: metrics,
		},
		Scenarios: scenario.All(),
		Filter:    cfg.Report.Scenarios,
	}

	report, err := suite.Run(ctx)
	if report == nil {
		logger.Error("suite did not run", zap.Error(err))
		return 2
	}
	report.Summary(os.Stdout)
	if err != nil {
		logger.Warn("suite stopped early", zap.Error(err))
	}

	if cfg.Report.JSON != "" {
		if err := report.WriteJSON(cfg.Report.JSON); err != nil {
			logger.Error("report not written", zap.Error(err))
		}
	}
	if cfg.Report.Metrics != "" {
		if err := metrics.WriteTextfile(cfg.Report.Metrics); err != nil {
			logger.Error("metrics not written", zap.Error(err))
		}
	}

	if !report.Passed || err != nil {
		return 1
	}
	return 0
}

func setFlag(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func shutdown(logger *logging.Logger, name string, stop func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := stop(ctx); err != nil {
		logger.Warn("shutdown failed", zap.String("component", name), zap.Error(err))
	}
}

// parseWeaknesses turns a comma-separated list into an emulator policy, so
// the harness can be shown to catch each kind of regression.
func parseWeaknesses(list string) (emulator.Policy, error) {
	policy := emulator.SecurePolicy()
	if list == "" {
		return policy, nil
	}
	for _, w := range strings.Split(list, ",") {
		switch strings.TrimSpace(w) {
		case "node":
			policy.NodeIntegration = true
		case "popups":
			policy.NodeInPopups = true
		case "eval":
			policy.AllowEval = true
		case "settings-eval":
			policy.AllowEvalInSettings = true
		case "suppress-popups":
			policy.SuppressPopups = true
		default:
			return policy, fmt.Errorf("unknown weakness %q", w)
		}
	}
	return policy, nil
}
