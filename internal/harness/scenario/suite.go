package scenario

import (
	"context"
	"fmt"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/webview-isolation/internal/harness"
	"github.com/GriffinCanCode/webview-isolation/internal/infrastructure/logging"
	"github.com/GriffinCanCode/webview-isolation/internal/shared/id"
)

// Suite runs a set of scenarios one after another, each on its own session.
type Suite struct {
	Runner    *Runner
	Scenarios []Scenario
	// Filter is a doublestar glob over scenario names, e.g. "eval-*" or
	// "{static,window}-*". Empty runs everything.
	Filter string
}

// Select returns the scenarios Filter matches, in order.
func (s *Suite) Select() ([]Scenario, error) {
	pattern := s.Filter
	if pattern == "" {
		pattern = "*"
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid scenario filter %q", s.Filter)
	}

	var selected []Scenario
	for _, sc := range s.Scenarios {
		ok, err := doublestar.Match(pattern, sc.Name)
		if err != nil {
			return nil, fmt.Errorf("match scenario filter: %w", err)
		}
		if ok {
			selected = append(selected, sc)
		}
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("scenario filter %q matches no scenarios", s.Filter)
	}
	return selected, nil
}

// Run executes the selected scenarios. Scenarios keep running after one
// fails. A failed launch or an out-of-range window stops the suite: the
// remaining scenarios are listed in Skipped and the error is returned with
// the partial report. A cancelled ctx stops the suite between scenarios.
func (s *Suite) Run(ctx context.Context) (*SuiteReport, error) {
	selected, err := s.Select()
	if err != nil {
		return nil, err
	}

	if s.Runner.RunID == "" {
		s.Runner.RunID = id.NewRunID()
	}
	logger := logging.OrNop(s.Runner.Logger).Component("suite")

	report := &SuiteReport{RunID: s.Runner.RunID, Started: time.Now(), Passed: true}
	var runErr error
	for i, sc := range selected {
		if err := ctx.Err(); err != nil {
			runErr = err
			report.skip(selected[i:])
			break
		}
		rep := s.Runner.Run(ctx, sc)
		report.Reports = append(report.Reports, rep)
		report.Passed = report.Passed && rep.Passed()
		if harness.AbortsRun(rep.Err) {
			runErr = fmt.Errorf("scenario %s: %w", sc.Name, rep.Err)
			report.skip(selected[i+1:])
			break
		}
	}
	if len(report.Skipped) > 0 {
		report.Passed = false
	}
	report.Duration = float64(time.Since(report.Started).Microseconds()) / 1000

	fields := []zap.Field{
		zap.String("run", report.RunID.String()),
		zap.Bool("passed", report.Passed),
		zap.Int("scenarios", len(report.Reports)),
		zap.Int("failures", len(report.Failures())),
	}
	if runErr != nil {
		logger.Error("suite aborted", append(fields, zap.Strings("skipped", report.Skipped), zap.Error(runErr))...)
		return report, runErr
	}
	logger.Info("suite finished", fields...)
	return report, nil
}
