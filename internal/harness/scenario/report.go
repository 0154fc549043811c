package scenario

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/webview-isolation/internal/harness"
	"github.com/GriffinCanCode/webview-isolation/internal/harness/poll"
	"github.com/GriffinCanCode/webview-isolation/internal/harness/probe"
	"github.com/GriffinCanCode/webview-isolation/internal/shared/id"
)

// Verdicts recorded per probe.
const (
	VerdictPass      = "pass"
	VerdictViolation = "violation"
	VerdictDefect    = "defect"
	VerdictTimeout   = "timeout"
	VerdictError     = "error"
)

// Verdict classifies a probe result.
func Verdict(r probe.Result) string {
	var (
		violation *harness.SecurityViolation
		defect    *harness.SetupDefect
		timeout   *poll.TimeoutError
	)
	switch {
	case r.Err == nil:
		return VerdictPass
	case errors.As(r.Err, &violation):
		return VerdictViolation
	case errors.As(r.Err, &defect):
		return VerdictDefect
	case errors.As(r.Err, &timeout):
		return VerdictTimeout
	}
	return VerdictError
}

// ProbeRecord is the report form of one probe result.
type ProbeRecord struct {
	ID       id.ProbeID `json:"id"`
	Probe    probe.Kind `json:"probe"`
	Context  string     `json:"context"`
	Verdict  string     `json:"verdict"`
	Observed any        `json:"observed,omitempty"`
	Error    string     `json:"error,omitempty"`
	Duration float64    `json:"duration_ms"`
}

// Failure names a failing check: which scenario, where, and what was
// supposed to hold.
type Failure struct {
	Scenario  string `json:"scenario"`
	Context   string `json:"context"`
	Probe     string `json:"probe"`
	Invariant string `json:"invariant"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
}

// Report is the outcome of one scenario run.
type Report struct {
	RunID       id.RunID      `json:"run_id"`
	Scenario    string        `json:"scenario"`
	Description string        `json:"description,omitempty"`
	State       State         `json:"state"`
	History     []State       `json:"history"`
	Outcome     Outcome       `json:"outcome"`
	Probes      []ProbeRecord `json:"probes"`
	Failures    []Failure     `json:"failures,omitempty"`
	Error       string        `json:"error,omitempty"`
	Started     time.Time     `json:"started"`
	Duration    float64       `json:"duration_ms"`

	// Results and Err keep the typed values for callers in-process.
	Results []probe.Result `json:"-"`
	Err     error          `json:"-"`
}

func newReport(runID id.RunID, sc Scenario) *Report {
	return &Report{
		RunID:       runID,
		Scenario:    sc.Name,
		Description: sc.Description,
		State:       NotStarted,
		History:     []State{NotStarted},
		Started:     time.Now(),
	}
}

// transition moves the report to s. Illegal transitions are programming
// errors in the runner.
func (r *Report) transition(s State) {
	if !CanTransition(r.State, s) {
		panic(fmt.Sprintf("scenario %s: illegal transition %s -> %s", r.Scenario, r.State, s))
	}
	r.State = s
	r.History = append(r.History, s)
}

func (r *Report) add(res probe.Result) {
	verdict := Verdict(res)
	rec := ProbeRecord{
		ID:       id.NewProbeID(),
		Probe:    res.Probe,
		Context:  res.Context.String(),
		Verdict:  verdict,
		Observed: res.Observed,
		Duration: float64(res.Duration.Microseconds()) / 1000,
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}

	r.Results = append(r.Results, res)
	r.Probes = append(r.Probes, rec)

	if verdict == VerdictPass {
		return
	}
	r.Failures = append(r.Failures, Failure{
		Scenario:  r.Scenario,
		Context:   res.Context.String(),
		Probe:     string(res.Probe),
		Invariant: invariant(res),
		Kind:      verdict,
		Message:   res.Err.Error(),
	})
}

func invariant(res probe.Result) string {
	var violation *harness.SecurityViolation
	if errors.As(res.Err, &violation) {
		return violation.Invariant
	}
	switch res.Probe {
	case probe.KindCapabilityAbsent:
		return "capability disabled"
	case probe.KindHostAPI:
		return "host API unreachable"
	case probe.KindEvalBlocked:
		return "dynamic evaluation rejected"
	case KindWindowSpawn:
		return "spawned window registers"
	}
	return string(res.Probe)
}

func (r *Report) fail(err error) {
	r.Err = err
	r.Error = err.Error()
}

// Passed reports whether every probe in the scenario passed.
func (r *Report) Passed() bool {
	return r.Outcome == OutcomePassed
}

// Summary writes a human-readable account of the report.
func (r *Report) Summary(w io.Writer) {
	fmt.Fprintf(w, "%-18s %-7s %d probes, %d failures (%.0fms)\n",
		r.Scenario, strings.ToUpper(string(r.Outcome)), len(r.Probes), len(r.Failures), r.Duration)
	for _, f := range r.Failures {
		fmt.Fprintf(w, "  %-9s %-22s %s: %s\n", f.Kind, f.Context, f.Invariant, f.Message)
	}
	if r.Error != "" {
		fmt.Fprintf(w, "  aborted: %s\n", r.Error)
	}
}

// SuiteReport aggregates the scenario reports of one run.
type SuiteReport struct {
	RunID    id.RunID  `json:"run_id"`
	Started  time.Time `json:"started"`
	Duration float64   `json:"duration_ms"`
	Passed   bool      `json:"passed"`
	Reports  []*Report `json:"scenarios"`

	// Skipped names scenarios never started because the run was aborted.
	Skipped []string `json:"skipped,omitempty"`
}

func (s *SuiteReport) skip(rest []Scenario) {
	for _, sc := range rest {
		s.Skipped = append(s.Skipped, sc.Name)
	}
}

// Failures returns every failure across scenarios.
func (s *SuiteReport) Failures() []Failure {
	var all []Failure
	for _, r := range s.Reports {
		all = append(all, r.Failures...)
	}
	return all
}

// Summary writes every scenario summary and a closing verdict line.
func (s *SuiteReport) Summary(w io.Writer) {
	fmt.Fprintf(w, "run %s\n", s.RunID)
	for _, r := range s.Reports {
		r.Summary(w)
	}
	if len(s.Skipped) > 0 {
		fmt.Fprintf(w, "skipped: %s\n", strings.Join(s.Skipped, ", "))
	}
	verdict := "PASSED"
	if !s.Passed {
		verdict = "FAILED"
	}
	fmt.Fprintf(w, "%s: %d scenarios, %d failures\n", verdict, len(s.Reports), len(s.Failures()))
}

// JSON renders the report with sorted keys and indentation.
func (s *SuiteReport) JSON() ([]byte, error) {
	return sonic.ConfigStd.MarshalIndent(s, "", "  ")
}

// WriteJSON writes the JSON report to path, creating parent directories.
func (s *SuiteReport) WriteJSON(path string) error {
	data, err := s.JSON()
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
