// Package probe implements the isolation checks run inside a context.
//
// A probe selects its context, runs one script or attribute query and renders
// a Result. Verdict failures (SecurityViolation, SetupDefect) and
// infrastructure errors are both reported through Result.Err; callers tell
// them apart with harness.IsInfrastructure.
package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/GriffinCanCode/webview-isolation/internal/harness"
)

// Kind names a probe.
type Kind string

const (
	KindCapabilityAbsent Kind = "capability-absent"
	KindHostAPI          Kind = "host-api-unreachable"
	KindEvalBlocked      Kind = "eval-blocked"
)

// Scripts executed inside contexts. They are function bodies.
const (
	// HostAPIScript resolves true only when the Node.js module loader is
	// reachable and can load a privileged module.
	HostAPIScript = `try {
  if (typeof require !== 'function') { return false; }
  return !!require('child_process');
} catch (e) {
  return false;
}`

	// EvalScript invokes the dynamic evaluation primitive on a trivial
	// expression. A context that permits it returns 2.
	EvalScript = `return eval('1 + 1');`
)

// Target selects contexts on a session. *windows.Addresser implements it.
type Target interface {
	Select(ctx context.Context, c harness.Context) error
	Session() harness.Session
}

// Result is the verdict of one probe against one context.
type Result struct {
	Probe    Kind
	Context  harness.Context
	Passed   bool
	Observed any
	Err      error
	Duration time.Duration
}

// Violation reports whether the probe observed an enabled capability.
func (r Result) Violation() bool {
	var v *harness.SecurityViolation
	return errors.As(r.Err, &v)
}

// Infrastructure reports whether the probe failed for harness reasons.
func (r Result) Infrastructure() bool {
	return harness.IsInfrastructure(r.Err)
}

// Capability describes an attribute on the embedding element that signals a
// host capability.
type Capability struct {
	Name      string
	Selector  string
	Attribute string
	Disabled  string
}

// NodeIntegration is the webview attribute that grants Node.js to content.
var NodeIntegration = Capability{
	Name:      "node integration",
	Selector:  "webview",
	Attribute: "nodeintegration",
	Disabled:  "false",
}

func begin(kind Kind, c harness.Context) (Result, time.Time) {
	return Result{Probe: kind, Context: c}, time.Now()
}

func finish(r Result, start time.Time) Result {
	r.Duration = time.Since(start)
	r.Passed = r.Err == nil
	return r
}

// CapabilityAbsent asserts that every element matching capability.Selector in
// c reports the disabled sentinel. Zero matches is a SetupDefect, distinct from
// the SecurityViolation reported for an enabled element.
func CapabilityAbsent(ctx context.Context, t Target, c harness.Context, capability Capability) Result {
	r, start := begin(KindCapabilityAbsent, c)

	if err := t.Select(ctx, c); err != nil {
		r.Err = err
		return finish(r, start)
	}

	values, err := t.Session().GetAttribute(ctx, capability.Selector, capability.Attribute)
	if err != nil {
		r.Err = fmt.Errorf("read %s[%s]: %w", capability.Selector, capability.Attribute, err)
		return finish(r, start)
	}
	r.Observed = values

	if len(values) == 0 {
		r.Err = &harness.SetupDefect{
			Context: c,
			Detail:  fmt.Sprintf("selector %q matched no elements", capability.Selector),
		}
		return finish(r, start)
	}

	for i, v := range values {
		if v != capability.Disabled {
			r.Err = &harness.SecurityViolation{
				Context:   c,
				Invariant: fmt.Sprintf("%s disabled on %s #%d", capability.Name, capability.Selector, i),
				Observed:  v,
			}
			break
		}
	}
	return finish(r, start)
}

// HostAPIUnreachable asserts that the host API predicate is false in c.
func HostAPIUnreachable(ctx context.Context, t Target, c harness.Context) Result {
	r, start := begin(KindHostAPI, c)

	if err := t.Select(ctx, c); err != nil {
		r.Err = err
		return finish(r, start)
	}

	value, err := t.Session().Execute(ctx, HostAPIScript)
	if err != nil {
		r.Err = fmt.Errorf("host API predicate: %w", err)
		return finish(r, start)
	}
	r.Observed = value

	enabled, ok := value.(bool)
	switch {
	case !ok:
		r.Err = fmt.Errorf("host API predicate returned %T %v, want bool", value, value)
	case enabled:
		r.Err = &harness.SecurityViolation{
			Context:   c,
			Invariant: "host API unreachable",
			Observed:  true,
		}
	}
	return finish(r, start)
}

// Prepare runs after selection and before the probe script, e.g. to navigate
// the window to the view under test.
type Prepare func(ctx context.Context, s harness.Session) error

// EvalBlocked asserts that dynamic evaluation is rejected in c. Only an
// *harness.ExecutionError passes; a returned value is a SecurityViolation
// and any other error is infrastructure trouble.
func EvalBlocked(ctx context.Context, t Target, c harness.Context, prepare Prepare) Result {
	r, start := begin(KindEvalBlocked, c)

	if err := t.Select(ctx, c); err != nil {
		r.Err = err
		return finish(r, start)
	}

	if prepare != nil {
		if err := prepare(ctx, t.Session()); err != nil {
			r.Err = fmt.Errorf("prepare %s: %w", c, err)
			return finish(r, start)
		}
	}

	value, err := t.Session().Execute(ctx, EvalScript)
	var execErr *harness.ExecutionError
	switch {
	case errors.As(err, &execErr):
		r.Observed = execErr.Message
	case err != nil:
		r.Err = fmt.Errorf("eval probe: %w", err)
	default:
		r.Observed = value
		r.Err = &harness.SecurityViolation{
			Context:   c,
			Invariant: "dynamic evaluation rejected",
			Observed:  value,
		}
	}
	return finish(r, start)
}
