package harness

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/webview-isolation/internal/harness/poll"
)

// LaunchError reports that the application never reached a ready state.
// It is fatal to the run: no probes are attempted.
type LaunchError struct {
	Phase string // config, driver, session or windows
	Err   error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch failed during %s: %v", e.Phase, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// IndexOutOfRangeError reports a window index beyond the current handle set.
type IndexOutOfRangeError struct {
	Index int
	Count int
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("window index %d out of range (%d windows open)", e.Index, e.Count)
}

// NoSuchPaneError reports a missing embedded pane in the selected window.
type NoSuchPaneError struct {
	Pane int
	Err  error
}

func (e *NoSuchPaneError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("no embedded pane %d: %v", e.Pane, e.Err)
	}
	return fmt.Sprintf("no embedded pane %d", e.Pane)
}

func (e *NoSuchPaneError) Unwrap() error { return e.Err }

// ExecutionError reports that a script threw or was rejected by the
// context's security policy. For the dynamic-evaluation probe this is the
// expected outcome.
type ExecutionError struct {
	Script  string
	Message string
}

func (e *ExecutionError) Error() string {
	return "script execution failed: " + e.Message
}

// SecurityViolation reports that a probe observed a capability that must be
// disabled. It is the only verdict that represents a product defect.
type SecurityViolation struct {
	Context   Context
	Invariant string
	Observed  any
}

func (e *SecurityViolation) Error() string {
	return fmt.Sprintf("security violation in %s: %s (observed %v)", e.Context, e.Invariant, e.Observed)
}

// SetupDefect reports a probe that could not reach a verdict because the
// fixture did not look as expected, e.g. zero elements matched a selector.
type SetupDefect struct {
	Context Context
	Detail  string
}

func (e *SetupDefect) Error() string {
	return fmt.Sprintf("setup defect in %s: %s", e.Context, e.Detail)
}

// IsInfrastructure reports whether err is harness or transport trouble that
// aborts the current scenario, as opposed to a verdict that is collected.
func IsInfrastructure(err error) bool {
	if err == nil {
		return false
	}

	var (
		violation *SecurityViolation
		defect    *SetupDefect
		timeout   *poll.TimeoutError
		execErr   *ExecutionError
	)
	switch {
	case errors.As(err, &violation),
		errors.As(err, &defect),
		errors.As(err, &timeout),
		errors.As(err, &execErr):
		return false
	}
	return true
}

// AbortsRun reports whether err stops the whole run rather than just the
// scenario that hit it.
func AbortsRun(err error) bool {
	var (
		launch   *LaunchError
		rangeErr *IndexOutOfRangeError
	)
	return errors.As(err, &launch) || errors.As(err, &rangeErr)
}
