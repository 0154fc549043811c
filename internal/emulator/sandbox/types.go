package sandbox

import (
	"errors"
	"time"
)

// ErrTimeout is returned when a script is interrupted by the timeout.
var ErrTimeout = errors.New("script timeout")

// Config controls what a runtime exposes.
type Config struct {
	Timeout         time.Duration // bound on every Load and Call
	NodeIntegration bool          // expose require and process
	AllowEval       bool          // keep eval and Function
}

// DefaultConfig returns the locked-down configuration.
func DefaultConfig() Config {
	return Config{
		Timeout: 5 * time.Second,
	}
}

// Host is the browser embedding a runtime.
type Host interface {
	// Location is the URL of the page.
	Location() string
	// Open handles window.open. It must not block on the runtime.
	Open(url, name string)
}

// ScriptError is an exception thrown by page or injected script.
type ScriptError struct {
	Message string
}

func (e *ScriptError) Error() string {
	return e.Message
}

// LogEntry is one console call.
type LogEntry struct {
	Level   string
	Message string
	Time    time.Time
}
