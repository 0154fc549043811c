package emulator

import (
	"time"

	"github.com/GriffinCanCode/webview-isolation/internal/emulator/sandbox"
)

// Policy is the security configuration of the emulated application.
type Policy struct {
	// NodeIntegration enables Node.js in team windows and their panes, and
	// renders nodeintegration="true" on the webview element.
	NodeIntegration bool
	// NodeInPopups enables Node.js in windows opened by content.
	NodeInPopups bool
	// AllowEval permits eval in every context except the settings view.
	AllowEval bool
	// AllowEvalInSettings permits eval in the settings view.
	AllowEvalInSettings bool
	// SuppressPopups ignores window.open.
	SuppressPopups bool

	// SpawnDelay is how long a window.open takes to show up in the handle
	// list.
	SpawnDelay time.Duration
	// ReadyDelay is how long the team windows take to appear after the
	// session is created.
	ReadyDelay time.Duration
}

// SecurePolicy is a correctly hardened application.
func SecurePolicy() Policy {
	return Policy{
		SpawnDelay: 150 * time.Millisecond,
		ReadyDelay: 50 * time.Millisecond,
	}
}

type role int

const (
	roleShell role = iota
	roleSettings
	roleHost
	roleContent
	rolePopup
)

func (r role) String() string {
	switch r {
	case roleShell:
		return "shell"
	case roleSettings:
		return "settings"
	case roleHost:
		return "host"
	case roleContent:
		return "content"
	case rolePopup:
		return "popup"
	}
	return "unknown"
}

// sandbox returns the runtime configuration for a context playing r. The
// shell and settings views are trusted application UI and always have Node.
func (p Policy) sandbox(r role, timeout time.Duration) sandbox.Config {
	cfg := sandbox.Config{Timeout: timeout, AllowEval: p.AllowEval}
	switch r {
	case roleShell:
		cfg.NodeIntegration = true
	case roleSettings:
		cfg.NodeIntegration = true
		cfg.AllowEval = p.AllowEvalInSettings
	case roleHost, roleContent:
		cfg.NodeIntegration = p.NodeIntegration
	case rolePopup:
		cfg.NodeIntegration = p.NodeInPopups
	}
	return cfg
}
