package harness

import (
	"context"

	"github.com/GriffinCanCode/webview-isolation/internal/fixture"
)

// Session is a live connection to one running application instance.
//
// Selection is a side effect on the session: SelectWindow and
// SelectEmbeddedPane change where the next Execute, GetAttribute or Navigate
// applies. Implementations are not required to be safe for concurrent use;
// callers serialize access (see the queue package).
type Session interface {
	// ListWindows returns the open top-level window handles in creation
	// order. Index 0 is the main window.
	ListWindows(ctx context.Context) ([]string, error)

	// SelectWindow makes window index current. It fails with
	// *IndexOutOfRangeError when index >= len(ListWindows()).
	SelectWindow(ctx context.Context, index int) error

	// SelectEmbeddedPane descends into pane paneIndex of the current window.
	// It fails with *NoSuchPaneError when the pane does not exist.
	SelectEmbeddedPane(ctx context.Context, paneIndex int) error

	// Execute runs script (a function body) in the current context. A script
	// that throws or is rejected by the context yields *ExecutionError.
	Execute(ctx context.Context, script string, args ...any) (any, error)

	// GetAttribute reads attribute name from every element matching the CSS
	// selector in the current context.
	GetAttribute(ctx context.Context, selector, name string) ([]string, error)

	// Navigate loads url in the current window.
	Navigate(ctx context.Context, url string) error

	// Stop terminates the session. Calling it again is a no-op.
	Stop(ctx context.Context) error
}

// Launcher starts the application under a fixture configuration and returns a
// session against it. Failures to reach a ready state within the startup bound
// are reported as *LaunchError.
type Launcher interface {
	Start(ctx context.Context, doc fixture.Document) (Session, error)
}
