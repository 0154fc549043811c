package harness

import "fmt"

// NoPane marks a Context that targets the top-level window itself.
const NoPane = -1

// Context identifies where scripts and attribute queries run: a top-level
// window by creation-order index and, optionally, an embedded pane inside it.
type Context struct {
	Window int
	Pane   int
	// View names a view the window is navigated to before probing (e.g.
	// "settings"). It is informational and only affects String.
	View string
}

// WindowContext targets top-level window index.
func WindowContext(index int) Context {
	return Context{Window: index, Pane: NoPane}
}

// PaneContext targets embedded pane pane inside window.
func PaneContext(window, pane int) Context {
	return Context{Window: window, Pane: pane}
}

// HasPane reports whether the context descends into an embedded pane.
func (c Context) HasPane() bool {
	return c.Pane != NoPane
}

// WithView returns a copy of c annotated with view.
func (c Context) WithView(view string) Context {
	c.View = view
	return c
}

// String renders the context as window[1], window[1]/pane[0] or
// window[0](settings).
func (c Context) String() string {
	s := fmt.Sprintf("window[%d]", c.Window)
	if c.HasPane() {
		s += fmt.Sprintf("/pane[%d]", c.Pane)
	}
	if c.View != "" {
		s += "(" + c.View + ")"
	}
	return s
}
