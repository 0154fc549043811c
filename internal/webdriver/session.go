package webdriver

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Locator strategies.
const (
	ByCSS   = "css selector"
	ByXPath = "xpath"
)

// Element reference keys: W3C and JSON Wire.
const (
	elementKey       = "element-6066-11e4-a52e-4f735466cecf"
	legacyElementKey = "ELEMENT"
)

// Session is one WebDriver session. Commands apply to the session's current
// browsing context.
type Session struct {
	client       *Client
	ID           string
	Capabilities map[string]any
}

func (s *Session) path(format string, args ...any) string {
	return "/session/" + url.PathEscape(s.ID) + fmt.Sprintf(format, args...)
}

// Delete ends the session. For Electron this quits the application.
func (s *Session) Delete(ctx context.Context) error {
	_, err := s.client.do(ctx, http.MethodDelete, s.path(""), nil, nil)
	return err
}

// WindowHandles returns the top-level browsing context handles.
func (s *Session) WindowHandles(ctx context.Context) ([]string, error) {
	var handles []string
	if _, err := s.client.do(ctx, http.MethodGet, s.path("/window/handles"), nil, &handles); err != nil {
		return nil, err
	}
	return handles, nil
}

// SwitchToWindow makes handle the current top-level browsing context.
func (s *Session) SwitchToWindow(ctx context.Context, handle string) error {
	// "name" is what JSON Wire drivers read.
	body := map[string]any{"handle": handle, "name": handle}
	_, err := s.client.do(ctx, http.MethodPost, s.path("/window"), body, nil)
	return err
}

// SwitchToFrame descends into the frame at index of the current context.
func (s *Session) SwitchToFrame(ctx context.Context, index int) error {
	_, err := s.client.do(ctx, http.MethodPost, s.path("/frame"), map[string]any{"id": index}, nil)
	return err
}

// SwitchToParentFrame moves to the parent of the current frame.
func (s *Session) SwitchToParentFrame(ctx context.Context) error {
	_, err := s.client.do(ctx, http.MethodPost, s.path("/frame/parent"), map[string]any{}, nil)
	return err
}

// ExecuteScript runs script as a function body with args and returns its
// JSON-decoded return value.
func (s *Session) ExecuteScript(ctx context.Context, script string, args []any) (any, error) {
	if args == nil {
		args = []any{}
	}
	var value any
	body := map[string]any{"script": script, "args": args}
	if _, err := s.client.do(ctx, http.MethodPost, s.path("/execute/sync"), body, &value); err != nil {
		return nil, err
	}
	return value, nil
}

// FindElements returns the IDs of elements matching value in the current
// context.
func (s *Session) FindElements(ctx context.Context, using, value string) ([]string, error) {
	var refs []map[string]string
	body := map[string]any{"using": using, "value": value}
	if _, err := s.client.do(ctx, http.MethodPost, s.path("/elements"), body, &refs); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		id := ref[elementKey]
		if id == "" {
			id = ref[legacyElementKey]
		}
		if id == "" {
			return nil, &Error{Code: CodeUnknownError, Message: fmt.Sprintf("element reference without id: %v", ref)}
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ElementAttribute reads attribute name of element. ok is false when the
// element has no such attribute.
func (s *Session) ElementAttribute(ctx context.Context, element, name string) (value string, ok bool, err error) {
	var v *string
	path := s.path("/element/%s/attribute/%s", url.PathEscape(element), url.PathEscape(name))
	if _, err := s.client.do(ctx, http.MethodGet, path, nil, &v); err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

// NavigateTo loads u in the current top-level browsing context.
func (s *Session) NavigateTo(ctx context.Context, u string) error {
	_, err := s.client.do(ctx, http.MethodPost, s.path("/url"), map[string]any{"url": u}, nil)
	return err
}

// CurrentURL returns the URL of the current top-level browsing context.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var u string
	if _, err := s.client.do(ctx, http.MethodGet, s.path("/url"), nil, &u); err != nil {
		return "", err
	}
	return u, nil
}
