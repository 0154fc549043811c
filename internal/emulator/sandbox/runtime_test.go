package sandbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = `<!DOCTYPE html>
<html>
<head>
  <title> fixture </title>
  <script>
    var loaded = true;
    function open_window() { window.open(window.location.href, 'fixture'); }
  </script>
  <script>throw new Error('broken page script');</script>
  <script src="external.js"></script>
</head>
<body>
  <webview id="team" nodeintegration="false" src="http://localhost:8181"></webview>
  <p class="note">one</p>
  <p class="note">two</p>
</body>
</html>`

type fakeHost struct {
	mu     sync.Mutex
	opened []string
}

func (h *fakeHost) Location() string { return "http://localhost:8181/" }

func (h *fakeHost) Open(url, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opened = append(h.opened, url+"#"+name)
}

func newRuntime(t *testing.T, cfg Config) (*Runtime, *fakeHost) {
	t.Helper()
	dom, err := ParseDOM(page)
	require.NoError(t, err)

	host := &fakeHost{}
	rt, err := New(cfg, dom, host, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	require.NoError(t, rt.Load(context.Background()))
	return rt, host
}

func TestRuntimeCall(t *testing.T) {
	rt, _ := newRuntime(t, DefaultConfig())

	tests := []struct {
		name   string
		script string
		args   []any
		want   any
	}{
		{"number", "return 42;", nil, float64(42)},
		{"undefined", "var x = 1;", nil, nil},
		{"string", "return 'hello'.toUpperCase();", nil, "HELLO"},
		{"arguments", "return arguments[0] + arguments[1];", []any{2, 3}, float64(5)},
		{"object", "return {a: [1, true]};", nil, map[string]any{"a": []any{float64(1), true}}},
		{"page script state", "return loaded;", nil, true},
		{"title", "return document.title;", nil, "fixture"},
		{"attribute", "return document.querySelector('webview').getAttribute('nodeintegration');", nil, "false"},
		{"missing attribute", "return document.querySelector('webview').getAttribute('preload');", nil, nil},
		{"query all", "return document.querySelectorAll('p.note').length;", nil, float64(2)},
		{"by id", "return document.getElementById('team').tagName;", nil, "WEBVIEW"},
		{"location", "return window.location.href;", nil, "http://localhost:8181/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := rt.Call(context.Background(), tt.script, tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRuntimeLoadRecordsScriptErrors(t *testing.T) {
	rt, _ := newRuntime(t, DefaultConfig())

	console := rt.Console()
	require.Len(t, console, 1)
	assert.Equal(t, "error", console[0].Level)
	assert.Contains(t, console[0].Message, "broken page script")
}

func TestRuntimeNodeIntegration(t *testing.T) {
	const probe = `try {
  if (typeof require !== 'function') { return false; }
  return !!require('child_process');
} catch (e) {
  return false;
}`

	tests := []struct {
		name string
		node bool
		want bool
	}{
		{"disabled", false, false},
		{"enabled", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt, _ := newRuntime(t, Config{NodeIntegration: tt.node})

			got, err := rt.Call(context.Background(), probe, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			kind, err := rt.Call(context.Background(), "return typeof process;", nil)
			require.NoError(t, err)
			if tt.node {
				assert.Equal(t, "object", kind)
			} else {
				assert.Equal(t, "undefined", kind)
			}
		})
	}
}

func TestRuntimeUnknownModule(t *testing.T) {
	rt, _ := newRuntime(t, Config{NodeIntegration: true})

	_, err := rt.Call(context.Background(), "return require('left-pad');", nil)
	var scriptErr *ScriptError
	require.ErrorAs(t, err, &scriptErr)
	assert.Contains(t, scriptErr.Message, "Cannot find module")
}

func TestRuntimeEvalPolicy(t *testing.T) {
	scripts := []string{
		"return eval('1 + 1');",
		"return new Function('return 1 + 1')();",
		"return Function('return 1 + 1')();",
		"return (function(){}).constructor('return 1 + 1')();",
	}

	for _, script := range scripts {
		t.Run(script, func(t *testing.T) {
			blocked, _ := newRuntime(t, Config{})
			_, err := blocked.Call(context.Background(), script, nil)
			var scriptErr *ScriptError
			require.ErrorAs(t, err, &scriptErr)
			assert.Contains(t, scriptErr.Message, "EvalError")

			allowed, _ := newRuntime(t, Config{AllowEval: true})
			got, err := allowed.Call(context.Background(), script, nil)
			require.NoError(t, err)
			assert.Equal(t, float64(2), got)
		})
	}
}

func TestRuntimeEvalErrorIsCatchable(t *testing.T) {
	rt, _ := newRuntime(t, Config{})

	got, err := rt.Call(context.Background(), `try { eval('1'); return 'ran'; } catch (e) { return e instanceof EvalError; }`, nil)
	require.NoError(t, err)
	assert.Equal(t, true, got)
}

func TestRuntimeWindowOpen(t *testing.T) {
	rt, host := newRuntime(t, DefaultConfig())

	_, err := rt.Call(context.Background(), "open_window();", nil)
	require.NoError(t, err)

	host.mu.Lock()
	defer host.mu.Unlock()
	assert.Equal(t, []string{"http://localhost:8181/#fixture"}, host.opened)
}

func TestRuntimeTimeout(t *testing.T) {
	rt, _ := newRuntime(t, Config{Timeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := rt.Call(context.Background(), "while (true) {}", nil)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)

	// The runtime stays usable after an interrupt.
	got, err := rt.Call(context.Background(), "return 1;", nil)
	require.NoError(t, err)
	assert.Equal(t, float64(1), got)
}

func TestRuntimeContextCancel(t *testing.T) {
	rt, _ := newRuntime(t, Config{Timeout: 10 * time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := rt.Call(ctx, "while (true) {}", nil)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestRuntimeSyntaxError(t *testing.T) {
	rt, _ := newRuntime(t, DefaultConfig())

	_, err := rt.Call(context.Background(), "return (;", nil)
	var scriptErr *ScriptError
	require.ErrorAs(t, err, &scriptErr)
}

func TestRuntimeClosed(t *testing.T) {
	rt, _ := newRuntime(t, DefaultConfig())
	require.NoError(t, rt.Close())

	_, err := rt.Call(context.Background(), "return 1;", nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDOMQueries(t *testing.T) {
	dom, err := ParseDOM(page)
	require.NoError(t, err)

	css, err := dom.QueryCSS("webview, p.note")
	require.NoError(t, err)
	assert.Len(t, css, 3)

	xp, err := dom.QueryXPath("//webview[@nodeintegration]")
	require.NoError(t, err)
	require.Len(t, xp, 1)
	v, ok := Attribute(xp[0], "nodeintegration")
	assert.True(t, ok)
	assert.Equal(t, "false", v)

	_, err = dom.QueryCSS("p[")
	assert.Error(t, err)
	_, err = dom.QueryXPath("//p[")
	assert.Error(t, err)

	assert.Len(t, dom.InlineScripts(), 2)
}
