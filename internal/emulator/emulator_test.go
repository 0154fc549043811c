package emulator

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/webview-isolation/internal/fixture"
	"github.com/GriffinCanCode/webview-isolation/internal/harness/probe"
	"github.com/GriffinCanCode/webview-isolation/internal/infrastructure/logging"
	"github.com/GriffinCanCode/webview-isolation/internal/webdriver"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func startFixture(t *testing.T) string {
	t.Helper()
	srv := fixture.NewServer(fixture.ServerConfig{}, logging.NewNop())
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })
	return srv.URL()
}

type rig struct {
	emu     *Emulator
	session *webdriver.Session
}

func newRig(t *testing.T, policy Policy) *rig {
	t.Helper()
	doc := fixture.NewDocument(startFixture(t), "example_1", "example_2")

	cfg := DefaultConfig("")
	cfg.Document = &doc
	cfg.Policy = policy
	emu := New(cfg, logging.NewNop())

	srv := httptest.NewServer(emu.Handler())
	t.Cleanup(srv.Close)

	client := webdriver.New(webdriver.DefaultConfig(srv.URL), logging.NewNop())
	session, err := client.NewSession(context.Background(), webdriver.Capabilities{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Delete(context.Background()) })

	r := &rig{emu: emu, session: session}
	r.waitForWindows(t, 3)
	return r
}

func (r *rig) waitForWindows(t *testing.T, n int) []string {
	t.Helper()
	var handles []string
	require.Eventually(t, func() bool {
		var err error
		handles, err = r.session.WindowHandles(context.Background())
		return err == nil && len(handles) == n
	}, 2*time.Second, 10*time.Millisecond)
	return handles
}

func (r *rig) selectWindow(t *testing.T, index int) {
	t.Helper()
	handles, err := r.session.WindowHandles(context.Background())
	require.NoError(t, err)
	require.Greater(t, len(handles), index)
	require.NoError(t, r.session.SwitchToWindow(context.Background(), handles[index]))
}

func (r *rig) exec(t *testing.T, script string) (any, error) {
	t.Helper()
	return r.session.ExecuteScript(context.Background(), script, nil)
}

func fastPolicy() Policy {
	p := SecurePolicy()
	p.SpawnDelay = 20 * time.Millisecond
	p.ReadyDelay = 20 * time.Millisecond
	return p
}

func TestWindowLayout(t *testing.T) {
	r := newRig(t, fastPolicy())
	ctx := context.Background()

	r.selectWindow(t, 0)
	title, err := r.exec(t, "return document.title;")
	require.NoError(t, err)
	assert.Equal(t, "Teams", title)
	assert.True(t, webdriver.IsNoSuchFrame(r.session.SwitchToFrame(ctx, 0)))

	for i := 1; i <= 2; i++ {
		r.selectWindow(t, i)
		ids, err := r.session.FindElements(ctx, webdriver.ByCSS, "webview")
		require.NoError(t, err)
		require.Len(t, ids, 1)

		require.NoError(t, r.session.SwitchToFrame(ctx, 0))
		title, err := r.exec(t, "return document.title;")
		require.NoError(t, err)
		assert.Equal(t, "isolation fixture", title)

		assert.True(t, webdriver.IsNoSuchFrame(r.session.SwitchToFrame(ctx, 0)), "panes do not nest")
		require.NoError(t, r.session.SwitchToParentFrame(ctx))
		assert.True(t, webdriver.IsNoSuchFrame(r.session.SwitchToFrame(ctx, 1)))
	}
}

func TestNodeIntegrationAttribute(t *testing.T) {
	tests := []struct {
		name string
		node bool
		want string
	}{
		{"secure", false, "false"},
		{"insecure", true, "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := fastPolicy()
			policy.NodeIntegration = tt.node
			r := newRig(t, policy)
			ctx := context.Background()

			r.selectWindow(t, 1)
			for _, using := range []string{webdriver.ByCSS, webdriver.ByXPath} {
				value := "webview"
				if using == webdriver.ByXPath {
					value = "//webview"
				}
				ids, err := r.session.FindElements(ctx, using, value)
				require.NoError(t, err)
				require.Len(t, ids, 1)

				v, ok, err := r.session.ElementAttribute(ctx, ids[0], "nodeintegration")
				require.NoError(t, err)
				assert.True(t, ok)
				assert.Equal(t, tt.want, v)
			}

			_, ok, err := r.session.ElementAttribute(ctx, "missing", "nodeintegration")
			assert.False(t, ok)
			assert.True(t, webdriver.IsCode(err, webdriver.CodeNoSuchElement))
		})
	}
}

func TestHostAPIReachability(t *testing.T) {
	tests := []struct {
		name     string
		node     bool
		wantPane bool
	}{
		{"secure", false, false},
		{"insecure", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := fastPolicy()
			policy.NodeIntegration = tt.node
			r := newRig(t, policy)

			r.selectWindow(t, 1)
			v, err := r.exec(t, probe.HostAPIScript)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPane, v, "window")

			require.NoError(t, r.session.SwitchToFrame(context.Background(), 0))
			v, err = r.exec(t, probe.HostAPIScript)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPane, v, "pane")
		})
	}
}

func TestEvalPolicy(t *testing.T) {
	tests := []struct {
		name          string
		allow         bool
		allowSettings bool
	}{
		{"blocked everywhere", false, false},
		{"allowed outside settings", true, false},
		{"allowed in settings only", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := fastPolicy()
			policy.AllowEval = tt.allow
			policy.AllowEvalInSettings = tt.allowSettings
			r := newRig(t, policy)

			check := func(allowed bool) {
				t.Helper()
				v, err := r.exec(t, probe.EvalScript)
				if allowed {
					require.NoError(t, err)
					assert.Equal(t, float64(2), v)
					return
				}
				require.Error(t, err)
				assert.True(t, webdriver.IsJavaScriptError(err))
				assert.Contains(t, err.Error(), "EvalError")
			}

			r.selectWindow(t, 0)
			check(tt.allow)

			require.NoError(t, r.session.NavigateTo(context.Background(), r.emu.SettingsURL()))
			u, err := r.session.CurrentURL(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "app://settings", u)
			check(tt.allowSettings)

			r.selectWindow(t, 2)
			require.NoError(t, r.session.SwitchToFrame(context.Background(), 0))
			check(tt.allow)
		})
	}
}

func TestWindowOpen(t *testing.T) {
	tests := []struct {
		name     string
		suppress bool
		popup    bool
		want     int
	}{
		{"registers after delay", false, false, 4},
		{"suppressed", true, false, 3},
		{"node in popups", false, true, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := fastPolicy()
			policy.SuppressPopups = tt.suppress
			policy.NodeInPopups = tt.popup
			r := newRig(t, policy)

			r.selectWindow(t, 1)
			require.NoError(t, r.session.SwitchToFrame(context.Background(), 0))
			_, err := r.exec(t, "open_window();")
			require.NoError(t, err)

			if tt.suppress {
				time.Sleep(5 * policy.SpawnDelay)
				handles, err := r.session.WindowHandles(context.Background())
				require.NoError(t, err)
				assert.Len(t, handles, tt.want)
				return
			}

			r.waitForWindows(t, tt.want)
			r.selectWindow(t, 3)
			v, err := r.exec(t, probe.HostAPIScript)
			require.NoError(t, err)
			assert.Equal(t, tt.popup, v)
		})
	}
}

func TestSessionErrors(t *testing.T) {
	r := newRig(t, fastPolicy())
	ctx := context.Background()

	assert.True(t, webdriver.IsNoSuchWindow(r.session.SwitchToWindow(ctx, "nope")))

	_, err := r.exec(t, "throw new Error('boom');")
	assert.True(t, webdriver.IsJavaScriptError(err))

	_, err = r.session.FindElements(ctx, webdriver.ByCSS, "p[")
	assert.True(t, webdriver.IsCode(err, "invalid selector"))

	require.NoError(t, r.session.Delete(ctx))
	assert.Equal(t, 1, r.emu.SessionsCreated())
	assert.Equal(t, 1, r.emu.SessionsDeleted())

	_, err = r.session.WindowHandles(ctx)
	assert.True(t, webdriver.IsCode(err, webdriver.CodeInvalidSessionID))
}

func TestSessionFromConfigPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	doc := fixture.NewDocument(startFixture(t), "a", "b", "c")
	require.NoError(t, doc.Write(path))

	cfg := DefaultConfig(path)
	cfg.Policy = fastPolicy()
	emu := New(cfg, nil)
	require.NoError(t, emu.Start())
	t.Cleanup(func() { _ = emu.Stop(context.Background()) })

	client := webdriver.New(webdriver.DefaultConfig(emu.URL()), nil)
	session, err := client.NewSession(context.Background(), webdriver.Capabilities{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		handles, err := session.WindowHandles(context.Background())
		return err == nil && len(handles) == 4
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSessionNotCreated(t *testing.T) {
	cfg := DefaultConfig(filepath.Join(t.TempDir(), "missing.json"))
	emu := New(cfg, nil)
	srv := httptest.NewServer(emu.Handler())
	t.Cleanup(srv.Close)

	client := webdriver.New(webdriver.DefaultConfig(srv.URL), nil)
	_, err := client.NewSession(context.Background(), webdriver.Capabilities{})
	assert.True(t, webdriver.IsCode(err, webdriver.CodeSessionNotCreated))
	assert.Equal(t, 0, emu.SessionsCreated())
}

func TestStopIsIdempotent(t *testing.T) {
	emu := New(DefaultConfig(""), nil)
	require.NoError(t, emu.Start())
	assert.Error(t, emu.Start())
	require.NoError(t, emu.Stop(context.Background()))
	require.NoError(t, emu.Stop(context.Background()))
	assert.Empty(t, emu.URL())
}
