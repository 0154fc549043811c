package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("HARNESS_DRIVER_URL", "http://driver:4444")
	t.Setenv("HARNESS_DRIVER_RPS", "20")
	t.Setenv("HARNESS_APP_BINARY", "/opt/app/app")
	t.Setenv("HARNESS_APP_ARGS", "--no-sandbox,--headless")
	t.Setenv("HARNESS_FIXTURE_TEAMS", "alpha,beta,gamma")
	t.Setenv("HARNESS_TIMEOUT_SPAWN", "750ms")
	t.Setenv("HARNESS_REPORT_SCENARIOS", "eval-*")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://driver:4444", cfg.Driver.URL)
	assert.Equal(t, 20.0, cfg.Driver.RateLimit)
	assert.Equal(t, "/opt/app/app", cfg.App.Binary)
	assert.Equal(t, []string{"--no-sandbox", "--headless"}, cfg.App.Args)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, cfg.Fixture.Teams)
	assert.Equal(t, 750*time.Millisecond, cfg.Timeouts.Spawn)
	assert.Equal(t, "eval-*", cfg.Report.Scenarios)
	assert.Equal(t, 8181, cfg.Fixture.Port)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("HARNESS_TIMEOUT_STARTUP", "soon")
	_, err := Load()
	assert.Error(t, err)

	cfg := LoadOrDefault()
	assert.Equal(t, Default(), cfg)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"no driver", func(c *Config) { c.Driver.URL = "" }, "driver url"},
		{"no teams", func(c *Config) { c.Fixture.Teams = nil }, "team"},
		{"bad port", func(c *Config) { c.Fixture.Port = 70000 }, "port"},
		{"negative rps", func(c *Config) { c.Driver.RateLimit = -1 }, "rps"},
		{"zero spawn", func(c *Config) { c.Timeouts.Spawn = 0 }, "spawn timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadProfile(t *testing.T) {
	tests := []struct {
		file    string
		content string
	}{
		{"app.yaml", `
driver: http://127.0.0.1:9999
binary: ./dist/app
args: ["--enable-logging"]
settings_url: app://preferences
teams: [one, two, three]
startup_timeout: 20s
spawn_timeout: 2s
scenarios: "{static,eval}-*"
`},
		{"app.toml", `
driver = "http://127.0.0.1:9999"
binary = "./dist/app"
args = ["--enable-logging"]
settings_url = "app://preferences"
teams = ["one", "two", "three"]
startup_timeout = "20s"
spawn_timeout = "2s"
scenarios = "{static,eval}-*"
`},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			p, err := LoadProfile(path)
			require.NoError(t, err)

			cfg := Default()
			cfg.ApplyProfile(p)
			assert.Equal(t, "http://127.0.0.1:9999", cfg.Driver.URL)
			assert.Equal(t, "./dist/app", cfg.App.Binary)
			assert.Equal(t, []string{"--enable-logging"}, cfg.App.Args)
			assert.Equal(t, "app://preferences", cfg.App.SettingsURL)
			assert.Equal(t, []string{"one", "two", "three"}, cfg.Fixture.Teams)
			assert.Equal(t, 20*time.Second, cfg.Timeouts.Startup)
			assert.Equal(t, 2*time.Second, cfg.Timeouts.Spawn)
			assert.Equal(t, "{static,eval}-*", cfg.Report.Scenarios)

			// Unset fields keep their values.
			assert.Equal(t, "config.json", cfg.App.ConfigPath)
			assert.Equal(t, 8181, cfg.Fixture.Port)
		})
	}
}

func TestLoadProfileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadProfile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	ini := filepath.Join(dir, "app.ini")
	require.NoError(t, os.WriteFile(ini, []byte("x=1"), 0o644))
	_, err = LoadProfile(ini)
	assert.ErrorContains(t, err, "unsupported format")

	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte(`spawn_timeout = "later"`), 0o644))
	_, err = LoadProfile(bad)
	assert.ErrorContains(t, err, "parse profile")
}

func TestApplyNilProfile(t *testing.T) {
	cfg := Default()
	cfg.ApplyProfile(nil)
	assert.Equal(t, Default(), cfg)
}
