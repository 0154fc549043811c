package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// Profile is a checked-in description of one application under test. Every
// field is optional; set fields override the environment.
type Profile struct {
	Driver      string   `yaml:"driver" toml:"driver"`
	Binary      string   `yaml:"binary" toml:"binary"`
	Args        []string `yaml:"args" toml:"args"`
	ConfigPath  string   `yaml:"config_path" toml:"config_path"`
	SettingsURL string   `yaml:"settings_url" toml:"settings_url"`
	Teams       []string `yaml:"teams" toml:"teams"`
	FixturePort int      `yaml:"fixture_port" toml:"fixture_port"`
	Startup     Duration `yaml:"startup_timeout" toml:"startup_timeout"`
	Spawn       Duration `yaml:"spawn_timeout" toml:"spawn_timeout"`
	Scenarios   string   `yaml:"scenarios" toml:"scenarios"`
}

// Duration is a time.Duration written as "5s" in profile files.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// LoadProfile reads a YAML (.yaml, .yml) or TOML (.toml) profile.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}

	var p Profile
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &p)
	case ".toml":
		err = toml.Unmarshal(data, &p)
	default:
		return nil, fmt.Errorf("profile %s: unsupported format %q", path, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}
	return &p, nil
}

// ApplyProfile overlays the set fields of p onto c.
func (c *Config) ApplyProfile(p *Profile) {
	if p == nil {
		return
	}
	setString(&c.Driver.URL, p.Driver)
	setString(&c.App.Binary, p.Binary)
	setString(&c.App.ConfigPath, p.ConfigPath)
	setString(&c.App.SettingsURL, p.SettingsURL)
	setString(&c.Report.Scenarios, p.Scenarios)
	if len(p.Args) > 0 {
		c.App.Args = p.Args
	}
	if len(p.Teams) > 0 {
		c.Fixture.Teams = p.Teams
	}
	if p.FixturePort != 0 {
		c.Fixture.Port = p.FixturePort
	}
	if p.Startup > 0 {
		c.Timeouts.Startup = time.Duration(p.Startup)
	}
	if p.Spawn > 0 {
		c.Timeouts.Spawn = time.Duration(p.Spawn)
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
