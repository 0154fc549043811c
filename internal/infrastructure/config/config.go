package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable, e.g.
// HARNESS_DRIVER_URL or HARNESS_TIMEOUT_SPAWN.
const Prefix = "HARNESS"

// Config holds the harness configuration.
type Config struct {
	Driver   DriverConfig  `envconfig:"DRIVER"`
	App      AppConfig     `envconfig:"APP"`
	Fixture  FixtureConfig `envconfig:"FIXTURE"`
	Timeouts TimeoutConfig `envconfig:"TIMEOUT"`
	Logging  LogConfig     `envconfig:"LOG"`
	Report   ReportConfig  `envconfig:"REPORT"`
}

// DriverConfig holds the WebDriver connection.
type DriverConfig struct {
	URL              string        `envconfig:"URL" default:"http://127.0.0.1:9515"`
	CommandTimeout   time.Duration `envconfig:"COMMAND_TIMEOUT" default:"10s"`
	RateLimit        float64       `envconfig:"RPS" default:"0"`
	Retries          int           `envconfig:"RETRIES" default:"2"`
	BreakerThreshold int           `envconfig:"BREAKER_THRESHOLD" default:"3"`
	BreakerCooldown  time.Duration `envconfig:"BREAKER_COOLDOWN" default:"2s"`
}

// AppConfig describes the application under test.
type AppConfig struct {
	Binary      string   `envconfig:"BINARY"`
	Args        []string `envconfig:"ARGS"`
	ConfigPath  string   `envconfig:"CONFIG_PATH" default:"config.json"`
	SettingsURL string   `envconfig:"SETTINGS_URL" default:"app://settings"`
}

// FixtureConfig holds the fixture content server and the teams pointed at it.
type FixtureConfig struct {
	Host  string   `envconfig:"HOST" default:"127.0.0.1"`
	Port  int      `envconfig:"PORT" default:"8181"`
	Teams []string `envconfig:"TEAMS" default:"example_1,example_2"`
}

// TimeoutConfig bounds every wait in a run.
type TimeoutConfig struct {
	Startup  time.Duration `envconfig:"STARTUP" default:"10s"`
	Spawn    time.Duration `envconfig:"SPAWN" default:"5s"`
	Poll     time.Duration `envconfig:"POLL" default:"100ms"`
	Teardown time.Duration `envconfig:"TEARDOWN" default:"5s"`
	Scenario time.Duration `envconfig:"SCENARIO" default:"1m"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LEVEL" default:"info"`
	Development bool   `envconfig:"DEV" default:"false"`
}

// ReportConfig names the run outputs. Empty paths are not written.
type ReportConfig struct {
	JSON      string `envconfig:"JSON"`
	Metrics   string `envconfig:"METRICS"`
	Scenarios string `envconfig:"SCENARIOS"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Driver: DriverConfig{
			URL:              "http://127.0.0.1:9515",
			CommandTimeout:   10 * time.Second,
			Retries:          2,
			BreakerThreshold: 3,
			BreakerCooldown:  2 * time.Second,
		},
		App: AppConfig{
			ConfigPath:  "config.json",
			SettingsURL: "app://settings",
		},
		Fixture: FixtureConfig{
			Host:  "127.0.0.1",
			Port:  8181,
			Teams: []string{"example_1", "example_2"},
		},
		Timeouts: TimeoutConfig{
			Startup:  10 * time.Second,
			Spawn:    5 * time.Second,
			Poll:     100 * time.Millisecond,
			Teardown: 5 * time.Second,
			Scenario: time.Minute,
		},
		Logging: LogConfig{
			Level: "info",
		},
	}
}

// Validate reports every setting the harness cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Driver.URL == "" {
		errs = append(errs, errors.New("driver url is required"))
	}
	if c.Driver.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("driver rps %v is negative", c.Driver.RateLimit))
	}
	if len(c.Fixture.Teams) == 0 {
		errs = append(errs, errors.New("at least one team is required"))
	}
	if c.Fixture.Port < 0 || c.Fixture.Port > 65535 {
		errs = append(errs, fmt.Errorf("fixture port %d out of range", c.Fixture.Port))
	}

	timeouts := []struct {
		name  string
		value time.Duration
	}{
		{"startup", c.Timeouts.Startup},
		{"spawn", c.Timeouts.Spawn},
		{"poll", c.Timeouts.Poll},
		{"teardown", c.Timeouts.Teardown},
	}
	for _, t := range timeouts {
		if t.value <= 0 {
			errs = append(errs, fmt.Errorf("%s timeout must be positive, got %s", t.name, t.value))
		}
	}
	return errors.Join(errs...)
}
