package emulator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/webview-isolation/internal/fixture"
	"github.com/GriffinCanCode/webview-isolation/internal/infrastructure/logging"
	"github.com/GriffinCanCode/webview-isolation/internal/infrastructure/monitoring"
)

// Config configures an Emulator.
type Config struct {
	Policy Policy

	// Addr is the listen address for Start. Defaults to 127.0.0.1:0.
	Addr string
	// ConfigPath is read for the fixture document when a session is
	// created, the way the application reads its configuration on launch.
	// When empty, Document is used instead.
	ConfigPath string
	Document   *fixture.Document

	ShellURL      string
	SettingsURL   string
	ScriptTimeout time.Duration
	FetchTimeout  time.Duration

	Metrics *monitoring.Metrics
}

// DefaultConfig returns a secure emulator reading its configuration from
// configPath.
func DefaultConfig(configPath string) Config {
	return Config{
		Policy:        SecurePolicy(),
		Addr:          "127.0.0.1:0",
		ConfigPath:    configPath,
		ShellURL:      "app://main",
		SettingsURL:   "app://settings",
		ScriptTimeout: 5 * time.Second,
		FetchTimeout:  5 * time.Second,
	}
}

// Emulator serves the WebDriver protocol for emulated application sessions.
type Emulator struct {
	cfg    Config
	logger *logging.Logger
	client *resty.Client
	router *gin.Engine

	mu       sync.Mutex
	sessions map[string]*appSession

	created atomic.Int32
	deleted atomic.Int32

	srvMu    sync.Mutex
	http     *http.Server
	listener net.Listener
	served   chan error
}

// New creates a stopped emulator.
func New(cfg Config, logger *logging.Logger) *Emulator {
	defaults := DefaultConfig(cfg.ConfigPath)
	if cfg.Addr == "" {
		cfg.Addr = defaults.Addr
	}
	if cfg.ShellURL == "" {
		cfg.ShellURL = defaults.ShellURL
	}
	if cfg.SettingsURL == "" {
		cfg.SettingsURL = defaults.SettingsURL
	}
	if cfg.ScriptTimeout <= 0 {
		cfg.ScriptTimeout = defaults.ScriptTimeout
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaults.FetchTimeout
	}

	e := &Emulator{
		cfg:      cfg,
		logger:   logging.OrNop(logger).Component("emulator"),
		sessions: make(map[string]*appSession),
		client: resty.New().
			SetTimeout(cfg.FetchTimeout).
			SetHeader("User-Agent", "webview-isolation-emulator/1.0"),
	}
	e.router = e.routes()
	return e
}

// Policy returns the emulated application's policy.
func (e *Emulator) Policy() Policy {
	return e.cfg.Policy
}

// SettingsURL is the URL that opens the settings view.
func (e *Emulator) SettingsURL() string {
	return e.cfg.SettingsURL
}

// SessionsCreated counts successful POST /session calls.
func (e *Emulator) SessionsCreated() int {
	return int(e.created.Load())
}

// SessionsDeleted counts DELETE /session calls for live sessions.
func (e *Emulator) SessionsDeleted() int {
	return int(e.deleted.Load())
}

// Handler exposes the router, e.g. for httptest.
func (e *Emulator) Handler() http.Handler {
	return e.router
}

func (e *Emulator) document() (fixture.Document, error) {
	if e.cfg.ConfigPath != "" {
		return fixture.Read(e.cfg.ConfigPath)
	}
	if e.cfg.Document != nil {
		return *e.cfg.Document, nil
	}
	return fixture.Document{}, errors.New("no configuration: set ConfigPath or Document")
}

func (e *Emulator) fetch(ctx context.Context, url string) (string, error) {
	resp, err := e.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("fetch %s: HTTP %d", url, resp.StatusCode())
	}
	return resp.String(), nil
}

func (e *Emulator) session(id string) (*appSession, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[id]
	return s, ok
}

// Start listens and serves in the background.
func (e *Emulator) Start() error {
	e.srvMu.Lock()
	defer e.srvMu.Unlock()

	if e.http != nil {
		return errors.New("emulator already started")
	}

	ln, err := net.Listen("tcp", e.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", e.cfg.Addr, err)
	}

	e.listener = ln
	e.http = &http.Server{
		Handler:           e.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	e.served = make(chan error, 1)

	go func(srv *http.Server, done chan<- error) {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		done <- err
	}(e.http, e.served)

	e.logger.Info("emulator listening", zap.String("url", "http://"+ln.Addr().String()))
	return nil
}

// URL returns the WebDriver base URL of a started emulator.
func (e *Emulator) URL() string {
	e.srvMu.Lock()
	defer e.srvMu.Unlock()
	if e.listener == nil {
		return ""
	}
	return "http://" + e.listener.Addr().String()
}

// Stop quits every live session and shuts the server down. Stopping a
// stopped emulator is a no-op.
func (e *Emulator) Stop(ctx context.Context) error {
	e.mu.Lock()
	for id, s := range e.sessions {
		s.close()
		delete(e.sessions, id)
	}
	e.mu.Unlock()

	e.srvMu.Lock()
	srv, served := e.http, e.served
	e.http, e.listener, e.served = nil, nil, nil
	e.srvMu.Unlock()

	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown emulator: %w", err)
	}
	if err := <-served; err != nil {
		return fmt.Errorf("emulator: %w", err)
	}
	e.logger.Info("emulator stopped")
	return nil
}
