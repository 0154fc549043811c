package emulator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/GriffinCanCode/webview-isolation/internal/emulator/sandbox"
	"github.com/GriffinCanCode/webview-isolation/internal/fixture"
	"github.com/GriffinCanCode/webview-isolation/internal/infrastructure/logging"
)

// topLevel is the frame index of a window's own document.
const topLevel = -1

var (
	errNoSuchWindow  = errors.New("no such window")
	errNoSuchFrame   = errors.New("no such frame")
	errNoSuchElement = errors.New("no such element")
	errSessionClosed = errors.New("session closed")
)

// browsingContext is one document and its script runtime.
type browsingContext struct {
	role    role
	url     string
	dom     *sandbox.DOM
	runtime *sandbox.Runtime
}

func (bc *browsingContext) close() {
	if bc != nil && bc.runtime != nil {
		_ = bc.runtime.Close()
	}
}

// window is a top-level window: its document plus any webview panes.
type window struct {
	handle string
	top    *browsingContext
	panes  []*browsingContext
}

func (w *window) close() {
	w.top.close()
	for _, p := range w.panes {
		p.close()
	}
}

// appSession is one launched application instance.
type appSession struct {
	id     string
	emu    *Emulator
	doc    fixture.Document
	logger *logging.Logger

	mu       sync.Mutex
	windows  []*window
	current  *window
	frame    int
	elements map[string]*html.Node
	ids      map[*html.Node]string
	timers   []*time.Timer
	closed   bool
}

// contextHost is the sandbox.Host of one browsing context.
type contextHost struct {
	session *appSession
	url     string
}

func (h contextHost) Location() string { return h.url }

func (h contextHost) Open(url, name string) {
	h.session.scheduleWindow(url, name)
}

// launch creates a session and opens its windows.
func (e *Emulator) launch(ctx context.Context, doc fixture.Document) (*appSession, error) {
	s := &appSession{
		id:       uuid.NewString(),
		emu:      e,
		doc:      doc,
		frame:    topLevel,
		elements: make(map[string]*html.Node),
		ids:      make(map[*html.Node]string),
	}
	s.logger = e.logger.WithFields(zap.String("session", s.id))

	shell, err := s.openWindow(ctx, roleShell, e.cfg.ShellURL)
	if err != nil {
		return nil, fmt.Errorf("open main window: %w", err)
	}
	s.windows = []*window{shell}
	s.current = shell

	teams := make([]*window, 0, len(doc.Teams))
	for _, team := range doc.Teams {
		w, err := s.openTeamWindow(ctx, team)
		if err != nil {
			shell.close()
			for _, t := range teams {
				t.close()
			}
			return nil, fmt.Errorf("open window for team %s: %w", team.Name, err)
		}
		teams = append(teams, w)
	}

	register := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			for _, w := range teams {
				w.close()
			}
			return
		}
		s.windows = append(s.windows, teams...)
		s.logger.Debug("team windows registered", zap.Int("windows", len(s.windows)))
	}

	if delay := e.cfg.Policy.ReadyDelay; delay > 0 {
		s.timers = append(s.timers, time.AfterFunc(delay, register))
	} else {
		register()
	}
	return s, nil
}

// load builds a browsing context for url playing r.
func (s *appSession) load(ctx context.Context, r role, url string, page string) (*browsingContext, error) {
	dom, err := sandbox.ParseDOM(page)
	if err != nil {
		return nil, err
	}

	cfg := s.emu.cfg.Policy.sandbox(r, s.emu.cfg.ScriptTimeout)
	rt, err := sandbox.New(cfg, dom, contextHost{session: s, url: url}, s.logger.WithFields(zap.Stringer("role", r)))
	if err != nil {
		return nil, fmt.Errorf("create runtime: %w", err)
	}
	if err := rt.Load(ctx); err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("load %s: %w", url, err)
	}
	return &browsingContext{role: r, url: url, dom: dom, runtime: rt}, nil
}

// page returns the document served at url for role r.
func (s *appSession) page(ctx context.Context, r role, url string) (string, error) {
	switch r {
	case roleShell:
		return shellPage(s.doc), nil
	case roleSettings:
		return settingsPage, nil
	}
	return s.emu.fetch(ctx, url)
}

func (s *appSession) openWindow(ctx context.Context, r role, url string) (*window, error) {
	page, err := s.page(ctx, r, url)
	if err != nil {
		return nil, err
	}
	top, err := s.load(ctx, r, url, page)
	if err != nil {
		return nil, err
	}
	return &window{handle: uuid.NewString(), top: top}, nil
}

func (s *appSession) openTeamWindow(ctx context.Context, team fixture.Team) (*window, error) {
	top, err := s.load(ctx, roleHost, "app://team/"+team.Name, hostPage(team, s.emu.cfg.Policy))
	if err != nil {
		return nil, err
	}

	page, err := s.emu.fetch(ctx, team.URL)
	if err != nil {
		top.close()
		return nil, err
	}
	pane, err := s.load(ctx, roleContent, team.URL, page)
	if err != nil {
		top.close()
		return nil, err
	}
	return &window{handle: uuid.NewString(), top: top, panes: []*browsingContext{pane}}, nil
}

// scheduleWindow registers a popup for url after the spawn delay.
func (s *appSession) scheduleWindow(url, name string) {
	policy := s.emu.cfg.Policy
	if policy.SuppressPopups {
		s.logger.Debug("window.open suppressed", zap.String("url", url))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.logger.Debug("window.open", zap.String("url", url), zap.String("name", name))
	s.timers = append(s.timers, time.AfterFunc(policy.SpawnDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.emu.cfg.ScriptTimeout)
		defer cancel()

		w, err := s.openWindow(ctx, rolePopup, url)
		if err != nil {
			s.logger.Warn("popup failed to open", zap.String("url", url), zap.Error(err))
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			w.close()
			return
		}
		s.windows = append(s.windows, w)
		s.logger.Debug("popup registered", zap.Int("windows", len(s.windows)))
	}))
}

func (s *appSession) handles() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errSessionClosed
	}
	handles := make([]string, len(s.windows))
	for i, w := range s.windows {
		handles[i] = w.handle
	}
	return handles, nil
}

func (s *appSession) switchWindow(handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.windows {
		if w.handle == handle {
			s.current = w
			s.frame = topLevel
			return nil
		}
	}
	return errNoSuchWindow
}

func (s *appSession) switchFrame(index *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index == nil {
		s.frame = topLevel
		return nil
	}
	// Panes are only addressable from the window's own document.
	if s.frame != topLevel || *index < 0 || *index >= len(s.current.panes) {
		return errNoSuchFrame
	}
	s.frame = *index
	return nil
}

func (s *appSession) parentFrame() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = topLevel
}

// context returns the browsing context commands currently apply to.
func (s *appSession) context() (*browsingContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errSessionClosed
	}
	if s.frame == topLevel {
		return s.current.top, nil
	}
	if s.frame >= len(s.current.panes) {
		return nil, errNoSuchFrame
	}
	return s.current.panes[s.frame], nil
}

func (s *appSession) currentHandle() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.handle
}

func (s *appSession) currentURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.top.url
}

// navigate replaces the current window's document. The settings URL loads
// the settings view.
func (s *appSession) navigate(ctx context.Context, url string) error {
	r := roleContent
	if url == s.emu.cfg.SettingsURL {
		r = roleSettings
	}
	page, err := s.page(ctx, r, url)
	if err != nil {
		return err
	}
	bc, err := s.load(ctx, r, url, page)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		bc.close()
		return errSessionClosed
	}
	w := s.current
	old := &window{top: w.top, panes: w.panes}
	w.top, w.panes = bc, nil
	s.frame = topLevel
	s.mu.Unlock()

	// Runtimes are closed outside s.mu: a script still running in the old
	// document may be waiting on it from window.open.
	old.close()
	s.logger.Debug("navigated", zap.String("url", url), zap.Stringer("role", r))
	return nil
}

// register returns stable element ids for nodes.
func (s *appSession) register(nodes []*html.Node) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		id, ok := s.ids[n]
		if !ok {
			id = uuid.NewString()
			s.ids[n] = id
			s.elements[id] = n
		}
		ids[i] = id
	}
	return ids
}

func (s *appSession) element(id string) (*html.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.elements[id]
	if !ok {
		return nil, errNoSuchElement
	}
	return n, nil
}

// close quits the application: pending windows never appear.
func (s *appSession) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, t := range s.timers {
		t.Stop()
	}
	windows := s.windows
	s.windows = nil
	s.mu.Unlock()

	for _, w := range windows {
		w.close()
	}
}
