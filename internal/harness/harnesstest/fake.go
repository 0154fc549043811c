// Package harnesstest provides in-memory Session doubles for harness tests.
package harnesstest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/webview-isolation/internal/harness"
)

// ExecFunc answers an Execute call made while current was selected.
type ExecFunc func(current harness.Context, script string, args []any) (any, error)

// AttrFunc answers a GetAttribute call made while current was selected.
type AttrFunc func(current harness.Context, selector, name string) ([]string, error)

// FakeSession is a scriptable in-memory Session. Window i has Panes[i]
// embedded panes. The zero value has no windows.
type FakeSession struct {
	mu      sync.Mutex
	handles []string
	panes   map[int]int
	current harness.Context
	url     map[int]string

	Exec  ExecFunc
	Attrs AttrFunc

	// Latency is slept inside every operation to widen race windows.
	Latency time.Duration

	stops    atomic.Int32
	inFlight atomic.Int32
	overlaps atomic.Int32
	calls    []string
}

// NewFakeSession returns a session with windows top-level windows, panes
// embedded panes in every window except the main one.
func NewFakeSession(windows, panes int) *FakeSession {
	s := &FakeSession{
		panes:   make(map[int]int),
		url:     make(map[int]string),
		current: harness.WindowContext(0),
	}
	for i := 0; i < windows; i++ {
		s.handles = append(s.handles, fmt.Sprintf("handle-%d", i))
		if i > 0 {
			s.panes[i] = panes
		}
	}
	return s
}

// AddWindow registers a new top-level window, as the application does after
// a content-initiated window.open.
func (s *FakeSession) AddWindow() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles = append(s.handles, fmt.Sprintf("handle-%d", len(s.handles)))
}

// Stops returns how many times Stop was called.
func (s *FakeSession) Stops() int { return int(s.stops.Load()) }

// Overlaps returns how many operations started while another was running.
func (s *FakeSession) Overlaps() int { return int(s.overlaps.Load()) }

// Calls returns the operations performed so far.
func (s *FakeSession) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// URL returns the last URL navigated to in window index.
func (s *FakeSession) URL(index int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url[index]
}

func (s *FakeSession) enter(call string) func() {
	if s.inFlight.Add(1) > 1 {
		s.overlaps.Add(1)
	}
	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()
	if s.Latency > 0 {
		time.Sleep(s.Latency)
	}
	return func() { s.inFlight.Add(-1) }
}

func (s *FakeSession) ListWindows(ctx context.Context) ([]string, error) {
	defer s.enter("list")()
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.handles...), nil
}

func (s *FakeSession) SelectWindow(ctx context.Context, index int) error {
	defer s.enter(fmt.Sprintf("window %d", index))()
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.handles) {
		return &harness.IndexOutOfRangeError{Index: index, Count: len(s.handles)}
	}
	s.current = harness.WindowContext(index)
	return nil
}

func (s *FakeSession) SelectEmbeddedPane(ctx context.Context, pane int) error {
	defer s.enter(fmt.Sprintf("pane %d", pane))()
	s.mu.Lock()
	defer s.mu.Unlock()
	if pane < 0 || pane >= s.panes[s.current.Window] {
		return &harness.NoSuchPaneError{Pane: pane}
	}
	s.current.Pane = pane
	return nil
}

func (s *FakeSession) Execute(ctx context.Context, script string, args ...any) (any, error) {
	defer s.enter("execute")()
	s.mu.Lock()
	current := s.current
	exec := s.Exec
	s.mu.Unlock()
	if exec == nil {
		return nil, nil
	}
	return exec(current, script, args)
}

func (s *FakeSession) GetAttribute(ctx context.Context, selector, name string) ([]string, error) {
	defer s.enter("attribute")()
	s.mu.Lock()
	current := s.current
	attrs := s.Attrs
	s.mu.Unlock()
	if attrs == nil {
		return nil, nil
	}
	return attrs(current, selector, name)
}

func (s *FakeSession) Navigate(ctx context.Context, url string) error {
	defer s.enter("navigate")()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.url[s.current.Window] = url
	return nil
}

func (s *FakeSession) Stop(ctx context.Context) error {
	s.stops.Add(1)
	return nil
}
