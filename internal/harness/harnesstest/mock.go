package harnesstest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/GriffinCanCode/webview-isolation/internal/fixture"
	"github.com/GriffinCanCode/webview-isolation/internal/harness"
)

// MockSession is a testify mock of harness.Session.
type MockSession struct {
	mock.Mock
}

func (m *MockSession) ListWindows(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockSession) SelectWindow(ctx context.Context, index int) error {
	return m.Called(ctx, index).Error(0)
}

func (m *MockSession) SelectEmbeddedPane(ctx context.Context, pane int) error {
	return m.Called(ctx, pane).Error(0)
}

func (m *MockSession) Execute(ctx context.Context, script string, args ...any) (any, error) {
	called := m.Called(ctx, script)
	return called.Get(0), called.Error(1)
}

func (m *MockSession) GetAttribute(ctx context.Context, selector, name string) ([]string, error) {
	args := m.Called(ctx, selector, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockSession) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockSession) Stop(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// MockLauncher is a testify mock of harness.Launcher.
type MockLauncher struct {
	mock.Mock
}

func (m *MockLauncher) Start(ctx context.Context, doc fixture.Document) (harness.Session, error) {
	args := m.Called(ctx, doc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(harness.Session), args.Error(1)
}

// StaticLauncher hands out the same session on every Start.
type StaticLauncher struct {
	Session harness.Session
	Err     error
	Starts  int
}

func (l *StaticLauncher) Start(ctx context.Context, doc fixture.Document) (harness.Session, error) {
	l.Starts++
	if l.Err != nil {
		return nil, l.Err
	}
	return l.Session, nil
}
