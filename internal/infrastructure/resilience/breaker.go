package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrOpen is returned, wrapped with the breaker name, while a breaker is
// rejecting calls.
var ErrOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures the circuit breaker behavior
type Settings struct {
	// Threshold is the number of consecutive failures that opens the
	// breaker. Zero disables the breaker: every call passes through.
	Threshold int
	// Cooldown is how long the breaker stays open before a trial call is
	// let through.
	Cooldown time.Duration
	// IsFailure decides which errors count against the threshold. By
	// default every error except context cancellation does.
	IsFailure func(err error) bool
	// OnStateChange is called whenever the state changes
	OnStateChange func(name string, from State, to State)
}

// Breaker fails calls fast once the thing behind it has stopped answering.
// In half-open state a single trial call is let through; its outcome closes
// or reopens the breaker.
type Breaker struct {
	name     string
	settings Settings
	now      func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	trial    bool
}

// New creates a closed breaker.
func New(name string, settings Settings) *Breaker {
	if settings.Cooldown <= 0 {
		settings.Cooldown = 5 * time.Second
	}
	if settings.IsFailure == nil {
		settings.IsFailure = func(err error) bool {
			return err != nil && !errors.Is(err, context.Canceled)
		}
	}
	return &Breaker{name: name, settings: settings, now: time.Now}
}

// Name returns the name of the circuit breaker
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state of the circuit breaker
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState(b.now())
}

// Call runs fn unless the breaker is open. A nil Breaker runs fn directly.
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if b == nil || b.settings.Threshold <= 0 {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	trial, err := b.before()
	if err != nil {
		return err
	}
	err = fn(ctx)
	b.after(trial, err)
	return err
}

func (b *Breaker) before() (trial bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.currentState(b.now()) {
	case StateOpen:
		return false, fmt.Errorf("%s: %w", b.name, ErrOpen)
	case StateHalfOpen:
		if b.trial {
			return false, fmt.Errorf("%s: %w (trial in flight)", b.name, ErrOpen)
		}
		b.trial = true
		return true, nil
	}
	return false, nil
}

func (b *Breaker) after(trial bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if trial {
		b.trial = false
	}
	if !b.settings.IsFailure(err) {
		b.onSuccess(now)
		return
	}
	b.onFailure(now)
}

func (b *Breaker) onSuccess(now time.Time) {
	b.failures = 0
	if b.state != StateClosed {
		b.setState(StateClosed, now)
	}
}

func (b *Breaker) onFailure(now time.Time) {
	switch b.currentState(now) {
	case StateClosed:
		b.failures++
		if b.failures >= b.settings.Threshold {
			b.setState(StateOpen, now)
		}
	case StateHalfOpen:
		b.setState(StateOpen, now)
	}
}

// currentState moves an open breaker to half-open once the cooldown has
// passed.
func (b *Breaker) currentState(now time.Time) State {
	if b.state == StateOpen && !now.Before(b.openedAt.Add(b.settings.Cooldown)) {
		b.setState(StateHalfOpen, now)
	}
	return b.state
}

func (b *Breaker) setState(state State, now time.Time) {
	if b.state == state {
		return
	}

	prev := b.state
	b.state = state
	switch state {
	case StateOpen:
		b.openedAt = now
	case StateClosed:
		b.failures = 0
	}

	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, prev, state)
	}
}
