// Package queue serializes work against a single harness session.
//
// Probes may be issued concurrently, but a session has exactly one current
// context selection. Each submitted Task owns the session for its whole
// select-then-execute sequence and runs on the queue's single worker, so no
// task ever observes another task's selection. Callers await a Future per
// task.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/webview-isolation/internal/harness"
	"github.com/GriffinCanCode/webview-isolation/internal/infrastructure/logging"
)

var ErrQueueClosed = errors.New("session queue is closed")

// Task is a unit of work with exclusive use of the session.
type Task func(ctx context.Context, s harness.Session) (any, error)

type job struct {
	ctx    context.Context
	name   string
	task   Task
	future *Future
}

// Queue runs tasks one at a time, in submission order, on one goroutine.
type Queue struct {
	session harness.Session
	logger  *logging.Logger

	jobs chan job
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

// New starts a queue worker for session. depth bounds how many submitted
// tasks may wait before Submit blocks.
func New(session harness.Session, logger *logging.Logger, depth int) *Queue {
	if depth <= 0 {
		depth = 16
	}

	q := &Queue{
		session: session,
		logger:  logging.OrNop(logger).Component("queue"),
		jobs:    make(chan job, depth),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

// Submit enqueues task and returns immediately with its Future. A closed
// queue or a ctx that ends before the task is accepted resolves the Future
// with an error.
func (q *Queue) Submit(ctx context.Context, name string, task Task) *Future {
	f := newFuture(name)

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		f.resolve(nil, ErrQueueClosed)
		return f
	}

	select {
	case q.jobs <- job{ctx: ctx, name: name, task: task, future: f}:
	case <-ctx.Done():
		f.resolve(nil, ctx.Err())
	}
	return f
}

// Do submits task and waits for its result.
func (q *Queue) Do(ctx context.Context, name string, task Task) (any, error) {
	return q.Submit(ctx, name, task).Await(ctx)
}

// Close stops accepting tasks, lets already accepted tasks finish and waits
// for the worker to exit. It is safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	<-q.done
}

func (q *Queue) run() {
	defer close(q.done)

	for j := range q.jobs {
		if err := j.ctx.Err(); err != nil {
			j.future.resolve(nil, err)
			continue
		}

		start := time.Now()
		value, err := q.execute(j)
		q.logger.Debug("task finished",
			zap.String("task", j.name),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		j.future.resolve(value, err)
	}
}

func (q *Queue) execute(j job) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", j.name, r)
		}
	}()
	return j.task(j.ctx, q.session)
}

// Future is the pending result of a submitted Task.
type Future struct {
	name  string
	done  chan struct{}
	once  sync.Once
	value any
	err   error
}

func newFuture(name string) *Future {
	return &Future{name: name, done: make(chan struct{})}
}

func (f *Future) resolve(value any, err error) {
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
	})
}

// Name returns the name the task was submitted under.
func (f *Future) Name() string { return f.name }

// Done is closed once the task has finished.
func (f *Future) Done() <-chan struct{} { return f.done }

// Await blocks until the task finishes or ctx ends.
func (f *Future) Await(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
