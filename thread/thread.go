// Copyright 2025 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package thread provides a cancellable worker primitive with start/stop
// controls and a running flag that other components can poll.
package thread

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wangtaoking1/msgnet/errors"
	"github.com/wangtaoking1/msgnet/log"
)

// ErrAlreadyStarted is returned when Start is called more than once.
var ErrAlreadyStarted = errors.New("thread already started")

// RunFunc is the body of a thread. It should return when ctx is done.
type RunFunc func(ctx context.Context)

// Executor runs task on some goroutine. It returns an error when the task
// can not be scheduled.
type Executor func(task func()) error

// GoExecutor runs every task on a new goroutine.
func GoExecutor(task func()) error {
	go task()
	return nil
}

// Thread runs a RunFunc once on its own goroutine.
type Thread struct {
	name     string
	run      RunFunc
	executor Executor

	started atomic.Bool
	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}

	mtx     sync.Mutex
	onStop  []func()
	stopped bool
}

// Option configures a Thread.
type Option func(*Thread)

// WithExecutor sets the executor used by Start.
func WithExecutor(executor Executor) Option {
	return func(t *Thread) {
		t.executor = executor
	}
}

// New creates a thread that has not been started yet.
func New(name string, run RunFunc, opts ...Option) *Thread {
	t := &Thread{
		name:     name,
		run:      run,
		executor: GoExecutor,
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(t)
	}

	return t
}

// Name returns the name of the thread.
func (t *Thread) Name() string {
	return t.name
}

// Start marks the thread running and schedules its body on the executor.
func (t *Thread) Start(ctx context.Context) error {
	if !t.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	t.mtx.Lock()
	t.cancel = cancel
	if t.stopped {
		cancel()
	} else {
		t.running.Store(true)
	}
	t.mtx.Unlock()

	err := t.executor(func() {
		defer t.finish()
		defer func() {
			if r := recover(); r != nil {
				log.Errorw("Thread panic", "thread", t.name, "error", r)
			}
		}()

		t.run(ctx)
	})
	if err != nil {
		t.finish()
		return errors.Wrapf(err, "start thread %s", t.name)
	}

	return nil
}

func (t *Thread) finish() {
	t.Stop()
	t.running.Store(false)
	close(t.done)
}

// Stop asks the thread to stop. It cancels the thread context and runs the
// stop hooks once, which lets a body blocked in I/O return promptly.
func (t *Thread) Stop() {
	t.mtx.Lock()
	if t.stopped {
		t.mtx.Unlock()
		return
	}
	t.stopped = true
	hooks := t.onStop
	cancel := t.cancel
	t.running.Store(false)
	t.mtx.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, h := range hooks {
		h()
	}
}

// OnStop registers a hook that runs when the thread is stopped. Hooks added
// after Stop run immediately.
func (t *Thread) OnStop(hook func()) {
	t.mtx.Lock()
	if !t.stopped {
		t.onStop = append(t.onStop, hook)
		t.mtx.Unlock()
		return
	}
	t.mtx.Unlock()

	hook()
}

// Started reports whether Start has been called.
func (t *Thread) Started() bool {
	return t.started.Load()
}

// Stopped reports whether Stop has been called or the body has returned.
func (t *Thread) Stopped() bool {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	return t.stopped
}

// IsRunning reports whether the thread has been started and not stopped.
func (t *Thread) IsRunning() bool {
	return t.running.Load()
}

// Done is closed after the thread body has returned.
func (t *Thread) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the thread body returns or ctx is done.
func (t *Thread) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sleep pauses the current goroutine for d, returning early with the
// context error when ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
