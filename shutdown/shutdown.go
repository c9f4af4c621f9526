// Copyright 2023 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package shutdown runs registered callbacks once, when the first of its
// triggers fires.
package shutdown

import (
	"context"
	"sync"
	"time"

	"github.com/wangtaoking1/msgnet/errors"
)

// DefaultTimeout bounds how long callbacks may take.
const DefaultTimeout = 30 * time.Second

// Callback is an interface you have to implement for callbacks.
type Callback interface {
	// OnShutdown will be called when shutdown is triggered. The parameter
	// is the name of the shutdown trigger that trigger shutdown. ctx expires
	// when the shutdown timeout is reached.
	OnShutdown(ctx context.Context, trigger string) error
}

// CallbackFunc is a helper type, so you can easily provide anonymous functions
// as shutdown Callbacks.
type CallbackFunc func(ctx context.Context, trigger string) error

func (f CallbackFunc) OnShutdown(ctx context.Context, trigger string) error {
	return f(ctx, trigger)
}

// ErrorHandler is an interface you can pass to SetErrorHandler to
// handle asynchronous errors.
type ErrorHandler interface {
	OnError(error)
}

// ErrorFunc is a helper type, so you can easily provide anonymous functions
// as ErrorHandlers.
type ErrorFunc func(err error)

// OnError defines the action needed to run when error occurred.
func (f ErrorFunc) OnError(err error) {
	f(err)
}

// Executor is the interface of execute func after triggering shutdown.
type Executor interface {
	Execute(Trigger)
}

// ExecuteFunc defines the execute func.
type ExecuteFunc func(Trigger)

func (f ExecuteFunc) Execute(trigger Trigger) {
	f(trigger)
}

// Trigger is an interface implemnted by shutdown triggers.
type Trigger interface {
	// GetName returns the name of the trigger.
	GetName() string
	// Start starts the trigger to listen some shutdown requests.
	Start(Executor) error
	// After is called once the callbacks have returned.
	After()
}

// Shutdown is an interface implemented by shutdownController,
// that receives shutdown triggers when shutdown is requested.
type Shutdown interface {
	// Start starts the graceful shutdown controller.
	Start() error
	// AddCallback adds callback func to the shutdown controller.
	AddCallback(Callback)
	// SetErrorHandler set errorHandler for the shutdown controller.
	SetErrorHandler(ErrorHandler)
	// SetTimeout sets the deadline given to callbacks.
	SetTimeout(time.Duration)
	// Done is closed after the callbacks of the first trigger have returned.
	Done() <-chan struct{}
}

type shutdownController struct {
	triggers []Trigger

	mtx          sync.Mutex
	callbacks    []Callback
	errorHandler ErrorHandler
	timeout      time.Duration

	once sync.Once
	done chan struct{}
}

// New returns a new graceful shutdown instance with the specified triggers.
func New(triggers ...Trigger) Shutdown {
	return &shutdownController{
		triggers:  triggers,
		callbacks: make([]Callback, 0, 1),
		timeout:   DefaultTimeout,
		done:      make(chan struct{}),
	}
}

func (g *shutdownController) AddCallback(cb Callback) {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	g.callbacks = append(g.callbacks, cb)
}

func (g *shutdownController) SetErrorHandler(h ErrorHandler) {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	g.errorHandler = h
}

func (g *shutdownController) SetTimeout(d time.Duration) {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	g.timeout = d
}

func (g *shutdownController) Done() <-chan struct{} {
	return g.done
}

func (g *shutdownController) Start() error {
	for _, t := range g.triggers {
		if err := t.Start(g.executeFunc()); err != nil {
			return errors.WithMessagef(err, "start shutdown trigger %s error", t.GetName())
		}
	}

	return nil
}

func (g *shutdownController) executeFunc() Executor {
	return ExecuteFunc(func(trigger Trigger) {
		g.once.Do(func() {
			g.run(trigger)
			close(g.done)
			trigger.After()
		})
	})
}

func (g *shutdownController) run(trigger Trigger) {
	g.mtx.Lock()
	callbacks := append([]Callback(nil), g.callbacks...)
	timeout := g.timeout
	g.mtx.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, cb := range callbacks {
		wg.Add(1)
		go func(callback Callback) {
			defer wg.Done()

			g.handleError(callback.OnShutdown(ctx, trigger.GetName()))
		}(cb)
	}

	wg.Wait()
}

func (g *shutdownController) handleError(err error) {
	if err == nil {
		return
	}
	g.mtx.Lock()
	h := g.errorHandler
	g.mtx.Unlock()
	if h != nil {
		h.OnError(err)
	}
}
