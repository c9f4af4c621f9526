// Copyright 2025 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package dispatch fans messages out to the subscriptions that accept them.
package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/wangtaoking1/msgnet/errors"
	"github.com/wangtaoking1/msgnet/message"
)

// Subscription receives the messages it accepts.
type Subscription interface {
	// Accepts reports whether msg is of a variant handled by the subscription.
	Accepts(msg message.Message) bool
	// Send delivers an accepted message.
	Send(ctx context.Context, msg message.Message) error
}

// HandlerFunc handles one message variant.
type HandlerFunc[M message.Message] func(ctx context.Context, msg M) error

type observer[M message.Message] struct {
	fn HandlerFunc[M]
}

// Observe creates a subscription for the message variant M.
func Observe[M message.Message](fn func(ctx context.Context, msg M) error) Subscription {
	return &observer[M]{fn: fn}
}

func (o *observer[M]) Accepts(msg message.Message) bool {
	_, ok := msg.(M)
	return ok
}

func (o *observer[M]) Send(ctx context.Context, msg message.Message) error {
	m, ok := msg.(M)
	if !ok {
		return errors.Errorf("subscription does not accept message kind %q", msg.Kind())
	}
	return o.fn(ctx, m)
}

// ErrorHandler is called for every subscription failure during Post.
type ErrorHandler func(ctx context.Context, msg message.Message, err error)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithErrorHandler sets the handler invoked for each failed delivery.
func WithErrorHandler(h ErrorHandler) Option {
	return func(d *Dispatcher) {
		d.onError = h
	}
}

// Dispatcher holds an ordered list of subscriptions. Post delivers on the
// caller's goroutine, in registration order.
type Dispatcher struct {
	mtx     sync.RWMutex
	subs    []Subscription
	onError ErrorHandler
}

// New creates an empty dispatcher.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register appends a subscription. Registering the same subscription twice
// delivers each message to it twice.
func (d *Dispatcher) Register(sub Subscription) {
	if sub == nil {
		return
	}
	d.mtx.Lock()
	defer d.mtx.Unlock()
	d.subs = append(d.subs, sub)
}

// Subscribe registers fn for the message variant M and returns the subscription.
func Subscribe[M message.Message](d *Dispatcher, fn func(ctx context.Context, msg M) error) Subscription {
	sub := Observe[M](fn)
	d.Register(sub)
	return sub
}

// Len returns the number of registered subscriptions.
func (d *Dispatcher) Len() int {
	d.mtx.RLock()
	defer d.mtx.RUnlock()
	return len(d.subs)
}

// Post delivers msg to every accepting subscription. A failing or panicking
// subscription does not stop delivery to the rest; all failures are returned
// as an aggregate.
func (d *Dispatcher) Post(ctx context.Context, msg message.Message) error {
	if msg == nil {
		return nil
	}

	d.mtx.RLock()
	subs := make([]Subscription, len(d.subs))
	copy(subs, d.subs)
	d.mtx.RUnlock()

	var errs []error
	for _, sub := range subs {
		if !sub.Accepts(msg) {
			continue
		}
		if err := d.deliver(ctx, sub, msg); err != nil {
			if d.onError != nil {
				d.onError(ctx, msg, err)
			}
			errs = append(errs, err)
		}
	}

	if agg := errors.NewAggregate(errs); agg != nil {
		return agg
	}
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, sub Subscription, msg message.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("subscription panicked on %s message: %v", msg.Kind(), r)
		}
	}()

	if err := sub.Send(ctx, msg); err != nil {
		return errors.WithMessage(err, fmt.Sprintf("deliver %s message", msg.Kind()))
	}
	return nil
}
