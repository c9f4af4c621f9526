// Copyright 2025 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package tcp serves and dials length-prefixed message streams over TCP,
// optionally inside TLS.
package tcp

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/wangtaoking1/msgnet/dispatch"
	"github.com/wangtaoking1/msgnet/errors"
	"github.com/wangtaoking1/msgnet/frame"
	"github.com/wangtaoking1/msgnet/log"
	"github.com/wangtaoking1/msgnet/message"
	"github.com/wangtaoking1/msgnet/metrics"
	"github.com/wangtaoking1/msgnet/thread"
	"github.com/wangtaoking1/msgnet/tlsconf"
)

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

var (
	// ErrWorkerNotFound is returned by Send for unknown worker ids.
	ErrWorkerNotFound = errors.New("worker not found")
	// ErrListenerStarted is returned by a second call to Run.
	ErrListenerStarted = errors.New("listener already started")
)

// ListenerOption configures a Listener.
type ListenerOption func(*Listener) error

// WithTLSContext serves TLS with the server config built from c. It takes
// precedence over the TLS options.
func WithTLSContext(c *tlsconf.Context) ListenerOption {
	return func(l *Listener) error {
		cfg, err := c.ServerConfig()
		if err != nil {
			return err
		}
		l.tlsConfig = cfg
		return nil
	}
}

// WithDecoder sets how payloads become messages.
func WithDecoder(decoder message.Decoder) ListenerOption {
	return func(l *Listener) error {
		l.decoder = decoder
		return nil
	}
}

// WithTextHandler replaces the listener's own handler of text messages.
func WithTextHandler(fn func(ctx context.Context, msg *message.TextMessage) error) ListenerOption {
	return func(l *Listener) error {
		l.onText = fn
		return nil
	}
}

// Listener accepts connections and runs one Worker per connection. All
// workers post to the same dispatcher.
type Listener struct {
	opts       *Options
	codec      *frame.Codec
	tlsConfig  *tls.Config
	decoder    message.Decoder
	dispatcher *dispatch.Dispatcher
	registry   *Registry
	onText     func(ctx context.Context, msg *message.TextMessage) error

	started atomic.Bool
	mtx     sync.RWMutex
	ln      net.Listener
	ready chan struct{}

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewListener creates a listener posting to d. A nil d gets a new dispatcher.
// The listener subscribes itself to text messages.
func NewListener(opts *Options, d *dispatch.Dispatcher, lopts ...ListenerOption) (*Listener, error) {
	if opts == nil {
		opts = NewOptions()
	}
	if agg := errors.NewAggregate(opts.Validate()); agg != nil {
		return nil, agg
	}
	codec, err := frame.NewCodec(opts.HeaderWidth, frame.WithMaxPayload(opts.MaxFrameSize))
	if err != nil {
		return nil, err
	}
	decoder, err := message.LookupDecoder(opts.Decoder)
	if err != nil {
		return nil, err
	}
	if d == nil {
		d = dispatch.New()
	}

	l := &Listener{
		opts:       opts,
		codec:      codec,
		decoder:    decoder,
		dispatcher: d,
		registry:   NewRegistry(),
		ready:      make(chan struct{}),
		stopCh:     make(chan struct{}),
	}
	l.onText = l.logText

	if opts.TLS != nil && opts.TLS.Enabled {
		c, err := opts.TLS.NewContext()
		if err != nil {
			return nil, errors.WithMessage(err, "tls")
		}
		if l.tlsConfig, err = c.ServerConfig(); err != nil {
			return nil, errors.WithMessage(err, "tls")
		}
	}
	for _, o := range lopts {
		if err := o(l); err != nil {
			return nil, err
		}
	}

	dispatch.Subscribe(d, func(ctx context.Context, msg *message.TextMessage) error {
		return l.onText(ctx, msg)
	})

	return l, nil
}

func (l *Listener) logText(_ context.Context, msg *message.TextMessage) error {
	log.Infow("Received message", "worker_id", msg.From, "text", msg.Text)
	return nil
}

// Dispatcher returns the dispatcher shared by all workers.
func (l *Listener) Dispatcher() *dispatch.Dispatcher {
	return l.dispatcher
}

// Ready is closed once Run has bound its socket or failed to.
func (l *Listener) Ready() <-chan struct{} {
	return l.ready
}

// Addr returns the bound address, or nil before Run has bound.
func (l *Listener) Addr() net.Addr {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Run binds the configured address and accepts connections until ctx is done
// or Stop is called. Workers are stopped before Run returns.
func (l *Listener) Run(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return ErrListenerStarted
	}
	ln, err := net.Listen("tcp", l.opts.Address())
	if err != nil {
		close(l.ready)
		return errors.Wrapf(err, "listen on %s", l.opts.Address())
	}
	l.mtx.Lock()
	l.ln = ln
	l.mtx.Unlock()
	close(l.ready)

	pool, err := ants.NewPool(l.opts.MaxConnections,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(r interface{}) {
			log.Errorw("Worker panic", "error", r)
		}),
	)
	if err != nil {
		_ = ln.Close()
		return errors.Wrap(err, "create worker pool")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-ctx.Done():
		case <-l.stopCh:
			cancel()
		}
		_ = ln.Close()
	}()
	go l.reapLoop(ctx)

	log.Infow("Start to listening on tcp server", "address", ln.Addr().String(), "tls", l.tlsConfig != nil)
	l.acceptLoop(ctx, ln, pool)

	for _, w := range l.registry.Snapshot() {
		w.Stop()
	}
	if err := pool.ReleaseTimeout(5 * time.Second); err != nil {
		log.Warnw("Workers still running after release timeout", "error", err)
	}
	l.registry.Reap()
	log.Infow("TCP server stopped", "address", ln.Addr().String())

	return nil
}

func (l *Listener) acceptLoop(ctx context.Context, ln net.Listener, pool *ants.Pool) {
	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			if delay == 0 {
				delay = minAcceptDelay
			} else if delay *= 2; delay > maxAcceptDelay {
				delay = maxAcceptDelay
			}
			log.Warnw("Accept failed", "error", err, "retry_in", delay)
			if thread.Sleep(ctx, delay) != nil {
				return
			}
			continue
		}
		delay = 0

		l.serve(ctx, conn, pool)
		l.registry.Reap()
	}
}

func (l *Listener) serve(ctx context.Context, conn net.Conn, pool *ants.Pool) {
	w := newWorker(conn, workerConfig{
		codec:            l.codec,
		dispatcher:       l.dispatcher,
		decoder:          l.decoder,
		tlsConfig:        l.tlsConfig,
		handshakeTimeout: l.opts.HandshakeTimeout,
		executor:         pool.Submit,
	})
	// registered first so that handlers can reply to the worker's first message
	l.registry.Add(w)
	if err := w.Start(ctx); err != nil {
		metrics.ConnectionsRejected.WithLabelValues(metrics.TCP).Inc()
		log.Warnw("Reject connection", "remote", conn.RemoteAddr().String(), "error", err)
		return
	}

	metrics.ConnectionsAccepted.WithLabelValues(metrics.TCP).Inc()
	log.Infow("Accepted connection", "worker_id", w.ID(), "remote", w.RemoteAddr())
}

func (l *Listener) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(l.opts.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.registry.Reap(); n > 0 {
				log.Debugw("Reaped stopped workers", "count", n)
			}
		}
	}
}

// Stop makes Run return. It is safe to call more than once, and before Run.
func (l *Listener) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopCh)
	})
}

// Workers returns the tracked workers.
func (l *Listener) Workers() []*Worker {
	return l.registry.Snapshot()
}

// WorkerInfos describes the tracked workers.
func (l *Listener) WorkerInfos() []WorkerInfo {
	workers := l.registry.Snapshot()
	infos := make([]WorkerInfo, 0, len(workers))
	for _, w := range workers {
		infos = append(infos, w.Info())
	}
	return infos
}

// Send writes payload to the worker with id.
func (l *Listener) Send(id string, payload []byte) error {
	w, ok := l.registry.Get(id)
	if !ok {
		return errors.WithMessagef(ErrWorkerNotFound, "id %s", id)
	}
	return w.Write(payload)
}

// Broadcast writes payload to every worker that has not finished.
func (l *Listener) Broadcast(payload []byte) error {
	var errs []error
	for _, w := range l.registry.Snapshot() {
		if w.Finished() {
			continue
		}
		if err := w.Write(payload); err != nil {
			errs = append(errs, err)
		}
	}
	if agg := errors.NewAggregate(errs); agg != nil {
		return agg
	}
	return nil
}
