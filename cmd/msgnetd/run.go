// Copyright 2025 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wangtaoking1/msgnet/app"
	"github.com/wangtaoking1/msgnet/dispatch"
	"github.com/wangtaoking1/msgnet/errors"
	"github.com/wangtaoking1/msgnet/log"
	"github.com/wangtaoking1/msgnet/message"
	"github.com/wangtaoking1/msgnet/metrics"
	"github.com/wangtaoking1/msgnet/relay"
	"github.com/wangtaoking1/msgnet/server"
	"github.com/wangtaoking1/msgnet/shutdown"
	"github.com/wangtaoking1/msgnet/shutdown/trigger/contextdone"
	"github.com/wangtaoking1/msgnet/shutdown/trigger/posixsignal"
	"github.com/wangtaoking1/msgnet/tcp"
	"github.com/wangtaoking1/msgnet/websocket"
)

func run(opts *Options) app.RunFunc {
	return func(ctx context.Context) error {
		log.Init(opts.Log)
		defer log.Flush()

		d, err := newDaemon(opts)
		if err != nil {
			return err
		}

		return d.Run(ctx)
	}
}

// daemon owns the components sharing one dispatcher.
type daemon struct {
	opts       *Options
	dispatcher *dispatch.Dispatcher
	listener   *tcp.Listener
	gateway    *websocket.Gateway
	relay      *relay.Relay
	feed       *relay.Feed
	api        server.APIServer
}

func newDaemon(opts *Options) (*daemon, error) {
	d := &daemon{
		opts:       opts,
		dispatcher: dispatch.New(dispatch.WithErrorHandler(countHandlerError)),
	}

	var err error
	if d.listener, err = tcp.NewListener(opts.TCP, d.dispatcher); err != nil {
		return nil, errors.WithMessage(err, "tcp listener")
	}
	sinks := []relay.Sink{d.listener}
	workers := map[string]server.WorkersFunc{
		metrics.TCP: func() any { return d.listener.WorkerInfos() },
	}

	if opts.WebSocket.Enabled {
		if d.gateway, err = websocket.NewGateway(opts.WebSocket, d.dispatcher); err != nil {
			return nil, errors.WithMessage(err, "websocket gateway")
		}
		sinks = append(sinks, d.gateway)
		workers[metrics.WebSocket] = func() any { return d.gateway.PeerInfos() }
	}

	if opts.Relay.Enabled {
		if d.relay, err = relay.New(opts.Relay); err != nil {
			return nil, errors.WithMessage(err, "relay")
		}
		d.relay.Attach(d.dispatcher)
	}
	if opts.Relay.Feed != nil && opts.Relay.Feed.Enabled {
		if d.feed, err = relay.NewFeed(opts.Relay, sinks); err != nil {
			return nil, errors.WithMessage(err, "feed")
		}
	}

	d.api = server.New(opts.Server)
	if err := d.api.Setup(server.WorkersRouter(workers)); err != nil {
		return nil, errors.WithMessage(err, "admin server")
	}

	return d, nil
}

func countHandlerError(_ context.Context, msg message.Message, err error) {
	metrics.HandlerErrors.WithLabelValues(string(msg.Kind())).Inc()
	log.Debugw("Handler failed", "kind", msg.Kind(), "origin", msg.Origin(), "error", err)
}

// Run runs every component until ctx is done, a shutdown signal arrives or
// one component fails.
func (d *daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg, ctx := errgroup.WithContext(ctx)

	gs := shutdown.New(posixsignal.New(), contextdone.New(ctx))
	gs.SetTimeout(d.opts.ShutdownTimeout)
	gs.AddCallback(shutdown.CallbackFunc(func(_ context.Context, trigger string) error {
		log.Infow("Shutting down", "trigger", trigger)
		cancel()
		return nil
	}))
	gs.SetErrorHandler(shutdown.ErrorFunc(func(err error) {
		log.Warnw("Shutdown callback failed", "error", err)
	}))
	if err := gs.Start(); err != nil {
		return err
	}

	eg.Go(func() error {
		return d.listener.Run(ctx)
	})
	if d.gateway != nil {
		eg.Go(func() error {
			return d.gateway.Run(ctx)
		})
	}
	if d.feed != nil {
		eg.Go(func() error {
			return d.feed.Run(ctx)
		})
	}
	eg.Go(func() error {
		return d.api.Run(ctx)
	})

	err := eg.Wait()
	cancel()
	if d.relay != nil {
		if cerr := d.relay.Close(); cerr != nil {
			log.Warnw("Failed to close relay", "error", cerr)
		}
	}

	select {
	case <-gs.Done():
	case <-time.After(d.opts.ShutdownTimeout):
		log.Warn("Shutdown callbacks did not finish in time")
	}

	return err
}
