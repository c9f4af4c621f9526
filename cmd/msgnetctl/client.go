// Copyright 2025 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/wangtaoking1/msgnet/app"
	"github.com/wangtaoking1/msgnet/flag"
	"github.com/wangtaoking1/msgnet/log"
	"github.com/wangtaoking1/msgnet/message"
	"github.com/wangtaoking1/msgnet/shutdown"
	"github.com/wangtaoking1/msgnet/shutdown/trigger/posixsignal"
	"github.com/wangtaoking1/msgnet/tcp"
)

type sendOptions struct {
	Client   *tcp.ClientOptions
	Log      *log.Options
	Messages []string
	Replies  int
	Timeout  time.Duration
}

func (o *sendOptions) Flags() (fss flag.NamedFlagSets) {
	o.Client.AddFlags(fss.FlagSet("client"))
	o.Log.AddFlags(fss.FlagSet("log"))
	fs := fss.FlagSet("send")
	fs.StringArrayVarP(&o.Messages, "message", "m", o.Messages, "Message to send, one frame each. Repeatable.")
	fs.IntVar(&o.Replies, "replies", o.Replies, "Number of replies to wait for after sending.")
	fs.DurationVar(&o.Timeout, "timeout", o.Timeout, "Time to wait for the replies.")

	return fss
}

func (o *sendOptions) Validate() []error {
	errs := o.Client.Validate()
	errs = append(errs, o.Log.Validate()...)
	if len(o.Messages) == 0 {
		errs = append(errs, fmt.Errorf("--message must be given at least once"))
	}
	if o.Replies < 0 {
		errs = append(errs, fmt.Errorf("--replies must not be negative"))
	}

	return errs
}

func newSendCommand() *app.Command {
	opts := &sendOptions{
		Client:  tcp.NewClientOptions(),
		Log:     quietLog(),
		Timeout: 5 * time.Second,
	}

	return app.NewCommand("send", "Send frames to a msgnetd",
		app.WithCmdOptions(opts),
		app.WithCmdRunFunc(func(ctx context.Context) error {
			log.Init(opts.Log)
			defer log.Flush()

			return send(ctx, opts, os.Stdout)
		}),
	)
}

func send(ctx context.Context, opts *sendOptions, out io.Writer) error {
	client, err := tcp.NewClient(opts.Client)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Connect(ctx); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		done <- client.Run(ctx)
	}()

	for _, m := range opts.Messages {
		if err := client.WriteString(m); err != nil {
			return err
		}
	}

	timer := time.NewTimer(opts.Timeout)
	defer timer.Stop()
	for i := 0; i < opts.Replies; i++ {
		select {
		case msg := <-client.Inbox():
			fmt.Fprintln(out, formatMessage(msg))
		case err := <-done:
			if err == nil {
				err = fmt.Errorf("connection closed after %d of %d replies", i, opts.Replies)
			}
			return err
		case <-timer.C:
			return fmt.Errorf("timed out after %d of %d replies", i, opts.Replies)
		}
	}

	return nil
}

type listenOptions struct {
	Client *tcp.ClientOptions
	Log    *log.Options
	Hello  string
}

func (o *listenOptions) Flags() (fss flag.NamedFlagSets) {
	o.Client.AddFlags(fss.FlagSet("client"))
	o.Log.AddFlags(fss.FlagSet("log"))
	fss.FlagSet("listen").StringVar(&o.Hello, "hello", o.Hello, "Frame sent once connected, if not empty.")

	return fss
}

func (o *listenOptions) Validate() []error {
	return append(o.Client.Validate(), o.Log.Validate()...)
}

func newListenCommand() *app.Command {
	opts := &listenOptions{
		Client: tcp.NewClientOptions(),
		Log:    quietLog(),
	}

	return app.NewCommand("listen", "Print every message received from a msgnetd",
		app.WithCmdOptions(opts),
		app.WithCmdRunFunc(func(ctx context.Context) error {
			log.Init(opts.Log)
			defer log.Flush()

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()
			gs := shutdown.New(posixsignal.New())
			gs.AddCallback(shutdown.CallbackFunc(func(context.Context, string) error {
				cancel()
				return nil
			}))
			if err := gs.Start(); err != nil {
				return err
			}

			return listen(ctx, opts, os.Stdout)
		}),
	)
}

func listen(ctx context.Context, opts *listenOptions, out io.Writer) error {
	client, err := tcp.NewClient(opts.Client, tcp.WithHandler(tcp.HandlerFunc(
		func(_ context.Context, msg message.Message) error {
			_, err := fmt.Fprintln(out, formatMessage(msg))
			return err
		})))
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Connect(ctx); err != nil {
		return err
	}
	if opts.Hello != "" {
		if err := client.WriteString(opts.Hello); err != nil {
			return err
		}
	}

	return client.Run(ctx)
}

func formatMessage(msg message.Message) string {
	switch m := msg.(type) {
	case *message.TextMessage:
		return m.Text
	case *message.ActionMessage:
		return fmt.Sprintf("%s %s", m.Action, m.Data)
	default:
		return fmt.Sprintf("<%s>", msg.Kind())
	}
}

// quietLog keeps logs off stdout, which carries the messages.
func quietLog() *log.Options {
	opts := log.NewOptions()
	opts.Level = "warn"
	opts.OutputPaths = []string{"stderr"}
	return opts
}
