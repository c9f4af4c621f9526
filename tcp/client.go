// Copyright 2025 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package tcp

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"time"

	"github.com/wangtaoking1/msgnet/dispatch"
	"github.com/wangtaoking1/msgnet/errors"
	"github.com/wangtaoking1/msgnet/frame"
	"github.com/wangtaoking1/msgnet/log"
	"github.com/wangtaoking1/msgnet/message"
	"github.com/wangtaoking1/msgnet/tlsconf"
	"github.com/wangtaoking1/msgnet/utils"
)

// ErrNotConnected is returned when the client has no connection.
var ErrNotConnected = errors.New("client is not connected")

// MessageHandler consumes the messages a client reads.
type MessageHandler interface {
	HandleMsg(ctx context.Context, msg message.Message) error
}

// HandlerFunc adapts a function to MessageHandler.
type HandlerFunc func(ctx context.Context, msg message.Message) error

func (f HandlerFunc) HandleMsg(ctx context.Context, msg message.Message) error {
	return f(ctx, msg)
}

// ClientOption configures a Client.
type ClientOption func(*Client) error

// WithHandler replaces the default handler.
func WithHandler(h MessageHandler) ClientOption {
	return func(c *Client) error {
		c.handler = h
		return nil
	}
}

// WithDispatcher posts every received message to d.
func WithDispatcher(d *dispatch.Dispatcher) ClientOption {
	return func(c *Client) error {
		c.handler = HandlerFunc(d.Post)
		return nil
	}
}

// WithClientTLSContext dials TLS with the client config built from tc.
func WithClientTLSContext(tc *tlsconf.Context, serverName string) ClientOption {
	return func(c *Client) error {
		cfg, err := tc.ClientConfig(serverName)
		if err != nil {
			return err
		}
		c.tlsConfig = cfg
		return nil
	}
}

// WithClientDecoder sets how payloads become messages.
func WithClientDecoder(decoder message.Decoder) ClientOption {
	return func(c *Client) error {
		c.decoder = decoder
		return nil
	}
}

// Client connects to a listener, then reads frames and hands the decoded
// messages to its handler. The default handler logs each message and makes
// it available on Inbox.
type Client struct {
	opts      *ClientOptions
	codec     *frame.Codec
	tlsConfig *tls.Config
	decoder   message.Decoder
	handler   MessageHandler
	inbox     chan message.Message

	mtx    sync.Mutex
	conn   net.Conn
	fc     *frame.Conn
	closed bool
}

// NewClient creates a client that is not connected yet.
func NewClient(opts *ClientOptions, copts ...ClientOption) (*Client, error) {
	if opts == nil {
		opts = NewClientOptions()
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

	c := &Client{
		opts:    opts,
		codec:   codec,
		decoder: decoder,
		inbox:   make(chan message.Message, opts.InboxSize),
	}
	c.handler = HandlerFunc(c.deliver)

	if opts.TLS != nil && opts.TLS.Enabled {
		tc, err := opts.TLS.NewContext()
		if err != nil {
			return nil, errors.WithMessage(err, "tls")
		}
		serverName := opts.TLS.ServerName
		if serverName == "" {
			serverName = opts.Host
		}
		if c.tlsConfig, err = tc.ClientConfig(serverName); err != nil {
			return nil, errors.WithMessage(err, "tls")
		}
	}
	for _, o := range copts {
		if err := o(c); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Connect dials the server, retrying as configured, and performs the TLS
// handshake when enabled.
func (c *Client) Connect(ctx context.Context) error {
	c.mtx.Lock()
	connected := c.conn != nil
	c.mtx.Unlock()
	if connected {
		return nil
	}

	addr := c.opts.Address()
	dialer := &net.Dialer{Timeout: c.opts.DialTimeout}
	var conn net.Conn
	err := utils.Retry(ctx, c.opts.DialRetries, c.opts.DialRetryInterval, func() error {
		var err error
		conn, err = dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			log.Debugw("Dial failed", "address", addr, "error", err)
		}
		return err
	})
	if err != nil {
		return errors.Wrapf(err, "connect to %s", addr)
	}

	if c.tlsConfig != nil {
		tlsConn, err := c.handshake(ctx, conn)
		if err != nil {
			_ = conn.Close()
			return errors.Wrapf(err, "tls handshake with %s", addr)
		}
		conn = tlsConn
	}

	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.closed {
		_ = conn.Close()
		return ErrNotConnected
	}
	c.conn = conn
	c.fc = frame.NewConn(conn, c.codec)
	log.Infow("Connected", "address", addr, "tls", c.tlsConfig != nil)

	return nil
}

func (c *Client) handshake(ctx context.Context, conn net.Conn) (net.Conn, error) {
	timeout := c.opts.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tlsConn := tls.Client(conn, c.tlsConfig)
	if err := tlsConn.HandshakeContext(hctx); err != nil {
		return nil, err
	}
	return tlsConn, nil
}

// Run connects when needed, then reads until the connection ends, ctx is
// done or Close is called. It returns nil when the client was closed or ctx
// was cancelled.
func (c *Client) Run(ctx context.Context) error {
	if err := c.Connect(ctx); err != nil {
		return err
	}

	c.mtx.Lock()
	fc := c.fc
	c.mtx.Unlock()
	if fc == nil {
		return ErrNotConnected
	}

	stop := context.AfterFunc(ctx, func() {
		_ = c.Close()
	})
	defer stop()

	for {
		payload, err := fc.Read()
		if err != nil {
			if ctx.Err() != nil || c.isClosed() {
				return nil
			}
			_ = c.Close()
			return errors.WithMessage(err, "read")
		}

		msg, err := c.decoder(c.opts.Address(), payload)
		if err != nil {
			log.Warnw("Drop undecodable message", "error", err)
			continue
		}
		if err := c.handler.HandleMsg(ctx, msg); err != nil {
			log.Warnw("Message handler failed", "kind", msg.Kind(), "error", err)
		}
	}
}

// deliver is the default handler.
func (c *Client) deliver(_ context.Context, msg message.Message) error {
	log.Debugw("Received message", "kind", msg.Kind(), "from", msg.Origin())
	select {
	case c.inbox <- msg:
	default:
		log.Warnw("Client inbox full, drop message", "kind", msg.Kind())
	}
	return nil
}

// Inbox returns the messages received by the default handler.
func (c *Client) Inbox() <-chan message.Message {
	return c.inbox
}

// Write sends payload as one frame. An empty payload sends nothing.
func (c *Client) Write(payload []byte) error {
	c.mtx.Lock()
	fc := c.fc
	c.mtx.Unlock()
	if fc == nil {
		return ErrNotConnected
	}
	return fc.Write(payload)
}

// WriteString sends s as one frame.
func (c *Client) WriteString(s string) error {
	return c.Write([]byte(s))
}

// LocalAddr returns the local address of the connection, or nil.
func (c *Client) LocalAddr() net.Addr {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.LocalAddr()
}

func (c *Client) isClosed() bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.closed
}

// Close closes the connection. A blocked Run returns.
func (c *Client) Close() error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
