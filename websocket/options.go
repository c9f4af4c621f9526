// Copyright 2025 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package websocket

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/spf13/pflag"

	"github.com/wangtaoking1/msgnet/message"
	"github.com/wangtaoking1/msgnet/tlsconf"
)

// Options contains configuration options for the websocket gateway.
type Options struct {
	Enabled         bool             `json:"enabled"           mapstructure:"enabled"`
	BindAddress     string           `json:"bind-address"      mapstructure:"bind-address"`
	BindPort        int              `json:"bind-port"         mapstructure:"bind-port"`
	Path            string           `json:"path"              mapstructure:"path"`
	ReadBufferSize  int              `json:"read-buffer-size"  mapstructure:"read-buffer-size"`
	WriteBufferSize int              `json:"write-buffer-size" mapstructure:"write-buffer-size"`
	Compression     bool             `json:"compression"       mapstructure:"compression"`
	MaxMessageSize  int64            `json:"max-message-size"  mapstructure:"max-message-size"`
	SendBuffer      int              `json:"send-buffer"       mapstructure:"send-buffer"`
	PingInterval    time.Duration    `json:"ping-interval"     mapstructure:"ping-interval"`
	PongTimeout     time.Duration    `json:"pong-timeout"      mapstructure:"pong-timeout"`
	WriteTimeout    time.Duration    `json:"write-timeout"     mapstructure:"write-timeout"`
	Decoder         string           `json:"decoder"           mapstructure:"decoder"`
	TLS             *tlsconf.Options `json:"tls"               mapstructure:"tls"`
}

// NewOptions return a new options for the gateway.
func NewOptions() *Options {
	return &Options{
		Enabled:         false,
		BindAddress:     "127.0.0.1",
		BindPort:        6060,
		Path:            "/ws",
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		Compression:     true,
		MaxMessageSize:  64 << 10,
		SendBuffer:      100,
		PingInterval:    10 * time.Second,
		PongTimeout:     30 * time.Second,
		WriteTimeout:    10 * time.Second,
		Decoder:         message.DecoderText,
		TLS:             tlsconf.NewOptions(),
	}
}

func (o *Options) Validate() []error {
	if !o.Enabled {
		return nil
	}

	var errs []error
	if o.BindPort < 0 || o.BindPort > 65535 {
		errs = append(errs, fmt.Errorf("--websocket.bind-port %v must be between 0 and 65535", o.BindPort))
	}
	if len(o.Path) == 0 || o.Path[0] != '/' {
		errs = append(errs, fmt.Errorf("--websocket.path %q must start with /", o.Path))
	}
	if o.SendBuffer <= 0 {
		errs = append(errs, fmt.Errorf("--websocket.send-buffer must be positive"))
	}
	if o.PingInterval <= 0 || o.PongTimeout <= o.PingInterval {
		errs = append(errs, fmt.Errorf("--websocket.pong-timeout must be greater than --websocket.ping-interval"))
	}
	if _, err := message.LookupDecoder(o.Decoder); err != nil {
		errs = append(errs, err)
	}
	if o.TLS != nil {
		errs = append(errs, o.TLS.Validate()...)
	}

	return errs
}

func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.Enabled, "websocket.enabled", o.Enabled, "Enable the websocket gateway.")
	fs.StringVar(&o.BindAddress, "websocket.bind-address", o.BindAddress,
		"The IP address on which to serve the websocket gateway.")
	fs.IntVar(&o.BindPort, "websocket.bind-port", o.BindPort, "The port on which to serve the websocket gateway.")
	fs.StringVar(&o.Path, "websocket.path", o.Path, "The http path upgraded to websocket.")
	fs.IntVar(&o.ReadBufferSize, "websocket.read-buffer-size", o.ReadBufferSize,
		"The byte size of websocket read buffer.")
	fs.IntVar(&o.WriteBufferSize, "websocket.write-buffer-size", o.WriteBufferSize,
		"The byte size of websocket write buffer.")
	fs.BoolVar(&o.Compression, "websocket.compression", o.Compression, "Enable compression for websocket message.")
	fs.Int64Var(&o.MaxMessageSize, "websocket.max-message-size", o.MaxMessageSize,
		"Maximum size in bytes of a message read from a peer. Larger messages close the peer.")
	fs.IntVar(&o.SendBuffer, "websocket.send-buffer", o.SendBuffer,
		"Number of outbound messages queued per peer.")
	fs.DurationVar(&o.PingInterval, "websocket.ping-interval", o.PingInterval, "Interval between pings to a peer.")
	fs.DurationVar(&o.PongTimeout, "websocket.pong-timeout", o.PongTimeout,
		"A peer with no pong within this timeout is dropped.")
	fs.DurationVar(&o.WriteTimeout, "websocket.write-timeout", o.WriteTimeout,
		"Time allowed to write a message to a peer.")
	fs.StringVar(&o.Decoder, "websocket.decoder", o.Decoder, "How messages are decoded, text or action.")

	if o.TLS != nil {
		o.TLS.AddFlags(fs, "websocket.tls.")
	}
}

// Address join host and port into an address string.
func (o *Options) Address() string {
	return net.JoinHostPort(o.BindAddress, strconv.Itoa(o.BindPort))
}
