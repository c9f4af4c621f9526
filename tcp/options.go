// Copyright 2025 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package tcp

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/spf13/pflag"

	"github.com/wangtaoking1/msgnet/frame"
	"github.com/wangtaoking1/msgnet/message"
	"github.com/wangtaoking1/msgnet/tlsconf"
)

// Options contains configuration options for the listener.
type Options struct {
	BindAddress      string           `json:"bind-address"      mapstructure:"bind-address"`
	BindPort         int              `json:"bind-port"         mapstructure:"bind-port"`
	HeaderWidth      int              `json:"header-width"      mapstructure:"header-width"`
	MaxFrameSize     int              `json:"max-frame-size"    mapstructure:"max-frame-size"`
	MaxConnections   int              `json:"max-connections"   mapstructure:"max-connections"`
	ReapInterval     time.Duration    `json:"reap-interval"     mapstructure:"reap-interval"`
	HandshakeTimeout time.Duration    `json:"handshake-timeout" mapstructure:"handshake-timeout"`
	Decoder          string           `json:"decoder"           mapstructure:"decoder"`
	TLS              *tlsconf.Options `json:"tls"               mapstructure:"tls"`
}

// NewOptions return a new options for the listener.
func NewOptions() *Options {
	return &Options{
		BindAddress:      "127.0.0.1",
		BindPort:         7070,
		HeaderWidth:      frame.DefaultHeaderWidth,
		MaxFrameSize:     frame.DefaultMaxPayload,
		MaxConnections:   1024,
		ReapInterval:     10 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		Decoder:          message.DecoderText,
		TLS:              tlsconf.NewOptions(),
	}
}

func (o *Options) Validate() []error {
	var errs []error
	// port 0 picks a free port
	if o.BindPort < 0 || o.BindPort > 65535 {
		errs = append(errs, fmt.Errorf("--tcp.bind-port %v must be between 0 and 65535", o.BindPort))
	}
	if o.HeaderWidth < 1 || o.HeaderWidth > frame.MaxHeaderWidth {
		errs = append(errs, fmt.Errorf("--tcp.header-width %v must be between 1 and %d",
			o.HeaderWidth, frame.MaxHeaderWidth))
	}
	if o.MaxFrameSize <= 0 {
		errs = append(errs, fmt.Errorf("--tcp.max-frame-size must be positive"))
	}
	if o.ReapInterval <= 0 {
		errs = append(errs, fmt.Errorf("--tcp.reap-interval must be positive"))
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
	fs.StringVar(&o.BindAddress, "tcp.bind-address", o.BindAddress, ""+
		"The IP address on which to accept framed connections.")
	fs.IntVar(&o.BindPort, "tcp.bind-port", o.BindPort, "The port on which to accept framed connections.")
	fs.IntVar(&o.HeaderWidth, "tcp.header-width", o.HeaderWidth, ""+
		"Number of ASCII digits in the frame length header. Peers must use the same width.")
	fs.IntVar(&o.MaxFrameSize, "tcp.max-frame-size", o.MaxFrameSize, ""+
		"Largest payload in bytes a peer may send. Larger frames close the connection.")
	fs.IntVar(&o.MaxConnections, "tcp.max-connections", o.MaxConnections, ""+
		"Maximum number of concurrent connections, 0 means unlimited. "+
		"Connections over the limit are closed right after accept.")
	fs.DurationVar(&o.ReapInterval, "tcp.reap-interval", o.ReapInterval, ""+
		"How often stopped connection workers are removed from the registry.")
	fs.DurationVar(&o.HandshakeTimeout, "tcp.handshake-timeout", o.HandshakeTimeout, ""+
		"Time allowed for a TLS handshake.")
	fs.StringVar(&o.Decoder, "tcp.decoder", o.Decoder, ""+
		"How payloads become messages: text, or action to decode {\"action\": ...} JSON payloads.")

	if o.TLS != nil {
		o.TLS.AddFlags(fs, "tcp.tls.")
	}
}

// Address join host IP address and host port number into an address string, like: 0.0.0.0:7070.
func (o *Options) Address() string {
	return net.JoinHostPort(o.BindAddress, strconv.Itoa(o.BindPort))
}

// ClientOptions contains configuration options for the client.
type ClientOptions struct {
	Host              string           `json:"host"                mapstructure:"host"`
	Port              int              `json:"port"                mapstructure:"port"`
	HeaderWidth       int              `json:"header-width"        mapstructure:"header-width"`
	MaxFrameSize      int              `json:"max-frame-size"      mapstructure:"max-frame-size"`
	DialTimeout       time.Duration    `json:"dial-timeout"        mapstructure:"dial-timeout"`
	DialRetries       int              `json:"dial-retries"        mapstructure:"dial-retries"`
	DialRetryInterval time.Duration    `json:"dial-retry-interval" mapstructure:"dial-retry-interval"`
	HandshakeTimeout  time.Duration    `json:"handshake-timeout"   mapstructure:"handshake-timeout"`
	InboxSize         int              `json:"inbox-size"          mapstructure:"inbox-size"`
	Decoder           string           `json:"decoder"             mapstructure:"decoder"`
	TLS               *tlsconf.Options `json:"tls"                 mapstructure:"tls"`
}

// NewClientOptions return a new options for the client.
func NewClientOptions() *ClientOptions {
	return &ClientOptions{
		Host:              "127.0.0.1",
		Port:              7070,
		HeaderWidth:       frame.DefaultHeaderWidth,
		MaxFrameSize:      frame.DefaultMaxPayload,
		DialTimeout:       5 * time.Second,
		DialRetries:       3,
		DialRetryInterval: time.Second,
		HandshakeTimeout:  10 * time.Second,
		InboxSize:         64,
		Decoder:           message.DecoderText,
		TLS:               tlsconf.NewOptions(),
	}
}

func (o *ClientOptions) Validate() []error {
	var errs []error
	if o.Host == "" {
		errs = append(errs, fmt.Errorf("--client.host must be specified"))
	}
	if o.Port <= 0 || o.Port > 65535 {
		errs = append(errs, fmt.Errorf("--client.port %v must be between 1 and 65535", o.Port))
	}
	if o.HeaderWidth < 1 || o.HeaderWidth > frame.MaxHeaderWidth {
		errs = append(errs, fmt.Errorf("--client.header-width %v must be between 1 and %d",
			o.HeaderWidth, frame.MaxHeaderWidth))
	}
	if o.MaxFrameSize <= 0 {
		errs = append(errs, fmt.Errorf("--client.max-frame-size must be positive"))
	}
	if o.InboxSize < 0 {
		errs = append(errs, fmt.Errorf("--client.inbox-size must not be negative"))
	}
	if _, err := message.LookupDecoder(o.Decoder); err != nil {
		errs = append(errs, err)
	}
	if o.TLS != nil {
		errs = append(errs, o.TLS.Validate()...)
	}

	return errs
}

func (o *ClientOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Host, "client.host", o.Host, "Host of the framed message server.")
	fs.IntVar(&o.Port, "client.port", o.Port, "Port of the framed message server.")
	fs.IntVar(&o.HeaderWidth, "client.header-width", o.HeaderWidth, "Number of ASCII digits in the frame length header.")
	fs.IntVar(&o.MaxFrameSize, "client.max-frame-size", o.MaxFrameSize, "Largest payload in bytes accepted from the server.")
	fs.DurationVar(&o.DialTimeout, "client.dial-timeout", o.DialTimeout, "Timeout of one connect attempt.")
	fs.IntVar(&o.DialRetries, "client.dial-retries", o.DialRetries, "Number of connect attempts.")
	fs.DurationVar(&o.DialRetryInterval, "client.dial-retry-interval", o.DialRetryInterval, ""+
		"Time to wait between connect attempts.")
	fs.DurationVar(&o.HandshakeTimeout, "client.handshake-timeout", o.HandshakeTimeout, "Time allowed for a TLS handshake.")
	fs.IntVar(&o.InboxSize, "client.inbox-size", o.InboxSize, ""+
		"Number of received messages buffered for the default handler.")
	fs.StringVar(&o.Decoder, "client.decoder", o.Decoder, "How payloads become messages: text or action.")

	if o.TLS != nil {
		o.TLS.AddFlags(fs, "client.tls.")
	}
}

// Address join host and port into an address string.
func (o *ClientOptions) Address() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}
