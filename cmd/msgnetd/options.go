// Copyright 2025 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/wangtaoking1/msgnet/flag"
	"github.com/wangtaoking1/msgnet/log"
	"github.com/wangtaoking1/msgnet/relay"
	"github.com/wangtaoking1/msgnet/server"
	"github.com/wangtaoking1/msgnet/tcp"
	"github.com/wangtaoking1/msgnet/websocket"
)

// Options contains the configuration of every msgnetd component.
type Options struct {
	Log             *log.Options       `json:"log"              mapstructure:"log"`
	TCP             *tcp.Options       `json:"tcp"              mapstructure:"tcp"`
	WebSocket       *websocket.Options `json:"websocket"        mapstructure:"websocket"`
	Server          *server.Options    `json:"server"           mapstructure:"server"`
	Relay           *relay.Options     `json:"relay"            mapstructure:"relay"`
	ShutdownTimeout time.Duration      `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`
}

// NewOptions returns options with the defaults of every component.
func NewOptions() *Options {
	return &Options{
		Log:             log.NewOptions(),
		TCP:             tcp.NewOptions(),
		WebSocket:       websocket.NewOptions(),
		Server:          server.NewOptions(),
		Relay:           relay.NewOptions(),
		ShutdownTimeout: 30 * time.Second,
	}
}

func (o *Options) Flags() (fss flag.NamedFlagSets) {
	o.Log.AddFlags(fss.FlagSet("log"))
	o.TCP.AddFlags(fss.FlagSet("tcp"))
	o.WebSocket.AddFlags(fss.FlagSet("websocket"))
	o.Server.AddFlags(fss.FlagSet("server"))
	o.Relay.AddFlags(fss.FlagSet("relay"))
	fss.FlagSet("misc").DurationVar(&o.ShutdownTimeout, "shutdown-timeout", o.ShutdownTimeout,
		"Time given to the components to stop on SIGINT or SIGTERM.")

	return fss
}

func (o *Options) Validate() []error {
	var errs []error
	errs = append(errs, o.Log.Validate()...)
	errs = append(errs, o.TCP.Validate()...)
	errs = append(errs, o.WebSocket.Validate()...)
	errs = append(errs, o.Server.Validate()...)
	errs = append(errs, o.Relay.Validate()...)
	if o.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("--shutdown-timeout must be positive"))
	}

	return errs
}

func (o *Options) String() string {
	data, _ := json.Marshal(o)

	return string(data)
}
