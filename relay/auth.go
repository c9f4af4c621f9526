// Copyright 2025 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package relay

import (
	"net"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
)

// AuthType selects how the relay authenticates to the brokers.
type AuthType string

const (
	AuthTypeRaw  AuthType = "raw"
	AuthTypeSASL AuthType = "sasl"
)

const dialTimeout = 10 * time.Second

// authenticator builds kafka transports carrying the credentials.
type authenticator struct {
	mechanism sasl.Mechanism
}

func newAuthenticator(o *Options) *authenticator {
	a := &authenticator{}
	if o.AuthType == AuthTypeSASL {
		a.mechanism = plain.Mechanism{
			Username: o.Username,
			Password: o.Password,
		}
	}
	return a
}

// transport is used by writers.
func (a *authenticator) transport() kafka.RoundTripper {
	return &kafka.Transport{
		Dial: (&net.Dialer{
			Timeout: dialTimeout,
		}).DialContext,
		SASL: a.mechanism,
	}
}

// dialer is used by readers.
func (a *authenticator) dialer() *kafka.Dialer {
	return &kafka.Dialer{
		Timeout:       dialTimeout,
		DualStack:     true,
		SASLMechanism: a.mechanism,
	}
}
