// Copyright 2025 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package tcp

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wangtaoking1/msgnet/dispatch"
	"github.com/wangtaoking1/msgnet/frame"
)

const waitFor = 5 * time.Second

func testOptions() *Options {
	opts := NewOptions()
	opts.BindPort = 0
	opts.ReapInterval = 20 * time.Millisecond
	return opts
}

// startListener runs a listener on a free loopback port until the test ends.
func startListener(t *testing.T, opts *Options, d *dispatch.Dispatcher, lopts ...ListenerOption) *Listener {
	t.Helper()
	if opts == nil {
		opts = testOptions()
	}
	l, err := NewListener(opts, d, lopts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- l.Run(ctx)
	}()
	<-l.Ready()
	require.NotNil(t, l.Addr())

	t.Cleanup(func() {
		l.Stop()
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(waitFor):
			t.Error("listener did not stop")
		}
	})

	return l
}

func dial(t *testing.T, l *Listener) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func clientOptions(t *testing.T, l *Listener) *ClientOptions {
	t.Helper()
	host, port, err := net.SplitHostPort(l.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)

	opts := NewClientOptions()
	opts.Host = host
	opts.Port = p
	opts.DialRetryInterval = 10 * time.Millisecond
	return opts
}

func readFrame(t *testing.T, conn net.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))
	payload, err := frame.DefaultCodec().ReadFrame(conn)
	require.NoError(t, err)
	return string(payload)
}

func splitPort(addr string) (string, int, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	p, err := strconv.Atoi(port)
	return host, p, err
}
