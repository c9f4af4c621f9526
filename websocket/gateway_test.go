// Copyright 2025 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package websocket

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wangtaoking1/msgnet/dispatch"
	"github.com/wangtaoking1/msgnet/errors"
	"github.com/wangtaoking1/msgnet/message"
)

const waitFor = 5 * time.Second

func testOptions() *Options {
	opts := NewOptions()
	opts.Enabled = true
	opts.BindPort = 0
	return opts
}

func startGateway(t *testing.T, opts *Options, d *dispatch.Dispatcher) (*Gateway, <-chan error) {
	t.Helper()
	if opts == nil {
		opts = testOptions()
	}
	g, err := NewGateway(opts, d)
	require.NoError(t, err)

	return g, runGateway(t, g)
}

func runGateway(t *testing.T, g *Gateway) <-chan error {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- g.Run(ctx)
	}()
	<-g.Ready()
	t.Cleanup(func() {
		g.Stop()
		cancel()
	})

	return done
}

func dialPeer(t *testing.T, g *Gateway, id string) *websocket.Conn {
	t.Helper()

	url := fmt.Sprintf("ws://%s%s", g.Addr(), g.opts.Path)
	if id != "" {
		url += "?uuid=" + id
	}
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func textSink(d *dispatch.Dispatcher) <-chan *message.TextMessage {
	ch := make(chan *message.TextMessage, 16)
	dispatch.Subscribe(d, func(_ context.Context, msg *message.TextMessage) error {
		ch <- msg
		return nil
	})
	return ch
}

func TestGatewayPostsMessages(t *testing.T) {
	d := dispatch.New()
	received := textSink(d)
	g, _ := startGateway(t, nil, d)

	conn := dialPeer(t, g, "p1")
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("world")))

	for _, want := range []string{"hello", "world"} {
		select {
		case msg := <-received:
			assert.Equal(t, "p1", msg.From)
			assert.Equal(t, want, msg.Text)
		case <-time.After(waitFor):
			t.Fatalf("message %q not posted", want)
		}
	}
}

func TestGatewayActionDecoder(t *testing.T) {
	d := dispatch.New()
	actions := make(chan *message.ActionMessage, 1)
	dispatch.Subscribe(d, func(_ context.Context, msg *message.ActionMessage) error {
		actions <- msg
		return nil
	})
	opts := testOptions()
	opts.Decoder = message.DecoderAction
	g, _ := startGateway(t, opts, d)

	conn := dialPeer(t, g, "")
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"join","data":"room-1"}`)))

	select {
	case msg := <-actions:
		assert.Equal(t, "join", msg.Action)
		assert.Equal(t, "room-1", string(msg.Data))
		assert.NotEmpty(t, msg.From)
	case <-time.After(waitFor):
		t.Fatal("action not posted")
	}
}

func TestGatewaySendAndBroadcast(t *testing.T) {
	g, _ := startGateway(t, nil, nil)

	c1 := dialPeer(t, g, "p1")
	c2 := dialPeer(t, g, "p2")
	require.Eventually(t, func() bool { return g.Len() == 2 }, waitFor, 10*time.Millisecond)

	require.NoError(t, g.Send("p1", []byte("only p1")))
	_ = c1.SetReadDeadline(time.Now().Add(waitFor))
	_, data, err := c1.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "only p1", string(data))

	require.NoError(t, g.Broadcast([]byte("all")))
	for _, c := range []*websocket.Conn{c1, c2} {
		_ = c.SetReadDeadline(time.Now().Add(waitFor))
		_, data, err := c.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, "all", string(data))
	}

	err = g.Send("nobody", []byte("x"))
	assert.True(t, errors.Is(err, ErrPeerNotFound))

	infos := g.PeerInfos()
	require.Len(t, infos, 2)
	for _, info := range infos {
		assert.Equal(t, "running", info.State)
		assert.False(t, info.TLS)
	}
}

func TestGatewayHandlerReply(t *testing.T) {
	d := dispatch.New()
	g, err := NewGateway(testOptions(), d)
	require.NoError(t, err)
	dispatch.Subscribe(d, func(_ context.Context, msg *message.TextMessage) error {
		return g.Send(msg.From, []byte(strings.ToUpper(msg.Text)))
	})
	runGateway(t, g)

	conn := dialPeer(t, g, "echo")
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ping")))
	_ = conn.SetReadDeadline(time.Now().Add(waitFor))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "PING", string(data))
}

func TestGatewayRejectsDuplicateID(t *testing.T) {
	g, _ := startGateway(t, nil, nil)
	dialPeer(t, g, "dup")
	require.Eventually(t, func() bool { return g.Len() == 1 }, waitFor, 10*time.Millisecond)

	url := fmt.Sprintf("ws://%s%s?uuid=dup", g.Addr(), g.opts.Path)
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, 1, g.Len())
}

func TestGatewayDropsOversizedMessage(t *testing.T) {
	opts := testOptions()
	opts.MaxMessageSize = 8
	g, _ := startGateway(t, opts, nil)

	conn := dialPeer(t, g, "big")
	require.Eventually(t, func() bool { return g.Len() == 1 }, waitFor, 10*time.Millisecond)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("0123456789abcdef")))

	_ = conn.SetReadDeadline(time.Now().Add(waitFor))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Eventually(t, func() bool { return g.Len() == 0 }, waitFor, 10*time.Millisecond)
}

func TestGatewayStopClosesPeers(t *testing.T) {
	g, done := startGateway(t, nil, nil)
	conn := dialPeer(t, g, "p1")
	require.Eventually(t, func() bool { return g.Len() == 1 }, waitFor, 10*time.Millisecond)

	g.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * waitFor):
		t.Fatal("gateway did not stop")
	}
	assert.Equal(t, 0, g.Len())

	_ = conn.SetReadDeadline(time.Now().Add(waitFor))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestGatewayHealthCheck(t *testing.T) {
	g, _ := startGateway(t, nil, nil)

	resp, err := http.Get(fmt.Sprintf("http://%s%s", g.Addr(), healthPath))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGatewayBindFailure(t *testing.T) {
	opts := testOptions()
	opts.BindAddress = "256.0.0.1"
	g, err := NewGateway(opts, nil)
	require.NoError(t, err)
	assert.Error(t, g.Run(context.Background()))

	select {
	case <-g.Ready():
	case <-time.After(waitFor):
		t.Fatal("ready not closed after bind failure")
	}
	assert.Nil(t, g.Addr())
}

func TestGatewayRunTwice(t *testing.T) {
	g, _ := startGateway(t, nil, nil)
	assert.ErrorIs(t, g.Run(context.Background()), ErrGatewayStarted)
}

func TestOptionsValidate(t *testing.T) {
	opts := NewOptions()
	assert.Empty(t, opts.Validate())

	opts.Enabled = true
	assert.Empty(t, opts.Validate())

	opts.Path = "ws"
	opts.SendBuffer = 0
	opts.PongTimeout = opts.PingInterval
	opts.Decoder = "xml"
	assert.Len(t, opts.Validate(), 4)

	_, err := NewGateway(opts, nil)
	assert.Error(t, err)
}
