// Copyright 2025 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wangtaoking1/msgnet/errors"
	"github.com/wangtaoking1/msgnet/log"
	"github.com/wangtaoking1/msgnet/metrics"
)

var (
	// ErrPeerClosed is returned when writing to a closed peer.
	ErrPeerClosed = errors.New("peer is closed")
	// ErrSendTimeout is returned when the send buffer of a peer stays full
	// for the write timeout.
	ErrSendTimeout = errors.New("peer send buffer is full")
)

// PeerInfo describes a peer for listings. It has the same shape as the tcp
// worker listing.
type PeerInfo struct {
	ID         string    `json:"id"`
	RemoteAddr string    `json:"remote_addr"`
	State      string    `json:"state"`
	TLS        bool      `json:"tls"`
	Since      time.Time `json:"since"`
}

type clientPeer struct {
	id      string
	remote  string
	tls     bool
	since   time.Time
	gateway *Gateway
	conn    *websocket.Conn
	writeCh chan []byte
	logger  *zap.SugaredLogger

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func newPeer(id, remote string, secure bool, g *Gateway, conn *websocket.Conn) *clientPeer {
	return &clientPeer{
		id:      id,
		remote:  remote,
		tls:     secure,
		since:   time.Now(),
		gateway: g,
		conn:    conn,
		writeCh: make(chan []byte, g.opts.SendBuffer),
		logger:  log.With("peer_id", id, "remote", remote),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Run serves the peer until the connection fails, ctx is done or the peer
// is stopped.
func (p *clientPeer) Run(ctx context.Context) {
	defer close(p.done)
	stop := context.AfterFunc(ctx, p.Stop)
	defer stop()

	metrics.ActiveWorkers.WithLabelValues(metrics.WebSocket).Inc()
	defer metrics.ActiveWorkers.WithLabelValues(metrics.WebSocket).Dec()

	wg := sync.WaitGroup{}
	wg.Add(3)
	go func() {
		defer wg.Done()
		p.pingLoop()
	}()
	go func() {
		defer wg.Done()
		p.readLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		p.writeLoop()
	}()
	wg.Wait()
	_ = p.conn.Close()
	p.logger.Infow("Client peer closed")
}

// Stop closes the connection, which ends every loop of the peer.
func (p *clientPeer) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		_ = p.conn.Close()
	})
}

func (p *clientPeer) stopped() bool {
	select {
	case <-p.stopCh:
		return true
	default:
		return false
	}
}

func (p *clientPeer) Info() PeerInfo {
	state := "running"
	if p.stopped() {
		state = "stopped"
	}
	return PeerInfo{
		ID:         p.id,
		RemoteAddr: p.remote,
		State:      state,
		TLS:        p.tls,
		Since:      p.since,
	}
}

func (p *clientPeer) pingLoop() {
	opts := p.gateway.opts
	pingTicker := time.NewTicker(opts.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-pingTicker.C:
			deadline := time.Now().Add(opts.WriteTimeout)
			if err := p.conn.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
				p.logger.Infow("Write ping message failed", "error", err)
				p.Stop()
				return
			}
		}
	}
}

func (p *clientPeer) readLoop(ctx context.Context) {
	defer p.Stop()

	opts := p.gateway.opts
	if opts.MaxMessageSize > 0 {
		p.conn.SetReadLimit(opts.MaxMessageSize)
	}
	_ = p.conn.SetReadDeadline(time.Now().Add(opts.PongTimeout))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(opts.PongTimeout))
	})

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			p.logReadError(err)
			return
		}
		metrics.FramesReceived.WithLabelValues(metrics.WebSocket).Inc()

		msg, err := p.gateway.decoder(p.id, data)
		if err != nil {
			p.logger.Warnw("Drop undecodable message", "error", err)
			continue
		}
		if err := p.gateway.dispatcher.Post(ctx, msg); err != nil {
			p.logger.Warnw("Message handler failed", "kind", msg.Kind(), "error", err)
		}
	}
}

func (p *clientPeer) logReadError(err error) {
	switch {
	case p.stopped():
		p.logger.Infow("Peer stopped")
	case errors.Is(err, websocket.ErrReadLimit):
		metrics.ProtocolErrors.WithLabelValues(metrics.WebSocket).Inc()
		p.logger.Warnw("Drop peer on oversized message", "error", err)
	case websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		p.logger.Warnw("Connection unexpected close", "error", err)
	default:
		p.logger.Infow("Peer disconnected", "error", err)
	}
}

func (p *clientPeer) writeLoop() {
	opts := p.gateway.opts
	for {
		select {
		case <-p.stopCh:
			deadline := time.Now().Add(opts.WriteTimeout)
			_ = p.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), deadline)
			return
		case payload := <-p.writeCh:
			_ = p.conn.SetWriteDeadline(time.Now().Add(opts.WriteTimeout))
			if err := p.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				p.logger.Infow("Write message failed", "error", err)
				p.Stop()
				return
			}
			metrics.FramesSent.WithLabelValues(metrics.WebSocket).Inc()
		}
	}
}

// Write queues payload for the peer, waiting up to the write timeout for
// room in the send buffer.
func (p *clientPeer) Write(payload []byte) error {
	if p.stopped() {
		return ErrPeerClosed
	}

	t := time.NewTimer(p.gateway.opts.WriteTimeout)
	defer t.Stop()

	select {
	case <-p.stopCh:
		return ErrPeerClosed
	case p.writeCh <- payload:
		return nil
	case <-t.C:
		return ErrSendTimeout
	}
}
