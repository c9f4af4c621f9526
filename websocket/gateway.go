// Copyright 2025 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package websocket serves websocket peers and posts their messages into the
// same dispatcher as the framed tcp listener.
package websocket

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/exp/maps"

	"github.com/wangtaoking1/msgnet/dispatch"
	"github.com/wangtaoking1/msgnet/errors"
	"github.com/wangtaoking1/msgnet/log"
	"github.com/wangtaoking1/msgnet/message"
	"github.com/wangtaoking1/msgnet/metrics"
	"github.com/wangtaoking1/msgnet/tlsconf"
)

const healthPath = "/health_check"

var (
	// ErrPeerNotFound is returned by Send for unknown peer ids.
	ErrPeerNotFound = errors.New("peer not found")
	// ErrGatewayStarted is returned by a second call to Run.
	ErrGatewayStarted = errors.New("gateway already started")
)

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway) error

// WithTLSContext serves wss with the server config built from c.
func WithTLSContext(c *tlsconf.Context) GatewayOption {
	return func(g *Gateway) error {
		cfg, err := c.ServerConfig()
		if err != nil {
			return err
		}
		g.tlsConfig = cfg
		return nil
	}
}

// WithDecoder sets how websocket messages become messages.
func WithDecoder(decoder message.Decoder) GatewayOption {
	return func(g *Gateway) error {
		g.decoder = decoder
		return nil
	}
}

// Gateway upgrades http requests to websocket peers. Every peer posts to the
// shared dispatcher with its id as the message origin.
type Gateway struct {
	opts       *Options
	dispatcher *dispatch.Dispatcher
	decoder    message.Decoder
	upgrader   websocket.Upgrader
	tlsConfig  *tls.Config

	started atomic.Bool
	mtx     sync.RWMutex
	peers   map[string]*clientPeer
	closing bool
	addr    net.Addr
	wg      sync.WaitGroup

	ready    chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewGateway creates a gateway posting to d. A nil d gets a new dispatcher.
func NewGateway(opts *Options, d *dispatch.Dispatcher, gopts ...GatewayOption) (*Gateway, error) {
	if opts == nil {
		opts = NewOptions()
	}
	if agg := errors.NewAggregate(opts.Validate()); agg != nil {
		return nil, agg
	}
	decoder, err := message.LookupDecoder(opts.Decoder)
	if err != nil {
		return nil, err
	}
	if d == nil {
		d = dispatch.New()
	}

	g := &Gateway{
		opts:       opts,
		dispatcher: d,
		decoder:    decoder,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  opts.ReadBufferSize,
			WriteBufferSize: opts.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			EnableCompression: opts.Compression,
		},
		peers:  make(map[string]*clientPeer),
		ready:  make(chan struct{}),
		stopCh: make(chan struct{}),
	}

	if opts.TLS != nil && opts.TLS.Enabled {
		c, err := opts.TLS.NewContext()
		if err != nil {
			return nil, errors.WithMessage(err, "tls")
		}
		if g.tlsConfig, err = c.ServerConfig(); err != nil {
			return nil, errors.WithMessage(err, "tls")
		}
	}
	for _, o := range gopts {
		if err := o(g); err != nil {
			return nil, err
		}
	}

	return g, nil
}

// Dispatcher returns the dispatcher peers post to.
func (g *Gateway) Dispatcher() *dispatch.Dispatcher {
	return g.dispatcher
}

// Ready is closed once Run has bound its socket or failed to.
func (g *Gateway) Ready() <-chan struct{} {
	return g.ready
}

// Addr returns the bound address, nil before Ready.
func (g *Gateway) Addr() net.Addr {
	g.mtx.RLock()
	defer g.mtx.RUnlock()

	return g.addr
}

// Handler returns the http handler serving the upgrade path and the health
// check.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(healthPath, g.handleHealth)
	mux.HandleFunc(g.opts.Path, g.handleStream)
	return mux
}

// Run binds the gateway and serves peers until ctx is done or Stop is
// called. Every peer is stopped before Run returns.
func (g *Gateway) Run(ctx context.Context) error {
	if !g.started.CompareAndSwap(false, true) {
		return ErrGatewayStarted
	}
	ln, err := net.Listen("tcp", g.opts.Address())
	if err != nil {
		close(g.ready)
		return errors.Wrapf(err, "listen on %s", g.opts.Address())
	}
	if g.tlsConfig != nil {
		ln = tls.NewListener(ln, g.tlsConfig)
	}

	srv := &http.Server{
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
	g.mtx.Lock()
	g.addr = ln.Addr()
	g.mtx.Unlock()
	close(g.ready)

	log.Infow("Websocket gateway started", "address", ln.Addr().String(), "path", g.opts.Path,
		"tls", g.tlsConfig != nil)
	defer log.Info("Websocket gateway stopped")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case <-g.stopCh:
	case serveErr = <-errCh:
	}

	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warnf("Failed to shutdown websocket gateway: %s", err.Error())
	}
	g.mtx.Lock()
	g.closing = true
	g.mtx.Unlock()
	for _, p := range g.snapshot() {
		p.Stop()
	}
	g.wg.Wait()

	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return errors.Wrap(serveErr, "websocket gateway")
	}
	return nil
}

// Stop makes Run return. It is safe to call more than once, and before Run.
func (g *Gateway) Stop() {
	g.stopOnce.Do(func() {
		close(g.stopCh)
	})
}

func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (g *Gateway) handleStream(w http.ResponseWriter, r *http.Request) {
	select {
	case <-g.stopCh:
		http.Error(w, "gateway is stopping", http.StatusServiceUnavailable)
		return
	default:
	}

	id := r.URL.Query().Get("uuid")
	if len(id) == 0 {
		id = uuid.NewString()
	}
	ip := r.Header.Get("True-Client-IP")
	if len(ip) == 0 {
		ip = r.RemoteAddr
	}
	if _, ok := g.peer(id); ok {
		metrics.ConnectionsRejected.WithLabelValues(metrics.WebSocket).Inc()
		http.Error(w, "peer id already connected", http.StatusConflict)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Infow("Websocket upgrade failed", "remote", ip, "error", err)
		return
	}

	p := newPeer(id, ip, r.TLS != nil, g, conn)
	if !g.add(p) {
		metrics.ConnectionsRejected.WithLabelValues(metrics.WebSocket).Inc()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "peer rejected"),
			time.Now().Add(g.opts.WriteTimeout))
		_ = conn.Close()
		return
	}
	defer g.remove(p)
	metrics.ConnectionsAccepted.WithLabelValues(metrics.WebSocket).Inc()
	log.Infow("Websocket peer connected", "peer_id", id, "remote", ip, "path", r.URL.Path)

	p.Run(r.Context())
}

func (g *Gateway) add(p *clientPeer) bool {
	g.mtx.Lock()
	defer g.mtx.Unlock()

	if _, ok := g.peers[p.id]; ok || g.closing {
		return false
	}
	g.peers[p.id] = p
	g.wg.Add(1)
	return true
}

func (g *Gateway) remove(p *clientPeer) {
	g.mtx.Lock()
	defer g.mtx.Unlock()

	if g.peers[p.id] == p {
		delete(g.peers, p.id)
		g.wg.Done()
	}
}

func (g *Gateway) peer(id string) (*clientPeer, bool) {
	g.mtx.RLock()
	defer g.mtx.RUnlock()

	p, ok := g.peers[id]
	return p, ok
}

func (g *Gateway) snapshot() []*clientPeer {
	g.mtx.RLock()
	defer g.mtx.RUnlock()

	return maps.Values(g.peers)
}

// Len returns the number of connected peers.
func (g *Gateway) Len() int {
	g.mtx.RLock()
	defer g.mtx.RUnlock()

	return len(g.peers)
}

// PeerInfos describes the connected peers.
func (g *Gateway) PeerInfos() []PeerInfo {
	peers := g.snapshot()
	infos := make([]PeerInfo, 0, len(peers))
	for _, p := range peers {
		infos = append(infos, p.Info())
	}
	return infos
}

// Send writes payload to the peer with id.
func (g *Gateway) Send(id string, payload []byte) error {
	p, ok := g.peer(id)
	if !ok {
		return errors.WithMessagef(ErrPeerNotFound, "id %s", id)
	}
	return p.Write(payload)
}

// Broadcast writes payload to every connected peer.
func (g *Gateway) Broadcast(payload []byte) error {
	var errs []error
	for _, p := range g.snapshot() {
		if err := p.Write(payload); err != nil {
			errs = append(errs, errors.WithMessagef(err, "peer %s", p.id))
		}
	}
	if agg := errors.NewAggregate(errs); agg != nil {
		return agg
	}
	return nil
}
