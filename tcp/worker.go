// Copyright 2025 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package tcp

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wangtaoking1/msgnet/dispatch"
	"github.com/wangtaoking1/msgnet/errors"
	"github.com/wangtaoking1/msgnet/frame"
	"github.com/wangtaoking1/msgnet/log"
	"github.com/wangtaoking1/msgnet/message"
	"github.com/wangtaoking1/msgnet/metrics"
	"github.com/wangtaoking1/msgnet/thread"
)

var (
	// ErrWorkerNotReady is returned by Write before the TLS handshake completes.
	ErrWorkerNotReady = errors.New("worker is not ready")
	// ErrWorkerStopped is returned by Write after the worker stopped.
	ErrWorkerStopped = errors.New("worker is stopped")
)

// State is the lifecycle state of a Worker.
type State int32

const (
	StateCreated State = iota
	StateHandshaking
	StateReading
	StatePosting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateHandshaking:
		return "handshaking"
	case StateReading:
		return "reading"
	case StatePosting:
		return "posting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// WorkerInfo describes a worker for listings.
type WorkerInfo struct {
	ID         string    `json:"id"`
	RemoteAddr string    `json:"remote_addr"`
	State      string    `json:"state"`
	TLS        bool      `json:"tls"`
	Since      time.Time `json:"since"`
}

type workerConfig struct {
	codec            *frame.Codec
	dispatcher       *dispatch.Dispatcher
	decoder          message.Decoder
	tlsConfig        *tls.Config
	handshakeTimeout time.Duration
	executor         thread.Executor
}

// Worker serves one accepted connection: it reads frames, turns them into
// messages and posts them to the shared dispatcher.
type Worker struct {
	id     string
	conn   net.Conn
	cfg    workerConfig
	since  time.Time
	state  atomic.Int32
	thread *thread.Thread

	mtx sync.RWMutex
	fc  *frame.Conn
}

func newWorker(conn net.Conn, cfg workerConfig) *Worker {
	if cfg.executor == nil {
		cfg.executor = thread.GoExecutor
	}
	w := &Worker{
		id:    uuid.New().String(),
		conn:  conn,
		cfg:   cfg,
		since: time.Now(),
	}
	if cfg.tlsConfig == nil {
		w.fc = frame.NewConn(conn, cfg.codec)
	}
	w.thread = thread.New("worker-"+w.id, w.run, thread.WithExecutor(cfg.executor))
	w.thread.OnStop(func() {
		_ = w.conn.Close()
	})

	return w
}

// ID returns the unique id of the worker. Messages read by the worker carry
// it as their origin.
func (w *Worker) ID() string {
	return w.id
}

// RemoteAddr returns the address of the peer.
func (w *Worker) RemoteAddr() string {
	return w.conn.RemoteAddr().String()
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
}

// IsRunning reports whether the worker is started and not stopped.
func (w *Worker) IsRunning() bool {
	return w.thread.IsRunning()
}

// Finished reports whether the worker was started and has stopped since.
// Workers that were never started are not finished.
func (w *Worker) Finished() bool {
	return w.thread.Started() && w.thread.Stopped()
}

// Info returns a description of the worker.
func (w *Worker) Info() WorkerInfo {
	return WorkerInfo{
		ID:         w.id,
		RemoteAddr: w.RemoteAddr(),
		State:      w.State().String(),
		TLS:        w.cfg.tlsConfig != nil,
		Since:      w.since,
	}
}

// Start schedules the worker on its executor.
func (w *Worker) Start(ctx context.Context) error {
	return w.thread.Start(ctx)
}

// Stop closes the connection. A read blocked in the worker returns at once.
func (w *Worker) Stop() {
	w.thread.Stop()
}

// Done is closed once the worker has stopped serving.
func (w *Worker) Done() <-chan struct{} {
	return w.thread.Done()
}

// Write sends payload to the peer as one frame.
func (w *Worker) Write(payload []byte) error {
	if w.State() == StateStopped {
		return ErrWorkerStopped
	}

	w.mtx.RLock()
	fc := w.fc
	w.mtx.RUnlock()
	if fc == nil {
		return ErrWorkerNotReady
	}

	if err := fc.Write(payload); err != nil {
		return errors.WithMessagef(err, "write to worker %s", w.id)
	}
	if len(payload) > 0 {
		metrics.FramesSent.WithLabelValues(metrics.TCP).Inc()
	}

	return nil
}

func (w *Worker) run(ctx context.Context) {
	logger := log.With("worker_id", w.id, "remote", w.RemoteAddr())
	stop := context.AfterFunc(ctx, w.Stop)
	defer stop()

	metrics.ActiveWorkers.WithLabelValues(metrics.TCP).Inc()
	defer metrics.ActiveWorkers.WithLabelValues(metrics.TCP).Dec()
	defer func() {
		w.setState(StateStopped)
		w.thread.Stop()
		logger.Infow("Connection closed")
	}()

	if w.cfg.tlsConfig != nil {
		w.setState(StateHandshaking)
		if err := w.handshake(ctx); err != nil {
			metrics.HandshakeFailures.Inc()
			logger.Warnw("TLS handshake failed", "error", err)
			return
		}
	}

	w.mtx.RLock()
	fc := w.fc
	w.mtx.RUnlock()

	for {
		w.setState(StateReading)
		payload, err := fc.Read()
		if err != nil {
			w.logReadError(ctx, logger, err)
			return
		}
		metrics.FramesReceived.WithLabelValues(metrics.TCP).Inc()

		w.setState(StatePosting)
		msg, err := w.cfg.decoder(w.id, payload)
		if err != nil {
			logger.Warnw("Drop undecodable message", "error", err)
			continue
		}
		if err := w.cfg.dispatcher.Post(ctx, msg); err != nil {
			logger.Warnw("Message handler failed", "kind", msg.Kind(), "error", err)
		}
	}
}

func (w *Worker) handshake(ctx context.Context) error {
	timeout := w.cfg.handshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn := tls.Server(w.conn, w.cfg.tlsConfig)
	if err := conn.HandshakeContext(hctx); err != nil {
		return err
	}

	w.mtx.Lock()
	w.fc = frame.NewConn(conn, w.cfg.codec)
	w.mtx.Unlock()

	return nil
}

func (w *Worker) logReadError(ctx context.Context, logger *zap.SugaredLogger, err error) {
	switch {
	case ctx.Err() != nil || errors.Is(err, net.ErrClosed):
		logger.Infow("Worker stopped")
	case frame.IsProtocol(err):
		metrics.ProtocolErrors.WithLabelValues(metrics.TCP).Inc()
		logger.Warnw("Drop connection on malformed frame", "error", err)
	default:
		logger.Infow("Peer disconnected", "error", err)
	}
}
