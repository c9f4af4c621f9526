// Copyright 2023 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package server

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/wangtaoking1/msgnet/errors"
	"github.com/wangtaoking1/msgnet/log"
	"github.com/wangtaoking1/msgnet/server/middleware"
)

// APIServer is the interface of the admin api server.
type APIServer interface {
	// Setup setups the server engine, like custom routers or middlewares.
	// Setup should be called before Run.
	Setup(SetupFunc) error
	// Run starts the api server engine and blocks until ctx is done or
	// Close is called.
	Run(ctx context.Context) error
	// Ready is closed once the http listener is bound.
	Ready() <-chan struct{}
	// Addr returns the bound http address, nil before Ready.
	Addr() net.Addr
	// Close shutdowns the api server engine.
	Close()
}

// SetupFunc is the func used to set up the engine.
type SetupFunc func(g *gin.Engine) error

type apiServer struct {
	*gin.Engine

	options *Options

	mtx                     sync.Mutex
	httpServer, httpsServer *http.Server
	addr                    net.Addr

	ready     chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// New returns a new api server instance.
func New(options *Options) APIServer {
	if options == nil {
		return nil
	}

	gin.SetMode(gin.ReleaseMode)

	s := &apiServer{
		options: options,
		Engine:  gin.New(),
		ready:   make(chan struct{}),
		stopped: make(chan struct{}),
	}

	s.initServer()

	return s
}

func (s *apiServer) initServer() {
	s.setupGlobalMiddlewares()
	s.setupGlobalRouters()
}

func (s *apiServer) setupGlobalMiddlewares() {
	installed := make([]string, 0, len(s.options.Middlewares))
	for _, m := range s.options.Middlewares {
		mw := middleware.Get(m)
		if mw == nil {
			log.Warnf("Middleware %s can not found", m)

			continue
		}
		installed = append(installed, m)
		s.Use(mw)
	}
	if len(installed) != 0 {
		log.Infof("Installed middlewares: %s", strings.Join(installed, ","))
	}
}

func (s *apiServer) setupGlobalRouters() {
	if s.options.Healthz {
		s.addHealthzRouter()
	}

	if s.options.Metrics {
		prometheus := ginprometheus.NewPrometheus("gin")
		prometheus.Use(s.Engine)
	}

	if s.options.Profiling {
		pprof.Register(s.Engine)
	}
}

func (s *apiServer) Setup(setupFunc SetupFunc) error {
	if setupFunc == nil {
		return nil
	}

	return setupFunc(s.Engine)
}

func (s *apiServer) Ready() <-chan struct{} {
	return s.ready
}

func (s *apiServer) Addr() net.Addr {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	return s.addr
}

func (s *apiServer) Run(ctx context.Context) error {
	if s.closed() {
		return nil
	}

	ln, err := net.Listen("tcp", s.options.HTTP.Address())
	if err != nil {
		return errors.Wrapf(err, "listen on %s", s.options.HTTP.Address())
	}

	var tlsLn net.Listener
	if s.options.HTTPS.Enabled {
		tlsLn, err = net.Listen("tcp", s.options.HTTPS.Address())
		if err != nil {
			_ = ln.Close()

			return errors.Wrapf(err, "listen on %s", s.options.HTTPS.Address())
		}
	}

	s.mtx.Lock()
	s.addr = ln.Addr()
	s.httpServer = &http.Server{Handler: s, ReadHeaderTimeout: 10 * time.Second}
	if tlsLn != nil {
		s.httpsServer = &http.Server{Handler: s, ReadHeaderTimeout: 10 * time.Second}
	}
	httpServer, httpsServer := s.httpServer, s.httpsServer
	s.mtx.Unlock()
	close(s.ready)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		log.Infof("Start to listening on http server: %s", ln.Addr())

		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		log.Infof("Server on %s stopped", ln.Addr())

		return nil
	})

	if httpsServer != nil {
		eg.Go(func() error {
			log.Infof("Start to listening on https server: %s", tlsLn.Addr())

			cert, key := s.options.HTTPS.TLS.CertFile, s.options.HTTPS.TLS.KeyFile
			if err := httpsServer.ServeTLS(tlsLn, cert, key); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "https server")
			}
			log.Infof("Server on %s stopped", tlsLn.Addr())

			return nil
		})
	}

	eg.Go(func() error {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.stopped:
		}

		return nil
	})

	if s.options.Healthz {
		if err := s.healthCheck(ctx); err != nil && ctx.Err() == nil && !s.closed() {
			s.Close()
			_ = eg.Wait()

			return err
		}
	}

	return eg.Wait()
}

func (s *apiServer) closed() bool {
	select {
	case <-s.stopped:
		return true
	default:
		return false
	}
}

func (s *apiServer) Close() {
	s.closeOnce.Do(func() {
		close(s.stopped)

		// The servers have 10 seconds to finish the requests in flight.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		s.mtx.Lock()
		httpServer, httpsServer := s.httpServer, s.httpsServer
		s.mtx.Unlock()

		if httpServer != nil {
			if err := httpServer.Shutdown(ctx); err != nil {
				log.Warnf("Failed to shutdown http server: %s", err.Error())
			}
			log.Infof("HTTP server on %s stopped", s.options.HTTP.Address())
		}

		if httpsServer != nil {
			if err := httpsServer.Shutdown(ctx); err != nil {
				log.Warnf("Failed to shutdown https server: %s", err.Error())
			}
			log.Infof("HTTPS server on %s stopped", s.options.HTTPS.Address())
		}
	})
}
