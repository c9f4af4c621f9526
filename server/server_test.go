// Copyright 2025 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wangtaoking1/msgnet/server/middleware"
)

func testOptions() *Options {
	opts := NewOptions()
	opts.HTTP.BindPort = 0
	return opts
}

func serve(t *testing.T, s APIServer, method, path string) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	s.(*apiServer).ServeHTTP(rec, req)
	return rec
}

func TestHealthzRouter(t *testing.T) {
	s := New(testOptions())

	rec := serve(t, s, http.MethodGet, healthzPath)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(middleware.XRequestIDKey))
}

func TestHealthzDisabled(t *testing.T) {
	opts := testOptions()
	opts.Healthz = false
	s := New(opts)

	rec := serve(t, s, http.MethodGet, healthzPath)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNewNilOptions(t *testing.T) {
	assert.Nil(t, New(nil))
}

func TestWorkersRouter(t *testing.T) {
	s := New(testOptions())
	err := s.Setup(WorkersRouter(map[string]WorkersFunc{
		"tcp":       func() any { return []string{"a", "b"} },
		"websocket": func() any { return []string{} },
	}))
	require.NoError(t, err)

	rec := serve(t, s, http.MethodGet, WorkersPath)
	require.Equal(t, http.StatusOK, rec.Code)
	var all map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Equal(t, []string{"a", "b"}, all["tcp"])
	assert.Empty(t, all["websocket"])

	rec = serve(t, s, http.MethodGet, WorkersPath+"/tcp")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["a","b"]`, rec.Body.String())

	rec = serve(t, s, http.MethodGet, WorkersPath+"/udp")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"transports":["tcp","websocket"]`)
}

func TestSetupError(t *testing.T) {
	s := New(testOptions())
	assert.NoError(t, s.Setup(nil))
	assert.EqualError(t, s.Setup(func(g *gin.Engine) error {
		return fmt.Errorf("boom")
	}), "boom")
}

func TestCorsMiddleware(t *testing.T) {
	opts := testOptions()
	opts.Middlewares = append(opts.Middlewares, "cors", "unknown")
	s := New(opts)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, healthzPath, nil)
	req.Header.Set("Origin", "http://example.com")
	s.(*apiServer).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDIsReused(t *testing.T) {
	s := New(testOptions())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, healthzPath, nil)
	req.Header.Set(middleware.XRequestIDKey, "rid-1")
	s.(*apiServer).ServeHTTP(rec, req)

	assert.Equal(t, "rid-1", rec.Header().Get(middleware.XRequestIDKey))
}

func TestRunAndCancel(t *testing.T) {
	s := New(testOptions())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-s.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("server not ready")
	}

	resp, err := http.Get(fmt.Sprintf("http://%s%s", s.Addr(), healthzPath))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunAndClose(t *testing.T) {
	s := New(testOptions())
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()
	<-s.Ready()

	s.Close()
	s.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("Run did not return after Close")
	}
}

func TestRunAfterClose(t *testing.T) {
	s := New(testOptions())
	s.Close()
	assert.NoError(t, s.Run(context.Background()))
}

func TestRunBindFailure(t *testing.T) {
	opts := testOptions()
	opts.HTTP.BindAddress = "256.0.0.1"
	err := New(opts).Run(context.Background())
	assert.Error(t, err)
}

func TestOptionsValidate(t *testing.T) {
	opts := NewOptions()
	assert.Empty(t, opts.Validate())

	opts.HTTP.BindPort = 0
	opts.HTTPS.Enabled = true
	opts.HTTPS.BindPort = 70000
	assert.Len(t, opts.Validate(), 3)
}
