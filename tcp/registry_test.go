// Copyright 2025 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package tcp

import (
	"context"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wangtaoking1/msgnet/dispatch"
	"github.com/wangtaoking1/msgnet/frame"
	"github.com/wangtaoking1/msgnet/message"
)

func pipeWorker(t *testing.T) *Worker {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	w := newWorker(server, workerConfig{
		codec:      frame.DefaultCodec(),
		dispatcher: dispatch.New(),
		decoder:    message.DecodeText,
	})
	t.Cleanup(w.Stop)
	return w
}

func TestRegistry_Reap(t *testing.T) {
	r := NewRegistry()
	var workers []*Worker
	for i := 0; i < 5; i++ {
		w := pipeWorker(t)
		require.NoError(t, w.Start(context.Background()))
		r.Add(w)
		workers = append(workers, w)
	}
	assert.Equal(t, 5, r.Len())
	assert.Equal(t, 0, r.Reap())

	workers[1].Stop()
	workers[3].Stop()
	assert.Equal(t, 2, r.Reap())

	got := r.Snapshot()
	require.Len(t, got, 3)
	assert.Equal(t, []string{workers[0].ID(), workers[2].ID(), workers[4].ID()},
		[]string{got[0].ID(), got[1].ID(), got[2].ID()})

	// adjacent stopped entries are all removed
	workers[0].Stop()
	workers[2].Stop()
	assert.Equal(t, 2, r.Reap())
	assert.Equal(t, 1, r.Len())

	_, ok := r.Get(workers[4].ID())
	assert.True(t, ok)
	_, ok = r.Get(workers[0].ID())
	assert.False(t, ok)
}

func TestRegistry_ReapUnstarted(t *testing.T) {
	r := NewRegistry()
	w := pipeWorker(t)
	r.Add(w)
	assert.Equal(t, 0, r.Reap())
	assert.Equal(t, 1, r.Len())

	require.NoError(t, w.Start(context.Background()))
	w.Stop()
	assert.Equal(t, 1, r.Reap())
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		w := pipeWorker(t)
		require.NoError(t, w.Start(context.Background()))
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Add(w)
		}()
		go func() {
			defer wg.Done()
			r.Reap()
			_ = r.Snapshot()
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, r.Len())
}
