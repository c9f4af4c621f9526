// Copyright 2025 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package thread

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThread_StartStop(t *testing.T) {
	th := New("test", func(ctx context.Context) {
		<-ctx.Done()
	})
	assert.False(t, th.IsRunning())

	require.NoError(t, th.Start(context.Background()))
	assert.True(t, th.IsRunning())
	assert.ErrorIs(t, th.Start(context.Background()), ErrAlreadyStarted)

	th.Stop()
	assert.False(t, th.IsRunning())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, th.Wait(ctx))
}

func TestThread_StartedNeverLooksStopped(t *testing.T) {
	for i := 0; i < 1000; i++ {
		th := New(fmt.Sprintf("live-%d", i), func(ctx context.Context) {
			<-ctx.Done()
		})

		seen := make(chan bool, 1)
		go func() {
			for !th.Started() {
				runtime.Gosched()
			}
			seen <- th.Stopped()
		}()
		require.NoError(t, th.Start(context.Background()))
		assert.False(t, <-seen)
		assert.False(t, th.Stopped())

		th.Stop()
		assert.True(t, th.Stopped())
		<-th.Done()
	}
}

func TestThread_BodyReturns(t *testing.T) {
	th := New("short", func(ctx context.Context) {})
	require.NoError(t, th.Start(context.Background()))

	select {
	case <-th.Done():
	case <-time.After(time.Second):
		assert.Fail(t, "Timeout waiting for thread.")
	}
	assert.False(t, th.IsRunning())
	assert.True(t, th.Stopped())
}

func TestThread_OnStopRunsOnce(t *testing.T) {
	var calls atomic.Int32
	th := New("hooks", func(ctx context.Context) {
		<-ctx.Done()
	})
	th.OnStop(func() { calls.Add(1) })
	require.NoError(t, th.Start(context.Background()))

	th.Stop()
	th.Stop()
	<-th.Done()
	assert.Equal(t, int32(1), calls.Load())

	th.OnStop(func() { calls.Add(1) })
	assert.Equal(t, int32(2), calls.Load())
}

func TestThread_PanicStopsThread(t *testing.T) {
	th := New("panic", func(ctx context.Context) {
		panic("boom")
	})
	require.NoError(t, th.Start(context.Background()))
	<-th.Done()
	assert.False(t, th.IsRunning())
}

func TestThread_ExecutorError(t *testing.T) {
	th := New("rejected", func(ctx context.Context) {}, WithExecutor(func(task func()) error {
		return fmt.Errorf("pool overload")
	}))

	err := th.Start(context.Background())
	assert.Error(t, err)
	assert.False(t, th.IsRunning())
	<-th.Done()
}

func TestSleep(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}
