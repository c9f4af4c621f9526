// Copyright 2023 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package shutdown

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeTrigger struct {
	after int
}

var _ Trigger = (*fakeTrigger)(nil)

func (f *fakeTrigger) GetName() string {
	return "fake"
}

func (f *fakeTrigger) Start(executor Executor) error {
	executor.Execute(f)

	return nil
}

func (f *fakeTrigger) After() {
	f.after++
}

func TestShutdown_CallbackCalled(t *testing.T) {
	c := make(chan string, 10)
	gs := New(&fakeTrigger{})
	for i := 0; i < 10; i++ {
		gs.AddCallback(CallbackFunc(func(_ context.Context, name string) error {
			c <- name

			return nil
		}))
	}

	_ = gs.Start()

	assert.Equal(t, 10, len(c), "callback not be called")
	assert.Equal(t, "fake", <-c)
	select {
	case <-gs.Done():
	default:
		t.Fatal("done not closed")
	}
}

func TestShutdown_HandleError(t *testing.T) {
	c := make(chan int, 1)
	gs := New(&fakeTrigger{})
	gs.SetErrorHandler(ErrorFunc(func(err error) {
		c <- 1
	}))
	gs.AddCallback(CallbackFunc(func(context.Context, string) error {
		return fmt.Errorf("error")
	}))

	_ = gs.Start()
	assert.Equal(t, 1, len(c), "error handler not be called")
}

func TestShutdown_RunsOnce(t *testing.T) {
	first, second := &fakeTrigger{}, &fakeTrigger{}
	calls := 0
	gs := New(first, second)
	gs.AddCallback(CallbackFunc(func(context.Context, string) error {
		calls++

		return nil
	}))

	_ = gs.Start()
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, first.after)
	assert.Equal(t, 0, second.after)
}

func TestShutdown_Timeout(t *testing.T) {
	gs := New(&fakeTrigger{})
	gs.SetTimeout(10 * time.Millisecond)
	var err error
	gs.AddCallback(CallbackFunc(func(ctx context.Context, _ string) error {
		<-ctx.Done()
		err = ctx.Err()

		return nil
	}))

	_ = gs.Start()
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
