// Copyright 2025 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package contextdone triggers shutdown when a context is done, e.g. when
// one of a group of servers fails.
package contextdone

import (
	"context"

	"github.com/wangtaoking1/msgnet/shutdown"
)

// Name defines shutdown manager name.
const Name = "ContextDoneTrigger"

type trigger struct {
	ctx context.Context
}

// New returns a trigger that fires once ctx is done.
func New(ctx context.Context) shutdown.Trigger {
	return &trigger{ctx: ctx}
}

func (t *trigger) GetName() string {
	return Name
}

func (t *trigger) Start(executor shutdown.Executor) error {
	go func() {
		<-t.ctx.Done()
		executor.Execute(t)
	}()

	return nil
}

func (t *trigger) After() {}
