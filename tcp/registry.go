// Copyright 2025 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package tcp

import (
	"sync"

	"golang.org/x/exp/slices"
)

// Registry tracks the workers of a listener.
type Registry struct {
	mtx     sync.RWMutex
	workers []*Worker
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add appends w.
func (r *Registry) Add(w *Worker) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.workers = append(r.workers, w)
}

// Reap removes every finished worker and returns how many were removed. The
// relative order of the remaining workers is kept.
func (r *Registry) Reap() int {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	before := len(r.workers)
	kept := slices.DeleteFunc(r.workers, func(w *Worker) bool {
		return w.Finished()
	})
	clear(r.workers[len(kept):before])
	r.workers = kept

	return before - len(kept)
}

// Len returns the number of tracked workers.
func (r *Registry) Len() int {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	return len(r.workers)
}

// Snapshot returns a copy of the tracked workers.
func (r *Registry) Snapshot() []*Worker {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	return slices.Clone(r.workers)
}

// Get returns the worker with id.
func (r *Registry) Get(id string) (*Worker, bool) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	i := slices.IndexFunc(r.workers, func(w *Worker) bool {
		return w.ID() == id
	})
	if i < 0 {
		return nil, false
	}
	return r.workers[i], true
}
