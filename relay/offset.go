// Copyright 2025 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package relay

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/wangtaoking1/go-common/container/set"
)

type offsetCommitter func(ctx context.Context, records []kafka.Message) error

// offsetTracker commits the longest prefix of finished records on every
// tick. Records are numbered in fetch order.
type offsetTracker struct {
	mtx         sync.Mutex
	globalID    int64
	nextID      int64
	committedID int64

	commitInterval time.Duration
	commitFunc     offsetCommitter

	records  map[int64]*kafka.Message
	finished set.Set[int64]
}

func newOffsetTracker(commitInterval time.Duration, commitFunc offsetCommitter) *offsetTracker {
	return &offsetTracker{
		committedID:    -1,
		commitInterval: commitInterval,
		commitFunc:     commitFunc,
		records:        make(map[int64]*kafka.Message),
		finished:       set.New[int64](),
	}
}

// Run commits on every tick until ctx is done.
func (m *offsetTracker) Run(ctx context.Context) {
	t := time.NewTimer(m.commitInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_ = m.commit(ctx)
			t.Reset(m.commitInterval)
		}
	}
}

// commit commits the finished prefix. Nothing is dropped on failure; the
// next commit retries the same records.
func (m *offsetTracker) commit(ctx context.Context) error {
	committedID, records := m.pending()
	if len(records) == 0 {
		return nil
	}

	if err := m.commitFunc(ctx, records); err != nil {
		return err
	}

	m.refresh(committedID)
	return nil
}

func (m *offsetTracker) pending() (int64, []kafka.Message) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	for m.nextID < m.globalID {
		if !m.finished.Contains(m.nextID) {
			break
		}
		m.finished.Remove(m.nextID)
		m.nextID++
	}
	var records []kafka.Message
	for seqID := m.committedID + 1; seqID < m.nextID; seqID++ {
		records = append(records, *m.records[seqID])
	}
	return m.nextID - 1, records
}

func (m *offsetTracker) refresh(committedID int64) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	for seqID := m.committedID + 1; seqID <= committedID; seqID++ {
		delete(m.records, seqID)
	}
	m.committedID = committedID
}

func (m *offsetTracker) add(record *kafka.Message) int64 {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	seqID := m.globalID
	m.globalID++
	m.records[seqID] = record
	return seqID
}

func (m *offsetTracker) finish(seqIDs ...int64) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	for _, seqID := range seqIDs {
		if m.records[seqID] == nil {
			continue
		}
		m.finished.Add(seqID)
	}
}

func (m *offsetTracker) uncommitted() int {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	return len(m.records)
}
