// Copyright 2025 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package relay

import (
	"context"
	"sync"

	"github.com/segmentio/kafka-go"

	"github.com/wangtaoking1/msgnet/log"
	"github.com/wangtaoking1/msgnet/utils"
)

type queueItem struct {
	seqID  int64
	record *kafka.Message
}

// deliveryQueue spreads records over lanes by their target header. Records
// for the same target share a lane and are delivered in fetch order. Records
// without a target all use the first lane.
type deliveryQueue struct {
	lanes   []chan *queueItem
	deliver func(record *kafka.Message)
	tracker *offsetTracker
	wg      sync.WaitGroup
}

func newDeliveryQueue(workers, size int, deliver func(*kafka.Message), tracker *offsetTracker) *deliveryQueue {
	lanes := make([]chan *queueItem, workers)
	for i := range lanes {
		lanes[i] = make(chan *queueItem, size)
	}
	return &deliveryQueue{
		lanes:   lanes,
		deliver: deliver,
		tracker: tracker,
	}
}

func (q *deliveryQueue) start() {
	for _, lane := range q.lanes {
		q.wg.Add(1)
		go func(ch chan *queueItem) {
			defer q.wg.Done()
			for it := range ch {
				q.handle(it)
			}
		}(lane)
	}
}

func (q *deliveryQueue) handle(it *queueItem) {
	defer q.tracker.finish(it.seqID)
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("Panic while delivering record", "offset", it.record.Offset, "error", r)
		}
	}()

	q.deliver(it.record)
}

// add blocks while the lane of record is full. A record still waiting when
// ctx is done is never finished, so its offset is not committed.
func (q *deliveryQueue) add(ctx context.Context, record *kafka.Message) error {
	lane := q.lanes[q.laneOf(header(record, HeaderTarget))]
	it := &queueItem{seqID: q.tracker.add(record), record: record}

	select {
	case lane <- it:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *deliveryQueue) laneOf(target string) int {
	if target == "" {
		return 0
	}
	return int(utils.StringHash(target) % uint32(len(q.lanes)))
}

// close waits until every queued record is delivered. add must not be called
// afterwards.
func (q *deliveryQueue) close() {
	for _, lane := range q.lanes {
		close(lane)
	}
	q.wg.Wait()
}
