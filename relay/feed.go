// Copyright 2025 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package relay

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/wangtaoking1/msgnet/errors"
	"github.com/wangtaoking1/msgnet/log"
	"github.com/wangtaoking1/msgnet/metrics"
	"github.com/wangtaoking1/msgnet/thread"
	"github.com/wangtaoking1/msgnet/utils"
)

const (
	// fetchRetryInterval is the wait after a failed fetch.
	fetchRetryInterval = 5 * time.Second

	commitRetryLimit    = 3
	commitRetryInterval = 100 * time.Millisecond
)

// Reader fetches records and commits their offsets. *kafka.Reader
// implements it.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sink delivers payloads to connected peers. The tcp listener and the
// websocket gateway implement it.
type Sink interface {
	Send(id string, payload []byte) error
	Broadcast(payload []byte) error
}

// FeedOption configures a Feed.
type FeedOption func(*Feed)

// WithReader replaces the kafka reader built from the options.
func WithReader(r Reader) FeedOption {
	return func(f *Feed) {
		f.reader = r
	}
}

// Feed consumes a kafka topic and writes every record to the sinks. A record
// with a target header goes to that peer only, any other record is
// broadcast. Delivery runs on several lanes; records for the same target keep
// their fetch order, and offsets are committed only up to the first record
// not yet delivered.
type Feed struct {
	topic   string
	reader  Reader
	sinks   []Sink
	tracker *offsetTracker
	queue   *deliveryQueue
}

// NewFeed creates a feed delivering to sinks.
func NewFeed(opts *Options, sinks []Sink, fopts ...FeedOption) (*Feed, error) {
	if opts == nil || opts.Feed == nil {
		return nil, errors.New("feed options are required")
	}
	if agg := errors.NewAggregate(opts.Validate()); agg != nil {
		return nil, agg
	}

	f := &Feed{
		topic: opts.Feed.Topic,
		sinks: sinks,
	}
	for _, o := range fopts {
		o(f)
	}
	if f.reader == nil {
		startOffset, err := parseStartOffset(opts.Feed.StartOffset)
		if err != nil {
			return nil, err
		}
		f.reader = kafka.NewReader(kafka.ReaderConfig{
			Dialer:      newAuthenticator(opts).dialer(),
			Brokers:     opts.Brokers,
			Topic:       opts.Feed.Topic,
			GroupID:     opts.Feed.GroupID,
			MinBytes:    opts.Feed.MinBytes,
			MaxBytes:    opts.Feed.MaxBytes,
			MaxWait:     opts.Feed.MaxWait,
			StartOffset: startOffset,
		})
	}
	f.tracker = newOffsetTracker(opts.Feed.CommitInterval, f.commitOffsets)
	f.queue = newDeliveryQueue(opts.Feed.Workers, opts.Feed.QueueSize, f.deliver, f.tracker)

	return f, nil
}

// Run consumes until ctx is done, waits for the queued records, commits the
// delivered ones and closes the reader.
func (f *Feed) Run(ctx context.Context) error {
	log.Infow("Feed started", "topic", f.topic)

	commitCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.tracker.Run(commitCtx)
	}()
	f.queue.start()

	for ctx.Err() == nil {
		record, err := f.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Errorw("Fetch kafka record failed", "topic", f.topic, "error", err)
			_ = thread.Sleep(ctx, fetchRetryInterval)
			continue
		}
		if err := f.queue.add(ctx, &record); err != nil {
			break
		}
	}

	f.queue.close()
	cancel()
	<-done

	fctx, fcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer fcancel()
	if err := f.tracker.commit(fctx); err != nil {
		log.Warnw("Final offset commit failed", "topic", f.topic, "error", err)
	}
	if err := f.reader.Close(); err != nil {
		log.Warnw("Failed to close kafka reader", "error", err)
	}
	log.Infow("Feed stopped", "topic", f.topic)

	return nil
}

func (f *Feed) deliver(record *kafka.Message) {
	target := header(record, HeaderTarget)

	var (
		delivered bool
		errs      []error
	)
	for _, s := range f.sinks {
		var err error
		if target != "" {
			err = s.Send(target, record.Value)
		} else {
			err = s.Broadcast(record.Value)
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		delivered = true
	}

	// a targeted record is delivered once any sink knows the target
	if target != "" && delivered {
		metrics.FedRecords.WithLabelValues("ok").Inc()
		return
	}
	if agg := errors.NewAggregate(errs); agg != nil {
		metrics.FedRecords.WithLabelValues("failed").Inc()
		log.Warnw("Feed record not delivered", "topic", f.topic, "offset", record.Offset,
			"target", target, "error", agg)
		return
	}
	metrics.FedRecords.WithLabelValues("ok").Inc()
}

func (f *Feed) commitOffsets(ctx context.Context, records []kafka.Message) error {
	err := utils.Retry(ctx, commitRetryLimit, commitRetryInterval, func() error {
		return f.reader.CommitMessages(ctx, records...)
	})
	if err != nil {
		log.Errorw("Commit kafka offsets failed", "topic", f.topic, "error", err)
		return err
	}
	return nil
}
