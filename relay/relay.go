// Copyright 2025 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package relay connects the dispatcher to kafka: a Relay forwards received
// messages to a topic and a Feed delivers records of a topic to peers.
package relay

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/wangtaoking1/go-common/container/set"

	"github.com/wangtaoking1/msgnet/dispatch"
	"github.com/wangtaoking1/msgnet/errors"
	"github.com/wangtaoking1/msgnet/log"
	"github.com/wangtaoking1/msgnet/message"
	"github.com/wangtaoking1/msgnet/metrics"
)

// Record headers.
const (
	HeaderKind   = "msgnet-kind"
	HeaderOrigin = "msgnet-origin"
	HeaderAction = "msgnet-action"
	HeaderTarget = "msgnet-target"
)

// Writer writes records to kafka. *kafka.Writer implements it.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Option configures a Relay.
type Option func(*Relay)

// WithWriter replaces the kafka writer built from the options.
func WithWriter(w Writer) Option {
	return func(r *Relay) {
		r.writer = w
	}
}

// Relay is a dispatcher subscription forwarding messages of the configured
// kinds to a kafka topic. Records are keyed by message origin, so the
// messages of one connection keep their order within a partition.
type Relay struct {
	topic   string
	kinds   set.Set[message.Kind]
	async   bool
	timeout time.Duration
	writer  Writer
}

var _ dispatch.Subscription = (*Relay)(nil)

// New creates a relay from opts.
func New(opts *Options, ropts ...Option) (*Relay, error) {
	if opts == nil {
		opts = NewOptions()
	}
	if agg := errors.NewAggregate(opts.Validate()); agg != nil {
		return nil, agg
	}

	r := &Relay{
		topic:   opts.Topic,
		kinds:   set.New[message.Kind](),
		async:   opts.Async,
		timeout: opts.WriteTimeout,
	}
	for _, k := range opts.Kinds {
		kind, err := parseKind(k)
		if err != nil {
			return nil, err
		}
		r.kinds.Add(kind)
	}
	for _, o := range ropts {
		o(r)
	}

	if r.writer == nil {
		compression, err := parseCompression(opts.Compression)
		if err != nil {
			return nil, err
		}
		r.writer = &kafka.Writer{
			Transport:    newAuthenticator(opts).transport(),
			Addr:         kafka.TCP(opts.Brokers...),
			Topic:        opts.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequiredAcks(opts.RequiredAcks),
			Async:        opts.Async,
			Compression:  compression,
			WriteTimeout: opts.WriteTimeout,
			Completion:   completion,
		}
	}

	return r, nil
}

// completion counts the results of background writes.
func completion(msgs []kafka.Message, err error) {
	if err != nil {
		metrics.RelayedMessages.WithLabelValues("failed").Add(float64(len(msgs)))
		log.Warnw("Relay write failed", "records", len(msgs), "error", err)
		return
	}
	metrics.RelayedMessages.WithLabelValues("ok").Add(float64(len(msgs)))
}

// Attach registers the relay on d.
func (r *Relay) Attach(d *dispatch.Dispatcher) {
	d.Register(r)
}

// Accepts reports whether the kind of msg is relayed.
func (r *Relay) Accepts(msg message.Message) bool {
	return msg != nil && r.kinds.Contains(msg.Kind())
}

// Send writes msg to kafka.
func (r *Relay) Send(ctx context.Context, msg message.Message) error {
	record, err := Record(msg)
	if err != nil {
		return err
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	if err := r.writer.WriteMessages(ctx, record); err != nil {
		if !r.async {
			metrics.RelayedMessages.WithLabelValues("failed").Inc()
		}
		return errors.Wrapf(err, "relay to %s", r.topic)
	}
	if !r.async {
		metrics.RelayedMessages.WithLabelValues("ok").Inc()
	}

	return nil
}

// Close flushes pending records and closes the writer.
func (r *Relay) Close() error {
	return r.writer.Close()
}

// Record turns msg into a kafka record. Text messages carry the text as the
// value; action messages carry the action in a header and the data as the
// value.
func Record(msg message.Message) (kafka.Message, error) {
	record := kafka.Message{
		Key: []byte(msg.Origin()),
		Headers: []kafka.Header{
			{Key: HeaderKind, Value: []byte(msg.Kind())},
			{Key: HeaderOrigin, Value: []byte(msg.Origin())},
		},
	}

	switch m := msg.(type) {
	case *message.TextMessage:
		record.Value = []byte(m.Text)
	case *message.ActionMessage:
		record.Value = m.Data
		record.Headers = append(record.Headers, kafka.Header{Key: HeaderAction, Value: []byte(m.Action)})
	default:
		return kafka.Message{}, errors.Errorf("can not relay message of kind %s", msg.Kind())
	}

	return record, nil
}

func header(record *kafka.Message, key string) string {
	for _, h := range record.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
