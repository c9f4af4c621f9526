// Copyright 2025 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package relay

import (
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/spf13/pflag"

	"github.com/wangtaoking1/msgnet/message"
)

// Start offsets of a feed without a committed offset.
const (
	StartFirst = "first"
	StartLast  = "last"
)

// Options contains configuration options for the kafka relay and feed.
type Options struct {
	Enabled      bool          `json:"enabled"       mapstructure:"enabled"`
	Brokers      []string      `json:"brokers"       mapstructure:"brokers"`
	Topic        string        `json:"topic"         mapstructure:"topic"`
	Kinds        []string      `json:"kinds"         mapstructure:"kinds"`
	AuthType     AuthType      `json:"auth-type"     mapstructure:"auth-type"`
	Username     string        `json:"username"      mapstructure:"username"`
	Password     string        `json:"-"             mapstructure:"password"`
	Async        bool          `json:"async"         mapstructure:"async"`
	Compression  string        `json:"compression"   mapstructure:"compression"`
	RequiredAcks int           `json:"required-acks" mapstructure:"required-acks"`
	WriteTimeout time.Duration `json:"write-timeout" mapstructure:"write-timeout"`

	Feed *FeedOptions `json:"feed" mapstructure:"feed"`
}

// FeedOptions configures the consumer that delivers records to connected
// peers.
type FeedOptions struct {
	Enabled        bool          `json:"enabled"         mapstructure:"enabled"`
	Topic          string        `json:"topic"           mapstructure:"topic"`
	GroupID        string        `json:"group-id"        mapstructure:"group-id"`
	StartOffset    string        `json:"start-offset"    mapstructure:"start-offset"`
	CommitInterval time.Duration `json:"commit-interval" mapstructure:"commit-interval"`
	Workers        int           `json:"workers"         mapstructure:"workers"`
	QueueSize      int           `json:"queue-size"      mapstructure:"queue-size"`
	MinBytes       int           `json:"min-bytes"       mapstructure:"min-bytes"`
	MaxBytes       int           `json:"max-bytes"       mapstructure:"max-bytes"`
	MaxWait        time.Duration `json:"max-wait"        mapstructure:"max-wait"`
}

// NewOptions return a new options for the relay.
func NewOptions() *Options {
	return &Options{
		Enabled:      false,
		Brokers:      []string{"127.0.0.1:9092"},
		Topic:        "msgnet.messages",
		Kinds:        []string{string(message.KindText), string(message.KindAction)},
		AuthType:     AuthTypeRaw,
		Async:        true,
		Compression:  "gzip",
		RequiredAcks: int(kafka.RequireOne),
		WriteTimeout: 10 * time.Second,
		Feed: &FeedOptions{
			Enabled:        false,
			Topic:          "msgnet.outbound",
			GroupID:        "msgnet",
			StartOffset:    StartLast,
			CommitInterval: 2 * time.Second,
			Workers:        4,
			QueueSize:      100,
			MinBytes:       1,
			MaxBytes:       1 << 20,
			MaxWait:        10 * time.Second,
		},
	}
}

func (o *Options) feedEnabled() bool {
	return o.Feed != nil && o.Feed.Enabled
}

func (o *Options) Validate() []error {
	if !o.Enabled && !o.feedEnabled() {
		return nil
	}

	var errs []error
	if len(o.Brokers) == 0 {
		errs = append(errs, fmt.Errorf("--relay.brokers must not be empty"))
	}
	switch o.AuthType {
	case AuthTypeRaw:
	case AuthTypeSASL:
		if o.Username == "" {
			errs = append(errs, fmt.Errorf("--relay.username is required for sasl auth"))
		}
	default:
		errs = append(errs, fmt.Errorf("--relay.auth-type %q must be raw or sasl", o.AuthType))
	}

	if o.Enabled {
		if o.Topic == "" {
			errs = append(errs, fmt.Errorf("--relay.topic must not be empty"))
		}
		if len(o.Kinds) == 0 {
			errs = append(errs, fmt.Errorf("--relay.kinds must not be empty"))
		}
		for _, k := range o.Kinds {
			if _, err := parseKind(k); err != nil {
				errs = append(errs, err)
			}
		}
		if _, err := parseCompression(o.Compression); err != nil {
			errs = append(errs, err)
		}
		switch kafka.RequiredAcks(o.RequiredAcks) {
		case kafka.RequireAll, kafka.RequireNone, kafka.RequireOne:
		default:
			errs = append(errs, fmt.Errorf("--relay.required-acks %d must be -1, 0 or 1", o.RequiredAcks))
		}
	}

	if o.feedEnabled() {
		if o.Feed.Topic == "" || o.Feed.GroupID == "" {
			errs = append(errs, fmt.Errorf("--relay.feed.topic and --relay.feed.group-id must not be empty"))
		}
		if _, err := parseStartOffset(o.Feed.StartOffset); err != nil {
			errs = append(errs, err)
		}
		if o.Feed.CommitInterval <= 0 {
			errs = append(errs, fmt.Errorf("--relay.feed.commit-interval must be positive"))
		}
		if o.Feed.Workers <= 0 || o.Feed.QueueSize <= 0 {
			errs = append(errs, fmt.Errorf("--relay.feed.workers and --relay.feed.queue-size must be positive"))
		}
	}

	return errs
}

func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.Enabled, "relay.enabled", o.Enabled, "Forward received messages to kafka.")
	fs.StringSliceVar(&o.Brokers, "relay.brokers", o.Brokers, "Kafka broker addresses, comma separated.")
	fs.StringVar(&o.Topic, "relay.topic", o.Topic, "Kafka topic received messages are written to.")
	fs.StringSliceVar(&o.Kinds, "relay.kinds", o.Kinds, "Message kinds forwarded to kafka, text and/or action.")
	fs.StringVar((*string)(&o.AuthType), "relay.auth-type", string(o.AuthType), "Kafka authentication, raw or sasl.")
	fs.StringVar(&o.Username, "relay.username", o.Username, "SASL plain username.")
	fs.StringVar(&o.Password, "relay.password", o.Password, "SASL plain password.")
	fs.BoolVar(&o.Async, "relay.async", o.Async, ""+
		"Write to kafka in the background. Connection reads never wait on the broker.")
	fs.StringVar(&o.Compression, "relay.compression", o.Compression, "Compression codec: none, gzip, snappy, lz4 or zstd.")
	fs.IntVar(&o.RequiredAcks, "relay.required-acks", o.RequiredAcks, "Required acks: -1 all, 0 none, 1 leader.")
	fs.DurationVar(&o.WriteTimeout, "relay.write-timeout", o.WriteTimeout, "Timeout of a synchronous kafka write.")

	if o.Feed != nil {
		fs.BoolVar(&o.Feed.Enabled, "relay.feed.enabled", o.Feed.Enabled,
			"Consume a kafka topic and deliver its records to connected peers.")
		fs.StringVar(&o.Feed.Topic, "relay.feed.topic", o.Feed.Topic, "Kafka topic delivered to peers.")
		fs.StringVar(&o.Feed.GroupID, "relay.feed.group-id", o.Feed.GroupID, "Kafka consumer group of the feed.")
		fs.StringVar(&o.Feed.StartOffset, "relay.feed.start-offset", o.Feed.StartOffset, ""+
			"Where a group without committed offsets starts, first or last.")
		fs.DurationVar(&o.Feed.CommitInterval, "relay.feed.commit-interval", o.Feed.CommitInterval,
			"Interval between offset commits.")
		fs.IntVar(&o.Feed.Workers, "relay.feed.workers", o.Feed.Workers, ""+
			"Number of concurrent delivery lanes. Records for the same peer share a lane and keep their order.")
		fs.IntVar(&o.Feed.QueueSize, "relay.feed.queue-size", o.Feed.QueueSize, "Records buffered per delivery lane.")
		fs.IntVar(&o.Feed.MinBytes, "relay.feed.min-bytes", o.Feed.MinBytes, "Minimum bytes fetched in one batch.")
		fs.IntVar(&o.Feed.MaxBytes, "relay.feed.max-bytes", o.Feed.MaxBytes, "Maximum bytes fetched in one batch.")
		fs.DurationVar(&o.Feed.MaxWait, "relay.feed.max-wait", o.Feed.MaxWait, "Maximum wait of one fetch.")
	}
}

func parseKind(s string) (message.Kind, error) {
	switch k := message.Kind(s); k {
	case message.KindText, message.KindAction:
		return k, nil
	default:
		return "", fmt.Errorf("unknown message kind %q", s)
	}
}

func parseCompression(s string) (kafka.Compression, error) {
	switch s {
	case "", "none":
		return 0, nil
	case "gzip":
		return kafka.Gzip, nil
	case "snappy":
		return kafka.Snappy, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", s)
	}
}

func parseStartOffset(s string) (int64, error) {
	switch s {
	case "", StartLast:
		return kafka.LastOffset, nil
	case StartFirst:
		return kafka.FirstOffset, nil
	default:
		return 0, fmt.Errorf("--relay.feed.start-offset %q must be first or last", s)
	}
}
