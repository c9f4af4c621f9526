// Copyright 2025 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package relay

import (
	"context"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wangtaoking1/msgnet/dispatch"
	"github.com/wangtaoking1/msgnet/errors"
	"github.com/wangtaoking1/msgnet/message"
)

type recordingWriter struct {
	mtx     sync.Mutex
	records []kafka.Message
	err     error
	closed  bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	if w.err != nil {
		return w.err
	}
	w.records = append(w.records, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	w.closed = true
	return nil
}

func testOptions() *Options {
	opts := NewOptions()
	opts.Enabled = true
	opts.Async = false
	return opts
}

func TestRelayForwardsMessages(t *testing.T) {
	w := &recordingWriter{}
	r, err := New(testOptions(), WithWriter(w))
	require.NoError(t, err)

	d := dispatch.New()
	r.Attach(d)

	require.NoError(t, d.Post(context.Background(), message.NewTextMessage("w1", "hello")))
	require.NoError(t, d.Post(context.Background(), &message.ActionMessage{
		From: "w2", Action: "join", Data: []byte(`{"room":1}`),
	}))

	require.Len(t, w.records, 2)

	text := w.records[0]
	assert.Equal(t, "w1", string(text.Key))
	assert.Equal(t, "hello", string(text.Value))
	assert.Equal(t, "text", header(&text, HeaderKind))
	assert.Equal(t, "w1", header(&text, HeaderOrigin))
	assert.Empty(t, header(&text, HeaderAction))

	action := w.records[1]
	assert.Equal(t, `{"room":1}`, string(action.Value))
	assert.Equal(t, "action", header(&action, HeaderKind))
	assert.Equal(t, "join", header(&action, HeaderAction))

	require.NoError(t, r.Close())
	assert.True(t, w.closed)
}

func TestRelayKindFilter(t *testing.T) {
	opts := testOptions()
	opts.Kinds = []string{"action"}
	w := &recordingWriter{}
	r, err := New(opts, WithWriter(w))
	require.NoError(t, err)

	assert.False(t, r.Accepts(message.NewTextMessage("w1", "skip")))
	assert.True(t, r.Accepts(&message.ActionMessage{Action: "a"}))
	assert.False(t, r.Accepts(nil))

	d := dispatch.New()
	r.Attach(d)
	require.NoError(t, d.Post(context.Background(), message.NewTextMessage("w1", "skip")))
	assert.Empty(t, w.records)
}

func TestRelayWriteFailure(t *testing.T) {
	boom := errors.New("broker down")
	r, err := New(testOptions(), WithWriter(&recordingWriter{err: boom}))
	require.NoError(t, err)

	d := dispatch.New()
	r.Attach(d)
	err = d.Post(context.Background(), message.NewTextMessage("w1", "hello"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
}

func TestRelayInvalidOptions(t *testing.T) {
	opts := testOptions()
	opts.Kinds = []string{"binary"}
	_, err := New(opts)
	assert.ErrorContains(t, err, `unknown message kind "binary"`)
}

func TestNewBuildsKafkaWriter(t *testing.T) {
	opts := testOptions()
	opts.AuthType = AuthTypeSASL
	opts.Username = "user"
	opts.Compression = "snappy"
	r, err := New(opts)
	require.NoError(t, err)

	kw, ok := r.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, opts.Topic, kw.Topic)
	assert.Equal(t, kafka.Snappy, kw.Compression)
	assert.Equal(t, kafka.RequireOne, kw.RequiredAcks)
	tr, ok := kw.Transport.(*kafka.Transport)
	require.True(t, ok)
	assert.NotNil(t, tr.SASL)
}

func TestOptionsValidate(t *testing.T) {
	opts := NewOptions()
	assert.Empty(t, opts.Validate())

	opts.Enabled = true
	assert.Empty(t, opts.Validate())

	opts.Brokers = nil
	opts.AuthType = AuthTypeSASL
	opts.Compression = "brotli"
	opts.RequiredAcks = 2
	opts.Feed.Enabled = true
	opts.Feed.StartOffset = "middle"
	opts.Feed.CommitInterval = 0
	opts.Feed.Workers = 0
	assert.Len(t, opts.Validate(), 7)
}
