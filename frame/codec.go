// Copyright 2025 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package frame implements length-prefixed framing over a byte stream.
//
// A frame is a fixed-width, zero-padded ASCII decimal header holding the
// payload length, followed by exactly that many payload bytes.
package frame

import (
	"bytes"
	"io"
	"strconv"

	"github.com/wangtaoking1/msgnet/errors"
	"github.com/wangtaoking1/msgnet/utils"
)

const (
	// DefaultHeaderWidth is the header width used by peers of the protocol.
	DefaultHeaderWidth = 4
	// MaxHeaderWidth keeps the decimal capacity within an int64.
	MaxHeaderWidth = 18
	// DefaultMaxPayload bounds the payload a peer may declare.
	DefaultMaxPayload = 16 << 20

	// payloads above this size are buffered as they arrive
	preallocLimit = 64 << 10
)

// Codec encodes and decodes frames with a fixed header width.
type Codec struct {
	width int
	limit int
}

// CodecOption configures a Codec.
type CodecOption func(*codecConfig)

type codecConfig struct {
	maxPayload int
}

// WithMaxPayload bounds the payload size in both directions. The bound never
// exceeds the capacity of the header width.
func WithMaxPayload(n int) CodecOption {
	return func(c *codecConfig) {
		c.maxPayload = n
	}
}

// NewCodec creates a codec for the given header width.
func NewCodec(width int, opts ...CodecOption) (*Codec, error) {
	if width < 1 || width > MaxHeaderWidth {
		return nil, errors.Errorf("header width must be in [1, %d], got %d", MaxHeaderWidth, width)
	}
	cfg := codecConfig{maxPayload: DefaultMaxPayload}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maxPayload <= 0 {
		return nil, errors.Errorf("max payload must be positive, got %d", cfg.maxPayload)
	}

	limit := 1
	for i := 0; i < width; i++ {
		limit *= 10
	}
	limit--
	if cfg.maxPayload < limit {
		limit = cfg.maxPayload
	}
	return &Codec{width: width, limit: limit}, nil
}

// DefaultCodec returns a codec with DefaultHeaderWidth.
func DefaultCodec() *Codec {
	c, _ := NewCodec(DefaultHeaderWidth)
	return c
}

// Width returns the header width.
func (c *Codec) Width() int {
	return c.width
}

// MaxPayload returns the largest payload a header can describe.
func (c *Codec) MaxPayload() int {
	return c.limit
}

// Encode returns header and payload as one buffer.
func (c *Codec) Encode(payload []byte) ([]byte, error) {
	if len(payload) > c.limit {
		return nil, errors.WithMessagef(ErrFrameTooLarge, "%d bytes exceeds %d", len(payload), c.limit)
	}
	header := utils.LeftPad(strconv.Itoa(len(payload)), '0', c.width)
	buf := make([]byte, 0, c.width+len(payload))
	buf = append(buf, header...)
	return append(buf, payload...), nil
}

// WriteFrame writes one frame to w. An empty payload writes nothing.
func (c *Codec) WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	buf, err := c.Encode(payload)
	if err != nil {
		return err
	}
	if _, err := w.Write(buf); err != nil {
		return transport(err)
	}
	return nil
}

// ReadFrame reads one frame from r and returns its payload.
func (c *Codec) ReadFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, c.width)
	n, err := io.ReadFull(r, header)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) && n > 0 {
			return nil, errors.WithMessagef(ErrShortHeader, "got %d of %d bytes", n, c.width)
		}
		return nil, transport(err)
	}

	size, err := c.parseHeader(header)
	if err != nil {
		return nil, err
	}

	if size <= preallocLimit {
		payload := make([]byte, size)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, transport(err)
		}
		return payload, nil
	}

	var buf bytes.Buffer
	if _, err := io.CopyN(&buf, r, int64(size)); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, transport(err)
	}
	return buf.Bytes(), nil
}

func (c *Codec) parseHeader(header []byte) (int, error) {
	size := 0
	for _, b := range header {
		if b < '0' || b > '9' {
			return 0, errors.WithMessagef(ErrInvalidLength, "header %q", header)
		}
		size = size*10 + int(b-'0')
	}
	if size <= 0 {
		return 0, errors.WithMessagef(ErrInvalidLength, "header %q", header)
	}
	if size > c.limit {
		return 0, errors.WithMessagef(ErrFrameTooLarge, "declared %d bytes exceeds %d", size, c.limit)
	}
	return size, nil
}
