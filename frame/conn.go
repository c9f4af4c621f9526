// Copyright 2025 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package frame

import (
	"io"
	"sync"
)

// Conn reads and writes frames over a stream. Reads must come from a single
// goroutine; writes may be concurrent.
type Conn struct {
	codec *Codec
	rw    io.ReadWriter

	wmtx sync.Mutex
}

// NewConn wraps rw with codec. A nil codec means DefaultCodec.
func NewConn(rw io.ReadWriter, codec *Codec) *Conn {
	if codec == nil {
		codec = DefaultCodec()
	}
	return &Conn{codec: codec, rw: rw}
}

// Read blocks until one complete frame is read.
func (c *Conn) Read() ([]byte, error) {
	return c.codec.ReadFrame(c.rw)
}

// Write sends payload as one frame.
func (c *Conn) Write(payload []byte) error {
	c.wmtx.Lock()
	defer c.wmtx.Unlock()
	return c.codec.WriteFrame(c.rw, payload)
}

// WriteString sends s as one frame.
func (c *Conn) WriteString(s string) error {
	return c.Write([]byte(s))
}

// Codec returns the codec in use.
func (c *Conn) Codec() *Codec {
	return c.codec
}
