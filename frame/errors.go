// Copyright 2025 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package frame

import (
	"github.com/wangtaoking1/msgnet/errors"
)

var (
	// ErrProtocol classifies malformed frames.
	ErrProtocol = errors.New("frame protocol error")
	// ErrTransport classifies failures of the underlying connection.
	ErrTransport = errors.New("frame transport error")

	// ErrShortHeader is returned when the stream ends inside a header.
	ErrShortHeader = &kindError{kind: ErrProtocol, msg: "short frame header"}
	// ErrInvalidLength is returned for headers that are not a positive decimal.
	ErrInvalidLength = &kindError{kind: ErrProtocol, msg: "invalid frame length"}
	// ErrFrameTooLarge is returned when a payload exceeds the codec limit.
	ErrFrameTooLarge = &kindError{kind: ErrProtocol, msg: "frame too large"}
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Is(target error) bool { return target == e.kind }

// transportError marks err as a transport failure while keeping it unwrappable.
type transportError struct {
	err error
}

func (e *transportError) Error() string { return "transport: " + e.err.Error() }

func (e *transportError) Unwrap() error { return e.err }

func (e *transportError) Is(target error) bool { return target == ErrTransport }

func transport(err error) error {
	if err == nil {
		return nil
	}
	return &transportError{err: err}
}

// IsProtocol reports whether err is caused by a malformed frame.
func IsProtocol(err error) bool {
	return errors.Is(err, ErrProtocol)
}

// IsTransport reports whether err is caused by the underlying connection.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}
