// Copyright 2025 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package message defines the values carried through a dispatcher.
package message

// Kind discriminates message variants.
type Kind string

const (
	// KindText is the kind of TextMessage.
	KindText Kind = "text"
	// KindAction is the kind of ActionMessage.
	KindAction Kind = "action"
)

// Message is a value posted to a dispatcher. Every concrete variant must
// report a distinct Kind.
type Message interface {
	Kind() Kind
	// Origin returns the id of the connection the message was read from,
	// or an empty string for locally created messages.
	Origin() string
}

// TextMessage carries a text payload.
type TextMessage struct {
	From string
	Text string
}

var _ Message = (*TextMessage)(nil)

// NewTextMessage creates a text message read from the connection from.
func NewTextMessage(from, text string) *TextMessage {
	return &TextMessage{From: from, Text: text}
}

func (m *TextMessage) Kind() Kind { return KindText }

func (m *TextMessage) Origin() string { return m.From }

// ActionMessage carries a named action and its raw data, decoded from a
// JSON payload like {"action": "...", "data": ...}.
type ActionMessage struct {
	From   string
	Action string
	Data   []byte
}

var _ Message = (*ActionMessage)(nil)

func (m *ActionMessage) Kind() Kind { return KindAction }

func (m *ActionMessage) Origin() string { return m.From }
