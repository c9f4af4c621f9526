// Copyright 2025 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package message

import (
	"bytes"

	"github.com/buger/jsonparser"

	"github.com/wangtaoking1/msgnet/errors"
)

// Decoder names accepted by LookupDecoder.
const (
	DecoderText   = "text"
	DecoderAction = "action"
)

// ErrUnknownDecoder is returned by LookupDecoder for unregistered names.
var ErrUnknownDecoder = errors.New("unknown decoder")

// Decoder wraps a received frame payload into a concrete Message.
type Decoder func(from string, payload []byte) (Message, error)

// LookupDecoder returns the decoder registered under name. An empty name
// selects DecodeText.
func LookupDecoder(name string) (Decoder, error) {
	switch name {
	case "", DecoderText:
		return DecodeText, nil
	case DecoderAction:
		return DecodeAction, nil
	default:
		return nil, errors.WithMessagef(ErrUnknownDecoder, "decoder %q must be %s or %s", name, DecoderText, DecoderAction)
	}
}

// DecodeText wraps every payload as a TextMessage.
func DecodeText(from string, payload []byte) (Message, error) {
	return NewTextMessage(from, string(payload)), nil
}

// DecodeAction wraps JSON object payloads that carry a string "action" field
// as an ActionMessage. Anything else falls back to a TextMessage.
func DecodeAction(from string, payload []byte) (Message, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return DecodeText(from, payload)
	}

	action, err := jsonparser.GetString(trimmed, "action")
	if err != nil || action == "" {
		return DecodeText(from, payload)
	}

	msg := &ActionMessage{From: from, Action: action}
	data, dataType, _, err := jsonparser.Get(trimmed, "data")
	if err == nil {
		if dataType == jsonparser.String {
			// keep the unquoted string bytes
			if s, perr := jsonparser.ParseString(data); perr == nil {
				data = []byte(s)
			}
		}
		msg.Data = append([]byte(nil), data...)
	}

	return msg, nil
}
