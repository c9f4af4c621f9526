// Copyright 2025 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeText(t *testing.T) {
	msg, err := DecodeText("w1", []byte("hello"))
	require.NoError(t, err)

	text, ok := msg.(*TextMessage)
	require.True(t, ok)
	assert.Equal(t, "hello", text.Text)
	assert.Equal(t, "w1", text.Origin())
	assert.Equal(t, KindText, text.Kind())
}

func TestDecodeAction(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		wantKind   Kind
		wantAction string
		wantData   string
	}{
		{
			name:       "object data",
			payload:    `{"action":"echo","data":{"n":1}}`,
			wantKind:   KindAction,
			wantAction: "echo",
			wantData:   `{"n":1}`,
		},
		{
			name:       "string data",
			payload:    `{"action":"say","data":"hi"}`,
			wantKind:   KindAction,
			wantAction: "say",
			wantData:   "hi",
		},
		{
			name:       "no data",
			payload:    ` {"action":"ping"}`,
			wantKind:   KindAction,
			wantAction: "ping",
		},
		{
			name:     "plain text",
			payload:  "hello",
			wantKind: KindText,
		},
		{
			name:     "object without action",
			payload:  `{"data":1}`,
			wantKind: KindText,
		},
		{
			name:     "malformed json",
			payload:  `{"action":`,
			wantKind: KindText,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeAction("w1", []byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, msg.Kind())
			assert.Equal(t, "w1", msg.Origin())

			switch m := msg.(type) {
			case *ActionMessage:
				assert.Equal(t, tt.wantAction, m.Action)
				assert.Equal(t, tt.wantData, string(m.Data))
			case *TextMessage:
				assert.Equal(t, tt.payload, m.Text)
			}
		})
	}
}

func TestLookupDecoder(t *testing.T) {
	for _, name := range []string{"", DecoderText, DecoderAction} {
		d, err := LookupDecoder(name)
		require.NoError(t, err, name)
		assert.NotNil(t, d)
	}

	d, err := LookupDecoder(DecoderAction)
	require.NoError(t, err)
	msg, err := d("w1", []byte(`{"action":"join"}`))
	require.NoError(t, err)
	assert.Equal(t, KindAction, msg.Kind())

	_, err = LookupDecoder("xml")
	assert.ErrorIs(t, err, ErrUnknownDecoder)
	assert.ErrorContains(t, err, `decoder "xml" must be text or action`)
}
