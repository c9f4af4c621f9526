// Copyright 2023 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLeftPad(t *testing.T) {
	type args struct {
		s     string
		pad   rune
		width int
	}
	tests := []struct {
		name string
		args args
		want string
	}{
		{
			name: "pad",
			args: args{s: "5", pad: '0', width: 4},
			want: "0005",
		},
		{
			name: "exact",
			args: args{s: "1234", pad: '0', width: 4},
			want: "1234",
		},
		{
			name: "overflow",
			args: args{s: "12345", pad: '0', width: 4},
			want: "12345",
		},
		{
			name: "empty",
			args: args{s: "", pad: ' ', width: 2},
			want: "  ",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equalf(t, tt.want, LeftPad(tt.args.s, tt.args.pad, tt.args.width),
				"LeftPad(%q, %q, %d)", tt.args.s, tt.args.pad, tt.args.width)
		})
	}
}

func TestStringHash(t *testing.T) {
	assert.Equal(t, StringHash("w1"), StringHash("w1"))
	assert.NotEqual(t, StringHash("w1"), StringHash("w2"))
	assert.Equal(t, uint32(1), StringHash(""))
}
