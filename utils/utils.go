// Copyright 2023 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package utils

import (
	"hash/adler32"
	"strings"
)

// StringHash hashes a string key to uint32.
func StringHash(key string) uint32 {
	return adler32.Checksum([]byte(key))
}

// LeftPad pads s on the left with pad until it is width runes long.
// Strings already at or over width are returned unchanged.
func LeftPad(s string, pad rune, width int) string {
	n := width - len([]rune(s))
	if n <= 0 {
		return s
	}
	return strings.Repeat(string(pad), n) + s
}
