// Copyright 2023 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package version

import (
	"encoding/json"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	info := Get()
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, GitVersion, info.String())

	var decoded Info
	require.NoError(t, json.Unmarshal([]byte(info.ToJSON()), &decoded))
	assert.Equal(t, info, decoded)
	assert.Contains(t, info.Text(), "platform:")
}
