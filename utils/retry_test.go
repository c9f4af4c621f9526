// Copyright 2023 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package utils

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestRetry(t *testing.T) {
	result := 0
	err := Retry(context.Background(), 3, 1*time.Millisecond, func() error {
		result++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, result)
}

func TestRetry_Error(t *testing.T) {
	result := 0
	err := Retry(context.Background(), 3, 1*time.Millisecond, func() error {
		result++
		return fmt.Errorf("err")
	})
	assert.Error(t, err)
	assert.Equal(t, 3, result)
}

func TestRetry_NotRetryErr(t *testing.T) {
	result := 0
	err := Retry(context.Background(), 3, 1*time.Millisecond, func() error {
		result++
		return errors.Wrap(NotRetryErr, "err")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, result)
}

func TestRetry_ContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	result := 0
	err := Retry(ctx, 10, time.Hour, func() error {
		result++
		cancel()
		return fmt.Errorf("err")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, result)
}
