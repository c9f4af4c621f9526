// Copyright 2025 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package log

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
)

func TestDebugLogger(t *testing.T) {
	err := InitLogger(true)
	assert.NoError(t, err)

	Debug("Debug")
	Debugf("Debug for %s", "test")

	Errorw("Error", "err", errors.New("test"))
	Errorf("Error: %v", errors.New("test"))
}

func TestProdLogger(t *testing.T) {
	err := InitLogger(false)
	assert.NoError(t, err)

	Debug("Debug")
	Infow("Info", "data", "test")
	Infof("Info: %v", "test")
	Warnw("Warn", "data", "test")
}

func TestWithValues(t *testing.T) {
	_ = InitLogger(false)

	ctx := WithContext(context.Background())
	From(ctx).Info("this is a info message for ctx")
	ctx0 := WithContext(ctx, "k0", "v0")
	From(ctx0).Info("this is a info message for ctx0")
	ctx1 := WithContext(ctx0, "k1", "v1")
	From(ctx1).Infow("this is a info message for ctx1", "k2", "v2")
	With("worker_id", "w1").Info("with fields")
}

func TestOptions_Validate(t *testing.T) {
	opts := NewOptions()
	assert.Empty(t, opts.Validate())

	opts.Level = "loud"
	opts.Format = "xml"
	assert.Len(t, opts.Validate(), 2)
}

func TestOptions_AddFlags(t *testing.T) {
	opts := NewOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	opts.AddFlags(fs)

	assert.NoError(t, fs.Parse([]string{"--log.level=debug", "--log.format=json"}))
	assert.Equal(t, "debug", opts.Level)
	assert.Equal(t, "json", opts.Format)
}
