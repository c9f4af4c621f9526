// Copyright 2023 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package app

import (
	"github.com/wangtaoking1/msgnet/errors"
	"github.com/wangtaoking1/msgnet/flag"
)

// CmdOptions are options bound to the flags of a command.
type CmdOptions interface {
	// Flags returns the flags of the command by section.
	Flags() (fss flag.NamedFlagSets)
	// Validate validates the options fields.
	Validate() []error
}

// PrintableOptions are logged once validated. String must leave out secrets.
type PrintableOptions interface {
	String() string
}

func validate(opts CmdOptions) error {
	if opts == nil {
		return nil
	}
	return errors.NewAggregate(opts.Validate())
}
