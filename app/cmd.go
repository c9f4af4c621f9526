// Copyright 2023 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package app

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/wangtaoking1/msgnet/flag"
)

// Command is a subcommand of an App. Its options come from flags only.
type Command struct {
	name        string
	short       string
	description string
	options     CmdOptions
	runFunc     RunFunc
}

// CommandOption configures a Command.
type CommandOption func(*Command)

// WithCmdOptions binds opts to the flags of the command.
func WithCmdOptions(opts CmdOptions) CommandOption {
	return func(c *Command) {
		c.options = opts
	}
}

// WithCmdDescription sets the long help text.
func WithCmdDescription(desc string) CommandOption {
	return func(c *Command) {
		c.description = desc
	}
}

// WithCmdRunFunc sets the function run by the command.
func WithCmdRunFunc(run RunFunc) CommandOption {
	return func(c *Command) {
		c.runFunc = run
	}
}

// NewCommand creates a subcommand called name.
func NewCommand(name string, short string, opts ...CommandOption) *Command {
	c := &Command{
		name:  name,
		short: short,
	}
	for _, o := range opts {
		o(c)
	}

	return c
}

// Command builds the cobra command.
func (c *Command) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:           c.name,
		Short:         c.short,
		Long:          c.description,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	cmd.Flags().SortFlags = false

	if c.runFunc != nil {
		cmd.RunE = c.runCommand
	}
	var namedFlagSets flag.NamedFlagSets
	if c.options != nil {
		namedFlagSets = c.options.Flags()
		for _, f := range namedFlagSets.FlagSets {
			cmd.Flags().AddFlagSet(f)
		}
	}
	globalFlags := namedFlagSets.FlagSet("global")
	addHelpFlag(c.name, globalFlags)
	cmd.Flags().AddFlagSet(globalFlags)

	addCmdTemplate(cmd, namedFlagSets)

	return cmd
}

func (c *Command) runCommand(cmd *cobra.Command, _ []string) error {
	if err := validate(c.options); err != nil {
		return err
	}

	return c.runFunc(cmd.Context())
}
