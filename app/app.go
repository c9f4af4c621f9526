// Copyright 2023 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package app builds the command lines of the msgnet binaries.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wangtaoking1/msgnet/flag"
	"github.com/wangtaoking1/msgnet/log"
	"github.com/wangtaoking1/msgnet/version"
	"github.com/wangtaoking1/msgnet/version/verflag"
)

// RunFunc runs a binary or one of its commands. ctx is the context passed to
// Execute.
type RunFunc func(ctx context.Context) error

// App is the root command of a binary. Its options are bound to sectioned
// flags, optionally overlaid by a config file and env vars, and validated
// before the run function is called.
type App struct {
	name        string
	short       string
	description string
	options     CmdOptions
	runFunc     RunFunc
	noConfig    bool
	commands    []*Command
	args        cobra.PositionalArgs
	cmd         *cobra.Command
}

// Option configures an App.
type Option func(*App)

// WithOptions binds opts to the flags of the app.
func WithOptions(opts CmdOptions) Option {
	return func(a *App) {
		a.options = opts
	}
}

// WithRunFunc sets the function run by the root command.
func WithRunFunc(run RunFunc) Option {
	return func(a *App) {
		a.runFunc = run
	}
}

// WithDescription sets the long help text.
func WithDescription(desc string) Option {
	return func(a *App) {
		a.description = desc
	}
}

// WithNoConfig drops the --config flag and env var lookup. Options then come
// from flags only.
func WithNoConfig() Option {
	return func(a *App) {
		a.noConfig = true
	}
}

// WithDefaultValidArgs rejects non-empty positional arguments.
func WithDefaultValidArgs() Option {
	return func(a *App) {
		a.args = func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				if len(arg) > 0 {
					return fmt.Errorf("%q does not take any arguments, got %q", cmd.CommandPath(), args)
				}
			}

			return nil
		}
	}
}

// WithCommands adds subcommands.
func WithCommands(cmds ...*Command) Option {
	return func(a *App) {
		a.commands = append(a.commands, cmds...)
	}
}

// NewApp creates the root command of the binary called name.
func NewApp(name string, short string, opts ...Option) *App {
	a := &App{
		name:  name,
		short: short,
	}
	for _, o := range opts {
		o(a)
	}
	a.buildCommand()

	return a
}

func (a *App) buildCommand() {
	cmd := &cobra.Command{
		Use:           a.name,
		Short:         a.short,
		Long:          a.description,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          a.args,
	}
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	cmd.Flags().SortFlags = true
	flag.InitFlags(cmd.Flags())

	for _, c := range a.commands {
		cmd.AddCommand(c.Command())
	}
	if a.runFunc != nil {
		cmd.RunE = a.runCommand
	}

	var namedFlagSets flag.NamedFlagSets
	if a.options != nil {
		namedFlagSets = a.options.Flags()
		for _, f := range namedFlagSets.FlagSets {
			cmd.Flags().AddFlagSet(f)
		}
	}

	globalFlags := namedFlagSets.FlagSet("global")
	verflag.AddFlags(globalFlags)
	if !a.noConfig {
		addConfigFlag(a.name, globalFlags)
	}
	addHelpFlag(a.name, globalFlags)
	cmd.Flags().AddFlagSet(globalFlags)

	addCmdTemplate(cmd, namedFlagSets)
	a.cmd = cmd
}

// Command returns the root cobra command.
func (a *App) Command() *cobra.Command {
	return a.cmd
}

// Execute runs the command line args with ctx.
func (a *App) Execute(ctx context.Context, args []string) error {
	a.cmd.SetArgs(args)
	return a.cmd.ExecuteContext(ctx)
}

// Run executes os.Args and exits with status 1 on error.
func (a *App) Run() {
	if err := a.Execute(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%v %v\n", color.RedString("Error:"), err)
		os.Exit(1)
	}
}

func (a *App) runCommand(cmd *cobra.Command, _ []string) error {
	verflag.PrintAndExitIfRequested()
	if !a.noConfig && a.options != nil {
		if err := viper.BindPFlags(cmd.Flags()); err != nil {
			return err
		}
		if err := viper.Unmarshal(a.options); err != nil {
			return err
		}
	}
	if err := validate(a.options); err != nil {
		return err
	}

	printWorkingDir()
	flag.PrintFlags(cmd.Flags())
	log.Infof("%v Starting %s ...", progressMessage, a.short)
	log.Infof("%v Version: `%s`", progressMessage, version.Get().ToJSON())
	if !a.noConfig {
		log.Infof("%v Config file used: `%s`", progressMessage, viper.ConfigFileUsed())
	}
	if p, ok := a.options.(PrintableOptions); ok {
		log.Infof("%v Config: `%s`", progressMessage, p.String())
	}

	return a.runFunc(cmd.Context())
}
