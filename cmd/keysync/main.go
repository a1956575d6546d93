// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

// main.go sets up the keysync command-line interface using cobra. It defines
// the root command with its global flags, loads the configuration before any
// subcommand runs and maps errors to process exit codes.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/toeirei/keysync/buildvars"
	"github.com/toeirei/keysync/internal/config"
	"github.com/toeirei/keysync/internal/i18n"
	"github.com/toeirei/keysync/internal/lock"
	"github.com/toeirei/keysync/internal/logging"
)

// Exit codes.
const (
	exitOK         = 0
	exitUsage      = 1
	exitMissingArg = 2
	exitRunFailed  = 3
	exitPartial    = 4
)

// exitError carries the exit code for err.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func usageError(err error) error { return &exitError{code: exitUsage, err: err} }

// app holds state shared by the commands of one invocation.
type app struct {
	configFile string
	debug      bool
	cfg        config.Config
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the CLI with args and returns the exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return exitCode(err)
}

func exitCode(err error) int {
	var ee *exitError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &ee):
		return ee.code
	case errors.Is(err, lock.ErrLocked):
		return exitRunFailed
	default:
		// Unknown commands, bad flags and argument count errors from cobra.
		return exitUsage
	}
}

// newRootCmd creates the root command. A fresh tree is built for every
// invocation so tests can run commands in isolation.
func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "keysync",
		Short: "keysync mirrors SSH public keys into local accounts.",
		Long: `keysync turns a directory of <name>.pub files into local accounts.
Every key file becomes an account whose authorized_keys holds the file's
content; managed accounts without a key file are removed again. The key
directory can be fetched from S3, SFTP or a local path before each run.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		Version:       buildvars.Describe(),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&a.configFile, "config", "", "config file (default is keysync.yaml in the user, system or current directory)")
	cmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().String("log-format", "text", `log format ("text", "json", "logfmt")`)
	cmd.PersistentFlags().String("lang", "", `output language ("en", "de"); detected from the environment when empty`)

	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return usageError(err)
	})

	cmd.AddCommand(newSyncCmd(a))
	cmd.AddCommand(newReconcileCmd(a))
	cmd.AddCommand(newDaemonCmd(a))
	cmd.AddCommand(newHistoryCmd(a))
	cmd.AddCommand(newConfigCmd(a))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// load reads the configuration for cmd and sets up logging and i18n.
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig[config.Config](cmd, config.Defaults(), &a.configFile)
	if err != nil {
		return usageError(err)
	}
	if err := cfg.Validate(); err != nil {
		return usageError(fmt.Errorf("invalid configuration: %w", err))
	}
	if err := logging.Configure(cfg.Log.Level, cfg.Log.Format, a.debug); err != nil {
		return usageError(err)
	}
	i18n.Init(cfg.Language)
	a.cfg = cfg
	logging.Debugf("configuration loaded from %q", config.ConfigFileUsed(a.configFile))
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the keysync version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "keysync %s\n", buildvars.Describe())
		},
	}
}
