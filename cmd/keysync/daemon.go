// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	clog "github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/toeirei/keysync/internal/core"
	"github.com/toeirei/keysync/internal/i18n"
	"github.com/toeirei/keysync/internal/lock"
	"github.com/toeirei/keysync/internal/logging"
	"github.com/toeirei/keysync/internal/report"
)

// cronLogger routes cron's own messages to the keysync logger.
type cronLogger struct {
	l *clog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, "err", err)...)
}

func newDaemonCmd(a *app) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run sync on a schedule until interrupted",
		Long: `Runs sync on a cron schedule ("@hourly", "@every 15m", "0 */6 * * *")
until SIGINT or SIGTERM. A tick is skipped while the previous run is still
going; the lock file also keeps external runs apart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.daemon(cmd.Context(), cmd, *f)
		},
	}
	cmd.Flags().String("source", "", "key location: s3://bucket/prefix, sftp://user@host/path or file:///path")
	cmd.Flags().String("schedule", "", `cron schedule (default "@every 15m")`)
	addRunFlags(cmd, f)
	return cmd
}

// daemon schedules runs until ctx is done.
func (a *app) daemon(ctx context.Context, cmd *cobra.Command, f runFlags) error {
	if !report.ValidFormat(f.output) {
		return usageError(fmt.Errorf("unknown output format %q", f.output))
	}
	sched, err := cron.ParseStandard(a.cfg.Daemon.Schedule)
	if err != nil {
		return usageError(fmt.Errorf("invalid schedule %q: %w", a.cfg.Daemon.Schedule, err))
	}
	// Build once up front so configuration errors fail fast.
	deps, cleanup, err := a.buildDeps(ctx, true, f.dryRun)
	if err != nil {
		return err
	}
	defer cleanup()

	w := cmd.OutOrStdout()
	logger := cronLogger{l: logging.L.With("component", "scheduler")}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	c.Schedule(sched, cron.FuncJob(func() {
		a.tick(ctx, w, deps, f)
	}))

	logging.Infof("%s", i18n.T("cli.daemon_started", map[string]any{"Schedule": a.cfg.Daemon.Schedule}))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	logging.Infof("%s", i18n.T("cli.daemon_stopped"))
	return nil
}

// tick runs one scheduled sync. Failures are logged; the scheduler keeps going.
func (a *app) tick(ctx context.Context, w io.Writer, deps core.Deps, f runFlags) {
	rep, err := core.RunSync(ctx, deps, a.runOptions(f))
	if errors.Is(err, lock.ErrLocked) {
		logging.Warnf("%s", i18n.T("cli.locked"))
		return
	}
	if ferr := a.finish(w, f, rep, err); ferr != nil {
		logging.Errorf("scheduled run failed: %v", ferr)
	}
}
