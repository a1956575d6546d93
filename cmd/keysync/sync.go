// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/toeirei/keysync/internal/account"
	"github.com/toeirei/keysync/internal/config"
	"github.com/toeirei/keysync/internal/core"
	"github.com/toeirei/keysync/internal/fetch"
	"github.com/toeirei/keysync/internal/history"
	"github.com/toeirei/keysync/internal/i18n"
	"github.com/toeirei/keysync/internal/lock"
	"github.com/toeirei/keysync/internal/logging"
	"github.com/toeirei/keysync/internal/model"
	"github.com/toeirei/keysync/internal/reconcile"
	"github.com/toeirei/keysync/internal/report"
)

// newAccountStore builds the host account store. Tests replace it.
var newAccountStore = func(cfg config.Config) (account.Store, error) {
	return account.NewOSStore(account.Options{
		Shell:          cfg.Account.Shell,
		ManagedGroup:   cfg.Account.ManagedGroup,
		Groups:         cfg.Account.Groups,
		AuthorizedKeys: cfg.Account.AuthorizedKeys,
		PasswdFile:     cfg.Account.PasswdFile,
		GroupFile:      cfg.Account.GroupFile,
		Runner:         account.ExecRunner{Timeout: cfg.CommandTimeout},
	})
}

// runFlags are the flags shared by sync, reconcile and daemon.
type runFlags struct {
	force   bool
	dryRun  bool
	output  string
	verbose bool
}

func addRunFlags(cmd *cobra.Command, f *runFlags) {
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "log account changes without applying them")
	cmd.Flags().String("policy", "", `failure policy ("abort", "continue")`)
	cmd.Flags().String("key-dir", "", "local key directory")
	cmd.Flags().String("lock-file", "", "run lock file")
	cmd.Flags().StringSlice("exclude", nil, "accounts never created, updated or deleted")
	cmd.Flags().Int("min-uid", 0, "lowest uid keysync may delete (0 disables the check)")
	cmd.Flags().Bool("validate-keys", false, "skip key files without a parseable public key")
	cmd.Flags().Duration("command-timeout", 0, "timeout of each account command")
	cmd.Flags().Duration("run-timeout", 0, "timeout of a whole run")
	cmd.Flags().StringVarP(&f.output, "output", "o", report.FormatText, `report format ("text", "json")`)
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "list unchanged principals in the report")
}

func newSyncCmd(a *app) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch key files and reconcile accounts",
		Long: `Fetches the key files from --source into the key directory and reconciles
local accounts against them. When the fetch changes nothing and the previous
pass completed without failures, the create and update pass is skipped unless
--force is given; deletions always run.

Exit codes: 0 success, 1 bad arguments, 2 missing --source, 3 run failure,
4 some principals failed under the continue policy.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runOnce(cmd.Context(), cmd.OutOrStdout(), true, *f)
		},
	}
	cmd.Flags().String("source", "", "key location: s3://bucket/prefix, sftp://user@host/path or file:///path")
	cmd.Flags().BoolVar(&f.force, "force", false, "run the create/update pass even if the source is unchanged")
	addRunFlags(cmd, f)
	return cmd
}

func newReconcileCmd(a *app) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile accounts against the local key directory",
		Long: `Reconciles local accounts against the key directory as it is, without
fetching from a source first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runOnce(cmd.Context(), cmd.OutOrStdout(), false, *f)
		},
	}
	addRunFlags(cmd, f)
	return cmd
}

// runOnce performs one run and renders its report to w.
func (a *app) runOnce(ctx context.Context, w io.Writer, withSource bool, f runFlags) error {
	if !report.ValidFormat(f.output) {
		return usageError(fmt.Errorf("unknown output format %q", f.output))
	}
	deps, cleanup, err := a.buildDeps(ctx, withSource, f.dryRun)
	if err != nil {
		return err
	}
	defer cleanup()

	rep, err := core.RunSync(ctx, deps, a.runOptions(f))
	return a.finish(w, f, rep, err)
}

func (a *app) runOptions(f runFlags) core.Options {
	return core.Options{Force: f.force, DryRun: f.dryRun, RunTimeout: a.cfg.RunTimeout}
}

// finish renders rep and turns the run outcome into an exit error.
func (a *app) finish(w io.Writer, f runFlags, rep *model.Report, err error) error {
	if errors.Is(err, lock.ErrLocked) {
		logging.Warnf("%s", i18n.T("cli.locked"))
		return &exitError{code: exitRunFailed, err: err}
	}
	if rep != nil {
		r := report.New(w, f.output)
		r.Verbose = f.verbose
		if rerr := r.Report(w, rep); rerr != nil {
			logging.Errorf("rendering report: %v", rerr)
		}
	}
	if err != nil {
		return &exitError{code: exitRunFailed, err: err}
	}
	if perr := rep.Err(); perr != nil {
		return &exitError{code: exitPartial, err: fmt.Errorf("%s: %w", i18n.T("cli.partial"), perr)}
	}
	return nil
}

// buildDeps assembles the collaborators of a run from the configuration.
// The returned cleanup closes what was opened.
func (a *app) buildDeps(ctx context.Context, withSource, dryRun bool) (core.Deps, func(), error) {
	cfg := a.cfg
	deps := core.Deps{
		LockFile:   cfg.LockFile,
		MarkerFile: filepath.Join(cfg.KeyDir, core.MarkerName),
	}
	cleanup := func() {}

	if withSource {
		if cfg.Source == "" {
			return deps, cleanup, &exitError{code: exitMissingArg, err: errors.New("required argument --source is missing (flag, KEYSYNC_SOURCE or source in keysync.yaml)")}
		}
		src, err := fetch.NewSource(cfg.Source, cfg.KeyDir, fetch.Options{
			Endpoint:     cfg.Storage.Endpoint,
			Region:       cfg.Storage.Region,
			UseSSL:       cfg.Storage.UseSSL,
			IdentityFile: cfg.SFTP.IdentityFile,
			KnownHosts:   cfg.SFTP.KnownHosts,
			Timeout:      cfg.CommandTimeout,
		})
		if err != nil {
			return deps, cleanup, usageError(err)
		}
		deps.Source = src
		deps.SourceName = src.String()
	}

	store, err := newAccountStore(cfg)
	if err != nil {
		return deps, cleanup, usageError(err)
	}
	if dryRun {
		store = account.DryRun(store)
	}

	policy, err := reconcile.ParsePolicy(cfg.Policy)
	if err != nil {
		return deps, cleanup, usageError(err)
	}
	rcfg := reconcile.Config{
		KeyDir:       cfg.KeyDir,
		Exclude:      cfg.Exclude,
		Policy:       policy,
		ValidateKeys: cfg.ValidateKeys,
		Logger:       logging.L,
	}
	if cfg.MinUID > 0 {
		rcfg.Eligible = reconcile.MinUID(cfg.MinUID)
	}
	rec, err := reconcile.New(rcfg, store)
	if err != nil {
		return deps, cleanup, usageError(err)
	}
	deps.Reconciler = rec

	if cfg.History.Enabled {
		hs, err := history.Open(ctx, cfg.History.Type, cfg.History.DSN)
		if err != nil {
			logging.Warnf("history disabled for this run: %v", err)
		} else {
			deps.History = hs
			cleanup = func() {
				if err := hs.Close(); err != nil {
					logging.Warnf("closing history: %v", err)
				}
			}
		}
	}
	return deps, cleanup, nil
}
