// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/toeirei/keysync/internal/history"
	"github.com/toeirei/keysync/internal/i18n"
	"github.com/toeirei/keysync/internal/model"
	"github.com/toeirei/keysync/internal/report"
)

func newHistoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and maintain the run history",
	}
	cmd.AddCommand(newHistoryListCmd(a))
	cmd.AddCommand(newHistoryShowCmd(a))
	cmd.AddCommand(newHistoryExportCmd(a))
	cmd.AddCommand(newHistoryMaintainCmd(a))
	return cmd
}

// openHistory opens the configured history database.
func (a *app) openHistory(ctx context.Context) (*history.Store, error) {
	if !a.cfg.History.Enabled {
		return nil, usageError(errors.New(i18n.T("history.disabled")))
	}
	s, err := history.Open(ctx, a.cfg.History.Type, a.cfg.History.DSN)
	if err != nil {
		return nil, &exitError{code: exitRunFailed, err: err}
	}
	return s, nil
}

func newHistoryListCmd(a *app) *cobra.Command {
	var limit int
	var output string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !report.ValidFormat(output) {
				return usageError(fmt.Errorf("unknown output format %q", output))
			}
			s, err := a.openHistory(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			runs, err := s.ListRuns(cmd.Context(), limit)
			if err != nil {
				return &exitError{code: exitRunFailed, err: err}
			}
			w := cmd.OutOrStdout()
			return report.New(w, output).Runs(w, runs)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show (0 for all)")
	cmd.Flags().StringVarP(&output, "output", "o", report.FormatText, `output format ("text", "json")`)
	return cmd
}

func newHistoryShowCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the actions of one recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !report.ValidFormat(output) {
				return usageError(fmt.Errorf("unknown output format %q", output))
			}
			s, err := a.openHistory(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			actions, err := s.RunActions(cmd.Context(), args[0])
			if errors.Is(err, history.ErrRunNotFound) {
				return usageError(err)
			}
			if err != nil {
				return &exitError{code: exitRunFailed, err: err}
			}
			rep := &model.Report{RunID: args[0], Actions: actions}
			w := cmd.OutOrStdout()
			r := report.New(w, output)
			r.Verbose = true
			return r.Report(w, rep)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", report.FormatText, `output format ("text", "json")`)
	return cmd
}

func newHistoryExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Write the history as zstd-compressed JSON",
		Long: `Writes every recorded run and action as zstd-compressed JSON to <file>.
Use "-" to write to standard output.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openHistory(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			if args[0] == "-" {
				return s.Export(cmd.Context(), cmd.OutOrStdout())
			}
			f, err := os.OpenFile(args[0], os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
			if err != nil {
				return &exitError{code: exitRunFailed, err: fmt.Errorf("create export file: %w", err)}
			}
			if err := s.Export(cmd.Context(), f); err != nil {
				f.Close()
				return &exitError{code: exitRunFailed, err: err}
			}
			if err := f.Close(); err != nil {
				return &exitError{code: exitRunFailed, err: err}
			}
			fmt.Fprintln(cmd.ErrOrStderr(), i18n.T("history.exported", map[string]any{"Path": args[0]}))
			return nil
		},
	}
}

func newHistoryMaintainCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "maintain",
		Short: "Prune runs past the retention period and optimize the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openHistory(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			w := cmd.OutOrStdout()
			if a.cfg.History.Retention > 0 {
				cutoff := time.Now().Add(-a.cfg.History.Retention)
				n, err := s.Prune(cmd.Context(), cutoff)
				if err != nil {
					return &exitError{code: exitRunFailed, err: err}
				}
				fmt.Fprintln(w, i18n.T("history.pruned", map[string]any{
					"Count":  int(n),
					"Cutoff": cutoff.Format(time.DateOnly),
				}))
			}
			if err := s.Maintain(cmd.Context()); err != nil {
				return &exitError{code: exitRunFailed, err: err}
			}
			fmt.Fprintln(w, i18n.T("history.maintained"))
			return nil
		},
	}
}
