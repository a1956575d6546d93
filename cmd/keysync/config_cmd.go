// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/toeirei/keysync/internal/config"
	"github.com/toeirei/keysync/internal/history"
	"github.com/toeirei/keysync/internal/i18n"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or inspect the configuration",
	}
	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd(a))
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var system, force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with default values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.GetConfigPath(system)
			if err != nil {
				return &exitError{code: exitRunFailed, err: err}
			}
			if _, err := os.Stat(path); err == nil && !force {
				return usageError(fmt.Errorf("%s already exists, use --force to overwrite it", path))
			}
			c := config.Default()
			if err := config.WriteConfigTo(&c, path); err != nil {
				return &exitError{code: exitRunFailed, err: err}
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("cli.config_written", map[string]any{"Path": path}))
			return nil
		},
	}
	cmd.Flags().BoolVar(&system, "system", false, "write /etc/keysync/keysync.yaml instead of the user file")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

// newConfigShowCmd prints the effective configuration after merging file,
// environment and flags.
func newConfigShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration and where it came from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			used := config.ConfigFileUsed(a.configFile)
			if used == "" {
				used = "none"
			}
			fmt.Fprintf(w, "# config file: %s\n", used)
			for _, e := range os.Environ() {
				if strings.HasPrefix(e, "KEYSYNC_") {
					name, _, _ := strings.Cut(e, "=")
					fmt.Fprintf(w, "# env: %s\n", name)
				}
			}
			c := a.cfg
			// Server DSNs may carry passwords.
			if c.History.Type != history.TypeSQLite && c.History.DSN != "" {
				c.History.DSN = "<redacted>"
			}
			out, err := yaml.Marshal(c)
			if err != nil {
				return &exitError{code: exitRunFailed, err: fmt.Errorf("encode config: %w", err)}
			}
			_, err = w.Write(out)
			return err
		},
	}
}
